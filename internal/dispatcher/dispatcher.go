// Package dispatcher manages worker fan-out over the qualification queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/leadpipe/internal/lead"
	"github.com/JakeFAU/leadpipe/internal/worker"
)

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   lead.Queue
	workers []*worker.Worker
	clock   lead.Clock
}

// New creates a Dispatcher.
func New(queue lead.Queue, workers []*worker.Worker, clock lead.Clock) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
		clock:   clock,
	}
}

// Run starts all workers and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, task lead.Task) error {
	if task.Enqueued.IsZero() && d.clock != nil {
		task.Enqueued = d.clock.Now()
	}
	if err := d.queue.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// EnqueueLeads queues a first attempt for each lead and reports how many
// made it before an error.
func (d *Dispatcher) EnqueueLeads(ctx context.Context, leadIDs []string) (int, error) {
	for i, id := range leadIDs {
		if err := d.Enqueue(ctx, lead.Task{LeadID: id}); err != nil {
			return i, err
		}
	}
	return len(leadIDs), nil
}
