// Package memory provides an in-process qualification task queue.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/leadpipe/internal/lead"
)

// ErrClosed is returned once the queue has been shut down.
var ErrClosed = lead.ErrQueueClosed

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch     chan lead.Task
	mu     sync.RWMutex
	closed bool
}

var _ lead.Queue = (*Queue)(nil)

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch: make(chan lead.Task, capacity),
	}
}

// Enqueue pushes a task, blocking while the queue is full. It fails once
// the context ends or the queue is closed.
func (q *Queue) Enqueue(ctx context.Context, task lead.Task) error {
	// Close waits for in-flight sends, so the channel stays open here.
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- task:
		return nil
	}
}

// Dequeue pops the next task, respecting context cancellation. Tasks
// buffered before Close are still delivered.
func (q *Queue) Dequeue(ctx context.Context) (lead.Task, error) {
	select {
	case <-ctx.Done():
		return lead.Task{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case task, ok := <-q.ch:
		if !ok {
			return lead.Task{}, ErrClosed
		}
		return task, nil
	}
}

// Len reports how many tasks are waiting.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops the queue. It is idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
