// Package dispatcher contains tests for worker coordination.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadpipe/internal/lead"
	"github.com/JakeFAU/leadpipe/internal/worker"
)

// TestDispatcherRunStartsWorkers ensures workers begin processing and stop on cancel.
func TestDispatcherRunStartsWorkers(t *testing.T) {
	t.Parallel()

	queue := &blockingQueue{started: make(chan struct{}, 1)}
	w := worker.New(queue, nil, nil, nil, nil, nil, worker.Config{}, zap.NewNop())
	dispatch := New(queue, []*worker.Worker{w}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dispatch.Run(ctx)
		close(done)
	}()

	select {
	case <-queue.started:
	case <-time.After(time.Second):
		t.Fatal("worker did not begin dequeuing")
	}

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}

// TestDispatcherEnqueueForwardsErrors verifies queue errors are wrapped for callers.
func TestDispatcherEnqueueForwardsErrors(t *testing.T) {
	t.Parallel()

	queue := &errorQueue{err: errors.New("boom")}
	dispatch := New(queue, nil, nil)

	err := dispatch.Enqueue(context.Background(), lead.Task{LeadID: "lead"})
	if err == nil || err.Error() != "queue enqueue: boom" {
		t.Fatalf("expected wrapped error, got %v", err)
	}

	n, err := dispatch.EnqueueLeads(context.Background(), []string{"a", "b"})
	if n != 0 || err == nil {
		t.Fatalf("expected nothing queued, got %d %v", n, err)
	}
}

// TestDispatcherEnqueueStampsTime verifies tasks carry their enqueue time.
func TestDispatcherEnqueueStampsTime(t *testing.T) {
	t.Parallel()

	queue := &recordingQueue{}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	dispatch := New(queue, nil, fixedClock(now))

	n, err := dispatch.EnqueueLeads(context.Background(), []string{"a", "b"})
	if err != nil || n != 2 {
		t.Fatalf("EnqueueLeads() = %d, %v", n, err)
	}
	if len(queue.tasks) != 2 || queue.tasks[1].LeadID != "b" || !queue.tasks[0].Enqueued.Equal(now) {
		t.Fatalf("unexpected tasks: %+v", queue.tasks)
	}
}

type blockingQueue struct {
	started chan struct{}
}

func (q *blockingQueue) Enqueue(_ context.Context, _ lead.Task) error {
	select {
	case q.started <- struct{}{}:
	default:
	}
	return nil
}

func (q *blockingQueue) Dequeue(ctx context.Context) (lead.Task, error) {
	select {
	case q.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return lead.Task{}, fmt.Errorf("blocking dequeue canceled: %w", ctx.Err())
}

type errorQueue struct {
	err error
}

func (q *errorQueue) Enqueue(context.Context, lead.Task) error {
	return q.err
}

func (q *errorQueue) Dequeue(context.Context) (lead.Task, error) {
	return lead.Task{}, nil
}

type recordingQueue struct {
	tasks []lead.Task
}

func (q *recordingQueue) Enqueue(_ context.Context, task lead.Task) error {
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *recordingQueue) Dequeue(context.Context) (lead.Task, error) {
	return lead.Task{}, nil
}

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }
