// Package scheduler runs periodic tasks.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Task is one scheduled run.
type Task func(ctx context.Context) error

// Every runs task immediately and then on every tick until ctx ends. Runs
// never overlap: ticks that fire during a run are dropped.
func Every(ctx context.Context, interval time.Duration, name string, task Task, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("scheduler").With(zap.String("task", name))

	t := time.NewTicker(interval)
	defer t.Stop()

	run := func() {
		start := time.Now()
		if err := task(ctx); err != nil {
			logger.Error("scheduled run failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
			return
		}
		logger.Debug("scheduled run finished", zap.Duration("elapsed", time.Since(start)))
	}

	run()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if ctx.Err() != nil {
				return
			}
			run()
		}
	}
}
