// Package worker implements the qualification pipeline execution loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadpipe/internal/lead"
	"github.com/JakeFAU/leadpipe/internal/metrics"
	"github.com/JakeFAU/leadpipe/internal/qualifier"
)

// Analyzer scores a lead's website.
type Analyzer interface {
	Analyze(ctx context.Context, rawURL string) lead.WebsiteAnalysis
}

// Qualifier scores a lead.
type Qualifier interface {
	Qualify(ctx context.Context, l lead.Lead, analysis *lead.WebsiteAnalysis) (qualifier.Result, error)
}

// Store is what the worker reads and writes.
type Store interface {
	lead.LeadStore
	lead.AnalysisStore
}

const requeueTimeout = 5 * time.Second

// ErrPublish marks a lead that was scored and stored but whose hot-lead
// event could not be published. Such tasks are not retried.
var ErrPublish = errors.New("publish hot lead")

// Config controls Worker behavior.
type Config struct {
	// HotTopic receives a lead.HotLeadEvent when a lead first becomes hot.
	// Empty disables publishing.
	HotTopic string
	// MaxAttempts bounds how often a failed task is requeued. Values below 1
	// mean a single attempt.
	MaxAttempts int
}

// Worker consumes qualification tasks.
type Worker struct {
	queue     lead.Queue
	store     Store
	analyzer  Analyzer
	qualifier Qualifier
	publisher lead.Publisher
	clock     lead.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker.
func New(
	queue lead.Queue,
	store Store,
	analyzer Analyzer,
	qualifier Qualifier,
	publisher lead.Publisher,
	clock lead.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Worker{
		queue:     queue,
		store:     store,
		analyzer:  analyzer,
		qualifier: qualifier,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger.Named("worker"),
	}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, lead.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued task", zap.String("lead_id", task.LeadID), zap.Int("attempt", task.Attempt))
		w.handle(ctx, task)
	}
}

func (w *Worker) handle(ctx context.Context, task lead.Task) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	_, err := w.Process(ctx, task.LeadID)
	switch {
	case err == nil:
		metrics.ObserveTask("succeeded")
	case errors.Is(err, lead.ErrNotFound) || errors.Is(err, ErrPublish) ||
		ctx.Err() != nil || task.Attempt+1 >= w.cfg.MaxAttempts:
		metrics.ObserveTask("failed")
		w.logger.Error("qualification failed", zap.String("lead_id", task.LeadID), zap.Int("attempt", task.Attempt), zap.Error(err))
	default:
		metrics.ObserveTask("retried")
		w.logger.Warn("qualification failed, requeueing", zap.String("lead_id", task.LeadID), zap.Int("attempt", task.Attempt), zap.Error(err))
		task.Attempt++
		task.Enqueued = w.clock.Now()
		// a full queue must not stall the consumer
		qctx, cancel := context.WithTimeout(ctx, requeueTimeout)
		defer cancel()
		if qerr := w.queue.Enqueue(qctx, task); qerr != nil {
			w.logger.Error("requeue failed", zap.String("lead_id", task.LeadID), zap.Error(qerr))
		}
	}
}

// Process analyzes and qualifies one lead, stores the score and announces a
// newly hot lead. It is safe to call concurrently with Run.
func (w *Worker) Process(ctx context.Context, leadID string) (qualifier.Result, error) {
	l, err := w.store.GetLead(ctx, leadID)
	if err != nil {
		return qualifier.Result{}, fmt.Errorf("load lead: %w", err)
	}

	analysis, err := w.currentAnalysis(ctx, l)
	if err != nil {
		return qualifier.Result{}, err
	}

	res, err := w.qualifier.Qualify(ctx, l, analysis)
	if err != nil {
		return qualifier.Result{}, fmt.Errorf("qualify: %w", err)
	}
	saved, err := w.store.UpdateLeadScore(ctx, l.ID, res.Update(w.clock.Now()))
	if err != nil {
		return qualifier.Result{}, fmt.Errorf("update lead score: %w", err)
	}
	// the store keeps a status that moved further down the funnel meanwhile
	res.Status = saved.Status
	w.logger.Info("lead qualified",
		zap.String("lead_id", l.ID),
		zap.Int("score", res.Score),
		zap.String("status", string(res.Status)),
		zap.Bool("hot", res.Hot),
		zap.Bool("ai_unavailable", res.AIUnavailable),
	)

	if res.Hot && !l.Hot {
		if err := w.publishHot(ctx, l, res); err != nil {
			return res, err
		}
	}
	return res, nil
}

// currentAnalysis returns the stored analysis for the lead's website,
// running the analyzer when none matches the current URL.
func (w *Worker) currentAnalysis(ctx context.Context, l lead.Lead) (*lead.WebsiteAnalysis, error) {
	if l.Website == "" || w.analyzer == nil {
		return nil, nil
	}
	stored, err := w.store.GetAnalysis(ctx, l.ID)
	switch {
	case err == nil && stored.Matches(l.Website):
		return &stored, nil
	case err != nil && !errors.Is(err, lead.ErrNotFound):
		return nil, fmt.Errorf("load analysis: %w", err)
	}

	fresh := w.analyzer.Analyze(ctx, l.Website)
	fresh.LeadID = l.ID
	if err := w.store.SaveAnalysis(ctx, l.ID, fresh); err != nil {
		return nil, fmt.Errorf("save analysis: %w", err)
	}
	w.logger.Debug("website analyzed",
		zap.String("lead_id", l.ID),
		zap.String("site", metrics.SanitizeSite(l.Website)),
		zap.Int("overall", fresh.OverallScore),
	)
	return &fresh, nil
}

func (w *Worker) publishHot(ctx context.Context, l lead.Lead, res qualifier.Result) error {
	if w.cfg.HotTopic == "" || w.publisher == nil {
		return nil
	}
	event := lead.HotLeadEvent{
		LeadID:   l.ID,
		Name:     l.Name,
		Score:    res.Score,
		Industry: res.Industry,
		SourceID: l.SourceID,
		At:       w.clock.Now(),
	}
	msgID, err := w.publisher.Publish(ctx, w.cfg.HotTopic, event)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPublish, err)
	}
	w.logger.Info("hot lead published", zap.String("lead_id", l.ID), zap.String("message_id", msgID))
	return nil
}
