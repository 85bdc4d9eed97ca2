// Package finder runs search cycles: it fans out across sources, then
// deduplicates and merges what they yield into the lead store.
package finder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JakeFAU/leadpipe/internal/lead"
	"github.com/JakeFAU/leadpipe/internal/metrics"
	"github.com/JakeFAU/leadpipe/internal/parser"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Store is the persistence the finder needs.
type Store interface {
	lead.LeadStore
	lead.SourceStore
	lead.AnalysisStore
}

// ParserFactory builds the parser for a source.
type ParserFactory func(src lead.Source) (parser.Parser, error)

// Config tunes fan-out and the dedup policy.
type Config struct {
	FanOut              int
	SourceTimeout       time.Duration
	CycleDeadline       time.Duration
	SimilarityThreshold float64
	Window              time.Duration
}

// SourceStatus is the outcome of one source in a cycle.
type SourceStatus string

// Source outcomes.
const (
	SourceOK      SourceStatus = "ok"
	SourceFailed  SourceStatus = "failed"
	SourceSkipped SourceStatus = "skipped"
)

// SourceResult reports one source's part in a cycle.
type SourceResult struct {
	SourceID string          `json:"source_id"`
	Name     string          `json:"name"`
	Type     lead.SourceType `json:"source_type"`
	Status   SourceStatus    `json:"status"`
	Found    int             `json:"found"`
	Error    string          `json:"error,omitempty"`
}

// Summary reports a whole cycle. LeadIDs lists created or materially updated
// leads in merge order, ready to be queued for qualification.
type Summary struct {
	Found      int            `json:"found"`
	Created    int            `json:"created"`
	Updated    int            `json:"updated"`
	Duplicates int            `json:"duplicates"`
	Errors     int            `json:"errors"`
	Sources    []SourceResult `json:"sources"`
	LeadIDs    []string       `json:"lead_ids"`
}

// Finder orchestrates search cycles. Cycles run one at a time so dedup
// lookups see every lead an earlier cycle wrote.
type Finder struct {
	mu     sync.Mutex
	store  Store
	build  ParserFactory
	ids    lead.IDGenerator
	clock  lead.Clock
	cfg    Config
	logger *zap.Logger
}

// New constructs a Finder.
func New(store Store, build ParserFactory, ids lead.IDGenerator, clock lead.Clock, cfg Config, logger *zap.Logger) *Finder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FanOut <= 0 {
		cfg.FanOut = 1
	}
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = 45 * time.Second
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = 0.85
	}
	if cfg.Window <= 0 {
		cfg.Window = 72 * time.Hour
	}
	return &Finder{
		store:  store,
		build:  build,
		ids:    ids,
		clock:  clock,
		cfg:    cfg,
		logger: logger.Named("finder"),
	}
}

type sourceRun struct {
	source lead.Source
	status SourceStatus
	items  []lead.ParsedLead
	err    error
}

// RunSearch searches sources concurrently and merges their leads in source
// order. No source is dispatched after the cycle deadline or once maxLeads
// items have been collected; sources already running finish under their own
// timeout. Items past maxLeads are read but not persisted.
func (f *Finder) RunSearch(ctx context.Context, sources []lead.Source, maxLeads int) Summary {
	if maxLeads <= 0 {
		maxLeads = 50
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	runs := make([]sourceRun, len(sources))
	for i, src := range sources {
		runs[i] = sourceRun{source: src, status: SourceSkipped}
	}

	var collected atomic.Int64
	var deadline time.Time
	if f.cfg.CycleDeadline > 0 {
		deadline = time.Now().Add(f.cfg.CycleDeadline)
	}
	canDispatch := func() bool {
		if ctx.Err() != nil {
			return false
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return false
		}
		return collected.Load() < int64(maxLeads)
	}

	var g errgroup.Group
	g.SetLimit(f.cfg.FanOut)
	for i := range sources {
		if !canDispatch() {
			continue
		}
		g.Go(func() error {
			// a slot may free up only after the deadline or cap
			if !canDispatch() {
				return nil
			}
			runs[i] = f.runSource(ctx, sources[i], maxLeads, &collected)
			return nil
		})
	}
	_ = g.Wait()

	summary := f.merge(context.WithoutCancel(ctx), runs, maxLeads)
	f.logger.Info("search cycle finished",
		zap.Int("sources", len(sources)),
		zap.Int("found", summary.Found),
		zap.Int("created", summary.Created),
		zap.Int("updated", summary.Updated),
		zap.Int("duplicates", summary.Duplicates),
		zap.Int("errors", summary.Errors),
	)
	return summary
}

func (f *Finder) runSource(ctx context.Context, src lead.Source, maxLeads int, collected *atomic.Int64) sourceRun {
	run := sourceRun{source: src, status: SourceOK}
	logger := f.logger.With(zap.String("source", src.Name), zap.String("source_type", string(src.Type)))

	p, err := f.build(src)
	if err != nil {
		logger.Warn("source parser unavailable", zap.Error(err))
		run.status = SourceFailed
		run.err = err
		return run
	}

	// The source timeout is detached from the cycle so an expiring cycle
	// never aborts a source mid-stream.
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.cfg.SourceTimeout)
	defer cancel()

	stream := p.Search(sctx, src.Keywords, maxLeads)
	defer stream.Close()
	for stream.Next() {
		run.items = append(run.items, stream.Item())
		collected.Add(1)
	}
	if err := stream.Err(); err != nil {
		logger.Warn("source failed", zap.Int("partial_items", len(run.items)), zap.Error(err))
		run.status = SourceFailed
		run.err = err
	}
	return run
}

type outcome int

const (
	outcomeCreated outcome = iota
	outcomeUpdated
	outcomeDuplicate
)

func (f *Finder) merge(ctx context.Context, runs []sourceRun, maxLeads int) Summary {
	now := f.clock.Now()
	recent, err := f.store.RecentLeads(ctx, now.Add(-f.cfg.Window))
	if err != nil {
		f.logger.Warn("load recent leads for fuzzy dedup", zap.Error(err))
	}
	win := newWindow(f.cfg.SimilarityThreshold, recent)

	summary := Summary{Sources: make([]SourceResult, 0, len(runs)), LeadIDs: []string{}}
	queued := make(map[string]bool)
	persisted := 0

	for _, run := range runs {
		src := run.source
		result := SourceResult{
			SourceID: src.ID,
			Name:     src.Name,
			Type:     src.Type,
			Status:   run.status,
			Found:    len(run.items),
		}
		if run.err != nil {
			result.Error = run.err.Error()
			summary.Errors++
		}
		summary.Found += len(run.items)
		sourceType := string(src.Type)
		metrics.ObserveSourceRun(sourceType, string(run.status))
		metrics.ObserveLeads(sourceType, "found", len(run.items))

		for _, item := range run.items {
			if persisted >= maxLeads {
				break
			}
			persisted++
			out, id, err := f.mergeOne(ctx, src, item, win)
			if err != nil {
				f.logger.Error("persist lead", zap.String("source", src.Name), zap.String("source_url", item.SourceURL), zap.Error(err))
				summary.Errors++
				continue
			}
			switch out {
			case outcomeCreated:
				summary.Created++
				metrics.ObserveLeads(sourceType, "created", 1)
			case outcomeUpdated:
				summary.Updated++
				summary.Duplicates++
				metrics.ObserveLeads(sourceType, "updated", 1)
			case outcomeDuplicate:
				summary.Duplicates++
				metrics.ObserveLeads(sourceType, "duplicate", 1)
			}
			if (out == outcomeCreated || out == outcomeUpdated) && !queued[id] {
				queued[id] = true
				summary.LeadIDs = append(summary.LeadIDs, id)
			}
		}

		if run.status != SourceSkipped && src.ID != "" {
			if err := f.store.RecordSourceRun(ctx, src.ID, len(run.items), now); err != nil && !errors.Is(err, lead.ErrNotFound) {
				f.logger.Warn("record source run", zap.String("source", src.Name), zap.Error(err))
			}
		}
		summary.Sources = append(summary.Sources, result)
	}
	return summary
}

func (f *Finder) mergeOne(ctx context.Context, src lead.Source, item lead.ParsedLead, win *window) (outcome, string, error) {
	p := normalizeParsed(item)
	if p.FoundAt.IsZero() {
		p.FoundAt = f.clock.Now()
	}

	existing, found, err := f.lookup(ctx, p, win)
	if err != nil {
		return 0, "", err
	}
	if found {
		return f.mergeExisting(ctx, existing, p, win)
	}

	id, err := f.ids.NewID()
	if err != nil {
		return 0, "", fmt.Errorf("new lead id: %w", err)
	}
	saved, err := f.store.UpsertLead(ctx, newLead(id, src.ID, p))
	if errors.Is(err, lead.ErrDuplicate) {
		// another writer created the lead after our lookup
		existing, found, lerr := f.lookup(ctx, p, win)
		if lerr != nil {
			return 0, "", lerr
		}
		if !found {
			return 0, "", fmt.Errorf("create lead: %w", err)
		}
		return f.mergeExisting(ctx, existing, p, win)
	}
	if err != nil {
		return 0, "", fmt.Errorf("create lead: %w", err)
	}
	win.add(saved)
	return outcomeCreated, saved.ID, nil
}

// mergeExisting fills blank contact fields of a known lead. Only those fields
// are written, so a concurrent qualification or status change survives.
func (f *Finder) mergeExisting(ctx context.Context, existing lead.Lead, p lead.ParsedLead, win *window) (outcome, string, error) {
	if !mergeInto(existing, p).changed {
		return outcomeDuplicate, existing.ID, nil
	}
	saved, err := f.store.MergeLeadContact(ctx, existing.ID, p)
	if err != nil {
		return 0, "", fmt.Errorf("update lead %s: %w", existing.ID, err)
	}
	if websiteFilled(existing, saved) {
		if err := f.store.DeleteAnalysis(ctx, saved.ID); err != nil {
			return 0, "", fmt.Errorf("invalidate analysis for %s: %w", saved.ID, err)
		}
	}
	win.replace(saved)
	return outcomeUpdated, saved.ID, nil
}

// lookup applies the dedup keys in order: email, handle, source URL, then a
// fuzzy match on the request text within the recent window.
func (f *Finder) lookup(ctx context.Context, p lead.ParsedLead, win *window) (lead.Lead, bool, error) {
	exact := []struct {
		key  string
		find func(context.Context, string) (lead.Lead, error)
	}{
		{p.Email, f.store.FindByEmail},
		{p.Handle, f.store.FindByHandle},
		{p.SourceURL, f.store.FindBySourceURL},
	}
	for _, k := range exact {
		if k.key == "" {
			continue
		}
		l, err := k.find(ctx, k.key)
		if err == nil {
			return l, true, nil
		}
		if !errors.Is(err, lead.ErrNotFound) {
			return lead.Lead{}, false, fmt.Errorf("dedup lookup: %w", err)
		}
	}

	match, ok := win.match(p.OriginalRequest)
	if !ok || conflictingContacts(match, p) {
		return lead.Lead{}, false, nil
	}
	l, err := f.store.GetLead(ctx, match.ID)
	if err != nil {
		if errors.Is(err, lead.ErrNotFound) {
			return lead.Lead{}, false, nil
		}
		return lead.Lead{}, false, fmt.Errorf("dedup lookup: %w", err)
	}
	return l, true, nil
}

// conflictingContacts reports whether a fuzzy match names a different person:
// both records carry the same kind of contact with different values.
func conflictingContacts(l lead.Lead, p lead.ParsedLead) bool {
	differ := func(a, b string) bool { return a != "" && b != "" && a != b }
	return differ(lead.NormalizeEmail(l.Email), p.Email) ||
		differ(lead.NormalizeHandle(l.Handle), p.Handle) ||
		differ(l.Phone, p.Phone)
}
