package finder

import (
	"context"
	"fmt"
	"slices"

	"github.com/JakeFAU/leadpipe/internal/lead"
	"github.com/JakeFAU/leadpipe/internal/metrics"
)

// Search triggers.
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// SearchActive runs a cycle over the active sources, optionally narrowed to
// the given source types.
func (f *Finder) SearchActive(ctx context.Context, trigger string, types []lead.SourceType, maxLeads int) (Summary, error) {
	sources, err := f.store.GetActiveSources(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("load active sources: %w", err)
	}
	if len(types) > 0 {
		sources = slices.DeleteFunc(sources, func(s lead.Source) bool {
			return !slices.Contains(types, s.Type)
		})
	}
	metrics.ObserveSearch(trigger)
	return f.RunSearch(ctx, sources, maxLeads), nil
}
