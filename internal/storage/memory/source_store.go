package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/leadpipe/internal/lead"
)

// GetActiveSources returns active sources in the order they were first saved.
func (s *Store) GetActiveSources(_ context.Context) ([]lead.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]lead.Source, 0, len(s.sourceOrder))
	for _, id := range s.sourceOrder {
		if src := s.sources[id]; src.Active {
			out = append(out, cloneSource(src))
		}
	}
	return out, nil
}

// ListSources returns every source in the order they were first saved.
func (s *Store) ListSources(_ context.Context) ([]lead.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]lead.Source, 0, len(s.sourceOrder))
	for _, id := range s.sourceOrder {
		out = append(out, cloneSource(s.sources[id]))
	}
	return out, nil
}

// GetSource fetches a source by ID.
func (s *Store) GetSource(_ context.Context, id string) (lead.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.sources[id]
	if !ok {
		return lead.Source{}, fmt.Errorf("source %s: %w", id, lead.ErrNotFound)
	}
	return cloneSource(src), nil
}

// SaveSource inserts or replaces a source. Run statistics survive a replace.
func (s *Store) SaveSource(_ context.Context, src lead.Source) error {
	if src.ID == "" {
		return fmt.Errorf("save source: empty id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.sources[src.ID]; ok {
		src.TotalLeadsFound = prev.TotalLeadsFound
		src.LastSearchAt = prev.LastSearchAt
		src.CreatedAt = prev.CreatedAt
	} else {
		s.sourceOrder = append(s.sourceOrder, src.ID)
		if src.CreatedAt.IsZero() {
			src.CreatedAt = time.Now().UTC()
		}
	}
	s.sources[src.ID] = cloneSource(src)
	return nil
}

// RecordSourceRun adds found to the source total and stamps the run time.
func (s *Store) RecordSourceRun(_ context.Context, id string, found int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[id]
	if !ok {
		return fmt.Errorf("source %s: %w", id, lead.ErrNotFound)
	}
	src.TotalLeadsFound += found
	ts := at
	src.LastSearchAt = &ts
	s.sources[id] = src
	return nil
}

func cloneSource(src lead.Source) lead.Source {
	if src.Keywords != nil {
		src.Keywords = append([]string(nil), src.Keywords...)
	}
	if src.Config != nil {
		cfg := make(map[string]string, len(src.Config))
		for k, v := range src.Config {
			cfg[k] = v
		}
		src.Config = cfg
	}
	if src.LastSearchAt != nil {
		v := *src.LastSearchAt
		src.LastSearchAt = &v
	}
	return src
}
