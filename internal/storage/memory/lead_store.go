// Package memory provides in-memory stores for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/leadpipe/internal/lead"
)

// Store implements lead.Store with maps guarded by a RWMutex.
type Store struct {
	mu          sync.RWMutex
	leads       map[string]lead.Lead
	sources     map[string]lead.Source
	sourceOrder []string
	analyses    map[string]lead.WebsiteAnalysis
	proposals   map[string][]lead.Proposal
}

var _ lead.Store = (*Store)(nil)

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		leads:     make(map[string]lead.Lead),
		sources:   make(map[string]lead.Source),
		analyses:  make(map[string]lead.WebsiteAnalysis),
		proposals: make(map[string][]lead.Proposal),
	}
}

// UpsertLead inserts a lead or replaces its contact and request fields.
// Qualification fields and the status of a stored lead are kept.
func (s *Store) UpsertLead(_ context.Context, l lead.Lead) (lead.Lead, error) {
	if l.ID == "" {
		return lead.Lead{}, fmt.Errorf("upsert lead: empty id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOwner(l.ID, l.Email, l.Handle); err != nil {
		return lead.Lead{}, err
	}
	now := time.Now().UTC()
	if prev, ok := s.leads[l.ID]; ok {
		l.CreatedAt = prev.CreatedAt
		l.Urgency = prev.Urgency
		l.Industry = prev.Industry
		l.QualificationScore = prev.QualificationScore
		l.Status = prev.Status
		l.Hot = prev.Hot
		l.AIUnavailable = prev.AIUnavailable
		l.QualificationNotes = prev.QualificationNotes
		l.QualifiedAt = prev.QualifiedAt
	} else if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	if l.Status == "" {
		l.Status = lead.StatusNew
	}
	if l.Urgency == "" {
		l.Urgency = lead.UrgencyUnknown
	}
	l.UpdatedAt = now
	s.leads[l.ID] = cloneLead(l)
	return cloneLead(l), nil
}

// MergeLeadContact fills blank contact fields of a stored lead from p.
func (s *Store) MergeLeadContact(_ context.Context, id string, p lead.ParsedLead) (lead.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok {
		return lead.Lead{}, fmt.Errorf("lead %s: %w", id, lead.ErrNotFound)
	}
	if s.checkOwner(id, p.Email, "") != nil {
		p.Email = ""
	}
	if s.checkOwner(id, "", p.Handle) != nil {
		p.Handle = ""
	}
	if l.FillContact(p) {
		l.UpdatedAt = time.Now().UTC()
		s.leads[id] = l
	}
	return cloneLead(l), nil
}

// checkOwner returns lead.ErrDuplicate when a lead other than id owns the
// email or handle. Callers hold the write lock.
func (s *Store) checkOwner(id, email, handle string) error {
	emailKey, handleKey := lead.NormalizeEmail(email), lead.NormalizeHandle(handle)
	if emailKey == "" && handleKey == "" {
		return nil
	}
	for other, l := range s.leads {
		if other == id {
			continue
		}
		if emailKey != "" && lead.NormalizeEmail(l.Email) == emailKey {
			return fmt.Errorf("email owned by lead %s: %w", other, lead.ErrDuplicate)
		}
		if handleKey != "" && lead.NormalizeHandle(l.Handle) == handleKey {
			return fmt.Errorf("handle owned by lead %s: %w", other, lead.ErrDuplicate)
		}
	}
	return nil
}

// GetLead fetches a lead by ID.
func (s *Store) GetLead(_ context.Context, id string) (lead.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.leads[id]
	if !ok {
		return lead.Lead{}, fmt.Errorf("lead %s: %w", id, lead.ErrNotFound)
	}
	return cloneLead(l), nil
}

// FindByEmail returns the lead with the given email, compared normalized.
func (s *Store) FindByEmail(_ context.Context, email string) (lead.Lead, error) {
	key := lead.NormalizeEmail(email)
	return s.findFirst("email", func(l lead.Lead) bool {
		return key != "" && lead.NormalizeEmail(l.Email) == key
	})
}

// FindByHandle returns the lead with the given handle, compared normalized.
func (s *Store) FindByHandle(_ context.Context, handle string) (lead.Lead, error) {
	key := lead.NormalizeHandle(handle)
	return s.findFirst("handle", func(l lead.Lead) bool {
		return key != "" && lead.NormalizeHandle(l.Handle) == key
	})
}

// FindBySourceURL returns the lead first found at sourceURL.
func (s *Store) FindBySourceURL(_ context.Context, sourceURL string) (lead.Lead, error) {
	key := strings.TrimSpace(sourceURL)
	return s.findFirst("source_url", func(l lead.Lead) bool {
		return key != "" && l.SourceURL == key
	})
}

// findFirst returns the oldest matching lead so lookups are stable.
func (s *Store) findFirst(field string, match func(lead.Lead) bool) (lead.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		best  lead.Lead
		found bool
	)
	for _, l := range s.leads {
		if !match(l) {
			continue
		}
		if !found || l.CreatedAt.Before(best.CreatedAt) || (l.CreatedAt.Equal(best.CreatedAt) && l.ID < best.ID) {
			best, found = l, true
		}
	}
	if !found {
		return lead.Lead{}, fmt.Errorf("lead by %s: %w", field, lead.ErrNotFound)
	}
	return cloneLead(best), nil
}

// RecentLeads returns leads found at or after since, oldest first.
func (s *Store) RecentLeads(_ context.Context, since time.Time) ([]lead.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]lead.Lead, 0)
	for _, l := range s.leads {
		if !l.FoundAt.Before(since) {
			out = append(out, cloneLead(l))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FoundAt.Equal(out[j].FoundAt) {
			return out[i].FoundAt.Before(out[j].FoundAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ListLeads returns leads matching filter, newest first.
func (s *Store) ListLeads(_ context.Context, filter lead.LeadFilter) ([]lead.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]lead.Lead, 0)
	for _, l := range s.leads {
		if filter.Status != "" && l.Status != filter.Status {
			continue
		}
		if filter.MinScore > 0 && (l.QualificationScore == nil || *l.QualificationScore < filter.MinScore) {
			continue
		}
		out = append(out, cloneLead(l))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// HotLeads returns hot leads by descending score.
func (s *Store) HotLeads(_ context.Context, limit int) ([]lead.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]lead.Lead, 0)
	for _, l := range s.leads {
		if l.Hot {
			out = append(out, cloneLead(l))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		si, sj := scoreOf(out[i]), scoreOf(out[j])
		if si != sj {
			return si > sj
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpdateLeadScore writes a qualification result back to the lead. The status
// moves only where the funnel allows it from the stored status.
func (s *Store) UpdateLeadScore(_ context.Context, id string, u lead.ScoreUpdate) (lead.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok {
		return lead.Lead{}, fmt.Errorf("lead %s: %w", id, lead.ErrNotFound)
	}
	l.ApplyScore(u)
	l.UpdatedAt = time.Now().UTC()
	s.leads[id] = l
	return cloneLead(l), nil
}

// SetStatus overwrites a lead's funnel status. Callers validate the move.
func (s *Store) SetStatus(_ context.Context, id string, status lead.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok {
		return fmt.Errorf("lead %s: %w", id, lead.ErrNotFound)
	}
	l.Status = status
	l.UpdatedAt = time.Now().UTC()
	s.leads[id] = l
	return nil
}

func scoreOf(l lead.Lead) int {
	if l.QualificationScore == nil {
		return -1
	}
	return *l.QualificationScore
}

func cloneLead(l lead.Lead) lead.Lead {
	if l.QualificationScore != nil {
		v := *l.QualificationScore
		l.QualificationScore = &v
	}
	if l.QualifiedAt != nil {
		v := *l.QualifiedAt
		l.QualifiedAt = &v
	}
	return l
}
