package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/JakeFAU/leadpipe/internal/lead"
)

// SaveAnalysis replaces the analysis owned by leadID.
func (s *Store) SaveAnalysis(_ context.Context, leadID string, a lead.WebsiteAnalysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.leads[leadID]; !ok {
		return fmt.Errorf("lead %s: %w", leadID, lead.ErrNotFound)
	}
	a.LeadID = leadID
	s.analyses[leadID] = cloneAnalysis(a)
	return nil
}

// GetAnalysis returns the analysis owned by leadID.
func (s *Store) GetAnalysis(_ context.Context, leadID string) (lead.WebsiteAnalysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.analyses[leadID]
	if !ok {
		return lead.WebsiteAnalysis{}, fmt.Errorf("analysis for %s: %w", leadID, lead.ErrNotFound)
	}
	return cloneAnalysis(a), nil
}

// DeleteAnalysis removes the analysis owned by leadID. Missing rows are not an error.
func (s *Store) DeleteAnalysis(_ context.Context, leadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.analyses, leadID)
	return nil
}

// SaveProposal appends or replaces a proposal by ID.
func (s *Store) SaveProposal(_ context.Context, p lead.Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.leads[p.LeadID]; !ok {
		return fmt.Errorf("lead %s: %w", p.LeadID, lead.ErrNotFound)
	}
	list := s.proposals[p.LeadID]
	for i := range list {
		if list[i].ID == p.ID {
			list[i] = p
			return nil
		}
	}
	s.proposals[p.LeadID] = append(list, p)
	return nil
}

// ListProposals returns a lead's proposals, newest first.
func (s *Store) ListProposals(_ context.Context, leadID string) ([]lead.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]lead.Proposal(nil), s.proposals[leadID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func cloneAnalysis(a lead.WebsiteAnalysis) lead.WebsiteAnalysis {
	a.Issues = append([]lead.Issue(nil), a.Issues...)
	a.Suggestions = append([]string(nil), a.Suggestions...)
	a.Technologies = append([]string(nil), a.Technologies...)
	return a
}
