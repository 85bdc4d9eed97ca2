package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/JakeFAU/leadpipe/internal/lead"
)

// SaveAnalysis replaces the analysis owned by leadID.
func (s *Store) SaveAnalysis(ctx context.Context, leadID string, a lead.WebsiteAnalysis) error {
	checks, err := json.Marshal(a.Checks)
	if err != nil {
		return fmt.Errorf("marshal checks: %w", err)
	}
	issues, err := json.Marshal(nonNil(a.Issues))
	if err != nil {
		return fmt.Errorf("marshal issues: %w", err)
	}
	suggestions, err := json.Marshal(nonNil(a.Suggestions))
	if err != nil {
		return fmt.Errorf("marshal suggestions: %w", err)
	}
	techs, err := json.Marshal(nonNil(a.Technologies))
	if err != nil {
		return fmt.Errorf("marshal technologies: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO website_analyses (
	lead_id, url, overall_score, checks, issues, suggestions, technologies, cms, load_time_ms, analyzed_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (lead_id) DO UPDATE SET
	url = EXCLUDED.url,
	overall_score = EXCLUDED.overall_score,
	checks = EXCLUDED.checks,
	issues = EXCLUDED.issues,
	suggestions = EXCLUDED.suggestions,
	technologies = EXCLUDED.technologies,
	cms = EXCLUDED.cms,
	load_time_ms = EXCLUDED.load_time_ms,
	analyzed_at = EXCLUDED.analyzed_at`,
		leadID, a.URL, a.OverallScore, checks, issues, suggestions, techs, a.CMS, a.LoadTimeMS, a.AnalyzedAt,
	)
	if err != nil {
		return notFound(err, "save analysis for lead "+leadID)
	}
	return nil
}

// GetAnalysis returns the analysis owned by leadID.
func (s *Store) GetAnalysis(ctx context.Context, leadID string) (lead.WebsiteAnalysis, error) {
	var (
		a                                  lead.WebsiteAnalysis
		checks, issues, suggestions, techs []byte
	)
	err := s.pool.QueryRow(ctx, `
SELECT lead_id, url, overall_score, checks, issues, suggestions, technologies, cms, load_time_ms, analyzed_at
FROM website_analyses WHERE lead_id = $1`, leadID).Scan(
		&a.LeadID, &a.URL, &a.OverallScore, &checks, &issues, &suggestions, &techs, &a.CMS, &a.LoadTimeMS, &a.AnalyzedAt,
	)
	if err != nil {
		return lead.WebsiteAnalysis{}, notFound(err, "analysis for lead "+leadID)
	}
	for _, f := range []struct {
		raw  []byte
		into any
	}{{checks, &a.Checks}, {issues, &a.Issues}, {suggestions, &a.Suggestions}, {techs, &a.Technologies}} {
		if err := json.Unmarshal(f.raw, f.into); err != nil {
			return lead.WebsiteAnalysis{}, fmt.Errorf("decode analysis for lead %s: %w", leadID, err)
		}
	}
	return a, nil
}

// DeleteAnalysis removes the analysis owned by leadID. A missing row is not an error.
func (s *Store) DeleteAnalysis(ctx context.Context, leadID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM website_analyses WHERE lead_id = $1`, leadID); err != nil {
		return fmt.Errorf("delete analysis for lead %s: %w", leadID, err)
	}
	return nil
}

// SaveProposal inserts or replaces a proposal keyed by ID.
func (s *Store) SaveProposal(ctx context.Context, p lead.Proposal) error {
	if p.ID == "" {
		return fmt.Errorf("save proposal: empty id")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO proposals (id, lead_id, channel, status, subject, content, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET
	status = EXCLUDED.status,
	subject = EXCLUDED.subject,
	content = EXCLUDED.content`,
		p.ID, p.LeadID, string(p.Channel), string(p.Status), p.Subject, p.Content, p.CreatedAt,
	)
	if err != nil {
		return notFound(err, "save proposal for lead "+p.LeadID)
	}
	return nil
}

// ListProposals returns a lead's proposals, newest first.
func (s *Store) ListProposals(ctx context.Context, leadID string) ([]lead.Proposal, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, lead_id, channel, status, subject, content, created_at
FROM proposals WHERE lead_id = $1 ORDER BY created_at DESC, id DESC`, leadID)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()

	out := make([]lead.Proposal, 0)
	for rows.Next() {
		var (
			p               lead.Proposal
			channel, status string
		)
		if err := rows.Scan(&p.ID, &p.LeadID, &channel, &status, &p.Subject, &p.Content, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		p.Channel = lead.ProposalChannel(channel)
		p.Status = lead.ProposalStatus(status)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate proposals: %w", err)
	}
	return out, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
