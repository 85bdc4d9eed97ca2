package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/leadpipe/internal/lead"
)

const sourceColumns = `id, name, source_type, is_active, search_keywords, config,
	total_leads_found, last_search_at, created_at`

// GetActiveSources returns active sources in the order they were first saved.
func (s *Store) GetActiveSources(ctx context.Context) ([]lead.Source, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE is_active ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("active sources: %w", err)
	}
	return collectSources(rows)
}

// ListSources returns every source in the order they were first saved.
func (s *Store) ListSources(ctx context.Context) ([]lead.Source, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+sourceColumns+` FROM sources ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return collectSources(rows)
}

// GetSource fetches a source by ID.
func (s *Store) GetSource(ctx context.Context, id string) (lead.Source, error) {
	src, err := scanSource(s.pool.QueryRow(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = $1`, id))
	if err != nil {
		return lead.Source{}, notFound(err, "source "+id)
	}
	return src, nil
}

// SaveSource inserts or replaces a source. Run statistics and created_at
// survive a replace.
func (s *Store) SaveSource(ctx context.Context, src lead.Source) error {
	if src.ID == "" {
		return fmt.Errorf("save source: empty id")
	}
	if src.CreatedAt.IsZero() {
		src.CreatedAt = s.now()
	}
	keywords := src.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	cfg, err := json.Marshal(orEmpty(src.Config))
	if err != nil {
		return fmt.Errorf("marshal source config: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO sources (id, name, source_type, is_active, search_keywords, config, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	source_type = EXCLUDED.source_type,
	is_active = EXCLUDED.is_active,
	search_keywords = EXCLUDED.search_keywords,
	config = EXCLUDED.config`,
		src.ID, src.Name, string(src.Type), src.Active, keywords, cfg, src.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save source %s: %w", src.ID, err)
	}
	return nil
}

// RecordSourceRun adds found to the source total and stamps the run time.
func (s *Store) RecordSourceRun(ctx context.Context, id string, found int, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sources SET total_leads_found = total_leads_found + $2, last_search_at = $3 WHERE id = $1`,
		id, found, at)
	if err != nil {
		return fmt.Errorf("record source run %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("source %s: %w", id, lead.ErrNotFound)
	}
	return nil
}

func scanSource(row pgx.Row) (lead.Source, error) {
	var (
		src        lead.Source
		sourceType string
		cfg        []byte
		lastSearch *time.Time
	)
	err := row.Scan(&src.ID, &src.Name, &sourceType, &src.Active, &src.Keywords, &cfg,
		&src.TotalLeadsFound, &lastSearch, &src.CreatedAt)
	if err != nil {
		return lead.Source{}, err
	}
	src.Type = lead.SourceType(sourceType)
	src.LastSearchAt = lastSearch
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &src.Config); err != nil {
			return lead.Source{}, fmt.Errorf("decode source config: %w", err)
		}
	}
	return src, nil
}

func collectSources(rows pgx.Rows) ([]lead.Source, error) {
	defer rows.Close()
	out := make([]lead.Source, 0)
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		out = append(out, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}
	return out, nil
}

func orEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
