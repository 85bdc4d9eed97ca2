package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/leadpipe/internal/lead"
)

const leadColumns = `id, source_id, source_url, name, company, email, phone, handle, website,
	original_request, needs_description, budget_mentioned, urgency, industry,
	qualification_score, status, hot, ai_unavailable, qualification_notes,
	found_at, created_at, updated_at, qualified_at`

const upsertLeadQuery = `
INSERT INTO leads (
	id, source_id, source_url, name, company, email, email_key, phone, handle, handle_key, website,
	original_request, needs_description, budget_mentioned, urgency, industry,
	qualification_score, status, hot, ai_unavailable, qualification_notes,
	found_at, created_at, updated_at, qualified_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25
)
ON CONFLICT (id) DO UPDATE SET
	source_id = EXCLUDED.source_id,
	source_url = EXCLUDED.source_url,
	name = EXCLUDED.name,
	company = EXCLUDED.company,
	email = EXCLUDED.email,
	email_key = EXCLUDED.email_key,
	phone = EXCLUDED.phone,
	handle = EXCLUDED.handle,
	handle_key = EXCLUDED.handle_key,
	website = EXCLUDED.website,
	original_request = EXCLUDED.original_request,
	needs_description = EXCLUDED.needs_description,
	budget_mentioned = EXCLUDED.budget_mentioned,
	found_at = EXCLUDED.found_at,
	updated_at = EXCLUDED.updated_at
RETURNING ` + leadColumns

// UpsertLead inserts a lead, or replaces the contact and request columns of
// the row with the same ID. Qualification columns and the status are written
// only on insert. A unique violation on email_key or handle_key is reported
// as lead.ErrDuplicate.
func (s *Store) UpsertLead(ctx context.Context, l lead.Lead) (lead.Lead, error) {
	if l.ID == "" {
		return lead.Lead{}, fmt.Errorf("upsert lead: empty id")
	}
	now := s.now()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	if l.Status == "" {
		l.Status = lead.StatusNew
	}
	if l.Urgency == "" {
		l.Urgency = lead.UrgencyUnknown
	}
	if l.FoundAt.IsZero() {
		l.FoundAt = now
	}

	row := s.pool.QueryRow(ctx, upsertLeadQuery,
		l.ID, l.SourceID, l.SourceURL, l.Name, l.Company,
		l.Email, lead.NormalizeEmail(l.Email), l.Phone, l.Handle, lead.NormalizeHandle(l.Handle), l.Website,
		l.OriginalRequest, l.NeedsDescription, l.BudgetMentioned, string(l.Urgency), l.Industry,
		l.QualificationScore, string(l.Status), l.Hot, l.AIUnavailable, l.QualificationNotes,
		l.FoundAt, l.CreatedAt, now, l.QualifiedAt,
	)
	out, err := scanLead(row)
	if err != nil {
		return lead.Lead{}, duplicate(err, "upsert lead "+l.ID)
	}
	return out, nil
}

// mergeContactQuery fills blank columns from the parameters against the row
// as it is at write time. Email and handle are copied only when no other
// lead owns the key.
var mergeContactQuery = `
UPDATE leads AS l SET
	company = ` + fillBlank("company", 2) + `,
	email = CASE WHEN ` + freeKey("email_key", 4) + ` THEN $3::text ELSE l.email END,
	email_key = CASE WHEN ` + freeKey("email_key", 4) + ` THEN $4::text ELSE l.email_key END,
	phone = ` + fillBlank("phone", 5) + `,
	handle = CASE WHEN ` + freeKey("handle_key", 7) + ` THEN $6::text ELSE l.handle END,
	handle_key = CASE WHEN ` + freeKey("handle_key", 7) + ` THEN $7::text ELSE l.handle_key END,
	website = ` + fillBlank("website", 8) + `,
	original_request = ` + fillBlank("original_request", 9) + `,
	needs_description = ` + fillBlank("needs_description", 10) + `,
	budget_mentioned = ` + fillBlank("budget_mentioned", 11) + `,
	source_url = ` + fillBlank("source_url", 12) + `,
	name = CASE WHEN btrim(l.name) IN ('', '` + lead.UnknownName + `') AND btrim($13::text) NOT IN ('', '` + lead.UnknownName + `')
		THEN $13::text ELSE l.name END,
	urgency = CASE WHEN l.urgency IN ('', '` + string(lead.UrgencyUnknown) + `') AND $14::text NOT IN ('', '` + string(lead.UrgencyUnknown) + `')
		THEN $14::text ELSE l.urgency END,
	updated_at = $15
WHERE l.id = $1
RETURNING ` + leadColumns

func fillBlank(column string, param int) string {
	return fmt.Sprintf("CASE WHEN btrim(l.%[1]s) = '' AND btrim($%[2]d::text) <> '' THEN $%[2]d::text ELSE l.%[1]s END", column, param)
}

func freeKey(column string, param int) string {
	return fmt.Sprintf("l.%[1]s = '' AND $%[2]d::text <> '' AND NOT EXISTS (SELECT 1 FROM leads o WHERE o.%[1]s = $%[2]d::text AND o.id <> l.id)", column, param)
}

// MergeLeadContact fills blank contact and request columns of a stored lead.
func (s *Store) MergeLeadContact(ctx context.Context, id string, p lead.ParsedLead) (lead.Lead, error) {
	row := s.pool.QueryRow(ctx, mergeContactQuery,
		id, p.Company, p.Email, lead.NormalizeEmail(p.Email), p.Phone, p.Handle, lead.NormalizeHandle(p.Handle),
		p.Website, p.OriginalRequest, p.NeedsDescription, p.BudgetMentioned, p.SourceURL,
		p.Name, string(p.Urgency), s.now(),
	)
	out, err := scanLead(row)
	if err != nil {
		return lead.Lead{}, duplicate(err, "merge lead "+id)
	}
	return out, nil
}

// GetLead fetches a lead by ID.
func (s *Store) GetLead(ctx context.Context, id string) (lead.Lead, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id)
	l, err := scanLead(row)
	if err != nil {
		return lead.Lead{}, notFound(err, "lead "+id)
	}
	return l, nil
}

// FindByEmail returns the oldest lead with the given email, compared normalized.
func (s *Store) FindByEmail(ctx context.Context, email string) (lead.Lead, error) {
	return s.findFirst(ctx, "email_key", lead.NormalizeEmail(email))
}

// FindByHandle returns the oldest lead with the given handle, compared normalized.
func (s *Store) FindByHandle(ctx context.Context, handle string) (lead.Lead, error) {
	return s.findFirst(ctx, "handle_key", lead.NormalizeHandle(handle))
}

// FindBySourceURL returns the oldest lead scraped from sourceURL.
func (s *Store) FindBySourceURL(ctx context.Context, sourceURL string) (lead.Lead, error) {
	return s.findFirst(ctx, "source_url", strings.TrimSpace(sourceURL))
}

// findFirst looks a lead up by one of a fixed set of indexed columns.
func (s *Store) findFirst(ctx context.Context, column, key string) (lead.Lead, error) {
	if key == "" {
		return lead.Lead{}, fmt.Errorf("lead by %s: %w", column, lead.ErrNotFound)
	}
	query := fmt.Sprintf(`SELECT %s FROM leads WHERE %s = $1 ORDER BY created_at, id LIMIT 1`, leadColumns, column)
	l, err := scanLead(s.pool.QueryRow(ctx, query, key))
	if err != nil {
		return lead.Lead{}, notFound(err, "lead by "+column)
	}
	return l, nil
}

// RecentLeads returns leads found at or after since, oldest first.
func (s *Store) RecentLeads(ctx context.Context, since time.Time) ([]lead.Lead, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE found_at >= $1 ORDER BY found_at, id`, since)
	if err != nil {
		return nil, fmt.Errorf("recent leads: %w", err)
	}
	return collectLeads(rows)
}

// ListLeads returns leads matching filter, newest first.
func (s *Store) ListLeads(ctx context.Context, filter lead.LeadFilter) ([]lead.Lead, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.MinScore > 0 {
		args = append(args, filter.MinScore)
		where = append(where, fmt.Sprintf("qualification_score >= $%d", len(args)))
	}
	query := `SELECT ` + leadColumns + ` FROM leads`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, limitArg(filter.Limit))
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	return collectLeads(rows)
}

// HotLeads returns hot leads by descending score.
func (s *Store) HotLeads(ctx context.Context, limit int) ([]lead.Lead, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE hot ORDER BY qualification_score DESC NULLS LAST, id LIMIT $1`,
		limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("hot leads: %w", err)
	}
	return collectLeads(rows)
}

// updateScoreQuery refreshes the score and moves the status only where
// lead.CanTransition allows it from the status stored at write time.
var updateScoreQuery = `
UPDATE leads SET
	qualification_score = $2,
	urgency = $3,
	status = CASE
		WHEN $4::text = '' OR status = $4::text THEN status
		WHEN status IN (` + terminalStatuses() + `) THEN status
		WHEN ` + statusRank("status") + ` < 0 OR ` + statusRank("$4::text") + ` < ` + statusRank("status") + ` THEN status
		ELSE $4::text
	END,
	hot = $5,
	industry = COALESCE(NULLIF($6, ''), industry),
	ai_unavailable = $7,
	qualification_notes = $8,
	qualified_at = $9,
	updated_at = $10
WHERE id = $1
RETURNING ` + leadColumns

// statusRank renders lead.Status.Rank over a SQL expression.
func statusRank(expr string) string {
	var b strings.Builder
	b.WriteString("(CASE " + expr)
	for _, st := range lead.Statuses() {
		fmt.Fprintf(&b, " WHEN '%s' THEN %d", st, st.Rank())
	}
	b.WriteString(" ELSE -1 END)")
	return b.String()
}

func terminalStatuses() string {
	var out []string
	for _, st := range lead.Statuses() {
		if st.Terminal() {
			out = append(out, "'"+string(st)+"'")
		}
	}
	return strings.Join(out, ", ")
}

// UpdateLeadScore writes a qualification result back to the lead and returns
// the stored row.
func (s *Store) UpdateLeadScore(ctx context.Context, id string, u lead.ScoreUpdate) (lead.Lead, error) {
	row := s.pool.QueryRow(ctx, updateScoreQuery,
		id, u.Score, string(u.Urgency), string(u.Status), u.Hot, u.Industry,
		u.AIUnavailable, u.Notes, u.QualifiedAt, s.now(),
	)
	out, err := scanLead(row)
	if err != nil {
		return lead.Lead{}, notFound(err, "update lead score "+id)
	}
	return out, nil
}

// SetStatus overwrites a lead's funnel status. Callers validate the move.
func (s *Store) SetStatus(ctx context.Context, id string, status lead.Status) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET status = $2, updated_at = $3 WHERE id = $1`, id, string(status), s.now())
	if err != nil {
		return fmt.Errorf("set status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("lead %s: %w", id, lead.ErrNotFound)
	}
	return nil
}

func scanLead(row pgx.Row) (lead.Lead, error) {
	var (
		l               lead.Lead
		urgency, status string
		score           *int
		qualifiedAt     *time.Time
	)
	err := row.Scan(
		&l.ID, &l.SourceID, &l.SourceURL, &l.Name, &l.Company, &l.Email, &l.Phone, &l.Handle, &l.Website,
		&l.OriginalRequest, &l.NeedsDescription, &l.BudgetMentioned, &urgency, &l.Industry,
		&score, &status, &l.Hot, &l.AIUnavailable, &l.QualificationNotes,
		&l.FoundAt, &l.CreatedAt, &l.UpdatedAt, &qualifiedAt,
	)
	if err != nil {
		return lead.Lead{}, err
	}
	l.Urgency = lead.Urgency(urgency)
	l.Status = lead.Status(status)
	l.QualificationScore = score
	l.QualifiedAt = qualifiedAt
	return l, nil
}

func collectLeads(rows pgx.Rows) ([]lead.Lead, error) {
	defer rows.Close()
	out := make([]lead.Lead, 0)
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leads: %w", err)
	}
	return out, nil
}
