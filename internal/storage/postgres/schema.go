package postgres

var schema = []string{
	`CREATE TABLE IF NOT EXISTS sources (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	source_type       TEXT NOT NULL,
	is_active         BOOLEAN NOT NULL DEFAULT TRUE,
	search_keywords   TEXT[] NOT NULL DEFAULT '{}',
	config            JSONB NOT NULL DEFAULT '{}',
	total_leads_found INTEGER NOT NULL DEFAULT 0,
	last_search_at    TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS leads (
	id                  TEXT PRIMARY KEY,
	source_id           TEXT NOT NULL DEFAULT '',
	source_url          TEXT NOT NULL DEFAULT '',
	name                TEXT NOT NULL,
	company             TEXT NOT NULL DEFAULT '',
	email               TEXT NOT NULL DEFAULT '',
	email_key           TEXT NOT NULL DEFAULT '',
	phone               TEXT NOT NULL DEFAULT '',
	handle              TEXT NOT NULL DEFAULT '',
	handle_key          TEXT NOT NULL DEFAULT '',
	website             TEXT NOT NULL DEFAULT '',
	original_request    TEXT NOT NULL DEFAULT '',
	needs_description   TEXT NOT NULL DEFAULT '',
	budget_mentioned    TEXT NOT NULL DEFAULT '',
	urgency             TEXT NOT NULL DEFAULT 'unknown',
	industry            TEXT NOT NULL DEFAULT '',
	qualification_score INTEGER,
	status              TEXT NOT NULL DEFAULT 'new',
	hot                 BOOLEAN NOT NULL DEFAULT FALSE,
	ai_unavailable      BOOLEAN NOT NULL DEFAULT FALSE,
	qualification_notes TEXT NOT NULL DEFAULT '',
	found_at            TIMESTAMPTZ NOT NULL,
	created_at          TIMESTAMPTZ NOT NULL,
	updated_at          TIMESTAMPTZ NOT NULL,
	qualified_at        TIMESTAMPTZ
)`,
	`DROP INDEX IF EXISTS leads_email_key_idx`,
	`DROP INDEX IF EXISTS leads_handle_key_idx`,
	`CREATE UNIQUE INDEX IF NOT EXISTS leads_email_key_uniq ON leads (email_key) WHERE email_key <> ''`,
	`CREATE UNIQUE INDEX IF NOT EXISTS leads_handle_key_uniq ON leads (handle_key) WHERE handle_key <> ''`,
	`CREATE INDEX IF NOT EXISTS leads_source_url_idx ON leads (source_url) WHERE source_url <> ''`,
	`CREATE INDEX IF NOT EXISTS leads_found_at_idx ON leads (found_at)`,
	`CREATE INDEX IF NOT EXISTS leads_hot_idx ON leads (qualification_score DESC) WHERE hot`,
	`CREATE TABLE IF NOT EXISTS website_analyses (
	lead_id       TEXT PRIMARY KEY REFERENCES leads (id) ON DELETE CASCADE,
	url           TEXT NOT NULL,
	overall_score INTEGER NOT NULL,
	checks        JSONB NOT NULL,
	issues        JSONB NOT NULL,
	suggestions   JSONB NOT NULL,
	technologies  JSONB NOT NULL,
	cms           TEXT NOT NULL DEFAULT '',
	load_time_ms  BIGINT NOT NULL DEFAULT 0,
	analyzed_at   TIMESTAMPTZ NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS proposals (
	id         TEXT PRIMARY KEY,
	lead_id    TEXT NOT NULL REFERENCES leads (id) ON DELETE CASCADE,
	channel    TEXT NOT NULL,
	status     TEXT NOT NULL,
	subject    TEXT NOT NULL DEFAULT '',
	content    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS proposals_lead_idx ON proposals (lead_id, created_at DESC)`,
}
