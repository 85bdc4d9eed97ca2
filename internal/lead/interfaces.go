package lead

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when an entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a write would give a second lead an email or
// handle another lead already owns.
var ErrDuplicate = errors.New("duplicate lead")

// ErrQueueClosed is returned by a Queue after shutdown.
var ErrQueueClosed = errors.New("queue closed")

// LeadStore persists leads. Each pipeline stage writes only the fields it
// owns: the finder writes contact and request fields, the qualifier writes
// the score, and status changes never move a lead backwards in the funnel.
type LeadStore interface {
	// UpsertLead inserts l, or replaces the contact and request fields of the
	// lead with the same ID. Qualification fields and the status are written
	// only on insert. Returns ErrDuplicate when another lead owns the email
	// or handle.
	UpsertLead(ctx context.Context, l Lead) (Lead, error)
	// MergeLeadContact fills blank contact and request fields of the stored
	// lead from p, deciding blankness against the current row. An email or
	// handle owned by another lead is not copied.
	MergeLeadContact(ctx context.Context, id string, p ParsedLead) (Lead, error)
	GetLead(ctx context.Context, id string) (Lead, error)
	FindByEmail(ctx context.Context, email string) (Lead, error)
	FindByHandle(ctx context.Context, handle string) (Lead, error)
	FindBySourceURL(ctx context.Context, sourceURL string) (Lead, error)
	RecentLeads(ctx context.Context, since time.Time) ([]Lead, error)
	ListLeads(ctx context.Context, filter LeadFilter) ([]Lead, error)
	HotLeads(ctx context.Context, limit int) ([]Lead, error)
	// UpdateLeadScore stores a qualification result. The score always
	// refreshes; the status moves only if CanTransition allows it from the
	// stored status. It returns the lead as stored.
	UpdateLeadScore(ctx context.Context, id string, update ScoreUpdate) (Lead, error)
	SetStatus(ctx context.Context, id string, status Status) error
}

// SourceStore persists operator-configured sources.
type SourceStore interface {
	GetActiveSources(ctx context.Context) ([]Source, error)
	ListSources(ctx context.Context) ([]Source, error)
	GetSource(ctx context.Context, id string) (Source, error)
	SaveSource(ctx context.Context, src Source) error
	RecordSourceRun(ctx context.Context, id string, found int, at time.Time) error
}

// AnalysisStore persists the single website analysis owned by a lead.
type AnalysisStore interface {
	SaveAnalysis(ctx context.Context, leadID string, analysis WebsiteAnalysis) error
	GetAnalysis(ctx context.Context, leadID string) (WebsiteAnalysis, error)
	DeleteAnalysis(ctx context.Context, leadID string) error
}

// ProposalStore persists drafted proposals.
type ProposalStore interface {
	SaveProposal(ctx context.Context, p Proposal) error
	ListProposals(ctx context.Context, leadID string) ([]Proposal, error)
}

// Store is the full persistence collaborator.
type Store interface {
	LeadStore
	SourceStore
	AnalysisStore
	ProposalStore
}

// Queue provides enqueue/dequeue semantics for qualification tasks.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	Dequeue(ctx context.Context) (Task, error)
}

// Publisher pushes hot-lead events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests used as cache keys.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces entity IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
