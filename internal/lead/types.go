// Package lead defines the core types shared across the acquisition and
// qualification pipeline.
package lead

import (
	"strings"
	"time"
)

// Urgency is the coarse time pressure expressed by a lead.
type Urgency string

// Urgency values, ordered from most to least urgent.
const (
	UrgencyHigh    Urgency = "high"
	UrgencyMedium  Urgency = "medium"
	UrgencyLow     Urgency = "low"
	UrgencyUnknown Urgency = "unknown"
)

// Rank orders urgency so ties can be broken toward the more urgent category.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyHigh:
		return 3
	case UrgencyMedium:
		return 2
	case UrgencyLow:
		return 1
	default:
		return 0
	}
}

// SourceType identifies which registered parser serves a Source.
type SourceType string

// Source types with a registered parser.
const (
	SourceTelegram    SourceType = "telegram_channel"
	SourceFreelance   SourceType = "freelance_platform"
	SourceForum       SourceType = "forum"
	SourceClassifieds SourceType = "classified_ads"
)

// Lead is a potential client discovered by the finder.
type Lead struct {
	ID                 string     `json:"id"`
	SourceID           string     `json:"source_id,omitempty"`
	SourceURL          string     `json:"source_url,omitempty"`
	Name               string     `json:"name"`
	Company            string     `json:"company,omitempty"`
	Email              string     `json:"email,omitempty"`
	Phone              string     `json:"phone,omitempty"`
	Handle             string     `json:"handle,omitempty"`
	Website            string     `json:"website,omitempty"`
	OriginalRequest    string     `json:"original_request,omitempty"`
	NeedsDescription   string     `json:"needs_description,omitempty"`
	BudgetMentioned    string     `json:"budget_mentioned,omitempty"`
	Urgency            Urgency    `json:"urgency"`
	Industry           string     `json:"industry,omitempty"`
	QualificationScore *int       `json:"qualification_score"`
	Status             Status     `json:"status"`
	Hot                bool       `json:"hot"`
	AIUnavailable      bool       `json:"ai_unavailable,omitempty"`
	QualificationNotes string     `json:"qualification_notes,omitempty"`
	FoundAt            time.Time  `json:"found_at"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	QualifiedAt        *time.Time `json:"qualified_at,omitempty"`
}

// ContactChannels counts the distinct ways the lead can be reached.
func (l Lead) ContactChannels() int {
	n := 0
	for _, v := range []string{l.Email, l.Phone, l.Handle} {
		if strings.TrimSpace(v) != "" {
			n++
		}
	}
	return n
}

// HasContact reports whether any contact channel is populated.
func (l Lead) HasContact() bool {
	return l.ContactChannels() > 0
}

// Source is an operator-configured channel scraped for leads.
type Source struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Type            SourceType        `json:"source_type"`
	Active          bool              `json:"is_active"`
	Keywords        []string          `json:"search_keywords"`
	Config          map[string]string `json:"config,omitempty"`
	TotalLeadsFound int               `json:"total_leads_found"`
	LastSearchAt    *time.Time        `json:"last_search_at,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// ParsedLead is the transient output of a parser, used as the dedup and merge
// key before a Lead is created or updated.
type ParsedLead struct {
	Name             string
	Company          string
	Email            string
	Phone            string
	Handle           string
	Website          string
	OriginalRequest  string
	NeedsDescription string
	BudgetMentioned  string
	Urgency          Urgency
	SourceURL        string
	FoundAt          time.Time
	Raw              map[string]string
}

// Severity ranks website issues.
type Severity string

// Severity values, most severe first.
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Rank orders severities so suggestions sort most severe first.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	default:
		return 3
	}
}

// Issue is one finding recorded by the website analyzer.
type Issue struct {
	Code        string   `json:"code"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
}

// CheckScores holds the per-check scores behind an overall analysis score.
type CheckScores struct {
	TLS         int `json:"tls"`
	Performance int `json:"performance"`
	Mobile      int `json:"mobile"`
	SEO         int `json:"seo"`
}

// WebsiteAnalysis belongs to exactly one lead and is tied to the website value
// it was computed for.
type WebsiteAnalysis struct {
	LeadID       string      `json:"lead_id"`
	URL          string      `json:"url"`
	OverallScore int         `json:"overall_score"`
	Checks       CheckScores `json:"checks"`
	Issues       []Issue     `json:"issues"`
	Suggestions  []string    `json:"improvement_suggestions"`
	LoadTimeMS   int64       `json:"load_time_ms"`
	Technologies []string    `json:"technologies,omitempty"`
	CMS          string      `json:"cms,omitempty"`
	AnalyzedAt   time.Time   `json:"analyzed_at"`
}

// Matches reports whether the analysis was computed for the given website.
func (a WebsiteAnalysis) Matches(website string) bool {
	return website != "" && NormalizeWebsite(a.URL) == NormalizeWebsite(website)
}

// NormalizeWebsite reduces a website to a comparable form.
func NormalizeWebsite(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "www.")
	return strings.TrimRight(s, "/")
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// NormalizeHandle lowercases a messaging handle and ensures a single leading "@".
func NormalizeHandle(raw string) string {
	h := strings.TrimLeft(strings.ToLower(strings.TrimSpace(raw)), "@")
	if h == "" {
		return ""
	}
	return "@" + h
}

// ProposalChannel is the outreach medium a proposal is drafted for.
type ProposalChannel string

// Proposal channels.
const (
	ChannelEmail    ProposalChannel = "email"
	ChannelTelegram ProposalChannel = "telegram"
)

// ProposalStatus tracks a drafted proposal.
type ProposalStatus string

// Proposal statuses.
const (
	ProposalDraft ProposalStatus = "draft"
	ProposalReady ProposalStatus = "ready"
	ProposalSent  ProposalStatus = "sent"
)

// Proposal is outreach text drafted for one lead.
type Proposal struct {
	ID        string          `json:"id"`
	LeadID    string          `json:"lead_id"`
	Channel   ProposalChannel `json:"channel"`
	Status    ProposalStatus  `json:"status"`
	Subject   string          `json:"subject,omitempty"`
	Content   string          `json:"content"`
	CreatedAt time.Time       `json:"created_at"`
}

// ScoreUpdate is what the qualifier writes back for a lead.
type ScoreUpdate struct {
	Score         int
	Urgency       Urgency
	Status        Status
	Hot           bool
	Industry      string
	AIUnavailable bool
	Notes         string
	QualifiedAt   time.Time
}

// LeadFilter narrows ListLeads results.
type LeadFilter struct {
	Status   Status
	MinScore int
	Limit    int
}

// Task asks the qualification pipeline to process one lead.
type Task struct {
	LeadID   string
	Attempt  int
	Enqueued time.Time
}

// HotLeadEvent is published when a lead first crosses the hot threshold.
type HotLeadEvent struct {
	LeadID   string    `json:"lead_id"`
	Name     string    `json:"name"`
	Score    int       `json:"score"`
	Industry string    `json:"industry,omitempty"`
	SourceID string    `json:"source_id,omitempty"`
	At       time.Time `json:"at"`
}
