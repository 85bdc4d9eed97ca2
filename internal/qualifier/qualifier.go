// Package qualifier scores leads from deterministic rules plus an optional
// AI signal, and decides their funnel status.
package qualifier

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/JakeFAU/leadpipe/internal/ai"
	"github.com/JakeFAU/leadpipe/internal/lead"
	"github.com/JakeFAU/leadpipe/internal/metrics"
	"github.com/JakeFAU/leadpipe/internal/parser"
	"go.uber.org/zap"
)

// Completer is the AI fallback chain.
type Completer interface {
	Complete(ctx context.Context, prompt string, kind ai.TaskKind) ai.Result
}

// Signal is the AI's read of a request.
type Signal struct {
	Coherence   float64 `json:"coherence"`
	Industry    string  `json:"industry"`
	IsSpam      bool    `json:"is_spam"`
	ProjectType string  `json:"project_type"`
	Notes       string  `json:"notes"`
	Provider    string  `json:"provider,omitempty"`
}

// Sub-score caps.
const (
	maxBudget  = 30
	maxContact = 20
	maxWebsite = 15
	maxAI      = 15
)

var urgencyPoints = map[lead.Urgency]int{
	lead.UrgencyHigh:   20,
	lead.UrgencyMedium: 12,
	lead.UrgencyLow:    4,
}

// Config holds the status cut-offs.
type Config struct {
	Hot    int
	Reject int
}

// Breakdown shows each sub-score behind a result.
type Breakdown struct {
	Budget  int `json:"budget"`
	Urgency int `json:"urgency"`
	Contact int `json:"contact"`
	Website int `json:"website"`
	AI      int `json:"ai"`
}

// Result is a qualification outcome.
type Result struct {
	Score         int          `json:"score"`
	Urgency       lead.Urgency `json:"urgency"`
	Industry      string       `json:"industry_guess,omitempty"`
	Status        lead.Status  `json:"status"`
	Hot           bool         `json:"hot"`
	AIUnavailable bool         `json:"ai_unavailable"`
	Breakdown     Breakdown    `json:"breakdown"`
	Notes         []string     `json:"notes"`
}

// Update converts the result into the store write.
func (r Result) Update(at time.Time) lead.ScoreUpdate {
	return lead.ScoreUpdate{
		Score:         r.Score,
		Urgency:       r.Urgency,
		Status:        r.Status,
		Hot:           r.Hot,
		Industry:      r.Industry,
		AIUnavailable: r.AIUnavailable,
		Notes:         strings.Join(r.Notes, "\n"),
		QualifiedAt:   at,
	}
}

// Qualifier scores leads.
type Qualifier struct {
	ai     Completer
	cache  Cache
	hasher lead.Hasher
	cfg    Config
	logger *zap.Logger
}

// New constructs a Qualifier. A nil cache keeps signals in memory.
func New(completer Completer, cache Cache, hasher lead.Hasher, cfg Config, logger *zap.Logger) *Qualifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cache == nil {
		cache = NewMemoryCache()
	}
	if cfg.Hot <= 0 {
		cfg.Hot = 60
	}
	return &Qualifier{ai: completer, cache: cache, hasher: hasher, cfg: cfg, logger: logger.Named("qualifier")}
}

// Qualify scores l. The analysis counts only when it was computed for the
// lead's current website. The computed status is applied only when the
// funnel allows it; otherwise the lead keeps its status.
func (q *Qualifier) Qualify(ctx context.Context, l lead.Lead, analysis *lead.WebsiteAnalysis) (Result, error) {
	text := requestText(l)
	var res Result

	res.Breakdown.Budget = clamp(budgetScore(l.BudgetMentioned), 0, maxBudget)

	res.Urgency = parser.EstimateUrgency(text)
	if res.Urgency == lead.UrgencyUnknown && l.Urgency != "" {
		res.Urgency = l.Urgency
	}
	res.Breakdown.Urgency = urgencyPoints[res.Urgency]

	channels := l.ContactChannels()
	res.Breakdown.Contact = clamp(contactScore(channels), 0, maxContact)

	if analysis != nil && analysis.Matches(l.Website) {
		opportunity := math.Round(float64(100-analysis.OverallScore) * maxWebsite / 100)
		res.Breakdown.Website = clamp(int(opportunity), 0, maxWebsite)
	}

	res.Industry = detectIndustry(text)
	signal, ok, err := q.signal(ctx, text)
	if err != nil {
		return Result{}, err
	}
	if ok {
		res.Breakdown.AI = clamp(int(math.Round(signal.Coherence*maxAI)), -maxAI, maxAI)
		if signal.Industry != "" {
			res.Industry = strings.ToLower(strings.TrimSpace(signal.Industry))
		}
	} else {
		res.AIUnavailable = true
	}

	b := res.Breakdown
	res.Score = clamp(b.Budget+b.Urgency+b.Contact+b.Website+b.AI, 0, 100)

	computed := q.status(res.Score, channels > 0)
	res.Hot = res.Score >= q.cfg.Hot
	res.Status = l.Status
	if res.Status == "" {
		res.Status = lead.StatusNew
	}
	if lead.CanTransition(res.Status, computed) {
		res.Status = computed
	}

	res.Notes = q.notes(l, res, signal, ok, channels, text)
	metrics.ObserveQualification(string(res.Status), res.Hot)
	return res, nil
}

func (q *Qualifier) status(score int, hasContact bool) lead.Status {
	switch {
	case score >= q.cfg.Hot:
		return lead.StatusQualified
	case score < q.cfg.Reject && !hasContact:
		return lead.StatusRejected
	default:
		return lead.StatusQualifying
	}
}

// signal returns the AI signal for text, from cache when possible. Only
// available signals are cached so a later run can still reach a provider.
func (q *Qualifier) signal(ctx context.Context, text string) (Signal, bool, error) {
	if q.ai == nil || text == "" {
		return Signal{}, false, nil
	}
	key, err := q.hasher.Hash([]byte(text))
	if err != nil {
		return Signal{}, false, fmt.Errorf("hash request text: %w", err)
	}
	if s, hit, err := q.cache.Get(ctx, key); err != nil {
		q.logger.Warn("ai signal cache read failed", zap.Error(err))
	} else if hit {
		return s, true, nil
	}

	res := q.ai.Complete(ctx, buildPrompt(text), ai.TaskQualify)
	if !res.Available {
		return Signal{}, false, nil
	}
	var s Signal
	if err := json.Unmarshal(res.JSON, &s); err != nil {
		q.logger.Warn("ai signal undecodable", zap.String("provider", res.Provider), zap.Error(err))
		return Signal{}, false, nil
	}
	s.Coherence = math.Max(-1, math.Min(1, s.Coherence))
	s.Provider = res.Provider
	if err := q.cache.Set(ctx, key, s); err != nil {
		q.logger.Warn("ai signal cache write failed", zap.Error(err))
	}
	return s, true, nil
}

func (q *Qualifier) notes(l lead.Lead, res Result, s Signal, aiOK bool, channels int, text string) []string {
	b := res.Breakdown
	notes := []string{
		fmt.Sprintf("budget: %d/%d (%s)", b.Budget, maxBudget, orNone(l.BudgetMentioned)),
		fmt.Sprintf("urgency: %d (%s)", b.Urgency, res.Urgency),
		fmt.Sprintf("contacts: %d/%d (%d channels)", b.Contact, maxContact, channels),
		fmt.Sprintf("website: %d/%d", b.Website, maxWebsite),
	}
	if aiOK {
		notes = append(notes, fmt.Sprintf("ai: %+d via %s", b.AI, s.Provider))
		if s.ProjectType != "" {
			notes = append(notes, "project type: "+s.ProjectType)
		}
		if s.IsSpam {
			notes = append(notes, "flag: ai marked the request as spam")
		}
		if s.Notes != "" {
			notes = append(notes, "ai notes: "+s.Notes)
		}
	} else {
		notes = append(notes, "ai: unavailable")
	}
	if res.Industry != "" {
		notes = append(notes, "industry: "+res.Industry)
	}
	for _, flag := range redFlags(text) {
		notes = append(notes, "flag: "+flag)
	}
	return notes
}

// requestText is the normalized text the AI signal is keyed on.
func requestText(l lead.Lead) string {
	raw := strings.ToLower(l.OriginalRequest + " " + l.NeedsDescription)
	return strings.Join(strings.Fields(raw), " ")
}

func buildPrompt(text string) string {
	return `You qualify incoming requests for a web development studio.
Read the request and answer with a single JSON object and nothing else:
{"coherence": number from -1 to 1, "industry": string, "is_spam": boolean, "project_type": string, "notes": string}
coherence is 1 for a clear, serious, paid website project and -1 for spam or an
incoherent request.

Request:
` + text
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "none"
	}
	return s
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
