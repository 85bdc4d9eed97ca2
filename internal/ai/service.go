package ai

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/JakeFAU/leadpipe/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// TaskKind tells the service what shape of output the caller expects.
type TaskKind string

// Task kinds.
const (
	// TaskQualify expects a JSON object.
	TaskQualify TaskKind = "qualify"
	// TaskText accepts free text.
	TaskText TaskKind = "text"
)

// Backend pairs a provider with its own rate window and attempt timeout.
type Backend struct {
	Provider Provider
	Limiter  *rate.Limiter
	Timeout  time.Duration
}

// NewBackend builds a Backend. A non-positive perMinute leaves it unlimited.
func NewBackend(p Provider, perMinute float64, burst int, timeout time.Duration) Backend {
	var limiter *rate.Limiter
	if perMinute > 0 {
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(perMinute/60), burst)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return Backend{Provider: p, Limiter: limiter, Timeout: timeout}
}

// Attempt records one try against one provider.
type Attempt struct {
	Provider string        `json:"provider"`
	Outcome  string        `json:"outcome"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Result is the outcome of Complete. It is never an error: when every
// provider fails Available is false and Attempts explains why.
type Result struct {
	Available bool            `json:"available"`
	Provider  string          `json:"provider,omitempty"`
	Text      string          `json:"text,omitempty"`
	JSON      json.RawMessage `json:"json,omitempty"`
	Attempts  []Attempt       `json:"attempts,omitempty"`
}

// Config bounds the fallback chain.
type Config struct {
	Budget  time.Duration
	Retries int
}

// Service tries backends in priority order.
type Service struct {
	backends []Backend
	budget   time.Duration
	policy   *BackoffPolicy
	logger   *zap.Logger
}

// NewService wires a Service. Zero backends is valid and always yields an
// unavailable result.
func NewService(backends []Backend, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Budget <= 0 {
		cfg.Budget = 20 * time.Second
	}
	return &Service{
		backends: backends,
		budget:   cfg.Budget,
		policy:   NewBackoffPolicy(cfg.Retries),
		logger:   logger.Named("ai"),
	}
}

// Providers lists backend names in priority order.
func (s *Service) Providers() []string {
	names := make([]string, 0, len(s.backends))
	for _, b := range s.backends {
		names = append(names, b.Provider.Name())
	}
	return names
}

// Complete runs the prompt against each backend in order until one succeeds
// or the budget is spent.
func (s *Service) Complete(ctx context.Context, prompt string, kind TaskKind) Result {
	ctx, cancel := context.WithTimeout(ctx, s.budget)
	defer cancel()

	var res Result
	for _, b := range s.backends {
		if ctx.Err() != nil {
			break
		}
		text, raw, ok := s.tryBackend(ctx, b, prompt, kind, &res)
		if ok {
			res.Available = true
			res.Provider = b.Provider.Name()
			res.Text = text
			res.JSON = raw
			return res
		}
	}
	if len(s.backends) > 0 {
		s.logger.Warn("all ai providers failed", zap.Int("attempts", len(res.Attempts)))
	}
	return res
}

// tryBackend calls one backend until it succeeds or the retry policy gives
// up. Every attempt, retries included, takes a limiter token; an empty bucket
// moves on to the next backend.
func (s *Service) tryBackend(ctx context.Context, b Backend, prompt string, kind TaskKind, res *Result) (string, json.RawMessage, bool) {
	name := b.Provider.Name()
	for retry := 0; ; retry++ {
		if b.Limiter != nil && !b.Limiter.Allow() {
			res.Attempts = append(res.Attempts, Attempt{Provider: name, Outcome: string(KindRateLimited)})
			metrics.ObserveAIAttempt(name, string(KindRateLimited))
			return "", nil, false
		}
		start := time.Now()
		text, raw, err := s.call(ctx, b, prompt, kind)
		att := Attempt{Provider: name, Outcome: "ok", Duration: time.Since(start)}
		if err == nil {
			res.Attempts = append(res.Attempts, att)
			metrics.ObserveAIAttempt(name, att.Outcome)
			return text, raw, true
		}
		att.Outcome = outcomeOf(err)
		att.Error = err.Error()
		res.Attempts = append(res.Attempts, att)
		metrics.ObserveAIAttempt(name, att.Outcome)
		s.logger.Debug("ai attempt failed", zap.String("provider", name), zap.String("outcome", att.Outcome), zap.Error(err))

		if !s.policy.ShouldRetry(err, retry) {
			return "", nil, false
		}
		wait := s.policy.Backoff(retry)
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= wait {
			return "", nil, false
		}
		select {
		case <-ctx.Done():
			return "", nil, false
		case <-time.After(wait):
		}
	}
}

func (s *Service) call(ctx context.Context, b Backend, prompt string, kind TaskKind) (string, json.RawMessage, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, b.Timeout)
	defer cancel()

	text, err := b.Provider.Complete(attemptCtx, prompt)
	if err != nil {
		if attemptCtx.Err() != nil && ctx.Err() == nil {
			return "", nil, &ProviderError{Provider: b.Provider.Name(), Kind: KindTimeout, Err: err}
		}
		return "", nil, wrapErr(b.Provider.Name(), err)
	}
	if kind == TaskText {
		return text, nil, nil
	}
	raw, err := NormalizeJSON(text)
	if err != nil {
		return "", nil, &ProviderError{Provider: b.Provider.Name(), Kind: KindBadOutput, Err: err}
	}
	return text, raw, nil
}

func outcomeOf(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return string(pe.Kind)
	}
	return string(KindTransport)
}
