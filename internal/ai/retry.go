package ai

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"time"
)

// BackoffPolicy retries transient provider failures with jittered
// exponential backoff.
type BackoffPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewBackoffPolicy builds a policy allowing maxRetries retries per provider.
func NewBackoffPolicy(maxRetries int) *BackoffPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &BackoffPolicy{
		maxRetries: maxRetries,
		baseDelay:  200 * time.Millisecond,
		maxDelay:   3 * time.Second,
	}
}

// ShouldRetry decides whether the error is retryable on the same provider.
// attempt counts retries already made.
func (p *BackoffPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.maxRetries {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Transient()
	}
	return false
}

// Backoff returns the wait duration before the next attempt.
func (p *BackoffPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	return time.Duration(delay/2) + jitter(time.Duration(delay)/2)
}

func jitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
