// Package ai runs completions against an ordered chain of AI backends with
// per-backend rate windows, retries for transient failures and an overall
// time budget.
package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrNotConfigured marks a provider dropped at startup because its
// configuration is incomplete.
var ErrNotConfigured = errors.New("ai provider not configured")

// Provider is one completion backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// ErrorKind classifies provider failures for failover and retry decisions.
type ErrorKind string

// Provider error kinds.
const (
	KindRateLimited ErrorKind = "rate_limited"
	KindAuth        ErrorKind = "auth"
	KindTransport   ErrorKind = "transport"
	KindTimeout     ErrorKind = "timeout"
	KindServer      ErrorKind = "server"
	KindBadOutput   ErrorKind = "bad_output"
)

// ProviderError is returned by Provider implementations.
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Status   int
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Provider, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Transient reports whether retrying the same provider may succeed.
func (e *ProviderError) Transient() bool {
	return e.Kind == KindServer || e.Kind == KindTimeout
}

// kindForStatus maps an HTTP status to an ErrorKind.
func kindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return KindTimeout
	case status >= 500:
		return KindServer
	default:
		return KindTransport
	}
}

// wrapErr classifies a client error that carries no HTTP status.
func wrapErr(provider string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	kind := KindTransport
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

func statusErr(provider string, status int, body string) error {
	return &ProviderError{
		Provider: provider,
		Kind:     kindForStatus(status),
		Status:   status,
		Err:      fmt.Errorf("unexpected response: %s", body),
	}
}
