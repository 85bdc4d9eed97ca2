package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/JakeFAU/leadpipe/internal/config"
	"github.com/stretchr/testify/require"
)

func TestOpenAIProviderComplete(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer gk", r.Header.Get("Authorization"))
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "llama-3.1-8b-instant", req.Model)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"coherence\":0.2}"}}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("groq", "groq", srv.URL, "gk", "", srv.Client())
	out, err := p.Complete(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, `{"coherence":0.2}`, out)
}

func TestOpenAIProviderClassifiesStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		kind   ErrorKind
	}{
		{http.StatusTooManyRequests, KindRateLimited},
		{http.StatusUnauthorized, KindAuth},
		{http.StatusBadGateway, KindServer},
		{http.StatusGatewayTimeout, KindTimeout},
		{http.StatusBadRequest, KindTransport},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tt.status)
		}))
		p := NewOpenAIProvider("x", "openai", srv.URL, "k", "m", srv.Client())
		_, err := p.Complete(context.Background(), "hello")
		srv.Close()

		var pe *ProviderError
		require.True(t, errors.As(err, &pe), "status %d", tt.status)
		require.Equal(t, tt.kind, pe.Kind, "status %d", tt.status)
		require.Equal(t, tt.status, pe.Status)
	}
}

func TestOllamaProviderComplete(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, false, body["stream"])
		_, _ = w.Write([]byte(`{"response":"{\"industry\":\"beauty\"}","done":true}`))
	}))
	defer srv.Close()

	p := NewOllamaProvider("local", srv.URL, "", srv.Client())
	out, err := p.Complete(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, `{"industry":"beauty"}`, out)
}

func TestAnthropicProviderComplete(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		require.Equal(t, "ak", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-haiku-latest",
			"content":[{"type":"text","text":"{\"coherence\":0.9}"}],
			"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":5}
		}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider("claude", "ak", "", srv.URL)
	out, err := p.Complete(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, `{"coherence":0.9}`, out)
}

func TestAnthropicProviderRateLimited(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider("claude", "ak", "", srv.URL)
	_, err := p.Complete(context.Background(), "hello")
	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	require.Equal(t, KindRateLimited, pe.Kind)
}

func TestFromConfigDropsInvalidProviders(t *testing.T) {
	t.Parallel()

	backends := FromConfig(context.Background(), []config.ProviderConfig{
		{Name: "fast", Kind: "groq", APIKey: "gk", RatePerMinute: 30, Timeout: 2 * time.Second},
		{Name: "nokey", Kind: "openrouter"},
		{Name: "weird", Kind: "telepathy", APIKey: "x"},
		{Name: "claude", Kind: "anthropic", APIKey: "ak"},
		{Name: "local", Kind: "ollama"},
	}, nil, nil)

	names := make([]string, 0, len(backends))
	for _, b := range backends {
		names = append(names, b.Provider.Name())
	}
	require.Equal(t, []string{"fast", "claude", "local"}, names)
	require.NotNil(t, backends[0].Limiter)
	require.Equal(t, 2*time.Second, backends[0].Timeout)
	require.Nil(t, backends[2].Limiter)
}

func TestNewProviderWrapsNotConfigured(t *testing.T) {
	t.Parallel()

	_, err := newProvider(context.Background(), config.ProviderConfig{Kind: "gemini"}, nil)
	require.ErrorIs(t, err, ErrNotConfigured)
}
