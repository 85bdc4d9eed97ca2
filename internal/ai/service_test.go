package ai

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name  string
	calls atomic.Int32
	fn    func(ctx context.Context, call int) (string, error)
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Complete(ctx context.Context, _ string) (string, error) {
	n := int(f.calls.Add(1))
	return f.fn(ctx, n)
}

func blocking(name string) *fakeProvider {
	return &fakeProvider{name: name, fn: func(ctx context.Context, _ int) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
}

func answering(name, text string) *fakeProvider {
	return &fakeProvider{name: name, fn: func(context.Context, int) (string, error) { return text, nil }}
}

func failing(name string, kind ErrorKind) *fakeProvider {
	return &fakeProvider{name: name, fn: func(context.Context, int) (string, error) {
		return "", &ProviderError{Provider: name, Kind: kind, Err: errors.New("boom")}
	}}
}

func TestCompleteFallsBackAfterTimeout(t *testing.T) {
	t.Parallel()

	a := blocking("a")
	b := answering("b", `{"coherence": 0.5}`)
	svc := NewService([]Backend{
		NewBackend(a, 0, 0, 50*time.Millisecond),
		NewBackend(b, 0, 0, time.Second),
	}, Config{Budget: 2 * time.Second}, nil)

	start := time.Now()
	res := svc.Complete(context.Background(), "prompt", TaskQualify)

	require.True(t, res.Available)
	require.Equal(t, "b", res.Provider)
	require.JSONEq(t, `{"coherence": 0.5}`, string(res.JSON))
	require.Len(t, res.Attempts, 2)
	require.Equal(t, string(KindTimeout), res.Attempts[0].Outcome)
	require.Less(t, time.Since(start), time.Second)
}

func TestCompleteZeroProvidersIsUnavailable(t *testing.T) {
	t.Parallel()

	res := NewService(nil, Config{Budget: time.Second}, nil).Complete(context.Background(), "p", TaskQualify)
	require.False(t, res.Available)
	require.Empty(t, res.Attempts)
}

func TestCompleteRateWindowFailsOverWithoutWaiting(t *testing.T) {
	t.Parallel()

	a := answering("a", `{"ok":true}`)
	b := answering("b", `{"ok":true}`)
	svc := NewService([]Backend{
		NewBackend(a, 1, 1, time.Second),
		NewBackend(b, 0, 0, time.Second),
	}, Config{Budget: time.Second}, nil)

	first := svc.Complete(context.Background(), "p", TaskQualify)
	require.Equal(t, "a", first.Provider)

	second := svc.Complete(context.Background(), "p", TaskQualify)
	require.True(t, second.Available)
	require.Equal(t, "b", second.Provider)
	require.Equal(t, string(KindRateLimited), second.Attempts[0].Outcome)
	require.EqualValues(t, 1, a.calls.Load())
}

func TestCompleteRetriesTransientOnSameProvider(t *testing.T) {
	t.Parallel()

	a := &fakeProvider{name: "a", fn: func(_ context.Context, call int) (string, error) {
		if call == 1 {
			return "", &ProviderError{Provider: "a", Kind: KindServer, Status: 503, Err: errors.New("unavailable")}
		}
		return "```json\n{\"coherence\": 1}\n```", nil
	}}
	svc := NewService([]Backend{NewBackend(a, 0, 0, time.Second)}, Config{Budget: 5 * time.Second, Retries: 1}, nil)

	res := svc.Complete(context.Background(), "p", TaskQualify)
	require.True(t, res.Available)
	require.Equal(t, "a", res.Provider)
	require.Len(t, res.Attempts, 2)
	require.JSONEq(t, `{"coherence": 1}`, string(res.JSON))
}

func TestCompleteRetriesTakeLimiterTokens(t *testing.T) {
	t.Parallel()

	a := failing("a", KindServer)
	b := answering("b", `{"ok":true}`)
	svc := NewService([]Backend{
		NewBackend(a, 1, 1, time.Second),
		NewBackend(b, 0, 0, time.Second),
	}, Config{Budget: 5 * time.Second, Retries: 3}, nil)

	res := svc.Complete(context.Background(), "p", TaskQualify)
	require.True(t, res.Available)
	require.Equal(t, "b", res.Provider)
	require.EqualValues(t, 1, a.calls.Load(), "the retry found the bucket empty")
	require.Len(t, res.Attempts, 3)
	require.Equal(t, string(KindServer), res.Attempts[0].Outcome)
	require.Equal(t, string(KindRateLimited), res.Attempts[1].Outcome)
	require.Equal(t, "ok", res.Attempts[2].Outcome)
}

func TestCompleteDoesNotRetryAuthOrBadOutput(t *testing.T) {
	t.Parallel()

	a := failing("a", KindAuth)
	b := answering("b", "sorry, I cannot help with that")
	c := answering("c", `{"coherence": -1}`)
	svc := NewService([]Backend{
		NewBackend(a, 0, 0, time.Second),
		NewBackend(b, 0, 0, time.Second),
		NewBackend(c, 0, 0, time.Second),
	}, Config{Budget: 5 * time.Second, Retries: 3}, nil)

	res := svc.Complete(context.Background(), "p", TaskQualify)
	require.True(t, res.Available)
	require.Equal(t, "c", res.Provider)
	require.EqualValues(t, 1, a.calls.Load())
	require.EqualValues(t, 1, b.calls.Load())
	require.Equal(t, string(KindAuth), res.Attempts[0].Outcome)
	require.Equal(t, string(KindBadOutput), res.Attempts[1].Outcome)
}

func TestCompleteAllFailReturnsAttempts(t *testing.T) {
	t.Parallel()

	svc := NewService([]Backend{
		NewBackend(failing("a", KindTransport), 0, 0, time.Second),
		NewBackend(failing("b", KindRateLimited), 0, 0, time.Second),
	}, Config{Budget: time.Second}, nil)

	res := svc.Complete(context.Background(), "p", TaskQualify)
	require.False(t, res.Available)
	require.Len(t, res.Attempts, 2)
	require.Equal(t, []string{"a", "b"}, svc.Providers())
}

func TestCompleteRespectsBudget(t *testing.T) {
	t.Parallel()

	a := blocking("a")
	b := answering("b", `{}`)
	svc := NewService([]Backend{
		NewBackend(a, 0, 0, 10*time.Second),
		NewBackend(b, 0, 0, time.Second),
	}, Config{Budget: 100 * time.Millisecond}, nil)

	start := time.Now()
	res := svc.Complete(context.Background(), "p", TaskQualify)
	require.False(t, res.Available)
	require.Less(t, time.Since(start), time.Second)
	require.Zero(t, b.calls.Load())
}

func TestCompleteTextTaskSkipsJSONValidation(t *testing.T) {
	t.Parallel()

	svc := NewService([]Backend{NewBackend(answering("a", "plain words"), 0, 0, time.Second)}, Config{Budget: time.Second}, nil)
	res := svc.Complete(context.Background(), "p", TaskText)
	require.True(t, res.Available)
	require.Equal(t, "plain words", res.Text)
	require.Nil(t, res.JSON)
}

func TestNormalizeJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name, in, want string
		wantErr        bool
	}{
		{name: "bare", in: `{"a":1}`, want: `{"a":1}`},
		{name: "fenced", in: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "prose around", in: "Sure! {\"a\":{\"b\":2}} hope that helps", want: `{"a":{"b":2}}`},
		{name: "no object", in: "nothing here", wantErr: true},
		{name: "broken", in: `{"a":}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizeJSON(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidJSON)
				return
			}
			require.NoError(t, err)
			require.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestBackoffPolicy(t *testing.T) {
	t.Parallel()

	p := NewBackoffPolicy(2)
	server := &ProviderError{Kind: KindServer, Err: errors.New("x")}
	require.True(t, p.ShouldRetry(server, 0))
	require.True(t, p.ShouldRetry(server, 1))
	require.False(t, p.ShouldRetry(server, 2))
	require.False(t, p.ShouldRetry(&ProviderError{Kind: KindAuth, Err: errors.New("x")}, 0))
	require.False(t, p.ShouldRetry(errors.New("plain"), 0))
	for i := 0; i < 6; i++ {
		require.LessOrEqual(t, p.Backoff(i), 3*time.Second)
	}
}
