package collyfetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type stubRoundTripper struct {
	results []stubResult
	calls   int
}

type stubResult struct {
	status int
	err    error
}

func (s *stubRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	idx := min(s.calls, len(s.results)-1)
	s.calls++
	res := s.results[idx]
	if res.err != nil {
		return nil, res.err
	}
	return &http.Response{
		StatusCode: res.status,
		Body:       io.NopCloser(strings.NewReader("User-agent: *\nDisallow: /admin")),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

func fastRobots(base http.RoundTripper) *robotsTransport {
	rt := newRobotsTransport(base)
	rt.backoff = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	return rt
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer func() {
		if err := resp.Body.Close(); err != nil {
			t.Fatalf("close body: %v", err)
		}
	}()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func TestRobotsUnreachableFallsBackToAllowAll(t *testing.T) {
	t.Parallel()

	base := &stubRoundTripper{results: []stubResult{{err: context.DeadlineExceeded}}}
	rt := fastRobots(base)

	resp, err := rt.RoundTrip(httptest.NewRequest(http.MethodGet, "https://bakery.example/robots.txt", nil))
	if err != nil {
		t.Fatalf("RoundTrip returned error: %v", err)
	}
	if body := readBody(t, resp); body != allowAllRobots {
		t.Fatalf("unexpected fallback body: %q", body)
	}
	if base.calls != 4 {
		t.Fatalf("expected 4 attempts, got %d", base.calls)
	}

	var page Page
	rt.annotate(&page)
	if page.RobotsStatus != RobotsStatusIndeterminate || page.RobotsReason != robotsReasonUnreachable {
		t.Fatalf("unexpected annotation: %q %q", page.RobotsStatus, page.RobotsReason)
	}
}

func TestRobotsServerErrorIsAllowAll(t *testing.T) {
	t.Parallel()

	base := &stubRoundTripper{results: []stubResult{{status: http.StatusBadGateway}}}
	rt := fastRobots(base)

	resp, err := rt.RoundTrip(httptest.NewRequest(http.MethodGet, "https://bakery.example/robots.txt", nil))
	if err != nil {
		t.Fatalf("RoundTrip returned error: %v", err)
	}
	if body := readBody(t, resp); body != allowAllRobots {
		t.Fatalf("unexpected body: %q", body)
	}
	if base.calls != 1 {
		t.Fatalf("server errors are not retried, got %d calls", base.calls)
	}
	if rt.reason != robotsReasonServerError {
		t.Fatalf("expected reason %q, got %q", robotsReasonServerError, rt.reason)
	}
}

func TestRobotsRetrySucceeds(t *testing.T) {
	t.Parallel()

	base := &stubRoundTripper{results: []stubResult{{err: context.DeadlineExceeded}, {status: http.StatusOK}}}
	rt := fastRobots(base)

	resp, err := rt.RoundTrip(httptest.NewRequest(http.MethodGet, "https://bakery.example/robots.txt", nil))
	if err != nil {
		t.Fatalf("RoundTrip returned error: %v", err)
	}
	if body := readBody(t, resp); !strings.Contains(body, "Disallow: /admin") {
		t.Fatalf("expected the real robots.txt, got %q", body)
	}
	if base.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", base.calls)
	}

	var page Page
	rt.annotate(&page)
	if page.RobotsStatus != RobotsStatusUnknown {
		t.Fatalf("expected no annotation, got %q", page.RobotsStatus)
	}
}

func TestRobotsPermanentErrorSurfaces(t *testing.T) {
	t.Parallel()

	base := &stubRoundTripper{results: []stubResult{{err: errors.New("no such host")}}}
	rt := fastRobots(base)

	if _, err := rt.RoundTrip(httptest.NewRequest(http.MethodGet, "https://gone.example/robots.txt", nil)); err == nil {
		t.Fatal("expected error for a permanent failure")
	}
	if base.calls != 1 {
		t.Fatalf("expected a single attempt, got %d", base.calls)
	}
}

func TestRobotsTransportPassesOtherRequests(t *testing.T) {
	t.Parallel()

	base := &stubRoundTripper{results: []stubResult{{status: http.StatusServiceUnavailable}}}
	rt := fastRobots(base)

	resp, err := rt.RoundTrip(httptest.NewRequest(http.MethodGet, "https://bakery.example/", nil))
	if err != nil {
		t.Fatalf("RoundTrip returned error: %v", err)
	}
	_ = readBody(t, resp)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected status to pass through, got %d", resp.StatusCode)
	}
	if rt.status != RobotsStatusUnknown {
		t.Fatalf("page errors must not mark robots, got %q", rt.status)
	}
}
