package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/JakeFAU/leadpipe/internal/metrics"
)

// Reasons recorded on a page whose robots.txt could not be read.
const (
	robotsReasonUnreachable = "robots.txt unreachable"
	robotsReasonServerError = "robots.txt server error"
)

const allowAllRobots = "User-agent: *\nAllow: /"

var defaultRobotsBackoff = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

// robotsTransport lets small-business sites with a flaky robots.txt still be
// analyzed: transient failures are retried, and a robots.txt that stays
// unreachable or answers 5xx is read as allow-all. The page is then marked
// indeterminate. Every other request passes straight through.
type robotsTransport struct {
	base    http.RoundTripper
	backoff []time.Duration

	status RobotsStatus
	reason string
}

func newRobotsTransport(base http.RoundTripper) *robotsTransport {
	return &robotsTransport{base: base, backoff: defaultRobotsBackoff}
}

func (t *robotsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil || req.URL == nil {
		return nil, errors.New("robots transport: nil request")
	}
	if !strings.EqualFold(req.URL.Path, "/robots.txt") {
		resp, err := t.base.RoundTrip(req)
		if err != nil {
			return nil, fmt.Errorf("roundtrip %s: %w", req.URL.Host, err)
		}
		return resp, nil
	}

	for attempt := 0; ; attempt++ {
		resp, err := t.base.RoundTrip(req.Clone(req.Context()))
		switch {
		case err == nil && resp.StatusCode >= http.StatusInternalServerError:
			drain(resp)
			return t.allowAll(req, robotsReasonServerError), nil
		case err == nil:
			return resp, nil
		case !isTransient(err):
			return nil, fmt.Errorf("fetch robots.txt: %w", err)
		case attempt >= len(t.backoff):
			return t.allowAll(req, robotsReasonUnreachable), nil
		}
		if err := sleepCtx(req.Context(), t.backoff[attempt]); err != nil {
			return nil, fmt.Errorf("robots.txt backoff: %w", err)
		}
	}
}

func (t *robotsTransport) allowAll(req *http.Request, reason string) *http.Response {
	if t.status != RobotsStatusIndeterminate {
		t.status = RobotsStatusIndeterminate
		t.reason = reason
		metrics.ObserveTLSFailure()
	}
	return &http.Response{
		StatusCode:    http.StatusOK,
		Status:        "200 OK",
		Body:          io.NopCloser(strings.NewReader(allowAllRobots)),
		ContentLength: int64(len(allowAllRobots)),
		Header:        make(http.Header),
		Request:       req,
	}
}

// annotate copies the robots.txt outcome onto the fetched page.
func (t *robotsTransport) annotate(p *Page) {
	if t == nil || p == nil || t.status == RobotsStatusUnknown {
		return
	}
	p.RobotsStatus = t.status
	p.RobotsReason = t.reason
}

func drain(resp *http.Response) {
	if resp.Body != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// isTransient reports timeouts, including TLS handshakes that never finish.
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "tls: handshake timeout")
}
