// Package collyfetcher fetches single HTML pages with gocolly. The website
// analyzer and the classifieds parser share it.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	// MaxBodyBytes truncates large pages; zero selects defaultMaxBody.
	MaxBodyBytes int
	// Transport overrides the pooled default; tests point it at httptest servers.
	Transport http.RoundTripper
}

// Request describes one page fetch.
type Request struct {
	URL     string
	Headers http.Header
	// RespectRobots overrides Config.RespectRobots when non-nil.
	RespectRobots *bool
}

// RobotsStatus records what happened when robots.txt was fetched.
type RobotsStatus string

// Robots fetch outcomes.
const (
	RobotsStatusUnknown       RobotsStatus = ""
	RobotsStatusIndeterminate RobotsStatus = "indeterminate"
)

// Page is a fetched document.
type Page struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	RobotsStatus RobotsStatus
	RobotsReason string
}

const defaultMaxBody = 4 << 20

// Fetcher performs single-page GETs through a cloned Colly collector.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	transport := cfg.Transport
	if transport == nil {
		transport = newHTTPTransport()
	}
	c.WithTransport(transport)

	return &Fetcher{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET. Non-2xx responses are errors.
func (f *Fetcher) Fetch(ctx context.Context, request Request) (Page, error) {
	var (
		result   Page
		fetchErr error
	)
	start := time.Now()
	collector, robots := f.buildCollector(request, start, &result, &fetchErr)

	if err := f.runCollector(ctx, collector, request.URL, &fetchErr); err != nil {
		return Page{}, err
	}
	robots.annotate(&result)
	return result, nil
}

func (f *Fetcher) buildCollector(
	request Request,
	start time.Time,
	result *Page,
	fetchErr *error,
) (*colly.Collector, *robotsTransport) {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	respectRobots := f.cfg.RespectRobots
	if request.RespectRobots != nil {
		respectRobots = *request.RespectRobots
	}
	collector.IgnoreRobotsTxt = !respectRobots
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	collector.MaxBodySize = f.cfg.MaxBodyBytes
	if collector.MaxBodySize <= 0 {
		collector.MaxBodySize = defaultMaxBody
	}

	var robots *robotsTransport
	if respectRobots {
		robots = newRobotsTransport(f.transport)
		collector.WithTransport(robots)
	} else {
		collector.WithTransport(f.transport)
	}

	f.configureCollectorHooks(collector, request, start, result, fetchErr)
	return collector, robots
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	request Request,
	start time.Time,
	result *Page,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		copyHeaders(request.Headers, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = Page{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			*fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func copyHeaders(headers http.Header, r *colly.Request) {
	for key, values := range headers {
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
