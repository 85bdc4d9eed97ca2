// Package analyzer scores a lead's website on TLS, performance, mobile
// readiness and basic SEO, and lists what could be improved.
package analyzer

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"math"
	"net"
	"net/url"
	"strings"
	"time"

	collyfetcher "github.com/JakeFAU/leadpipe/internal/fetcher/colly"
	"github.com/JakeFAU/leadpipe/internal/lead"
	"github.com/JakeFAU/leadpipe/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PageFetcher fetches the page under analysis.
type PageFetcher interface {
	Fetch(ctx context.Context, req collyfetcher.Request) (collyfetcher.Page, error)
}

// Weights scale each check in the overall score. They are normalized, so
// only their ratios matter.
type Weights struct {
	TLS         float64
	Performance float64
	Mobile      float64
	SEO         float64
}

// Config tunes the analyzer.
type Config struct {
	Weights        Weights
	CheckThreshold int
	Timeout        time.Duration
	// RootCAs overrides the system pool for TLS verification.
	RootCAs *x509.CertPool
	Now     func() time.Time
}

// expiryWindow is how close to expiry a certificate may be before it is flagged.
const expiryWindow = 14 * 24 * time.Hour

// Analyzer runs website checks.
type Analyzer struct {
	fetcher PageFetcher
	cfg     Config
	logger  *zap.Logger
}

// New constructs an Analyzer.
func New(fetcher PageFetcher, cfg Config, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := cfg.Weights
	if w.TLS+w.Performance+w.Mobile+w.SEO <= 0 {
		cfg.Weights = Weights{TLS: 0.25, Performance: 0.25, Mobile: 0.25, SEO: 0.25}
	}
	if cfg.CheckThreshold <= 0 {
		cfg.CheckThreshold = 70
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Analyzer{fetcher: fetcher, cfg: cfg, logger: logger.Named("analyzer")}
}

type tlsCheck struct {
	notAfter time.Time
	err      error
}

type pageCheck struct {
	page     collyfetcher.Page
	duration time.Duration
	err      error
}

// Analyze checks rawURL. It never fails: problems become issues, and a site
// that can be neither dialed nor fetched scores zero with a single
// "unreachable" issue.
func (a *Analyzer) Analyze(ctx context.Context, rawURL string) lead.WebsiteAnalysis {
	start := time.Now()
	defer func() { metrics.ObserveAnalysis(time.Since(start)) }()

	result := lead.WebsiteAnalysis{URL: rawURL, AnalyzedAt: a.cfg.Now()}
	target, err := normalizeURL(rawURL)
	if err != nil {
		result.Issues = []lead.Issue{issueFor(codeUnreachable)}
		result.Suggestions = suggestionsFor(result.Issues)
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	var (
		tp tlsCheck
		pp pageCheck
		g  errgroup.Group
	)
	g.Go(func() error {
		tp.notAfter, tp.err = a.dialTLS(ctx, target)
		return nil
	})
	g.Go(func() error {
		begin := time.Now()
		pp.page, pp.err = a.fetcher.Fetch(ctx, collyfetcher.Request{URL: target.String()})
		pp.duration = pp.page.Duration
		if pp.duration == 0 {
			pp.duration = time.Since(begin)
		}
		return nil
	})
	_ = g.Wait()

	logger := a.logger.With(zap.String("url", target.String()))
	if tp.err != nil && pp.err != nil {
		logger.Info("website unreachable", zap.NamedError("tls_error", tp.err), zap.NamedError("fetch_error", pp.err))
		result.Issues = []lead.Issue{issueFor(codeUnreachable)}
		result.Suggestions = suggestionsFor(result.Issues)
		return result
	}
	if tp.err != nil {
		metrics.ObserveTLSFailure()
		logger.Debug("tls check failed", zap.Error(tp.err))
	}
	if pp.err != nil {
		logger.Debug("page fetch failed", zap.Error(pp.err))
	}

	var (
		checks   lead.CheckScores
		findings []finding
	)
	checks.TLS, findings = a.scoreTLS(tp, findings)
	if pp.err != nil {
		findings = append(findings, finding{check: checkPerformance, issue: issueFor(codePageUnavailable)})
	} else {
		doc := parseDocument(pp.page.Body)
		checks.Performance, findings = scorePerformance(pp.duration, findings)
		checks.Mobile, findings = scoreMobile(doc, findings)
		checks.SEO, findings = scoreSEO(doc, findings)
		findings = append(findings, extraFindings(doc)...)
		result.Technologies, result.CMS = detectTechnologies(string(pp.page.Body))
		result.LoadTimeMS = pp.duration.Milliseconds()
	}

	result.Checks = checks
	result.OverallScore = a.overall(checks)
	result.Issues = issuesOf(findings)
	result.Suggestions = suggestionsFor(belowThreshold(findings, checks, a.cfg.CheckThreshold))
	return result
}

func (a *Analyzer) scoreTLS(tp tlsCheck, findings []finding) (int, []finding) {
	switch {
	case tp.err != nil:
		return 0, append(findings, finding{check: checkTLS, issue: issueFor(codeNoTLS)})
	case tp.notAfter.Sub(a.cfg.Now()) < expiryWindow:
		return 60, append(findings, finding{check: checkTLS, issue: issueFor(codeTLSExpiring)})
	default:
		return 100, findings
	}
}

func (a *Analyzer) overall(c lead.CheckScores) int {
	w := a.cfg.Weights
	sum := w.TLS + w.Performance + w.Mobile + w.SEO
	total := (w.TLS*float64(c.TLS) + w.Performance*float64(c.Performance) +
		w.Mobile*float64(c.Mobile) + w.SEO*float64(c.SEO)) / sum
	return clamp(int(math.Round(total)), 0, 100)
}

func (a *Analyzer) dialTLS(ctx context.Context, target *url.URL) (time.Time, error) {
	host := target.Hostname()
	port := "443"
	if target.Scheme == "https" && target.Port() != "" {
		port = target.Port()
	}
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: 10 * time.Second},
		Config: &tls.Config{
			ServerName: host,
			RootCAs:    a.cfg.RootCAs,
			MinVersion: tls.VersionTLS12,
		},
	}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		return time.Time{}, fmt.Errorf("tls dial %s: %w", host, err)
	}
	defer conn.Close() //nolint:errcheck

	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		return time.Time{}, errors.New("tls dial returned a non-TLS connection")
	}
	certs := tlsConn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return time.Time{}, errors.New("no peer certificate")
	}
	return certs[0].NotAfter, nil
}

// normalizeURL defaults the scheme to https.
func normalizeURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("empty url")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("url %q has no host", raw)
	}
	return u, nil
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
