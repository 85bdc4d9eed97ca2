// Package metrics exposes Prometheus collectors for the lead pipeline.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	searchesTotal              *prometheus.CounterVec
	leadsTotal                 *prometheus.CounterVec
	sourceRunsTotal            *prometheus.CounterVec
	aiAttemptsTotal            *prometheus.CounterVec
	qualificationsTotal        *prometheus.CounterVec
	hotLeadsTotal              prometheus.Counter
	analysisDurationSeconds    prometheus.Histogram
	analyzerTLSFailuresTotal   prometheus.Counter
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	tasksTotal                 *prometheus.CounterVec
	activeWorkers              prometheus.Gauge
	rateLimitDelaysSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times; every observer calls it.
func Init() {
	once.Do(func() {
		searchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadpipe_searches_total",
				Help: "Total number of search cycles, labeled by trigger.",
			},
			[]string{"trigger"},
		)

		leadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadpipe_leads_total",
				Help: "Leads seen by the finder, labeled by source type and result (found, created, updated, duplicate).",
			},
			[]string{"source_type", "result"},
		)

		sourceRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadpipe_source_runs_total",
				Help: "Source runs per search cycle, labeled by source type and status.",
			},
			[]string{"source_type", "status"},
		)

		aiAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadpipe_ai_attempts_total",
				Help: "AI provider attempts, labeled by provider and outcome.",
			},
			[]string{"provider", "outcome"},
		)

		qualificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadpipe_qualifications_total",
				Help: "Qualification runs, labeled by resulting status.",
			},
			[]string{"status"},
		)

		hotLeadsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "leadpipe_hot_leads_total",
				Help: "Leads that crossed the hot threshold.",
			},
		)

		analysisDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "leadpipe_analysis_duration_seconds",
				Help:    "Histogram of website analysis durations.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20},
			},
		)

		analyzerTLSFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "leadpipe_analyzer_tls_failures_total",
				Help: "TLS handshakes that failed or timed out while probing sites.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		tasksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadpipe_tasks_total",
				Help: "Qualification tasks processed, labeled by outcome.",
			},
			[]string{"status"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "leadpipe_active_workers",
				Help: "Number of workers currently qualifying a lead.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "leadpipe_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveSearch counts one search cycle.
func ObserveSearch(trigger string) {
	Init()
	searchesTotal.WithLabelValues(trigger).Inc()
}

// ObserveLeads adds n to the finder counter for the given result.
func ObserveLeads(sourceType, result string, n int) {
	if n <= 0 {
		return
	}
	Init()
	leadsTotal.WithLabelValues(sourceType, result).Add(float64(n))
}

// ObserveSourceRun counts a source run outcome (ok, failed, skipped).
func ObserveSourceRun(sourceType, status string) {
	Init()
	sourceRunsTotal.WithLabelValues(sourceType, status).Inc()
}

// ObserveAIAttempt counts one provider attempt.
func ObserveAIAttempt(provider, outcome string) {
	Init()
	aiAttemptsTotal.WithLabelValues(provider, outcome).Inc()
}

// ObserveQualification counts a qualification result.
func ObserveQualification(status string, hot bool) {
	Init()
	qualificationsTotal.WithLabelValues(status).Inc()
	if hot {
		hotLeadsTotal.Inc()
	}
}

// ObserveAnalysis records how long a website analysis took.
func ObserveAnalysis(duration time.Duration) {
	Init()
	analysisDurationSeconds.Observe(duration.Seconds())
}

// ObserveTLSFailure increments the analyzer TLS failure counter.
func ObserveTLSFailure() {
	Init()
	analyzerTLSFailuresTotal.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveTask counts a finished qualification task.
func ObserveTask(status string) {
	Init()
	tasksTotal.WithLabelValues(status).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
