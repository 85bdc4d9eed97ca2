package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"telegram preview", "https://t.me/s/web_freelance", "t.me"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	if searchesTotal == nil || leadsTotal == nil || aiAttemptsTotal == nil || httpRequestsTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserversIncrementCounters(t *testing.T) {
	before := testutil.ToFloat64(leadsTotalFor("forum", "created"))
	ObserveLeads("forum", "created", 3)
	ObserveLeads("forum", "created", 0)
	if got := testutil.ToFloat64(leadsTotalFor("forum", "created")); got != before+3 {
		t.Errorf("expected leads counter to grow by 3, got %f -> %f", before, got)
	}

	hotBefore := testutil.ToFloat64(hotLeadsTotal)
	ObserveQualification("qualified", true)
	ObserveQualification("qualifying", false)
	if got := testutil.ToFloat64(hotLeadsTotal); got != hotBefore+1 {
		t.Errorf("expected one hot lead, got %f -> %f", hotBefore, got)
	}

	ObserveAIAttempt("groq", "rate_limited")
	if got := testutil.ToFloat64(aiAttemptsTotal.WithLabelValues("groq", "rate_limited")); got < 1 {
		t.Errorf("expected ai attempt recorded, got %f", got)
	}

	ObserveAnalysis(1500 * time.Millisecond)
	if n := testutil.CollectAndCount(analysisDurationSeconds); n != 1 {
		t.Errorf("expected analysis histogram to be collected, got %d", n)
	}
}

func leadsTotalFor(sourceType, result string) prometheus.Counter {
	Init()
	return leadsTotal.WithLabelValues(sourceType, result)
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://t.me/s/devjobs", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
