// Package metrics exposes Prometheus collectors for the ingestion and matching pipeline.
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
	ingestItemsTotal           *prometheus.CounterVec
	ingestRunsTotal            *prometheus.CounterVec
	sourceFailuresTotal        *prometheus.CounterVec
	fetchPagesTotal            *prometheus.CounterVec
	fetchBytesTotal            *prometheus.CounterVec
	classifierDurationSeconds  *prometheus.HistogramVec
	matchesTotal               *prometheus.CounterVec
	fanoutFailuresTotal        *prometheus.CounterVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		ingestItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regwatch_ingest_items_total",
				Help: "Candidate items handled by ingestion, labeled by source and outcome.",
			},
			[]string{"source", "outcome"},
		)

		ingestRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regwatch_ingest_runs_total",
				Help: "Completed ingestion runs, labeled by status.",
			},
			[]string{"status"},
		)

		sourceFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regwatch_source_failures_total",
				Help: "Sources that could not be collected, labeled by source.",
			},
			[]string{"source"},
		)

		fetchPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regwatch_fetch_pages_total",
				Help: "Pages fetched, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regwatch_fetch_bytes_total",
				Help: "Bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		classifierDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "regwatch_classifier_duration_seconds",
				Help:    "Latency of inference calls, labeled by result kind.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 60},
			},
			[]string{"result"},
		)

		matchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regwatch_matches_total",
				Help: "Watch list evaluations, labeled by mode and status.",
			},
			[]string{"mode", "status"},
		)

		fanoutFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regwatch_fanout_failures_total",
				Help: "Best-effort fan-out side effects that failed, labeled by action.",
			},
			[]string{"action"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "regwatch_rate_limit_delays_seconds",
				Help:    "Histogram of per-host politeness waits.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
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

// ObserveItem counts one candidate item outcome.
func ObserveItem(source, outcome string) {
	Init()
	ingestItemsTotal.WithLabelValues(source, outcome).Inc()
}

// ObserveRun counts one finished ingestion run.
func ObserveRun(status string) {
	Init()
	ingestRunsTotal.WithLabelValues(status).Inc()
}

// ObserveSourceFailure counts a source that failed to collect.
func ObserveSourceFailure(source string) {
	Init()
	sourceFailuresTotal.WithLabelValues(source).Inc()
}

// ObserveFetch counts one page fetch.
func ObserveFetch(rawURL string, status string, bytesFetched int) {
	Init()
	site := SanitizeSite(rawURL)
	fetchPagesTotal.WithLabelValues(site, status).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
}

// ObserveClassification records the latency of one inference call.
func ObserveClassification(result string, duration time.Duration) {
	Init()
	classifierDurationSeconds.WithLabelValues(result).Observe(duration.Seconds())
}

// ObserveMatch counts one watch list evaluation.
func ObserveMatch(mode, status string) {
	Init()
	matchesTotal.WithLabelValues(mode, status).Inc()
}

// ObserveFanOutFailure counts one failed side effect.
func ObserveFanOutFailure(action string) {
	Init()
	fanoutFailuresTotal.WithLabelValues(action).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
