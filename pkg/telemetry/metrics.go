package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus collectors for the archive server. The jsonl span telemetry
// above covers per-request debugging; these cover fleet-style dashboards.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retrospect_http_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "retrospect_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	degradedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retrospect_degraded_subqueries_total",
		Help: "Archive sub-queries that failed and degraded to an empty result.",
	}, []string{"op"})

	extractionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retrospect_extraction_total",
		Help: "Typedstream extraction outcomes by stage status.",
	}, []string{"status", "fallback"})

	cacheOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retrospect_mediacache_ops_total",
		Help: "Converted-image cache lookups by outcome.",
	}, []string{"outcome"})

	conversionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retrospect_conversions_total",
		Help: "Image conversion attempts by outcome.",
	}, []string{"outcome"})
)

func observeRequest(method, route string, status int, dur time.Duration) {
	requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	requestDuration.WithLabelValues(route).Observe(dur.Seconds())
}

// DegradedInc counts one degraded sub-query for the named operation.
func DegradedInc(op string) {
	degradedTotal.WithLabelValues(op).Inc()
}

// ExtractionInc counts one typedstream extraction outcome.
func ExtractionInc(status string, fromFallback bool) {
	fb := "false"
	if fromFallback {
		fb = "true"
	}
	extractionTotal.WithLabelValues(status, fb).Inc()
}

// CacheHit and CacheMiss count converted-image cache lookups.
func CacheHit()  { cacheOpsTotal.WithLabelValues("hit").Inc() }
func CacheMiss() { cacheOpsTotal.WithLabelValues("miss").Inc() }

// ConversionInc counts one conversion attempt; outcome is "ok", "error" or
// "timeout".
func ConversionInc(outcome string) {
	conversionsTotal.WithLabelValues(outcome).Inc()
}
