package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "usersvc_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "usersvc_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "usersvc_cache_lookups_total",
		Help: "Read-through cache lookups by result (hit, miss, error, bypass)",
	}, []string{"result"})

	cacheInvalidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "usersvc_cache_invalidated_keys_total",
		Help: "Keys removed by pattern invalidation",
	}, []string{"pattern"})

	cacheBreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "usersvc_cache_breaker_state",
		Help: "Cache store circuit breaker state (0 closed, 1 open, 2 half-open)",
	})

	bulkItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "usersvc_bulk_items_total",
		Help: "Submitted records by result (created, invalid, duplicate, error)",
	}, []string{"result"})

	bulkDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "usersvc_bulk_submit_duration_seconds",
		Help:    "Duration of record submissions by outcome",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveCacheLookup counts one read-through lookup.
func ObserveCacheLookup(result string) {
	cacheLookups.WithLabelValues(result).Inc()
}

// ObserveInvalidation counts the keys removed for a pattern.
func ObserveInvalidation(pattern string, removed int) {
	cacheInvalidations.WithLabelValues(pattern).Add(float64(removed))
}

// SetCacheBreakerState exposes the numeric breaker state.
func SetCacheBreakerState(state int) {
	cacheBreakerState.Set(float64(state))
}

// ObserveBulkItem counts one submitted record.
func ObserveBulkItem(result string) {
	bulkItems.WithLabelValues(result).Inc()
}

// ObserveBulkSubmit records how long a submission took.
func ObserveBulkSubmit(outcome string, duration time.Duration) {
	bulkDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}
