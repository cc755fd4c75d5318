// Package metrics exposes the resolver's Prometheus instrumentation,
// adapted from the teacher's gRPC interceptor metrics toward the UDP
// server loop's own concerns: queries, answers, errors, cache hit rate,
// and resolution latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ripd_queries_total", Help: "Total queries received on the UDP listener",
	})
	AnswersTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ripd_answers_total", Help: "Total queries answered with RCODE NOERROR",
	})
	ErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ripd_errors_total", Help: "Total non-NOERROR responses, by RCODE",
	}, []string{"rcode"})
	NXDomainTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ripd_nxdomain_total", Help: "Total NAME_ERROR responses",
	})
	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ripd_rate_limited_total", Help: "Total queries dropped by the per-client rate limiter",
	})
	RateLimiterTrackedClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ripd_rate_limiter_tracked_clients", Help: "Distinct client IPs currently holding a token bucket",
	})

	CacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ripd_cache_hits_total", Help: "Cache lookups satisfied without an upstream query, by record type",
	}, []string{"type"})
	CacheMisses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ripd_cache_misses_total", Help: "Cache lookups that required iterative resolution, by record type",
	}, []string{"type"})

	ResolutionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "ripd_resolution_duration_seconds", Help: "End-to-end time to answer a query", Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(
		QueriesTotal, AnswersTotal, ErrorsTotal, NXDomainTotal, RateLimitedTotal,
		RateLimiterTrackedClients, CacheHits, CacheMisses, ResolutionDuration,
	)
}

// Handler returns the promhttp handler to serve on the metrics listen
// address (§4.7/§4.8 — address configured via internal/config).
func Handler() http.Handler {
	return promhttp.Handler()
}
