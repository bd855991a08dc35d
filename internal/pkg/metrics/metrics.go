package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "portfolio_aggregator"

var (
	UpstreamRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_requests_total",
		Help:      "Upstream HTTP requests by provider and outcome.",
	}, []string{"provider", "outcome"})

	UpstreamRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_retries_total",
		Help:      "Retries scheduled after a retryable upstream failure.",
	}, []string{"provider"})

	UpstreamLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "upstream_request_duration_seconds",
		Help:      "Latency of single upstream HTTP requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"provider"})

	RateLimitWait = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "rate_limit_wait_seconds",
		Help:      "Time spent waiting for rate limiter admission.",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5},
	}, []string{"provider"})

	CacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_lookups_total",
		Help:      "Cache lookups by namespace and result (hit, miss, bypass).",
	}, []string{"namespace", "result"})

	PartitionFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "partition_failures_total",
		Help:      "Provider partitions that failed during aggregation.",
	}, []string{"provider"})
)

var registerOnce sync.Once

// MustRegisterMetrics registers every collector with the default registry.
func MustRegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			UpstreamRequests,
			UpstreamRetries,
			UpstreamLatency,
			RateLimitWait,
			CacheLookups,
			PartitionFailures,
		)
	})
}

// ObserveWait returns a limiter wait observer bound to provider.
func ObserveWait(provider string) func(time.Duration) {
	h := RateLimitWait.WithLabelValues(provider)
	return func(d time.Duration) { h.Observe(d.Seconds()) }
}

// CountRetry returns a retry hook bound to provider.
func CountRetry(provider string) func() {
	c := UpstreamRetries.WithLabelValues(provider)
	return func() { c.Inc() }
}
