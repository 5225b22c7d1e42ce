package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's Prometheus metrics.
type Metrics struct {
	IngestTotal      *prometheus.CounterVec
	QueryDuration    *prometheus.HistogramVec
	CacheRequests    *prometheus.CounterVec
	RateLimitedTotal *prometheus.CounterVec
	AppsRegistered   prometheus.Counter
}

// newMetrics creates and registers all metrics on the given registerer.
// Tests pass a fresh registry so parallel service instances do not collide.
func newMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		IngestTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beacon_ingest_total",
				Help: "Total number of collect requests by outcome",
			},
			[]string{"outcome"},
		),
		QueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "beacon_query_duration_seconds",
				Help:    "Duration of aggregation queries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"query"},
		),
		CacheRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beacon_cache_requests_total",
				Help: "Aggregation cache lookups by query and result",
			},
			[]string{"query", "result"},
		),
		RateLimitedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beacon_rate_limited_total",
				Help: "Requests rejected by the rate limiter, by scope",
			},
			[]string{"scope"},
		),
		AppsRegistered: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "beacon_apps_registered_total",
				Help: "Total number of client apps registered",
			},
		),
	}
}
