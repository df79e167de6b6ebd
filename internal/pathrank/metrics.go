package pathrank

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_path_requests_total",
		Help: "Connection path requests by outcome",
	}, []string{"outcome"})

	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_path_cache_lookups_total",
		Help: "Ranking cache lookups by result",
	}, []string{"result"}) // "hit" or "miss"

	cacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "connection_path_cache_evictions_total",
		Help: "Rankings removed from the cache by capacity, expiry or invalidation",
	})

	enumerationRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_path_enumeration_runs_total",
		Help: "Enumeration runs by result",
	}, []string{"result"})

	enumerationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "connection_path_enumeration_duration_seconds",
		Help:    "Wall time of a snapshot read plus enumeration",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
	})

	coalescedWaiters = promauto.NewCounter(prometheus.CounterOpts{
		Name: "connection_path_coalesced_waiters_total",
		Help: "Requests that joined an enumeration already in flight",
	})

	usageFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "connection_path_usage_record_failures_total",
		Help: "Usage recorder failures swallowed by the engine",
	})
)

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNodeNotFound):
		return "node_not_found"
	case errors.Is(err, ErrComputationTimeout):
		return "timeout"
	case errors.Is(err, ErrGraphStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
