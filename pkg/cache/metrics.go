package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits counts search pages served from Redis
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "yelp_cache_hits_total",
			Help: "Total number of search pages served from cache",
		},
	)

	// CacheMisses counts lookups that fell through to the API
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "yelp_cache_misses_total",
			Help: "Total number of search page cache misses",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yelp_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
