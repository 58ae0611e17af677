// Package metrics exposes the ingest's Prometheus metrics over HTTP.
// All metrics are defined in their respective packages (client, cache,
// ratelimit, pagination, ingest) to maintain modularity and avoid circular
// dependencies.
//
// This package provides the listener and documentation for all available metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry is the default Prometheus registry used by the ingest.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - yelp_requests_total{status} (Counter): Search requests by HTTP status, "cached", "network_error" or "budget_blocked"
//   - yelp_request_duration_seconds (Histogram): Search request duration
//   - yelp_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network, decode, budget)
//
// Cache Metrics (pkg/cache):
//   - yelp_cache_hits_total (Counter): Pages served from Redis
//   - yelp_cache_misses_total (Counter): Cache misses
//   - yelp_cache_errors_total{operation} (Counter): Cache operation errors
//
// Budget Metrics (pkg/ratelimit):
//   - yelp_budget_remaining (Gauge): Calls left in today's budget
//   - yelp_budget_blocks_total (Counter): Requests refused by the budget
//
// Fetch Metrics (pkg/pagination):
//   - yelp_pages_fetched_total (Counter): Result pages fetched
//
// Run Metrics (pkg/ingest):
//   - yelp_zips_searched_total{outcome} (Counter): Zips by outcome (ok, failed, fatal)
//   - yelp_entities_upserted_total (Counter): Businesses submitted to the store
//   - yelp_ingest_runs_total{outcome} (Counter): Runs by outcome (ok, partial, failed)
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(yelp_cache_hits_total[1d])) /
//   (sum(rate(yelp_cache_hits_total[1d])) + sum(rate(yelp_cache_misses_total[1d])))
//
//   # Budget nearly used up
//   yelp_budget_remaining < 500
//
//   # Partial runs
//   increase(yelp_ingest_runs_total{outcome="partial"}[7d])

// NewRouter returns a router serving /metrics and /healthz.
func NewRouter(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return router
}

// Serve runs the metrics listener on addr until ctx is done.
func Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(nil),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("Metrics listener started")
		errChan <- srv.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		logger.Debug().Msg("Metrics listener stopped")
		return nil
	}
}
