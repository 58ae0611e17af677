// Command yelp-ingest runs one pass of the restaurant zip rotation: it
// resumes after the last recorded zip, fetches the configured number of zips,
// upserts the businesses and records a checkpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/yelp-ingest/internal/config"
	"github.com/Sternrassler/yelp-ingest/pkg/cache"
	"github.com/Sternrassler/yelp-ingest/pkg/checkpoint"
	"github.com/Sternrassler/yelp-ingest/pkg/client"
	"github.com/Sternrassler/yelp-ingest/pkg/ingest"
	"github.com/Sternrassler/yelp-ingest/pkg/logging"
	"github.com/Sternrassler/yelp-ingest/pkg/metrics"
	"github.com/Sternrassler/yelp-ingest/pkg/pagination"
	"github.com/Sternrassler/yelp-ingest/pkg/ratelimit"
	mongostore "github.com/Sternrassler/yelp-ingest/pkg/store/mongo"
	pgstore "github.com/Sternrassler/yelp-ingest/pkg/store/postgres"
	"github.com/Sternrassler/yelp-ingest/pkg/zipqueue"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "yelp-ingest:", err)
		os.Exit(1)
	}
}

// parseConfig loads the environment and applies flag overrides.
func parseConfig(args []string, output io.Writer) (config.Config, error) {
	cfg := config.Load()

	fs := flag.NewFlagSet("yelp-ingest", flag.ContinueOnError)
	fs.SetOutput(output)
	cfg.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// stores bundles the writer and checkpoint store of one driver.
type stores struct {
	entities    ingest.EntityWriter
	checkpoints checkpoint.Store
	close       func()
}

func run(ctx context.Context, args []string, stderr io.Writer) error {
	cfg, err := parseConfig(args, stderr)
	if err != nil {
		return err
	}

	logger := logging.Setup(logging.Config{
		Level:   logging.LogLevel(cfg.LogLevel),
		Pretty:  cfg.Notebook,
		Output:  stderr,
		Service: "yelp-ingest",
	})

	ranges, err := cfg.Ranges()
	if err != nil {
		return err
	}
	queue := zipqueue.New(ranges...)
	logger.Info().
		Int("zips", queue.Len()).
		Int("ranges", len(ranges)).
		Int("max_zips", cfg.MaxZips).
		Str("store", cfg.StoreDriver).
		Msg("Starting ingest run")

	if cfg.MetricsAddr != "" {
		metricsCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := metrics.Serve(metricsCtx, cfg.MetricsAddr, logging.Component(logger, "metrics")); err != nil {
				logger.Error().Err(err).Msg("Metrics listener failed")
			}
		}()
	}

	clientCfg := client.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL
	clientCfg.Timeout = cfg.HTTPTimeout
	clientCfg.Logger = logger

	if cfg.RedisURL != "" {
		rdb, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		clientCfg.Cache = cache.NewManager(rdb, cfg.CacheTTL)
		clientCfg.Budget = ratelimit.NewTracker(rdb, cfg.DailyBudget, logging.Component(logger, "budget"))
		logger.Info().Dur("cache_ttl", cfg.CacheTTL).Int("daily_budget", cfg.DailyBudget).Msg("Redis cache and budget enabled")
	}

	searchClient, err := client.New(clientCfg)
	if err != nil {
		return err
	}

	fetchCfg := pagination.DefaultConfig()
	fetchCfg.Delay = cfg.Delay
	fetchCfg.Progress = cfg.Notebook
	fetcher := pagination.NewFetcher(searchClient, fetchCfg, logger)

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	runner := ingest.NewRunner(ingest.Config{Op: cfg.Op, MaxZips: cfg.MaxZips},
		queue, fetcher, st.checkpoints, st.entities, logger)

	report, err := runner.Run(ctx)
	if err != nil {
		logger.Error().Err(err).Str("run_id", report.RunID).Strs("searches", report.Searches).Msg("Ingest run failed")
		return err
	}
	if report.FetchErr != nil {
		logger.Warn().
			Err(report.FetchErr).
			Str("run_id", report.RunID).
			Int("zips_completed", report.ZipsCompleted).
			Msg("Ingest run ended early")
	}
	return nil
}

// openRedis connects to REDIS_URL and checks it is reachable.
func openRedis(ctx context.Context, raw string) (*redis.Client, error) {
	opts, err := config.RedisOptions(raw)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return rdb, nil
}

func openStores(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*stores, error) {
	storeLogger := logging.Component(logger, "store")

	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := pgstore.Open(ctx, cfg.PGDSN, cfg.PGMaxConns, cfg.PGViaBouncer)
		if err != nil {
			return nil, err
		}
		s := pgstore.NewStore(pool, cfg.PGBatch)
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		storeLogger.Info().Int("batch", cfg.PGBatch).Msg("Using postgres store")
		return &stores{entities: s, checkpoints: s, close: pool.Close}, nil

	default:
		mc, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.ConnectTimeout)
		if err != nil {
			return nil, err
		}
		closeFn := func() {
			if err := mc.Disconnect(context.Background()); err != nil {
				storeLogger.Warn().Err(err).Msg("Mongo disconnect failed")
			}
		}

		db := mc.Database(cfg.MongoDatabase)
		entities := mongostore.NewEntityRepository(db, cfg.ResultCollection)
		checkpoints := mongostore.NewCheckpointRepository(db, cfg.OpsCollection)
		if err := entities.EnsureIndexes(ctx); err != nil {
			closeFn()
			return nil, err
		}
		if err := checkpoints.EnsureIndexes(ctx); err != nil {
			closeFn()
			return nil, err
		}
		storeLogger.Info().
			Str("database", cfg.MongoDatabase).
			Str("ops", cfg.OpsCollection).
			Str("results", cfg.ResultCollection).
			Msg("Using mongo store")
		return &stores{entities: entities, checkpoints: checkpoints, close: closeFn}, nil
	}
}
