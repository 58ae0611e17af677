// Package ingest drives one run of the zip rotation: resume from the last
// checkpoint, fetch zips until the run's quota or the first failure, upload
// the collected businesses and append a new checkpoint.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/yelp-ingest/pkg/checkpoint"
	"github.com/Sternrassler/yelp-ingest/pkg/entity"
	"github.com/Sternrassler/yelp-ingest/pkg/pagination"
	"github.com/Sternrassler/yelp-ingest/pkg/zipqueue"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for ingest runs.
var (
	yelpZipsSearchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yelp_zips_searched_total",
		Help: "Total zips searched by outcome",
	}, []string{"outcome"})

	yelpEntitiesUpsertedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yelp_entities_upserted_total",
		Help: "Total businesses submitted to the entity store",
	})

	yelpIngestRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yelp_ingest_runs_total",
		Help: "Total ingest runs by outcome",
	}, []string{"outcome"})
)

// DefaultMaxZips is the number of successfully fetched zips per run.
const DefaultMaxZips = 10

// ZipFetcher collects the businesses of one zip.
type ZipFetcher interface {
	FetchZip(ctx context.Context, zip string) pagination.ZipResult
}

// EntityWriter upserts businesses keyed by hash_id in one batch and returns
// the number submitted.
type EntityWriter interface {
	UpsertBusinesses(ctx context.Context, businesses []entity.Business) (int, error)
}

// Config holds runner configuration.
type Config struct {
	// Op names the checkpoint stream
	Op string
	// MaxZips is the number of successful zips after which the run stops
	MaxZips int
}

// DefaultConfig returns the restaurant ingest configuration.
func DefaultConfig() Config {
	return Config{
		Op:      checkpoint.DefaultOp,
		MaxZips: DefaultMaxZips,
	}
}

// Report summarizes a run.
type Report struct {
	// RunID correlates the log lines of one run
	RunID string
	// Searches lists every zip requested, including a failing one
	Searches []string
	// Entities is the number of businesses collected before dedupe
	Entities int
	// ZipsCompleted counts zips fetched without error
	ZipsCompleted int
	// FetchErr is the error that ended the fetch phase early, if any
	FetchErr error
	// Written is the number of businesses submitted to the writer
	Written int
}

// Runner executes ingest runs.
type Runner struct {
	config      Config
	queue       *zipqueue.Queue
	fetcher     ZipFetcher
	checkpoints checkpoint.Store
	writer      EntityWriter
	logger      zerolog.Logger
	now         func() time.Time
}

// NewRunner creates a runner.
func NewRunner(
	config Config,
	queue *zipqueue.Queue,
	fetcher ZipFetcher,
	checkpoints checkpoint.Store,
	writer EntityWriter,
	logger zerolog.Logger,
) *Runner {
	if config.Op == "" {
		config.Op = checkpoint.DefaultOp
	}
	if config.MaxZips <= 0 {
		config.MaxZips = DefaultMaxZips
	}
	return &Runner{
		config:      config,
		queue:       queue,
		fetcher:     fetcher,
		checkpoints: checkpoints,
		writer:      writer,
		logger:      logger.With().Str("component", "ingest").Str("op", config.Op).Logger(),
		now:         time.Now,
	}
}

// PickNext returns the first zip of the next run: the zip after the last
// search of the latest checkpoint, or the head of the queue when there is no
// checkpoint. A last search that is no longer in the queue restarts the
// rotation at the head.
func (r *Runner) PickNext(ctx context.Context) (string, error) {
	if r.queue.Len() == 0 {
		return "", errors.New("zip queue is empty")
	}

	last, err := r.checkpoints.Last(ctx, r.config.Op)
	if err != nil {
		return "", fmt.Errorf("load last checkpoint: %w", err)
	}

	prev, ok := last.LastSearch()
	if !ok {
		r.logger.Info().Msg("No previous checkpoint, starting at head of rotation")
		prev = r.queue.Get(-1)
	}

	next, err := r.queue.PickNext(prev)
	if errors.Is(err, zipqueue.ErrNotInQueue) {
		r.logger.Warn().
			Str("last_search", prev).
			Msg("Last search not in rotation, starting at head")
		return r.queue.Get(0), nil
	}
	if err != nil {
		return "", err
	}

	r.logger.Info().
		Str("last_search", prev).
		Time("last_run", last.Date).
		Str("next", next).
		Msg("Resuming rotation")
	return next, nil
}

// Run performs one ingest run. A failed zip ends the fetch phase but the
// run still uploads what it collected and saves a checkpoint; the error is
// reported in Report.FetchErr. A malformed record, a write failure or a
// checkpoint failure is returned as error.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	start := r.now()
	report := Report{RunID: uuid.NewString()}
	logger := r.logger.With().Str("run_id", report.RunID).Logger()

	zip, err := r.PickNext(ctx)
	if err != nil {
		yelpIngestRunsTotal.WithLabelValues("failed").Inc()
		return report, err
	}

	var collected []entity.Business
	for report.ZipsCompleted < r.config.MaxZips {
		report.Searches = append(report.Searches, zip)

		result := r.fetcher.FetchZip(ctx, zip)
		collected = append(collected, result.Entities...)

		if result.Fatal() {
			yelpZipsSearchedTotal.WithLabelValues("fatal").Inc()
			yelpIngestRunsTotal.WithLabelValues("failed").Inc()
			report.Entities = len(collected)
			return report, fmt.Errorf("zip %s: %w", zip, result.Err)
		}
		if !result.OK() {
			yelpZipsSearchedTotal.WithLabelValues("failed").Inc()
			report.FetchErr = result.Err
			logger.Warn().
				Err(result.Err).
				Str("zip", zip).
				Int("partial_entities", len(result.Entities)).
				Msg("Zip failed, ending fetch phase")
			break
		}

		yelpZipsSearchedTotal.WithLabelValues("ok").Inc()
		report.ZipsCompleted++

		next, err := r.queue.PickNext(zip)
		if err != nil {
			yelpIngestRunsTotal.WithLabelValues("failed").Inc()
			return report, err
		}
		zip = next
	}
	report.Entities = len(collected)

	// a cancelled run still persists what it fetched
	persistCtx := context.WithoutCancel(ctx)

	written, err := r.Upload(persistCtx, collected)
	if err != nil {
		yelpIngestRunsTotal.WithLabelValues("failed").Inc()
		return report, err
	}
	report.Written = written

	cp := checkpoint.New(r.config.Op, report.Searches, r.now().UTC())
	if err := r.checkpoints.Save(persistCtx, cp); err != nil {
		yelpIngestRunsTotal.WithLabelValues("failed").Inc()
		return report, fmt.Errorf("save checkpoint: %w", err)
	}

	outcome := "ok"
	if report.FetchErr != nil {
		outcome = "partial"
	}
	yelpIngestRunsTotal.WithLabelValues(outcome).Inc()

	logger.Info().
		Strs("searches", report.Searches).
		Int("zips_completed", report.ZipsCompleted).
		Int("entities", report.Entities).
		Int("written", report.Written).
		Bool("partial", report.FetchErr != nil).
		Dur("duration", r.now().Sub(start)).
		Msg("Ingest run complete")

	return report, nil
}

// Upload dedupes businesses by hash_id and writes them in one batch. An
// empty batch is logged and skipped.
func (r *Runner) Upload(ctx context.Context, businesses []entity.Business) (int, error) {
	batch := entity.Dedupe(businesses)
	if len(batch) == 0 {
		r.logger.Warn().Msg("No businesses to upload")
		return 0, nil
	}
	if dropped := len(businesses) - len(batch); dropped > 0 {
		r.logger.Debug().Int("duplicates", dropped).Msg("Collapsed duplicate businesses")
	}

	written, err := r.writer.UpsertBusinesses(ctx, batch)
	if err != nil {
		return 0, fmt.Errorf("upsert businesses: %w", err)
	}
	yelpEntitiesUpsertedTotal.Add(float64(written))

	r.logger.Info().Int("count", written).Msg("Uploaded businesses")
	return written, nil
}
