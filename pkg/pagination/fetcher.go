package pagination

import (
	"context"
	"errors"
	"time"

	"github.com/Sternrassler/yelp-ingest/pkg/client"
	"github.com/Sternrassler/yelp-ingest/pkg/entity"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var yelpPagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "yelp_pages_fetched_total",
	Help: "Total search result pages fetched successfully",
})

// Config holds fetcher configuration
type Config struct {
	// PageSize is the limit sent with every request
	PageSize int
	// MaxResults caps the results collected per zip (API hard limit: 1000)
	MaxResults int
	// Delay between consecutive pages
	Delay time.Duration
	// Fixed search filters
	Categories string
	SortBy     string
	Locale     string
	// Progress logs every page at info level instead of debug
	Progress bool
}

// DefaultConfig returns the restaurant search configuration.
func DefaultConfig() Config {
	return Config{
		PageSize:   50,
		MaxResults: 1000,
		Delay:      100 * time.Millisecond,
		Categories: "restaurants",
		SortBy:     "distance",
		Locale:     "en_US",
	}
}

// PageSearcher is the interface the search client must implement for
// single-page fetching.
type PageSearcher interface {
	Search(ctx context.Context, params client.SearchParams) (*client.SearchResponse, error)
}

// ZipResult is the outcome of fetching one zip. Entities holds everything
// collected before the loop ended, also when Err is set.
type ZipResult struct {
	Zip      string
	Entities []entity.Business
	Total    int
	Pages    int
	Err      error
}

// Succeeded returns a result for a zip whose pagination ran to completion.
func Succeeded(zip string, entities []entity.Business, total, pages int) ZipResult {
	return ZipResult{Zip: zip, Entities: entities, Total: total, Pages: pages}
}

// Failed returns a result for a zip whose pagination stopped on err.
func Failed(zip string, entities []entity.Business, pages int, err error) ZipResult {
	return ZipResult{Zip: zip, Entities: entities, Pages: pages, Err: err}
}

// OK reports whether the zip was fetched without error.
func (r ZipResult) OK() bool {
	return r.Err == nil
}

// Fatal reports whether the result carries a record that could not be
// normalized. Such a run must not upload anything.
func (r ZipResult) Fatal() bool {
	var normErr *entity.NormalizeError
	return errors.As(r.Err, &normErr)
}

// Fetcher walks the search pages of one zip at a time.
type Fetcher struct {
	searcher PageSearcher
	config   Config
	logger   zerolog.Logger

	// OnError is called once for a request that ended the pagination.
	// The default logs the error.
	OnError func(zip string, offset int, err error)

	// sleep waits between pages; replaced in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// NewFetcher creates a new fetcher.
func NewFetcher(searcher PageSearcher, config Config, logger zerolog.Logger) *Fetcher {
	defaults := DefaultConfig()
	if config.PageSize <= 0 {
		config.PageSize = defaults.PageSize
	}
	if config.MaxResults <= 0 {
		config.MaxResults = defaults.MaxResults
	}
	if config.Delay < 0 {
		config.Delay = 0
	}

	f := &Fetcher{
		searcher: searcher,
		config:   config,
		logger:   logger.With().Str("component", "fetcher").Logger(),
		sleep:    sleepContext,
	}
	f.OnError = f.logError
	return f
}

// FetchZip collects the businesses of zip.
func (f *Fetcher) FetchZip(ctx context.Context, zip string) ZipResult {
	start := time.Now()

	var (
		entities []entity.Business
		offset   int
		pages    int
		// unknown until the first page arrives
		total = -1
	)

	for (total < 0 || len(entities) < total) && len(entities) < f.config.MaxResults {
		resp, err := f.searcher.Search(ctx, client.SearchParams{
			Location:   zip,
			Limit:      f.config.PageSize,
			Offset:     offset,
			SortBy:     f.config.SortBy,
			Categories: f.config.Categories,
			Locale:     f.config.Locale,
		})
		if err != nil {
			f.OnError(zip, offset, err)
			return Failed(zip, entities, pages, err)
		}
		pages++
		yelpPagesFetchedTotal.Inc()
		total = resp.Total

		if len(resp.Businesses) == 0 {
			if len(entities) < total {
				f.logger.Warn().
					Str("zip", zip).
					Int("offset", offset).
					Int("total", total).
					Msg("Empty page before reported total, stopping")
			}
			break
		}

		batch, err := entity.NormalizeAll(resp.Businesses)
		entities = append(entities, batch...)
		if err != nil {
			var normErr *entity.NormalizeError
			if errors.As(err, &normErr) {
				f.logger.Error().
					Err(err).
					Str("zip", zip).
					RawJSON("record", normErr.RawJSON()).
					Msg("Malformed search result")
			}
			return Failed(zip, entities, pages, err)
		}

		offset += len(resp.Businesses)

		f.progress().
			Str("zip", zip).
			Int("current", len(entities)).
			Int("offset", offset).
			Int("total", total).
			Msg("Fetch progress")

		// no delay after the last page
		if len(entities) >= total || len(entities) >= f.config.MaxResults {
			break
		}

		if err := f.sleep(ctx, f.config.Delay); err != nil {
			f.OnError(zip, offset, err)
			return Failed(zip, entities, pages, err)
		}
	}

	f.logger.Info().
		Str("zip", zip).
		Int("entities", len(entities)).
		Int("total", max(total, 0)).
		Int("pages", pages).
		Dur("duration", time.Since(start)).
		Msg("Zip fetch complete")

	return Succeeded(zip, entities, max(total, 0), pages)
}

func (f *Fetcher) progress() *zerolog.Event {
	if f.config.Progress {
		return f.logger.Info()
	}
	return f.logger.Debug()
}

func (f *Fetcher) logError(zip string, offset int, err error) {
	event := f.logger.Error().Err(err).Str("zip", zip).Int("offset", offset)
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		event = event.
			Int("status_code", apiErr.StatusCode).
			Str("error_class", string(apiErr.ErrorClass)).
			Str("reason", apiErr.Message)
	}
	event.Msg("Search request failed, stopping zip")
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
