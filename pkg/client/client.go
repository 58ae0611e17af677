// Package client provides the business search API client with optional
// response caching and a daily call budget.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/yelp-ingest/pkg/cache"
	"github.com/Sternrassler/yelp-ingest/pkg/entity"
	"github.com/Sternrassler/yelp-ingest/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for search requests.
var (
	yelpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yelp_requests_total",
		Help: "Total search requests by status",
	}, []string{"status"})

	yelpRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "yelp_request_duration_seconds",
		Help:    "Search request duration in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	yelpErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yelp_errors_total",
		Help: "Total search errors by class",
	}, []string{"class"})
)

const (
	// DefaultBaseURL is the public API host.
	DefaultBaseURL = "https://api.yelp.com"

	// SearchPath is the business search endpoint.
	SearchPath = "/v3/businesses/search"

	// maxErrorBody bounds how much of a failed response is kept for logs.
	maxErrorBody = 4 << 10
)

// Config holds the client configuration.
type Config struct {
	// APIKey is sent as a bearer token (REQUIRED)
	APIKey string

	// BaseURL of the API, without trailing slash
	BaseURL string

	// UserAgent header
	UserAgent string

	// Timeout per request
	Timeout time.Duration

	// Cache serves repeated searches from Redis (optional)
	Cache *cache.Manager

	// Budget caps calls per day (optional)
	Budget *ratelimit.Tracker

	// Logger receives request-level events
	Logger zerolog.Logger
}

// DefaultConfig returns a configuration for the public API.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:    apiKey,
		BaseURL:   DefaultBaseURL,
		UserAgent: "yelp-ingest/0.1.0",
		Timeout:   30 * time.Second,
		Logger:    zerolog.Nop(),
	}
}

// SearchParams are the query parameters of one search page.
type SearchParams struct {
	Location   string
	Limit      int
	Offset     int
	SortBy     string
	Categories string
	Locale     string
}

// Values encodes the parameters in the API's query format.
func (p SearchParams) Values() url.Values {
	v := url.Values{}
	v.Set("limit", strconv.Itoa(p.Limit))
	v.Set("offset", strconv.Itoa(p.Offset))
	v.Set("location", p.Location)
	if p.SortBy != "" {
		v.Set("sort_by", p.SortBy)
	}
	if p.Categories != "" {
		v.Set("categories", p.Categories)
	}
	if p.Locale != "" {
		v.Set("locale", p.Locale)
	}
	return v
}

// SearchResponse is the 200 body of a search request.
type SearchResponse struct {
	Total      int                  `json:"total"`
	Businesses []entity.RawBusiness `json:"businesses"`
}

// Client is the search API client. It is not safe for concurrent use by
// design of the ingest, though nothing in it holds mutable state.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// New creates a new search client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config: cfg,
		logger: cfg.Logger.With().Str("component", "search-client").Logger(),
	}, nil
}

// Search fetches one page of businesses. Any non-200 response is returned
// as *APIError; it is never retried.
func (c *Client) Search(ctx context.Context, params SearchParams) (*SearchResponse, error) {
	query := params.Values()
	key := cache.Key{Endpoint: SearchPath, Query: query}

	// Step 1: Serve from cache
	if c.config.Cache != nil {
		entry, err := c.config.Cache.Get(ctx, key)
		switch {
		case err == nil:
			resp, decodeErr := decodeSearch(entry.Data)
			if decodeErr == nil {
				c.logger.Debug().
					Str("zip", params.Location).
					Int("offset", params.Offset).
					Msg("Search served from cache")
				yelpRequestsTotal.WithLabelValues("cached").Inc()
				return resp, nil
			}
			c.logger.Warn().Err(decodeErr).Msg("Discarding undecodable cache entry")
			_ = c.config.Cache.Delete(ctx, key)
		case !errors.Is(err, cache.ErrCacheMiss):
			c.logger.Warn().Err(err).Msg("Cache get error")
		}
	}

	// Step 2: Reserve a call from the daily budget
	if c.config.Budget != nil {
		allowed, err := c.config.Budget.Reserve(ctx)
		if err != nil {
			yelpErrorsTotal.WithLabelValues(string(ErrorClassBudget)).Inc()
			yelpRequestsTotal.WithLabelValues("budget_blocked").Inc()
			return nil, &APIError{
				ErrorClass: ErrorClassBudget,
				Message:    "budget check failed",
				Err:        err,
			}
		}
		if !allowed {
			yelpErrorsTotal.WithLabelValues(string(ErrorClassBudget)).Inc()
			yelpRequestsTotal.WithLabelValues("budget_blocked").Inc()
			return nil, &APIError{
				ErrorClass: ErrorClassBudget,
				Message:    "request blocked",
				Err:        ErrBudgetExhausted,
			}
		}
	}

	// Step 3: Execute the request
	body, err := c.get(ctx, SearchPath, query)
	if err != nil {
		return nil, err
	}

	resp, err := decodeSearch(body)
	if err != nil {
		yelpErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return nil, &APIError{
			StatusCode: http.StatusOK,
			ErrorClass: ErrorClassDecode,
			Message:    "decode search response",
			Err:        err,
		}
	}

	// Step 4: Update cache on success
	if c.config.Cache != nil {
		if err := c.config.Cache.Set(ctx, key, body); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to cache response")
		}
	}

	return resp, nil
}

// get performs an authenticated GET and returns the 200 body.
func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	startTime := time.Now()
	defer func() {
		yelpRequestDuration.Observe(time.Since(startTime).Seconds())
	}()

	u := c.config.BaseURL + path + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	c.logger.Debug().
		Str("path", path).
		Str("query", query.Encode()).
		Msg("Executing search request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		yelpErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		yelpRequestsTotal.WithLabelValues("network_error").Inc()
		return nil, &APIError{
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			Err:        err,
		}
	}
	defer resp.Body.Close()

	yelpRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		class := ClassifyStatus(resp.StatusCode)
		yelpErrorsTotal.WithLabelValues(string(class)).Inc()
		reason, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: class,
			Message:    strings.TrimSpace(string(reason)),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		yelpErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read response body",
			Err:        err,
		}
	}
	return body, nil
}

func decodeSearch(body []byte) (*SearchResponse, error) {
	var resp SearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
