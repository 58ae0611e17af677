//go:build integration

package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/yelp-ingest/pkg/cache"
	"github.com/Sternrassler/yelp-ingest/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedisContainer creates a Redis container for integration testing.
func setupRedisContainer(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := redisContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := redisContainer.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestIntegration_FullRequestFlow(t *testing.T) {
	redisClient, cleanup := setupRedisContainer(t)
	defer cleanup()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(searchBody))
	}))
	defer server.Close()

	cfg := DefaultConfig("integration-key")
	cfg.BaseURL = server.URL
	cfg.Cache = cache.NewManager(redisClient, time.Minute)
	cfg.Budget = ratelimit.NewTracker(redisClient, 10, zerolog.Nop())

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()
	params := SearchParams{Location: "90001", Limit: 50, SortBy: "distance"}

	// first request goes to the server and spends budget
	resp, err := c.Search(ctx, params)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(resp.Businesses) != 1 {
		t.Fatalf("businesses = %d, want 1", len(resp.Businesses))
	}

	// repeat is served from Redis and spends nothing
	if _, err := c.Search(ctx, params); err != nil {
		t.Fatalf("cached Search() error = %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("server called %d times, want 1", calls.Load())
	}

	state, err := cfg.Budget.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.Used != 1 {
		t.Errorf("budget used = %d, want 1", state.Used)
	}

	entry, err := cfg.Cache.Get(ctx, cache.Key{Endpoint: SearchPath, Query: params.Values()})
	if err != nil {
		t.Fatalf("cache Get() error = %v", err)
	}
	if entry.StatusCode != http.StatusOK {
		t.Errorf("cached status = %d", entry.StatusCode)
	}
}
