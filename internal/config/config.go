// Package config loads the ingest configuration from the environment and
// command-line flags. Flags default to the environment value.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/yelp-ingest/pkg/zipqueue"
	"github.com/redis/go-redis/v9"
)

// Store drivers.
const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
)

// Config holds runtime configuration for one ingest run.
type Config struct {
	// Search API
	APIKey      string
	BaseURL     string
	HTTPTimeout time.Duration
	Delay       time.Duration

	// Rotation
	MaxZips   int
	ZipRanges string
	Op        string

	// Storage
	StoreDriver      string
	MongoURI         string
	MongoDatabase    string
	OpsCollection    string
	ResultCollection string
	ConnectTimeout   time.Duration
	PGDSN            string
	PGBatch          int
	PGMaxConns       int
	PGViaBouncer     bool

	// Optional Redis page cache and daily budget
	RedisURL    string
	CacheTTL    time.Duration
	DailyBudget int

	// Output
	MetricsAddr string
	LogLevel    string
	Notebook    bool
}

// Load reads environment variables and returns a fully populated Config.
func Load() Config {
	return Config{
		APIKey:      envOrDefault("YELP_API_KEY", ""),
		BaseURL:     envOrDefault("YELP_BASE_URL", "https://api.yelp.com"),
		HTTPTimeout: envDuration("HTTP_TIMEOUT", 30*time.Second),
		Delay:       envDuration("YELP_DELAY", 100*time.Millisecond),

		MaxZips:   envInt("MAX_ZIPS", 10),
		ZipRanges: envOrDefault("ZIP_RANGES", ""),
		Op:        envOrDefault("INGEST_OP", "yelp-restaurant-ingest"),

		StoreDriver:      envOrDefault("STORE_DRIVER", DriverMongo),
		MongoURI:         envOrDefault("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:    envOrDefault("MONGO_DB", "yelp"),
		OpsCollection:    envOrDefault("OPS_COLLECTION", "ops"),
		ResultCollection: envOrDefault("RESULT_COLLECTION", "restaurant"),
		ConnectTimeout:   envDuration("MONGO_CONNECT_TIMEOUT", 10*time.Second),
		PGDSN:            envOrDefault("PG_DSN", ""),
		PGBatch:          envInt("PG_BATCH", 200),
		PGMaxConns:       envInt("PG_MAX_CONNS", 2),
		PGViaBouncer:     envBool("PG_VIA_BOUNCER", false),

		RedisURL:    envOrDefault("REDIS_URL", ""),
		CacheTTL:    envDuration("CACHE_TTL", 24*time.Hour),
		DailyBudget: envInt("DAILY_BUDGET", 5000),

		MetricsAddr: envOrDefault("METRICS_ADDR", ""),
		LogLevel:    envOrDefault("LOG_LEVEL", "info"),
		Notebook:    envBool("NOTEBOOK", false),
	}
}

// RegisterFlags binds the overridable settings to fs, using the current
// values as defaults.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.Notebook, "notebook", c.Notebook, "Human-readable progress output. Env: NOTEBOOK")
	fs.IntVar(&c.MaxZips, "max-zips", c.MaxZips, "Successful zips per run. Env: MAX_ZIPS")
	fs.DurationVar(&c.Delay, "delay", c.Delay, "Pause between result pages. Env: YELP_DELAY")
	fs.StringVar(&c.StoreDriver, "store", c.StoreDriver, "Store driver: mongo|postgres. Env: STORE_DRIVER")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "Serve /metrics and /healthz on this address, e.g. :9090. Env: METRICS_ADDR")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level: debug|info|warn|error. Env: LOG_LEVEL")
}

// Validate reports the first configuration problem.
func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return errors.New("YELP_API_KEY is required")
	}
	if c.MaxZips <= 0 {
		return fmt.Errorf("max zips must be positive, got %d", c.MaxZips)
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay must not be negative, got %v", c.Delay)
	}
	switch c.StoreDriver {
	case DriverMongo:
		if c.MongoURI == "" {
			return errors.New("MONGO_URI is required for the mongo store")
		}
	case DriverPostgres:
		if c.PGDSN == "" {
			return errors.New("PG_DSN is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store driver %q (want %s or %s)", c.StoreDriver, DriverMongo, DriverPostgres)
	}
	if _, err := c.Ranges(); err != nil {
		return err
	}
	return nil
}

// Ranges returns the configured zip ranges, or the default metro areas.
func (c Config) Ranges() ([]zipqueue.Range, error) {
	if strings.TrimSpace(c.ZipRanges) == "" {
		return zipqueue.DefaultRanges(), nil
	}
	ranges, err := zipqueue.ParseRanges(c.ZipRanges)
	if err != nil {
		return nil, fmt.Errorf("ZIP_RANGES: %w", err)
	}
	return ranges, nil
}

// RedisOptions accepts a redis:// URL or a bare host:port.
func RedisOptions(raw string) (*redis.Options, error) {
	if strings.Contains(raw, "://") {
		opts, err := redis.ParseURL(raw)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{Addr: raw}, nil
}

func envOrDefault(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

// envDuration accepts Go durations ("100ms") or plain seconds ("0.1").
func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return def
}
