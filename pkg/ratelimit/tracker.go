package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for budget tracking.
var (
	yelpBudgetRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "yelp_budget_remaining",
		Help: "Search API calls left in the current daily budget",
	})

	yelpBudgetBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yelp_budget_blocks_total",
		Help: "Total number of requests refused because the daily budget was used up",
	})
)

// Tracker reserves calls against the daily budget.
type Tracker struct {
	redis  *redis.Client
	limit  int
	logger zerolog.Logger
	now    func() time.Time
}

// NewTracker creates a budget tracker. A non-positive limit uses DefaultDailyLimit.
func NewTracker(redisClient *redis.Client, limit int, logger zerolog.Logger) *Tracker {
	if limit <= 0 {
		limit = DefaultDailyLimit
	}
	return &Tracker{
		redis:  redisClient,
		limit:  limit,
		logger: logger,
		now:    time.Now,
	}
}

func (t *Tracker) key(day string) string {
	return RedisKeyPrefix + day
}

// GetState reads today's counter. A missing counter means nothing was used.
func (t *Tracker) GetState(ctx context.Context) (*BudgetState, error) {
	day, reset := dayBounds(t.now())

	used, err := t.redis.Get(ctx, t.key(day)).Int()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get budget counter: %w", err)
	}

	return &BudgetState{Day: day, Used: used, Limit: t.limit, ResetAt: reset}, nil
}

// Reserve claims one call from today's budget. It returns false when the
// budget is already used up; the claim is not counted in that case.
func (t *Tracker) Reserve(ctx context.Context) (bool, error) {
	now := t.now()
	day, reset := dayBounds(now)
	key := t.key(day)

	pipe := t.redis.TxPipeline()
	incr := pipe.Incr(ctx, key)
	// keep the counter a little past midnight for late readers
	pipe.Expire(ctx, key, reset.Sub(now)+time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("reserve budget: %w", err)
	}

	state := &BudgetState{Day: day, Used: int(incr.Val()), Limit: t.limit, ResetAt: reset}

	if state.Used > t.limit {
		if err := t.redis.Decr(ctx, key).Err(); err != nil {
			t.logger.Warn().Err(err).Msg("Failed to release over-limit budget claim")
		}
		yelpBudgetRemaining.Set(0)
		yelpBudgetBlocksTotal.Inc()
		t.logger.Error().
			Int("limit", t.limit).
			Dur("wait_duration", state.TimeUntilReset()).
			Msg("Daily search budget exhausted - blocking request")
		return false, nil
	}

	yelpBudgetRemaining.Set(float64(state.Remaining()))

	if state.NeedsWarning() {
		t.logger.Warn().
			Int("remaining", state.Remaining()).
			Int("limit", t.limit).
			Msg("Daily search budget running low")
	} else {
		t.logger.Debug().
			Int("used", state.Used).
			Int("limit", t.limit).
			Msg("Budget call reserved")
	}

	return true, nil
}
