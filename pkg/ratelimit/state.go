// Package ratelimit enforces the daily search API call allowance. The
// counter lives in Redis so consecutive scheduled runs on the same day share
// one budget.
package ratelimit

import (
	"time"
)

// RedisKeyPrefix is followed by the UTC date (YYYY-MM-DD).
const RedisKeyPrefix = "yelp:budget:"

// DefaultDailyLimit is the number of search calls the API allows per day.
const DefaultDailyLimit = 5000

// WarningFraction is the share of the budget below which requests are logged
// at warn level.
const WarningFraction = 0.1

// BudgetState is the call budget for one UTC day.
type BudgetState struct {
	// Day is the UTC date the counter belongs to.
	Day string `json:"day"`

	// Used is the number of calls reserved so far today.
	Used int `json:"used"`

	// Limit is the daily allowance.
	Limit int `json:"limit"`

	// ResetAt is the start of the next UTC day.
	ResetAt time.Time `json:"reset_at"`
}

// Remaining returns the calls left today, never negative.
func (s *BudgetState) Remaining() int {
	if s.Used >= s.Limit {
		return 0
	}
	return s.Limit - s.Used
}

// Exhausted returns true once every call of the day has been used.
func (s *BudgetState) Exhausted() bool {
	return s.Remaining() == 0
}

// NeedsWarning returns true when less than WarningFraction of the budget is left.
func (s *BudgetState) NeedsWarning() bool {
	return !s.Exhausted() && float64(s.Remaining()) < float64(s.Limit)*WarningFraction
}

// TimeUntilReset returns the duration until the budget resets.
// Returns 0 if the reset time has already passed.
func (s *BudgetState) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// dayBounds returns the UTC day label for t and the start of the next day.
func dayBounds(t time.Time) (string, time.Time) {
	u := t.UTC()
	start := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return start.Format("2006-01-02"), start.Add(24 * time.Hour)
}
