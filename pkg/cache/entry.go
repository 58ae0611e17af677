package cache

import (
	"time"
)

// Entry is a cached search page.
type Entry struct {
	// Data is the response body
	Data []byte `json:"data"`

	// StatusCode of the cached response, always 200 today
	StatusCode int `json:"status_code"`

	// CachedAt is when the page was stored
	CachedAt time.Time `json:"cached_at"`

	// Expires is when the entry stops being served
	Expires time.Time `json:"expires"`
}

// IsExpired returns true if the cache entry has expired.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration, or 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
