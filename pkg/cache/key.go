package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix namespaces all cache keys.
const KeyPrefix = "yelp"

// Key identifies a cached search page.
type Key struct {
	// Endpoint is the API path (e.g., "/v3/businesses/search")
	Endpoint string

	// Query holds the search parameters (location, offset, limit, ...)
	Query url.Values
}

// String generates a deterministic cache key string.
//
// Example:
//
//	yelp:v3/businesses/search:limit=50:location=90001:offset=0
func (k Key) String() string {
	parts := []string{KeyPrefix}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.Query) > 0 {
		names := make([]string, 0, len(k.Query))
		for name := range k.Query {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			values := append([]string(nil), k.Query[name]...)
			sort.Strings(values)
			parts = append(parts, fmt.Sprintf("%s=%s", name, strings.Join(values, ",")))
		}
	}

	return strings.Join(parts, ":")
}
