// Package cache stores search API page bodies in Redis.
//
// Every page costs one call against the daily API allowance, so a rerun of
// the same zip and offset inside the TTL window is answered from Redis
// instead of the API. Only 200 responses are cached.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(redisClient, 24*time.Hour)
//
//	key := cache.Key{
//		Endpoint: "/v3/businesses/search",
//		Query:    url.Values{"location": {"90001"}, "offset": {"0"}},
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the API, then manager.Set(ctx, key, body)
//	}
//
// # Key Format
//
// Keys are "yelp:<endpoint>:<k>=<v>..." with query parameters sorted, so the
// same search always maps to the same key regardless of parameter order.
package cache
