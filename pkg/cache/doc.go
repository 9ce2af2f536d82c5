// Package cache provides the cache stores and the cache key derivation used
// by the stale fetcher.
//
// Features:
//
// - Store interface: Get/Set/Delete with per-entry TTL
// - RedisStore backed by go-redis (native key expiry, optional key prefix)
// - MemoryStore for single-process use and tests
// - Deterministic, collision-resistant cache keys (SHA-256 over URL + headers)
// - Prometheus metrics for observability
//
// # Basic Usage
//
//	// Create Redis client
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	// Create store
//	store := cache.NewRedisStore(redisClient, "stale")
//
//	// Derive key
//	key, err := cache.KeyDeriver{}.Derive(upstream.NewRequest("/items", nil))
//
//	// Get from cache
//	data, err := store.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// Cache miss - fetch from upstream
//	}
//
// # Key Scope
//
// KeyDeriver.Scope prefixes every key. Fetchers that share a backend share
// entries only when their scopes match; an empty scope shares everything.
//
// # Metrics
//
// The stores export Prometheus metrics:
//
//   - stale_cache_hits_total{layer} - Cache hits
//   - stale_cache_misses_total{layer} - Cache misses
//   - stale_cache_written_bytes_total{layer} - Bytes written
//   - stale_cache_errors_total{layer,operation} - Cache operation errors
package cache
