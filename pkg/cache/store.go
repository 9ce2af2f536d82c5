package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidTTL indicates a Set without a positive TTL
	ErrInvalidTTL = errors.New("ttl must be positive")
)

// Store is a key-value store with per-entry TTL.
//
// Get returns ErrCacheMiss when the key is absent or expired; any other
// error is a backend failure.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// TTLStore is a Store that can report the remaining lifetime of an entry.
// TTL returns ErrCacheMiss when the key is absent or expired.
type TTLStore interface {
	Store
	TTL(ctx context.Context, key string) (time.Duration, error)
}

var (
	_ TTLStore = (*MemoryStore)(nil)
	_ TTLStore = (*RedisStore)(nil)
)
