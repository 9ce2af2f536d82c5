package fetcher

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/stale-fetcher/pkg/cache"
	"github.com/Sternrassler/stale-fetcher/pkg/upstream"
)

// Config holds the fetcher configuration.
type Config struct {
	// Store holds the cached payloads (REQUIRED)
	Store cache.Store

	// Source performs the upstream fetches (REQUIRED)
	Source upstream.Source

	// Caching
	CacheTTL          time.Duration // Lifetime of a cache entry
	HonorCacheControl bool          // Use upstream max-age/Expires as TTL when present

	// Refresh
	RefreshEnabled  bool          // Arm a background refresh after each successful fetch
	RefreshInterval time.Duration // Delay between refreshes (defaults to CacheTTL)
	Backoff         BackoffPolicy // Delay growth after refresh failures

	// FetchTimeout bounds every upstream call; zero means no bound beyond
	// the source's own.
	FetchTimeout time.Duration

	// Key derivation. KeyScope prefixes every cache key; IsolateInstance
	// generates a random scope so no other Fetcher shares this one's entries.
	KeyScope        string
	IsolateInstance bool

	// Logger replaces the default component logger.
	Logger *zerolog.Logger
}

// DefaultConfig returns a default configuration.
func DefaultConfig(store cache.Store, source upstream.Source) Config {
	return Config{
		Store:           store,
		Source:          source,
		CacheTTL:        10 * time.Second,
		RefreshEnabled:  true,
		RefreshInterval: 5 * time.Second,
		Backoff:         DefaultBackoffPolicy(),
		FetchTimeout:    30 * time.Second,
	}
}

// normalize fills zero values with defaults and validates the result.
func (c Config) normalize() (Config, error) {
	if c.Store == nil {
		return c, fmt.Errorf("cache store is required")
	}
	if c.Source == nil {
		return c, fmt.Errorf("upstream source is required")
	}
	if c.CacheTTL <= 0 {
		return c, fmt.Errorf("cache_ttl must be > 0 (got %s)", c.CacheTTL)
	}
	if c.FetchTimeout < 0 {
		return c, fmt.Errorf("fetch_timeout must be >= 0 (got %s)", c.FetchTimeout)
	}
	if c.KeyScope != "" && c.IsolateInstance {
		return c, fmt.Errorf("key_scope and isolate_instance are mutually exclusive")
	}

	if c.RefreshEnabled {
		if c.RefreshInterval < 0 {
			return c, fmt.Errorf("refresh_interval must be >= 0 (got %s)", c.RefreshInterval)
		}
		if c.RefreshInterval == 0 {
			c.RefreshInterval = c.CacheTTL
		}

		defaults := DefaultBackoffPolicy()
		if c.Backoff.Base == 0 {
			c.Backoff.Base = defaults.Base
		}
		if c.Backoff.Multiplier == 0 {
			c.Backoff.Multiplier = defaults.Multiplier
		}
		if c.Backoff.Ceiling == 0 {
			c.Backoff.Ceiling = defaults.Ceiling
		}
		if err := c.Backoff.validate(); err != nil {
			return c, err
		}
	}

	return c, nil
}
