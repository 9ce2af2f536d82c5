// Package fetcher implements a fetch-through cache in front of an HTTP
// source.
//
// Concurrent requests for the same resource are coalesced into a single
// upstream call whose result is handed to every caller. After a
// successful fetch the cached payload is refreshed in the background
// (stale-while-revalidate); failing refreshes back off and are eventually
// abandoned until the next cache miss.
//
// Example usage:
//
//	source, _ := upstream.NewHTTPSource(upstream.HTTPConfig{BaseURL: "https://api.example.com"})
//	f, err := fetcher.New(fetcher.DefaultConfig(cache.NewRedisStore(redisClient, "stale"), source))
//	if err != nil {
//		return err
//	}
//	defer f.Close()
//
//	item, err := fetcher.Get[Item](ctx, f, "/items/42", fetcher.WithHeader("X-Api-Key", key))
package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/Sternrassler/stale-fetcher/pkg/cache"
	"github.com/Sternrassler/stale-fetcher/pkg/logging"
	"github.com/Sternrassler/stale-fetcher/pkg/upstream"
)

// Fetcher is a coalescing, self-refreshing fetch-through cache.
type Fetcher struct {
	store     cache.Store
	source    upstream.Source
	keys      cache.KeyDeriver
	config    Config
	group     singleflight.Group
	flights   *flightTable
	refresher *refreshScheduler // nil when refresh is disabled
	logger    zerolog.Logger
	closed    atomic.Bool
}

// New creates a new Fetcher.
func New(cfg Config) (*Fetcher, error) {
	cfg, err := cfg.normalize()
	if err != nil {
		return nil, err
	}

	logger := logging.NewLogger("stale-fetcher")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	scope := cfg.KeyScope
	if cfg.IsolateInstance {
		scope = uuid.NewString()
	}

	f := &Fetcher{
		store:   cfg.Store,
		source:  cfg.Source,
		keys:    cache.KeyDeriver{Scope: scope},
		config:  cfg,
		flights: newFlightTable(),
		logger:  logger,
	}
	if cfg.RefreshEnabled {
		f.refresher = newRefreshScheduler(cfg.RefreshInterval, cfg.Backoff, f.refresh, logger)
	}

	logger.Debug().
		Str("key_scope", scope).
		Dur("cache_ttl", cfg.CacheTTL).
		Bool("refresh_enabled", cfg.RefreshEnabled).
		Dur("refresh_interval", cfg.RefreshInterval).
		Msg("Fetcher created")

	return f, nil
}

// Get fetches url through f and decodes the JSON payload into T.
func Get[T any](ctx context.Context, f *Fetcher, url string, options ...RequestOption) (T, error) {
	var v T

	data, err := f.Fetch(ctx, NewRequest(url, options...))
	if err != nil {
		return v, err
	}

	if err := json.Unmarshal(data, &v); err != nil {
		var zero T
		return zero, &SerializationError{URL: url, Err: err}
	}
	return v, nil
}

// Fetch returns the raw payload for req, from cache when present,
// otherwise from the single in-flight upstream fetch for req's key.
//
// ctx only bounds how long this caller waits. The upstream fetch itself is
// not cancelled with it, because other callers may be waiting on it.
func (f *Fetcher) Fetch(ctx context.Context, req upstream.Request) ([]byte, error) {
	if f.closed.Load() {
		return nil, ErrClosed
	}

	key, err := f.keys.Derive(req)
	if err != nil {
		return nil, fmt.Errorf("derive cache key: %w", err)
	}

	data, err := f.store.Get(ctx, key)
	if err == nil {
		f.logger.Debug().Str("url", req.URL).Str("key", key).Msg("Cache hit")
		return data, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		f.logger.Error().Err(err).Str("url", req.URL).Str("key", key).Msg("Cache read failed")
		return nil, &CacheReadError{Key: key, Err: err}
	}

	f.logger.Debug().Str("url", req.URL).Str("key", key).Msg("Cache miss")

	// The initiating caller's flight function is the one that runs; it
	// records that so followers can be told apart once the result arrives.
	initiator := false
	wait := f.group.DoChan(key, func() (any, error) {
		initiator = true
		return f.flight(context.WithoutCancel(ctx), key, req)
	})

	select {
	case res := <-wait:
		if !initiator {
			coalescedWaitersTotal.Inc()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		//nolint:forcetypeassert
		return bytes.Clone(res.Val.([]byte)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// flight performs the upstream fetch for key on behalf of all callers
// waiting on it. Its result is delivered to them after it returns.
func (f *Fetcher) flight(ctx context.Context, key string, req upstream.Request) ([]byte, error) {
	fl, done := f.flights.begin(key)
	defer done()

	inflightFetches.Inc()
	defer inflightFetches.Dec()

	fetchCtx, cancel := f.fetchContext(ctx)
	payload, err := f.source.Fetch(fetchCtx, req)
	cancel()

	if err != nil {
		err = asFetchError(req, err)
		var fetchErr *upstream.FetchError
		if errors.As(err, &fetchErr) {
			fetchErrorsTotal.WithLabelValues(string(fetchErr.Class)).Inc()
		}
		f.logger.Warn().
			Err(err).
			Str("url", req.URL).
			Str("key", key).
			Msg("Upstream fetch failed")
		return nil, err
	}

	// The entry is written before the callers are released so that a
	// caller arriving in between hits the cache instead of fetching again.
	stored := false
	switch {
	case payload.NoStore:
		f.logger.Debug().Str("url", req.URL).Msg("Upstream forbids storing, not caching")
	case !f.flights.wanted(fl):
		f.logger.Debug().Str("url", req.URL).Str("key", key).Msg("Invalidated during fetch, not caching")
	default:
		if err := f.store.Set(ctx, key, payload.Data, f.ttlFor(payload)); err != nil {
			f.logger.Warn().Err(err).Str("url", req.URL).Str("key", key).Msg("Failed to cache response")
		} else {
			stored = true
		}
	}

	armed := false
	if stored && f.refresher != nil {
		armed = f.flights.whileWanted(fl, func() { f.refresher.arm(key, req) })
	}

	f.logger.Info().
		Str("url", req.URL).
		Str("key", key).
		Bool("cached", stored).
		Bool("refresh_armed", armed).
		Msg("Upstream fetch completed")

	return payload.Data, nil
}

// refresh is the background refresh of one cache entry.
func (f *Fetcher) refresh(ctx context.Context, key string, req upstream.Request) error {
	fetchCtx, cancel := f.fetchContext(ctx)
	defer cancel()

	payload, err := f.source.Fetch(fetchCtx, req)
	if err != nil {
		return err
	}
	if payload.NoStore {
		return nil
	}
	return f.store.Set(ctx, key, payload.Data, f.ttlFor(payload))
}

func (f *Fetcher) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.config.FetchTimeout > 0 {
		return context.WithTimeout(ctx, f.config.FetchTimeout)
	}
	return context.WithCancel(ctx)
}

func (f *Fetcher) ttlFor(p *upstream.Payload) time.Duration {
	if f.config.HonorCacheControl && p.MaxAge > 0 {
		return p.MaxAge
	}
	return f.config.CacheTTL
}

// Key returns the cache key f uses for req.
func (f *Fetcher) Key(req upstream.Request) (string, error) {
	return f.keys.Derive(req)
}

// Invalidate removes the cached entry for url and stops its background
// refresh. The next Get fetches from upstream again. A fetch of url that
// is in progress still delivers to its callers but neither stores its
// result nor arms a refresh; only a store write that was already under
// way may land after the delete (last write wins).
func (f *Fetcher) Invalidate(ctx context.Context, url string, options ...RequestOption) error {
	if f.closed.Load() {
		return ErrClosed
	}

	key, err := f.keys.Derive(NewRequest(url, options...))
	if err != nil {
		return fmt.Errorf("derive cache key: %w", err)
	}
	f.flights.invalidate(key)
	if f.refresher != nil {
		f.refresher.cancelJob(key)
	}
	if err := f.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("invalidate %s: %w", url, err)
	}

	f.logger.Debug().Str("url", url).Str("key", key).Msg("Cache entry invalidated")
	return nil
}

// RefreshJobs returns the currently scheduled background refreshes.
func (f *Fetcher) RefreshJobs() []RefreshJob {
	if f.refresher == nil {
		return nil
	}
	return f.refresher.snapshot()
}

// EntryTTL returns the remaining lifetime of the entry cached under key.
// It returns cache.ErrCacheMiss when there is none and ErrTTLUnsupported
// when the store cannot report lifetimes.
func (f *Fetcher) EntryTTL(ctx context.Context, key string) (time.Duration, error) {
	ts, ok := f.store.(cache.TTLStore)
	if !ok {
		return 0, ErrTTLUnsupported
	}
	return ts.TTL(ctx, key)
}

// InFlight returns the number of keys with an upstream fetch in progress.
func (f *Fetcher) InFlight() int {
	return f.flights.len()
}

// Close stops all background refreshes. In-flight foreground fetches
// still complete and deliver to their waiters.
func (f *Fetcher) Close() error {
	if !f.closed.CompareAndSwap(false, true) {
		return nil
	}
	if f.refresher != nil {
		f.refresher.close()
	}
	f.logger.Debug().Msg("Fetcher closed")
	return nil
}
