package warmup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/stale-fetcher/pkg/logging"
	"github.com/Sternrassler/stale-fetcher/pkg/upstream"
)

// Config holds warmer configuration.
type Config struct {
	// MaxConcurrency is the maximum number of parallel fetches.
	MaxConcurrency int

	// Timeout per fetch.
	Timeout time.Duration
}

// DefaultConfig returns the default warmer configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 10,
		Timeout:        15 * time.Second,
	}
}

// Fetcher is the part of *fetcher.Fetcher the warmer needs.
type Fetcher interface {
	Fetch(ctx context.Context, req upstream.Request) ([]byte, error)
}

// Failure records a request that could not be warmed.
type Failure struct {
	URL string
	Err error
}

// Report summarizes a WarmAll run.
type Report struct {
	Requested int
	Warmed    int
	Failures  []Failure
	Duration  time.Duration
}

// Warmer fetches lists of requests in parallel.
type Warmer struct {
	fetcher Fetcher
	config  Config
	logger  zerolog.Logger
}

// New creates a new warmer. Zero config values fall back to the defaults.
func New(f Fetcher, config Config) *Warmer {
	defaults := DefaultConfig()
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = defaults.MaxConcurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}

	return &Warmer{
		fetcher: f,
		config:  config,
		logger:  logging.NewLogger("warmup"),
	}
}

// WarmAll fetches every request. Individual failures are collected in the
// report; the returned error is non-nil only when ctx ended the run early.
func (w *Warmer) WarmAll(ctx context.Context, requests []upstream.Request) (*Report, error) {
	start := time.Now()
	report := &Report{Requested: len(requests)}

	w.logger.Info().
		Int("requests", len(requests)).
		Int("concurrency", w.config.MaxConcurrency).
		Msg("Starting cache warm-up")

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.config.MaxConcurrency)

	for _, req := range requests {
		if gctx.Err() != nil {
			break
		}
		req := req
		g.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(gctx, w.config.Timeout)
			_, err := w.fetcher.Fetch(fetchCtx, req)
			cancel()

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				report.Failures = append(report.Failures, Failure{URL: req.URL, Err: err})
				w.logger.Warn().Err(err).Str("url", req.URL).Msg("Warm-up fetch failed")
				return nil
			}
			report.Warmed++
			return nil
		})
	}

	// Workers never return errors, so Wait only reports ctx cancellation below.
	_ = g.Wait()
	report.Duration = time.Since(start)

	if err := ctx.Err(); err != nil {
		w.logger.Warn().
			Err(err).
			Int("warmed", report.Warmed).
			Int("requested", report.Requested).
			Msg("Cache warm-up interrupted")
		return report, fmt.Errorf("warm-up interrupted (%d/%d warmed): %w", report.Warmed, report.Requested, err)
	}

	w.logger.Info().
		Int("warmed", report.Warmed).
		Int("failed", len(report.Failures)).
		Dur("duration", report.Duration).
		Msg("Cache warm-up complete")

	return report, nil
}

// Err joins the failures of r into one error, or returns nil.
func (r *Report) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, fmt.Errorf("%s: %w", f.URL, f.Err))
	}
	return errors.Join(errs...)
}
