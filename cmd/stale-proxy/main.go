// Command stale-proxy serves upstream JSON resources through a Redis-backed
// stale-while-revalidate cache.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/stale-fetcher/internal/config"
	"github.com/Sternrassler/stale-fetcher/pkg/cache"
	"github.com/Sternrassler/stale-fetcher/pkg/fetcher"
	"github.com/Sternrassler/stale-fetcher/pkg/logging"
	"github.com/Sternrassler/stale-fetcher/pkg/upstream"
	"github.com/Sternrassler/stale-fetcher/pkg/warmup"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	logger := logging.Setup(logging.Config{
		Level:   cfg.LogLevel(),
		Pretty:  cfg.Log.Pretty,
		Output:  os.Stderr,
		Service: "stale-proxy",
	})

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

func run(cfg config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Setup Redis
	redisClient, err := newRedisClient(cfg.Redis.URL)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = redisClient.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		return err
	}
	logger.Info().Str("redis", cfg.Redis.URL).Msg("Connected to Redis")

	f, err := newFetcher(cfg, cache.NewRedisStore(redisClient, cfg.Redis.KeyPrefix))
	if err != nil {
		return err
	}
	defer f.Close()

	if len(cfg.Warmup.URLs) > 0 {
		go warm(ctx, f, cfg.Warmup)
	}

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: newRouter(f, func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}, cfg.Upstream.PassHeaders),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Str("upstream", cfg.Upstream.BaseURL).
			Msg("Starting stale proxy")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newRedisClient accepts a plain host:port or a redis:// URL.
func newRedisClient(addr string) (*redis.Client, error) {
	if strings.Contains(addr, "://") {
		opts, err := redis.ParseURL(addr)
		if err != nil {
			return nil, err
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{Addr: addr}), nil
}

func newFetcher(cfg config.Config, store cache.Store) (*fetcher.Fetcher, error) {
	httpCfg := upstream.DefaultHTTPConfig()
	httpCfg.BaseURL = cfg.Upstream.BaseURL
	httpCfg.UserAgent = cfg.Upstream.UserAgent
	httpCfg.Timeout = cfg.Upstream.Timeout

	source, err := upstream.NewHTTPSource(httpCfg)
	if err != nil {
		return nil, err
	}

	fcfg := fetcher.DefaultConfig(store, source)
	fcfg.CacheTTL = cfg.Cache.TTL
	fcfg.HonorCacheControl = cfg.Cache.HonorCacheControl
	fcfg.RefreshEnabled = cfg.Cache.RefreshEnabled
	fcfg.RefreshInterval = cfg.Cache.RefreshInterval
	fcfg.FetchTimeout = cfg.Cache.FetchTimeout
	fcfg.KeyScope = cfg.Cache.KeyScope
	fcfg.IsolateInstance = cfg.Cache.IsolateInstance

	return fetcher.New(fcfg)
}

func warm(ctx context.Context, f *fetcher.Fetcher, cfg config.WarmupConfig) {
	reqs := make([]upstream.Request, 0, len(cfg.URLs))
	for _, u := range cfg.URLs {
		reqs = append(reqs, fetcher.NewRequest(u))
	}

	w := warmup.New(f, warmup.Config{MaxConcurrency: cfg.Concurrency})
	report, err := w.WarmAll(ctx, reqs)
	if err != nil {
		return
	}
	if err := report.Err(); err != nil {
		log.Warn().Err(err).Msg("Some warm-up requests failed")
	}
}
