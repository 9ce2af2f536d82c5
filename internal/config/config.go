// Package config loads the proxy configuration from an optional YAML file
// and environment variables. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Sternrassler/stale-fetcher/pkg/logging"
)

// Config holds the stale-proxy configuration.
type Config struct {
	Port string `yaml:"port"`

	Redis    RedisConfig    `yaml:"redis"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Cache    CacheConfig    `yaml:"cache"`
	Log      LogConfig      `yaml:"log"`
	Warmup   WarmupConfig   `yaml:"warmup"`
}

// RedisConfig configures the cache backend.
type RedisConfig struct {
	// URL is either host:port or a redis:// URL.
	URL       string `yaml:"url"`
	KeyPrefix string `yaml:"key_prefix"`
}

// UpstreamConfig configures the HTTP source.
type UpstreamConfig struct {
	BaseURL   string        `yaml:"base_url"`
	UserAgent string        `yaml:"user_agent"`
	Timeout   time.Duration `yaml:"timeout"`

	// PassHeaders lists client request headers forwarded upstream. They
	// become part of the cache key.
	PassHeaders []string `yaml:"pass_headers"`
}

// CacheConfig configures the fetcher.
type CacheConfig struct {
	TTL               time.Duration `yaml:"ttl"`
	HonorCacheControl bool          `yaml:"honor_cache_control"`
	RefreshEnabled    bool          `yaml:"refresh_enabled"`
	RefreshInterval   time.Duration `yaml:"refresh_interval"`
	FetchTimeout      time.Duration `yaml:"fetch_timeout"`
	KeyScope          string        `yaml:"key_scope"`
	IsolateInstance   bool          `yaml:"isolate_instance"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// WarmupConfig lists URLs fetched at startup.
type WarmupConfig struct {
	URLs        []string `yaml:"urls"`
	Concurrency int      `yaml:"concurrency"`
}

// Default returns the configuration used when neither file nor
// environment set a value.
func Default() Config {
	return Config{
		Port: "8080",
		Redis: RedisConfig{
			URL:       "localhost:6379",
			KeyPrefix: "stale",
		},
		Upstream: UpstreamConfig{
			UserAgent: "stale-proxy/0.1.0",
			Timeout:   30 * time.Second,
		},
		Cache: CacheConfig{
			TTL:            10 * time.Second,
			RefreshEnabled: true,
			FetchTimeout:   30 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		Warmup: WarmupConfig{
			Concurrency: 10,
		},
	}
}

// Load reads path (skipped when empty), applies environment overrides and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = splitList(v)
		}
	}

	str("PORT", &c.Port)
	str("REDIS_URL", &c.Redis.URL)
	str("REDIS_KEY_PREFIX", &c.Redis.KeyPrefix)
	str("UPSTREAM_BASE_URL", &c.Upstream.BaseURL)
	str("USER_AGENT", &c.Upstream.UserAgent)
	dur("UPSTREAM_TIMEOUT", &c.Upstream.Timeout)
	list("PASS_HEADERS", &c.Upstream.PassHeaders)
	dur("CACHE_TTL", &c.Cache.TTL)
	boolean("HONOR_CACHE_CONTROL", &c.Cache.HonorCacheControl)
	boolean("REFRESH_ENABLED", &c.Cache.RefreshEnabled)
	dur("REFRESH_INTERVAL", &c.Cache.RefreshInterval)
	dur("FETCH_TIMEOUT", &c.Cache.FetchTimeout)
	str("KEY_SCOPE", &c.Cache.KeyScope)
	boolean("ISOLATE_INSTANCE", &c.Cache.IsolateInstance)
	str("LOG_LEVEL", &c.Log.Level)
	boolean("LOG_PRETTY", &c.Log.Pretty)
	list("WARMUP_URLS", &c.Warmup.URLs)

	return errors.Join(errs...)
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the values the fetcher does not validate itself.
func (c Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}
	if _, err := strconv.ParseUint(c.Port, 10, 16); err != nil {
		return fmt.Errorf("invalid port %q", c.Port)
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("redis url is required")
	}
	if c.Upstream.BaseURL != "" {
		u, err := url.Parse(c.Upstream.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("upstream base_url must be an absolute URL (got %q)", c.Upstream.BaseURL)
		}
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache ttl must be > 0 (got %s)", c.Cache.TTL)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// LogLevel returns the parsed log level. Call after Validate.
func (c Config) LogLevel() logging.LogLevel {
	level, _ := logging.ParseLevel(c.Log.Level)
	return level
}
