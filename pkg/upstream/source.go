// Package upstream provides the data source the fetcher reads through:
// the Source interface and an HTTP implementation that turns non-success
// responses into FetchErrors.
package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/stale-fetcher/pkg/logging"
)

// Prometheus metrics for upstream requests.
var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stale_upstream_requests_total",
		Help: "Total upstream requests by HTTP status",
	}, []string{"status"})

	upstreamRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stale_upstream_duration_seconds",
		Help:    "Upstream request duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	})
)

// Source performs the actual fetch of a request.
type Source interface {
	Fetch(ctx context.Context, req Request) (*Payload, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, req Request) (*Payload, error)

// Fetch calls f(ctx, req).
func (f SourceFunc) Fetch(ctx context.Context, req Request) (*Payload, error) {
	return f(ctx, req)
}

// HTTPConfig holds the transport options of an HTTPSource.
type HTTPConfig struct {
	// BaseURL is prepended to relative request URLs.
	BaseURL string

	// UserAgent is sent with every request.
	UserAgent string

	// Header holds default headers. Request headers override them.
	Header http.Header

	// Timeout bounds a single request when Client is nil.
	Timeout time.Duration

	// Client replaces the default *http.Client (custom transport, TLS...).
	Client *http.Client
}

// DefaultHTTPConfig returns a safe default configuration.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		UserAgent: "stale-fetcher/0.1.0",
		Timeout:   30 * time.Second,
	}
}

// HTTPSource fetches requests with GET over HTTP.
type HTTPSource struct {
	client *http.Client
	config HTTPConfig
	logger zerolog.Logger
}

// NewHTTPSource creates a new HTTP source.
func NewHTTPSource(cfg HTTPConfig) (*HTTPSource, error) {
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("parse base url: %w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("base url must be absolute (got %q)", cfg.BaseURL)
		}
	}

	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	return &HTTPSource{
		client: client,
		config: cfg,
		logger: logging.NewLogger("upstream"),
	}, nil
}

// Fetch performs a GET request for req. Any transport error or non-2xx
// status is returned as a *FetchError.
func (s *HTTPSource) Fetch(ctx context.Context, req Request) (*Payload, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	target := joinURL(s.config.BaseURL, req.URL)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &FetchError{URL: target, Class: ErrorClassClient, Message: "create request", Err: err}
	}
	for key, values := range s.config.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	for key, values := range req.Header {
		httpReq.Header.Del(key)
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if s.config.UserAgent != "" && httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", s.config.UserAgent)
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}

	s.logger.Debug().Str("url", target).Msg("Executing upstream request")

	start := time.Now()
	resp, err := s.client.Do(httpReq)
	upstreamRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		upstreamRequestsTotal.WithLabelValues("network_error").Inc()
		s.logger.Warn().Err(err).Str("url", target).Msg("Upstream request failed")
		return nil, &FetchError{URL: target, Class: ErrorClassNetwork, Message: "request failed", Err: err}
	}
	upstreamRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain a bounded amount so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()

		class := ClassifyStatus(resp.StatusCode)
		s.logger.Warn().
			Str("url", target).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Upstream returned error status")
		return nil, &FetchError{
			URL:        target,
			StatusCode: resp.StatusCode,
			Class:      class,
			Message:    resp.Status,
		}
	}

	payload, err := payloadFromResponse(resp)
	if err != nil {
		return nil, &FetchError{
			URL:        target,
			StatusCode: resp.StatusCode,
			Class:      ErrorClassNetwork,
			Message:    "read body",
			Err:        err,
		}
	}
	return payload, nil
}
