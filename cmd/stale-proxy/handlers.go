package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/stale-fetcher/pkg/cache"
	"github.com/Sternrassler/stale-fetcher/pkg/fetcher"
	"github.com/Sternrassler/stale-fetcher/pkg/metrics"
	"github.com/Sternrassler/stale-fetcher/pkg/upstream"
)

// readyCheck reports whether the cache backend is reachable.
type readyCheck func(ctx context.Context) error

func newRouter(f *fetcher.Fetcher, ready readyCheck, passHeaders []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(accessLog)

	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(ready))
	r.Handle("/metrics", metrics.Handler())

	r.Get("/fetch", fetchHandler(f, passHeaders))
	r.Delete("/fetch", invalidateHandler(f, passHeaders))
	r.Get("/debug/refresh", refreshJobsHandler(f))

	return r
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		log.Debug().
			Str("component", "proxy").
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("Request served")
	})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func readyHandler(check readyCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := check(ctx); err != nil {
			http.Error(w, "cache backend unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

// requestFrom builds the upstream request from the url query parameter
// and the forwarded client headers.
func requestFrom(r *http.Request, passHeaders []string) upstream.Request {
	var opts []fetcher.RequestOption
	for _, name := range passHeaders {
		for _, v := range r.Header.Values(name) {
			opts = append(opts, fetcher.WithHeader(name, v))
		}
	}
	return fetcher.NewRequest(r.URL.Query().Get("url"), opts...)
}

func fetchHandler(f *fetcher.Fetcher, passHeaders []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := f.Fetch(r.Context(), requestFrom(r, passHeaders))
		if err != nil {
			writeError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(data); err != nil {
			log.Warn().Err(err).Msg("Failed to write response")
		}
	}
}

func invalidateHandler(f *fetcher.Fetcher, passHeaders []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := requestFrom(r, passHeaders)
		if err := req.Validate(); err != nil {
			writeError(w, err)
			return
		}
		if err := f.Invalidate(r.Context(), req.URL, fetcher.WithHeaders(req.Header)); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// refreshJobStatus is a refresh job together with the remaining lifetime
// of the entry it keeps fresh. TTL is omitted when the entry is gone.
type refreshJobStatus struct {
	fetcher.RefreshJob
	TTL time.Duration `json:"ttl,omitempty"`
}

func refreshJobsHandler(f *fetcher.Fetcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs := f.RefreshJobs()
		list := make([]refreshJobStatus, 0, len(jobs))
		for _, job := range jobs {
			st := refreshJobStatus{RefreshJob: job}
			ttl, err := f.EntryTTL(r.Context(), job.Key)
			switch {
			case err == nil:
				st.TTL = ttl
			case !errors.Is(err, cache.ErrCacheMiss):
				log.Debug().Err(err).Str("key", job.Key).Msg("Entry TTL unavailable")
			}
			list = append(list, st)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"in_flight": f.InFlight(),
			"jobs":      list,
		})
	}
}

// statusFor maps fetch errors to proxy responses. Upstream client errors
// keep their status; everything else from upstream is a bad gateway.
func statusFor(err error) int {
	var fetchErr *upstream.FetchError
	var readErr *fetcher.CacheReadError

	switch {
	case errors.Is(err, upstream.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, fetcher.ErrClosed), errors.As(err, &readErr):
		return http.StatusServiceUnavailable
	case errors.As(err, &fetchErr):
		if fetchErr.Class == upstream.ErrorClassClient && fetchErr.StatusCode != 0 {
			return fetchErr.StatusCode
		}
		if fetchErr.Class == upstream.ErrorClassRateLimit {
			return http.StatusTooManyRequests
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to encode response")
	}
}
