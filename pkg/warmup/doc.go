// Package warmup fills a fetcher's cache for many requests in parallel.
//
// Warming runs each request through the regular fetch path, so the usual
// coalescing applies and every successful fetch arms its background
// refresh. Requests that are already cached cost one store lookup.
//
// Example usage:
//
//	w := warmup.New(f, warmup.DefaultConfig())
//	report, err := w.WarmAll(ctx, []upstream.Request{
//		fetcher.NewRequest("/v1/prices"),
//		fetcher.NewRequest("/v1/regions"),
//	})
//
// The warmer:
//   - Runs at most MaxConcurrency fetches at once
//   - Bounds every fetch by Timeout
//   - Keeps going after individual failures and reports them
//   - Stops early only when ctx is cancelled
package warmup
