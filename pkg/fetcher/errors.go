package fetcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sternrassler/stale-fetcher/pkg/upstream"
)

var (
	// ErrClosed is returned by operations on a closed Fetcher.
	ErrClosed = errors.New("fetcher closed")

	// ErrTTLUnsupported is returned by EntryTTL when the store does not
	// implement cache.TTLStore.
	ErrTTLUnsupported = errors.New("store does not report entry lifetimes")
)

// CacheReadError is returned when the cache store lookup failed. The
// upstream is not contacted in that case.
type CacheReadError struct {
	Key string
	Err error
}

// Error implements the error interface.
func (e *CacheReadError) Error() string {
	return fmt.Sprintf("cache read %s: %v", e.Key, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *CacheReadError) Unwrap() error {
	return e.Err
}

// SerializationError is returned when a cached or fetched payload cannot
// be decoded into the requested type.
type SerializationError struct {
	URL string
	Err error
}

// Error implements the error interface.
func (e *SerializationError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.URL, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *SerializationError) Unwrap() error {
	return e.Err
}

// asFetchError makes sure every upstream failure reaches the callers as a
// *upstream.FetchError, wrapping errors from sources that do not produce
// one themselves.
func asFetchError(req upstream.Request, err error) error {
	var fetchErr *upstream.FetchError
	if errors.As(err, &fetchErr) {
		return err
	}

	class := upstream.ErrorClassUnexpected
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		class = upstream.ErrorClassNetwork
	}
	return &upstream.FetchError{
		URL:     req.URL,
		Class:   class,
		Message: "source failed",
		Err:     err,
	}
}
