package upstream

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrInvalidRequest is returned when a request descriptor cannot be used,
// e.g. because its URL is empty.
var ErrInvalidRequest = errors.New("invalid request")

// ErrorClass represents a classification of upstream failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents transport and timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassUnexpected represents non-2xx statuses that are neither
	// client nor server errors (e.g. an unfollowed redirect).
	ErrorClassUnexpected ErrorClass = "unexpected"
)

// FetchError is returned by a Source when the upstream call failed.
type FetchError struct {
	URL        string
	StatusCode int
	Class      ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.StatusCode > 0 && e.Err != nil {
		return fmt.Sprintf("fetch %s: %s error (status %d): %s: %v",
			e.URL, e.Class, e.StatusCode, e.Message, e.Err)
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s: %s error (status %d): %s",
			e.URL, e.Class, e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s error: %s: %v", e.URL, e.Class, e.Message, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s error: %s", e.URL, e.Class, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// ClassifyStatus maps a non-2xx HTTP status code to an ErrorClass.
func ClassifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ErrorClassUnexpected
	}
}
