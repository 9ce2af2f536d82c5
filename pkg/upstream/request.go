package upstream

import (
	"net/http"
	"strings"
)

// Request describes a resource to fetch: a URL plus the request headers
// that make it distinct. Requests are treated as immutable values; use
// NewRequest to get one that does not share its header map with the caller.
type Request struct {
	// URL is absolute, or relative to the source's base URL.
	URL string

	// Header holds the request headers sent upstream. They take part in
	// cache key derivation.
	Header http.Header
}

// NewRequest creates a Request with a private copy of header.
func NewRequest(url string, header http.Header) Request {
	return Request{
		URL:    url,
		Header: header.Clone(),
	}
}

// Validate reports ErrInvalidRequest for unusable descriptors.
func (r Request) Validate() error {
	if strings.TrimSpace(r.URL) == "" {
		return ErrInvalidRequest
	}
	return nil
}

// joinURL mirrors the usual base URL behaviour of HTTP clients: absolute
// URLs are used as is, anything else is appended to base with exactly one
// slash in between.
func joinURL(base, u string) string {
	if base == "" || strings.Contains(u, "://") {
		return u
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(u, "/")
}
