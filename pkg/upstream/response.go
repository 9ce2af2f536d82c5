package upstream

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lestrrat-go/httpcc"
)

// Payload is a successful upstream response.
type Payload struct {
	// Data is the raw response body.
	Data []byte

	// StatusCode is the HTTP status of the response.
	StatusCode int

	// Header holds the response headers.
	Header http.Header

	// MaxAge is the freshness lifetime announced by the upstream via
	// Cache-Control max-age or Expires. Zero when absent.
	MaxAge time.Duration

	// NoStore is set when the upstream forbids storing the response.
	NoStore bool
}

// payloadFromResponse reads the body and the caching headers of resp.
// The body is closed.
func payloadFromResponse(resp *http.Response) (*Payload, error) {
	if resp == nil {
		return nil, fmt.Errorf("response cannot be nil")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	p := &Payload{
		Data:       body,
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
	}
	p.MaxAge, p.NoStore = freshness(resp.Header)

	return p, nil
}

// freshness derives the freshness lifetime from Cache-Control, falling back
// to Expires. max-age wins over Expires as in RFC 9111.
func freshness(h http.Header) (time.Duration, bool) {
	if v := h.Get("Cache-Control"); v != "" {
		dir, err := httpcc.ParseResponse(v)
		if err == nil {
			if dir.NoStore() {
				return 0, true
			}
			if maxAge, ok := dir.MaxAge(); ok {
				return time.Duration(maxAge) * time.Second, false
			}
		}
	}

	if v := h.Get("Expires"); v != "" {
		expires, err := http.ParseTime(v)
		if err == nil {
			if d := time.Until(expires); d > 0 {
				return d, false
			}
		}
	}

	return 0, false
}
