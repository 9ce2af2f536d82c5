package fetcher

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRequest(t *testing.T) {
	req := NewRequest("/items")
	assert.Equal(t, "/items", req.URL)
	assert.Nil(t, req.Header)

	h := http.Header{"X-Api-Key": {"secret"}}
	req = NewRequest("/items",
		WithHeader("accept-language", "en"),
		WithHeader("Accept-Language", "de"),
		WithHeaders(h),
	)
	assert.Equal(t, []string{"en", "de"}, req.Header.Values("Accept-Language"))
	assert.Equal(t, "secret", req.Header.Get("X-Api-Key"))

	h.Set("X-Api-Key", "changed")
	assert.Equal(t, "secret", req.Header.Get("X-Api-Key"), "options must not alias the caller's header")
}
