package fetcher

import (
	"net/http"

	"github.com/lestrrat-go/option"

	"github.com/Sternrassler/stale-fetcher/pkg/upstream"
)

// RequestOption configures the request descriptor built by Get, Fetch
// helpers and Invalidate.
type RequestOption interface {
	option.Interface
	requestOption()
}

type requestOption struct {
	option.Interface
}

func (*requestOption) requestOption() {}

type identHeader struct{}
type identHeaders struct{}

type headerField struct {
	name  string
	value string
}

// WithHeader adds a request header. Headers are part of the cache key.
func WithHeader(name, value string) RequestOption {
	return &requestOption{option.New(identHeader{}, headerField{name: name, value: value})}
}

// WithHeaders adds all headers of h. Headers are part of the cache key.
func WithHeaders(h http.Header) RequestOption {
	return &requestOption{option.New(identHeaders{}, h.Clone())}
}

// NewRequest builds a request descriptor for url.
func NewRequest(url string, options ...RequestOption) upstream.Request {
	var header http.Header
	for _, opt := range options {
		if header == nil {
			header = http.Header{}
		}
		//nolint:forcetypeassert
		switch opt.Ident() {
		case identHeader{}:
			f := opt.Value().(headerField)
			header.Add(f.name, f.value)
		case identHeaders{}:
			for name, values := range opt.Value().(http.Header) {
				for _, v := range values {
					header.Add(name, v)
				}
			}
		}
	}
	return upstream.Request{URL: url, Header: header}
}
