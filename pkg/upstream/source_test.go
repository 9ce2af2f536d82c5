package upstream

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/Sternrassler/stale-fetcher/internal/testutil"
)

func TestNewHTTPSource_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      HTTPConfig
		expectError bool
	}{
		{
			name:   "default config",
			config: DefaultHTTPConfig(),
		},
		{
			name:   "absolute base url",
			config: HTTPConfig{BaseURL: "https://api.example.com/v1"},
		},
		{
			name:        "relative base url",
			config:      HTTPConfig{BaseURL: "/v1"},
			expectError: true,
		},
		{
			name:        "unparsable base url",
			config:      HTTPConfig{BaseURL: "http://[::1"},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source, err := NewHTTPSource(tt.config)
			if tt.expectError {
				if err == nil {
					t.Error("Expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if source == nil {
				t.Fatal("Source is nil")
			}
		})
	}
}

func TestHTTPSource_Fetch_Success(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.SetResponse("/items", testutil.NewJSONResponse(`{"id": 1}`))

	source, err := NewHTTPSource(HTTPConfig{BaseURL: mock.URL()})
	if err != nil {
		t.Fatalf("NewHTTPSource failed: %v", err)
	}

	payload, err := source.Fetch(context.Background(), NewRequest("items", nil))
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(payload.Data) != `{"id": 1}` {
		t.Errorf("Data = %s, want %s", payload.Data, `{"id": 1}`)
	}
	if payload.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", payload.StatusCode)
	}
	if mock.PathCount("/items") != 1 {
		t.Errorf("PathCount = %d, want 1", mock.PathCount("/items"))
	}
}

func TestHTTPSource_Fetch_Headers(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()

	source, err := NewHTTPSource(HTTPConfig{
		BaseURL:   mock.URL(),
		UserAgent: "TestApp/1.0.0",
		Header:    http.Header{"X-Api-Key": []string{"default"}, "X-Tenant": []string{"a"}},
	})
	if err != nil {
		t.Fatalf("NewHTTPSource failed: %v", err)
	}

	req := NewRequest("/headers", http.Header{"X-Api-Key": []string{"override"}})
	if _, err := source.Fetch(context.Background(), req); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	got := mock.LastRequestHeader()
	if ua := got.Get("User-Agent"); ua != "TestApp/1.0.0" {
		t.Errorf("User-Agent = %q, want %q", ua, "TestApp/1.0.0")
	}
	if values := got.Values("X-Api-Key"); len(values) != 1 || values[0] != "override" {
		t.Errorf("X-Api-Key = %v, want [override]", values)
	}
	if tenant := got.Get("X-Tenant"); tenant != "a" {
		t.Errorf("X-Tenant = %q, want %q", tenant, "a")
	}
	if accept := got.Get("Accept"); accept != "application/json" {
		t.Errorf("Accept = %q, want application/json", accept)
	}
}

func TestHTTPSource_Fetch_ErrorStatus(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.SetResponse("/broken", testutil.NewServerErrorResponse())
	mock.SetResponse("/missing", testutil.NewNotFoundResponse())

	source, err := NewHTTPSource(HTTPConfig{BaseURL: mock.URL()})
	if err != nil {
		t.Fatalf("NewHTTPSource failed: %v", err)
	}

	tests := []struct {
		path       string
		wantStatus int
		wantClass  ErrorClass
	}{
		{path: "/broken", wantStatus: http.StatusInternalServerError, wantClass: ErrorClassServer},
		{path: "/missing", wantStatus: http.StatusNotFound, wantClass: ErrorClassClient},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			_, err := source.Fetch(context.Background(), NewRequest(tt.path, nil))
			var fetchErr *FetchError
			if !errors.As(err, &fetchErr) {
				t.Fatalf("Expected *FetchError, got %T (%v)", err, err)
			}
			if fetchErr.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", fetchErr.StatusCode, tt.wantStatus)
			}
			if fetchErr.Class != tt.wantClass {
				t.Errorf("Class = %q, want %q", fetchErr.Class, tt.wantClass)
			}
		})
	}
}

func TestHTTPSource_Fetch_NetworkError(t *testing.T) {
	mock := testutil.NewMockUpstream()
	base := mock.URL()
	mock.Close()

	source, err := NewHTTPSource(HTTPConfig{BaseURL: base, Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewHTTPSource failed: %v", err)
	}

	_, err = source.Fetch(context.Background(), NewRequest("/gone", nil))
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Expected *FetchError, got %T (%v)", err, err)
	}
	if fetchErr.Class != ErrorClassNetwork {
		t.Errorf("Class = %q, want %q", fetchErr.Class, ErrorClassNetwork)
	}
	if fetchErr.Unwrap() == nil {
		t.Error("Network error should wrap the transport error")
	}
}

func TestHTTPSource_Fetch_InvalidRequest(t *testing.T) {
	source, err := NewHTTPSource(DefaultHTTPConfig())
	if err != nil {
		t.Fatalf("NewHTTPSource failed: %v", err)
	}

	_, err = source.Fetch(context.Background(), NewRequest("  ", nil))
	if !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Expected ErrInvalidRequest, got %v", err)
	}
}

func TestHTTPSource_Fetch_CacheControl(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.SetResponse("/fresh", testutil.NewCacheControlResponse(`{}`, "public, max-age=120"))
	mock.SetResponse("/private", testutil.NewCacheControlResponse(`{}`, "no-store"))

	source, err := NewHTTPSource(HTTPConfig{BaseURL: mock.URL()})
	if err != nil {
		t.Fatalf("NewHTTPSource failed: %v", err)
	}

	fresh, err := source.Fetch(context.Background(), NewRequest("/fresh", nil))
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if fresh.MaxAge != 120*time.Second {
		t.Errorf("MaxAge = %v, want 2m0s", fresh.MaxAge)
	}
	if fresh.NoStore {
		t.Error("NoStore should be false")
	}

	private, err := source.Fetch(context.Background(), NewRequest("/private", nil))
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !private.NoStore {
		t.Error("NoStore should be true for no-store responses")
	}
}

func TestFreshness_Expires(t *testing.T) {
	h := http.Header{}
	h.Set("Expires", time.Now().Add(1*time.Hour).Format(http.TimeFormat))

	maxAge, noStore := freshness(h)
	if noStore {
		t.Error("NoStore should be false")
	}
	if maxAge < 59*time.Minute || maxAge > 61*time.Minute {
		t.Errorf("maxAge = %v, want about 1h", maxAge)
	}

	h.Set("Expires", time.Now().Add(-1*time.Hour).Format(http.TimeFormat))
	if maxAge, _ := freshness(h); maxAge != 0 {
		t.Errorf("maxAge for past Expires = %v, want 0", maxAge)
	}
}

func TestJoinURL(t *testing.T) {
	tests := []struct {
		base string
		u    string
		want string
	}{
		{base: "", u: "https://a.example/x", want: "https://a.example/x"},
		{base: "https://api.example", u: "450b96cc", want: "https://api.example/450b96cc"},
		{base: "https://api.example/", u: "/v1/items", want: "https://api.example/v1/items"},
		{base: "https://api.example", u: "http://other.example/y", want: "http://other.example/y"},
	}

	for _, tt := range tests {
		if got := joinURL(tt.base, tt.u); got != tt.want {
			t.Errorf("joinURL(%q, %q) = %q, want %q", tt.base, tt.u, got, tt.want)
		}
	}
}
