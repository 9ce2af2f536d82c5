package cache

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/Sternrassler/stale-fetcher/pkg/upstream"
)

func TestKeyDeriver_Derive(t *testing.T) {
	d := KeyDeriver{}

	tests := []struct {
		name     string
		a        upstream.Request
		b        upstream.Request
		wantSame bool
	}{
		{
			name:     "same url no headers",
			a:        upstream.NewRequest("/a", nil),
			b:        upstream.NewRequest("/a", nil),
			wantSame: true,
		},
		{
			name:     "same url same headers",
			a:        upstream.NewRequest("/a", http.Header{"K": []string{"1"}}),
			b:        upstream.NewRequest("/a", http.Header{"K": []string{"1"}}),
			wantSame: true,
		},
		{
			name:     "header value differs",
			a:        upstream.NewRequest("/a", http.Header{"K": []string{"1"}}),
			b:        upstream.NewRequest("/a", http.Header{"K": []string{"2"}}),
			wantSame: false,
		},
		{
			name:     "url differs",
			a:        upstream.NewRequest("/a", nil),
			b:        upstream.NewRequest("/b", nil),
			wantSame: false,
		},
		{
			name:     "header present vs absent",
			a:        upstream.NewRequest("/a", nil),
			b:        upstream.NewRequest("/a", http.Header{"K": []string{"1"}}),
			wantSame: false,
		},
		{
			name:     "header name case is irrelevant",
			a:        upstream.NewRequest("/a", http.Header{"x-api-key": []string{"1"}}),
			b:        upstream.NewRequest("/a", http.Header{"X-Api-Key": []string{"1"}}),
			wantSame: true,
		},
		{
			name: "header order is irrelevant",
			a: upstream.NewRequest("/a", http.Header{
				"A": []string{"1"},
				"B": []string{"2"},
			}),
			b: upstream.NewRequest("/a", http.Header{
				"B": []string{"2"},
				"A": []string{"1"},
			}),
			wantSame: true,
		},
		{
			name:     "value order matters",
			a:        upstream.NewRequest("/a", http.Header{"Accept": []string{"a", "b"}}),
			b:        upstream.NewRequest("/a", http.Header{"Accept": []string{"b", "a"}}),
			wantSame: false,
		},
		{
			name:     "field boundaries are unambiguous",
			a:        upstream.NewRequest("/a", http.Header{"K": []string{"12"}}),
			b:        upstream.NewRequest("/a", http.Header{"K": []string{"1", "2"}}),
			wantSame: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ka, err := d.Derive(tt.a)
			if err != nil {
				t.Fatalf("Derive(a) failed: %v", err)
			}
			kb, err := d.Derive(tt.b)
			if err != nil {
				t.Fatalf("Derive(b) failed: %v", err)
			}
			if (ka == kb) != tt.wantSame {
				t.Errorf("keys equal = %v, want %v (a=%s b=%s)", ka == kb, tt.wantSame, ka, kb)
			}
		})
	}
}

func TestKeyDeriver_Format(t *testing.T) {
	req := upstream.NewRequest("some", http.Header{"Apikey": []string{"12"}})

	key, err := KeyDeriver{}.Derive(req)
	if err != nil {
		t.Fatalf("Derive failed: %v", err)
	}
	if len(key) != 64 {
		t.Errorf("unscoped key length = %d, want 64 hex chars", len(key))
	}

	scoped, err := KeyDeriver{Scope: "instance1"}.Derive(req)
	if err != nil {
		t.Fatalf("Derive failed: %v", err)
	}
	parts := strings.Split(scoped, "-")
	if len(parts) != 2 {
		t.Fatalf("scoped key %q should have 2 dash-separated parts", scoped)
	}
	if parts[0] != "instance1" || parts[1] != key {
		t.Errorf("scoped key = %q, want %q", scoped, "instance1-"+key)
	}
}

func TestKeyDeriver_InvalidRequest(t *testing.T) {
	_, err := KeyDeriver{}.Derive(upstream.NewRequest("", nil))
	if !errors.Is(err, upstream.ErrInvalidRequest) {
		t.Errorf("Expected ErrInvalidRequest, got %v", err)
	}
}

// TestKeyDeriver_Determinism ensures same input always produces same key
func TestKeyDeriver_Determinism(t *testing.T) {
	req := upstream.NewRequest("/v1/markets/10000002/orders/", http.Header{
		"Authorization": []string{"Bearer abc"},
		"X-Page":        []string{"1"},
		"Accept":        []string{"application/json", "text/plain"},
	})

	results := make([]string, 10)
	for i := 0; i < 10; i++ {
		key, err := KeyDeriver{Scope: "s"}.Derive(req)
		if err != nil {
			t.Fatalf("Derive failed: %v", err)
		}
		results[i] = key
	}

	first := results[0]
	for i, result := range results {
		if result != first {
			t.Errorf("result[%d] = %v, want %v (not deterministic)", i, result, first)
		}
	}
}
