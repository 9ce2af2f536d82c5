package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/Sternrassler/stale-fetcher/pkg/upstream"
)

// KeyDeriver maps request descriptors to cache keys.
type KeyDeriver struct {
	// Scope is prepended to every key as "<scope>-". Fetchers sharing a
	// backend share entries only when their scopes match. Empty means no
	// prefix.
	Scope string
}

// Derive generates a deterministic cache key for req.
// Format: [scope-]hex(sha256(canonical request))
//
// Example:
//
//	3f1c...e9 (no scope)
//	a1b2c3-3f1c...e9
func (d KeyDeriver) Derive(req upstream.Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	sum := sha256.Sum256(canonicalRequest(req))
	digest := hex.EncodeToString(sum[:])

	if d.Scope == "" {
		return digest, nil
	}
	return d.Scope + "-" + digest, nil
}

// canonicalRequest serializes the URL and the headers. Header names are
// canonicalized and sorted; values keep their order since it is
// significant on the wire. Every field is length-prefixed, so distinct
// requests never share a serialization.
func canonicalRequest(req upstream.Request) []byte {
	buf := make([]byte, 0, 128)
	buf = appendField(buf, req.URL)

	if len(req.Header) == 0 {
		return buf
	}

	raw := make([]string, 0, len(req.Header))
	for name := range req.Header {
		raw = append(raw, name)
	}
	sort.Strings(raw)

	// Merge keys that only differ in case, in a stable order.
	merged := make(map[string][]string, len(raw))
	names := make([]string, 0, len(raw))
	for _, name := range raw {
		canonical := http.CanonicalHeaderKey(name)
		if _, seen := merged[canonical]; !seen {
			names = append(names, canonical)
		}
		merged[canonical] = append(merged[canonical], req.Header[name]...)
	}
	sort.Strings(names)

	for _, name := range names {
		buf = appendField(buf, name)
		buf = strconv.AppendInt(buf, int64(len(merged[name])), 10)
		buf = append(buf, ':')
		for _, v := range merged[name] {
			buf = appendField(buf, v)
		}
	}
	return buf
}

func appendField(buf []byte, s string) []byte {
	return append(buf, fmt.Sprintf("%d:%s", len(s), s)...)
}
