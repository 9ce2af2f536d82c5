package cache

import (
	"time"
)

// memoryEntry is a value held by a MemoryStore.
type memoryEntry struct {
	data    []byte
	expires time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !now.Before(e.expires)
}

// remaining is the lifetime left at now, 0 once expired.
func (e *memoryEntry) remaining(now time.Time) time.Duration {
	if ttl := e.expires.Sub(now); ttl > 0 {
		return ttl
	}
	return 0
}
