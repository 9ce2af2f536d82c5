package cache

import (
	"bytes"
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. Expired entries are never returned
// and are removed by a janitor goroutine when a cleanup interval is set.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	done    chan struct{}
	once    sync.Once
}

// NewMemoryStore creates an in-memory store. A cleanupInterval <= 0
// disables the janitor; expired entries are then dropped lazily on Get.
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]*memoryEntry),
		done:    make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go s.janitor(cleanupInterval)
	}
	return s
}

// Get retrieves the value stored under key.
// Returns ErrCacheMiss if the key doesn't exist or is expired.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		CacheMisses.WithLabelValues(layerMemory).Inc()
		return nil, ErrCacheMiss
	}
	if e.expired(time.Now()) {
		s.mu.Lock()
		// Only drop the entry we looked at; a concurrent Set may have replaced it.
		if s.entries[key] == e {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		CacheMisses.WithLabelValues(layerMemory).Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues(layerMemory).Inc()
	return bytes.Clone(e.data), nil
}

// Set stores a copy of value under key for ttl.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}

	e := &memoryEntry{
		data:    bytes.Clone(value),
		expires: time.Now().Add(ttl),
	}

	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()

	CacheWrittenBytes.WithLabelValues(layerMemory).Add(float64(len(value)))
	return nil
}

// TTL returns the remaining lifetime of key.
// Returns ErrCacheMiss if the key doesn't exist or is expired.
func (s *MemoryStore) TTL(_ context.Context, key string) (time.Duration, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return 0, ErrCacheMiss
	}
	ttl := e.remaining(time.Now())
	if ttl == 0 {
		return 0, ErrCacheMiss
	}
	return ttl, nil
}

// Delete removes a cache entry.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Len returns the number of entries, expired ones included until they are
// cleaned up.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close stops the janitor. The store stays usable.
func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *MemoryStore) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.deleteExpired()
		}
	}
}

func (s *MemoryStore) deleteExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for key, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, key)
		}
	}
}
