// Package cache implements a keyed TTL store.
//
// Expiry is enforced lazily on every read; periodic eviction (driven by the
// owner, see EvictExpired) only reclaims memory and is never required for
// correctness.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	writtenAt time.Time
	ttl       time.Duration
}

// Store is an in-memory key/value store with per-entry TTLs. Safe for
// concurrent use.
type Store[V any] struct {
	mu      sync.Mutex
	entries map[string]entry[V]
	now     func() time.Time
}

// New returns an empty store. now may be nil, in which case time.Now is used;
// injecting it keeps expiry deterministic in tests.
func New[V any](now func() time.Time) *Store[V] {
	if now == nil {
		now = time.Now
	}
	return &Store[V]{
		entries: make(map[string]entry[V]),
		now:     now,
	}
}

// Get returns the value for key. A logically expired entry is treated as
// absent and dropped, whether or not a sweep has run since it expired.
func (s *Store[V]) Get(key string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if s.expired(e) {
		delete(s.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key with the given TTL, replacing any previous entry.
func (s *Store[V]) Set(key string, value V, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry[V]{value: value, writtenAt: s.now(), ttl: ttl}
}

// Delete removes key if present.
func (s *Store[V]) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Clear removes all entries.
func (s *Store[V]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]entry[V])
}

// Len returns the number of physically stored entries, expired or not.
func (s *Store[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// EvictExpired removes all logically expired entries and reports how many were
// dropped.
func (s *Store[V]) EvictExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for key, e := range s.entries {
		if s.expired(e) {
			delete(s.entries, key)
			evicted++
		}
	}
	return evicted
}

func (s *Store[V]) expired(e entry[V]) bool {
	return s.now().Sub(e.writtenAt) > e.ttl
}
