// Package cache implements an in-memory store with per-entry TTL, a
// capacity bound and insertion-order eviction. The search cache and the
// artifact cache are both built on it.
package cache

import (
	"sync"
	"time"
)

// EvictFunc is invoked outside the store lock whenever an entry leaves
// the store for any reason other than a caller reading it.
type EvictFunc[V any] func(key string, value V)

type entry[V any] struct {
	value      V
	insertedAt time.Time
	expiresAt  time.Time
}

// Store is a TTL- and capacity-bounded map. Expired entries are
// dropped lazily on access; Sweep exists for callers that need timely
// release of resources held by values.
type Store[V any] struct {
	mu      sync.Mutex
	entries map[string]*entry[V]
	order   []string

	ttl     time.Duration
	max     int
	onEvict EvictFunc[V]

	now func() time.Time
}

// New creates a store with the given per-entry TTL and capacity.
// max < 1 means unbounded. onEvict may be nil.
func New[V any](ttl time.Duration, max int, onEvict EvictFunc[V]) *Store[V] {
	return &Store[V]{
		entries: make(map[string]*entry[V]),
		ttl:     ttl,
		max:     max,
		onEvict: onEvict,
		now:     time.Now,
	}
}

// Set inserts a value. Re-inserting an existing key removes it first so
// the entry moves to the back of the eviction order with a fresh TTL.
// If the store is full the oldest insertion is evicted.
func (s *Store[V]) Set(key string, value V) {
	var evicted []evictedEntry[V]

	s.mu.Lock()
	if _, ok := s.entries[key]; ok {
		s.removeLocked(key)
	}
	for s.max > 0 && len(s.entries) >= s.max {
		oldest := s.order[0]
		evicted = append(evicted, evictedEntry[V]{oldest, s.entries[oldest].value})
		s.removeLocked(oldest)
	}
	now := s.now()
	s.entries[key] = &entry[V]{value: value, insertedAt: now, expiresAt: now.Add(s.ttl)}
	s.order = append(s.order, key)
	s.mu.Unlock()

	s.notify(evicted)
}

// Get returns the value for key if present and not expired. An expired
// entry is removed and its eviction callback fires.
func (s *Store[V]) Get(key string) (V, bool) {
	var zero V
	var expired *evictedEntry[V]

	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return zero, false
	}
	if s.now().After(e.expiresAt) {
		expired = &evictedEntry[V]{key, e.value}
		s.removeLocked(key)
		s.mu.Unlock()
		s.notify([]evictedEntry[V]{*expired})
		return zero, false
	}
	value := e.value
	s.mu.Unlock()
	return value, true
}

// Extend pushes an existing entry's expiry out by the store TTL from
// now. Used for sliding-TTL semantics; a miss is a no-op.
func (s *Store[V]) Extend(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || s.now().After(e.expiresAt) {
		return false
	}
	e.expiresAt = s.now().Add(s.ttl)
	return true
}

// Delete removes an entry without firing the eviction callback. The
// caller owns whatever cleanup the value needs.
func (s *Store[V]) Delete(key string) (V, bool) {
	var zero V
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return zero, false
	}
	s.removeLocked(key)
	return e.value, true
}

// Sweep removes every expired entry, firing eviction callbacks, and
// returns how many were removed.
func (s *Store[V]) Sweep() int {
	var evicted []evictedEntry[V]

	s.mu.Lock()
	now := s.now()
	for _, key := range append([]string(nil), s.order...) {
		if e := s.entries[key]; e != nil && now.After(e.expiresAt) {
			evicted = append(evicted, evictedEntry[V]{key, e.value})
			s.removeLocked(key)
		}
	}
	s.mu.Unlock()

	s.notify(evicted)
	return len(evicted)
}

// Clear removes everything, firing eviction callbacks.
func (s *Store[V]) Clear() {
	var evicted []evictedEntry[V]

	s.mu.Lock()
	for _, key := range s.order {
		evicted = append(evicted, evictedEntry[V]{key, s.entries[key].value})
	}
	s.entries = make(map[string]*entry[V])
	s.order = nil
	s.mu.Unlock()

	s.notify(evicted)
}

// Len reports the number of entries, expired ones included.
func (s *Store[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

type evictedEntry[V any] struct {
	key   string
	value V
}

func (s *Store[V]) notify(evicted []evictedEntry[V]) {
	if s.onEvict == nil {
		return
	}
	for _, e := range evicted {
		s.onEvict(e.key, e.value)
	}
}

func (s *Store[V]) removeLocked(key string) {
	delete(s.entries, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}
