// store_memory.go: in-memory KVStore backed by a locked hash map
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package recache

import (
	"iter"
	"sort"
	"sync"
)

// InMemoryStore is the authoritative KVStore implementation: it owns entry
// timestamps and participates fully in the sweep. A single RWMutex guards
// the map, which makes AddOrUpdate trivially atomic per key; entry
// timestamps themselves are atomics, so reads never tear.
type InMemoryStore[K comparable, V any] struct {
	mu           sync.RWMutex
	entries      map[K]*Entry[V]
	timeProvider TimeProvider
}

// InMemoryStoreOption configures an InMemoryStore.
type InMemoryStoreOption[K comparable, V any] func(*InMemoryStore[K, V])

// WithStoreTimeProvider overrides the store's time source. Tests use this to
// drive freshness deterministically.
func WithStoreTimeProvider[K comparable, V any](tp TimeProvider) InMemoryStoreOption[K, V] {
	return func(s *InMemoryStore[K, V]) {
		if tp != nil {
			s.timeProvider = tp
		}
	}
}

// NewInMemoryStore creates an empty in-memory store. When the store is
// handed to New, the coordinator replaces the store's time provider with
// Options.TimeProvider so load stamps and freshness checks share one clock;
// WithStoreTimeProvider matters only for standalone store use.
func NewInMemoryStore[K comparable, V any](opts ...InMemoryStoreOption[K, V]) *InMemoryStore[K, V] {
	s := &InMemoryStore[K, V]{
		entries:      make(map[K]*Entry[V]),
		timeProvider: &systemTimeProvider{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore[K, V]) setTimeProvider(tp TimeProvider) {
	if tp != nil {
		s.timeProvider = tp
	}
}

// TryGet returns the entry for key, if present.
func (s *InMemoryStore[K, V]) TryGet(key K) (*Entry[V], bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	return e, ok
}

// TryAdd inserts value under key and returns true iff the key was absent.
func (s *InMemoryStore[K, V]) TryAdd(key K, value V) bool {
	now := s.timeProvider.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[key]; exists {
		return false
	}
	s.entries[key] = NewEntry(value, now)
	return true
}

// AddOrUpdate inserts value under key or replaces the existing entry with
// update(key, oldValue). The whole operation is atomic per key.
func (s *InMemoryStore[K, V]) AddOrUpdate(key K, value V, update func(K, V) V) *Entry[V] {
	now := s.timeProvider.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, exists := s.entries[key]; exists && update != nil {
		e := NewEntry(update(key, old.Value()), now)
		s.entries[key] = e
		return e
	}
	e := NewEntry(value, now)
	s.entries[key] = e
	return e
}

// TryRemove removes and returns the entry for key, if present.
func (s *InMemoryStore[K, V]) TryRemove(key K) (*Entry[V], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if ok {
		delete(s.entries, key)
	}
	return e, ok
}

// Entries yields a weakly-consistent snapshot: pairs are copied under a read
// lock, then yielded without it, so the map keeps moving underneath.
func (s *InMemoryStore[K, V]) Entries() iter.Seq2[K, *Entry[V]] {
	return func(yield func(K, *Entry[V]) bool) {
		s.mu.RLock()
		snapshot := make([]storePair[K, V], 0, len(s.entries))
		for k, e := range s.entries {
			snapshot = append(snapshot, storePair[K, V]{key: k, entry: e})
		}
		s.mu.RUnlock()
		for _, p := range snapshot {
			if !yield(p.key, p.entry) {
				return
			}
		}
	}
}

type storePair[K comparable, V any] struct {
	key   K
	entry *Entry[V]
}

// FlushInvalidated performs the two-phase sweep. Phase one walks a snapshot
// once and invalidates every entry loaded before staleCutoff; a pair whose
// invalidate returns false was already removed by a concurrent writer and is
// retained among the survivors to avoid double-counting. Phase two trims the
// survivors toward maxSize, evicting the pairs with the smallest TimeLoaded
// first and breaking ties by smallest TimeLastAccessed.
//
// Stale removal is mandatory; size trimming is secondary pressure relief.
// The oldest-load/oldest-access composite approximates LRU without holding
// the map lock across the sweep.
func (s *InMemoryStore[K, V]) FlushInvalidated(maxSize int, staleCutoff int64, invalidate func(K) bool) int {
	surviving := make([]storePair[K, V], 0)
	for k, e := range s.Entries() {
		if e.TimeLoaded() < staleCutoff {
			if invalidate(k) {
				continue
			}
			// Already gone; keep the pair so it is not counted twice.
		}
		surviving = append(surviving, storePair[K, V]{key: k, entry: e})
	}

	if maxSize > 0 && len(surviving) > maxSize {
		over := len(surviving) - maxSize
		sort.Slice(surviving, func(i, j int) bool {
			li, lj := surviving[i].entry.TimeLoaded(), surviving[j].entry.TimeLoaded()
			if li != lj {
				return li < lj
			}
			return surviving[i].entry.TimeLastAccessed() < surviving[j].entry.TimeLastAccessed()
		})
		for _, p := range surviving[:over] {
			invalidate(p.key)
		}
		surviving = surviving[over:]
	}

	return len(surviving)
}

// InvalidateAll evicts every entry in a snapshot through the callback.
func (s *InMemoryStore[K, V]) InvalidateAll(invalidate func(K) bool) {
	for k := range s.Entries() {
		invalidate(k)
	}
}
