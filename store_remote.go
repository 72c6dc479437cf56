// store_remote.go: Redis-backed KVStore
//
// The remote system owns expiry: every write carries the configured item
// expiry as the Redis TTL, and the sweep operations are deliberate no-ops.
// Entry timestamps round-trip through the wire record but are best-effort —
// the authoritative eviction decision is Redis's.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package recache

import (
	"context"
	"encoding/json"
	"iter"
	"time"

	"github.com/redis/go-redis/v9"
)

// wireEntry is the JSON record stored under each remote key.
type wireEntry struct {
	Value            json.RawMessage `json:"v"`
	TimeLoaded       int64           `json:"tl"`
	TimeLastAccessed int64           `json:"ta"`
}

// RemoteStore delegates the KVStore contract to a Redis keyspace. Keys are
// namespaced "<name>:<key>"; values are serialized as JSON.
//
// Because Redis enforces the TTL, MaxSizeIndicator and the local stale
// cutoff have no effect in this mode: FlushInvalidated only reports the
// remote population and InvalidateAll is a no-op.
type RemoteStore[K comparable, V any] struct {
	client       redis.UniversalClient
	name         string
	expiry       time.Duration
	codec        KeyCodec[K]
	timeProvider TimeProvider
	logger       Logger
}

// RemoteStoreOption configures a RemoteStore.
type RemoteStoreOption[K comparable, V any] func(*RemoteStore[K, V])

// WithRemoteKeyCodec supplies the key codec for non-primitive key types.
func WithRemoteKeyCodec[K comparable, V any](codec KeyCodec[K]) RemoteStoreOption[K, V] {
	return func(s *RemoteStore[K, V]) {
		if codec != nil {
			s.codec = codec
		}
	}
}

// WithRemoteTimeProvider overrides the store's time source.
func WithRemoteTimeProvider[K comparable, V any](tp TimeProvider) RemoteStoreOption[K, V] {
	return func(s *RemoteStore[K, V]) {
		if tp != nil {
			s.timeProvider = tp
		}
	}
}

// WithRemoteLogger sets the logger for backend failures.
func WithRemoteLogger[K comparable, V any](logger Logger) RemoteStoreOption[K, V] {
	return func(s *RemoteStore[K, V]) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewRemoteStore creates a Redis-backed store named name whose writes carry
// expiry as the Redis TTL. Without WithRemoteKeyCodec the key type must be
// one of the primitives DefaultKeyCodec supports; otherwise construction
// fails with a RECACHE_KEY_CODEC error.
func NewRemoteStore[K comparable, V any](client redis.UniversalClient, name string, expiry time.Duration, opts ...RemoteStoreOption[K, V]) (*RemoteStore[K, V], error) {
	if client == nil {
		return nil, NewErrInvalidStore(name)
	}
	s := &RemoteStore[K, V]{
		client:       client,
		name:         name,
		expiry:       expiry,
		timeProvider: &systemTimeProvider{},
		logger:       NoOpLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.codec == nil {
		codec, err := DefaultKeyCodec[K]()
		if err != nil {
			return nil, err
		}
		s.codec = codec
	}
	return s, nil
}

func (s *RemoteStore[K, V]) setTimeProvider(tp TimeProvider) {
	if tp != nil {
		s.timeProvider = tp
	}
}

func (s *RemoteStore[K, V]) remoteKey(key K) (string, error) {
	k, err := s.codec.Encode(key)
	if err != nil {
		return "", err
	}
	return s.name + ":" + k, nil
}

func (s *RemoteStore[K, V]) encode(value V, loaded, accessed int64) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireEntry{Value: raw, TimeLoaded: loaded, TimeLastAccessed: accessed})
}

func (s *RemoteStore[K, V]) decode(data []byte) (*Entry[V], error) {
	var wire wireEntry
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	var value V
	if err := json.Unmarshal(wire.Value, &value); err != nil {
		return nil, err
	}
	e := NewEntry(value, wire.TimeLoaded)
	e.Touch(wire.TimeLastAccessed)
	return e, nil
}

// TryGet fetches and decodes the entry for key. The last-access timestamp is
// refreshed locally without writing back. Backend failures report a miss.
func (s *RemoteStore[K, V]) TryGet(key K) (*Entry[V], bool) {
	rk, err := s.remoteKey(key)
	if err != nil {
		return nil, false
	}
	data, err := s.client.Get(context.Background(), rk).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn("remote get failed", "cache", s.name, "error", err)
		}
		return nil, false
	}
	e, err := s.decode(data)
	if err != nil {
		s.logger.Warn("remote entry corrupt", "cache", s.name, "error", err)
		return nil, false
	}
	e.Touch(s.timeProvider.Now())
	return e, true
}

// TryAdd inserts value only when the remote key is absent (SET NX).
func (s *RemoteStore[K, V]) TryAdd(key K, value V) bool {
	rk, err := s.remoteKey(key)
	if err != nil {
		return false
	}
	now := s.timeProvider.Now()
	data, err := s.encode(value, now, now)
	if err != nil {
		return false
	}
	ok, err := s.client.SetNX(context.Background(), rk, data, s.expiry).Result()
	if err != nil {
		s.logger.Warn("remote add failed", "cache", s.name, "error", err)
		return false
	}
	return ok
}

// AddOrUpdate writes update(key, oldValue) when an entry exists, value
// otherwise, refreshing the Redis TTL. Returns nil when the backend rejects
// the write; the coordinator still serves the loaded value in that case.
func (s *RemoteStore[K, V]) AddOrUpdate(key K, value V, update func(K, V) V) *Entry[V] {
	rk, err := s.remoteKey(key)
	if err != nil {
		return nil
	}
	next := value
	if update != nil {
		if prior, ok := s.TryGet(key); ok {
			next = update(key, prior.Value())
		}
	}
	now := s.timeProvider.Now()
	data, err := s.encode(next, now, now)
	if err != nil {
		return nil
	}
	if err := s.client.Set(context.Background(), rk, data, s.expiry).Err(); err != nil {
		s.logger.Warn("remote write rejected", "cache", s.name, "error", err)
		return nil
	}
	return NewEntry(next, now)
}

// TryRemove deletes the remote key and returns the entry it held (GETDEL).
func (s *RemoteStore[K, V]) TryRemove(key K) (*Entry[V], bool) {
	rk, err := s.remoteKey(key)
	if err != nil {
		return nil, false
	}
	data, err := s.client.GetDel(context.Background(), rk).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn("remote remove failed", "cache", s.name, "error", err)
		}
		return nil, false
	}
	e, err := s.decode(data)
	if err != nil {
		return nil, false
	}
	return e, true
}

// Entries scans the cache's namespace and yields decoded pairs. The scan is
// weakly consistent by Redis's own contract.
func (s *RemoteStore[K, V]) Entries() iter.Seq2[K, *Entry[V]] {
	return func(yield func(K, *Entry[V]) bool) {
		ctx := context.Background()
		prefix := s.name + ":"
		scan := s.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
		for scan.Next(ctx) {
			rk := scan.Val()
			key, err := s.codec.Decode(rk[len(prefix):])
			if err != nil {
				continue
			}
			data, err := s.client.Get(ctx, rk).Bytes()
			if err != nil {
				continue
			}
			e, err := s.decode(data)
			if err != nil {
				continue
			}
			if !yield(key, e) {
				return
			}
		}
		if err := scan.Err(); err != nil {
			s.logger.Warn("remote scan failed", "cache", s.name, "error", err)
		}
	}
}

// FlushInvalidated is a no-op eviction: Redis owns the TTL, so neither the
// stale cutoff nor maxSize is enforced here. The returned count reports the
// current remote population so the coordinator's flush callback stays
// meaningful.
func (s *RemoteStore[K, V]) FlushInvalidated(maxSize int, staleCutoff int64, invalidate func(K) bool) int {
	ctx := context.Background()
	n := 0
	scan := s.client.Scan(ctx, 0, s.name+":*", 0).Iterator()
	for scan.Next(ctx) {
		n++
	}
	return n
}

// InvalidateAll is a no-op: the remote system handles eviction itself.
func (s *RemoteStore[K, V]) InvalidateAll(invalidate func(K) bool) {
	s.logger.Debug("invalidateAll is a no-op for remote stores", "cache", s.name)
}
