// cache.go: cache coordinator — freshness, sweep, invalidation
//
// The coordinator composes a KVStore, the key-gate registry and a loader
// function. This file holds construction, the fresh-hit read path, the
// background sweep and disposal; the single-flight load path lives in
// loading.go.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package recache

import (
	"context"
	"iter"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"
)

// LoaderFunc produces the authoritative value for a key. Loaders may suspend
// on I/O; the context is cancelled when the owning cache closes.
type LoaderFunc[K comparable, V any] func(ctx context.Context, key K) (V, error)

// Cache coordinates lookups, per-key single-flight loading, freshness
// checks, expiry jitter and the background sweep over a KVStore.
// All methods are safe for concurrent use.
type Cache[K comparable, V any] struct {
	name   string
	store  KVStore[K, V]
	loader LoaderFunc[K, V]
	gates  gateRegistry[K]

	// Runtime-adjustable settings, stored as atomics so HotOptions can
	// retune a live cache without a lock on the read path.
	expiryNanos    atomic.Int64
	jitterPercent  atomic.Int64
	cbTimeoutNanos atomic.Int64 // -1 = WaitForever
	flushInterval  atomic.Int64
	maxSize        atomic.Int64

	disposeValues bool

	timeProvider TimeProvider
	logger       Logger
	metrics      MetricsCollector

	onHit   func(key any, value any)
	onMiss  func(key any, value any, elapsedMillis int64)
	onFlush func(remaining, flushed int, elapsedMillis int64)

	hits           atomic.Uint64
	misses         atomic.Uint64
	loads          atomic.Uint64
	loaderFailures atomic.Uint64
	flushes        atomic.Uint64
	flushedTotal   atomic.Uint64
	cbTimeouts     atomic.Uint64

	sweepStop chan struct{}
	sweepDone chan struct{}
	closeOnce sync.Once
}

// New creates a coordinator over store. The loader may be nil when callers
// always supply one via GetOrLoadWith. The background sweep starts
// immediately at opts.FlushInterval.
//
// The coordinator borrows the store: closing the cache invalidates all
// entries but does not release store resources it did not create.
func New[K comparable, V any](store KVStore[K, V], opts Options, loader LoaderFunc[K, V]) (*Cache[K, V], error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, NewErrInvalidStore(opts.Name)
	}

	c := &Cache[K, V]{
		name:          opts.Name,
		store:         store,
		loader:        loader,
		disposeValues: opts.DisposeExpiredValues,
		timeProvider:  opts.TimeProvider,
		logger:        opts.Logger,
		metrics:       opts.MetricsCollector,
		onHit:         opts.OnHit,
		onMiss:        opts.OnMiss,
		onFlush:       opts.OnFlush,
		sweepStop:     make(chan struct{}),
		sweepDone:     make(chan struct{}),
	}
	c.expiryNanos.Store(int64(opts.ItemExpiry))
	c.jitterPercent.Store(int64(opts.ExpiryJitterPercent))
	c.cbTimeoutNanos.Store(int64(opts.CircuitBreakerTimeout))
	c.flushInterval.Store(int64(opts.FlushInterval))
	c.maxSize.Store(int64(opts.MaxSizeIndicator))

	// One clock governs freshness: the store must stamp entries with the
	// same provider the coordinator checks them against.
	if setter, ok := store.(timeProviderSetter); ok {
		setter.setTimeProvider(opts.TimeProvider)
	}

	go c.sweepLoop()

	return c, nil
}

// Name returns the cache name.
func (c *Cache[K, V]) Name() string {
	return c.name
}

// cutoff computes the freshness cutoff for a read at now. With jitter
// enabled the effective expiry is spread ±half-window around the nominal
// expiry so that keys loaded together do not all expire together.
func (c *Cache[K, V]) cutoff(now int64) int64 {
	expiry := c.expiryNanos.Load()
	percent := c.jitterPercent.Load()
	if percent == 0 {
		return now - expiry
	}
	window := jitterWindow(time.Duration(expiry), int(percent))
	span := window
	if span < 1 {
		span = 1
	}
	// rand/v2 top-level functions share a thread-safe source.
	effective := expiry - window/2 + rand.Int64N(span)
	return now - effective
}

// flushCutoff is the unjittered cutoff used by the sweep. Sweep is
// eventually-consistent; jitter is a read-path concern.
func (c *Cache[K, V]) flushCutoff(now int64) int64 {
	return now - c.expiryNanos.Load()
}

// Get returns the value for key iff a fresh entry exists. It never invokes
// the loader; an expired entry is reported as a miss but left for the sweep
// to remove.
func (c *Cache[K, V]) Get(key K, resetExpiryOnHit bool) (V, bool) {
	var zero V
	now := c.timeProvider.Now()
	e, ok := c.store.TryGet(key)
	if !ok || e.TimeLoaded() < c.cutoff(now) {
		c.misses.Add(1)
		c.metrics.RecordGet(c.timeProvider.Now()-now, false)
		return zero, false
	}
	e.Touch(now)
	if resetExpiryOnHit {
		e.ResetExpiry(now)
	}
	c.hits.Add(1)
	c.metrics.RecordGet(c.timeProvider.Now()-now, true)
	c.fireHit(key, e.Value())
	return e.Value(), true
}

// TryGet is Get with an out-parameter shape for callers that already hold a
// destination.
func (c *Cache[K, V]) TryGet(key K, resetExpiryOnHit bool, value *V) bool {
	v, ok := c.Get(key, resetExpiryOnHit)
	if ok && value != nil {
		*value = v
	}
	return ok
}

// TryAdd inserts value under key without consulting freshness. Returns true
// iff the key was absent.
func (c *Cache[K, V]) TryAdd(key K, value V) bool {
	return c.store.TryAdd(key, value)
}

// Invalidate removes key from the store. When a removal occurred the value
// is disposed if configured and true is returned. The key's gate stays in
// the registry until disposal: evicting it here could hand a second caller
// a fresh gate while an earlier one is still between lookup and acquire.
func (c *Cache[K, V]) Invalidate(key K) bool {
	e, ok := c.store.TryRemove(key)
	if !ok {
		return false
	}
	if c.disposeValues {
		disposeValue(e.Value())
	}
	c.metrics.RecordEviction()
	return true
}

// InvalidateAll evicts every entry, sharing the Invalidate code path so
// disposal behaves identically to a single invalidation. Key gates stay in
// the registry, as they do for Invalidate.
func (c *Cache[K, V]) InvalidateAll() {
	c.store.InvalidateAll(c.Invalidate)
}

// HasKey reports store membership only; it does not consult freshness.
func (c *Cache[K, V]) HasKey(key K) bool {
	_, ok := c.store.TryGet(key)
	return ok
}

// Items yields the current (key, value) pairs lazily.
func (c *Cache[K, V]) Items() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for k, e := range c.store.Entries() {
			if !yield(k, e.Value()) {
				return
			}
		}
	}
}

// Keys returns a snapshot of the current key set.
func (c *Cache[K, V]) Keys() []K {
	var keys []K
	for k := range c.store.Entries() {
		keys = append(keys, k)
	}
	return keys
}

// Count materializes the entry iterator and returns its length.
func (c *Cache[K, V]) Count() int {
	n := 0
	for range c.store.Entries() {
		n++
	}
	return n
}

// FlushInvalidatedEntries runs one sweep: evict entries older than the
// unjittered cutoff, then trim toward the size indicator. Returns the
// surviving and evicted counts. Normally driven by the background timer;
// exposed for callers that want an eager sweep.
func (c *Cache[K, V]) FlushInvalidatedEntries() (remaining, flushed int) {
	start := c.timeProvider.Now()
	var evicted atomic.Int64
	invalidate := func(k K) bool {
		if c.Invalidate(k) {
			evicted.Add(1)
			return true
		}
		return false
	}
	remaining = c.store.FlushInvalidated(int(c.maxSize.Load()), c.flushCutoff(start), invalidate)
	flushed = int(evicted.Load())

	elapsed := c.timeProvider.Now() - start
	c.flushes.Add(1)
	c.flushedTotal.Add(uint64(flushed)) // #nosec G115 - eviction counts are non-negative
	c.metrics.RecordFlush(remaining, flushed, elapsed)
	c.fireFlush(remaining, flushed, elapsed/int64(time.Millisecond))
	c.logger.Debug("sweep completed",
		"cache", c.name, "remaining", remaining, "flushed", flushed,
		"elapsed_ms", elapsed/int64(time.Millisecond))
	return remaining, flushed
}

// sweepLoop drives the recurring sweep with a one-shot timer: the timer is
// consumed before the sweep and reset after it, so sweeps never overlap.
func (c *Cache[K, V]) sweepLoop() {
	timer := time.NewTimer(time.Duration(c.flushInterval.Load()))
	defer close(c.sweepDone)
	for {
		select {
		case <-c.sweepStop:
			timer.Stop()
			return
		case <-timer.C:
			c.FlushInvalidatedEntries()
			timer.Reset(time.Duration(c.flushInterval.Load()))
		}
	}
}

// Stats returns cache statistics.
func (c *Cache[K, V]) Stats() CacheStats {
	return CacheStats{
		Hits:                   c.hits.Load(),
		Misses:                 c.misses.Load(),
		Loads:                  c.loads.Load(),
		LoaderFailures:         c.loaderFailures.Load(),
		Flushes:                c.flushes.Load(),
		Flushed:                c.flushedTotal.Load(),
		CircuitBreakerTimeouts: c.cbTimeouts.Load(),
		Size:                   c.Count(),
	}
}

// Close stops the sweep timer, invalidates all entries (disposing values
// when configured) and drains the key-gate registry. The store itself is
// borrowed and left alive. Close is idempotent.
func (c *Cache[K, V]) Close() error {
	c.closeOnce.Do(func() {
		close(c.sweepStop)
		<-c.sweepDone
		c.InvalidateAll()
		c.gates.drain()
	})
	return nil
}

// Runtime setters used by HotOptions. Flush interval changes take effect on
// the next timer reset.

func (c *Cache[K, V]) setItemExpiry(d time.Duration) {
	if d > 0 {
		c.expiryNanos.Store(int64(d))
	}
}

func (c *Cache[K, V]) setExpiryJitterPercent(p int) {
	if p >= 0 && p <= 100 {
		c.jitterPercent.Store(int64(p))
	}
}

func (c *Cache[K, V]) setCircuitBreakerTimeout(d time.Duration) {
	if d >= 0 || d == WaitForever {
		c.cbTimeoutNanos.Store(int64(d))
	}
}

func (c *Cache[K, V]) setFlushInterval(d time.Duration) {
	if d > 0 {
		c.flushInterval.Store(int64(d))
	}
}

func (c *Cache[K, V]) setMaxSizeIndicator(n int) {
	if n >= 0 {
		c.maxSize.Store(int64(n))
	}
}

// Callback dispatch. User code must never affect cache state, so panics are
// swallowed.

func (c *Cache[K, V]) fireHit(key K, value V) {
	if c.onHit == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("hit callback panicked", "cache", c.name, "panic", r)
		}
	}()
	c.onHit(key, value)
}

func (c *Cache[K, V]) fireMiss(key K, value V, elapsedMillis int64) {
	if c.onMiss == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("miss callback panicked", "cache", c.name, "panic", r)
		}
	}()
	c.onMiss(key, value, elapsedMillis)
}

func (c *Cache[K, V]) fireFlush(remaining, flushed int, elapsedMillis int64) {
	if c.onFlush == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("flush callback panicked", "cache", c.name, "panic", r)
		}
	}()
	c.onFlush(remaining, flushed, elapsedMillis)
}
