// loading.go: GetOrLoad with per-key gates (single-flight with a circuit breaker)
//
// Concurrent misses on one key are serialized through that key's gate: the
// first caller loads, later callers either wait out the configured window or
// fail fast with a circuit-breaker timeout. Across keys there is no
// coordination.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package recache

import (
	"context"
	"time"
)

// GetOrLoad returns the fresh value for key, invoking the cache's default
// loader on a miss. See GetOrLoadWith for the full contract.
func (c *Cache[K, V]) GetOrLoad(ctx context.Context, key K) (V, error) {
	return c.GetOrLoadWith(ctx, key, false, c.loader)
}

// GetOrLoadWith returns the fresh value for key, loading it with loader on a
// miss. If multiple goroutines miss the same key concurrently, exactly one
// runs the loader; the others wait up to the circuit-breaker timeout for the
// gate and then fail with RECACHE_CIRCUIT_BREAKER_TIMEOUT. A caller that
// acquires the gate re-checks the store first, so gate waiters normally find
// the freshly loaded entry without a second load.
//
// resetExpiryOnHit restarts the freshness clock of an entry served from
// cache; the self-refreshing loop uses this to keep refreshed entries alive.
//
// Loader errors propagate (wrapped with cache and key context) and record no
// entry: the next caller re-attempts the load. A backend-rejected store
// write does NOT fail the call; the loaded value is still returned.
func (c *Cache[K, V]) GetOrLoadWith(ctx context.Context, key K, resetExpiryOnHit bool, loader LoaderFunc[K, V]) (V, error) {
	var zero V

	// Fast path: fresh hit without touching the gate.
	if v, ok := c.Get(key, resetExpiryOnHit); ok {
		return v, nil
	}

	if loader == nil {
		return zero, NewErrInvalidLoader(keyToString(key))
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	gate := c.gates.ensure(key)
	timeout := time.Duration(c.cbTimeoutNanos.Load())
	if !gate.acquire(ctx, timeout) {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		c.cbTimeouts.Add(1)
		c.metrics.RecordCircuitBreakerTimeout()
		return zero, NewErrCircuitBreakerTimeout(c.name, keyToString(key), timeout)
	}
	defer gate.release()

	return c.getIfFreshElseLoad(ctx, key, resetExpiryOnHit, loader)
}

// getIfFreshElseLoad runs with the key gate held: re-check the store, then
// load, store and publish. The gate is released by the caller on every exit
// path.
func (c *Cache[K, V]) getIfFreshElseLoad(ctx context.Context, key K, resetExpiryOnHit bool, loader LoaderFunc[K, V]) (V, error) {
	var zero V

	now := c.timeProvider.Now()
	if e, ok := c.store.TryGet(key); ok && e.TimeLoaded() >= c.cutoff(now) {
		e.Touch(now)
		if resetExpiryOnHit {
			e.ResetExpiry(now)
		}
		c.hits.Add(1)
		c.metrics.RecordGet(c.timeProvider.Now()-now, true)
		c.fireHit(key, e.Value())
		return e.Value(), nil
	}

	prior, hadPrior := c.store.TryGet(key)

	start := c.timeProvider.Now()
	value, err := c.invokeLoader(ctx, key, loader)
	elapsed := c.timeProvider.Now() - start
	c.loads.Add(1)
	c.metrics.RecordLoad(elapsed, err != nil)
	if err != nil {
		c.loaderFailures.Add(1)
		c.logger.Error("loader failed", "cache", c.name, "key", keyToString(key), "error", err)
		return zero, err
	}

	entry := c.store.AddOrUpdate(key, value, func(K, V) V { return value })
	if entry == nil {
		// Backend refused the write. A transient store failure must not
		// surface as a loader failure, so the value still goes out.
		c.logger.Warn("store rejected write", "cache", c.name, "key", keyToString(key))
	}

	if hadPrior && c.disposeValues && !sameValue(any(prior.Value()), any(value)) {
		disposeValue(prior.Value())
	}

	c.fireMiss(key, value, elapsed/int64(time.Millisecond))
	return value, nil
}

// invokeLoader runs the loader with panic recovery. Loader errors are
// wrapped with cache and key context and marked retryable; the cause stays
// reachable through errors.Is/As.
func (c *Cache[K, V]) invokeLoader(ctx context.Context, key K, loader LoaderFunc[K, V]) (value V, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewErrPanicRecovered("GetOrLoad:"+keyToString(key), r)
		}
	}()
	value, err = loader(ctx, key)
	if err != nil {
		err = NewErrLoaderFailed(c.name, keyToString(key), err)
	}
	return value, err
}
