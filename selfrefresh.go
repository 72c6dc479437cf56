// selfrefresh.go: periodic proactive reload of every held key
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package recache

import (
	"context"
	"sync"
	"time"
)

// SelfRefreshingCache wraps a coordinator with a control loop that, on a
// fixed cadence, passes every currently-held key through GetOrLoadWith with
// resetExpiryOnHit set: a fresh entry has its freshness clock restarted
// without a loader call, and a stale entry is reloaded. Entries whose upstream rarely changes but whose
// loader is expensive benefit from the amortized proactive refresh; the
// sweep plus the size indicator still bound the total population.
//
// The full coordinator surface is available through the embedded Cache.
type SelfRefreshingCache[K comparable, V any] struct {
	*Cache[K, V]

	refreshInterval time.Duration
	ctx             context.Context
	cancel          context.CancelFunc
	done            chan struct{}
}

// NewSelfRefreshing creates a coordinator over store and starts the refresh
// loop at opts.RefreshInterval. The loader must not be nil: the loop has no
// caller to supply one.
func NewSelfRefreshing[K comparable, V any](store KVStore[K, V], opts SelfRefreshingOptions, loader LoaderFunc[K, V]) (*SelfRefreshingCache[K, V], error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if loader == nil {
		return nil, NewErrInvalidLoader("")
	}
	inner, err := New(store, opts.Options, loader)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &SelfRefreshingCache[K, V]{
		Cache:           inner,
		refreshInterval: opts.RefreshInterval,
		ctx:             ctx,
		cancel:          cancel,
		done:            make(chan struct{}),
	}
	go c.refreshLoop()
	return c, nil
}

// refreshLoop snapshots the key set each tick and refreshes the keys in
// parallel. A key invalidated between snapshot and refresh simply
// re-populates; no ordering is guaranteed across keys.
func (c *SelfRefreshingCache[K, V]) refreshLoop() {
	defer close(c.done)
	ticker := time.NewTicker(c.refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.refreshAll()
		}
	}
}

// refreshAll refreshes every key in the current snapshot (reset if fresh,
// reloaded if stale), waiting for the batch so refresh rounds do not pile up
// behind a slow loader.
func (c *SelfRefreshingCache[K, V]) refreshAll() {
	keys := c.Keys()
	if len(keys) == 0 {
		return
	}
	var wg sync.WaitGroup
	for _, key := range keys {
		wg.Add(1)
		go func(key K) {
			defer wg.Done()
			if _, err := c.GetOrLoadWith(c.ctx, key, true, c.loader); err != nil {
				if c.ctx.Err() != nil {
					return
				}
				c.logger.Warn("self-refresh failed",
					"cache", c.name, "key", keyToString(key), "error", err)
			}
		}(key)
	}
	wg.Wait()
}

// RefreshInterval returns the refresh cadence.
func (c *SelfRefreshingCache[K, V]) RefreshInterval() time.Duration {
	return c.refreshInterval
}

// Close stops the refresh loop, cancels in-flight refreshes cooperatively
// and closes the wrapped coordinator.
func (c *SelfRefreshingCache[K, V]) Close() error {
	c.cancel()
	<-c.done
	return c.Cache.Close()
}
