// Package recache provides a generic read-through cache with per-key
// single-flight loading.
//
// ReCache coordinates concurrent loads so that a cold miss triggers at most
// one loader invocation per key, while other callers either wait on the
// per-key gate or fail fast with a circuit-breaker timeout. A background
// sweep evicts expired entries and trims oversized populations toward a soft
// size indicator. The backing store is pluggable: an in-memory store owns
// expiry timestamps, a Redis-backed store defers expiry to the remote system.
//
// Example usage:
//
//	store := recache.NewInMemoryStore[string, User]()
//	cache, _ := recache.New(store, recache.Options{
//		Name:          "users",
//		ItemExpiry:    5 * time.Minute,
//		FlushInterval: 30 * time.Second,
//	}, loadUser)
//
//	user, err := cache.GetOrLoad(ctx, "user:123")
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package recache

import "time"

const (
	// Version of the ReCache library
	Version = "v0.1.0-dev"

	// DefaultMaxSizeIndicator is the default soft ceiling on entry count,
	// enforced only at sweep time. 0 means unbounded.
	DefaultMaxSizeIndicator = 0

	// DefaultCircuitBreakerTimeout is the default bounded wait for callers
	// that lose the race to load a key.
	DefaultCircuitBreakerTimeout = 5 * time.Second

	// WaitForever makes secondary callers wait on the key gate without bound.
	WaitForever time.Duration = -1
)
