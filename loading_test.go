// loading_test.go: single-flight loading and circuit breaker tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package recache

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetOrLoad_LoadsOnceAndCaches(t *testing.T) {
	var loaderCalls atomic.Int64
	cache := newTestCache(t, testOptions("load-once"), func(ctx context.Context, key int) (string, error) {
		loaderCalls.Add(1)
		return fmt.Sprintf("value%d", key), nil
	})

	v, err := cache.GetOrLoad(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetOrLoad failed: %v", err)
	}
	if v != "value42" {
		t.Errorf("Expected value42, got %q", v)
	}

	// Idempotent within the expiry window: same value, single loader call.
	for i := 0; i < 10; i++ {
		v, err = cache.GetOrLoad(context.Background(), 42)
		if err != nil || v != "value42" {
			t.Fatalf("Repeat GetOrLoad returned (%q, %v)", v, err)
		}
	}
	if loaderCalls.Load() != 1 {
		t.Errorf("Expected exactly 1 loader call, got %d", loaderCalls.Load())
	}

	// And a direct Get sees the loaded value.
	if got, ok := cache.Get(42, false); !ok || got != "value42" {
		t.Errorf("Get after GetOrLoad returned (%q, %v)", got, ok)
	}
}

// Single-flight with unbounded wait: 15-way parallelism over 500 iterations
// across 5 distinct keys must trigger exactly 5 loader calls.
func TestGetOrLoad_SingleFlightWithWait(t *testing.T) {
	var loaderCalls atomic.Int64
	// Real time throughout: the loader sleeps.
	opts := Options{
		Name:                  "single-flight",
		ItemExpiry:            time.Minute,
		FlushInterval:         time.Hour,
		CircuitBreakerTimeout: WaitForever,
	}
	store := NewInMemoryStore[int, string]()
	cache, err := New(store, opts, func(ctx context.Context, key int) (string, error) {
		loaderCalls.Add(1)
		time.Sleep(time.Duration(rand.Int64N(50)) * time.Millisecond)
		return fmt.Sprintf("value%d", key), nil
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = cache.Close() }()

	sem := make(chan struct{}, 15)
	var wg sync.WaitGroup
	for i := 0; i < 500; i++ {
		key := 7
		switch i {
		case 100, 200, 300, 400:
			key = i
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(key int) {
			defer wg.Done()
			defer func() { <-sem }()
			if _, err := cache.GetOrLoad(context.Background(), key); err != nil {
				t.Errorf("GetOrLoad(%d) failed: %v", key, err)
			}
		}(key)
	}
	wg.Wait()

	if got := loaderCalls.Load(); got != 5 {
		t.Errorf("Expected exactly 5 loader calls, got %d", got)
	}
}

// Single-flight with zero timeout: latecomers short-circuit with a
// circuit-breaker error instead of waiting.
func TestGetOrLoad_ZeroTimeoutShortCircuits(t *testing.T) {
	var loaderCalls, timeouts atomic.Int64
	opts := Options{
		Name:                  "short-circuit",
		ItemExpiry:            time.Minute,
		FlushInterval:         time.Hour,
		CircuitBreakerTimeout: 0,
	}
	store := NewInMemoryStore[int, string]()
	cache, err := New(store, opts, func(ctx context.Context, key int) (string, error) {
		loaderCalls.Add(1)
		time.Sleep(time.Duration(10+rand.Int64N(40)) * time.Millisecond)
		return fmt.Sprintf("value%d", key), nil
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = cache.Close() }()

	sem := make(chan struct{}, 15)
	var wg sync.WaitGroup
	for i := 0; i < 500; i++ {
		key := 7
		switch i {
		case 100, 200, 300, 400:
			key = i
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(key int) {
			defer wg.Done()
			defer func() { <-sem }()
			if _, err := cache.GetOrLoad(context.Background(), key); err != nil {
				if !IsCircuitBreakerTimeout(err) {
					t.Errorf("Unexpected error kind: %v", err)
					return
				}
				timeouts.Add(1)
			}
		}(key)
	}
	wg.Wait()

	if got := loaderCalls.Load(); got != 5 {
		t.Errorf("Expected exactly 5 loader calls, got %d", got)
	}
	if timeouts.Load() <= 5 {
		t.Errorf("Expected strictly more than 5 circuit-breaker timeouts, got %d", timeouts.Load())
	}
	if cache.Stats().CircuitBreakerTimeouts != uint64(timeouts.Load()) {
		t.Errorf("Stats disagree with observed timeouts")
	}
}

func TestGetOrLoad_CircuitBreakerErrorCarriesContext(t *testing.T) {
	release := make(chan struct{})
	opts := Options{
		Name:                  "breaker-context",
		ItemExpiry:            time.Minute,
		FlushInterval:         time.Hour,
		CircuitBreakerTimeout: 10 * time.Millisecond,
	}
	store := NewInMemoryStore[string, string]()
	cache, err := New(store, opts, func(ctx context.Context, key string) (string, error) {
		<-release
		return "v", nil
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = cache.Close() }()

	go func() { _, _ = cache.GetOrLoad(context.Background(), "slow") }()
	time.Sleep(5 * time.Millisecond) // let the first caller take the gate

	_, err = cache.GetOrLoad(context.Background(), "slow")
	close(release)
	if !IsCircuitBreakerTimeout(err) {
		t.Fatalf("Expected circuit-breaker timeout, got %v", err)
	}
	ctxMap := GetErrorContext(err)
	if ctxMap["cache"] != "breaker-context" || ctxMap["key"] != "slow" {
		t.Errorf("Error context missing cache/key: %v", ctxMap)
	}
	if ctxMap["timeout_ms"] != int64(10) {
		t.Errorf("Error context missing timeout_ms: %v", ctxMap)
	}
	if !IsRetryable(err) {
		t.Error("Circuit-breaker timeouts should be retryable")
	}
}

func TestGetOrLoad_LoaderErrorPropagatesAndRecordsNothing(t *testing.T) {
	sentinel := errors.New("backend down")
	var calls atomic.Int64
	cache := newTestCache(t, testOptions("loader-error"), func(ctx context.Context, key int) (string, error) {
		calls.Add(1)
		return "", sentinel
	})

	_, err := cache.GetOrLoad(context.Background(), 1)
	if err == nil || !errors.Is(err, sentinel) {
		t.Fatalf("Expected wrapped sentinel error, got %v", err)
	}
	if !IsLoaderError(err) {
		t.Errorf("Expected a loader error, got code %s", GetErrorCode(err))
	}
	if cache.HasKey(1) {
		t.Error("A failed load must record no entry")
	}

	// The gate was released: the next caller re-attempts the load.
	_, _ = cache.GetOrLoad(context.Background(), 1)
	if calls.Load() != 2 {
		t.Errorf("Expected a second loader attempt, got %d calls", calls.Load())
	}
}

func TestGetOrLoad_LoaderPanicIsRecovered(t *testing.T) {
	cache := newTestCache(t, testOptions("loader-panic"), func(ctx context.Context, key int) (string, error) {
		panic("loader exploded")
	})

	_, err := cache.GetOrLoad(context.Background(), 1)
	if GetErrorCode(err) != ErrCodePanicRecovered {
		t.Fatalf("Expected RECACHE_PANIC_RECOVERED, got %v", err)
	}

	// The gate must be free afterwards: a second call also fails cleanly
	// rather than deadlocking.
	done := make(chan struct{})
	go func() {
		_, _ = cache.GetOrLoad(context.Background(), 1)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Gate was not released after a loader panic")
	}
}

func TestGetOrLoad_NilLoader(t *testing.T) {
	cache := newTestCache(t, testOptions("nil-loader"), nil)

	_, err := cache.GetOrLoad(context.Background(), 1)
	if GetErrorCode(err) != ErrCodeInvalidLoader {
		t.Errorf("Expected RECACHE_INVALID_LOADER, got %v", err)
	}
}

func TestGetOrLoadWith_OverridesDefaultLoader(t *testing.T) {
	cache := newTestCache(t, testOptions("override"), func(ctx context.Context, key int) (string, error) {
		return "default", nil
	})

	v, err := cache.GetOrLoadWith(context.Background(), 1, false, func(ctx context.Context, key int) (string, error) {
		return "override", nil
	})
	if err != nil || v != "override" {
		t.Errorf("Expected override loader result, got (%q, %v)", v, err)
	}
}

func TestGetOrLoad_CancelledContext(t *testing.T) {
	cache := newTestCache(t, testOptions("cancelled"), func(ctx context.Context, key int) (string, error) {
		return "v", nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := cache.GetOrLoad(ctx, 1); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

// rejectingStore wraps an InMemoryStore but refuses every write, as a remote
// store does when the backend is unavailable.
type rejectingStore[K comparable, V any] struct {
	*InMemoryStore[K, V]
}

func (s *rejectingStore[K, V]) AddOrUpdate(key K, value V, update func(K, V) V) *Entry[V] {
	return nil
}

func TestGetOrLoad_StoreRejectionStillReturnsValue(t *testing.T) {
	store := &rejectingStore[int, string]{InMemoryStore: NewInMemoryStore[int, string]()}
	opts := testOptions("rejected")
	cache, err := New[int, string](store, opts, func(ctx context.Context, key int) (string, error) {
		return "loaded", nil
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = cache.Close() }()

	v, err := cache.GetOrLoad(context.Background(), 1)
	if err != nil {
		t.Fatalf("A rejected store write must not fail the call: %v", err)
	}
	if v != "loaded" {
		t.Errorf("Expected the loaded value, got %q", v)
	}
	if cache.HasKey(1) {
		t.Error("The rejected write should have left no entry")
	}
}

// Compile-time check that both stores satisfy the KVStore contract.
var (
	_ KVStore[string, int] = (*InMemoryStore[string, int])(nil)
	_ KVStore[string, int] = (*RemoteStore[string, int])(nil)
)
