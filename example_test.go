// example_test.go: runnable examples for the ReCache public API
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package recache_test

import (
	"context"
	"fmt"
	"time"

	"github.com/agilira/recache"
)

func ExampleCache_GetOrLoad() {
	store := recache.NewInMemoryStore[int, string]()
	cache, err := recache.New(store, recache.Options{
		Name:                  "users",
		ItemExpiry:            time.Minute,
		FlushInterval:         30 * time.Second,
		CircuitBreakerTimeout: recache.WaitForever,
	}, func(ctx context.Context, key int) (string, error) {
		return fmt.Sprintf("user-%d", key), nil
	})
	if err != nil {
		panic(err)
	}
	defer cache.Close()

	v, _ := cache.GetOrLoad(context.Background(), 42)
	fmt.Println(v)

	// The second call is a fresh hit; the loader does not run again.
	v, _ = cache.GetOrLoad(context.Background(), 42)
	fmt.Println(v)
	// Output:
	// user-42
	// user-42
}

func ExampleCache_TryAdd() {
	store := recache.NewInMemoryStore[string, int]()
	cache, err := recache.New[string, int](store, recache.Options{
		Name:          "counters",
		ItemExpiry:    time.Minute,
		FlushInterval: 30 * time.Second,
	}, nil)
	if err != nil {
		panic(err)
	}
	defer cache.Close()

	fmt.Println(cache.TryAdd("a", 1))
	fmt.Println(cache.TryAdd("a", 2))
	fmt.Println(cache.Count())
	// Output:
	// true
	// false
	// 1
}

func ExampleNewSelfRefreshing() {
	store := recache.NewInMemoryStore[string, string]()
	cache, err := recache.NewSelfRefreshing(store, recache.SelfRefreshingOptions{
		Options: recache.Options{
			Name:          "feeds",
			ItemExpiry:    time.Minute,
			FlushInterval: 30 * time.Second,
		},
		RefreshInterval: 10 * time.Second,
	}, func(ctx context.Context, key string) (string, error) {
		return "feed:" + key, nil
	})
	if err != nil {
		panic(err)
	}
	defer cache.Close()

	v, _ := cache.GetOrLoad(context.Background(), "news")
	fmt.Println(v)
	// Output:
	// feed:news
}
