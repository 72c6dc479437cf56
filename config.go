// config.go: configuration for ReCache
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package recache

import (
	"strings"
	"time"

	"github.com/agilira/go-timecache"
)

// Options holds configuration parameters for a cache coordinator.
type Options struct {
	// Name identifies the cache in errors, logs and remote key namespaces.
	// Must not be blank.
	Name string

	// ItemExpiry is how long a loaded entry stays fresh. Must be > 0.
	ItemExpiry time.Duration

	// ExpiryJitterPercent randomizes the freshness cutoff per read by the
	// given percent of ItemExpiry, spread ±half-window around the nominal
	// expiry. 0 disables jitter. Must be between 0 and 100.
	//
	// When many keys share the same expiry, synchronized expiry causes
	// thundering-herd reloads; jitter spreads them out.
	ExpiryJitterPercent int

	// FlushInterval is the cadence of the background sweep that evicts
	// expired entries and trims oversized populations. Must be > 0.
	FlushInterval time.Duration

	// MaxSizeIndicator is a soft ceiling on entry count, enforced only at
	// sweep time. 0 means unbounded.
	MaxSizeIndicator int

	// CircuitBreakerTimeout bounds how long a caller waits for another
	// caller's in-flight load of the same key. 0 means never wait beyond
	// the first holder; WaitForever means wait without bound.
	CircuitBreakerTimeout time.Duration

	// DisposeExpiredValues releases evicted values that implement
	// Disposable.
	DisposeExpiredValues bool

	// Logger is used for debugging and monitoring.
	// If nil, NoOpLogger is used. Default: NoOpLogger.
	Logger Logger

	// TimeProvider provides current time for freshness calculations.
	// New pushes it into the backing store as well, so entries are stamped
	// and checked against the same clock.
	// If nil, a default implementation is used. Default: system time.
	TimeProvider TimeProvider

	// MetricsCollector is used for collecting operation metrics.
	// If nil, NoOpMetricsCollector is used (zero overhead).
	MetricsCollector MetricsCollector

	// OnHit is called after a fresh cache hit. Panics are swallowed.
	OnHit func(key any, value any)

	// OnMiss is called after a loader populates an entry, with the load
	// duration in milliseconds. Panics are swallowed.
	OnMiss func(key any, value any, elapsedMillis int64)

	// OnFlush is called after each sweep with the surviving count, the
	// evicted count and the sweep duration in milliseconds. Panics are
	// swallowed.
	OnFlush func(remaining, flushed int, elapsedMillis int64)
}

// jitterWindow returns the derived jitter window in nanoseconds:
// ItemExpiry * ExpiryJitterPercent / 100.
func jitterWindow(expiry time.Duration, percent int) int64 {
	return int64(expiry) * int64(percent) / 100
}

// Validate checks configuration parameters and applies defaults for the
// optional collaborators. Unlike the collaborator defaults, the numeric
// parameters are rejected rather than normalized: a zero expiry or flush
// interval is a caller bug, not a preference.
func (o *Options) Validate() error {
	if strings.TrimSpace(o.Name) == "" {
		return NewErrBlankName()
	}
	if o.ItemExpiry <= 0 {
		return NewErrInvalidExpiry(o.ItemExpiry)
	}
	if o.ExpiryJitterPercent < 0 || o.ExpiryJitterPercent > 100 {
		return NewErrInvalidJitter(o.ExpiryJitterPercent)
	}
	if o.FlushInterval <= 0 {
		return NewErrInvalidFlushInterval(o.FlushInterval)
	}
	if o.MaxSizeIndicator < 0 {
		return NewErrInvalidMaxSize(o.MaxSizeIndicator)
	}
	if o.CircuitBreakerTimeout < 0 && o.CircuitBreakerTimeout != WaitForever {
		return NewErrInvalidTimeout(o.CircuitBreakerTimeout)
	}

	if o.Logger == nil {
		o.Logger = NoOpLogger{}
	}
	if o.TimeProvider == nil {
		o.TimeProvider = &systemTimeProvider{}
	}
	if o.MetricsCollector == nil {
		o.MetricsCollector = NoOpMetricsCollector{}
	}

	return nil
}

// DefaultOptions returns options with sensible defaults for a cache named
// name. ItemExpiry and FlushInterval still reflect the most common usage and
// can be overridden field by field.
func DefaultOptions(name string) Options {
	return Options{
		Name:                  name,
		ItemExpiry:            5 * time.Minute,
		FlushInterval:         30 * time.Second,
		MaxSizeIndicator:      DefaultMaxSizeIndicator,
		CircuitBreakerTimeout: DefaultCircuitBreakerTimeout,
		Logger:                NoOpLogger{},
		TimeProvider:          &systemTimeProvider{},
		MetricsCollector:      NoOpMetricsCollector{},
	}
}

// SelfRefreshingOptions configures a SelfRefreshingCache.
type SelfRefreshingOptions struct {
	Options

	// RefreshInterval is the cadence at which every currently-held key is
	// proactively reloaded. Must be > 0.
	RefreshInterval time.Duration
}

// Validate checks the embedded options and the refresh interval.
func (o *SelfRefreshingOptions) Validate() error {
	if err := o.Options.Validate(); err != nil {
		return err
	}
	if o.RefreshInterval <= 0 {
		return NewErrInvalidRefresh(o.RefreshInterval)
	}
	return nil
}

// systemTimeProvider is the default time provider using go-timecache.
// This provides ~121x faster time access compared to time.Now() with zero allocations.
type systemTimeProvider struct{}

func (t *systemTimeProvider) Now() int64 {
	return timecache.CachedTimeNano()
}
