// hot-reload.go: dynamic option reload with Argus integration
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package recache

import (
	"fmt"
	"sync"
	"time"

	"github.com/agilira/argus"
)

// runtimeTuner is the slice of the coordinator that HotOptions retunes.
// Cache[K, V] implements it for every K, V.
type runtimeTuner interface {
	setItemExpiry(d time.Duration)
	setExpiryJitterPercent(p int)
	setCircuitBreakerTimeout(d time.Duration)
	setFlushInterval(d time.Duration)
	setMaxSizeIndicator(n int)
}

// RuntimeOptions is the subset of Options that can change on a live cache.
type RuntimeOptions struct {
	ItemExpiry            time.Duration
	ExpiryJitterPercent   int
	CircuitBreakerTimeout time.Duration
	FlushInterval         time.Duration
	MaxSizeIndicator      int
}

// HotOptions watches an options file and applies runtime-adjustable
// settings to a live cache when the file changes. A flush-interval change
// takes effect on the sweep timer's next reset; everything else applies to
// the very next operation.
type HotOptions struct {
	tuner   runtimeTuner
	watcher *argus.Watcher
	mu      sync.RWMutex
	current RuntimeOptions

	// OnReload is called after options are successfully reloaded.
	// This callback is optional and must be fast and non-blocking.
	OnReload func(old, new RuntimeOptions)
}

// HotOptionsConfig configures hot reload behavior.
type HotOptionsConfig struct {
	// OptionsPath is the path to the options file to watch.
	// Supports JSON, YAML, TOML, HCL, INI, Properties formats.
	OptionsPath string

	// PollInterval is how often to check for changes.
	// Default: 1 second. Minimum: 100ms.
	PollInterval time.Duration

	// OnReload is called after options are successfully reloaded.
	OnReload func(old, new RuntimeOptions)
}

// NewHotOptions creates a hot-reloadable option watcher for cache.
//
// Example options file (YAML):
//
//	cache:
//	  item_expiry: "5m"
//	  expiry_jitter_percent: 10
//	  circuit_breaker_timeout: "2s"
//	  flush_interval: "30s"
//	  max_size_indicator: 10000
func NewHotOptions[K comparable, V any](cache *Cache[K, V], cfg HotOptionsConfig) (*HotOptions, error) {
	if cfg.OptionsPath == "" {
		return nil, fmt.Errorf("options_path is required")
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 1 * time.Second
	} else if cfg.PollInterval < 100*time.Millisecond {
		cfg.PollInterval = 100 * time.Millisecond
	}

	ho := &HotOptions{
		tuner:    cache,
		OnReload: cfg.OnReload,
		current: RuntimeOptions{
			ItemExpiry:            time.Duration(cache.expiryNanos.Load()),
			ExpiryJitterPercent:   int(cache.jitterPercent.Load()),
			CircuitBreakerTimeout: time.Duration(cache.cbTimeoutNanos.Load()),
			FlushInterval:         time.Duration(cache.flushInterval.Load()),
			MaxSizeIndicator:      int(cache.maxSize.Load()),
		},
	}

	argusConfig := argus.Config{
		PollInterval: cfg.PollInterval,
	}
	watcher, err := argus.UniversalConfigWatcherWithConfig(cfg.OptionsPath, ho.handleChange, argusConfig)
	if err != nil {
		return nil, err
	}
	ho.watcher = watcher

	return ho, nil
}

// Start begins watching the options file for changes.
func (ho *HotOptions) Start() error {
	if ho.watcher.IsRunning() {
		return nil
	}
	return ho.watcher.Start()
}

// Stop stops watching the options file.
func (ho *HotOptions) Stop() error {
	return ho.watcher.Stop()
}

// Current returns the options as of the last reload (thread-safe).
func (ho *HotOptions) Current() RuntimeOptions {
	ho.mu.RLock()
	defer ho.mu.RUnlock()
	return ho.current
}

// handleChange is called by Argus when the options file changes.
func (ho *HotOptions) handleChange(data map[string]interface{}) {
	ho.mu.Lock()
	old := ho.current
	next := ho.parse(data, old)
	ho.current = next
	ho.mu.Unlock()

	ho.apply(next)

	if ho.OnReload != nil {
		ho.OnReload(old, next)
	}
}

// parse extracts runtime options from Argus config data, keeping the prior
// value for any key that is absent or malformed.
func (ho *HotOptions) parse(data map[string]interface{}, prior RuntimeOptions) RuntimeOptions {
	next := prior

	section, ok := data["cache"].(map[string]interface{})
	if !ok {
		// The whole document may be the cache section.
		if _, direct := data["item_expiry"]; direct {
			section = data
		} else {
			return next
		}
	}

	if d, ok := parseDuration(section["item_expiry"]); ok && d > 0 {
		next.ItemExpiry = d
	}
	if p, ok := parseIntInRange(section["expiry_jitter_percent"], 0, 100); ok {
		next.ExpiryJitterPercent = p
	}
	if d, ok := parseDuration(section["circuit_breaker_timeout"]); ok && d >= 0 {
		next.CircuitBreakerTimeout = d
	}
	if d, ok := parseDuration(section["flush_interval"]); ok && d > 0 {
		next.FlushInterval = d
	}
	if n, ok := parseNonNegativeInt(section["max_size_indicator"]); ok {
		next.MaxSizeIndicator = n
	}

	return next
}

// apply pushes the parsed options into the live cache.
func (ho *HotOptions) apply(opts RuntimeOptions) {
	ho.tuner.setItemExpiry(opts.ItemExpiry)
	ho.tuner.setExpiryJitterPercent(opts.ExpiryJitterPercent)
	ho.tuner.setCircuitBreakerTimeout(opts.CircuitBreakerTimeout)
	ho.tuner.setFlushInterval(opts.FlushInterval)
	ho.tuner.setMaxSizeIndicator(opts.MaxSizeIndicator)
}

// parseNonNegativeInt extracts a non-negative integer from interface{} value.
// Supports both int and float64 types (YAML/JSON may vary).
func parseNonNegativeInt(value interface{}) (int, bool) {
	switch v := value.(type) {
	case int:
		if v >= 0 {
			return v, true
		}
	case float64:
		if v >= 0 {
			return int(v), true
		}
	}
	return 0, false
}

// parseIntInRange extracts an integer within the specified range [min, max].
// Supports both int and float64 types.
func parseIntInRange(value interface{}, min, max int) (int, bool) {
	switch v := value.(type) {
	case int:
		if v >= min && v <= max {
			return v, true
		}
	case float64:
		if v >= float64(min) && v <= float64(max) {
			return int(v), true
		}
	}
	return 0, false
}

// parseDuration extracts a time.Duration from a string value.
func parseDuration(value interface{}) (time.Duration, bool) {
	if str, ok := value.(string); ok {
		if d, err := time.ParseDuration(str); err == nil {
			return d, true
		}
	}
	return 0, false
}
