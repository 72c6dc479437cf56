// hot-reload_test.go: dynamic option reload tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package recache

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeOptionsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recache.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing options file: %v", err)
	}
	return path
}

func TestNewHotOptions_RequiresPath(t *testing.T) {
	cache := newTestCache(t, testOptions("hot-nopath"), nil)
	if _, err := NewHotOptions(cache, HotOptionsConfig{}); err == nil {
		t.Error("An empty options path must be rejected")
	}
}

func TestNewHotOptions_SeedsCurrentFromCache(t *testing.T) {
	opts := testOptions("hot-seed")
	opts.ItemExpiry = 90 * time.Second
	opts.MaxSizeIndicator = 123
	cache := newTestCache(t, opts, nil)

	path := writeOptionsFile(t, `{"cache": {}}`)
	ho, err := NewHotOptions(cache, HotOptionsConfig{OptionsPath: path})
	if err != nil {
		t.Fatalf("NewHotOptions failed: %v", err)
	}
	defer func() { _ = ho.Stop() }()

	current := ho.Current()
	if current.ItemExpiry != 90*time.Second {
		t.Errorf("Expected seeded expiry 90s, got %v", current.ItemExpiry)
	}
	if current.MaxSizeIndicator != 123 {
		t.Errorf("Expected seeded size indicator 123, got %d", current.MaxSizeIndicator)
	}
}

func TestHotOptions_AppliesParsedChanges(t *testing.T) {
	mockTime := &MockTimeProvider{currentTime: 1_000_000_000}
	opts := testOptions("hot-apply")
	opts.ItemExpiry = time.Second
	opts.TimeProvider = mockTime
	cache := newTestCache(t, opts, nil)

	path := writeOptionsFile(t, `{"cache": {}}`)
	var reloaded bool
	ho, err := NewHotOptions(cache, HotOptionsConfig{
		OptionsPath: path,
		OnReload:    func(old, new RuntimeOptions) { reloaded = true },
	})
	if err != nil {
		t.Fatalf("NewHotOptions failed: %v", err)
	}
	defer func() { _ = ho.Stop() }()

	ho.handleChange(map[string]interface{}{
		"cache": map[string]interface{}{
			"item_expiry":             "10s",
			"expiry_jitter_percent":   float64(25),
			"circuit_breaker_timeout": "250ms",
			"flush_interval":          "2s",
			"max_size_indicator":      float64(500),
		},
	})

	if !reloaded {
		t.Error("OnReload should have fired")
	}
	current := ho.Current()
	if current.ItemExpiry != 10*time.Second || current.ExpiryJitterPercent != 25 ||
		current.CircuitBreakerTimeout != 250*time.Millisecond ||
		current.FlushInterval != 2*time.Second || current.MaxSizeIndicator != 500 {
		t.Errorf("Parsed options mismatch: %+v", current)
	}

	// The live cache picked the new expiry up: an entry 5s old is now fresh.
	cache.TryAdd(1, "x")
	mockTime.Advance(5 * time.Second)
	if _, ok := cache.Get(1, false); !ok {
		t.Error("Entry should be fresh under the reloaded 10s expiry")
	}
}

func TestHotOptions_MalformedKeysKeepPriorValues(t *testing.T) {
	opts := testOptions("hot-malformed")
	opts.ItemExpiry = 42 * time.Second
	cache := newTestCache(t, opts, nil)

	path := writeOptionsFile(t, `{"cache": {}}`)
	ho, err := NewHotOptions(cache, HotOptionsConfig{OptionsPath: path})
	if err != nil {
		t.Fatalf("NewHotOptions failed: %v", err)
	}
	defer func() { _ = ho.Stop() }()

	ho.handleChange(map[string]interface{}{
		"cache": map[string]interface{}{
			"item_expiry":           "not a duration",
			"expiry_jitter_percent": float64(9000),
		},
	})

	current := ho.Current()
	if current.ItemExpiry != 42*time.Second {
		t.Errorf("Malformed expiry should keep the prior value, got %v", current.ItemExpiry)
	}
	if current.ExpiryJitterPercent != 0 {
		t.Errorf("Out-of-range jitter should keep the prior value, got %d", current.ExpiryJitterPercent)
	}
}

func TestHotOptions_FlatDocumentIsAccepted(t *testing.T) {
	cache := newTestCache(t, testOptions("hot-flat"), nil)

	path := writeOptionsFile(t, `{"item_expiry": "1s"}`)
	ho, err := NewHotOptions(cache, HotOptionsConfig{OptionsPath: path})
	if err != nil {
		t.Fatalf("NewHotOptions failed: %v", err)
	}
	defer func() { _ = ho.Stop() }()

	ho.handleChange(map[string]interface{}{"item_expiry": "7s"})
	if got := ho.Current().ItemExpiry; got != 7*time.Second {
		t.Errorf("Flat documents should parse, got %v", got)
	}
}
