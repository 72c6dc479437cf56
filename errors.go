// errors.go: structured error handling for ReCache operations
//
// This file provides structured error types using the go-errors library,
// enabling rich error context, categorization, and standardized error codes
// for all cache operations.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package recache

import (
	goerrors "errors"
	"fmt"
	"time"

	"github.com/agilira/go-errors"
)

// Error codes for ReCache operations
const (
	// Configuration errors
	ErrCodeInvalidConfig        errors.ErrorCode = "RECACHE_INVALID_CONFIG"
	ErrCodeBlankName            errors.ErrorCode = "RECACHE_BLANK_NAME"
	ErrCodeInvalidExpiry        errors.ErrorCode = "RECACHE_INVALID_EXPIRY"
	ErrCodeInvalidJitter        errors.ErrorCode = "RECACHE_INVALID_JITTER"
	ErrCodeInvalidFlushInterval errors.ErrorCode = "RECACHE_INVALID_FLUSH_INTERVAL"
	ErrCodeInvalidMaxSize       errors.ErrorCode = "RECACHE_INVALID_MAX_SIZE"
	ErrCodeInvalidTimeout       errors.ErrorCode = "RECACHE_INVALID_TIMEOUT"
	ErrCodeInvalidRefresh       errors.ErrorCode = "RECACHE_INVALID_REFRESH_INTERVAL"

	// Argument errors
	ErrCodeInvalidStore   errors.ErrorCode = "RECACHE_INVALID_STORE"
	ErrCodeInvalidLoader  errors.ErrorCode = "RECACHE_INVALID_LOADER"
	ErrCodeInvalidUpdater errors.ErrorCode = "RECACHE_INVALID_UPDATER"

	// Operation errors
	ErrCodeCircuitBreakerTimeout errors.ErrorCode = "RECACHE_CIRCUIT_BREAKER_TIMEOUT"
	ErrCodeLoaderFailed          errors.ErrorCode = "RECACHE_LOADER_FAILED"
	ErrCodePanicRecovered        errors.ErrorCode = "RECACHE_PANIC_RECOVERED"

	// Remote store errors
	ErrCodeKeyCodec          errors.ErrorCode = "RECACHE_KEY_CODEC"
	ErrCodeRemoteUnavailable errors.ErrorCode = "RECACHE_REMOTE_UNAVAILABLE"
)

// Common error messages
const (
	msgBlankName            = "cache name cannot be blank"
	msgInvalidExpiry        = "invalid item expiry: must be greater than 0"
	msgInvalidJitter        = "invalid expiry jitter percent: must be between 0 and 100"
	msgInvalidFlushInterval = "invalid flush interval: must be greater than 0"
	msgInvalidMaxSize       = "invalid maximum cache size indicator: must be non-negative"
	msgInvalidTimeout       = "invalid circuit breaker timeout: must be non-negative or WaitForever"
	msgInvalidRefresh       = "invalid refresh interval: must be greater than 0"
	msgInvalidStore         = "store cannot be nil"
	msgInvalidLoader        = "loader function cannot be nil"
	msgInvalidUpdater       = "update function cannot be nil"
	msgCircuitBreaker       = "timed out waiting for in-flight load"
	msgLoaderFailed         = "loader function failed"
	msgPanicRecovered       = "panic recovered in cache operation"
	msgKeyCodec             = "unsupported key type: a key codec is required"
	msgRemoteUnavailable    = "remote store unavailable"
)

// =============================================================================
// CONFIGURATION ERRORS
// =============================================================================

// NewErrBlankName creates an error for a blank cache name
func NewErrBlankName() error {
	return errors.NewWithField(ErrCodeBlankName, msgBlankName, "parameter", "name")
}

// NewErrInvalidExpiry creates an error for a non-positive item expiry
func NewErrInvalidExpiry(expiry time.Duration) error {
	return errors.NewWithContext(ErrCodeInvalidExpiry, msgInvalidExpiry, map[string]interface{}{
		"provided_expiry": expiry.String(),
	})
}

// NewErrInvalidJitter creates an error for an out-of-range jitter percent
func NewErrInvalidJitter(percent int) error {
	return errors.NewWithContext(ErrCodeInvalidJitter, msgInvalidJitter, map[string]interface{}{
		"provided_percent": percent,
		"valid_range":      "0-100",
	})
}

// NewErrInvalidFlushInterval creates an error for a non-positive flush interval
func NewErrInvalidFlushInterval(interval time.Duration) error {
	return errors.NewWithContext(ErrCodeInvalidFlushInterval, msgInvalidFlushInterval, map[string]interface{}{
		"provided_interval": interval.String(),
	})
}

// NewErrInvalidMaxSize creates an error for a negative size indicator
func NewErrInvalidMaxSize(size int) error {
	return errors.NewWithContext(ErrCodeInvalidMaxSize, msgInvalidMaxSize, map[string]interface{}{
		"provided_size": size,
	})
}

// NewErrInvalidTimeout creates an error for an invalid circuit breaker timeout
func NewErrInvalidTimeout(timeout time.Duration) error {
	return errors.NewWithContext(ErrCodeInvalidTimeout, msgInvalidTimeout, map[string]interface{}{
		"provided_timeout": timeout.String(),
	})
}

// NewErrInvalidRefresh creates an error for a non-positive refresh interval
func NewErrInvalidRefresh(interval time.Duration) error {
	return errors.NewWithContext(ErrCodeInvalidRefresh, msgInvalidRefresh, map[string]interface{}{
		"provided_interval": interval.String(),
	})
}

// =============================================================================
// ARGUMENT ERRORS
// =============================================================================

// NewErrInvalidStore creates an error when the backing store is nil
func NewErrInvalidStore(cacheName string) error {
	return errors.NewWithField(ErrCodeInvalidStore, msgInvalidStore, "cache", cacheName)
}

// NewErrInvalidLoader creates an error when the loader function is nil
func NewErrInvalidLoader(key string) error {
	return errors.NewWithField(ErrCodeInvalidLoader, msgInvalidLoader, "key", key)
}

// NewErrInvalidUpdater creates an error when the update function is nil
func NewErrInvalidUpdater(key string) error {
	return errors.NewWithField(ErrCodeInvalidUpdater, msgInvalidUpdater, "key", key)
}

// =============================================================================
// OPERATION ERRORS
// =============================================================================

// NewErrCircuitBreakerTimeout creates an error for a caller that could not
// acquire the key gate within the configured window. The message carries the
// cache name, the key and the configured timeout in milliseconds.
func NewErrCircuitBreakerTimeout(cacheName string, key string, timeout time.Duration) error {
	msg := fmt.Sprintf("%s: cache %q key %q after %dms", msgCircuitBreaker, cacheName, key, timeout.Milliseconds())
	return errors.NewWithContext(ErrCodeCircuitBreakerTimeout, msg, map[string]interface{}{
		"cache":      cacheName,
		"key":        key,
		"timeout_ms": timeout.Milliseconds(),
	}).AsRetryable() // The in-flight load completes; a retry usually hits
}

// NewErrLoaderFailed creates an error when the loader function fails
func NewErrLoaderFailed(cacheName string, key string, cause error) error {
	return errors.Wrap(cause, ErrCodeLoaderFailed, msgLoaderFailed).
		WithContext("cache", cacheName).
		WithContext("key", key).
		AsRetryable()
}

// NewErrPanicRecovered creates an error when a panic is recovered
func NewErrPanicRecovered(operation string, panicValue interface{}) error {
	return errors.NewWithContext(ErrCodePanicRecovered, msgPanicRecovered, map[string]interface{}{
		"operation":   operation,
		"panic_value": fmt.Sprintf("%v", panicValue),
	}).WithSeverity("critical")
}

// =============================================================================
// REMOTE STORE ERRORS
// =============================================================================

// NewErrKeyCodec creates an error for a key type the default codec cannot handle
func NewErrKeyCodec(keyType string) error {
	return errors.NewWithField(ErrCodeKeyCodec, msgKeyCodec, "key_type", keyType)
}

// NewErrRemoteUnavailable creates an error when the remote backend rejects an operation
func NewErrRemoteUnavailable(operation string, cause error) error {
	return errors.Wrap(cause, ErrCodeRemoteUnavailable, msgRemoteUnavailable).
		WithContext("operation", operation).
		AsRetryable()
}

// =============================================================================
// ERROR CHECKING HELPERS
// =============================================================================

// IsCircuitBreakerTimeout checks if error is a circuit breaker timeout
func IsCircuitBreakerTimeout(err error) bool {
	return errors.HasCode(err, ErrCodeCircuitBreakerTimeout)
}

// IsLoaderError checks if error originated in a loader invocation
func IsLoaderError(err error) bool {
	return errors.HasCode(err, ErrCodeLoaderFailed) || errors.HasCode(err, ErrCodePanicRecovered)
}

// IsConfigError checks if error is a configuration or argument validation error
func IsConfigError(err error) bool {
	if err == nil {
		return false
	}
	var coder errors.ErrorCoder
	if goerrors.As(err, &coder) {
		switch coder.ErrorCode() {
		case ErrCodeInvalidConfig, ErrCodeBlankName, ErrCodeInvalidExpiry,
			ErrCodeInvalidJitter, ErrCodeInvalidFlushInterval, ErrCodeInvalidMaxSize,
			ErrCodeInvalidTimeout, ErrCodeInvalidRefresh, ErrCodeInvalidStore,
			ErrCodeInvalidLoader, ErrCodeInvalidUpdater, ErrCodeKeyCodec:
			return true
		}
	}
	return false
}

// IsRemoteError checks if error is a remote store error
func IsRemoteError(err error) bool {
	return errors.HasCode(err, ErrCodeRemoteUnavailable)
}

// IsRetryable checks if the error can be retried
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var retryable errors.Retryable
	if goerrors.As(err, &retryable) {
		return retryable.IsRetryable()
	}
	return false
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) errors.ErrorCode {
	if err == nil {
		return ""
	}
	var coder errors.ErrorCoder
	if goerrors.As(err, &coder) {
		return coder.ErrorCode()
	}
	return ""
}

// GetErrorContext extracts context from an error
func GetErrorContext(err error) map[string]interface{} {
	if err == nil {
		return nil
	}
	var rcErr *errors.Error
	if goerrors.As(err, &rcErr) {
		return rcErr.Context
	}
	return nil
}
