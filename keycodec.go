// keycodec.go: key↔string conversion for remote keyspaces and diagnostics
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package recache

import (
	"fmt"
	"strconv"
	"time"
)

// KeyCodec converts keys to and from their string form in a remote
// keyspace. The built-in codec covers the primitive key types; any other
// key type needs a caller-supplied codec.
type KeyCodec[K comparable] interface {
	// Encode renders key as a string.
	Encode(key K) (string, error)

	// Decode parses a string produced by Encode back into a key.
	Decode(s string) (K, error)
}

// funcKeyCodec adapts a pair of functions to KeyCodec.
type funcKeyCodec[K comparable] struct {
	encode func(K) (string, error)
	decode func(string) (K, error)
}

func (c funcKeyCodec[K]) Encode(key K) (string, error) { return c.encode(key) }
func (c funcKeyCodec[K]) Decode(s string) (K, error)   { return c.decode(s) }

// NewKeyCodec builds a KeyCodec from an encode/decode function pair.
func NewKeyCodec[K comparable](encode func(K) (string, error), decode func(string) (K, error)) KeyCodec[K] {
	return funcKeyCodec[K]{encode: encode, decode: decode}
}

// DefaultKeyCodec returns a codec for K when K is one of the supported
// primitive key types: string, the fixed-width signed/unsigned integers,
// float32/float64, bool, time.Time and time.Duration. For any other type it
// returns a RECACHE_KEY_CODEC error.
func DefaultKeyCodec[K comparable]() (KeyCodec[K], error) {
	var zero K
	switch any(zero).(type) {
	case string, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, bool, time.Time, time.Duration:
		return funcKeyCodec[K]{
			encode: func(key K) (string, error) { return keyToString(key), nil },
			decode: decodePrimitiveKey[K],
		}, nil
	default:
		return nil, NewErrKeyCodec(fmt.Sprintf("%T", zero))
	}
}

// keyToString converts a key of any comparable type to string efficiently.
// Uses a type switch to avoid allocations for common types and falls back to
// fmt.Sprintf for the rest. Also used to render keys in errors and logs.
func keyToString[K comparable](key K) string {
	switch v := any(key).(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int8:
		return strconv.FormatInt(int64(v), 10)
	case int16:
		return strconv.FormatInt(int64(v), 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case uint8:
		return strconv.FormatUint(uint64(v), 10)
	case uint16:
		return strconv.FormatUint(uint64(v), 10)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case time.Duration:
		return v.String()
	default:
		return fmt.Sprintf("%v", key)
	}
}

// decodePrimitiveKey parses the string forms produced by keyToString for
// the supported primitive key types.
func decodePrimitiveKey[K comparable](s string) (K, error) {
	var zero K
	var parsed any
	var err error

	switch any(zero).(type) {
	case string:
		parsed = s
	case int:
		var v int64
		v, err = strconv.ParseInt(s, 10, 0)
		parsed = int(v)
	case int8:
		var v int64
		v, err = strconv.ParseInt(s, 10, 8)
		parsed = int8(v)
	case int16:
		var v int64
		v, err = strconv.ParseInt(s, 10, 16)
		parsed = int16(v)
	case int32:
		var v int64
		v, err = strconv.ParseInt(s, 10, 32)
		parsed = int32(v)
	case int64:
		parsed, err = strconv.ParseInt(s, 10, 64)
	case uint:
		var v uint64
		v, err = strconv.ParseUint(s, 10, 0)
		parsed = uint(v)
	case uint8:
		var v uint64
		v, err = strconv.ParseUint(s, 10, 8)
		parsed = uint8(v)
	case uint16:
		var v uint64
		v, err = strconv.ParseUint(s, 10, 16)
		parsed = uint16(v)
	case uint32:
		var v uint64
		v, err = strconv.ParseUint(s, 10, 32)
		parsed = uint32(v)
	case uint64:
		parsed, err = strconv.ParseUint(s, 10, 64)
	case float32:
		var v float64
		v, err = strconv.ParseFloat(s, 32)
		parsed = float32(v)
	case float64:
		parsed, err = strconv.ParseFloat(s, 64)
	case bool:
		parsed, err = strconv.ParseBool(s)
	case time.Time:
		parsed, err = time.Parse(time.RFC3339Nano, s)
	case time.Duration:
		parsed, err = time.ParseDuration(s)
	default:
		return zero, NewErrKeyCodec(fmt.Sprintf("%T", zero))
	}
	if err != nil {
		return zero, NewErrKeyCodec(fmt.Sprintf("%T: %v", zero, err))
	}
	return parsed.(K), nil
}
