// Copyright 2026 The Resources Authors
// SPDX-License-Identifier: Apache-2.0

package hwinfo

import "math"

// Value carries one hardware reading together with the error that
// produced it. Snapshot structs hold a Value per field so that a
// missing sensor stays distinguishable from a sensor that read zero;
// consumers decide per field whether to display, default, or hide.
type Value[T any] struct {
	v   T
	err error
}

// Ok wraps a successful reading.
func Ok[T any](v T) Value[T] { return Value[T]{v: v} }

// Err wraps a failed reading.
func Err[T any](err error) Value[T] { return Value[T]{err: err} }

// Get returns the reading and its error.
func (v Value[T]) Get() (T, error) { return v.v, v.err }

// Or returns the reading, or def when the reading failed.
func (v Value[T]) Or(def T) T {
	if v.err != nil {
		return def
	}
	return v.v
}

// IsOk reports whether the reading succeeded.
func (v Value[T]) IsOk() bool { return v.err == nil }

// FiniteOr returns value unless it is NaN or infinite, in which case
// it returns def. Every exported ratio passes through this: a zero
// sampling interval or a zeroed counter must read as 0, never as NaN
// or Inf.
func FiniteOr(value, def float64) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return def
	}
	return value
}
