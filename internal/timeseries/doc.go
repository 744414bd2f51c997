// Package timeseries holds the per-series window algorithms used by the
// active-OI pipeline: a monotonic-deque rolling minimum, a sliding Welford
// accumulator for rolling mean and standard deviation, and linear gap filling.
//
// Series are plain []float64 in row order. A NaN marks a missing value; every
// function here skips NaNs rather than propagating them, and reports an
// undefined result as NaN.
package timeseries

import "math"

// Null is the missing-value marker used by this package.
func Null() float64 { return math.NaN() }

// IsNull reports whether v marks a missing value.
func IsNull(v float64) bool { return math.IsNaN(v) }
