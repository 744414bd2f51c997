package timeseries

import "math"

// Welford is a running mean/variance accumulator that supports removing
// observations, which makes it usable over a sliding window.
type Welford struct {
	n    int
	mean float64
	m2   float64
}

// Add folds x into the accumulator.
func (w *Welford) Add(x float64) {
	w.n++
	d := x - w.mean
	w.mean += d / float64(w.n)
	w.m2 += d * (x - w.mean)
}

// Remove takes a previously added x back out.
func (w *Welford) Remove(x float64) {
	if w.n <= 1 {
		w.Reset()
		return
	}
	prev := w.mean
	w.mean = prev - (x-prev)/float64(w.n-1)
	w.m2 -= (x - prev) * (x - w.mean)
	w.n--
	if w.m2 < 0 {
		w.m2 = 0
	}
}

// Reset clears the accumulator.
func (w *Welford) Reset() {
	w.n, w.mean, w.m2 = 0, 0, 0
}

// Count returns the number of observations held.
func (w *Welford) Count() int { return w.n }

// Mean returns the mean, or NaN when empty.
func (w *Welford) Mean() float64 {
	if w.n == 0 {
		return math.NaN()
	}
	return w.mean
}

// Variance returns the sample variance (n-1 denominator), or NaN below two
// observations.
func (w *Welford) Variance() float64 {
	if w.n < 2 {
		return math.NaN()
	}
	return w.m2 / float64(w.n-1)
}

// Std returns the sample standard deviation.
func (w *Welford) Std() float64 {
	return math.Sqrt(w.Variance())
}
