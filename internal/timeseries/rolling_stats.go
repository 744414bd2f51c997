package timeseries

import "math"

// RollingMeanStd returns the trailing-window mean and sample standard deviation
// for every index. A result is defined only when at least minPeriods non-null
// values fall inside the window; the deviation additionally needs two values.
// A window whose values are all identical reports a deviation of exactly zero.
func RollingMeanStd(values []float64, window, minPeriods int) (mean, std []float64) {
	mean = make([]float64, len(values))
	std = make([]float64, len(values))
	if minPeriods < 1 {
		minPeriods = 1
	}

	var acc Welford
	// sameRun counts trailing consecutive non-null values equal to the latest one.
	sameRun := 0
	last := math.NaN()
	for i, v := range values {
		if !IsNull(v) {
			acc.Add(v)
			if v == last {
				sameRun++
			} else {
				sameRun = 1
				last = v
			}
		} else {
			sameRun = 0
			last = math.NaN()
		}
		if old := i - window; window > 0 && old >= 0 && !IsNull(values[old]) {
			acc.Remove(values[old])
		}

		n := acc.Count()
		if window <= 0 || n < minPeriods || n == 0 {
			mean[i], std[i] = Null(), Null()
			continue
		}
		if sameRun >= n {
			mean[i] = last
			if n < 2 {
				std[i] = Null()
			} else {
				std[i] = 0
			}
			continue
		}
		mean[i] = acc.Mean()
		std[i] = acc.Std()
	}
	return mean, std
}
