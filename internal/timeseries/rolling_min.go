package timeseries

// RollingMin returns, for every index i, the minimum of the non-null values in
// values[i-window+1 .. i]. The window is trailing and includes i; near the start
// it is truncated to the rows that exist. The result is null when fewer than
// minPeriods non-null values fall inside the window.
func RollingMin(values []float64, window, minPeriods int) []float64 {
	out := make([]float64, len(values))
	if window <= 0 {
		for i := range out {
			out[i] = Null()
		}
		return out
	}
	if minPeriods < 1 {
		minPeriods = 1
	}

	// deque holds indices whose values increase from front to back.
	deque := make([]int, 0, window)
	valid := 0
	for i, v := range values {
		if !IsNull(v) {
			for len(deque) > 0 && values[deque[len(deque)-1]] >= v {
				deque = deque[:len(deque)-1]
			}
			deque = append(deque, i)
			valid++
		}
		if old := i - window; old >= 0 && !IsNull(values[old]) {
			valid--
		}
		for len(deque) > 0 && deque[0] <= i-window {
			deque = deque[1:]
		}

		if valid >= minPeriods && len(deque) > 0 {
			out[i] = values[deque[0]]
		} else {
			out[i] = Null()
		}
	}
	return out
}
