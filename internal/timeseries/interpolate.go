package timeseries

// InterpolateLinear fills null runs that have a non-null value on both sides
// with a straight line between those neighbours, treating rows as equally
// spaced. Leading and trailing nulls are left untouched. values is not modified.
func InterpolateLinear(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)

	prev := -1
	for i, v := range out {
		if IsNull(v) {
			continue
		}
		if prev >= 0 && i-prev > 1 {
			step := (v - out[prev]) / float64(i-prev)
			for j := prev + 1; j < i; j++ {
				out[j] = out[prev] + step*float64(j-prev)
			}
		}
		prev = i
	}
	return out
}
