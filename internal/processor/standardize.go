package processor

import (
	"activeoi/internal/models"
	"activeoi/internal/timeseries"
)

// Standardize sums the per-exchange active OI into Total and scores it against
// the mean and sample standard deviation of the trailing window rows. Only rows
// with a full window and a non-zero deviation are returned.
func Standardize(rows []models.ActiveOIRow, window int) []models.ActiveOIRow {
	if window <= 0 || len(rows) < window {
		return nil
	}

	totals := make([]float64, len(rows))
	for i, r := range rows {
		var sum float64
		for _, v := range r.ActiveOI {
			sum += v
		}
		totals[i] = sum
	}

	mean, std := timeseries.RollingMeanStd(totals, window, window)
	out := make([]models.ActiveOIRow, 0, len(rows)-window+1)
	for i, r := range rows {
		if timeseries.IsNull(mean[i]) || timeseries.IsNull(std[i]) || std[i] == 0 {
			continue
		}
		out = append(out, models.ActiveOIRow{
			Timestamp: r.Timestamp,
			ActiveOI:  r.ActiveOI,
			Total:     totals[i],
			ZScore:    (totals[i] - mean[i]) / std[i],
		})
	}
	return out
}
