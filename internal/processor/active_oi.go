package processor

import (
	"sort"

	"activeoi/internal/models"
	"activeoi/internal/timeseries"
)

// DefaultWindow is three days of 5-minute rows.
const DefaultWindow = 864

// ComputeActiveOI derives, per exchange, Close minus the lowest Low seen over
// the trailing window rows. The window is counted in rows, is truncated at the
// start of the history and ignores rows where the exchange is missing. A row is
// kept only when every exchange that appears anywhere in rows has a value.
func ComputeActiveOI(rows []models.MarketRow, window int) []models.ActiveOIRow {
	if window <= 0 || len(rows) == 0 {
		return nil
	}

	exchanges := presentExchanges(rows)
	active := make(map[string][]float64, len(exchanges))
	for _, ex := range exchanges {
		lows := make([]float64, len(rows))
		closes := make([]float64, len(rows))
		for i, r := range rows {
			c, ok := r.Exchanges[ex]
			if !ok {
				lows[i], closes[i] = timeseries.Null(), timeseries.Null()
				continue
			}
			lows[i], closes[i] = c.Low, c.Close
		}

		mins := timeseries.RollingMin(lows, window, 1)
		vals := make([]float64, len(rows))
		for i := range rows {
			vals[i] = closes[i] - mins[i] // NaN if either side is missing
		}
		active[ex] = vals
	}

	out := make([]models.ActiveOIRow, 0, len(rows))
	for i, r := range rows {
		row := models.ActiveOIRow{
			Timestamp: r.Timestamp,
			ActiveOI:  make(map[string]float64, len(exchanges)),
		}
		defined := true
		for _, ex := range exchanges {
			v := active[ex][i]
			if timeseries.IsNull(v) {
				defined = false
				break
			}
			row.ActiveOI[ex] = v
		}
		if defined {
			out = append(out, row)
		}
	}
	return out
}

func presentExchanges(rows []models.MarketRow) []string {
	seen := make(map[string]struct{})
	for _, r := range rows {
		for ex := range r.Exchanges {
			seen[ex] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for ex := range seen {
		out = append(out, ex)
	}
	sort.Strings(out)
	return out
}
