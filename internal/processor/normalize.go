package processor

import (
	"fmt"
	"sort"
	"time"

	"activeoi/internal/models"
	"activeoi/internal/symbols"
	"activeoi/internal/timeseries"
	"activeoi/logger"
)

const (
	fieldOpen = iota
	fieldHigh
	fieldLow
	fieldClose
	numFields
)

// fieldSum is the conditional sum of one exchange's contract variants at one
// timestamp: a field stays null until at least one variant reports it.
type fieldSum struct {
	vals [numFields]float64
	seen [numFields]bool
}

func (s *fieldSum) add(c models.OICandle) {
	for i, p := range [numFields]*float64{c.O, c.H, c.L, c.C} {
		if p == nil {
			continue
		}
		s.vals[i] += *p
		s.seen[i] = true
	}
}

func (s *fieldSum) value(i int) float64 {
	if s == nil || !s.seen[i] {
		return timeseries.Null()
	}
	return s.vals[i]
}

// Normalizer turns the per-contract Coinalyze series into one row per
// timestamp with a single OHLC per exchange.
type Normalizer struct {
	registry *symbols.Registry
	loc      *time.Location
	log      *logger.Entry
}

// NewNormalizer creates a normalizer. Timestamps are rendered in loc; a nil loc
// means UTC.
func NewNormalizer(reg *symbols.Registry, loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{
		registry: reg,
		loc:      loc,
		log:      logger.GetLogger().WithComponent("normalizer"),
	}
}

// Normalize aggregates contract variants per exchange, aligns exchanges on the
// union of their timestamps, fills interior gaps linearly and drops every row
// that still has a missing value. An unknown exchange code is an error.
func (n *Normalizer) Normalize(entries []models.OIHistory) ([]models.MarketRow, error) {
	sums := make(map[string]map[int64]*fieldSum)
	for _, e := range entries {
		if e.Symbol == "" || len(e.History) == 0 {
			continue
		}
		exchange, _, err := n.registry.Resolve(e.Symbol)
		if err != nil {
			return nil, fmt.Errorf("normalize: %w", err)
		}

		// a repeated t inside one series keeps the last candle
		series := make(map[int64]models.OICandle, len(e.History))
		for _, c := range e.History {
			series[c.T] = c
		}

		bucket, ok := sums[exchange]
		if !ok {
			bucket = make(map[int64]*fieldSum, len(series))
			sums[exchange] = bucket
		}
		for t, c := range series {
			s, ok := bucket[t]
			if !ok {
				s = &fieldSum{}
				bucket[t] = s
			}
			s.add(c)
		}
	}
	if len(sums) == 0 {
		return nil, nil
	}

	stamps := unionTimestamps(sums)
	columns := make(map[string][numFields][]float64, len(sums))
	for exchange, bucket := range sums {
		var cols [numFields][]float64
		for f := 0; f < numFields; f++ {
			col := make([]float64, len(stamps))
			for i, t := range stamps {
				col[i] = bucket[t].value(f)
			}
			cols[f] = timeseries.InterpolateLinear(col)
		}
		columns[exchange] = cols
	}

	rows := make([]models.MarketRow, 0, len(stamps))
	dropped := 0
	for i, t := range stamps {
		row := models.MarketRow{
			Timestamp: time.Unix(t, 0).In(n.loc),
			Exchanges: make(map[string]models.OHLC, len(columns)),
		}
		complete := true
		for exchange, cols := range columns {
			o, h, l, c := cols[fieldOpen][i], cols[fieldHigh][i], cols[fieldLow][i], cols[fieldClose][i]
			if timeseries.IsNull(o) || timeseries.IsNull(h) || timeseries.IsNull(l) || timeseries.IsNull(c) {
				complete = false
				break
			}
			row.Exchanges[exchange] = models.OHLC{Open: o, High: h, Low: l, Close: c}
		}
		if !complete {
			dropped++
			continue
		}
		rows = append(rows, row)
	}

	n.log.WithFields(logger.Fields{
		"exchanges":    len(columns),
		"timestamps":   len(stamps),
		"rows":         len(rows),
		"dropped_rows": dropped,
	}).Debug("normalized open interest batch")
	return rows, nil
}

func unionTimestamps(sums map[string]map[int64]*fieldSum) []int64 {
	seen := make(map[int64]struct{})
	for _, bucket := range sums {
		for t := range bucket {
			seen[t] = struct{}{}
		}
	}
	out := make([]int64, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
