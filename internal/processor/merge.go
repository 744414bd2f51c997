package processor

import (
	"sort"

	"activeoi/internal/models"
)

// Merge combines the stored history with a freshly normalized batch. On a
// duplicate instant the incoming row replaces the stored row as a whole. The
// result is sorted ascending with unique timestamps; neither input is modified.
func Merge(existing, incoming []models.MarketRow) []models.MarketRow {
	byInstant := make(map[int64]models.MarketRow, len(existing)+len(incoming))
	for _, r := range existing {
		byInstant[r.Timestamp.UnixNano()] = r
	}
	for _, r := range incoming {
		byInstant[r.Timestamp.UnixNano()] = r
	}

	out := make([]models.MarketRow, 0, len(byInstant))
	for _, r := range byInstant {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}
