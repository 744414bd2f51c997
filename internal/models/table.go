package models

import (
	"sort"
	"strings"
	"time"
)

// Column suffixes and fixed column names of the persisted tables.
const (
	SuffixOpen     = "_Open"
	SuffixHigh     = "_High"
	SuffixLow      = "_Low"
	SuffixClose    = "_Close"
	SuffixActiveOI = "_Active_OI_5min"

	TotalActiveOIColumn = "ALL_Active_OI_5min"
	ZScoreColumn        = "STD_Active_OI"
)

var ohlcSuffixes = []string{SuffixOpen, SuffixHigh, SuffixLow, SuffixClose}

// Table is the storage-level representation shared by the raw and derived
// histories. Columns lists the value columns in order; the timestamp is kept
// outside the value map. A column missing from a row's Values is a null cell.
type Table struct {
	Columns []string
	Rows    []TableRow
}

// TableRow is one timestamped row of a Table.
type TableRow struct {
	Timestamp time.Time
	Values    map[string]float64
}

// Len returns the number of rows, tolerating a nil table.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// MarketTable flattens market rows into {Exchange}_{Open,High,Low,Close}
// columns. Exchanges follow order; exchanges missing from order are appended
// alphabetically.
func MarketTable(rows []MarketRow, order []string) *Table {
	present := make(map[string]struct{})
	for _, r := range rows {
		for ex := range r.Exchanges {
			present[ex] = struct{}{}
		}
	}
	exchanges := OrderExchanges(present, order)

	cols := make([]string, 0, len(exchanges)*4)
	for _, ex := range exchanges {
		for _, s := range ohlcSuffixes {
			cols = append(cols, ex+s)
		}
	}

	out := &Table{Columns: cols, Rows: make([]TableRow, 0, len(rows))}
	for _, r := range rows {
		vals := make(map[string]float64, len(r.Exchanges)*4)
		for ex, c := range r.Exchanges {
			vals[ex+SuffixOpen] = c.Open
			vals[ex+SuffixHigh] = c.High
			vals[ex+SuffixLow] = c.Low
			vals[ex+SuffixClose] = c.Close
		}
		out.Rows = append(out.Rows, TableRow{Timestamp: r.Timestamp, Values: vals})
	}
	return out
}

// MarketRows rebuilds market rows from a raw table. An exchange is attached to a
// row only when all four of its OHLC cells are present. Columns that are not
// OHLC columns are ignored.
func (t *Table) MarketRows() []MarketRow {
	if t == nil {
		return nil
	}
	exchanges := make([]string, 0)
	seen := make(map[string]struct{})
	for _, col := range t.Columns {
		for _, s := range ohlcSuffixes {
			if ex, ok := strings.CutSuffix(col, s); ok && ex != "" {
				if _, dup := seen[ex]; !dup {
					seen[ex] = struct{}{}
					exchanges = append(exchanges, ex)
				}
				break
			}
		}
	}

	out := make([]MarketRow, 0, len(t.Rows))
	for _, r := range t.Rows {
		row := MarketRow{Timestamp: r.Timestamp, Exchanges: make(map[string]OHLC, len(exchanges))}
		for _, ex := range exchanges {
			o, ok1 := r.Values[ex+SuffixOpen]
			h, ok2 := r.Values[ex+SuffixHigh]
			l, ok3 := r.Values[ex+SuffixLow]
			c, ok4 := r.Values[ex+SuffixClose]
			if ok1 && ok2 && ok3 && ok4 {
				row.Exchanges[ex] = OHLC{Open: o, High: h, Low: l, Close: c}
			}
		}
		out = append(out, row)
	}
	return out
}

// DerivedTable flattens active-OI rows into {Exchange}_Active_OI_5min columns
// followed by ALL_Active_OI_5min and STD_Active_OI.
func DerivedTable(rows []ActiveOIRow, order []string) *Table {
	present := make(map[string]struct{})
	for _, r := range rows {
		for ex := range r.ActiveOI {
			present[ex] = struct{}{}
		}
	}
	exchanges := OrderExchanges(present, order)

	cols := make([]string, 0, len(exchanges)+2)
	for _, ex := range exchanges {
		cols = append(cols, ex+SuffixActiveOI)
	}
	cols = append(cols, TotalActiveOIColumn, ZScoreColumn)

	out := &Table{Columns: cols, Rows: make([]TableRow, 0, len(rows))}
	for _, r := range rows {
		vals := make(map[string]float64, len(r.ActiveOI)+2)
		for ex, v := range r.ActiveOI {
			vals[ex+SuffixActiveOI] = v
		}
		vals[TotalActiveOIColumn] = r.Total
		vals[ZScoreColumn] = r.ZScore
		out.Rows = append(out.Rows, TableRow{Timestamp: r.Timestamp, Values: vals})
	}
	return out
}

// ActiveOIRows rebuilds derived rows from a derived table.
func (t *Table) ActiveOIRows() []ActiveOIRow {
	if t == nil {
		return nil
	}
	var exchanges []string
	for _, col := range t.Columns {
		if ex, ok := strings.CutSuffix(col, SuffixActiveOI); ok && ex != "" && col != TotalActiveOIColumn {
			exchanges = append(exchanges, ex)
		}
	}

	out := make([]ActiveOIRow, 0, len(t.Rows))
	for _, r := range t.Rows {
		row := ActiveOIRow{
			Timestamp: r.Timestamp,
			ActiveOI:  make(map[string]float64, len(exchanges)),
			Total:     r.Values[TotalActiveOIColumn],
			ZScore:    r.Values[ZScoreColumn],
		}
		for _, ex := range exchanges {
			if v, ok := r.Values[ex+SuffixActiveOI]; ok {
				row.ActiveOI[ex] = v
			}
		}
		out = append(out, row)
	}
	return out
}

// OrderExchanges returns the names in present, ordered by order first and then
// alphabetically for the rest.
func OrderExchanges(present map[string]struct{}, order []string) []string {
	out := make([]string, 0, len(present))
	used := make(map[string]struct{}, len(present))
	for _, ex := range order {
		if _, ok := present[ex]; ok {
			if _, dup := used[ex]; !dup {
				out = append(out, ex)
				used[ex] = struct{}{}
			}
		}
	}
	var rest []string
	for ex := range present {
		if _, ok := used[ex]; !ok {
			rest = append(rest, ex)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}
