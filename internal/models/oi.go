package models

import "time"

// OIHistory is one symbol of the Coinalyze open-interest-history response. The
// symbol encodes "<contract>.<exchangeCode>", e.g. "BTCUSDT_PERP.A".
type OIHistory struct {
	Symbol  string     `json:"symbol"`
	History []OICandle `json:"history"`
}

// OICandle is a single OHLC open-interest candle. Prices are pointers because the
// upstream occasionally omits a field or sends null.
type OICandle struct {
	T int64    `json:"t"` // epoch seconds
	O *float64 `json:"o"`
	H *float64 `json:"h"`
	L *float64 `json:"l"`
	C *float64 `json:"c"`
}

// Sample is one exchange/contract candle after the symbol has been resolved
// against the exchange registry.
type Sample struct {
	Timestamp time.Time
	Exchange  string
	Contract  string

	Open  *float64
	High  *float64
	Low   *float64
	Close *float64
}

// OHLC holds the aggregated open-interest candle of one exchange.
type OHLC struct {
	Open  float64
	High  float64
	Low   float64
	Close float64
}

// MarketRow is one normalized timestamp across every exchange that reported
// data. Exchanges without data are absent from the map, never zero-filled.
type MarketRow struct {
	Timestamp time.Time
	Exchanges map[string]OHLC
}

// ActiveOIRow is one row of the derived table.
type ActiveOIRow struct {
	Timestamp time.Time
	// ActiveOI is Close minus the trailing minimum Low, keyed by exchange.
	ActiveOI map[string]float64
	// Total is the cross-exchange sum of ActiveOI (ALL_Active_OI_5min).
	Total float64
	// ZScore is the rolling standardization of Total (STD_Active_OI).
	ZScore float64
}
