// Package domain defines the core value types shared by the providers, the
// stores and the gatherers: instruments, daily bars and live price samples.
package domain

import (
	"strings"
	"time"

	"github.com/guregu/null/v6"
)

// DateLayout is the calendar-date format used for checkpoints, table rows
// and log attributes.
const DateLayout = "2006-01-02"

// Market identifies the exchange group an instrument trades on.
type Market string

const (
	MarketUS Market = "us"
)

// Instrument is a tradable symbol resolved for one ingestion cycle.
type Instrument struct {
	Symbol string
	Expiry *time.Time // nil when the instrument has no tracked expiry
}

// ProviderSymbol returns the symbol as the market-data provider expects it.
func (i Instrument) ProviderSymbol() string {
	return NormalizeSymbol(i.Symbol)
}

// Bar is one daily OHLCV record. Prices are rounded to PricePlaces; any field
// is null when the provider had no value for it on that date.
type Bar struct {
	Symbol string
	Date   time.Time // trading date at midnight UTC
	Open   null.Float
	High   null.Float
	Low    null.Float
	Close  null.Float
	Volume null.Int
}

// Sample is a live point-in-time price observation.
type Sample struct {
	Symbol    string
	Timestamp time.Time
	Price     float64
}

// NormalizeSymbol converts a listing symbol into the provider form: trimmed,
// upper-cased, with class-designator dots replaced by dashes (BRK.B → BRK-B).
func NormalizeSymbol(symbol string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(symbol)), ".", "-")
}

// TradingDate truncates t to its calendar date in loc and returns that date
// at midnight UTC.
func TradingDate(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FirstOfMonth returns midnight UTC on the first day of t's month.
func FirstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
