package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire and storage format for bar dates. Bars have day
// granularity only; no time component is ever persisted.
const DateLayout = "2006-01-02"

// PriceBar represents one day of OHLCV data for a ticker, plus the dividend
// and split adjustments reported by the upstream source for that day.
// Uniquely keyed by (Ticker, Date).
type PriceBar struct {
	Ticker    string          `json:"ticker"`
	Date      time.Time       `json:"date"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    int64           `json:"volume"`
	Dividends decimal.Decimal `json:"dividends"`
	Splits    decimal.Decimal `json:"stock_splits"`
}

// Day truncates t to midnight UTC, the canonical form for bar dates.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
