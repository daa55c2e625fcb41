package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricePoint is one persisted price observation.
type PricePoint struct {
	ID          int64
	Pair        string
	Price       decimal.Decimal
	SourceTitle string
	ObservedAt  time.Time
}

// Candle is one OHLC aggregation bucket.
type Candle struct {
	Timestamp time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    int64
}

// HistoryFilter narrows ListHistory results. A nil bound leaves that side
// of the window open; an empty Pair matches every pair.
type HistoryFilter struct {
	Pair  string
	From  *time.Time
	To    *time.Time
	Limit int
}

// OHLCQuery describes one OHLC aggregation request.
type OHLCQuery struct {
	Pair     string
	Interval time.Duration
	From     *time.Time
	To       *time.Time
	Limit    int
}
