package models

import "time"

// Bar sources
const (
	SourceLive   = "live"
	SourceEODHD  = "eodhd"
	SourceYahoo  = "yahoo"
	PeriodDaily  = "d"
	IntervalMin1 = "1m"
)

// MLivePrice is the latest quote snapshot for one ticker.
type MLivePrice struct {
	Ticker          string    `json:"ticker"`
	Exchange        string    `json:"exchange,omitempty"`
	Price           float64   `json:"price"`
	Open            float64   `json:"open"`
	High            float64   `json:"high"`
	Low             float64   `json:"low"`
	PreviousClose   float64   `json:"previous_close"`
	Change          float64   `json:"change"`
	ChangePercent   float64   `json:"change_percent"`
	Volume          int64     `json:"volume"`
	MarketTimestamp time.Time `json:"market_timestamp"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// MIntradayBar is a minute (or coarser) OHLC bar.
type MIntradayBar struct {
	Ticker    string    `json:"ticker"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetched_at"`
}

// MDailyBar is an end-of-day bar. Date is truncated to midnight UTC.
type MDailyBar struct {
	Ticker        string    `json:"ticker"`
	Date          time.Time `json:"date"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Close         float64   `json:"close"`
	AdjustedClose float64   `json:"adjusted_close"`
	Volume        int64     `json:"volume"`
	FetchedAt     time.Time `json:"fetched_at"`
}

// MQuote is a normalized real-time quote from the upstream.
type MQuote struct {
	Code          string  `json:"code"`
	Timestamp     int64   `json:"timestamp"`
	Open          float64 `json:"open"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Close         float64 `json:"close"`
	Volume        int64   `json:"volume"`
	PreviousClose float64 `json:"previousClose"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_p"`
	// HasPrice is false when the upstream sent "NA" or omitted close
	HasPrice bool `json:"-"`
}

// MDateRange is an inclusive range of calendar dates.
type MDateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// MDailyChange is one symbol's move between the first and last close of a range.
type MDailyChange struct {
	StartPrice *float64 `json:"start_price"`
	EndPrice   float64  `json:"end_price"`
	Change     float64  `json:"change"`
}

// MBatchChangesRequest is the body of POST /api/batch/daily-changes.
type MBatchChangesRequest struct {
	Symbols   []string `json:"symbols" binding:"required"`
	StartDate string   `json:"start_date" binding:"required"`
	EndDate   string   `json:"end_date" binding:"required"`
}
