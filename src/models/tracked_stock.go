package models

import (
	"strings"
	"time"
)

const DefaultExchange = "US"

// MTrackedStock is the work list entry the workers iterate.
type MTrackedStock struct {
	Ticker          string     `json:"ticker"`
	Exchange        string     `json:"exchange"`
	TrackPrices     bool       `json:"track_prices"`
	TrackNews       bool       `json:"track_news"`
	AddedAt         time.Time  `json:"added_at"`
	LastPriceUpdate *time.Time `json:"last_price_update"`
	LastNewsUpdate  *time.Time `json:"last_news_update"`
}

// Symbol returns the upstream symbol, e.g. AAPL.US
func (t MTrackedStock) Symbol() string {
	exchange := t.Exchange
	if exchange == "" {
		exchange = DefaultExchange
	}
	return BaseTicker(t.Ticker) + "." + exchange
}

// BaseTicker strips an exchange suffix: "AAPL.US" -> "AAPL".
func BaseTicker(symbol string) string {
	if i := strings.Index(symbol, "."); i >= 0 {
		return symbol[:i]
	}
	return symbol
}

// SplitSymbol splits "9988.HK" into ("9988", "HK"). The exchange is empty when absent.
func SplitSymbol(symbol string) (string, string) {
	if i := strings.Index(symbol, "."); i >= 0 {
		return symbol[:i], symbol[i+1:]
	}
	return symbol, ""
}

type MCompany struct {
	Ticker            string    `json:"ticker"`
	Name              string    `json:"name"`
	Exchange          string    `json:"exchange"`
	Sector            string    `json:"sector"`
	Industry          string    `json:"industry"`
	MarketCap         float64   `json:"market_cap"`
	PERatio           float64   `json:"pe_ratio"`
	EPS               float64   `json:"eps"`
	SharesOutstanding int64     `json:"shares_outstanding"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// MSharesFact is one reported shares-outstanding value from a filing.
type MSharesFact struct {
	End   string `json:"end"`
	Value int64  `json:"val"`
	Form  string `json:"form"`
	Filed string `json:"filed"`
	Frame string `json:"frame,omitempty"`
}

// MAddStockRequest is the body of POST /api/tracking/stocks.
// Pointers distinguish an omitted flag from false.
type MAddStockRequest struct {
	Ticker      string `json:"ticker" binding:"required"`
	Exchange    string `json:"exchange"`
	TrackPrices *bool  `json:"track_prices"`
	TrackNews   *bool  `json:"track_news"`
}

type MTrackingStatus struct {
	TrackedStocks      []string   `json:"tracked_stocks"`
	TotalCount         int        `json:"total_count"`
	LastPriceWorkerRun *time.Time `json:"last_price_worker_run"`
	LastNewsWorkerRun  *time.Time `json:"last_news_worker_run"`
}

type MSyncResult struct {
	Added        int      `json:"added"`
	TotalTracked int      `json:"total_tracked"`
	Prefetching  []string `json:"prefetching"`
}

// MSyncRequest is the body of POST /api/tracking/stocks/sync.
type MSyncRequest struct {
	Stocks []MAddStockRequest `json:"stocks"`
}
