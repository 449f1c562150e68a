package analysis

import (
	"sort"
	"sync"
	"time"

	"market-data-server/src/models"
)

// -----------------------------------------------------------------------------
// MinuteBarAggregator folds ~15s quote samples into approximate one-minute
// OHLC bars, one open bar per ticker. A bar is complete when the first
// sample of a different minute arrives.
// -----------------------------------------------------------------------------

type MinuteBarAggregator struct {
	mu   sync.Mutex
	bars map[string]*models.MIntradayBar
}

// -----------------------------------------------------------------------------

func NewMinuteBarAggregator() *MinuteBarAggregator {
	return &MinuteBarAggregator{bars: make(map[string]*models.MIntradayBar)}
}

// -----------------------------------------------------------------------------

// Observe adds one sample. volume is the cumulative day volume from the quote.
// When the sample starts a new minute, the finished bar is returned with ok set.
func (a *MinuteBarAggregator) Observe(ticker string, price float64, volume int64, now time.Time) (flushed models.MIntradayBar, ok bool) {
	minute := now.UTC().Truncate(time.Minute)

	a.mu.Lock()
	defer a.mu.Unlock()

	cur, exists := a.bars[ticker]
	if exists && cur.Timestamp.Equal(minute) {
		if price > cur.High {
			cur.High = price
		}
		if price < cur.Low {
			cur.Low = price
		}
		cur.Close = price
		cur.Volume = volume
		return models.MIntradayBar{}, false
	}

	if exists {
		flushed, ok = *cur, true
		flushed.FetchedAt = now.UTC()
	}

	a.bars[ticker] = &models.MIntradayBar{
		Ticker:    ticker,
		Timestamp: minute,
		Open:      price,
		High:      price,
		Low:       price,
		Close:     price,
		Volume:    volume,
		Source:    models.SourceLive,
	}
	return flushed, ok
}

// -----------------------------------------------------------------------------

// Current returns the open bar for ticker
func (a *MinuteBarAggregator) Current(ticker string) (models.MIntradayBar, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if cur, ok := a.bars[ticker]; ok {
		return *cur, true
	}
	return models.MIntradayBar{}, false
}

// -----------------------------------------------------------------------------

// Drain removes and returns every open bar, sorted by ticker. Used on shutdown.
func (a *MinuteBarAggregator) Drain(now time.Time) []models.MIntradayBar {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]models.MIntradayBar, 0, len(a.bars))
	for _, b := range a.bars {
		bar := *b
		bar.FetchedAt = now.UTC()
		out = append(out, bar)
	}
	a.bars = make(map[string]*models.MIntradayBar)
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}

// -----------------------------------------------------------------------------

func (a *MinuteBarAggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.bars)
}
