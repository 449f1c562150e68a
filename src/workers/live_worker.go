package workers

import (
	"context"
	"fmt"
	"time"

	"market-data-server/src/analysis"
	"market-data-server/src/interfaces"
	"market-data-server/src/logger"
	"market-data-server/src/models"
)

// -----------------------------------------------------------------------------
// LiveWorker polls one batch quote per tick for tracked stocks whose market
// is open, stores snapshots, folds them into minute bars and pushes
// price_update frames.
// -----------------------------------------------------------------------------

type LiveWorker struct {
	Store       LivePriceStore
	Quotes      interfaces.IQuoteSource
	Broadcaster interfaces.IBroadcaster
	Clock       interfaces.IMarketClock
	Aggregator  *analysis.MinuteBarAggregator
	Logger      *logger.Logger
	Now         func() time.Time
}

// -----------------------------------------------------------------------------

func NewLiveWorker(store LivePriceStore, quotes interfaces.IQuoteSource, b interfaces.IBroadcaster, clock interfaces.IMarketClock, log *logger.Logger) *LiveWorker {
	return &LiveWorker{
		Store:       store,
		Quotes:      quotes,
		Broadcaster: b,
		Clock:       clock,
		Aggregator:  analysis.NewMinuteBarAggregator(),
		Logger:      log,
		Now:         func() time.Time { return time.Now().UTC() },
	}
}

// -----------------------------------------------------------------------------

// Run executes one tick. Per-ticker failures are recorded and skipped.
func (w *LiveWorker) Run(ctx context.Context) *models.MBatchReport {
	report := models.NewBatchReport("live_prices")
	now := w.Now()

	tracked, err := trackedFor(ctx, w.Store, tracksPrices)
	if err != nil {
		report.Fail("tracked_stocks", err)
		return report
	}
	if len(tracked) == 0 {
		report.Skip("no tracked stocks")
		return report
	}

	var symbols []string
	wanted := make(map[string]models.MTrackedStock)
	for _, t := range tracked {
		if !w.Clock.IsMarketOpen(exchangeOf(t), now) {
			continue
		}
		symbols = append(symbols, t.Symbol())
		wanted[models.BaseTicker(t.Ticker)] = t
	}
	if len(symbols) == 0 {
		report.Skip("markets closed")
		return report
	}

	quotes, err := w.Quotes.GetRealTimeBatch(ctx, symbols)
	if err != nil {
		report.Fail("batch", err)
		w.Logger.Warning("Batch quote for %d symbols failed: %v", len(symbols), err)
		return report
	}

	seen := make(map[string]bool, len(quotes))
	for _, q := range quotes {
		ticker := models.BaseTicker(q.Code)
		stock, ok := wanted[ticker]
		if !ok {
			report.Fail(q.Code, fmt.Errorf("unknown ticker in response"))
			continue
		}
		seen[ticker] = true
		if !q.HasPrice {
			report.Fail(ticker, fmt.Errorf("missing price"))
			continue
		}
		if err := w.apply(ctx, stock, q, now); err != nil {
			report.Fail(ticker, err)
			continue
		}
		report.Ok(ticker)
	}

	for ticker := range wanted {
		if !seen[ticker] {
			report.Fail(ticker, fmt.Errorf("not in response"))
		}
	}

	if len(report.Failed) > 0 {
		w.Logger.Warning("%s", report)
	} else {
		w.Logger.Debug("%s", report)
	}
	return report
}

// -----------------------------------------------------------------------------

func (w *LiveWorker) apply(ctx context.Context, stock models.MTrackedStock, q models.MQuote, now time.Time) error {
	ticker := models.BaseTicker(stock.Ticker)

	marketTs := now
	if q.Timestamp > 0 {
		marketTs = time.Unix(q.Timestamp, 0).UTC()
	}
	live := models.MLivePrice{
		Ticker:          ticker,
		Exchange:        exchangeOf(stock),
		Price:           q.Close,
		Open:            q.Open,
		High:            q.High,
		Low:             q.Low,
		PreviousClose:   q.PreviousClose,
		Change:          q.Change,
		ChangePercent:   q.ChangePercent,
		Volume:          q.Volume,
		MarketTimestamp: marketTs,
		UpdatedAt:       now,
	}
	if err := w.Store.UpsertLivePrice(ctx, live); err != nil {
		return err
	}

	if bar, flushed := w.Aggregator.Observe(ticker, q.Close, q.Volume, now); flushed {
		if err := w.Store.UpsertIntradayBars(ctx, []models.MIntradayBar{bar}); err != nil {
			return err
		}
	}

	if err := w.Store.TouchPriceUpdate(ctx, ticker, now); err != nil {
		return err
	}

	w.Broadcaster.BroadcastPriceUpdate(ticker, models.MPriceUpdate{
		Price:         q.Close,
		Change:        q.Change,
		ChangePercent: q.ChangePercent,
		Volume:        q.Volume,
		Timestamp:     q.Timestamp,
	})
	return nil
}

// -----------------------------------------------------------------------------

// FlushOpenBars persists the in-progress minute bars, used on shutdown
func (w *LiveWorker) FlushOpenBars(ctx context.Context) error {
	bars := w.Aggregator.Drain(w.Now())
	if len(bars) == 0 {
		return nil
	}
	return w.Store.UpsertIntradayBars(ctx, bars)
}
