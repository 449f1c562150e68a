package workers

import (
	"context"
	"fmt"
	"time"

	"market-data-server/src/interfaces"
	"market-data-server/src/logger"
	"market-data-server/src/models"
	"market-data-server/src/utils"
)

// -----------------------------------------------------------------------------
// ReconcileWorker replaces approximate live bars with the upstream's own
// minute bars once the upstream delay has passed. Fallback, when set, serves
// the minute the upstream cannot.
// -----------------------------------------------------------------------------

type ReconcileWorker struct {
	Store    IntradayStore
	Quotes   interfaces.IQuoteSource
	Fallback interfaces.IFallbackSource
	Clock    interfaces.IMarketClock
	Delay    time.Duration
	Logger   *logger.Logger
	Now      func() time.Time
}

// -----------------------------------------------------------------------------

func NewReconcileWorker(store IntradayStore, quotes interfaces.IQuoteSource, clock interfaces.IMarketClock, delay time.Duration, log *logger.Logger) *ReconcileWorker {
	if delay <= 0 {
		delay = utils.DefaultIntradayDelay
	}
	return &ReconcileWorker{
		Store:  store,
		Quotes: quotes,
		Clock:  clock,
		Delay:  delay,
		Logger: log,
		Now:    func() time.Time { return time.Now().UTC() },
	}
}

// -----------------------------------------------------------------------------

// TargetMinute is the start of the minute to reconcile at now
func (w *ReconcileWorker) TargetMinute(now time.Time) time.Time {
	return now.UTC().Add(-(w.Delay + utils.ReconcileBuffer)).Truncate(time.Minute)
}

// -----------------------------------------------------------------------------

func (w *ReconcileWorker) Run(ctx context.Context) *models.MBatchReport {
	report := models.NewBatchReport("reconcile")
	now := w.Now()
	target := w.TargetMinute(now)

	tracked, err := trackedFor(ctx, w.Store, tracksPrices)
	if err != nil {
		report.Fail("tracked_stocks", err)
		return report
	}
	if len(tracked) == 0 {
		report.Skip("no tracked stocks")
		return report
	}

	from := target.Unix()
	to := from + 59
	processed := 0
	for _, t := range tracked {
		// the target minute must itself have been a trading minute
		if !w.Clock.IsMarketOpen(exchangeOf(t), target) {
			continue
		}
		processed++

		bars, err := FetchIntraday(ctx, w.Quotes, w.Fallback, w.Logger, t.Symbol(), models.IntervalMin1, from, to)
		if err != nil {
			report.Fail(t.Ticker, err)
			continue
		}
		if len(bars) == 0 {
			report.Fail(t.Ticker, fmt.Errorf("no bar for %s", target.Format("15:04")))
			continue
		}
		for i := range bars {
			if bars[i].Source != models.SourceYahoo {
				bars[i].Source = models.SourceEODHD
			}
		}
		if err := w.Store.UpsertIntradayBars(ctx, bars); err != nil {
			report.Fail(t.Ticker, err)
			continue
		}
		report.Ok(t.Ticker)
	}

	if processed == 0 {
		report.Skip("markets closed")
	}
	w.Logger.Debug("%s", report)
	return report
}
