package workers

import (
	"context"
	"time"

	"market-data-server/src/interfaces"
	"market-data-server/src/logger"
	"market-data-server/src/models"
	"market-data-server/src/utils"
)

// -----------------------------------------------------------------------------
// DailyWorker refreshes recent end-of-day bars after the close and prunes
// intraday rows past the retention window.
// -----------------------------------------------------------------------------

type DailyWorker struct {
	Store         DailyStore
	Quotes        interfaces.IQuoteSource
	Logger        *logger.Logger
	RetentionDays int
	LookbackDays  int
	Now           func() time.Time
}

func NewDailyWorker(store DailyStore, quotes interfaces.IQuoteSource, retentionDays int, log *logger.Logger) *DailyWorker {
	if retentionDays <= 0 {
		retentionDays = utils.DefaultRetentionDays
	}
	return &DailyWorker{
		Store:         store,
		Quotes:        quotes,
		Logger:        log,
		RetentionDays: retentionDays,
		LookbackDays:  7,
		Now:           func() time.Time { return time.Now().UTC() },
	}
}

// -----------------------------------------------------------------------------

func (w *DailyWorker) Run(ctx context.Context) *models.MBatchReport {
	report := models.NewBatchReport("daily")
	now := w.Now()

	tracked, err := trackedFor(ctx, w.Store, tracksPrices)
	if err != nil {
		report.Fail("tracked_stocks", err)
	}

	from := now.AddDate(0, 0, -w.LookbackDays).Format("2006-01-02")
	to := now.Format("2006-01-02")
	for _, t := range tracked {
		bars, err := w.Quotes.GetEOD(ctx, t.Symbol(), from, to, models.PeriodDaily)
		if err != nil {
			report.Fail(t.Ticker, err)
			continue
		}
		if err := w.Store.UpsertDailyBars(ctx, bars); err != nil {
			report.Fail(t.Ticker, err)
			continue
		}
		report.Ok(t.Ticker)
	}

	removed, err := w.Cleanup(ctx)
	if err != nil {
		report.Fail("retention", err)
	} else {
		w.Logger.Info("Retention removed %d intraday rows", removed)
	}

	w.Logger.Info("%s", report)
	return report
}

// Cleanup deletes intraday bars older than the retention window
func (w *DailyWorker) Cleanup(ctx context.Context) (int64, error) {
	cutoff := w.Now().AddDate(0, 0, -w.RetentionDays)
	return w.Store.DeleteIntradayBefore(ctx, cutoff)
}
