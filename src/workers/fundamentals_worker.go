package workers

import (
	"context"
	"strconv"
	"strings"
	"time"

	"market-data-server/src/data_source/sec"
	"market-data-server/src/interfaces"
	"market-data-server/src/logger"
	"market-data-server/src/models"
)

// -----------------------------------------------------------------------------
// FundamentalsWorker refreshes the company summary for tracked stocks and
// shares outstanding. SEC filings win for US listings, then Fallback, then
// the figure in the fundamentals payload.
// -----------------------------------------------------------------------------

type FundamentalsWorker struct {
	Store     CompanyStore
	Reference interfaces.IReferenceSource
	Filings   interfaces.IFilingsSource
	Fallback  interfaces.IFallbackSource
	Logger    *logger.Logger
	Now       func() time.Time
}

func NewFundamentalsWorker(store CompanyStore, ref interfaces.IReferenceSource, filings interfaces.IFilingsSource, log *logger.Logger) *FundamentalsWorker {
	return &FundamentalsWorker{
		Store:     store,
		Reference: ref,
		Filings:   filings,
		Logger:    log,
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

// -----------------------------------------------------------------------------

func section(data map[string]interface{}, name string) map[string]interface{} {
	m, _ := data[name].(map[string]interface{})
	return m
}

func str(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// num reads a float that may arrive as a number or a quoted number
func num(m map[string]interface{}, key string) float64 {
	if m == nil {
		return 0
	}
	switch v := m[key].(type) {
	case float64:
		return v
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err == nil {
			return f
		}
	}
	return 0
}

// CompanyFromFundamentals extracts the stored summary from a fundamentals payload
func CompanyFromFundamentals(ticker string, data map[string]interface{}, now time.Time) models.MCompany {
	general := section(data, "General")
	highlights := section(data, "Highlights")
	shares := section(data, "SharesStats")

	return models.MCompany{
		Ticker:            models.BaseTicker(strings.ToUpper(ticker)),
		Name:              str(general, "Name"),
		Exchange:          str(general, "Exchange"),
		Sector:            str(general, "Sector"),
		Industry:          str(general, "Industry"),
		MarketCap:         num(highlights, "MarketCapitalization"),
		PERatio:           num(highlights, "PERatio"),
		EPS:               num(highlights, "EarningsShare"),
		SharesOutstanding: int64(num(shares, "SharesOutstanding")),
		UpdatedAt:         now,
	}
}

// -----------------------------------------------------------------------------

func (w *FundamentalsWorker) Run(ctx context.Context) *models.MBatchReport {
	report := models.NewBatchReport("fundamentals")

	tracked, err := trackedFor(ctx, w.Store, func(models.MTrackedStock) bool { return true })
	if err != nil {
		report.Fail("tracked_stocks", err)
		return report
	}
	if len(tracked) == 0 {
		report.Skip("no tracked stocks")
		return report
	}

	for _, t := range tracked {
		if err := w.RefreshOne(ctx, t); err != nil {
			report.Fail(t.Ticker, err)
			continue
		}
		report.Ok(t.Ticker)
	}

	w.Logger.Info("%s", report)
	return report
}

// -----------------------------------------------------------------------------

// RefreshOne stores the company summary, then overrides shares outstanding
// with the best figure the filings or the fallback have.
func (w *FundamentalsWorker) RefreshOne(ctx context.Context, t models.MTrackedStock) error {
	now := w.Now()
	ticker := models.BaseTicker(t.Ticker)

	data, err := w.Reference.GetFundamentals(ctx, t.Symbol())
	if err != nil {
		return err
	}
	company := CompanyFromFundamentals(ticker, data, now)
	if err := w.Store.UpsertCompany(ctx, company); err != nil {
		return err
	}
	if company.SharesOutstanding > 0 {
		if err := w.Store.UpdateSharesOutstanding(ctx, ticker, company.SharesOutstanding, now); err != nil {
			return err
		}
	}

	shares := w.filedShares(ctx, t, ticker)
	if shares == 0 && w.Fallback != nil {
		// a failed fallback leaves the stored figure alone
		fallback, err := w.Fallback.GetSharesOutstanding(ctx, t.Symbol())
		if err != nil {
			w.Logger.Warning("Fallback shares for %s: %v", ticker, err)
		}
		shares = fallback
	}
	if shares > 0 {
		return w.Store.UpdateSharesOutstanding(ctx, ticker, shares, now)
	}
	return nil
}

// filedShares is the latest SEC figure for US listings, 0 otherwise
func (w *FundamentalsWorker) filedShares(ctx context.Context, t models.MTrackedStock, ticker string) int64 {
	if w.Filings == nil || exchangeOf(t) != models.DefaultExchange {
		return 0
	}
	facts, err := w.Filings.GetSharesHistory(ctx, ticker)
	if err != nil {
		w.Logger.Warning("SEC shares for %s: %v", ticker, err)
		return 0
	}
	return sec.LatestShares(facts)
}
