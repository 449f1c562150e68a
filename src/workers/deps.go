package workers

import (
	"context"
	"strings"
	"time"

	"market-data-server/src/models"
)

// -----------------------------------------------------------------------------
// Narrow views of the store each worker depends on. interfaces.IStore
// satisfies all of them.
// -----------------------------------------------------------------------------

type TrackedLister interface {
	ListTrackedStocks(ctx context.Context) ([]models.MTrackedStock, error)
}

type LivePriceStore interface {
	TrackedLister
	UpsertLivePrice(ctx context.Context, price models.MLivePrice) error
	UpsertIntradayBars(ctx context.Context, bars []models.MIntradayBar) error
	TouchPriceUpdate(ctx context.Context, ticker string, at time.Time) error
}

type IntradayStore interface {
	TrackedLister
	UpsertIntradayBars(ctx context.Context, bars []models.MIntradayBar) error
}

type NewsStore interface {
	TrackedLister
	UpsertContent(ctx context.Context, content models.MContent) error
	UpsertNews(ctx context.Context, article models.MNewsArticle) error
	LatestNewsDate(ctx context.Context, ticker string) (*time.Time, error)
	TouchNewsUpdate(ctx context.Context, ticker string, at time.Time) error
}

type DailyStore interface {
	TrackedLister
	UpsertDailyBars(ctx context.Context, bars []models.MDailyBar) error
	CountDailyBars(ctx context.Context, ticker string) (int, error)
	DeleteIntradayBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type CompanyStore interface {
	TrackedLister
	UpsertCompany(ctx context.Context, company models.MCompany) error
	UpdateSharesOutstanding(ctx context.Context, ticker string, shares int64, at time.Time) error
}

type TrackingStore interface {
	TrackedLister
	UpsertTrackedStock(ctx context.Context, stock models.MTrackedStock) error
	DeleteTrackedStock(ctx context.Context, ticker string) (bool, error)
	CountDailyBars(ctx context.Context, ticker string) (int, error)
	UpsertDailyBars(ctx context.Context, bars []models.MDailyBar) error
}

// -----------------------------------------------------------------------------

// trackedFor lists tracked stocks filtered by a flag
func trackedFor(ctx context.Context, s TrackedLister, keep func(models.MTrackedStock) bool) ([]models.MTrackedStock, error) {
	all, err := s.ListTrackedStocks(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0:0]
	for _, t := range all {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out, nil
}

func tracksPrices(t models.MTrackedStock) bool { return t.TrackPrices }
func tracksNews(t models.MTrackedStock) bool   { return t.TrackNews }

func exchangeOf(t models.MTrackedStock) string {
	if t.Exchange == "" {
		return models.DefaultExchange
	}
	return strings.ToUpper(t.Exchange)
}
