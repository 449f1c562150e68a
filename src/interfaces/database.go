package interfaces

import (
	"context"
	"time"

	"market-data-server/src/models"
)

// -----------------------------------------------------------------------------
// ICacheMetadataRepo persists the staleness ledger.
// -----------------------------------------------------------------------------

type ICacheMetadataRepo interface {
	// GetCacheMetadata returns nil, nil when no row exists for key.
	GetCacheMetadata(ctx context.Context, key string) (*models.MCacheMetadata, error)

	UpsertCacheMetadata(ctx context.Context, meta models.MCacheMetadata) error
}

// -----------------------------------------------------------------------------
// IPriceRepo stores live snapshots, intraday bars and daily bars.
// Zero from/to times mean unbounded.
// -----------------------------------------------------------------------------

type IPriceRepo interface {
	UpsertLivePrice(ctx context.Context, price models.MLivePrice) error
	GetLivePrice(ctx context.Context, ticker string) (*models.MLivePrice, error)
	ListLivePrices(ctx context.Context) ([]models.MLivePrice, error)

	// -----------------------------------------------------------------------------
	// UpsertIntradayBars writes bars keyed by (ticker, timestamp). A bar with
	// source "live" only ever replaces another "live" bar.
	UpsertIntradayBars(ctx context.Context, bars []models.MIntradayBar) error
	GetIntradayBars(ctx context.Context, ticker string, from, to time.Time) ([]models.MIntradayBar, error)
	DeleteIntradayBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// -----------------------------------------------------------------------------
	UpsertDailyBars(ctx context.Context, bars []models.MDailyBar) error
	GetDailyBars(ctx context.Context, ticker string, from, to time.Time) ([]models.MDailyBar, error)
	CountDailyBars(ctx context.Context, ticker string) (int, error)
}

// -----------------------------------------------------------------------------
// INewsRepo stores content-addressed articles and their ticker links.
// -----------------------------------------------------------------------------

type INewsRepo interface {
	UpsertContent(ctx context.Context, content models.MContent) error
	GetContent(ctx context.Context, contentID string) (*models.MContent, error)

	// UpsertNews stores the metadata row and replaces its ticker associations.
	UpsertNews(ctx context.Context, article models.MNewsArticle) error
	GetNewsForTicker(ctx context.Context, ticker string, limit, offset int) ([]models.MNewsArticle, error)
	LatestNewsDate(ctx context.Context, ticker string) (*time.Time, error)
}

// -----------------------------------------------------------------------------
// ITrackingRepo is the worker's work list.
// -----------------------------------------------------------------------------

type ITrackingRepo interface {
	UpsertTrackedStock(ctx context.Context, stock models.MTrackedStock) error
	DeleteTrackedStock(ctx context.Context, ticker string) (bool, error)
	ListTrackedStocks(ctx context.Context) ([]models.MTrackedStock, error)
	TouchPriceUpdate(ctx context.Context, ticker string, at time.Time) error
	TouchNewsUpdate(ctx context.Context, ticker string, at time.Time) error
}

// -----------------------------------------------------------------------------

type ICompanyRepo interface {
	UpsertCompany(ctx context.Context, company models.MCompany) error
	GetCompany(ctx context.Context, ticker string) (*models.MCompany, error)
	UpdateSharesOutstanding(ctx context.Context, ticker string, shares int64, at time.Time) error
}

// -----------------------------------------------------------------------------
// IStore defines the contract for storage operations.
// -----------------------------------------------------------------------------

type IStore interface {
	ICacheMetadataRepo
	IPriceRepo
	INewsRepo
	ITrackingRepo
	ICompanyRepo

	// Initialize sets up the database schema and tables.
	Initialize() error

	Ping(ctx context.Context) error

	// Close the database connection
	Close() error
}
