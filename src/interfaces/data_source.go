package interfaces

import (
	"context"
	"encoding/json"

	"market-data-server/src/models"
)

// -----------------------------------------------------------------------------
// IQuoteSource fetches prices from the upstream market-data API.
// -----------------------------------------------------------------------------

type IQuoteSource interface {
	// GetRealTimeBatch returns one quote per symbol the upstream knows about.
	GetRealTimeBatch(ctx context.Context, symbols []string) ([]models.MQuote, error)

	GetRealTime(ctx context.Context, symbol string) (*models.MQuote, error)

	// GetIntraday returns bars in [from, to] unix seconds. Zero bounds are omitted.
	GetIntraday(ctx context.Context, symbol, interval string, from, to int64) ([]models.MIntradayBar, error)

	// GetEOD returns daily bars; from/to are YYYY-MM-DD or empty.
	GetEOD(ctx context.Context, symbol, from, to, period string) ([]models.MDailyBar, error)
}

// -----------------------------------------------------------------------------

type INewsSource interface {
	GetNews(ctx context.Context, symbol, from, to string, limit, offset int) ([]models.MUpstreamArticle, error)
}

// -----------------------------------------------------------------------------
// IReferenceSource proxies reference data the server does not model.
// -----------------------------------------------------------------------------

type IReferenceSource interface {
	GetFundamentals(ctx context.Context, symbol string) (map[string]interface{}, error)
	Search(ctx context.Context, query string, limit int, exchange string) (json.RawMessage, error)
	GetExchangesList(ctx context.Context) (json.RawMessage, error)
	GetExchangeSymbolList(ctx context.Context, exchange string) (json.RawMessage, error)
}

// -----------------------------------------------------------------------------

type IUpstream interface {
	IQuoteSource
	INewsSource
	IReferenceSource

	Stats() models.MUpstreamStats
}

// -----------------------------------------------------------------------------
// IFilingsSource reads regulatory filings.
// -----------------------------------------------------------------------------

type IFilingsSource interface {
	GetCIK(ctx context.Context, ticker string) (string, error)
	GetSharesHistory(ctx context.Context, ticker string) ([]models.MSharesFact, error)
}

// -----------------------------------------------------------------------------
// IFallbackSource fills in when the primary upstream or filings have nothing.
// Symbols carry the exchange suffix, e.g. AAPL.US.
// -----------------------------------------------------------------------------

type IFallbackSource interface {
	GetIntraday(ctx context.Context, symbol, interval string, from, to int64) ([]models.MIntradayBar, error)

	// GetSharesOutstanding returns 0 when the source has no figure.
	GetSharesOutstanding(ctx context.Context, symbol string) (int64, error)
}
