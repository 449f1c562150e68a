package cache

import (
	"context"
	"time"

	"market-data-server/src/interfaces"
	"market-data-server/src/logger"
	"market-data-server/src/models"
)

// Data types recorded in cache_metadata
const (
	TypeDailyPrices    = "daily_prices"
	TypeIntradayPrices = "intraday_prices"
	TypeLivePrices     = "live_prices"
	TypeNews           = "news"
	TypeFundamentals   = "fundamentals"
	TypeSearch         = "search"
	TypeExchanges      = "exchanges"
)

// -----------------------------------------------------------------------------
// CacheMetadataStore decides staleness for every cache key.
// A missing row is stale.
// -----------------------------------------------------------------------------

type CacheMetadataStore struct {
	Repo   interfaces.ICacheMetadataRepo
	Logger *logger.Logger
	Now    func() time.Time
}

// -----------------------------------------------------------------------------

func NewCacheMetadataStore(repo interfaces.ICacheMetadataRepo, log *logger.Logger) *CacheMetadataStore {
	return &CacheMetadataStore{
		Repo:   repo,
		Logger: log,
		Now:    func() time.Time { return time.Now().UTC() },
	}
}

// -----------------------------------------------------------------------------

// IsValid reports whether key was fetched less than ttl ago.
// Storage errors count as stale so the caller refetches.
func (c *CacheMetadataStore) IsValid(ctx context.Context, key string, ttl time.Duration) bool {
	meta, err := c.Repo.GetCacheMetadata(ctx, key)
	if err != nil {
		c.Logger.Warning("Cache metadata lookup for %s failed: %v", key, err)
		return false
	}
	if meta == nil {
		return false
	}
	return meta.IsValid(c.Now(), ttl)
}

// -----------------------------------------------------------------------------

// Touch records a successful upstream fetch for key. Never call it on a cache hit.
func (c *CacheMetadataStore) Touch(ctx context.Context, key, dataType, ticker string, ttl time.Duration, count int) error {
	return c.Repo.UpsertCacheMetadata(ctx, models.MCacheMetadata{
		Key:           key,
		DataType:      dataType,
		Ticker:        ticker,
		TTLSeconds:    int(ttl / time.Second),
		LastFetchedAt: c.Now(),
		RecordCount:   count,
	})
}
