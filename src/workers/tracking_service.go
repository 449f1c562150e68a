package workers

import (
	"context"
	"strings"
	"sync"
	"time"

	"market-data-server/src/helpers"
	"market-data-server/src/interfaces"
	"market-data-server/src/logger"
	"market-data-server/src/models"
	"market-data-server/src/utils"
)

const (
	ActionAdded   = "added"
	ActionRemoved = "removed"
	ActionSynced  = "synced"
)

// -----------------------------------------------------------------------------
// TrackingService owns the work list: adding and removing tracked stocks,
// the historical prefetch that follows an add, and the status summary.
// -----------------------------------------------------------------------------

type TrackingService struct {
	Store         TrackingStore
	Quotes        interfaces.IQuoteSource
	Broadcaster   interfaces.IBroadcaster
	Logger        *logger.Logger
	PrefetchYears int
	Now           func() time.Time

	// prefetches outlive the request that started them
	baseCtx context.Context
	wg      sync.WaitGroup
}

func NewTrackingService(ctx context.Context, store TrackingStore, quotes interfaces.IQuoteSource, b interfaces.IBroadcaster, prefetchYears int, log *logger.Logger) *TrackingService {
	if prefetchYears <= 0 {
		prefetchYears = 5
	}
	return &TrackingService{
		Store:         store,
		Quotes:        quotes,
		Broadcaster:   b,
		Logger:        log,
		PrefetchYears: prefetchYears,
		Now:           func() time.Time { return time.Now().UTC() },
		baseCtx:       ctx,
	}
}

// -----------------------------------------------------------------------------

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// normalize turns a request into a stored entry. "9988.HK" carries its exchange.
func normalize(req models.MAddStockRequest) (models.MTrackedStock, error) {
	raw := strings.ToUpper(strings.TrimSpace(req.Ticker))
	if raw == "" {
		return models.MTrackedStock{}, helpers.NewValidationError("ticker is required")
	}
	ticker, exchange := models.SplitSymbol(raw)
	if ticker == "" {
		return models.MTrackedStock{}, helpers.NewValidationError("invalid ticker %q", req.Ticker)
	}
	if exchange == "" {
		exchange = strings.ToUpper(strings.TrimSpace(req.Exchange))
	}
	if exchange == "" {
		exchange = models.DefaultExchange
	}
	return models.MTrackedStock{
		Ticker:      ticker,
		Exchange:    exchange,
		TrackPrices: boolOr(req.TrackPrices, true),
		TrackNews:   boolOr(req.TrackNews, true),
	}, nil
}

// -----------------------------------------------------------------------------

func (s *TrackingService) tickers(ctx context.Context) []string {
	list, err := s.Store.ListTrackedStocks(ctx)
	if err != nil {
		s.Logger.Warning("Listing tracked stocks: %v", err)
		return nil
	}
	out := make([]string, 0, len(list))
	for _, t := range list {
		out = append(out, t.Ticker)
	}
	return out
}

func (s *TrackingService) List(ctx context.Context) ([]models.MTrackedStock, error) {
	return s.Store.ListTrackedStocks(ctx)
}

// Add stores the stock, announces it and starts its prefetch in the background
func (s *TrackingService) Add(ctx context.Context, req models.MAddStockRequest) (models.MTrackedStock, error) {
	stock, err := normalize(req)
	if err != nil {
		return stock, err
	}
	stock.AddedAt = s.Now()
	if err := s.Store.UpsertTrackedStock(ctx, stock); err != nil {
		return stock, err
	}
	s.Logger.Info("Tracking %s", stock.Symbol())

	s.Broadcaster.BroadcastTrackingStatus(s.tickers(ctx), ActionAdded, stock.Ticker)
	s.prefetchAsync(stock)
	return stock, nil
}

// Remove reports false when the ticker was not tracked
func (s *TrackingService) Remove(ctx context.Context, ticker string) (bool, error) {
	ticker = models.BaseTicker(strings.ToUpper(strings.TrimSpace(ticker)))
	removed, err := s.Store.DeleteTrackedStock(ctx, ticker)
	if err != nil || !removed {
		return removed, err
	}
	s.Logger.Info("Stopped tracking %s", ticker)
	s.Broadcaster.BroadcastTrackingStatus(s.tickers(ctx), ActionRemoved, ticker)
	return true, nil
}

// -----------------------------------------------------------------------------

func latest(a, b *time.Time) *time.Time {
	if b == nil {
		return a
	}
	if a == nil || b.After(*a) {
		return b
	}
	return a
}

func (s *TrackingService) Status(ctx context.Context) (models.MTrackingStatus, error) {
	list, err := s.Store.ListTrackedStocks(ctx)
	if err != nil {
		return models.MTrackingStatus{}, err
	}
	status := models.MTrackingStatus{TrackedStocks: make([]string, 0, len(list)), TotalCount: len(list)}
	for _, t := range list {
		status.TrackedStocks = append(status.TrackedStocks, t.Ticker)
		status.LastPriceWorkerRun = latest(status.LastPriceWorkerRun, t.LastPriceUpdate)
		status.LastNewsWorkerRun = latest(status.LastNewsWorkerRun, t.LastNewsUpdate)
	}
	return status, nil
}

// -----------------------------------------------------------------------------

// Sync adds every stock not yet tracked and prefetches the new ones
func (s *TrackingService) Sync(ctx context.Context, stocks []models.MAddStockRequest) (models.MSyncResult, error) {
	list, err := s.Store.ListTrackedStocks(ctx)
	if err != nil {
		return models.MSyncResult{}, err
	}
	known := make(map[string]bool, len(list))
	for _, t := range list {
		known[t.Ticker] = true
	}

	result := models.MSyncResult{Prefetching: []string{}}
	for _, req := range stocks {
		stock, err := normalize(req)
		if err != nil {
			s.Logger.Warning("Sync skipping %q: %v", req.Ticker, err)
			continue
		}
		if known[stock.Ticker] {
			continue
		}
		stock.AddedAt = s.Now()
		if err := s.Store.UpsertTrackedStock(ctx, stock); err != nil {
			return result, err
		}
		known[stock.Ticker] = true
		result.Added++
		result.Prefetching = append(result.Prefetching, stock.Symbol())
		s.prefetchAsync(stock)
	}
	result.TotalTracked = len(known)

	if result.Added > 0 {
		s.Broadcaster.BroadcastTrackingStatus(s.tickers(ctx), ActionSynced, "")
	}
	return result, nil
}

// SeedFromConfig tracks configured symbols that are not tracked yet
func (s *TrackingService) SeedFromConfig(ctx context.Context, symbols []string) error {
	if len(symbols) == 0 {
		return nil
	}
	reqs := make([]models.MAddStockRequest, 0, len(symbols))
	for _, sym := range symbols {
		reqs = append(reqs, models.MAddStockRequest{Ticker: sym})
	}
	res, err := s.Sync(ctx, reqs)
	if err == nil && res.Added > 0 {
		s.Logger.Info("Seeded %d tracked stocks from config", res.Added)
	}
	return err
}

// -----------------------------------------------------------------------------

func (s *TrackingService) prefetchAsync(stock models.MTrackedStock) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.Prefetch(s.baseCtx, stock); err != nil {
			s.Logger.Warning("Prefetch for %s failed: %v", stock.Symbol(), err)
		}
	}()
}

// Prefetch loads years of daily history once. It returns the rows stored.
func (s *TrackingService) Prefetch(ctx context.Context, stock models.MTrackedStock) (int, error) {
	ticker := models.BaseTicker(stock.Ticker)
	count, err := s.Store.CountDailyBars(ctx, ticker)
	if err != nil {
		return 0, err
	}
	if count > utils.PrefetchSkipRows {
		s.Logger.Debug("Prefetch skipped for %s, %d rows present", ticker, count)
		return 0, nil
	}

	now := s.Now()
	from := now.AddDate(-s.PrefetchYears, 0, 0).Format("2006-01-02")
	bars, err := s.Quotes.GetEOD(ctx, stock.Symbol(), from, now.Format("2006-01-02"), models.PeriodDaily)
	if err != nil {
		return 0, err
	}
	if err := s.Store.UpsertDailyBars(ctx, bars); err != nil {
		return 0, err
	}
	s.Logger.Info("Prefetched %d daily bars for %s", len(bars), stock.Symbol())
	return len(bars), nil
}

// Wait blocks until background prefetches finish
func (s *TrackingService) Wait() {
	s.wg.Wait()
}
