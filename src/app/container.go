package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"market-data-server/src/analysis"
	"market-data-server/src/cache"
	"market-data-server/src/config"
	"market-data-server/src/data_source/eodhd"
	"market-data-server/src/data_source/sec"
	"market-data-server/src/data_source/yahoo"
	"market-data-server/src/grpc_control"
	"market-data-server/src/helpers"
	"market-data-server/src/interfaces"
	"market-data-server/src/logger"
	"market-data-server/src/network"
	"market-data-server/src/scheduler"
	"market-data-server/src/server"
	"market-data-server/src/storage"
	"market-data-server/src/utils"
	"market-data-server/src/workers"
)

// Job names as they appear in scheduler status
const (
	JobLivePrices   = "live_prices"
	JobReconcile    = "intraday_reconcile"
	JobNews         = "news"
	JobDaily        = "daily_prices"
	JobFundamentals = "fundamentals"
)

const (
	dbOpenRetries   = 5
	dbRetryDelay    = time.Second
	shutdownTimeout = 10 * time.Second
)

// -----------------------------------------------------------------------------
// Container owns every long-lived component and their lifecycle
// -----------------------------------------------------------------------------

type Container struct {
	Config *config.Config
	Logger *logger.Logger

	Store    interfaces.IStore
	Upstream *eodhd.EODHDSource
	Filings  *sec.SECSource
	// Fallback is nil when the yahoo source is disabled
	Fallback interfaces.IFallbackSource

	Subscriptions *server.SubscriptionManager
	Tracking      *workers.TrackingService
	Live          *workers.LiveWorker
	Scheduler     *scheduler.Scheduler
	Server        *server.FastAPIServer
	Control       *grpc_control.ControlService

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// -----------------------------------------------------------------------------

// OpenStore picks the storage backend from db_type and creates its tables,
// retrying while the database comes up
func OpenStore(cfg *config.Config, log *logger.Logger) (interfaces.IStore, error) {
	var (
		store interfaces.IStore
		err   error
	)
	switch cfg.Storage.DBType {
	case "postgres":
		store, err = storage.NewPostgresDB(cfg.MConfig, log)
	case "sqlite":
		store, err = storage.NewAsyncSQLiteDB(cfg.MConfig, log)
	default:
		return nil, fmt.Errorf("unsupported db_type %q", cfg.Storage.DBType)
	}
	if err != nil {
		return nil, err
	}

	err = helpers.RetryWithBackoff(log, "database initialize", dbOpenRetries, dbRetryDelay, store.Initialize)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s storage: %w", cfg.Storage.DBType, err)
	}
	return store, nil
}

// -----------------------------------------------------------------------------

// NewContainer builds the full object graph. Nothing runs until Start.
func NewContainer(cfg *config.Config, log *logger.Logger) (*Container, error) {
	store, err := OpenStore(cfg, log.Named("Storage"))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Container{
		Config: cfg,
		Logger: log,
		Store:  store,
		ctx:    ctx,
		cancel: cancel,
	}

	netMgr := network.NewAsyncNetworkManager(cfg.MConfig, log.Named("Network"))
	c.Upstream = eodhd.NewEODHDSource(cfg.MConfig, netMgr, log.Named("EODHD"))
	c.Filings = sec.NewSECSource(cfg.MConfig, netMgr, log.Named("SEC"))
	if !cfg.Yahoo.Disabled {
		c.Fallback = yahoo.NewYahooFinanceSource(cfg.MConfig, netMgr, log.Named("Yahoo"))
	}

	clock := utils.NewMarketScheduler(log.Named("MarketHours"))
	c.Subscriptions = server.NewSubscriptionManager(log.Named("SubscriptionManager"))

	c.Tracking = workers.NewTrackingService(ctx, store, c.Upstream, c.Subscriptions,
		cfg.Tracking.PrefetchYears, log.Named("Tracking"))

	if err := c.registerJobs(clock); err != nil {
		cancel()
		store.Close()
		return nil, err
	}

	meta := cache.NewCacheMetadataStore(store, log.Named("CacheMetadata"))
	readThrough := cache.NewReadThroughCache(meta, log.Named("Cache"))
	// room for a retried upstream call behind the shared fetch
	readThrough.FetchTimeout = 2 * config.TTL(cfg.Network.RequestTimeout)
	c.Server = server.NewFastAPIServer(cfg.MConfig, server.Deps{
		Store:         store,
		Upstream:      c.Upstream,
		Fallback:      c.Fallback,
		Cache:         readThrough,
		Ranges:        cache.NewRangeCache(store, c.Upstream, log.Named("RangeCache")),
		Analysis:      analysis.NewAnalysisFacade(log.Named("Analysis")),
		Tracking:      c.Tracking,
		Scheduler:     c.Scheduler,
		Subscriptions: c.Subscriptions,
	}, log.Named("Server"))

	c.Control = grpc_control.NewControlService(cfg.MConfig, store, c.Scheduler, log.Named("ControlService"))
	return c, nil
}

// -----------------------------------------------------------------------------

func (c *Container) registerJobs(clock interfaces.IMarketClock) error {
	cfg := c.Config
	log := c.Logger
	c.Scheduler = scheduler.NewScheduler(c.ctx, log.Named("Scheduler"))

	c.Live = workers.NewLiveWorker(c.Store, c.Upstream, c.Subscriptions, clock, log.Named("LiveWorker"))
	reconcile := workers.NewReconcileWorker(c.Store, c.Upstream, clock,
		time.Duration(cfg.Upstream.IntradayDelayMinutes)*time.Minute, log.Named("ReconcileWorker"))
	reconcile.Fallback = c.Fallback
	news := workers.NewNewsWorker(c.Store, c.Upstream, c.Subscriptions, cfg.Upstream.NewsLimit, log.Named("NewsWorker"))
	daily := workers.NewDailyWorker(c.Store, c.Upstream, cfg.Storage.RetentionDays, log.Named("DailyWorker"))
	fundamentals := workers.NewFundamentalsWorker(c.Store, c.Upstream, c.Filings, log.Named("FundamentalsWorker"))
	fundamentals.Fallback = c.Fallback

	sched := cfg.Scheduler
	steps := []func() error{
		func() error {
			return c.Scheduler.AddInterval(JobLivePrices, config.TTL(sched.PriceIntervalSeconds), c.Live.Run)
		},
		func() error {
			return c.Scheduler.AddInterval(JobReconcile, config.TTL(sched.ReconcileIntervalSeconds), reconcile.Run)
		},
		func() error {
			return c.Scheduler.AddInterval(JobNews, config.TTL(sched.NewsIntervalSeconds), news.Run)
		},
		func() error {
			return c.Scheduler.AddDaily(JobDaily, sched.DailyJobTime, sched.DailyJobTimezone, daily.Run)
		},
		func() error {
			return c.Scheduler.AddDaily(JobFundamentals, sched.FundamentalsJobTime, "UTC", fundamentals.Run)
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Start seeds tracking, then starts the jobs and both servers in the background.
// Server failures are reported on the returned channel.
func (c *Container) Start() <-chan error {
	errs := make(chan error, 2)

	if len(c.Config.Tracking.SeedSymbols) > 0 {
		if err := c.Tracking.SeedFromConfig(c.ctx, c.Config.Tracking.SeedSymbols); err != nil {
			c.Logger.Warning("Seeding tracked stocks failed: %v", err)
		}
	}

	c.Scheduler.Start()

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		if err := c.Server.Start(); err != nil {
			errs <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		defer c.wg.Done()
		if err := c.Control.Start(c.ctx); err != nil {
			errs <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	return errs
}

// Shutdown stops ticks first, then closes clients and servers, and finally
// flushes open minute bars and closes storage
func (c *Container) Shutdown() {
	c.Logger.Info("Shutting down...")
	c.Scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := c.Server.Stop(ctx); err != nil {
		c.Logger.Warning("HTTP shutdown: %v", err)
	}
	c.Control.Stop()

	c.cancel()
	c.Tracking.Wait()
	c.wg.Wait()

	if err := c.Live.FlushOpenBars(ctx); err != nil {
		c.Logger.Warning("Flushing open minute bars: %v", err)
	}
	if err := c.Upstream.Close(); err != nil {
		c.Logger.Warning("Closing request log: %v", err)
	}
	if err := c.Store.Close(); err != nil {
		c.Logger.Warning("Closing storage: %v", err)
	}
	c.Logger.Info("Shutdown complete.")
}
