package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"market-data-server/src/analysis"
	"market-data-server/src/cache"
	"market-data-server/src/helpers"
	"market-data-server/src/interfaces"
	"market-data-server/src/logger"
	"market-data-server/src/models"
	"market-data-server/src/workers"

	"github.com/gin-gonic/gin"
)

// SchedulerStatus reports background job state
type SchedulerStatus interface {
	Status() models.MSchedulerStatus
}

// Deps are the collaborators the HTTP layer serves from
type Deps struct {
	Store         interfaces.IStore
	Upstream      interfaces.IUpstream
	Fallback      interfaces.IFallbackSource
	Cache         *cache.ReadThroughCache
	Ranges        *cache.RangeCache
	Analysis      *analysis.AnalysisFacade
	Tracking      *workers.TrackingService
	Scheduler     SchedulerStatus
	Subscriptions *SubscriptionManager
}

// -----------------------------------------------------------------------------
// FastAPIServer
// -----------------------------------------------------------------------------

type FastAPIServer struct {
	Deps
	Config *models.MConfig
	Logger *logger.Logger
	Now    func() time.Time

	engine *gin.Engine
	http   *http.Server
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewFastAPIServer(cfg *models.MConfig, deps Deps, logger *logger.Logger) *FastAPIServer {
	// Set Gin mode
	if cfg.LogLevel != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}

	if deps.Subscriptions == nil {
		deps.Subscriptions = NewSubscriptionManager(logger.Named("SubscriptionManager"))
	}
	if deps.Analysis == nil {
		deps.Analysis = analysis.NewAnalysisFacade(logger)
	}

	s := &FastAPIServer{
		Deps:   deps,
		Config: cfg,
		Logger: logger,
		Now:    func() time.Time { return time.Now().UTC() },
		engine: gin.New(),
	}
	s.http = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: s.engine,
	}
	s.engine.Use(gin.Recovery())

	// Add CORS Middleware
	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	s.engine.Use(s.requestLogger())

	// setup web routes
	s.setupRoutes()
	return s
}

// requestLogger logs each request at debug level, and failures at warning
func (s *FastAPIServer) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		if status >= 500 {
			s.Logger.Warning("%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, status, time.Since(start).Round(time.Millisecond))
			return
		}
		s.Logger.Debug("%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, status, time.Since(start).Round(time.Millisecond))
	}
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *FastAPIServer) setupRoutes() {
	s.engine.GET("/", s.getRoot)
	s.engine.GET("/health", s.getHealth)

	api := s.engine.Group("/api")
	api.GET("/health", s.getHealth)
	api.GET("/stats", s.getStats)
	api.GET("/scheduler", s.getScheduler)

	// market data, cache-aside over the upstream
	api.GET("/eod/:symbol", s.getEOD)
	api.GET("/intraday/:symbol", s.getIntraday)
	api.GET("/real-time/:symbol", s.getRealTime)
	api.GET("/live-prices", s.getLivePrices)
	api.GET("/fundamentals/:symbol", s.getFundamentals)
	api.GET("/news", s.getNews)
	api.GET("/search/:query", s.getSearch)
	api.GET("/exchanges-list", s.getExchangesList)
	api.GET("/exchange-symbol-list/:exchange", s.getExchangeSymbolList)
	api.GET("/content/:content_id", s.getContent)
	api.POST("/content/batch", s.postContentBatch)
	api.POST("/batch/daily-changes", s.postDailyChanges)

	tracking := api.Group("/tracking")
	tracking.GET("/stocks", s.listTracked)
	tracking.POST("/stocks", s.addTracked)
	tracking.POST("/stocks/sync", s.syncTracked)
	tracking.DELETE("/stocks/:ticker", s.removeTracked)
	tracking.GET("/status", s.trackingStatus)

	// WebSocket endpoint
	s.engine.GET("/ws", s.handleWebSocket)
}

// Handler exposes the router, mainly for tests
func (s *FastAPIServer) Handler() http.Handler {
	return s.engine
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

// Start blocks serving HTTP until Stop is called
func (s *FastAPIServer) Start() error {
	s.Logger.Info("Starting server on %s", s.http.Addr)

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) Stop(ctx context.Context) error {
	s.Subscriptions.CloseAll()
	return s.http.Shutdown(ctx)
}

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

func (s *FastAPIServer) getRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        s.Config.Name,
		"description": "Market data caching proxy with real-time updates",
	})
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) getHealth(c *gin.Context) {
	status, database := "ok", "ok"
	if err := s.Store.Ping(c.Request.Context()); err != nil {
		status, database = "degraded", err.Error()
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      status,
		"database":    database,
		"connections": s.Subscriptions.Count(),
		"timestamp":   s.Now().Unix(),
	})
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) getStats(c *gin.Context) {
	stats := s.Upstream.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":            "connected",
		"eodhd_api_calls":   stats.APICalls,
		"server_start_time": stats.ServerStartTime,
		"uptime_seconds":    stats.UptimeSeconds,
		"recent_requests":   stats.RecentRequests,
		"connections":       s.Subscriptions.Count(),
		"process":           helpers.ReadProcessStats(),
	})
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) getScheduler(c *gin.Context) {
	if s.Scheduler == nil {
		c.JSON(http.StatusOK, models.MSchedulerStatus{Jobs: []models.MJobStatus{}})
		return
	}
	c.JSON(http.StatusOK, s.Scheduler.Status())
}

// -----------------------------------------------------------------------------

func upstreamSymbol(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}
