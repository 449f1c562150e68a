package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"market-data-server/src/cache"
	"market-data-server/src/config"
	"market-data-server/src/helpers"
	"market-data-server/src/models"
	"market-data-server/src/utils"
	"market-data-server/src/workers"

	"github.com/gin-gonic/gin"
)

// Upstream calls the batch endpoint may have in flight at once
const batchConcurrency = 10

// -----------------------------------------------------------------------------
// Daily bars
// -----------------------------------------------------------------------------

func (s *FastAPIServer) getEOD(c *gin.Context) {
	ctx := c.Request.Context()
	symbol := upstreamSymbol(c.Param("symbol"))
	ticker := models.BaseTicker(symbol)
	from, to := c.Query("from"), c.Query("to")
	period := c.DefaultQuery("period", models.PeriodDaily)

	if period != "d" && period != "w" && period != "m" {
		s.fail(c, "eod", helpers.NewValidationError("period must be d, w or m"))
		return
	}
	fromT, err := queryDate(c, "from")
	if err != nil {
		s.fail(c, "eod", err)
		return
	}
	toT, err := queryDate(c, "to")
	if err != nil {
		s.fail(c, "eod", err)
		return
	}

	// weekly and monthly bars are not stored
	if period != models.PeriodDaily {
		bars, err := s.Upstream.GetEOD(ctx, symbol, from, to, period)
		if err != nil {
			s.fail(c, "eod/"+symbol, err)
			return
		}
		c.JSON(http.StatusOK, nonNil(bars))
		return
	}

	// a closed range is gap-filled against what is stored
	if !fromT.IsZero() && !toT.IsZero() {
		bars, fetched, err := s.Ranges.GetOrFill(ctx, symbol, fromT, toT)
		if err != nil {
			s.fail(c, "eod/"+symbol, err)
			return
		}
		s.Logger.Debug("eod %s %s..%s: %d bars, %d fetched", symbol, from, to, len(bars), fetched)
		c.JSON(http.StatusOK, nonNil(bars))
		return
	}

	v, _, err := s.Cache.Get(ctx, cache.Request{
		Key:      fmt.Sprintf("eod:%s:%s:%s:%s", symbol, from, to, period),
		DataType: cache.TypeDailyPrices,
		Ticker:   ticker,
		TTL:      config.TTL(s.Config.Cache.DailyPrices),
		Load: func(ctx context.Context) (interface{}, error) {
			bars, err := s.Store.GetDailyBars(ctx, ticker, fromT, toT)
			return nonNil(bars), err
		},
		Fetch: func(ctx context.Context) (interface{}, int, error) {
			bars, err := s.Upstream.GetEOD(ctx, symbol, from, to, period)
			if err != nil {
				return nil, 0, err
			}
			if err := s.Store.UpsertDailyBars(ctx, bars); err != nil {
				return nil, 0, err
			}
			return nonNil(bars), len(bars), nil
		},
	})
	if err != nil {
		s.fail(c, "eod/"+symbol, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// -----------------------------------------------------------------------------
// Intraday bars
// -----------------------------------------------------------------------------

// getIntraday serves today from the bars the workers store, and history
// from upstream minute bars cached for the daily TTL. Bars are resampled
// to the requested interval.
func (s *FastAPIServer) getIntraday(c *gin.Context) {
	ctx := c.Request.Context()
	symbol := upstreamSymbol(c.Param("symbol"))
	ticker := models.BaseTicker(symbol)
	interval := c.DefaultQuery("interval", models.IntervalMin1)
	force := queryBool(c, "force_eodhd")

	from, err := queryUnix(c, "from")
	if err != nil {
		s.fail(c, "intraday", err)
		return
	}
	to, err := queryUnix(c, "to")
	if err != nil {
		s.fail(c, "intraday", err)
		return
	}
	if _, err := s.Analysis.IntradayBars(nil, interval); err != nil {
		s.fail(c, "intraday", helpers.NewValidationError("%v", err))
		return
	}

	var fromT, toT time.Time
	if from > 0 {
		fromT = time.Unix(from, 0).UTC()
	}
	if to > 0 {
		toT = time.Unix(to, 0).UTC()
	}

	today := utils.DateOnly(s.Now())
	isToday := true
	switch {
	case to > 0:
		isToday = !toT.Before(today)
	case from > 0:
		isToday = !fromT.Before(today)
	}

	respond := func(bars []models.MIntradayBar) {
		out, _ := s.Analysis.IntradayBars(bars, interval)
		c.JSON(http.StatusOK, nonNil(out))
	}

	if !force {
		bars, err := s.Store.GetIntradayBars(ctx, ticker, fromT, toT)
		if err != nil {
			s.fail(c, "intraday/"+symbol, err)
			return
		}
		// today's bars accumulate from the live worker, never fetched here
		if len(bars) > 0 || isToday {
			respond(bars)
			return
		}
	}

	ttl := config.TTL(s.Config.Cache.DailyPrices)
	if isToday {
		ttl = config.TTL(s.Config.Cache.IntradayPrices)
	}

	v, _, err := s.Cache.Get(ctx, cache.Request{
		Key:      fmt.Sprintf("intraday:%s:%d:%d", symbol, from, to),
		DataType: cache.TypeIntradayPrices,
		Ticker:   ticker,
		TTL:      ttl,
		Load: func(ctx context.Context) (interface{}, error) {
			bars, err := s.Store.GetIntradayBars(ctx, ticker, fromT, toT)
			if err != nil || len(bars) == 0 {
				return nil, err
			}
			return bars, nil
		},
		Fetch: func(ctx context.Context) (interface{}, int, error) {
			bars, err := workers.FetchIntraday(ctx, s.Upstream, s.Fallback, s.Logger, symbol, models.IntervalMin1, from, to)
			if err != nil {
				return nil, 0, err
			}
			if err := s.Store.UpsertIntradayBars(ctx, bars); err != nil {
				return nil, 0, err
			}
			return bars, len(bars), nil
		},
	})
	if err != nil {
		s.fail(c, "intraday/"+symbol, err)
		return
	}
	bars, _ := v.([]models.MIntradayBar)
	respond(bars)
}

// -----------------------------------------------------------------------------
// Quotes
// -----------------------------------------------------------------------------

func quoteFromLive(symbol string, p *models.MLivePrice) models.MQuote {
	return models.MQuote{
		Code:          symbol,
		Timestamp:     p.MarketTimestamp.Unix(),
		Open:          p.Open,
		High:          p.High,
		Low:           p.Low,
		Close:         p.Price,
		Volume:        p.Volume,
		PreviousClose: p.PreviousClose,
		Change:        p.Change,
		ChangePercent: p.ChangePercent,
		HasPrice:      true,
	}
}

func (s *FastAPIServer) getRealTime(c *gin.Context) {
	ctx := c.Request.Context()
	symbol := upstreamSymbol(c.Param("symbol"))
	ticker := models.BaseTicker(symbol)
	now := s.Now()

	live, err := s.Store.GetLivePrice(ctx, ticker)
	if err != nil {
		s.Logger.Warning("Live price lookup for %s: %v", ticker, err)
	}
	if live != nil && now.Sub(live.UpdatedAt) < config.TTL(s.Config.Cache.LivePrices) {
		c.JSON(http.StatusOK, quoteFromLive(symbol, live))
		return
	}

	q, err := s.Upstream.GetRealTime(ctx, symbol)
	if err != nil {
		s.fail(c, "real-time/"+symbol, err)
		return
	}
	if q == nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "No quote for " + symbol})
		return
	}
	if q.HasPrice {
		snapshot := models.MLivePrice{
			Ticker:          ticker,
			Price:           q.Close,
			Open:            q.Open,
			High:            q.High,
			Low:             q.Low,
			PreviousClose:   q.PreviousClose,
			Change:          q.Change,
			ChangePercent:   q.ChangePercent,
			Volume:          q.Volume,
			MarketTimestamp: time.Unix(q.Timestamp, 0).UTC(),
			UpdatedAt:       now,
		}
		if _, exchange := models.SplitSymbol(symbol); exchange != "" {
			snapshot.Exchange = exchange
		}
		if err := s.Store.UpsertLivePrice(ctx, snapshot); err != nil {
			s.Logger.Warning("Storing live price for %s: %v", ticker, err)
		}
	}
	c.JSON(http.StatusOK, q)
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) getLivePrices(c *gin.Context) {
	prices, err := s.Store.ListLivePrices(c.Request.Context())
	if err != nil {
		s.fail(c, "live-prices", err)
		return
	}
	c.JSON(http.StatusOK, nonNil(prices))
}

// -----------------------------------------------------------------------------
// Reference data
// -----------------------------------------------------------------------------

// getFundamentals returns the stored company summary, refreshing it from the
// upstream fundamentals payload once the TTL lapses
func (s *FastAPIServer) getFundamentals(c *gin.Context) {
	symbol := upstreamSymbol(c.Param("symbol"))
	ticker := models.BaseTicker(symbol)

	v, _, err := s.Cache.Get(c.Request.Context(), cache.Request{
		Key:      "fundamentals:" + symbol,
		DataType: cache.TypeFundamentals,
		Ticker:   ticker,
		TTL:      config.TTL(s.Config.Cache.Fundamentals),
		Load: func(ctx context.Context) (interface{}, error) {
			company, err := s.Store.GetCompany(ctx, ticker)
			if err != nil || company == nil {
				return nil, err
			}
			return company, nil
		},
		Fetch: func(ctx context.Context) (interface{}, int, error) {
			data, err := s.Upstream.GetFundamentals(ctx, symbol)
			if err != nil {
				return nil, 0, err
			}
			now := s.Now()
			company := workers.CompanyFromFundamentals(ticker, data, now)
			if err := s.Store.UpsertCompany(ctx, company); err != nil {
				return nil, 0, err
			}
			if company.SharesOutstanding > 0 {
				if err := s.Store.UpdateSharesOutstanding(ctx, ticker, company.SharesOutstanding, now); err != nil {
					return nil, 0, err
				}
			}
			stored, err := s.Store.GetCompany(ctx, ticker)
			if err != nil || stored == nil {
				return &company, 1, err
			}
			return stored, 1, nil
		},
	})
	if err != nil {
		s.fail(c, "fundamentals/"+symbol, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// -----------------------------------------------------------------------------

// proxyJSON serves a raw upstream list, deduplicating concurrent identical calls
func (s *FastAPIServer) proxyJSON(c *gin.Context, key, dataType string, ttl time.Duration, fetch func(ctx context.Context) (json.RawMessage, error)) {
	v, _, err := s.Cache.Get(c.Request.Context(), cache.Request{
		Key:      key,
		DataType: dataType,
		TTL:      ttl,
		Fetch: func(ctx context.Context) (interface{}, int, error) {
			raw, err := fetch(ctx)
			if err != nil {
				return nil, 0, err
			}
			var items []json.RawMessage
			_ = json.Unmarshal(raw, &items)
			return raw, len(items), nil
		},
	})
	if err != nil {
		s.fail(c, key, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", v.(json.RawMessage))
}

func (s *FastAPIServer) getSearch(c *gin.Context) {
	query := strings.TrimSpace(c.Param("query"))
	limit, err := queryInt(c, "limit", 15, 1, 50)
	if err != nil {
		s.fail(c, "search", err)
		return
	}
	exchange := c.Query("exchange")
	s.proxyJSON(c, fmt.Sprintf("search:%s:%s:%d", query, exchange, limit), cache.TypeSearch,
		config.TTL(s.Config.Cache.Search),
		func(ctx context.Context) (json.RawMessage, error) {
			return s.Upstream.Search(ctx, query, limit, exchange)
		})
}

func (s *FastAPIServer) getExchangesList(c *gin.Context) {
	s.proxyJSON(c, "exchanges-list", cache.TypeExchanges, config.TTL(s.Config.Cache.CompanyInfo),
		s.Upstream.GetExchangesList)
}

func (s *FastAPIServer) getExchangeSymbolList(c *gin.Context) {
	exchange := strings.ToUpper(c.Param("exchange"))
	s.proxyJSON(c, "exchange-symbols:"+exchange, cache.TypeExchanges, config.TTL(s.Config.Cache.CompanyInfo),
		func(ctx context.Context) (json.RawMessage, error) {
			return s.Upstream.GetExchangeSymbolList(ctx, exchange)
		})
}

// -----------------------------------------------------------------------------
// News and content, served from storage only
// -----------------------------------------------------------------------------

func (s *FastAPIServer) getNews(c *gin.Context) {
	symbol := c.Query("s")
	limit, err := queryInt(c, "limit", 50, 1, 1000)
	if err != nil {
		s.fail(c, "news", err)
		return
	}
	offset, err := queryInt(c, "offset", 0, 0, 1<<30)
	if err != nil {
		s.fail(c, "news", err)
		return
	}
	if symbol == "" {
		c.JSON(http.StatusOK, []models.MNewsArticle{})
		return
	}

	ticker := models.BaseTicker(upstreamSymbol(symbol))
	articles, err := s.Store.GetNewsForTicker(c.Request.Context(), ticker, limit, offset)
	if err != nil {
		s.fail(c, "news", err)
		return
	}
	s.Logger.Debug("[CACHE] news %s: %d articles", ticker, len(articles))
	c.JSON(http.StatusOK, nonNil(articles))
}

func (s *FastAPIServer) getContent(c *gin.Context) {
	content, err := s.Store.GetContent(c.Request.Context(), c.Param("content_id"))
	if err != nil {
		s.fail(c, "content", err)
		return
	}
	if content == nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Content not found"})
		return
	}
	c.JSON(http.StatusOK, content)
}

func (s *FastAPIServer) postContentBatch(c *gin.Context) {
	var ids []string
	if err := c.ShouldBindJSON(&ids); err != nil {
		s.fail(c, "content batch", helpers.NewValidationError("body must be a list of content ids"))
		return
	}
	out := []models.MContent{}
	for _, id := range ids {
		content, err := s.Store.GetContent(c.Request.Context(), id)
		if err != nil {
			s.fail(c, "content batch", err)
			return
		}
		if content != nil {
			out = append(out, *content)
		}
	}
	c.JSON(http.StatusOK, out)
}

// -----------------------------------------------------------------------------
// Batch daily changes
// -----------------------------------------------------------------------------

// postDailyChanges reports first-to-last close moves for many symbols.
// Symbols that fail are left out of the response.
func (s *FastAPIServer) postDailyChanges(c *gin.Context) {
	var req models.MBatchChangesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, "daily changes", helpers.NewValidationError("%v", err))
		return
	}
	start, err := utils.ParseDate(req.StartDate)
	if err != nil {
		s.fail(c, "daily changes", helpers.NewValidationError("start_date must be YYYY-MM-DD"))
		return
	}
	end, err := utils.ParseDate(req.EndDate)
	if err != nil {
		s.fail(c, "daily changes", helpers.NewValidationError("end_date must be YYYY-MM-DD"))
		return
	}

	var mu sync.Mutex
	results := make(map[string]models.MDailyChange, len(req.Symbols))

	g, ctx := errgroup.WithContext(c.Request.Context())
	g.SetLimit(batchConcurrency)
	for _, symbol := range req.Symbols {
		symbol := upstreamSymbol(symbol)
		g.Go(func() error {
			bars, _, err := s.Ranges.GetOrFill(ctx, symbol, start, end)
			if err != nil {
				s.Logger.Debug("Daily change for %s failed: %v", symbol, err)
				return nil
			}
			if change, ok := s.Analysis.DailyChange(bars); ok {
				mu.Lock()
				results[symbol] = change
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	s.Logger.Info("Batch daily changes: %d/%d symbols", len(results), len(req.Symbols))
	c.JSON(http.StatusOK, results)
}

// -----------------------------------------------------------------------------

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
