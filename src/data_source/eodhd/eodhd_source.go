package eodhd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"market-data-server/src/interfaces"
	"market-data-server/src/logger"
	"market-data-server/src/models"
	"market-data-server/src/utils"
)

type EODHDSource struct {
	Config    *models.MConfig
	Network   interfaces.INetworkManager
	Logger    *logger.Logger
	BaseURL   string
	Now       func() time.Time
	calls     atomic.Int64
	startedAt time.Time
	recent    *utils.RingBuffer[string]
	logMu     sync.Mutex
	logFile   io.WriteCloser
}

// -----------------------------------------------------------------------------

// NewEODHDSource builds the client. The request log file is optional; if it
// cannot be opened, request lines are only kept in memory.
func NewEODHDSource(cfg *models.MConfig, netMgr interfaces.INetworkManager, log *logger.Logger) *EODHDSource {
	s := &EODHDSource{
		Config:    cfg,
		Network:   netMgr,
		Logger:    log,
		BaseURL:   strings.TrimRight(cfg.Upstream.BaseURL, "/"),
		Now:       time.Now,
		startedAt: time.Now().UTC(),
		recent:    utils.NewRingBuffer[string](utils.RequestLogCapacity),
	}

	if path := cfg.Upstream.RequestLogPath; path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err == nil {
			f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
			if err != nil {
				log.Warning("Request log %s unavailable: %v", path, err)
			} else {
				s.logFile = f
			}
		}
	}
	return s
}

// -----------------------------------------------------------------------------

func (s *EODHDSource) Close() error {
	s.logMu.Lock()
	defer s.logMu.Unlock()
	if s.logFile != nil {
		err := s.logFile.Close()
		s.logFile = nil
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------

func (s *EODHDSource) Stats() models.MUpstreamStats {
	return models.MUpstreamStats{
		APICalls:        s.calls.Load(),
		ServerStartTime: s.startedAt,
		UptimeSeconds:   time.Since(s.startedAt).Seconds(),
		RecentRequests:  s.recent.GetAll(),
	}
}

// -----------------------------------------------------------------------------

// request issues one GET against endpoint with credentials attached
func (s *EODHDSource) request(ctx context.Context, endpoint string, params map[string]string) (json.RawMessage, error) {
	if params == nil {
		params = map[string]string{}
	}
	params["api_token"] = s.Config.Upstream.APIKey
	params["fmt"] = "json"

	s.calls.Add(1)
	s.Logger.Debug("EODHD request: %s %s", endpoint, maskParams(params))

	body, err := s.Network.Get(ctx, s.BaseURL+"/"+endpoint, params, nil)
	if err != nil {
		s.Logger.Error("EODHD request %s failed: %v", endpoint, err)
		s.logRequest(endpoint, params, 0, err)
		return nil, err
	}

	raw := json.RawMessage(bytes.TrimSpace(body))
	if !json.Valid(raw) {
		err := fmt.Errorf("invalid JSON from %s", endpoint)
		s.logRequest(endpoint, params, 0, err)
		return nil, err
	}
	s.logRequest(endpoint, params, responseSize(raw), nil)
	return raw, nil
}

// -----------------------------------------------------------------------------

// logRequest appends one line per upstream call; the api token never appears
func (s *EODHDSource) logRequest(endpoint string, params map[string]string, size int, err error) {
	ts := s.Now().Format("2006-01-02 15:04:05")
	var line string
	if err != nil {
		line = fmt.Sprintf("[%s] ERROR %s params=%s error=%v", ts, endpoint, maskParams(params), err)
	} else {
		line = fmt.Sprintf("[%s] OK %s params=%s response_size=%d", ts, endpoint, maskParams(params), size)
	}
	s.recent.Append(line)

	s.logMu.Lock()
	defer s.logMu.Unlock()
	if s.logFile != nil {
		if _, werr := io.WriteString(s.logFile, line+"\n"); werr != nil {
			s.Logger.Debug("Request log write failed: %v", werr)
		}
	}
}

// -----------------------------------------------------------------------------

func maskParams(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k != "api_token" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, params[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// responseSize is the element count of a list, else 1
func responseSize(raw json.RawMessage) int {
	if isList(raw) {
		var items []json.RawMessage
		if json.Unmarshal(raw, &items) == nil {
			return len(items)
		}
	}
	return 1
}

func isList(raw json.RawMessage) bool {
	return len(raw) > 0 && raw[0] == '['
}

func isObject(raw json.RawMessage) bool {
	return len(raw) > 0 && raw[0] == '{'
}

// -----------------------------------------------------------------------------
// Prices
// -----------------------------------------------------------------------------

type rawDailyBar struct {
	Date          string     `json:"date"`
	Open          flexNumber `json:"open"`
	High          flexNumber `json:"high"`
	Low           flexNumber `json:"low"`
	Close         flexNumber `json:"close"`
	AdjustedClose flexNumber `json:"adjusted_close"`
	Volume        flexNumber `json:"volume"`
}

// GetEOD returns daily bars for symbol. Ticker is the base ticker.
func (s *EODHDSource) GetEOD(ctx context.Context, symbol, from, to, period string) ([]models.MDailyBar, error) {
	if period == "" {
		period = models.PeriodDaily
	}
	params := map[string]string{"period": period}
	if from != "" {
		params["from"] = from
	}
	if to != "" {
		params["to"] = to
	}

	raw, err := s.request(ctx, "eod/"+url.PathEscape(symbol), params)
	if err != nil {
		return nil, err
	}
	if !isList(raw) {
		return nil, nil
	}

	var rows []rawDailyBar
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode eod %s: %w", symbol, err)
	}

	ticker := models.BaseTicker(symbol)
	now := s.Now().UTC()
	bars := make([]models.MDailyBar, 0, len(rows))
	for _, r := range rows {
		date, err := utils.ParseDate(r.Date)
		if err != nil {
			s.Logger.Debug("Skipping %s bar with date %q", symbol, r.Date)
			continue
		}
		bars = append(bars, models.MDailyBar{
			Ticker:        ticker,
			Date:          date,
			Open:          r.Open.Float(),
			High:          r.High.Float(),
			Low:           r.Low.Float(),
			Close:         r.Close.Float(),
			AdjustedClose: r.AdjustedClose.Float(),
			Volume:        r.Volume.Int(),
			FetchedAt:     now,
		})
	}
	return bars, nil
}

// -----------------------------------------------------------------------------

type rawIntradayBar struct {
	Timestamp flexNumber `json:"timestamp"`
	Open      flexNumber `json:"open"`
	High      flexNumber `json:"high"`
	Low       flexNumber `json:"low"`
	Close     flexNumber `json:"close"`
	Volume    flexNumber `json:"volume"`
}

// GetIntraday returns authoritative bars tagged with source eodhd
func (s *EODHDSource) GetIntraday(ctx context.Context, symbol, interval string, from, to int64) ([]models.MIntradayBar, error) {
	if interval == "" {
		interval = models.IntervalMin1
	}
	params := map[string]string{"interval": interval}
	if from > 0 {
		params["from"] = strconv.FormatInt(from, 10)
	}
	if to > 0 {
		params["to"] = strconv.FormatInt(to, 10)
	}

	raw, err := s.request(ctx, "intraday/"+url.PathEscape(symbol), params)
	if err != nil {
		return nil, err
	}
	if !isList(raw) {
		return nil, nil
	}

	var rows []rawIntradayBar
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode intraday %s: %w", symbol, err)
	}

	ticker := models.BaseTicker(symbol)
	now := s.Now().UTC()
	bars := make([]models.MIntradayBar, 0, len(rows))
	for _, r := range rows {
		if !r.Timestamp.Valid || !r.Close.Valid {
			continue
		}
		bars = append(bars, models.MIntradayBar{
			Ticker:    ticker,
			Timestamp: time.Unix(r.Timestamp.Int(), 0).UTC(),
			Open:      r.Open.Float(),
			High:      r.High.Float(),
			Low:       r.Low.Float(),
			Close:     r.Close.Float(),
			Volume:    r.Volume.Int(),
			Source:    models.SourceEODHD,
			FetchedAt: now,
		})
	}
	return bars, nil
}

// -----------------------------------------------------------------------------

type rawQuote struct {
	Code          string     `json:"code"`
	Timestamp     flexNumber `json:"timestamp"`
	Open          flexNumber `json:"open"`
	High          flexNumber `json:"high"`
	Low           flexNumber `json:"low"`
	Close         flexNumber `json:"close"`
	Volume        flexNumber `json:"volume"`
	PreviousClose flexNumber `json:"previousClose"`
	Change        flexNumber `json:"change"`
	ChangeP       flexNumber `json:"change_p"`
}

func (r rawQuote) toModel() models.MQuote {
	return models.MQuote{
		Code:          r.Code,
		Timestamp:     r.Timestamp.Int(),
		Open:          r.Open.Float(),
		High:          r.High.Float(),
		Low:           r.Low.Float(),
		Close:         r.Close.Float(),
		Volume:        r.Volume.Int(),
		PreviousClose: r.PreviousClose.Float(),
		Change:        r.Change.Float(),
		ChangePercent: r.ChangeP.Float(),
		HasPrice:      r.Close.Valid,
	}
}

// decodeQuotes normalizes a list or a single object into a list
func decodeQuotes(raw json.RawMessage) ([]models.MQuote, error) {
	var rows []rawQuote
	switch {
	case isList(raw):
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, err
		}
	case isObject(raw):
		var one rawQuote
		if err := json.Unmarshal(raw, &one); err != nil {
			return nil, err
		}
		rows = append(rows, one)
	default:
		return nil, nil
	}

	out := make([]models.MQuote, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// -----------------------------------------------------------------------------

func (s *EODHDSource) GetRealTime(ctx context.Context, symbol string) (*models.MQuote, error) {
	raw, err := s.request(ctx, "real-time/"+url.PathEscape(symbol), nil)
	if err != nil {
		return nil, err
	}
	quotes, err := decodeQuotes(raw)
	if err != nil {
		return nil, fmt.Errorf("decode quote %s: %w", symbol, err)
	}
	if len(quotes) == 0 {
		return nil, nil
	}
	return &quotes[0], nil
}

// -----------------------------------------------------------------------------

// GetRealTimeBatch uses one request for all symbols: the first symbol goes in
// the path and the full list in the s parameter.
func (s *EODHDSource) GetRealTimeBatch(ctx context.Context, symbols []string) ([]models.MQuote, error) {
	switch len(symbols) {
	case 0:
		return nil, nil
	case 1:
		q, err := s.GetRealTime(ctx, symbols[0])
		if err != nil || q == nil {
			return nil, err
		}
		return []models.MQuote{*q}, nil
	}

	raw, err := s.request(ctx, "real-time/"+url.PathEscape(symbols[0]), map[string]string{"s": strings.Join(symbols, ",")})
	if err != nil {
		return nil, err
	}
	quotes, err := decodeQuotes(raw)
	if err != nil {
		return nil, fmt.Errorf("decode batch quote: %w", err)
	}
	return quotes, nil
}

// -----------------------------------------------------------------------------
// News
// -----------------------------------------------------------------------------

func (s *EODHDSource) GetNews(ctx context.Context, symbol, from, to string, limit, offset int) ([]models.MUpstreamArticle, error) {
	if limit <= 0 {
		limit = s.Config.Upstream.NewsLimit
	}
	params := map[string]string{
		"limit":  strconv.Itoa(limit),
		"offset": strconv.Itoa(offset),
	}
	if symbol != "" {
		params["s"] = symbol
	}
	if from != "" {
		params["from"] = from
	}
	if to != "" {
		params["to"] = to
	}

	raw, err := s.request(ctx, "news", params)
	if err != nil {
		return nil, err
	}
	if !isList(raw) {
		return nil, nil
	}

	var articles []models.MUpstreamArticle
	if err := json.Unmarshal(raw, &articles); err != nil {
		return nil, fmt.Errorf("decode news: %w", err)
	}
	return articles, nil
}

// -----------------------------------------------------------------------------
// Reference data
// -----------------------------------------------------------------------------

func (s *EODHDSource) GetFundamentals(ctx context.Context, symbol string) (map[string]interface{}, error) {
	raw, err := s.request(ctx, "fundamentals/"+url.PathEscape(symbol), nil)
	if err != nil {
		return nil, err
	}
	out := map[string]interface{}{}
	if isObject(raw) {
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("decode fundamentals %s: %w", symbol, err)
		}
	}
	return out, nil
}

// -----------------------------------------------------------------------------

func (s *EODHDSource) Search(ctx context.Context, query string, limit int, exchange string) (json.RawMessage, error) {
	params := map[string]string{}
	if limit > 0 {
		params["limit"] = strconv.Itoa(limit)
	}
	if exchange != "" {
		params["exchange"] = exchange
	}
	raw, err := s.request(ctx, "search/"+url.PathEscape(query), params)
	if err != nil {
		return nil, err
	}
	return listOrEmpty(raw), nil
}

// -----------------------------------------------------------------------------

func (s *EODHDSource) GetExchangesList(ctx context.Context) (json.RawMessage, error) {
	raw, err := s.request(ctx, "exchanges-list", nil)
	if err != nil {
		return nil, err
	}
	return listOrEmpty(raw), nil
}

// -----------------------------------------------------------------------------

func (s *EODHDSource) GetExchangeSymbolList(ctx context.Context, exchange string) (json.RawMessage, error) {
	raw, err := s.request(ctx, "exchange-symbol-list/"+url.PathEscape(exchange), nil)
	if err != nil {
		return nil, err
	}
	return listOrEmpty(raw), nil
}

func listOrEmpty(raw json.RawMessage) json.RawMessage {
	if isList(raw) {
		return raw
	}
	return json.RawMessage("[]")
}
