package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"market-data-server/src/helpers"
	"market-data-server/src/interfaces"
	"market-data-server/src/logger"
	"market-data-server/src/models"

	"golang.org/x/time/rate"
)

const sharesType = "quarterlyOrdinarySharesNumber"

// Exchange codes whose Yahoo suffix differs from the code itself
var exchangeSuffixes = map[string]string{
	"US":    "",
	"LSE":   "L",
	"XETRA": "DE",
	"KO":    "KS",
	"SHG":   "SS",
	"SHE":   "SZ",
	"AU":    "AX",
}

// -----------------------------------------------------------------------------
// YahooFinanceSource is the fallback for minute bars and shares outstanding
// when the primary upstream or SEC filings have nothing
// -----------------------------------------------------------------------------

type YahooFinanceSource struct {
	Config  *models.MConfig
	Network interfaces.INetworkManager
	Logger  *logger.Logger
	Limiter *rate.Limiter
	Now     func() time.Time
}

// -----------------------------------------------------------------------------

func NewYahooFinanceSource(cfg *models.MConfig, netMgr interfaces.INetworkManager, log *logger.Logger) *YahooFinanceSource {
	limit := rate.Inf
	if interval := time.Duration(cfg.Yahoo.MinIntervalMs) * time.Millisecond; interval > 0 {
		limit = rate.Every(interval)
	}
	return &YahooFinanceSource{
		Config:  cfg,
		Network: netMgr,
		Logger:  log,
		Limiter: rate.NewLimiter(limit, 1),
		Now:     time.Now,
	}
}

// -----------------------------------------------------------------------------

// YahooSymbol maps TICKER.EXCHANGE to the form Yahoo expects
func YahooSymbol(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	i := strings.LastIndex(symbol, ".")
	if i < 0 {
		return symbol
	}
	ticker, exchange := symbol[:i], symbol[i+1:]
	suffix, ok := exchangeSuffixes[exchange]
	if !ok {
		suffix = exchange
	}
	if suffix == "" {
		return ticker
	}
	return ticker + "." + suffix
}

// -----------------------------------------------------------------------------

// get returns nil, nil for a 404 so unknown symbols read as empty
func (s *YahooFinanceSource) get(ctx context.Context, path string, params map[string]string) ([]byte, error) {
	if err := s.Limiter.Wait(ctx); err != nil {
		return nil, err
	}
	url := strings.TrimRight(s.Config.Yahoo.BaseURL, "/") + path
	body, err := s.Network.Get(ctx, url, params, map[string]string{"User-Agent": s.Config.Yahoo.UserAgent})
	if err != nil {
		var unavailable *helpers.UpstreamUnavailableError
		if errors.As(err, &unavailable) && unavailable.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return body, nil
}

// -----------------------------------------------------------------------------
// Chart
// -----------------------------------------------------------------------------

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol       string `json:"symbol"`
				ExchangeName string `json:"exchangeName"`
				Timezone     string `json:"timezone"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// GetIntraday returns bars in [from, to] unix seconds from the v8 chart
// endpoint. Zero bounds fall back to the last five days.
func (s *YahooFinanceSource) GetIntraday(ctx context.Context, symbol, interval string, from, to int64) ([]models.MIntradayBar, error) {
	if interval == "" {
		interval = models.IntervalMin1
	}
	params := map[string]string{
		"interval":       interval,
		"includePrePost": "false",
	}
	if from > 0 && to > 0 {
		params["period1"] = strconv.FormatInt(from, 10)
		// period2 is exclusive
		params["period2"] = strconv.FormatInt(to+1, 10)
	} else {
		params["range"] = "5d"
	}

	ysym := YahooSymbol(symbol)
	body, err := s.get(ctx, "/v8/finance/chart/"+ysym, params)
	if err != nil {
		return nil, err
	}
	if body == nil {
		s.Logger.Debug("Yahoo has no chart for %s", ysym)
		return []models.MIntradayBar{}, nil
	}

	bars, err := s.parseChartResponse(models.BaseTicker(strings.ToUpper(symbol)), body)
	if err != nil {
		return nil, err
	}

	out := bars[:0]
	for _, b := range bars {
		ts := b.Timestamp.Unix()
		if (from > 0 && ts < from) || (to > 0 && ts > to) {
			continue
		}
		out = append(out, b)
	}
	if len(out) > 0 {
		s.Logger.Info("Yahoo returned %d intraday bars for %s (%s)", len(out), ysym, interval)
	}
	return out, nil
}

// -----------------------------------------------------------------------------

// parseChartResponse drops points with missing fields or a non-positive close
func (s *YahooFinanceSource) parseChartResponse(ticker string, data []byte) ([]models.MIntradayBar, error) {
	var resp chartResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode yahoo chart for %s: %w", ticker, err)
	}
	if e := resp.Chart.Error; e != nil {
		if e.Code == "Not Found" {
			return []models.MIntradayBar{}, nil
		}
		return nil, fmt.Errorf("yahoo chart error for %s: %s - %s", ticker, e.Code, e.Description)
	}
	if len(resp.Chart.Result) == 0 {
		return []models.MIntradayBar{}, nil
	}

	result := resp.Chart.Result[0]
	if len(result.Timestamp) == 0 || len(result.Indicators.Quote) == 0 {
		return []models.MIntradayBar{}, nil
	}
	q := result.Indicators.Quote[0]
	n := len(result.Timestamp)
	if len(q.Open) != n || len(q.High) != n || len(q.Low) != n || len(q.Close) != n || len(q.Volume) != n {
		return nil, fmt.Errorf("yahoo chart for %s: mismatched array lengths", ticker)
	}

	now := s.Now().UTC()
	bars := make([]models.MIntradayBar, 0, n)
	skipped := 0
	for i, ts := range result.Timestamp {
		if q.Open[i] == nil || q.High[i] == nil || q.Low[i] == nil || q.Close[i] == nil || q.Volume[i] == nil {
			skipped++
			continue
		}
		if *q.Close[i] <= 0 || *q.Volume[i] < 0 {
			skipped++
			continue
		}
		bars = append(bars, models.MIntradayBar{
			Ticker:    ticker,
			Timestamp: time.Unix(ts, 0).UTC(),
			Open:      *q.Open[i],
			High:      *q.High[i],
			Low:       *q.Low[i],
			Close:     *q.Close[i],
			Volume:    int64(*q.Volume[i]),
			Source:    models.SourceYahoo,
			FetchedAt: now,
		})
	}
	if skipped > 0 {
		s.Logger.Debug("Skipped %d incomplete chart points for %s", skipped, ticker)
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	return bars, nil
}

// -----------------------------------------------------------------------------
// Shares outstanding
// -----------------------------------------------------------------------------

type timeseriesResponse struct {
	Timeseries struct {
		Result []map[string]json.RawMessage `json:"result"`
	} `json:"timeseries"`
}

type sharesPoint struct {
	AsOfDate      string `json:"asOfDate"`
	ReportedValue struct {
		Raw float64 `json:"raw"`
	} `json:"reportedValue"`
}

// GetSharesOutstanding returns the most recent quarterly share count over
// the last five years, or 0 when Yahoo reports none
func (s *YahooFinanceSource) GetSharesOutstanding(ctx context.Context, symbol string) (int64, error) {
	now := s.Now().UTC()
	ysym := YahooSymbol(symbol)
	body, err := s.get(ctx, "/ws/fundamentals-timeseries/v1/finance/timeseries/"+ysym, map[string]string{
		"symbol":  ysym,
		"type":    sharesType,
		"period1": strconv.FormatInt(now.AddDate(-5, 0, 0).Unix(), 10),
		"period2": strconv.FormatInt(now.Unix(), 10),
	})
	if err != nil || body == nil {
		return 0, err
	}

	var resp timeseriesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("decode yahoo timeseries for %s: %w", ysym, err)
	}

	var latest sharesPoint
	for _, r := range resp.Timeseries.Result {
		raw, ok := r[sharesType]
		if !ok {
			continue
		}
		var points []*sharesPoint
		if err := json.Unmarshal(raw, &points); err != nil {
			return 0, fmt.Errorf("decode yahoo shares for %s: %w", ysym, err)
		}
		for _, p := range points {
			if p == nil || p.ReportedValue.Raw <= 0 {
				continue
			}
			// asOfDate is YYYY-MM-DD so string order is date order
			if p.AsOfDate >= latest.AsOfDate {
				latest = *p
			}
		}
	}

	if latest.ReportedValue.Raw <= 0 {
		s.Logger.Debug("Yahoo has no shares outstanding for %s", ysym)
		return 0, nil
	}
	s.Logger.Debug("Yahoo shares for %s: %.0f as of %s", ysym, latest.ReportedValue.Raw, latest.AsOfDate)
	return int64(latest.ReportedValue.Raw), nil
}
