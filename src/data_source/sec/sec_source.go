package sec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"market-data-server/src/helpers"
	"market-data-server/src/interfaces"
	"market-data-server/src/logger"
	"market-data-server/src/models"

	"golang.org/x/time/rate"
)

// Shares outstanding concepts, in order of preference
var sharesConcepts = []struct{ taxonomy, concept string }{
	{"dei", "EntityCommonStockSharesOutstanding"},
	{"us-gaap", "CommonStockSharesOutstanding"},
	{"us-gaap", "WeightedAverageNumberOfSharesOutstandingBasic"},
}

// -----------------------------------------------------------------------------
// SECSource reads company facts from EDGAR. Requests are spaced by a
// limiter with burst 1; the ticker to CIK map has its own TTL.
// -----------------------------------------------------------------------------

type SECSource struct {
	Config  *models.MConfig
	Network interfaces.INetworkManager
	Logger  *logger.Logger
	Limiter *rate.Limiter
	Now     func() time.Time

	mu        sync.Mutex
	ciks      map[string]string
	cikLoaded time.Time
	cikTTL    time.Duration
}

// -----------------------------------------------------------------------------

func NewSECSource(cfg *models.MConfig, netMgr interfaces.INetworkManager, log *logger.Logger) *SECSource {
	interval := time.Duration(cfg.Sec.MinIntervalMs) * time.Millisecond
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	ttl := time.Duration(cfg.Sec.TickerMapTTL) * time.Second
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SECSource{
		Config:  cfg,
		Network: netMgr,
		Logger:  log,
		Limiter: rate.NewLimiter(limit, 1),
		Now:     time.Now,
		cikTTL:  ttl,
	}
}

// -----------------------------------------------------------------------------

func (s *SECSource) get(ctx context.Context, url string) ([]byte, error) {
	if err := s.Limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return s.Network.Get(ctx, url, nil, map[string]string{"User-Agent": s.Config.Sec.UserAgent})
}

// -----------------------------------------------------------------------------

// refreshTickerMap reloads company_tickers.json once the TTL has passed.
// A failed refresh keeps serving the previous map.
func (s *SECSource) refreshTickerMap(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ciks != nil && s.Now().Sub(s.cikLoaded) < s.cikTTL {
		return nil
	}

	body, err := s.get(ctx, strings.TrimRight(s.Config.Sec.BaseURL, "/")+"/files/company_tickers.json")
	if err == nil {
		var entries map[string]struct {
			CIK    json.Number `json:"cik_str"`
			Ticker string      `json:"ticker"`
		}
		if err = json.Unmarshal(body, &entries); err == nil {
			ciks := make(map[string]string, len(entries))
			for _, e := range entries {
				if e.Ticker != "" && e.CIK != "" {
					ciks[strings.ToUpper(e.Ticker)] = e.CIK.String()
				}
			}
			s.ciks = ciks
			s.cikLoaded = s.Now()
			s.Logger.Info("SEC CIK map refreshed: %d tickers", len(ciks))
			return nil
		}
	}

	s.Logger.Error("Failed to refresh SEC CIK map: %v", err)
	if s.ciks == nil {
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------

// GetCIK returns the zero padded CIK, or "" when the ticker is unknown
func (s *SECSource) GetCIK(ctx context.Context, ticker string) (string, error) {
	if err := s.refreshTickerMap(ctx); err != nil {
		return "", err
	}
	s.mu.Lock()
	cik := s.ciks[strings.ToUpper(models.BaseTicker(ticker))]
	s.mu.Unlock()
	if cik == "" {
		return "", nil
	}
	return padCIK(cik), nil
}

func padCIK(cik string) string {
	if len(cik) >= 10 {
		return cik
	}
	return strings.Repeat("0", 10-len(cik)) + cik
}

// -----------------------------------------------------------------------------

type companyFacts struct {
	Facts map[string]map[string]struct {
		Units map[string][]struct {
			End   string  `json:"end"`
			Val   float64 `json:"val"`
			Form  string  `json:"form"`
			Filed string  `json:"filed"`
			Frame string  `json:"frame"`
		} `json:"units"`
	} `json:"facts"`
}

// -----------------------------------------------------------------------------

// GetSharesHistory returns reported shares outstanding sorted by period end.
// Unknown tickers, missing facts and foreign issuers yield an empty list.
func (s *SECSource) GetSharesHistory(ctx context.Context, ticker string) ([]models.MSharesFact, error) {
	cik, err := s.GetCIK(ctx, ticker)
	if err != nil {
		return nil, err
	}
	if cik == "" {
		s.Logger.Debug("No CIK found for %s", ticker)
		return nil, nil
	}

	url := fmt.Sprintf("%s/api/xbrl/companyfacts/CIK%s.json", strings.TrimRight(s.Config.Sec.DataURL, "/"), cik)
	body, err := s.get(ctx, url)
	if err != nil {
		var unavailable *helpers.UpstreamUnavailableError
		if errors.As(err, &unavailable) && unavailable.StatusCode == http.StatusNotFound {
			s.Logger.Debug("No SEC data for %s (CIK %s)", ticker, cik)
			return nil, nil
		}
		return nil, err
	}

	var facts companyFacts
	if err := json.Unmarshal(body, &facts); err != nil {
		return nil, fmt.Errorf("decode company facts for %s: %w", ticker, err)
	}

	var chosen string
	var raw []models.MSharesFact
	for _, c := range sharesConcepts {
		for _, e := range facts.Facts[c.taxonomy][c.concept].Units["shares"] {
			raw = append(raw, models.MSharesFact{End: e.End, Value: int64(e.Val), Form: e.Form, Filed: e.Filed, Frame: e.Frame})
		}
		if len(raw) > 0 {
			chosen = c.taxonomy + ":" + c.concept
			break
		}
	}
	if len(raw) == 0 {
		s.Logger.Debug("No shares outstanding data for %s", ticker)
		return nil, nil
	}

	if foreignOnly(raw) {
		s.Logger.Info("Skipping SEC data for %s: foreign issuer", ticker)
		return nil, nil
	}

	out := filterFacts(raw)
	s.Logger.Debug("SEC: %d shares data points for %s from %s", len(out), ticker, chosen)
	return out, nil
}

// -----------------------------------------------------------------------------

// foreignOnly is true when every fact comes from a 20-F filing
func foreignOnly(facts []models.MSharesFact) bool {
	for _, f := range facts {
		if f.Form != "20-F" && f.Form != "20-F/A" {
			return false
		}
	}
	return true
}

// filterFacts keeps 10-K and 10-Q facts, one per (end, form), sorted by end
func filterFacts(facts []models.MSharesFact) []models.MSharesFact {
	seen := make(map[[2]string]bool)
	out := make([]models.MSharesFact, 0, len(facts))
	for _, f := range facts {
		if f.Value <= 0 || f.End == "" {
			continue
		}
		if !strings.HasPrefix(f.Form, "10-K") && !strings.HasPrefix(f.Form, "10-Q") {
			continue
		}
		key := [2]string{f.End, f.Form}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, f)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].End < out[j].End })
	return out
}

// LatestShares returns the most recent value, or 0 when there is none
func LatestShares(facts []models.MSharesFact) int64 {
	if len(facts) == 0 {
		return 0
	}
	return facts[len(facts)-1].Value
}
