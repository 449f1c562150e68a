package sec

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"market-data-server/src/logger"
	"market-data-server/src/models"
	"market-data-server/src/network"
)

const tickersJSON = `{"0":{"cik_str":320193,"ticker":"AAPL","title":"Apple Inc."},"1":{"cik_str":1000,"ticker":"FRGN","title":"Foreign"}}`

const appleFacts = `{"facts":{"dei":{"EntityCommonStockSharesOutstanding":{"units":{"shares":[
	{"end":"2023-10-20","val":15550061000,"form":"10-K","filed":"2023-11-03"},
	{"end":"2023-07-21","val":15634232000,"form":"10-Q","filed":"2023-08-04"},
	{"end":"2023-07-21","val":15634232000,"form":"10-Q","filed":"2023-08-05"},
	{"end":"2023-06-30","val":1,"form":"8-K","filed":"2023-07-01"}
]}}}}}`

const foreignFacts = `{"facts":{"us-gaap":{"CommonStockSharesOutstanding":{"units":{"shares":[
	{"end":"2023-12-31","val":5000,"form":"20-F","filed":"2024-03-01"}
]}}}}}`

func newTestSEC(t *testing.T, tickerCalls *int32) (*SECSource, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "Test admin@example.com" {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		switch r.URL.Path {
		case "/files/company_tickers.json":
			atomic.AddInt32(tickerCalls, 1)
			w.Write([]byte(tickersJSON))
		case "/api/xbrl/companyfacts/CIK0000320193.json":
			w.Write([]byte(appleFacts))
		case "/api/xbrl/companyfacts/CIK0000001000.json":
			w.Write([]byte(foreignFacts))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	cfg := &models.MConfig{
		Network: models.MNetworkConfig{RequestTimeout: 5, UserAgent: "default"},
		Sec:     models.MSecConfig{BaseURL: srv.URL, DataURL: srv.URL, UserAgent: "Test admin@example.com", MinIntervalMs: 1, TickerMapTTL: 3600},
	}
	log := logger.NewTestLogger(&bytes.Buffer{}, "sec")
	return NewSECSource(cfg, network.NewAsyncNetworkManager(cfg, log), log), srv
}

func TestCIKMapIsCachedUntilTTL(t *testing.T) {
	var calls int32
	s, _ := newTestSEC(t, &calls)
	now := time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)
	s.Now = func() time.Time { return now }

	cik, err := s.GetCIK(context.Background(), "aapl")
	if err != nil || cik != "0000320193" {
		t.Fatalf("GetCIK = %q, %v", cik, err)
	}
	if cik, _ := s.GetCIK(context.Background(), "NOPE"); cik != "" {
		t.Errorf("unknown ticker cik = %q", cik)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("ticker map fetched %d times", calls)
	}

	now = now.Add(2 * time.Hour)
	if _, err := s.GetCIK(context.Background(), "AAPL"); err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("ticker map not refreshed after ttl: %d calls", calls)
	}
}

func TestSharesHistoryFiltersAndSorts(t *testing.T) {
	var calls int32
	s, _ := newTestSEC(t, &calls)

	facts, err := s.GetSharesHistory(context.Background(), "AAPL.US")
	if err != nil {
		t.Fatal(err)
	}
	if len(facts) != 2 {
		t.Fatalf("facts = %+v", facts)
	}
	if facts[0].End != "2023-07-21" || facts[1].Form != "10-K" {
		t.Errorf("facts = %+v", facts)
	}
	if LatestShares(facts) != 15550061000 {
		t.Errorf("latest = %d", LatestShares(facts))
	}
}

func TestSharesHistorySkipsForeignAndUnknown(t *testing.T) {
	var calls int32
	s, _ := newTestSEC(t, &calls)

	if facts, err := s.GetSharesHistory(context.Background(), "FRGN"); err != nil || len(facts) != 0 {
		t.Errorf("foreign = %v, %v", facts, err)
	}
	if facts, err := s.GetSharesHistory(context.Background(), "ZZZZ"); err != nil || len(facts) != 0 {
		t.Errorf("unknown = %v, %v", facts, err)
	}
}

func TestLimiterSpacesRequests(t *testing.T) {
	var calls int32
	s, _ := newTestSEC(t, &calls)
	s.Limiter.SetLimit(20) // 50ms spacing

	start := time.Now()
	for i := 0; i < 3; i++ {
		s.mu.Lock()
		s.ciks = nil
		s.mu.Unlock()
		if _, err := s.GetCIK(context.Background(), "AAPL"); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("three requests took %v, want >= 100ms of spacing", elapsed)
	}
}
