package eodhd

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"market-data-server/src/helpers"
	"market-data-server/src/logger"
	"market-data-server/src/models"
	"market-data-server/src/network"
)

func newTestSource(t *testing.T, handler http.HandlerFunc) (*EODHDSource, string) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logPath := filepath.Join(t.TempDir(), "logs", "requests.log")
	cfg := &models.MConfig{
		Network:  models.MNetworkConfig{RequestTimeout: 5, UserAgent: "test"},
		Upstream: models.MUpstreamConfig{BaseURL: srv.URL, APIKey: "secret-key", RequestLogPath: logPath, NewsLimit: 100},
	}
	log := logger.NewTestLogger(&bytes.Buffer{}, "eodhd")
	s := NewEODHDSource(cfg, network.NewAsyncNetworkManager(cfg, log), log)
	t.Cleanup(func() { s.Close() })
	return s, logPath
}

func TestBatchQuoteUsesFirstSymbolAndList(t *testing.T) {
	s, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/real-time/AAPL.US" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("s"); got != "AAPL.US,MSFT.US" {
			t.Errorf("s = %q", got)
		}
		if r.URL.Query().Get("api_token") != "secret-key" || r.URL.Query().Get("fmt") != "json" {
			t.Errorf("missing credentials: %s", r.URL.RawQuery)
		}
		w.Write([]byte(`[
			{"code":"AAPL.US","timestamp":1710255600,"open":172.1,"close":173.5,"volume":1000,"previousClose":172,"change":1.5,"change_p":0.87},
			{"code":"MSFT.US","timestamp":1710255600,"close":"NA","volume":"NA"}
		]`))
	})

	quotes, err := s.GetRealTimeBatch(context.Background(), []string{"AAPL.US", "MSFT.US"})
	if err != nil {
		t.Fatal(err)
	}
	if len(quotes) != 2 {
		t.Fatalf("quotes = %d", len(quotes))
	}
	if !quotes[0].HasPrice || quotes[0].Close != 173.5 || quotes[0].ChangePercent != 0.87 || quotes[0].Volume != 1000 {
		t.Errorf("AAPL = %+v", quotes[0])
	}
	if quotes[1].HasPrice {
		t.Errorf("MSFT with NA close reported a price")
	}
	if s.Stats().APICalls != 1 {
		t.Errorf("APICalls = %d", s.Stats().APICalls)
	}
}

func TestBatchQuoteNormalizesSingleObject(t *testing.T) {
	s, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"AAPL.US","close":"173.25"}`))
	})

	quotes, err := s.GetRealTimeBatch(context.Background(), []string{"AAPL.US", "ZZZZ.US"})
	if err != nil {
		t.Fatal(err)
	}
	if len(quotes) != 1 || quotes[0].Close != 173.25 {
		t.Fatalf("quotes = %+v", quotes)
	}
}

func TestSingleSymbolBatchUsesPlainEndpoint(t *testing.T) {
	s, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("s") != "" {
			t.Errorf("single symbol sent s=%q", r.URL.Query().Get("s"))
		}
		w.Write([]byte(`{"code":"AAPL.US","close":170}`))
	})
	quotes, err := s.GetRealTimeBatch(context.Background(), []string{"AAPL.US"})
	if err != nil || len(quotes) != 1 {
		t.Fatalf("quotes = %v, %v", quotes, err)
	}
}

func TestRequestLogMasksToken(t *testing.T) {
	s, logPath := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/eod/") {
			w.Write([]byte(`[{"date":"2024-01-02","open":1,"high":2,"low":1,"close":2,"adjusted_close":2,"volume":10}]`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	})
	s.Now = func() time.Time { return time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC) }

	bars, err := s.GetEOD(context.Background(), "AAPL.US", "2024-01-01", "2024-01-05", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 1 || bars[0].Ticker != "AAPL" || bars[0].Volume != 10 {
		t.Fatalf("bars = %+v", bars)
	}

	_, err = s.GetFundamentals(context.Background(), "AAPL.US")
	if !helpers.IsUpstreamError(err) {
		t.Fatalf("err = %v, want upstream error", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	log := string(data)
	if strings.Contains(log, "secret-key") {
		t.Error("api token leaked into the request log")
	}
	if !strings.Contains(log, "[2024-03-12 10:00:00] OK eod/AAPL.US params={fmt: json, from: 2024-01-01, period: d, to: 2024-01-05} response_size=1") {
		t.Errorf("missing OK line in:\n%s", log)
	}
	if !strings.Contains(log, "ERROR fundamentals/AAPL.US") {
		t.Errorf("missing ERROR line in:\n%s", log)
	}
	if got := len(s.Stats().RecentRequests); got != 2 {
		t.Errorf("recent requests = %d", got)
	}
}

func TestIntradayBarsAreAuthoritative(t *testing.T) {
	s, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("from") != "1710253800" || r.URL.Query().Get("interval") != "1m" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		w.Write([]byte(`[{"timestamp":1710253800,"gmtoffset":0,"datetime":"2024-03-12 14:30:00","open":1,"high":2,"low":0.5,"close":1.5,"volume":300}]`))
	})

	bars, err := s.GetIntraday(context.Background(), "AAPL.US", "", 1710253800, 1710253859)
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 1 || bars[0].Source != models.SourceEODHD || !bars[0].Timestamp.Equal(time.Unix(1710253800, 0)) {
		t.Fatalf("bars = %+v", bars)
	}
}

func TestNonListResponsesAreEmpty(t *testing.T) {
	s, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"nothing"}`))
	})
	news, err := s.GetNews(context.Background(), "AAPL.US", "", "", 0, 0)
	if err != nil || len(news) != 0 {
		t.Fatalf("news = %v, %v", news, err)
	}
	raw, err := s.Search(context.Background(), "apple", 10, "")
	if err != nil || string(raw) != "[]" {
		t.Fatalf("search = %s, %v", raw, err)
	}
}
