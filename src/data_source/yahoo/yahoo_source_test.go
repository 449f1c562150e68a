package yahoo

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"market-data-server/src/logger"
	"market-data-server/src/models"
	"market-data-server/src/network"
)

const chartJSON = `{"chart":{"result":[{
	"meta":{"symbol":"AAPL","exchangeName":"NMS","timezone":"EDT"},
	"timestamp":[1710254460,1710254400,1710254520],
	"indicators":{"quote":[{
		"open":[101.0,100.0,null],
		"high":[102.0,101.0,103.0],
		"low":[100.5,99.5,101.0],
		"close":[101.5,100.5,102.0],
		"volume":[2000,1000,3000]
	}]}
}],"error":null}}`

const sharesJSON = `{"timeseries":{"result":[{
	"meta":{"symbol":["AAPL"],"type":["quarterlyOrdinarySharesNumber"]},
	"timestamp":[1696032000,1703980800],
	"quarterlyOrdinarySharesNumber":[
		{"asOfDate":"2023-09-30","periodType":"3M","reportedValue":{"raw":15550061000}},
		null,
		{"asOfDate":"2023-12-31","periodType":"3M","reportedValue":{"raw":15441881000}}
	]
}],"error":null}}`

func newTestYahoo(t *testing.T, handler http.HandlerFunc) *YahooFinanceSource {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &models.MConfig{
		Network: models.MNetworkConfig{RequestTimeout: 5, UserAgent: "default"},
		Yahoo:   models.MYahooConfig{BaseURL: srv.URL, UserAgent: "test-browser"},
	}
	log := logger.NewTestLogger(&bytes.Buffer{}, "yahoo")
	y := NewYahooFinanceSource(cfg, network.NewAsyncNetworkManager(cfg, log), log)
	y.Now = func() time.Time { return time.Date(2024, 3, 12, 15, 0, 0, 0, time.UTC) }
	return y
}

func TestYahooSymbol(t *testing.T) {
	tests := map[string]string{
		"AAPL.US":   "AAPL",
		"aapl":      "AAPL",
		"VOD.LSE":   "VOD.L",
		"SAP.XETRA": "SAP.DE",
		"9988.HK":   "9988.HK",
		"BRK.B.US":  "BRK.B",
	}
	for in, want := range tests {
		if got := YahooSymbol(in); got != want {
			t.Errorf("YahooSymbol(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGetIntradayParsesChart(t *testing.T) {
	y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v8/finance/chart/AAPL" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("User-Agent") != "test-browser" {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		q := r.URL.Query()
		if q.Get("interval") != "1m" || q.Get("period1") != "1710254400" || q.Get("period2") != "1710254520" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		w.Write([]byte(chartJSON))
	})

	bars, err := y.GetIntraday(context.Background(), "AAPL.US", "1m", 1710254400, 1710254519)
	if err != nil {
		t.Fatalf("GetIntraday: %v", err)
	}
	// the null open drops the third point
	if len(bars) != 2 {
		t.Fatalf("got %d bars, want 2", len(bars))
	}
	first := bars[0]
	if first.Timestamp.Unix() != 1710254400 || first.Open != 100 || first.Close != 100.5 || first.Volume != 1000 {
		t.Errorf("first bar = %+v", first)
	}
	if first.Ticker != "AAPL" || first.Source != models.SourceYahoo {
		t.Errorf("ticker/source = %s/%s", first.Ticker, first.Source)
	}
	if bars[1].Timestamp.Unix() != 1710254460 {
		t.Errorf("bars not sorted: %v", bars[1].Timestamp)
	}
}

func TestGetIntradayUnknownSymbolIsEmpty(t *testing.T) {
	y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`))
	})

	bars, err := y.GetIntraday(context.Background(), "NOPE.US", "1m", 0, 0)
	if err != nil || len(bars) != 0 {
		t.Errorf("got %v, %v", bars, err)
	}
}

func TestGetIntradayChartError(t *testing.T) {
	y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Bad Request","description":"Invalid interval"}}}`))
	})
	if _, err := y.GetIntraday(context.Background(), "AAPL.US", "7m", 0, 0); err == nil {
		t.Error("expected error")
	}
}

func TestGetSharesOutstandingTakesLatestQuarter(t *testing.T) {
	y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws/fundamentals-timeseries/v1/finance/timeseries/VOD.L" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("type") != sharesType {
			t.Errorf("type = %q", r.URL.Query().Get("type"))
		}
		w.Write([]byte(sharesJSON))
	})

	shares, err := y.GetSharesOutstanding(context.Background(), "VOD.LSE")
	if err != nil {
		t.Fatalf("GetSharesOutstanding: %v", err)
	}
	if shares != 15441881000 {
		t.Errorf("shares = %d", shares)
	}
}

func TestGetSharesOutstandingEmpty(t *testing.T) {
	y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"timeseries":{"result":[{"meta":{"symbol":["X"]},"timestamp":null}],"error":null}}`))
	})

	shares, err := y.GetSharesOutstanding(context.Background(), "X.US")
	if err != nil || shares != 0 {
		t.Errorf("got %d, %v", shares, err)
	}
}
