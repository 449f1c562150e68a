package workers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"market-data-server/src/logger"
	"market-data-server/src/models"
	"market-data-server/src/utils"
)

// -----------------------------------------------------------------------------
// fakes
// -----------------------------------------------------------------------------

type memStore struct {
	mu        sync.Mutex
	tracked   map[string]models.MTrackedStock
	live      map[string]models.MLivePrice
	intraday  []models.MIntradayBar
	daily     []models.MDailyBar
	content   map[string]models.MContent
	news      map[string]models.MNewsArticle
	companies map[string]models.MCompany
	cutoff    time.Time
}

func newMemStore(stocks ...models.MTrackedStock) *memStore {
	s := &memStore{
		tracked:   map[string]models.MTrackedStock{},
		live:      map[string]models.MLivePrice{},
		content:   map[string]models.MContent{},
		news:      map[string]models.MNewsArticle{},
		companies: map[string]models.MCompany{},
	}
	for _, t := range stocks {
		s.tracked[t.Ticker] = t
	}
	return s
}

func (s *memStore) ListTrackedStocks(ctx context.Context) ([]models.MTrackedStock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.MTrackedStock, 0, len(s.tracked))
	for _, t := range s.tracked {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out, nil
}

func (s *memStore) UpsertTrackedStock(ctx context.Context, t models.MTrackedStock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracked[t.Ticker] = t
	return nil
}

func (s *memStore) DeleteTrackedStock(ctx context.Context, ticker string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tracked[ticker]
	delete(s.tracked, ticker)
	return ok, nil
}

func (s *memStore) TouchPriceUpdate(ctx context.Context, ticker string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tracked[ticker]
	t.LastPriceUpdate = &at
	s.tracked[ticker] = t
	return nil
}

func (s *memStore) TouchNewsUpdate(ctx context.Context, ticker string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tracked[ticker]
	t.LastNewsUpdate = &at
	s.tracked[ticker] = t
	return nil
}

func (s *memStore) UpsertLivePrice(ctx context.Context, p models.MLivePrice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live[p.Ticker] = p
	return nil
}

func (s *memStore) UpsertIntradayBars(ctx context.Context, bars []models.MIntradayBar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intraday = append(s.intraday, bars...)
	return nil
}

func (s *memStore) UpsertDailyBars(ctx context.Context, bars []models.MDailyBar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.daily = append(s.daily, bars...)
	return nil
}

func (s *memStore) CountDailyBars(ctx context.Context, ticker string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.daily {
		if b.Ticker == ticker {
			n++
		}
	}
	return n, nil
}

func (s *memStore) DeleteIntradayBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cutoff = cutoff
	return 0, nil
}

func (s *memStore) UpsertContent(ctx context.Context, c models.MContent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.content[c.ContentID] = c
	return nil
}

func (s *memStore) UpsertNews(ctx context.Context, a models.MNewsArticle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.news[a.ID] = a
	return nil
}

func (s *memStore) LatestNewsDate(ctx context.Context, ticker string) (*time.Time, error) {
	return nil, nil
}

func (s *memStore) UpsertCompany(ctx context.Context, c models.MCompany) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.companies[c.Ticker]
	c.SharesOutstanding = prev.SharesOutstanding
	s.companies[c.Ticker] = c
	return nil
}

func (s *memStore) UpdateSharesOutstanding(ctx context.Context, ticker string, shares int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.companies[ticker]
	c.Ticker = ticker
	c.SharesOutstanding = shares
	s.companies[ticker] = c
	return nil
}

// -----------------------------------------------------------------------------

type fakeUpstream struct {
	mu           sync.Mutex
	batchCalls   [][]string
	quotes       []models.MQuote
	batchErr     error
	intraday     map[string][]models.MIntradayBar
	intradayReqs []int64
	eodCalls     []string
	news         []models.MUpstreamArticle
	fundamentals map[string]interface{}
}

func (f *fakeUpstream) GetRealTimeBatch(ctx context.Context, symbols []string) ([]models.MQuote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls = append(f.batchCalls, symbols)
	return f.quotes, f.batchErr
}

func (f *fakeUpstream) GetRealTime(ctx context.Context, symbol string) (*models.MQuote, error) {
	return nil, errors.New("not used")
}

func (f *fakeUpstream) GetIntraday(ctx context.Context, symbol, interval string, from, to int64) ([]models.MIntradayBar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intradayReqs = append(f.intradayReqs, from, to)
	bars, ok := f.intraday[symbol]
	if !ok {
		return nil, errors.New("upstream unavailable")
	}
	return bars, nil
}

func (f *fakeUpstream) GetEOD(ctx context.Context, symbol, from, to, period string) ([]models.MDailyBar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.eodCalls = append(f.eodCalls, symbol+" "+from+" "+to)
	return []models.MDailyBar{{Ticker: models.BaseTicker(symbol), Close: 1}}, nil
}

func (f *fakeUpstream) GetNews(ctx context.Context, symbol, from, to string, limit, offset int) ([]models.MUpstreamArticle, error) {
	return f.news, nil
}

func (f *fakeUpstream) GetFundamentals(ctx context.Context, symbol string) (map[string]interface{}, error) {
	return f.fundamentals, nil
}

func (f *fakeUpstream) Search(ctx context.Context, q string, limit int, exchange string) (json.RawMessage, error) {
	return json.RawMessage("[]"), nil
}

func (f *fakeUpstream) GetExchangesList(ctx context.Context) (json.RawMessage, error) {
	return json.RawMessage("[]"), nil
}

func (f *fakeUpstream) GetExchangeSymbolList(ctx context.Context, exchange string) (json.RawMessage, error) {
	return json.RawMessage("[]"), nil
}

type fakeFilings struct {
	facts []models.MSharesFact
	asked []string
}

func (f *fakeFilings) GetCIK(ctx context.Context, ticker string) (string, error) {
	return "0000320193", nil
}

func (f *fakeFilings) GetSharesHistory(ctx context.Context, ticker string) ([]models.MSharesFact, error) {
	f.asked = append(f.asked, ticker)
	return f.facts, nil
}

type fakeFallback struct {
	mu       sync.Mutex
	intraday map[string][]models.MIntradayBar
	shares   map[string]int64
	asked    []string
}

func (f *fakeFallback) GetIntraday(ctx context.Context, symbol, interval string, from, to int64) ([]models.MIntradayBar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asked = append(f.asked, "intraday "+symbol)
	return f.intraday[symbol], nil
}

func (f *fakeFallback) GetSharesOutstanding(ctx context.Context, symbol string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asked = append(f.asked, "shares "+symbol)
	return f.shares[symbol], nil
}

// -----------------------------------------------------------------------------

type sent struct {
	ticker string
	kind   string
}

type fakeBroadcaster struct {
	mu   sync.Mutex
	sent []sent
	news []models.MNewsUpdate
}

func (b *fakeBroadcaster) BroadcastPriceUpdate(ticker string, data models.MPriceUpdate) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, sent{ticker, models.FramePriceUpdate})
}

func (b *fakeBroadcaster) BroadcastNewsUpdate(ticker string, data models.MNewsUpdate) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, sent{ticker, models.FrameNewsUpdate})
	b.news = append(b.news, data)
}

func (b *fakeBroadcaster) BroadcastTrackingStatus(tickers []string, action, ticker string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, sent{ticker, action})
}

// -----------------------------------------------------------------------------

type fixedClock struct{ open bool }

func (c fixedClock) IsMarketOpen(exchange string, now time.Time) bool { return c.open }

func (c fixedClock) AnyMarketOpen(exchanges []string, now time.Time) bool {
	return c.open && len(exchanges) > 0
}

func testLogger() *logger.Logger {
	return logger.NewTestLogger(io.Discard, "workers")
}

func at(s string) func() time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return t }
}

func stock(ticker string) models.MTrackedStock {
	return models.MTrackedStock{Ticker: ticker, Exchange: "US", TrackPrices: true, TrackNews: true}
}

// -----------------------------------------------------------------------------
// live prices
// -----------------------------------------------------------------------------

func TestLiveTickIsGatedByMarketHours(t *testing.T) {
	store := newMemStore(stock("AAPL"))
	up := &fakeUpstream{quotes: []models.MQuote{{Code: "AAPL.US", Close: 190, Volume: 10, HasPrice: true}}}
	clock := utils.NewMarketScheduler(testLogger())

	w := NewLiveWorker(store, up, &fakeBroadcaster{}, clock, testLogger())

	// Tuesday 2024-03-12, 02:00 UTC is overnight in New York
	w.Now = at("2024-03-12T02:00:00Z")
	if r := w.Run(context.Background()); !r.Skipped {
		t.Errorf("expected skipped run, got %s", r)
	}
	if len(up.batchCalls) != 0 {
		t.Fatalf("got %d upstream calls outside market hours, want 0", len(up.batchCalls))
	}

	// 15:00 UTC is 11:00 in New York
	w.Now = at("2024-03-12T15:00:00Z")
	w.Run(context.Background())
	if len(up.batchCalls) != 1 {
		t.Fatalf("got %d batch calls, want 1", len(up.batchCalls))
	}
	if got := up.batchCalls[0]; len(got) != 1 || got[0] != "AAPL.US" {
		t.Errorf("got symbols %v", got)
	}
}

func TestLiveTickIsolatesTickerFailures(t *testing.T) {
	store := newMemStore(stock("AAPL"), stock("MSFT"), stock("TSLA"))
	up := &fakeUpstream{quotes: []models.MQuote{
		{Code: "AAPL.US", Close: 190, Change: 1, ChangePercent: 0.5, Volume: 100, Timestamp: 1710255600, HasPrice: true},
		{Code: "MSFT.US", HasPrice: false},
		{Code: "ZZZZ.US", Close: 1, HasPrice: true},
	}}
	b := &fakeBroadcaster{}
	w := NewLiveWorker(store, up, b, fixedClock{open: true}, testLogger())
	w.Now = at("2024-03-12T15:00:00Z")

	r := w.Run(context.Background())

	if len(r.Succeeded) != 1 || r.Succeeded[0] != "AAPL" {
		t.Fatalf("succeeded = %v, want [AAPL]", r.Succeeded)
	}
	failed := map[string]bool{}
	for _, f := range r.Failed {
		failed[f.Item] = true
	}
	for _, want := range []string{"MSFT", "ZZZZ.US", "TSLA"} {
		if !failed[want] {
			t.Errorf("expected failure for %s, got %v", want, r.Failed)
		}
	}

	if p, ok := store.live["AAPL"]; !ok || p.Price != 190 {
		t.Errorf("live price not stored: %+v", p)
	}
	if store.tracked["AAPL"].LastPriceUpdate == nil {
		t.Error("last_price_update not touched")
	}
	if len(b.sent) != 1 || b.sent[0].ticker != "AAPL" {
		t.Errorf("broadcasts = %v", b.sent)
	}
}

func TestLiveTickFlushesMinuteBar(t *testing.T) {
	store := newMemStore(stock("AAPL"))
	up := &fakeUpstream{}
	w := NewLiveWorker(store, up, &fakeBroadcaster{}, fixedClock{open: true}, testLogger())

	samples := []struct {
		at    string
		price float64
	}{
		{"2024-03-12T14:30:00Z", 100},
		{"2024-03-12T14:30:14Z", 101},
		{"2024-03-12T14:30:44Z", 99},
		{"2024-03-12T14:31:02Z", 102},
	}
	for _, s := range samples {
		up.quotes = []models.MQuote{{Code: "AAPL.US", Close: s.price, Volume: 500, HasPrice: true}}
		w.Now = at(s.at)
		w.Run(context.Background())
	}

	if len(store.intraday) != 1 {
		t.Fatalf("got %d flushed bars, want 1", len(store.intraday))
	}
	bar := store.intraday[0]
	if bar.Open != 100 || bar.High != 101 || bar.Low != 99 || bar.Close != 99 {
		t.Errorf("got bar %+v", bar)
	}
	if bar.Source != models.SourceLive {
		t.Errorf("got source %q, want live", bar.Source)
	}

	if err := w.FlushOpenBars(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(store.intraday) != 2 || store.intraday[1].Open != 102 {
		t.Errorf("open bar not flushed on shutdown: %+v", store.intraday)
	}
}

func TestLiveTickBatchFailureIsReported(t *testing.T) {
	store := newMemStore(stock("AAPL"))
	up := &fakeUpstream{batchErr: errors.New("boom")}
	w := NewLiveWorker(store, up, &fakeBroadcaster{}, fixedClock{open: true}, testLogger())

	r := w.Run(context.Background())
	if len(r.Failed) != 1 || r.Failed[0].Item != "batch" {
		t.Errorf("got %s", r)
	}
}

// -----------------------------------------------------------------------------
// reconciliation
// -----------------------------------------------------------------------------

func TestReconcileRequestsTargetMinute(t *testing.T) {
	store := newMemStore(stock("AAPL"), stock("MSFT"))
	target := time.Date(2024, 3, 12, 14, 44, 0, 0, time.UTC)
	up := &fakeUpstream{intraday: map[string][]models.MIntradayBar{
		"AAPL.US": {{Ticker: "AAPL", Timestamp: target, Close: 190}},
	}}
	w := NewReconcileWorker(store, up, fixedClock{open: true}, 15*time.Minute, testLogger())
	w.Now = at("2024-03-12T15:00:30Z")

	if got := w.TargetMinute(w.Now()); !got.Equal(target) {
		t.Fatalf("target = %v, want %v", got, target)
	}

	r := w.Run(context.Background())

	if up.intradayReqs[0] != target.Unix() || up.intradayReqs[1] != target.Unix()+59 {
		t.Errorf("requested window %v", up.intradayReqs[:2])
	}
	if len(r.Succeeded) != 1 || len(r.Failed) != 1 || r.Failed[0].Item != "MSFT" {
		t.Errorf("got %s", r)
	}
	if len(store.intraday) != 1 || store.intraday[0].Source != models.SourceEODHD {
		t.Errorf("stored %+v", store.intraday)
	}
}

func TestReconcileFallsBackWhenUpstreamFails(t *testing.T) {
	store := newMemStore(stock("AAPL"), stock("MSFT"))
	target := time.Date(2024, 3, 12, 14, 44, 0, 0, time.UTC)
	up := &fakeUpstream{intraday: map[string][]models.MIntradayBar{
		"AAPL.US": {{Ticker: "AAPL", Timestamp: target, Close: 190}},
	}}
	fb := &fakeFallback{intraday: map[string][]models.MIntradayBar{
		"MSFT.US": {{Ticker: "MSFT", Timestamp: target, Close: 410, Source: models.SourceYahoo}},
	}}
	w := NewReconcileWorker(store, up, fixedClock{open: true}, 15*time.Minute, testLogger())
	w.Fallback = fb
	w.Now = at("2024-03-12T15:00:30Z")

	r := w.Run(context.Background())
	if len(r.Succeeded) != 2 || len(r.Failed) != 0 {
		t.Fatalf("got %s", r)
	}
	if len(fb.asked) != 1 || fb.asked[0] != "intraday MSFT.US" {
		t.Errorf("fallback asked for %v", fb.asked)
	}
	sources := map[string]string{}
	for _, b := range store.intraday {
		sources[b.Ticker] = b.Source
	}
	if sources["AAPL"] != models.SourceEODHD || sources["MSFT"] != models.SourceYahoo {
		t.Errorf("sources = %v", sources)
	}
}

func TestFetchIntradayKeepsPrimaryErrorWhenFallbackEmpty(t *testing.T) {
	up := &fakeUpstream{}
	bars, err := FetchIntraday(context.Background(), up, &fakeFallback{}, testLogger(), "AAPL.US", models.IntervalMin1, 1, 60)
	if err == nil || len(bars) != 0 {
		t.Errorf("got %v, %v", bars, err)
	}
	if _, err := FetchIntraday(context.Background(), up, nil, testLogger(), "AAPL.US", models.IntervalMin1, 1, 60); err == nil {
		t.Error("expected primary error without a fallback")
	}
}

func TestReconcileSkipsClosedMarkets(t *testing.T) {
	store := newMemStore(stock("AAPL"))
	up := &fakeUpstream{}
	w := NewReconcileWorker(store, up, fixedClock{open: false}, 0, testLogger())

	if r := w.Run(context.Background()); !r.Skipped {
		t.Errorf("expected skip, got %s", r)
	}
	if len(up.intradayReqs) != 0 {
		t.Errorf("made %d requests while closed", len(up.intradayReqs)/2)
	}
}

// -----------------------------------------------------------------------------
// news
// -----------------------------------------------------------------------------

func TestNewsIdentifiersAreHashes(t *testing.T) {
	if got, want := ContentID("abc"), "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"; got != want {
		t.Errorf("ContentID = %s, want %s", got, want)
	}
	const link = "https://example.com/a"
	if NewsID(link, "2024-03-12T10:00:00+00:00") == NewsID(link, "2024-03-13T10:00:00+00:00") {
		t.Error("news id ignores publication date")
	}
	if NewsID(link, "x") != ContentID(link+"_x") {
		t.Error("news id is not sha256 of url_published")
	}
}

func TestResolveSource(t *testing.T) {
	tests := []struct {
		name string
		in   models.MUpstreamArticle
		want string
	}{
		{"source", models.MUpstreamArticle{Source: "Reuters", Site: "x", Link: "https://www.y.com/a"}, "Reuters"},
		{"site", models.MUpstreamArticle{Site: "Benzinga", Link: "https://www.y.com/a"}, "Benzinga"},
		{"host", models.MUpstreamArticle{Link: "https://www.finance.yahoo.com/a"}, "finance.yahoo.com"},
		{"none", models.MUpstreamArticle{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveSource(tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewsStoresAndBroadcastsToPrimaryTicker(t *testing.T) {
	store := newMemStore(stock("AAPL"))
	up := &fakeUpstream{news: []models.MUpstreamArticle{
		{Date: "2024-03-12T10:00:00+00:00", Title: "Apple and Microsoft", Link: "https://www.example.com/a", Symbols: []string{"MSFT.US", "AAPL.US"}},
		{Date: "2024-03-12T11:00:00+00:00", Title: "Same story, new date", Link: "https://www.example.com/a"},
		{Date: "garbage", Title: "bad", Link: "https://www.example.com/b"},
		{Date: "2024-03-12T12:00:00+00:00", Title: "", Link: "https://www.example.com/c"},
	}}
	b := &fakeBroadcaster{}
	w := NewNewsWorker(store, up, b, 0, testLogger())
	w.Now = at("2024-03-12T15:00:00Z")
	w.Stagger = 0

	r := w.Run(context.Background())
	if len(r.Succeeded) != 1 {
		t.Fatalf("got %s", r)
	}

	if len(store.content) != 1 {
		t.Errorf("got %d content records, want 1 per url", len(store.content))
	}
	if len(store.news) != 2 {
		t.Errorf("got %d news rows, want 2", len(store.news))
	}
	first := store.news[NewsID("https://www.example.com/a", "2024-03-12T10:00:00+00:00")]
	if len(first.Tickers) != 2 || first.Tickers[0] != "AAPL" || first.Tickers[1] != "MSFT" {
		t.Errorf("tickers = %v", first.Tickers)
	}
	if first.Source != "example.com" {
		t.Errorf("source = %q", first.Source)
	}
	for _, s := range b.sent {
		if s.ticker != "AAPL" {
			t.Errorf("broadcast went to %s", s.ticker)
		}
	}
	if len(b.news) != 2 {
		t.Errorf("got %d news broadcasts, want 2", len(b.news))
	}
	if store.tracked["AAPL"].LastNewsUpdate == nil {
		t.Error("last_news_update not touched")
	}
}

func TestNewsSummaryKeepsCharactersWhole(t *testing.T) {
	body := strings.Repeat("a", 499) + "é…"
	store := newMemStore(stock("AAPL"))
	up := &fakeUpstream{news: []models.MUpstreamArticle{
		{Date: "2024-03-12T10:00:00+00:00", Title: "Long", Link: "https://www.example.com/long", Content: body},
	}}
	w := NewNewsWorker(store, up, &fakeBroadcaster{}, 0, testLogger())
	w.Now = at("2024-03-12T15:00:00Z")
	w.Stagger = 0

	if r := w.Run(context.Background()); len(r.Succeeded) != 1 {
		t.Fatalf("got %s", r)
	}
	c, ok := store.content[ContentID("https://www.example.com/long")]
	if !ok {
		t.Fatal("content not stored")
	}
	if !utf8.ValidString(c.Summary) {
		t.Errorf("summary is not valid UTF-8: %q", c.Summary[490:])
	}
	if c.Summary != strings.Repeat("a", 499) {
		t.Errorf("summary ends with %q", c.Summary[len(c.Summary)-3:])
	}
	if c.FullContent != body {
		t.Error("full content was altered")
	}
}

func TestTruncateUTF8(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"héllo", 2, "h"},
		{"héllo", 3, "hé"},
		{"日本語", 4, "日"},
		{"日本語", 0, ""},
	}
	for _, tt := range tests {
		if got := TruncateUTF8(tt.in, tt.max); got != tt.want {
			t.Errorf("TruncateUTF8(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

// -----------------------------------------------------------------------------
// daily, fundamentals
// -----------------------------------------------------------------------------

func TestDailyRefreshesAndPrunes(t *testing.T) {
	store := newMemStore(stock("AAPL"))
	up := &fakeUpstream{}
	w := NewDailyWorker(store, up, 7, testLogger())
	w.Now = at("2024-03-12T20:30:00Z")

	r := w.Run(context.Background())
	if len(r.Succeeded) != 1 || len(r.Failed) != 0 {
		t.Errorf("got %s", r)
	}
	if len(up.eodCalls) != 1 || up.eodCalls[0] != "AAPL.US 2024-03-05 2024-03-12" {
		t.Errorf("eod calls = %v", up.eodCalls)
	}
	if want := time.Date(2024, 3, 5, 20, 30, 0, 0, time.UTC); !store.cutoff.Equal(want) {
		t.Errorf("cutoff = %v, want %v", store.cutoff, want)
	}
}

func TestCompanyFromFundamentals(t *testing.T) {
	data := map[string]interface{}{
		"General":     map[string]interface{}{"Name": "Apple Inc", "Exchange": "NASDAQ", "Sector": "Technology", "Industry": "Consumer Electronics"},
		"Highlights":  map[string]interface{}{"MarketCapitalization": 2.9e12, "PERatio": "29.5", "EarningsShare": 6.42},
		"SharesStats": map[string]interface{}{"SharesOutstanding": 15441900000.0},
	}
	c := CompanyFromFundamentals("aapl.us", data, time.Time{})
	if c.Ticker != "AAPL" || c.Name != "Apple Inc" || c.Sector != "Technology" {
		t.Errorf("got %+v", c)
	}
	if c.PERatio != 29.5 || c.EPS != 6.42 || c.SharesOutstanding != 15441900000 {
		t.Errorf("got %+v", c)
	}
}

func TestFundamentalsPrefersSECShares(t *testing.T) {
	store := newMemStore(stock("AAPL"), models.MTrackedStock{Ticker: "9988", Exchange: "HK"})
	up := &fakeUpstream{fundamentals: map[string]interface{}{
		"SharesStats": map[string]interface{}{"SharesOutstanding": 100.0},
	}}
	filings := &fakeFilings{facts: []models.MSharesFact{{End: "2023-09-30", Value: 200, Form: "10-K"}, {End: "2023-12-30", Value: 300, Form: "10-Q"}}}
	w := NewFundamentalsWorker(store, up, filings, testLogger())

	r := w.Run(context.Background())
	if len(r.Succeeded) != 2 {
		t.Fatalf("got %s", r)
	}
	if got := store.companies["AAPL"].SharesOutstanding; got != 300 {
		t.Errorf("AAPL shares = %d, want 300", got)
	}
	if got := store.companies["9988"].SharesOutstanding; got != 100 {
		t.Errorf("9988 shares = %d, want 100", got)
	}
	if len(filings.asked) != 1 || filings.asked[0] != "AAPL" {
		t.Errorf("SEC asked for %v", filings.asked)
	}
}

func TestFundamentalsFallsBackForShares(t *testing.T) {
	store := newMemStore(stock("AAPL"), stock("NEWCO"), models.MTrackedStock{Ticker: "VOD", Exchange: "LSE"})
	up := &fakeUpstream{fundamentals: map[string]interface{}{
		"SharesStats": map[string]interface{}{"SharesOutstanding": 100.0},
	}}
	filings := &fakeFilings{}
	fb := &fakeFallback{shares: map[string]int64{"AAPL.US": 500, "VOD.LSE": 700}}
	w := NewFundamentalsWorker(store, up, filings, testLogger())
	w.Fallback = fb

	r := w.Run(context.Background())
	if len(r.Succeeded) != 3 {
		t.Fatalf("got %s", r)
	}
	// SEC has nothing, so the fallback wins over the fundamentals figure
	if got := store.companies["AAPL"].SharesOutstanding; got != 500 {
		t.Errorf("AAPL shares = %d, want 500", got)
	}
	if got := store.companies["VOD"].SharesOutstanding; got != 700 {
		t.Errorf("VOD shares = %d, want 700", got)
	}
	// neither source knows NEWCO
	if got := store.companies["NEWCO"].SharesOutstanding; got != 100 {
		t.Errorf("NEWCO shares = %d, want 100", got)
	}
	if len(filings.asked) != 2 {
		t.Errorf("SEC asked for %v", filings.asked)
	}
}

func TestFundamentalsSkipsFallbackWhenSECHasShares(t *testing.T) {
	store := newMemStore(stock("AAPL"))
	up := &fakeUpstream{fundamentals: map[string]interface{}{}}
	filings := &fakeFilings{facts: []models.MSharesFact{{End: "2023-12-30", Value: 300, Form: "10-Q"}}}
	fb := &fakeFallback{shares: map[string]int64{"AAPL.US": 500}}
	w := NewFundamentalsWorker(store, up, filings, testLogger())
	w.Fallback = fb

	w.Run(context.Background())
	if got := store.companies["AAPL"].SharesOutstanding; got != 300 {
		t.Errorf("AAPL shares = %d, want 300", got)
	}
	if len(fb.asked) != 0 {
		t.Errorf("fallback asked for %v", fb.asked)
	}
}

// -----------------------------------------------------------------------------
// tracking
// -----------------------------------------------------------------------------

func TestTrackingAddSplitsSymbolAndPrefetches(t *testing.T) {
	store := newMemStore()
	up := &fakeUpstream{}
	b := &fakeBroadcaster{}
	svc := NewTrackingService(context.Background(), store, up, b, 5, testLogger())
	svc.Now = at("2024-03-12T15:00:00Z")

	got, err := svc.Add(context.Background(), models.MAddStockRequest{Ticker: "9988.hk"})
	if err != nil {
		t.Fatal(err)
	}
	svc.Wait()

	if got.Ticker != "9988" || got.Exchange != "HK" || !got.TrackPrices || !got.TrackNews {
		t.Errorf("got %+v", got)
	}
	if len(up.eodCalls) != 1 || up.eodCalls[0] != "9988.HK 2019-03-12 2024-03-12" {
		t.Errorf("prefetch calls = %v", up.eodCalls)
	}
	if len(b.sent) != 1 || b.sent[0].kind != ActionAdded || b.sent[0].ticker != "9988" {
		t.Errorf("broadcasts = %v", b.sent)
	}
}

func TestTrackingPrefetchSkipsFullHistory(t *testing.T) {
	store := newMemStore()
	for i := 0; i <= utils.PrefetchSkipRows; i++ {
		store.daily = append(store.daily, models.MDailyBar{Ticker: "AAPL"})
	}
	up := &fakeUpstream{}
	svc := NewTrackingService(context.Background(), store, up, &fakeBroadcaster{}, 5, testLogger())

	n, err := svc.Prefetch(context.Background(), stock("AAPL"))
	if err != nil || n != 0 || len(up.eodCalls) != 0 {
		t.Errorf("got n=%d err=%v calls=%v", n, err, up.eodCalls)
	}
}

func TestTrackingRemoveAndStatus(t *testing.T) {
	early := time.Date(2024, 3, 12, 14, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)
	a := stock("AAPL")
	a.LastPriceUpdate = &early
	m := stock("MSFT")
	m.LastPriceUpdate = &late
	m.LastNewsUpdate = &early
	store := newMemStore(a, m)
	svc := NewTrackingService(context.Background(), store, &fakeUpstream{}, &fakeBroadcaster{}, 5, testLogger())

	st, err := svc.Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.TotalCount != 2 || !st.LastPriceWorkerRun.Equal(late) || !st.LastNewsWorkerRun.Equal(early) {
		t.Errorf("got %+v", st)
	}

	if ok, _ := svc.Remove(context.Background(), "aapl"); !ok {
		t.Error("remove of tracked ticker reported false")
	}
	if ok, _ := svc.Remove(context.Background(), "AAPL"); ok {
		t.Error("second remove reported true")
	}
}

func TestTrackingSyncAddsOnlyMissing(t *testing.T) {
	store := newMemStore(stock("AAPL"))
	up := &fakeUpstream{}
	svc := NewTrackingService(context.Background(), store, up, &fakeBroadcaster{}, 5, testLogger())

	res, err := svc.Sync(context.Background(), []models.MAddStockRequest{
		{Ticker: "AAPL"},
		{Ticker: "MSFT", Exchange: "US"},
		{Ticker: "9988.HK", Exchange: "US"},
		{Ticker: " "},
	})
	svc.Wait()
	if err != nil {
		t.Fatal(err)
	}
	if res.Added != 2 || res.TotalTracked != 3 {
		t.Errorf("got %+v", res)
	}
	if len(up.eodCalls) != 2 {
		t.Errorf("prefetched %v", up.eodCalls)
	}
	if len(res.Prefetching) != 2 || res.Prefetching[0] != "MSFT.US" || res.Prefetching[1] != "9988.HK" {
		t.Errorf("prefetching = %v", res.Prefetching)
	}
}

func TestTrackingRejectsEmptyTicker(t *testing.T) {
	svc := NewTrackingService(context.Background(), newMemStore(), &fakeUpstream{}, &fakeBroadcaster{}, 5, testLogger())
	if _, err := svc.Add(context.Background(), models.MAddStockRequest{Ticker: "  "}); err == nil {
		t.Error("expected validation error")
	}
}
