package analysis

import (
	"testing"
	"time"

	"market-data-server/src/models"
)

func at(hhmmss string) time.Time {
	t, err := time.Parse("2006-01-02 15:04:05", "2024-03-12 "+hhmmss)
	if err != nil {
		panic(err)
	}
	return t
}

func TestMinuteBarFlushOnRollover(t *testing.T) {
	a := NewMinuteBarAggregator()

	if _, ok := a.Observe("AAPL", 100, 1000, at("09:30:00")); ok {
		t.Fatal("first sample flushed a bar")
	}
	if _, ok := a.Observe("AAPL", 101, 1100, at("09:30:14")); ok {
		t.Fatal("same-minute sample flushed")
	}
	if _, ok := a.Observe("AAPL", 99, 1200, at("09:30:44")); ok {
		t.Fatal("same-minute sample flushed")
	}

	bar, ok := a.Observe("AAPL", 102, 1300, at("09:31:02"))
	if !ok {
		t.Fatal("rollover did not flush")
	}
	want := models.MIntradayBar{Ticker: "AAPL", Timestamp: at("09:30:00"), Open: 100, High: 101, Low: 99, Close: 99, Volume: 1200, Source: models.SourceLive}
	if bar.Ticker != want.Ticker || !bar.Timestamp.Equal(want.Timestamp) || bar.Open != want.Open || bar.High != want.High ||
		bar.Low != want.Low || bar.Close != want.Close || bar.Volume != want.Volume || bar.Source != want.Source {
		t.Errorf("bar = %+v, want %+v", bar, want)
	}

	cur, ok := a.Current("AAPL")
	if !ok || !cur.Timestamp.Equal(at("09:31:00")) || cur.Open != 102 || cur.High != 102 || cur.Low != 102 {
		t.Errorf("current = %+v", cur)
	}
}

func TestMinuteBarTickersAreIndependent(t *testing.T) {
	a := NewMinuteBarAggregator()
	a.Observe("AAPL", 100, 1, at("09:30:00"))
	if _, ok := a.Observe("MSFT", 400, 1, at("09:31:00")); ok {
		t.Fatal("first MSFT sample flushed")
	}
	if a.Len() != 2 {
		t.Fatalf("len = %d", a.Len())
	}

	drained := a.Drain(at("16:00:00"))
	if len(drained) != 2 || drained[0].Ticker != "AAPL" || drained[1].Ticker != "MSFT" {
		t.Fatalf("drained = %+v", drained)
	}
	if a.Len() != 0 {
		t.Errorf("len after drain = %d", a.Len())
	}
}
