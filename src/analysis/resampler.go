package analysis

import (
	"fmt"
	"sort"
	"time"

	"market-data-server/src/analysis/core"
	"market-data-server/src/models"
)

// Intervals the intraday endpoint accepts
var intervals = map[string]time.Duration{
	"1m":  time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
}

// ParseInterval maps "5m" style names to durations
func ParseInterval(interval string) (time.Duration, error) {
	if d, ok := intervals[interval]; ok {
		return d, nil
	}
	return 0, fmt.Errorf("unsupported interval %q", interval)
}

// -----------------------------------------------------------------------------

// CalculateWindowBoundaries aligns ts (unix seconds) to its window
func CalculateWindowBoundaries(ts int64, window int64) (int64, int64) {
	start := ts - (ts % window)
	return start, start + window
}

// -----------------------------------------------------------------------------

// minuteVolumes returns the traded volume of each sorted bar. Reconciled bars
// already carry per-minute volume; live bars carry the cumulative day volume
// and are differenced against the running day total.
func minuteVolumes(sorted []models.MIntradayBar) []int64 {
	out := make([]int64, len(sorted))
	totals := make(map[string]int64)
	for i, b := range sorted {
		day := b.Ticker + "|" + b.Timestamp.UTC().Format("2006-01-02")
		total := totals[day]
		if b.Source != models.SourceLive {
			out[i] = b.Volume
			totals[day] = total + b.Volume
			continue
		}
		if b.Volume > total {
			out[i] = b.Volume - total
			totals[day] = b.Volume
		}
	}
	return out
}

// ResampleBars groups minute bars into aligned windows of the given size.
// A window is marked live when any bar in it is live, otherwise it keeps the
// source of its first bar.
// Window volume is the volume traded inside the window, live bars included.
func ResampleBars(bars []models.MIntradayBar, window time.Duration) []models.MIntradayBar {
	if len(bars) == 0 {
		return []models.MIntradayBar{}
	}

	sorted := make([]models.MIntradayBar, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	if window <= time.Minute {
		return sorted
	}

	seconds := int64(window / time.Second)
	var out []models.MIntradayBar
	var parts []core.OHLCV
	var cur models.MIntradayBar
	var curStart int64 = -1

	flush := func() {
		if len(parts) == 0 {
			return
		}
		c := core.Combine(parts)
		cur.Open, cur.High, cur.Low, cur.Close, cur.Volume = c.Open, c.High, c.Low, c.Close, c.Volume
		out = append(out, cur)
		parts = parts[:0]
	}

	volumes := minuteVolumes(sorted)
	for i, b := range sorted {
		start, _ := CalculateWindowBoundaries(b.Timestamp.Unix(), seconds)
		if start != curStart {
			flush()
			curStart = start
			cur = models.MIntradayBar{
				Ticker:    b.Ticker,
				Timestamp: time.Unix(start, 0).UTC(),
				Source:    b.Source,
			}
		}
		if b.Source == models.SourceLive {
			cur.Source = models.SourceLive
		}
		if b.FetchedAt.After(cur.FetchedAt) {
			cur.FetchedAt = b.FetchedAt
		}
		parts = append(parts, core.OHLCV{Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: volumes[i]})
	}
	flush()
	return out
}
