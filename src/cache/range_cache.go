package cache

import (
	"context"
	"sort"
	"time"

	"market-data-server/src/logger"
	"market-data-server/src/models"
	"market-data-server/src/utils"
)

// -----------------------------------------------------------------------------

// EffectiveEnd caps end at the last finished business day before today
func EffectiveEnd(end, today time.Time) time.Time {
	end = utils.RollBackWeekend(utils.DateOnly(end))
	if prev := utils.PreviousBusinessDay(today); prev.Before(end) {
		return prev
	}
	return end
}

// -----------------------------------------------------------------------------

// PlanFetches returns the date ranges to request so that [start, end] is
// covered, given the dates already cached. At most two ranges come back,
// one before and one after the cached span; holes inside the span are
// left alone unless the span is too sparse to trust.
func PlanFetches(cached []time.Time, start, end, today time.Time) []models.MDateRange {
	start = utils.DateOnly(start)
	effEnd := EffectiveEnd(end, today)
	if effEnd.Before(start) {
		return nil
	}

	if len(cached) == 0 {
		return []models.MDateRange{{From: start, To: effEnd}}
	}

	cacheStart, cacheEnd := bounds(cached)

	if !start.Before(cacheStart) && !effEnd.After(cacheEnd) {
		if sparse(cached, start, effEnd, cacheStart, cacheEnd) {
			return []models.MDateRange{{From: start, To: effEnd}}
		}
		return nil
	}

	if sparse(cached, start, effEnd, cacheStart, cacheEnd) {
		return []models.MDateRange{{From: start, To: effEnd}}
	}

	var ranges []models.MDateRange
	if start.Before(cacheStart) {
		to := cacheStart.AddDate(0, 0, -1)
		if effEnd.Before(to) {
			to = effEnd
		}
		ranges = append(ranges, models.MDateRange{From: start, To: to})
	}
	if effEnd.After(cacheEnd) {
		from := utils.RollForwardWeekend(cacheEnd.AddDate(0, 0, 1))
		if start.After(from) {
			from = start
		}
		if !from.After(effEnd) {
			ranges = append(ranges, models.MDateRange{From: from, To: effEnd})
		}
	}
	return ranges
}

// -----------------------------------------------------------------------------

func bounds(dates []time.Time) (time.Time, time.Time) {
	lo, hi := utils.DateOnly(dates[0]), utils.DateOnly(dates[0])
	for _, d := range dates[1:] {
		d = utils.DateOnly(d)
		if d.Before(lo) {
			lo = d
		}
		if d.After(hi) {
			hi = d
		}
	}
	return lo, hi
}

// -----------------------------------------------------------------------------

// sparse applies the coverage heuristic to requests longer than
// CoverageMinDays: the cached rows overlapping the request must reach
// CoverageMinRatio of the business days in that overlap.
func sparse(cached []time.Time, start, effEnd, cacheStart, cacheEnd time.Time) bool {
	if effEnd.Sub(start) <= utils.CoverageMinDays*24*time.Hour {
		return false
	}

	from, to := start, effEnd
	if cacheStart.After(from) {
		from = cacheStart
	}
	if cacheEnd.Before(to) {
		to = cacheEnd
	}
	expected := utils.CountBusinessDays(from, to)
	if expected == 0 {
		return false
	}

	have := 0
	for _, d := range cached {
		d = utils.DateOnly(d)
		if !d.Before(from) && !d.After(to) {
			have++
		}
	}
	return float64(have) < utils.CoverageMinRatio*float64(expected)
}

// -----------------------------------------------------------------------------

// Merge unions existing and fresh bars by date. Fresh bars win on collision.
func Merge(existing, fresh []models.MDailyBar) []models.MDailyBar {
	byDate := make(map[time.Time]models.MDailyBar, len(existing)+len(fresh))
	for _, b := range existing {
		byDate[utils.DateOnly(b.Date)] = b
	}
	for _, b := range fresh {
		byDate[utils.DateOnly(b.Date)] = b
	}

	out := make([]models.MDailyBar, 0, len(byDate))
	for _, b := range byDate {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// -----------------------------------------------------------------------------
// RangeCache fills daily-bar gaps for one symbol from the upstream
// -----------------------------------------------------------------------------

// DailyBarStore is the part of interfaces.IPriceRepo the range cache needs
type DailyBarStore interface {
	GetDailyBars(ctx context.Context, ticker string, from, to time.Time) ([]models.MDailyBar, error)
	UpsertDailyBars(ctx context.Context, bars []models.MDailyBar) error
}

type DailyBarSource interface {
	GetEOD(ctx context.Context, symbol, from, to, period string) ([]models.MDailyBar, error)
}

type RangeCache struct {
	Repo   DailyBarStore
	Source DailyBarSource
	Logger *logger.Logger
	Now    func() time.Time
}

// -----------------------------------------------------------------------------

func NewRangeCache(repo DailyBarStore, source DailyBarSource, log *logger.Logger) *RangeCache {
	return &RangeCache{
		Repo:   repo,
		Source: source,
		Logger: log,
		Now:    func() time.Time { return time.Now().UTC() },
	}
}

// -----------------------------------------------------------------------------

// GetOrFill returns daily bars for symbol in [start, end], fetching only the
// planned gaps. fetched is the number of upstream rows stored.
func (c *RangeCache) GetOrFill(ctx context.Context, symbol string, start, end time.Time) (bars []models.MDailyBar, fetched int, err error) {
	ticker := models.BaseTicker(symbol)

	existing, err := c.Repo.GetDailyBars(ctx, ticker, time.Time{}, time.Time{})
	if err != nil {
		return nil, 0, err
	}
	dates := make([]time.Time, len(existing))
	for i, b := range existing {
		dates[i] = b.Date
	}

	ranges := PlanFetches(dates, start, end, c.Now())
	merged := existing
	for _, r := range ranges {
		c.Logger.Debug("Filling %s daily bars %s..%s", symbol, utils.FormatDate(r.From), utils.FormatDate(r.To))
		fresh, err := c.Source.GetEOD(ctx, symbol, utils.FormatDate(r.From), utils.FormatDate(r.To), models.PeriodDaily)
		if err != nil {
			return nil, fetched, err
		}
		for i := range fresh {
			fresh[i].Ticker = ticker
		}
		if err := c.Repo.UpsertDailyBars(ctx, fresh); err != nil {
			return nil, fetched, err
		}
		fetched += len(fresh)
		merged = Merge(merged, fresh)
	}

	from, to := utils.DateOnly(start), utils.DateOnly(end)
	out := make([]models.MDailyBar, 0, len(merged))
	for _, b := range merged {
		d := utils.DateOnly(b.Date)
		if !d.Before(from) && !d.After(to) {
			out = append(out, b)
		}
	}
	return out, fetched, nil
}
