package analysis

import (
	"sort"

	"market-data-server/src/analysis/core"
	"market-data-server/src/logger"
	"market-data-server/src/models"
)

// AnalysisFacade derives views from stored bars for the REST layer
type AnalysisFacade struct {
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewAnalysisFacade(log *logger.Logger) *AnalysisFacade {
	return &AnalysisFacade{Logger: log}
}

// -----------------------------------------------------------------------------

// IntradayBars resamples minute bars to interval
func (a *AnalysisFacade) IntradayBars(bars []models.MIntradayBar, interval string) ([]models.MIntradayBar, error) {
	window, err := ParseInterval(interval)
	if err != nil {
		return nil, err
	}
	return ResampleBars(bars, window), nil
}

// -----------------------------------------------------------------------------

// DailyChange compares the first and last close in bars. ok is false when
// there is no usable close.
func (a *AnalysisFacade) DailyChange(bars []models.MDailyBar) (models.MDailyChange, bool) {
	if len(bars) == 0 {
		return models.MDailyChange{}, false
	}

	sorted := make([]models.MDailyBar, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	end := sorted[len(sorted)-1].Close
	start := sorted[0].Close
	if start == 0 {
		return models.MDailyChange{EndPrice: end}, true
	}
	return models.MDailyChange{
		StartPrice: &start,
		EndPrice:   end,
		Change:     core.CalculateChangePercent(end, start),
	}, true
}
