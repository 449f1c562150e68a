package utils

import (
	"strings"
	"sync"
	"time"

	"market-data-server/src/logger"
)

// MarketScheduler answers market-hours questions per exchange, caching calendars.
type MarketScheduler struct {
	Calendars map[string]*TradingCalendar
	Logger    *logger.Logger
	mu        sync.RWMutex
}

// -----------------------------------------------------------------------------

func NewMarketScheduler(l *logger.Logger) *MarketScheduler {
	return &MarketScheduler{
		Calendars: make(map[string]*TradingCalendar),
		Logger:    l,
	}
}

// -----------------------------------------------------------------------------

func (ms *MarketScheduler) calendarFor(exchange string) *TradingCalendar {
	exchange = strings.ToUpper(exchange)
	if exchange == "" {
		exchange = "US"
	}

	ms.mu.RLock()
	cal, ok := ms.Calendars[exchange]
	ms.mu.RUnlock()
	if ok {
		return cal
	}

	cal = GetCalendar(exchange)
	ms.mu.Lock()
	ms.Calendars[exchange] = cal
	ms.mu.Unlock()

	if cal.Fallback {
		ms.Logger.Debug("MarketScheduler: using fixed-offset hours for %s", exchange)
	}
	return cal
}

// -----------------------------------------------------------------------------

func (ms *MarketScheduler) IsMarketOpen(exchange string, now time.Time) bool {
	return ms.calendarFor(exchange).IsOpenOnMinute(now)
}

// -----------------------------------------------------------------------------

// AnyMarketOpen checks if ANY of the given markets is currently open
func (ms *MarketScheduler) AnyMarketOpen(exchanges []string, now time.Time) bool {
	seen := make(map[string]bool)
	for _, ex := range exchanges {
		ex = strings.ToUpper(ex)
		if seen[ex] {
			continue
		}
		seen[ex] = true
		if ms.IsMarketOpen(ex, now) {
			return true
		}
	}
	return false
}
