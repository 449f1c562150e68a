package utils

import (
	"strings"
	"time"

	"github.com/scmhub/calendar"
)

// TradingCalendar calculates trading sessions using scmhub/calendar, with
// the fixed-offset exchange table as fallback.
type TradingCalendar struct {
	Exchange string
	Calendar *calendar.Calendar
	Fallback bool
	Timezone *time.Location
	Hours    ExchangeHours
}

// micByExchange maps upstream exchange codes to ISO 10383 MICs known to scmhub/calendar
var micByExchange = map[string]string{
	"US":  "xnys",
	"LSE": "xlon",
	"PA":  "xpar",
	"F":   "xfra",
	"AS":  "xams",
	"SW":  "xswx",
	"TO":  "xtse",
	"HK":  "xhkg",
	"TSE": "xtks",
	"AU":  "xasx",
	"KO":  "xkrx",
	"SHG": "xshg",
	"SHE": "xshe",
}

// -----------------------------------------------------------------------------

func GetCalendar(exchange string) *TradingCalendar {
	exchange = strings.ToUpper(exchange)
	if exchange == "" {
		exchange = "US"
	}
	hours, _ := LookupExchangeHours(exchange)

	tc := &TradingCalendar{Exchange: exchange, Hours: hours}

	mic, ok := micByExchange[exchange]
	if !ok {
		tc.Fallback = true
		tc.Timezone = time.FixedZone(exchange, hours.UTCOffsetMinutes*60)
		return tc
	}

	cal := calendar.GetCalendar(mic)
	if cal == nil {
		tc.Fallback = true
		tc.Timezone = time.FixedZone(exchange, hours.UTCOffsetMinutes*60)
		return tc
	}

	tc.Calendar = cal
	tc.Timezone = cal.Loc
	return tc
}

// -----------------------------------------------------------------------------

func (tc *TradingCalendar) IsTradingDay(date time.Time) bool {
	// Normalize to timezone if available
	if tc.Timezone != nil {
		date = date.In(tc.Timezone)
	}

	if tc.Fallback {
		return !IsWeekend(date)
	}
	// Library handles IsHoliday / IsBusinessDay
	return tc.Calendar.IsBusinessDay(date)
}

// -----------------------------------------------------------------------------

// IsOpenOnMinute checks if the market is open at a specific minute.
func (tc *TradingCalendar) IsOpenOnMinute(t time.Time) bool {
	if tc.Fallback {
		return tc.Hours.IsOpenAt(t)
	}

	if !tc.Calendar.IsOpen(t.In(tc.Timezone)) {
		return false
	}

	// Lunch breaks come from the table
	if tc.Hours.LunchEnd > tc.Hours.LunchStart {
		local := t.In(tc.Timezone)
		minute := local.Hour()*60 + local.Minute()
		if minute >= tc.Hours.LunchStart && minute < tc.Hours.LunchEnd {
			return false
		}
	}
	return true
}
