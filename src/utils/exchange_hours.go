package utils

import (
	"strings"
	"time"
)

// ExchangeHours is a fixed-offset trading session. Minutes are local minutes since midnight.
type ExchangeHours struct {
	UTCOffsetMinutes int
	Open             int
	Close            int
	LunchStart       int
	LunchEnd         int
}

func hm(h, m int) int { return h*60 + m }

// -----------------------------------------------------------------------------

// exchangeHours keyed by upstream exchange code. Offsets ignore daylight saving.
var exchangeHours = map[string]ExchangeHours{
	"US":  {UTCOffsetMinutes: -300, Open: hm(9, 30), Close: hm(16, 0)},
	"KO":  {UTCOffsetMinutes: 540, Open: hm(9, 0), Close: hm(15, 30)},
	"AS":  {UTCOffsetMinutes: 60, Open: hm(9, 0), Close: hm(17, 30)},
	"PA":  {UTCOffsetMinutes: 60, Open: hm(9, 0), Close: hm(17, 30)},
	"F":   {UTCOffsetMinutes: 60, Open: hm(9, 0), Close: hm(17, 30)},
	"SW":  {UTCOffsetMinutes: 60, Open: hm(9, 0), Close: hm(17, 30)},
	"LSE": {UTCOffsetMinutes: 0, Open: hm(8, 0), Close: hm(16, 30)},
	"HK":  {UTCOffsetMinutes: 480, Open: hm(9, 30), Close: hm(16, 0), LunchStart: hm(12, 0), LunchEnd: hm(13, 0)},
	"TSE": {UTCOffsetMinutes: 540, Open: hm(9, 0), Close: hm(15, 0), LunchStart: hm(11, 30), LunchEnd: hm(12, 30)},
	"SHG": {UTCOffsetMinutes: 480, Open: hm(9, 30), Close: hm(15, 0), LunchStart: hm(11, 30), LunchEnd: hm(13, 0)},
	"SHE": {UTCOffsetMinutes: 480, Open: hm(9, 30), Close: hm(15, 0), LunchStart: hm(11, 30), LunchEnd: hm(13, 0)},
	"NSE": {UTCOffsetMinutes: 330, Open: hm(9, 15), Close: hm(15, 30)},
	"BSE": {UTCOffsetMinutes: 330, Open: hm(9, 15), Close: hm(15, 30)},
	"AU":  {UTCOffsetMinutes: 660, Open: hm(10, 0), Close: hm(16, 0)},
	"TO":  {UTCOffsetMinutes: -300, Open: hm(9, 30), Close: hm(16, 0)},
	"SA":  {UTCOffsetMinutes: -180, Open: hm(10, 0), Close: hm(17, 0)},
	"SN":  {UTCOffsetMinutes: -240, Open: hm(9, 30), Close: hm(16, 0)},
}

// -----------------------------------------------------------------------------

// LookupExchangeHours returns the session for an exchange code; unknown codes use US hours
func LookupExchangeHours(exchange string) (ExchangeHours, bool) {
	h, ok := exchangeHours[strings.ToUpper(exchange)]
	if !ok {
		return exchangeHours["US"], false
	}
	return h, true
}

// -----------------------------------------------------------------------------

// IsOpenAt evaluates the table session at t
func (h ExchangeHours) IsOpenAt(t time.Time) bool {
	local := t.UTC().Add(time.Duration(h.UTCOffsetMinutes) * time.Minute)
	if IsWeekend(local) {
		return false
	}

	minute := local.Hour()*60 + local.Minute()
	if minute < h.Open || minute >= h.Close {
		return false
	}
	if h.LunchEnd > h.LunchStart && minute >= h.LunchStart && minute < h.LunchEnd {
		return false
	}
	return true
}
