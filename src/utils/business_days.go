package utils

import "time"

// -----------------------------------------------------------------------------

// DateOnly truncates t to midnight UTC of its UTC calendar date
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// -----------------------------------------------------------------------------

func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// -----------------------------------------------------------------------------

// RollBackWeekend moves a Saturday or Sunday back to the preceding Friday
func RollBackWeekend(t time.Time) time.Time {
	for IsWeekend(t) {
		t = t.AddDate(0, 0, -1)
	}
	return t
}

// -----------------------------------------------------------------------------

// RollForwardWeekend moves a Saturday or Sunday forward to the next Monday
func RollForwardWeekend(t time.Time) time.Time {
	for IsWeekend(t) {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

// -----------------------------------------------------------------------------

// PreviousBusinessDay returns the last weekday strictly before the date of t
func PreviousBusinessDay(t time.Time) time.Time {
	return RollBackWeekend(DateOnly(t).AddDate(0, 0, -1))
}

// -----------------------------------------------------------------------------

// CountBusinessDays counts weekdays in [from, to], inclusive
func CountBusinessDays(from, to time.Time) int {
	from, to = DateOnly(from), DateOnly(to)
	if to.Before(from) {
		return 0
	}
	n := 0
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if !IsWeekend(d) {
			n++
		}
	}
	return n
}

// -----------------------------------------------------------------------------

// FormatDate renders a date as YYYY-MM-DD
func FormatDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// -----------------------------------------------------------------------------

func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", s, time.UTC)
}
