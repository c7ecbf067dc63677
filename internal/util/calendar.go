package util

import (
	"time"
)

// eastern is the exchange timezone for US equities. time.LoadLocation only
// fails when the tzdata is missing, which would make every trading-day
// computation wrong; panicking at init keeps that from passing silently.
var eastern = mustLoadEastern()

func mustLoadEastern() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		panic("loading America/New_York timezone: " + err.Error())
	}
	return loc
}

// Eastern returns the US exchange timezone.
func Eastern() *time.Location {
	return eastern
}

// NowEastern returns the current wall-clock time in the exchange timezone.
func NowEastern() time.Time {
	return time.Now().In(eastern)
}

// TodayEastern returns today's trading-day key (YYYY-MM-DD) in the exchange
// timezone.
func TodayEastern() string {
	return NowEastern().Format("2006-01-02")
}

// TradingCalendar provides market-hours awareness for the US equity session.
type TradingCalendar struct {
	openHour    int
	openMinute  int
	closeHour   int
	closeMinute int
}

// NewTradingCalendar creates a calendar for the regular session
// (9:30–16:00 ET).
func NewTradingCalendar() *TradingCalendar {
	return &TradingCalendar{openHour: 9, openMinute: 30, closeHour: 16, closeMinute: 0}
}

// IsMarketOpen reports whether t falls inside the regular weekday session.
// Exchange holidays are not modelled; the venue rejects orders on those days.
func (tc *TradingCalendar) IsMarketOpen(t time.Time) bool {
	et := t.In(eastern)
	if wd := et.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}

	minutes := et.Hour()*60 + et.Minute()
	open := tc.openHour*60 + tc.openMinute
	close := tc.closeHour*60 + tc.closeMinute
	return minutes >= open && minutes <= close
}

// NextOpen returns the next regular-session open at or after t.
func (tc *TradingCalendar) NextOpen(t time.Time) time.Time {
	et := t.In(eastern)
	open := time.Date(et.Year(), et.Month(), et.Day(), tc.openHour, tc.openMinute, 0, 0, eastern)
	for !open.After(et) || open.Weekday() == time.Saturday || open.Weekday() == time.Sunday {
		open = open.AddDate(0, 0, 1)
	}
	return open
}
