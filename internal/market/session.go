package market

import (
	"fmt"
	"time"
)

// Schedule is the regular session in US Eastern time
type Schedule struct {
	OpenHour  int
	OpenMin   int
	CloseHour int
	CloseMin  int
}

// DefaultSchedule is the NYSE/NASDAQ regular session, 9:30 to 16:00 ET
func DefaultSchedule() Schedule {
	return Schedule{
		OpenHour:  9,
		OpenMin:   30,
		CloseHour: 16,
		CloseMin:  0,
	}
}

// Status describes the session at a point in time
type Status struct {
	IsOpen     bool          `json:"is_open"`
	Reason     string        `json:"reason"` // open, pre-market, after-hours, weekend, holiday
	NowET      time.Time     `json:"now_et"`
	TimeToOpen time.Duration `json:"-"`
}

// ETLocation returns US Eastern time, falling back to a fixed EST offset when the
// zone database is unavailable
func ETLocation() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.FixedZone("EST", -5*60*60)
	}
	return loc
}

// StatusAt reports the session state at t
func StatusAt(t time.Time, schedule Schedule) Status {
	loc := ETLocation()
	now := t.In(loc)
	status := Status{NowET: now}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	openAt := func(d time.Time) time.Time {
		return time.Date(d.Year(), d.Month(), d.Day(), schedule.OpenHour, schedule.OpenMin, 0, 0, loc)
	}

	switch {
	case now.Weekday() == time.Saturday || now.Weekday() == time.Sunday:
		status.Reason = "weekend"
	case IsUSHoliday(now):
		status.Reason = "holiday"
	default:
		minutes := now.Hour()*60 + now.Minute()
		openMinutes := schedule.OpenHour*60 + schedule.OpenMin
		closeMinutes := schedule.CloseHour*60 + schedule.CloseMin
		switch {
		case minutes < openMinutes:
			status.Reason = "pre-market"
			status.TimeToOpen = openAt(today).Sub(now)
			return status
		case minutes >= closeMinutes:
			status.Reason = "after-hours"
		default:
			status.IsOpen = true
			status.Reason = "open"
			return status
		}
	}

	status.TimeToOpen = openAt(NextTradingDay(today)).Sub(now)
	return status
}

// Now reports the session state for the current time and default schedule
func Now() Status {
	return StatusAt(time.Now(), DefaultSchedule())
}

// NextTradingDay returns the first weekday after d that is not a listed holiday
func NextTradingDay(d time.Time) time.Time {
	next := d.AddDate(0, 0, 1)
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday || IsUSHoliday(next) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// FormatDuration renders d as "3h 5m" or "12m"
func FormatDuration(d time.Duration) string {
	if d < 0 {
		return "0m"
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

// NYSE full-day closures
var usHolidays = map[string]bool{
	"2025-01-01": true, // New Year's Day
	"2025-01-20": true, // MLK Day
	"2025-02-17": true, // Presidents Day
	"2025-04-18": true, // Good Friday
	"2025-05-26": true, // Memorial Day
	"2025-06-19": true, // Juneteenth
	"2025-07-04": true, // Independence Day
	"2025-09-01": true, // Labor Day
	"2025-11-27": true, // Thanksgiving
	"2025-12-25": true, // Christmas
	"2026-01-01": true,
	"2026-01-19": true,
	"2026-02-16": true,
	"2026-04-03": true,
	"2026-05-25": true,
	"2026-06-19": true,
	"2026-07-03": true, // Independence Day (observed)
	"2026-09-07": true,
	"2026-11-26": true,
	"2026-12-25": true,
	"2027-01-01": true,
	"2027-01-18": true,
	"2027-02-15": true,
	"2027-03-26": true,
	"2027-05-31": true,
	"2027-06-18": true, // Juneteenth (observed)
	"2027-07-05": true, // Independence Day (observed)
	"2027-09-06": true,
	"2027-11-25": true,
	"2027-12-24": true, // Christmas (observed)
}

// IsUSHoliday reports whether the calendar day of t is a listed market holiday
func IsUSHoliday(t time.Time) bool {
	return usHolidays[t.Format("2006-01-02")]
}
