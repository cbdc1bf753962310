// Package fiscal computes fiscal-year boundaries from a configured
// (month, day) year-end. All functions are pure; invalid configuration
// is rejected by Validate at write time, never here.
package fiscal

import (
	"errors"
	"time"
)

var (
	ErrInvalidEndMonth = errors.New("invalid_fiscal_end_month")
	ErrInvalidEndDay   = errors.New("invalid_fiscal_end_day")
)

// Config is the fiscal year-end, e.g. {12, 31} for a calendar year or
// {3, 31} for an April-to-March year.
type Config struct {
	EndMonth int
	EndDay   int
}

func (c Config) Validate() error {
	if c.EndMonth < 1 || c.EndMonth > 12 {
		return ErrInvalidEndMonth
	}
	if c.EndDay < 1 || c.EndDay > 31 {
		return ErrInvalidEndDay
	}
	return nil
}

// YearEnd returns the fiscal year-end date in the given calendar year.
// A configured day past the end of the month clamps to the month's last
// valid day, so {2, 29} yields Feb 28 in non-leap years.
func (c Config) YearEnd(year int) time.Time {
	day := c.EndDay
	if last := lastDayOfMonth(year, time.Month(c.EndMonth)); day > last {
		day = last
	}
	return time.Date(year, time.Month(c.EndMonth), day, 0, 0, 0, 0, time.UTC)
}

// CurrentPeriod returns the fiscal period containing today. The year-end
// date itself belongs to the period it closes.
func (c Config) CurrentPeriod(today time.Time) (start, end time.Time) {
	d := dateOnly(today)
	end = c.YearEnd(d.Year())
	if d.After(end) {
		end = c.YearEnd(d.Year() + 1)
	}
	return c.YearEnd(end.Year() - 1).AddDate(0, 0, 1), end
}

// YearForDate returns the fiscal year (the calendar year the period ends
// in) that the given date falls into.
func (c Config) YearForDate(d time.Time) int {
	day := dateOnly(d)
	if day.After(c.YearEnd(day.Year())) {
		return day.Year() + 1
	}
	return day.Year()
}

// PeriodForYear returns the inclusive bounds of the fiscal year ending
// in calendar year y.
func (c Config) PeriodForYear(y int) (start, end time.Time) {
	return c.YearEnd(y - 1).AddDate(0, 0, 1), c.YearEnd(y)
}

func lastDayOfMonth(year int, month time.Month) int {
	// Day 0 of the next month normalizes to the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
