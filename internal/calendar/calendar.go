// Package calendar maps stored instants to logical dates: the calendar day in the school's
// configured time zone.
//
// Instants are stored in UTC truncated to whole seconds so every stored value has the same
// textual width and range predicates compare correctly on SQLite as well as Postgres.
package calendar

import (
	"fmt"
	"time"
)

const DateLayout = "2006-01-02"

// Clock returns the current instant.
type Clock func() time.Time

// SystemClock is the production clock.
func SystemClock() time.Time {
	return Normalize(time.Now())
}

// Normalize converts t to the stored representation.
func Normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

type Calendar struct {
	loc   *time.Location
	clock Clock
}

func New(loc *time.Location, clock Clock) Calendar {
	if loc == nil {
		loc = time.Local
	}
	if clock == nil {
		clock = SystemClock
	}
	return Calendar{loc: loc, clock: clock}
}

func (c Calendar) Location() *time.Location {
	return c.loc
}

// Now returns the current instant, normalized.
func (c Calendar) Now() time.Time {
	return Normalize(c.clock())
}

// DateOf returns the logical date of t.
func (c Calendar) DateOf(t time.Time) string {
	return t.In(c.loc).Format(DateLayout)
}

func (c Calendar) Today() string {
	return c.DateOf(c.Now())
}

// Midnight returns the first instant of date's logical day, in UTC.
func (c Calendar) Midnight(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.loc).UTC()
}

// DayRange returns [start, end) in UTC covering the logical day of t.
func (c Calendar) DayRange(t time.Time) (time.Time, time.Time) {
	local := t.In(c.loc)
	start := c.Midnight(local)
	end := c.Midnight(local.AddDate(0, 0, 1))
	return start, end
}

// Range returns [start of from, start of the day after to) in UTC. Either bound may be zero.
func (c Calendar) Range(from, to time.Time) (time.Time, time.Time) {
	var start, end time.Time
	if !from.IsZero() {
		start = c.Midnight(from)
	}
	if !to.IsZero() {
		end = c.Midnight(to.AddDate(0, 0, 1))
	}
	return start, end
}

// ParseDate parses a YYYY-MM-DD logical date. The result carries the date fields only.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

// WeekLabel formats the week of a logical date as "YYYY-WW", with weeks starting on Monday and
// days before the year's first Monday in week 00.
func WeekLabel(date time.Time) string {
	yday := date.YearDay() - 1
	wdayMon := (int(date.Weekday()) + 6) % 7
	week := (yday + 7 - wdayMon) / 7
	return fmt.Sprintf("%04d-%02d", date.Year(), week)
}
