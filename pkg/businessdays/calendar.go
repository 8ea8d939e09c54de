// Package businessdays implements deadline arithmetic over Monday–Friday
// working days minus a configured holiday set.
package businessdays

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrInvalidArgument is returned when a business-day offset is not positive.
var ErrInvalidArgument = errors.New("businessdays: invalid argument")

const dateLayout = "2006-01-02"

// Date is a civil calendar date without a time or location.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the civil date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(value string) (Date, error) {
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", value, err)
	}
	return DateOf(t), nil
}

// ParseDates parses a list of YYYY-MM-DD strings, skipping blanks.
func ParseDates(values []string) ([]Date, error) {
	out := make([]Date, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		d, err := ParseDate(v)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) before(o Date) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

// Calendar is an immutable holiday set. The zero value has no holidays.
type Calendar struct {
	holidays map[Date]struct{}
}

// New builds a calendar that treats the given dates as non-working days.
func New(holidays ...Date) *Calendar {
	set := make(map[Date]struct{}, len(holidays))
	for _, h := range holidays {
		set[h] = struct{}{}
	}
	return &Calendar{holidays: set}
}

// Holidays returns the configured holidays in ascending order.
func (c *Calendar) Holidays() []Date {
	if c == nil {
		return nil
	}
	out := make([]Date, 0, len(c.holidays))
	for d := range c.holidays {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].before(out[j]) })
	return out
}

// IsHoliday reports whether t falls on a configured holiday.
func (c *Calendar) IsHoliday(t time.Time) bool {
	if c == nil || len(c.holidays) == 0 {
		return false
	}
	_, ok := c.holidays[DateOf(t)]
	return ok
}

// IsBusinessDay reports whether t falls on a weekday that is not a holiday.
func (c *Calendar) IsBusinessDay(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !c.IsHoliday(t)
}

// AddBusinessDays shifts start forward by n business days, counting from the
// day after start. The time-of-day and location of start are preserved.
func (c *Calendar) AddBusinessDays(start time.Time, n int) (time.Time, error) {
	if n <= 0 {
		return time.Time{}, fmt.Errorf("%w: business days must be positive, got %d", ErrInvalidArgument, n)
	}
	current := start
	for remaining := n; remaining > 0; {
		current = current.AddDate(0, 0, 1)
		if c.IsBusinessDay(current) {
			remaining--
		}
	}
	return current, nil
}

// BusinessDaysUntil counts business dates after from's date up to and
// including deadline's date, both read in from's location. Time of day is
// ignored, so a deadline later the same day leaves 0. It returns -1 when the
// deadline is already behind from.
func (c *Calendar) BusinessDaysUntil(from, deadline time.Time) int {
	if deadline.Before(from) {
		return -1
	}
	loc := from.Location()
	civil := func(t time.Time) time.Time {
		y, m, d := t.In(loc).Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	}
	days := 0
	end := civil(deadline)
	for current := civil(from); current.Before(end); {
		current = current.AddDate(0, 0, 1)
		if c.IsBusinessDay(current) {
			days++
		}
	}
	return days
}

// AddBusinessDays is the calendar-free form of Calendar.AddBusinessDays.
func AddBusinessDays(start time.Time, n int, holidays []Date) (time.Time, error) {
	return New(holidays...).AddBusinessDays(start, n)
}
