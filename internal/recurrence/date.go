package recurrence

import (
	"fmt"
	"time"
)

const dateTextLayout = "2006-01-02"

// Date is a calendar date with no time of day and no zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// NewDate builds a normalized date; out-of-range days roll over the way
// time.Date does.
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool { return d == Date{} }

// AddDays returns the date n days after d (n may be negative).
func (d Date) AddDays(n int) Date {
	return NewDate(d.Year, d.Month, d.Day+n)
}

// In returns midnight of d in loc.
func (d Date) In(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// EndOfDay returns 23:59:59 of d in loc.
func (d Date) EndOfDay(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, 23, 59, 59, 0, loc)
}

func (d Date) Weekday() time.Weekday {
	return d.In(time.UTC).Weekday()
}

// Format formats d with a time layout.
func (d Date) Format(layout string) string {
	return d.In(time.UTC).Format(layout)
}

func (d Date) String() string {
	return d.Format(dateTextLayout)
}

// MarshalText encodes the date as YYYY-MM-DD.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText decodes a YYYY-MM-DD date.
func (d *Date) UnmarshalText(b []byte) error {
	t, err := time.Parse(dateTextLayout, string(b))
	if err != nil {
		return fmt.Errorf("recurrence: invalid date %q: %w", string(b), err)
	}
	*d = DateOf(t)
	return nil
}

// DateTime anchors a rule to an event start. Time carries the wall clock in
// the event's zone; AllDay marks DATE-valued starts, which have no zone.
type DateTime struct {
	Time   time.Time
	AllDay bool
}

// Location returns the event zone, UTC for all-day events.
func (dt DateTime) Location() *time.Location {
	if dt.AllDay || dt.Time.Location() == nil {
		return time.UTC
	}
	return dt.Time.Location()
}

// TZID returns the IANA zone name, or "" for all-day events.
func (dt DateTime) TZID() string {
	if dt.AllDay {
		return ""
	}
	return dt.Location().String()
}

// Date returns the local calendar date of the start.
func (dt DateTime) Date() Date {
	return DateOf(dt.Time)
}
