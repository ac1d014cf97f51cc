package model

import (
	"time"

	"calimport/internal/recurrence"
)

// DateTime is an event boundary: a wall clock in the event zone, or a date
// for all-day events.
type DateTime = recurrence.DateTime

// EventComponent is a single VEVENT as read from an ICS source, ready to be
// encrypted and imported.
type EventComponent struct {
	SourceID string // ICS source ID (config ICS ID, file name)
	UID      string // iCalendar UID
	Sequence int

	Summary     string
	Description string
	Location    string

	// Start / End in the event's own timezone.
	Start DateTime
	End   DateTime

	// RRule is nil for single events.
	RRule   *recurrence.Rule
	ExDates []time.Time

	// RecurrenceID is set on overrides of a single instance of a series.
	RecurrenceID *time.Time
}

// IsRecurring reports whether the component is the base of a series.
func (c EventComponent) IsRecurring() bool {
	return c.RRule != nil
}

// IsOverride reports whether the component replaces one instance of a
// series.
func (c EventComponent) IsOverride() bool {
	return c.RecurrenceID != nil
}

// Duration returns End - Start, zero when End is unset.
func (c EventComponent) Duration() time.Duration {
	if c.End.Time.IsZero() {
		return 0
	}
	return c.End.Time.Sub(c.Start.Time)
}

// DeleteFutureOccurrences returns a copy of c that ends before the
// occurrence starting at localExclusionStart. occurrence is the 1-based
// ordinal of that occurrence. When no occurrence would remain the copy has
// no rule at all.
func (c EventComponent) DeleteFutureOccurrences(localExclusionStart time.Time, occurrence int) (EventComponent, error) {
	rule, err := recurrence.TruncateBefore(c.RRule, c.Start, localExclusionStart, occurrence)
	if err != nil {
		return c, err
	}
	out := c
	out.RRule = rule
	out.ExDates = append([]time.Time(nil), c.ExDates...)
	return out, nil
}
