package ics

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"calimport/internal/model"
)

const productService = "calimport"

// now is swapped in tests.
var now = time.Now

// Serialize renders c as a VCALENDAR holding a single VEVENT. This is the
// plaintext handed to the encrypter.
func Serialize(c model.EventComponent) (string, error) {
	if c.UID == "" {
		return "", ErrMissingUID
	}
	if c.Start.Time.IsZero() {
		return "", ErrMissingStart
	}

	cal := ical.NewCalendarFor(productService)
	ev := cal.AddEvent(c.UID)
	ev.SetDtStampTime(now())
	if c.Sequence > 0 {
		ev.SetSequence(c.Sequence)
	}
	if c.Summary != "" {
		ev.SetSummary(c.Summary)
	}
	if c.Description != "" {
		ev.SetDescription(c.Description)
	}
	if c.Location != "" {
		ev.SetLocation(c.Location)
	}

	setTime(ev, ical.ComponentPropertyDtStart, c.Start, c.Start.Time)
	if !c.End.Time.IsZero() {
		setTime(ev, ical.ComponentPropertyDtEnd, c.End, c.End.Time)
	}

	if c.RRule != nil {
		ev.AddRrule(c.RRule.String())
	}
	for _, ex := range c.ExDates {
		value, params := formatTime(c.Start, ex)
		ev.AddExdate(value, params...)
	}
	if c.RecurrenceID != nil {
		setTime(ev, ical.ComponentPropertyRecurrenceId, c.Start, *c.RecurrenceID)
	}

	var b strings.Builder
	if err := cal.SerializeTo(&b); err != nil {
		return "", fmt.Errorf("ics: serialize %q: %w", c.UID, err)
	}
	return b.String(), nil
}

func setTime(ev *ical.VEvent, prop ical.ComponentProperty, anchor model.DateTime, t time.Time) {
	value, params := formatTime(anchor, t)
	ev.SetProperty(prop, value, params...)
}

// formatTime renders t in the value form anchor implies: a DATE for
// all-day events, a TZID wall clock for zoned events, UTC otherwise.
func formatTime(anchor model.DateTime, t time.Time) (string, []ical.PropertyParameter) {
	if anchor.AllDay {
		return t.Format(icsDateLayout), []ical.PropertyParameter{ical.WithValue(string(ical.ValueDataTypeDate))}
	}
	tzid := anchor.TZID()
	if tzid == "" || tzid == "UTC" || tzid == "Local" {
		return t.UTC().Format(icsUTCLayout), nil
	}
	return t.In(anchor.Location()).Format(icsFloatingLayout), []ical.PropertyParameter{ical.WithTZID(tzid)}
}
