package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "calimport/internal/log"
	"calimport/internal/model"
	"calimport/internal/recurrence"
)

const (
	icsDateLayout     = "20060102"
	icsUTCLayout      = "20060102T150405Z"
	icsFloatingLayout = "20060102T150405"
)

var (
	// ErrEmptyBody is returned for an empty ICS payload.
	ErrEmptyBody = errors.New("ics: empty body")
	// ErrMissingUID marks a VEVENT without a UID.
	ErrMissingUID = errors.New("ics: missing UID")
	// ErrMissingStart marks a VEVENT without a usable DTSTART.
	ErrMissingStart = errors.New("ics: missing DTSTART")
)

// ParseError reports a single VEVENT that could not be read. The rest of
// the calendar is unaffected.
type ParseError struct {
	SourceID string
	// Index is the position of the VEVENT in the calendar.
	Index int
	UID   string
	Err   error
}

func (e *ParseError) Error() string {
	if e.UID != "" {
		return fmt.Sprintf("ics: vevent %d (%s): %v", e.Index, e.UID, e.Err)
	}
	return fmt.Sprintf("ics: vevent %d: %v", e.Index, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseResult holds the events read from one payload and the events that
// were skipped.
type ParseResult struct {
	Events []model.EventComponent
	Errors []*ParseError
}

// ParseICS parses a single ICS payload.
//
//   - TZID parameters are resolved through the underlying library;
//     floating times are read in time.Local.
//   - All-day events are detected from VALUE=DATE or a date-only value.
//   - RRULE is parsed but never expanded.
//
// Only an unreadable calendar is an error; bad VEVENTs are collected in
// ParseResult.Errors.
func ParseICS(src Source, body []byte) (ParseResult, error) {
	var res ParseResult
	if len(bytes.TrimSpace(body)) == 0 {
		return res, ErrEmptyBody
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "id", src.ID, "url", redactURL(src.URL))
		return res, fmt.Errorf("ics: parse calendar: %w", err)
	}

	for i, ve := range cal.Events() {
		ev, perr := parseVEvent(src, ve)
		if perr != nil {
			pe := &ParseError{SourceID: src.ID, Index: i, UID: ev.UID, Err: perr}
			res.Errors = append(res.Errors, pe)
			appLog.Warn("ics vevent skipped", "err", perr, "id", src.ID, "index", i, "uid", ev.UID)
			continue
		}
		res.Events = append(res.Events, ev)
	}

	appLog.Info("ics parse completed", "id", src.ID, "event_count", len(res.Events), "skipped", len(res.Errors))
	return res, nil
}

func parseVEvent(src Source, ve *ical.VEvent) (model.EventComponent, error) {
	out := model.EventComponent{SourceID: src.ID}

	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		out.UID = strings.TrimSpace(p.Value)
	}
	if out.UID == "" {
		return out, ErrMissingUID
	}

	if p := ve.GetProperty(ical.ComponentPropertySequence); p != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(p.Value)); err == nil {
			out.Sequence = n
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}

	startProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if startProp == nil {
		return out, ErrMissingStart
	}
	allDay := isDateValue(startProp)

	if allDay {
		start, err := ve.GetAllDayStartAt()
		if err != nil {
			return out, fmt.Errorf("%w: %v", ErrMissingStart, err)
		}
		out.Start = allDayTime(start)
		if end, err := ve.GetAllDayEndAt(); err == nil {
			out.End = allDayTime(end)
		} else {
			out.End = model.DateTime{Time: out.Start.Time.AddDate(0, 0, 1), AllDay: true}
		}
	} else {
		start, err := ve.GetStartAt()
		if err != nil {
			return out, fmt.Errorf("%w: %v", ErrMissingStart, err)
		}
		out.Start = model.DateTime{Time: start}
		if end, err := ve.GetEndAt(); err == nil {
			out.End = model.DateTime{Time: end}
		} else {
			out.End = out.Start
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		rule, err := recurrence.ParseRule(p.Value)
		if err != nil {
			return out, err
		}
		out.RRule = rule
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		loc := propLocation(p, out.Start.Location())
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(part, loc); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRecurrenceId); p != nil {
		if t, err := parseICSTime(p.Value, propLocation(p, out.Start.Location())); err == nil {
			out.RecurrenceID = &t
		}
	}

	return out, nil
}

// allDayTime re-anchors a date parsed by the library at midnight UTC, so
// the calendar date does not depend on time.Local.
func allDayTime(t time.Time) model.DateTime {
	return model.DateTime{Time: recurrence.DateOf(t).In(time.UTC), AllDay: true}
}

func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters[string(ical.ParameterValue)]; ok && len(vs) > 0 && strings.EqualFold(vs[0], string(ical.ValueDataTypeDate)) {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

func propLocation(p *ical.IANAProperty, fallback *time.Location) *time.Location {
	if tzs, ok := p.ICalParameters[string(ical.ParameterTzid)]; ok && len(tzs) == 1 {
		if loc, err := time.LoadLocation(tzs[0]); err == nil {
			return loc
		}
	}
	return fallback
}

// parseICSTime parses a DATE, UTC DATE-TIME or floating DATE-TIME value.
// Floating and date values are read in loc.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if loc == nil {
		loc = time.UTC
	}
	switch {
	case strings.HasSuffix(v, "Z"):
		return time.Parse(icsUTCLayout, v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation(icsFloatingLayout, v, loc)
	default:
		return time.ParseInLocation(icsDateLayout, v, loc)
	}
}
