package recurrence

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	appLog "calimport/internal/log"
)

const (
	defaultMaxOccurrences = 5000
)

// ErrNotAnOccurrence is returned by OccurrenceNumber when the given start is
// not produced by the rule.
var ErrNotAnOccurrence = errors.New("recurrence: time is not an occurrence of the series")

var ruleWeekdays = map[string]rrule.Weekday{
	"MO": rrule.MO,
	"TU": rrule.TU,
	"WE": rrule.WE,
	"TH": rrule.TH,
	"FR": rrule.FR,
	"SA": rrule.SA,
	"SU": rrule.SU,
}

// ExpandConfig controls how a series is expanded.
type ExpandConfig struct {
	// RangeStart / RangeEnd define the inclusive time window for occurrences.
	RangeStart time.Time
	RangeEnd   time.Time

	// ExDates are removed from the expansion.
	ExDates []time.Time

	// MaxOccurrences is a safety cap for unbounded series. If zero,
	// defaultMaxOccurrences is used.
	MaxOccurrences int
}

// ExpandResult wraps the expanded occurrence starts.
type ExpandResult struct {
	Occurrences []time.Time
	// Truncated is set when the cap cut the expansion short.
	Truncated bool
}

// Expand lists the occurrence starts of rule inside the configured window.
// Occurrences are returned in the event zone.
func Expand(rule *Rule, start DateTime, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if rule == nil {
		return result, ErrNotRecurring
	}
	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.MaxOccurrences <= 0 {
		cfg.MaxOccurrences = defaultMaxOccurrences
	}

	r, err := toRRule(rule, start)
	if err != nil {
		return result, err
	}

	var set rrule.Set
	set.RRule(r)
	loc := start.Location()
	for _, ex := range cfg.ExDates {
		set.ExDate(ex.In(loc))
	}

	occ := set.Between(cfg.RangeStart.In(loc), cfg.RangeEnd.In(loc), true)
	if len(occ) > cfg.MaxOccurrences {
		occ = occ[:cfg.MaxOccurrences]
		result.Truncated = true
		appLog.Warn("expand: truncated occurrences due to cap",
			"rrule", rule.String(),
			"cap", cfg.MaxOccurrences,
		)
	}
	result.Occurrences = occ
	return result, nil
}

// OccurrenceNumber returns the 1-based ordinal of the occurrence starting at
// occurrenceStart. Excluded dates still count, since COUNT bounds the rule
// and not the exception set.
func OccurrenceNumber(rule *Rule, start DateTime, occurrenceStart time.Time) (int, error) {
	if rule == nil {
		return 0, ErrNotRecurring
	}
	r, err := toRRule(rule, start)
	if err != nil {
		return 0, err
	}

	next := r.Iterator()
	for n := 1; n <= defaultMaxOccurrences; n++ {
		t, ok := next()
		if !ok {
			break
		}
		switch {
		case t.Equal(occurrenceStart):
			return n, nil
		case t.After(occurrenceStart):
			return 0, ErrNotAnOccurrence
		}
	}
	return 0, ErrNotAnOccurrence
}

// toRRule builds the rrule-go representation of rule anchored at start.
// All-day series are expanded at midnight UTC.
func toRRule(rule *Rule, start DateTime) (*rrule.RRule, error) {
	freq, err := rrule.StrToFreq(string(rule.Freq))
	if err != nil {
		return nil, fmt.Errorf("expand: %w", err)
	}

	dtstart := start.Time
	if start.AllDay {
		dtstart = start.Date().In(time.UTC)
	}

	opt := rrule.ROption{
		Freq:       freq,
		Dtstart:    dtstart,
		Interval:   rule.Interval,
		Bymonth:    rule.ByMonth,
		Bymonthday: rule.ByMonthDay,
	}
	switch rule.End.Type {
	case EndAfterNTimes:
		opt.Count = rule.End.Count
	case EndUntil:
		if rule.End.Until.IsUTC() {
			opt.Until = rule.End.Until.Instant()
		} else {
			opt.Until = rule.End.Until.Date().EndOfDay(start.Location())
		}
	}
	if rule.BySetPos != 0 {
		opt.Bysetpos = []int{rule.BySetPos}
	}
	for _, code := range rule.ByDay {
		if wd, ok := parseNthWeekday(code); ok {
			opt.Byweekday = append(opt.Byweekday, wd)
		}
	}
	if wd, ok := ruleWeekdays[rule.WeekStart]; ok {
		opt.Wkst = wd
	}

	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("expand: %w", err)
	}
	return r, nil
}

// parseNthWeekday reads "MO", "2TU", "+1WE" or "-1FR".
func parseNthWeekday(code string) (rrule.Weekday, bool) {
	if len(code) < 2 {
		return rrule.Weekday{}, false
	}
	wd, ok := ruleWeekdays[code[len(code)-2:]]
	if !ok {
		return rrule.Weekday{}, false
	}
	prefix := strings.TrimPrefix(code[:len(code)-2], "+")
	if prefix == "" {
		return wd, true
	}
	n, err := strconv.Atoi(prefix)
	if err != nil || n == 0 {
		return rrule.Weekday{}, false
	}
	return wd.Nth(n), true
}
