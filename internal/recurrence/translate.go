package recurrence

import "time"

// weekdayCodes is indexed by time.Weekday.
var weekdayCodes = [7]string{"SU", "MO", "TU", "WE", "TH", "FR", "SA"}

// WeekdayCode returns the two-letter rule code of d.
func WeekdayCode(d time.Weekday) string {
	return weekdayCodes[d%7]
}

// ParseWeekdayCode maps a bare two-letter code to a weekday. Ordinal
// prefixed codes such as "1MO" are not bare codes and do not map.
func ParseWeekdayCode(code string) (time.Weekday, bool) {
	for i, c := range weekdayCodes {
		if c == code {
			return time.Weekday(i), true
		}
	}
	return 0, false
}

// Defaults carries the values the translator falls back to when a rule does
// not say otherwise.
type Defaults struct {
	// BaseFrequency backs the base frequency of a non-recurring event, the
	// value a form starts from when the user switches to a custom rule.
	BaseFrequency Frequency
}

// DefaultDefaults returns the stock translator defaults.
func DefaultDefaults() Defaults {
	return Defaults{BaseFrequency: Weekly}
}

// Option customizes a single translation call.
type Option func(*Defaults)

// WithDefaults replaces the translator defaults wholesale.
func WithDefaults(d Defaults) Option {
	return func(dst *Defaults) { *dst = d }
}

// WithBaseFrequency overrides the fallback base frequency. Values other than
// the four rule cadences are ignored.
func WithBaseFrequency(f Frequency) Option {
	return func(dst *Defaults) {
		if f.isCadence() {
			dst.BaseFrequency = f
		}
	}
}

func resolveDefaults(opts []Option) Defaults {
	d := DefaultDefaults()
	for _, opt := range opts {
		opt(&d)
	}
	if !d.BaseFrequency.isCadence() {
		d.BaseFrequency = Weekly
	}
	return d
}

// RuleToModel derives the editor model of rule for an event starting at
// start. A nil rule describes a single occurrence. start supplies the
// fallback weekday and the zone UNTIL instants are resolved in.
//
// The result is always fully populated and the call never fails: malformed
// optional parts fall back to their defaults.
func RuleToModel(rule *Rule, start time.Time, opts ...Option) FrequencyModel {
	d := resolveDefaults(opts)

	m := FrequencyModel{
		Type:      Once,
		Frequency: d.BaseFrequency,
		Interval:  1,
		Daily:     DailyModel{Type: DailyAllDays},
		Weekly:    WeeklyModel{Type: WeeklyOnDays, Days: weeklyDays(nil, start)},
		Monthly:   MonthlyModel{Type: MonthlyOnMonthDay},
		Yearly:    YearlyModel{Type: YearlyByMonthOnMonthDay},
		Ends:      EndsModel{Type: EndNever},
	}
	if rule == nil {
		return m
	}

	if rule.Freq.isCadence() {
		m.Frequency = rule.Freq
		m.Type = rule.Freq
	}
	if isCustom(rule) {
		m.Type = Custom
	}
	if rule.Interval > 1 {
		m.Interval = rule.Interval
	}

	switch {
	case rule.HasCount() && rule.End.Count >= 1:
		m.Ends = EndsModel{Type: EndAfterNTimes, Count: rule.End.Count}
	case rule.HasUntil():
		until := rule.End.Until.LocalDate(start.Location())
		m.Ends = EndsModel{Type: EndUntil, Until: &until}
	}

	m.Monthly.Type = monthlyType(rule)
	m.Weekly.Days = weeklyDays(rule.ByDay, start)

	return m
}

func isCustom(rule *Rule) bool {
	return rule.HasCount() ||
		rule.HasUntil() ||
		rule.Interval > 1 ||
		rule.BySetPos != 0 ||
		len(rule.ByDay) > 0 ||
		len(rule.ByMonthDay) > 0 ||
		len(rule.ByMonth) > 0
}

// monthlyType needs both an ordinal and a weekday to select an nth variant.
// A zero ordinal is not a valid position and reads as absent.
func monthlyType(rule *Rule) MonthlyType {
	if rule.BySetPos == 0 || len(rule.ByDay) == 0 {
		return MonthlyOnMonthDay
	}
	if rule.BySetPos > 0 {
		return MonthlyOnNthDay
	}
	return MonthlyOnMinusNthDay
}

// weeklyDays maps codes in order. One unknown code discards the whole list
// in favour of the start weekday.
func weeklyDays(codes []string, start time.Time) []time.Weekday {
	fallback := []time.Weekday{start.Weekday()}
	if len(codes) == 0 {
		return fallback
	}
	days := make([]time.Weekday, 0, len(codes))
	for _, code := range codes {
		wd, ok := ParseWeekdayCode(code)
		if !ok {
			return fallback
		}
		days = append(days, wd)
	}
	return days
}

// ModelToRule builds the rule an editor model describes for an event
// starting at start. A single-occurrence model yields nil.
func ModelToRule(m FrequencyModel, start DateTime) *Rule {
	switch m.Type {
	case Daily, Weekly, Monthly, Yearly:
		return &Rule{Freq: m.Type, End: EndsNever()}
	case Custom:
	default:
		return nil
	}

	freq := m.Frequency
	if !freq.isCadence() {
		freq = Weekly
	}
	rule := &Rule{Freq: freq, End: EndsNever()}
	if m.Interval > 1 {
		rule.Interval = m.Interval
	}

	local := start.Time
	switch freq {
	case Weekly:
		rule.ByDay = dayCodes(m.Weekly.Days, local.Weekday())
	case Monthly:
		switch m.Monthly.Type {
		case MonthlyOnNthDay:
			rule.ByDay = []string{WeekdayCode(local.Weekday())}
			rule.BySetPos = NthWeekOfMonth(local)
		case MonthlyOnMinusNthDay:
			rule.ByDay = []string{WeekdayCode(local.Weekday())}
			rule.BySetPos = NegativeNthWeekOfMonth(local)
		}
	}

	switch m.Ends.Type {
	case EndAfterNTimes:
		// A missing count only exists as a form placeholder; it is never
		// written out.
		if m.Ends.Count >= 1 {
			rule.End = EndsAfter(m.Ends.Count)
		}
	case EndUntil:
		if m.Ends.Until != nil {
			rule.End = EndsOn(UntilFor(*m.Ends.Until, start))
		}
	}

	return rule
}

// dayCodes deduplicates days keeping first appearance order.
func dayCodes(days []time.Weekday, fallback time.Weekday) []string {
	if len(days) == 0 {
		return []string{WeekdayCode(fallback)}
	}
	var seen [7]bool
	codes := make([]string, 0, len(days))
	for _, d := range days {
		d %= 7
		if seen[d] {
			continue
		}
		seen[d] = true
		codes = append(codes, WeekdayCode(d))
	}
	return codes
}

// NthWeekOfMonth returns the 1-based position of t's weekday within its
// month ("the 2nd Tuesday" is 2).
func NthWeekOfMonth(t time.Time) int {
	return (t.Day()-1)/7 + 1
}

// NegativeNthWeekOfMonth returns the position of t's weekday counted from the
// end of the month ("the last Friday" is -1).
func NegativeNthWeekOfMonth(t time.Time) int {
	return -((daysInMonth(t)-t.Day())/7 + 1)
}

func daysInMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// UntilFor builds the UNTIL boundary that ends a series on d, inclusive.
// All-day events get a civil date; timed events get the end of d in the
// event zone, expressed in UTC.
func UntilFor(d Date, start DateTime) Until {
	if start.AllDay {
		return UntilDate(d)
	}
	return UntilInstant(d.EndOfDay(start.Location()))
}
