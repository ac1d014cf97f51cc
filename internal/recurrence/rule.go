package recurrence

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

const (
	untilDateLayout     = "20060102"
	untilUTCLayout      = "20060102T150405Z"
	untilFloatingLayout = "20060102T150405"
	rrulePropertyPrefix = "RRULE:"
)

var (
	// ErrMissingFrequency is returned when a rule has no FREQ part.
	ErrMissingFrequency = errors.New("recurrence: rule has no FREQ")
	// ErrUnsupportedFrequency is returned for sub-daily frequencies, which
	// calendar events in this product never carry.
	ErrUnsupportedFrequency = errors.New("recurrence: unsupported frequency")
)

// EndType discriminates how a series terminates.
type EndType string

const (
	EndNever       EndType = "NEVER"
	EndAfterNTimes EndType = "AFTER_N_TIMES"
	EndUntil       EndType = "UNTIL"
)

// Until is the UNTIL boundary of a rule. It is either a civil date (all-day
// events, no zone attached) or a UTC instant.
type Until struct {
	date    Date
	instant time.Time
	utc     bool
}

// UntilDate builds a zone-less UNTIL boundary.
func UntilDate(d Date) Until {
	return Until{date: d}
}

// UntilInstant builds a UTC UNTIL boundary.
func UntilInstant(t time.Time) Until {
	t = t.UTC()
	return Until{date: DateOf(t), instant: t, utc: true}
}

// IsUTC reports whether the boundary is an instant rather than a civil date.
func (u Until) IsUTC() bool { return u.utc }

// Date returns the civil date, or the UTC calendar date of an instant.
func (u Until) Date() Date { return u.date }

// Instant returns the UTC instant. It is the zero time for civil dates.
func (u Until) Instant() time.Time { return u.instant }

// LocalDate resolves the boundary to a calendar date as seen from loc.
// Civil dates are returned as-is; instants are converted first and the
// time of day is dropped.
func (u Until) LocalDate(loc *time.Location) Date {
	if !u.utc {
		return u.date
	}
	if loc == nil {
		loc = time.UTC
	}
	return DateOf(u.instant.In(loc))
}

// String renders the UNTIL value in its wire form.
func (u Until) String() string {
	if u.utc {
		return u.instant.Format(untilUTCLayout)
	}
	return u.date.Format(untilDateLayout)
}

// End is the termination of a rule: never, after a number of occurrences,
// or on a date. COUNT and UNTIL are mutually exclusive on the wire, so the
// type only ever carries one of them.
type End struct {
	Type  EndType
	Count int
	Until Until
}

// EndsNever returns an unbounded end.
func EndsNever() End { return End{Type: EndNever} }

// EndsAfter returns a count-bounded end.
func EndsAfter(count int) End { return End{Type: EndAfterNTimes, Count: count} }

// EndsOn returns an until-bounded end.
func EndsOn(u Until) End { return End{Type: EndUntil, Until: u} }

// Rule is a parsed recurrence rule. The zero value of every optional field
// means "absent".
type Rule struct {
	Freq     Frequency
	Interval int
	End      End
	// ByDay holds the raw weekday codes in input order, each optionally
	// prefixed with an ordinal ("MO", "1MO", "-1FR").
	ByDay      []string
	BySetPos   int
	ByMonthDay []int
	ByMonth    []int
	WeekStart  string
}

// Clone returns a deep copy of the rule.
func (r *Rule) Clone() *Rule {
	if r == nil {
		return nil
	}
	out := *r
	out.ByDay = append([]string(nil), r.ByDay...)
	out.ByMonthDay = append([]int(nil), r.ByMonthDay...)
	out.ByMonth = append([]int(nil), r.ByMonth...)
	return &out
}

// HasCount reports whether the rule is count-bounded.
func (r *Rule) HasCount() bool {
	return r != nil && r.End.Type == EndAfterNTimes && r.End.Count != 0
}

// HasUntil reports whether the rule is until-bounded.
func (r *Rule) HasUntil() bool {
	return r != nil && r.End.Type == EndUntil
}

// ParseRule parses an RRULE value ("FREQ=WEEKLY;BYDAY=MO,WE"), with or
// without the "RRULE:" property prefix. An empty value yields a nil rule.
//
// Only FREQ is mandatory. Malformed optional parts are dropped rather than
// reported; BYDAY codes are kept verbatim so that callers can decide how to
// treat unknown codes. When both COUNT and UNTIL are present COUNT wins.
// INTERVAL=1 is the grammar default and is not recorded.
func ParseRule(value string) (*Rule, error) {
	value = strings.TrimSpace(value)
	if len(value) >= len(rrulePropertyPrefix) && strings.EqualFold(value[:len(rrulePropertyPrefix)], rrulePropertyPrefix) {
		value = value[len(rrulePropertyPrefix):]
	}
	if value == "" {
		return nil, nil
	}

	rule := &Rule{End: EndsNever()}
	var (
		count    int
		until    Until
		hasUntil bool
	)

	for _, part := range strings.Split(value, ";") {
		key, val, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		val = strings.TrimSpace(val)

		switch key {
		case "FREQ":
			freq, err := parseFreq(val)
			if err != nil {
				return nil, err
			}
			rule.Freq = freq
		case "COUNT":
			if n, err := strconv.Atoi(val); err == nil && n > 0 {
				count = n
			}
		case "UNTIL":
			if u, ok := parseUntil(val); ok {
				until, hasUntil = u, true
			}
		case "INTERVAL":
			if n, err := strconv.Atoi(val); err == nil && n > 1 {
				rule.Interval = n
			}
		case "BYDAY":
			rule.ByDay = splitCodes(val)
		case "BYSETPOS":
			// Only a single ordinal is meaningful for the editor.
			if ints := parseIntList(val); len(ints) > 0 {
				rule.BySetPos = ints[0]
			}
		case "BYMONTHDAY":
			rule.ByMonthDay = parseIntList(val)
		case "BYMONTH":
			rule.ByMonth = parseIntList(val)
		case "WKST":
			rule.WeekStart = strings.ToUpper(val)
		}
	}

	if rule.Freq == "" {
		return nil, ErrMissingFrequency
	}

	switch {
	case count > 0:
		rule.End = EndsAfter(count)
	case hasUntil:
		rule.End = EndsOn(until)
	}

	return rule, nil
}

// String renders the rule in RRULE value form, without the property name.
func (r *Rule) String() string {
	if r == nil {
		return ""
	}
	parts := []string{"FREQ=" + string(r.Freq)}
	if r.Interval > 1 {
		parts = append(parts, "INTERVAL="+strconv.Itoa(r.Interval))
	}
	switch r.End.Type {
	case EndAfterNTimes:
		if r.End.Count > 0 {
			parts = append(parts, "COUNT="+strconv.Itoa(r.End.Count))
		}
	case EndUntil:
		parts = append(parts, "UNTIL="+r.End.Until.String())
	}
	if r.BySetPos != 0 {
		parts = append(parts, "BYSETPOS="+strconv.Itoa(r.BySetPos))
	}
	if len(r.ByDay) > 0 {
		parts = append(parts, "BYDAY="+strings.Join(r.ByDay, ","))
	}
	if len(r.ByMonthDay) > 0 {
		parts = append(parts, "BYMONTHDAY="+joinInts(r.ByMonthDay))
	}
	if len(r.ByMonth) > 0 {
		parts = append(parts, "BYMONTH="+joinInts(r.ByMonth))
	}
	if r.WeekStart != "" {
		parts = append(parts, "WKST="+r.WeekStart)
	}
	return strings.Join(parts, ";")
}

func parseFreq(val string) (Frequency, error) {
	f, err := rrule.StrToFreq(strings.ToUpper(val))
	if err != nil {
		return "", fmt.Errorf("recurrence: %w", err)
	}
	switch f {
	case rrule.DAILY:
		return Daily, nil
	case rrule.WEEKLY:
		return Weekly, nil
	case rrule.MONTHLY:
		return Monthly, nil
	case rrule.YEARLY:
		return Yearly, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFrequency, val)
	}
}

// parseUntil accepts DATE, UTC DATE-TIME and floating DATE-TIME forms. A
// floating value has no zone to convert from, so only its date is kept.
func parseUntil(val string) (Until, bool) {
	val = strings.ToUpper(val)
	switch {
	case strings.HasSuffix(val, "Z"):
		t, err := time.Parse(untilUTCLayout, val)
		if err != nil {
			return Until{}, false
		}
		return UntilInstant(t), true
	case strings.Contains(val, "T"):
		t, err := time.Parse(untilFloatingLayout, val)
		if err != nil {
			return Until{}, false
		}
		return UntilDate(DateOf(t)), true
	default:
		t, err := time.Parse(untilDateLayout, val)
		if err != nil {
			return Until{}, false
		}
		return UntilDate(DateOf(t)), true
	}
}

func splitCodes(val string) []string {
	var out []string
	for _, code := range strings.Split(val, ",") {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code != "" {
			out = append(out, code)
		}
	}
	return out
}

func parseIntList(val string) []int {
	var out []int
	for _, s := range strings.Split(val, ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			out = append(out, n)
		}
	}
	return out
}

func joinInts(ints []int) string {
	s := make([]string, len(ints))
	for i, n := range ints {
		s[i] = strconv.Itoa(n)
	}
	return strings.Join(s, ",")
}
