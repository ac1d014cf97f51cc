package recurrence

import (
	"strings"
	"time"
)

// Frequency is both the rule FREQ keyword and the editor display type.
// Once and Custom only ever appear as display types.
type Frequency string

const (
	Once    Frequency = "ONCE"
	Daily   Frequency = "DAILY"
	Weekly  Frequency = "WEEKLY"
	Monthly Frequency = "MONTHLY"
	Yearly  Frequency = "YEARLY"
	Custom  Frequency = "CUSTOM"
)

// ParseFrequency maps a case-insensitive base frequency name. Only the four
// rule cadences are accepted.
func ParseFrequency(s string) (Frequency, bool) {
	switch f := Frequency(strings.ToUpper(strings.TrimSpace(s))); f {
	case Daily, Weekly, Monthly, Yearly:
		return f, true
	default:
		return "", false
	}
}

func (f Frequency) isCadence() bool {
	_, ok := ParseFrequency(string(f))
	return ok
}

type DailyType string

const DailyAllDays DailyType = "ALL_DAYS"

type WeeklyType string

const WeeklyOnDays WeeklyType = "ON_DAYS"

type MonthlyType string

const (
	MonthlyOnMonthDay    MonthlyType = "ON_MONTH_DAY"
	MonthlyOnNthDay      MonthlyType = "ON_NTH_DAY"
	MonthlyOnMinusNthDay MonthlyType = "ON_MINUS_NTH_DAY"
)

type YearlyType string

const YearlyByMonthOnMonthDay YearlyType = "BY_MONTH_ON_MONTH_DAY"

// DefaultEndCount pre-fills the editor's occurrence counter when a series
// is not count-bounded. It is a UI affordance and is never serialized.
const DefaultEndCount = 2

type DailyModel struct {
	Type DailyType `json:"type"`
}

type WeeklyModel struct {
	Type WeeklyType     `json:"type"`
	Days []time.Weekday `json:"days"`
}

type MonthlyModel struct {
	Type MonthlyType `json:"type"`
}

type YearlyModel struct {
	Type YearlyType `json:"type"`
}

// EndsModel is the editor view of a series end. Count is only set for
// EndAfterNTimes and Until only for EndUntil.
type EndsModel struct {
	Type  EndType `json:"type"`
	Count int     `json:"count,omitempty"`
	Until *Date   `json:"until,omitempty"`
}

// DisplayCount returns the value the occurrence counter should show.
func (e EndsModel) DisplayCount() int {
	if e.Type == EndAfterNTimes && e.Count >= 1 {
		return e.Count
	}
	return DefaultEndCount
}

// FrequencyModel is the form-friendly representation of a recurrence rule.
type FrequencyModel struct {
	// Type is the display type: Once, a bare cadence, or Custom.
	Type Frequency `json:"type"`
	// Frequency is the underlying cadence, set even when Type is Custom.
	Frequency Frequency    `json:"frequency"`
	Interval  int          `json:"interval"`
	Daily     DailyModel   `json:"daily"`
	Weekly    WeeklyModel  `json:"weekly"`
	Monthly   MonthlyModel `json:"monthly"`
	Yearly    YearlyModel  `json:"yearly"`
	Ends      EndsModel    `json:"ends"`
}
