package recurrence

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLocation(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func mustParse(t *testing.T, value string) *Rule {
	t.Helper()
	rule, err := ParseRule(value)
	require.NoError(t, err)
	require.NotNil(t, rule)
	return rule
}

// Wednesday.
var wednesday = time.Date(2024, time.June, 12, 9, 30, 0, 0, time.UTC)

func TestRuleToModelNoRule(t *testing.T) {
	m := RuleToModel(nil, wednesday)

	assert.Equal(t, Once, m.Type)
	assert.Equal(t, Weekly, m.Frequency)
	assert.Equal(t, 1, m.Interval)
	assert.Equal(t, DailyAllDays, m.Daily.Type)
	assert.Equal(t, WeeklyOnDays, m.Weekly.Type)
	assert.Equal(t, []time.Weekday{time.Wednesday}, m.Weekly.Days)
	assert.Equal(t, MonthlyOnMonthDay, m.Monthly.Type)
	assert.Equal(t, YearlyByMonthOnMonthDay, m.Yearly.Type)
	assert.Equal(t, EndNever, m.Ends.Type)
	assert.Nil(t, m.Ends.Until)
}

func TestRuleToModelBaseFrequencyDefault(t *testing.T) {
	m := RuleToModel(nil, wednesday, WithBaseFrequency(Monthly))
	assert.Equal(t, Once, m.Type)
	assert.Equal(t, Monthly, m.Frequency)

	m = RuleToModel(nil, wednesday, WithDefaults(Defaults{BaseFrequency: Custom}))
	assert.Equal(t, Weekly, m.Frequency)

	m = RuleToModel(nil, wednesday, WithBaseFrequency("HOURLY"))
	assert.Equal(t, Weekly, m.Frequency)
}

func TestRuleToModelBareFrequency(t *testing.T) {
	for _, f := range []Frequency{Daily, Weekly, Monthly, Yearly} {
		m := RuleToModel(&Rule{Freq: f, End: EndsNever()}, wednesday, WithBaseFrequency(Daily))
		assert.Equal(t, f, m.Type)
		assert.Equal(t, f, m.Frequency)
	}
}

func TestRuleToModelEndsNeverWithoutBounds(t *testing.T) {
	for _, value := range []string{
		"FREQ=DAILY",
		"FREQ=WEEKLY;BYDAY=MO,TU",
		"FREQ=MONTHLY;BYSETPOS=2;BYDAY=TU;INTERVAL=3",
		"FREQ=YEARLY;BYMONTH=6;BYMONTHDAY=12",
		"FREQ=DAILY;COUNT=0",
	} {
		m := RuleToModel(mustParse(t, value), wednesday)
		assert.Equal(t, EndNever, m.Ends.Type, value)
		assert.Zero(t, m.Ends.Count, value)
		assert.Nil(t, m.Ends.Until, value)
	}
}

func TestRuleToModelCountWinsOverUntil(t *testing.T) {
	for _, value := range []string{
		"FREQ=WEEKLY;COUNT=3",
		"FREQ=WEEKLY;COUNT=3;UNTIL=20240630",
		"FREQ=WEEKLY;UNTIL=20240630T235959Z;COUNT=3",
	} {
		m := RuleToModel(mustParse(t, value), wednesday)
		assert.Equal(t, Custom, m.Type, value)
		assert.Equal(t, EndAfterNTimes, m.Ends.Type, value)
		assert.Equal(t, 3, m.Ends.Count, value)
		assert.Nil(t, m.Ends.Until, value)
	}
}

func TestRuleToModelWeeklyDays(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  []time.Weekday
	}{
		{"no by-day", "FREQ=WEEKLY;INTERVAL=2", []time.Weekday{time.Wednesday}},
		{"input order kept", "FREQ=WEEKLY;BYDAY=FR,MO,SU", []time.Weekday{time.Friday, time.Monday, time.Sunday}},
		{"one unknown code", "FREQ=WEEKLY;BYDAY=MO,XX,FR", []time.Weekday{time.Wednesday}},
		{"ordinal code", "FREQ=WEEKLY;BYDAY=1MO", []time.Weekday{time.Wednesday}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := RuleToModel(mustParse(t, tt.value), wednesday)
			assert.Equal(t, tt.want, m.Weekly.Days)
		})
	}
}

func TestRuleToModelMonthlyType(t *testing.T) {
	tests := []struct {
		value string
		want  MonthlyType
	}{
		{"FREQ=MONTHLY;BYSETPOS=2;BYDAY=TU", MonthlyOnNthDay},
		{"FREQ=MONTHLY;BYSETPOS=-1;BYDAY=FR", MonthlyOnMinusNthDay},
		{"FREQ=MONTHLY;BYSETPOS=2", MonthlyOnMonthDay},
		{"FREQ=MONTHLY;BYDAY=TU", MonthlyOnMonthDay},
		{"FREQ=MONTHLY;BYMONTHDAY=12", MonthlyOnMonthDay},
	}
	for _, tt := range tests {
		m := RuleToModel(mustParse(t, tt.value), wednesday)
		assert.Equal(t, tt.want, m.Monthly.Type, tt.value)
	}
}

// A zero position is not a valid ordinal. It reads as absent, which leaves
// the month-day variant selected; this is degenerate input, not a feature.
func TestRuleToModelZeroSetPosIsDegenerate(t *testing.T) {
	rule := mustParse(t, "FREQ=MONTHLY;BYSETPOS=0;BYDAY=TU")
	require.Zero(t, rule.BySetPos)

	m := RuleToModel(rule, wednesday)
	assert.Equal(t, MonthlyOnMonthDay, m.Monthly.Type)
	assert.Equal(t, Custom, m.Type)
}

func TestRuleToModelUntilResolution(t *testing.T) {
	newYork := mustLocation(t, "America/New_York")
	auckland := mustLocation(t, "Pacific/Auckland")
	tokyo := mustLocation(t, "Asia/Tokyo")

	tests := []struct {
		name  string
		value string
		start time.Time
		want  Date
	}{
		{
			name:  "civil date is taken as is",
			value: "FREQ=DAILY;UNTIL=20240630",
			start: time.Date(2024, time.June, 1, 0, 0, 0, 0, tokyo),
			want:  NewDate(2024, time.June, 30),
		},
		{
			name:  "instant moves back a day west of UTC",
			value: "FREQ=DAILY;UNTIL=20240701T035959Z",
			start: time.Date(2024, time.June, 1, 9, 0, 0, 0, newYork),
			want:  NewDate(2024, time.June, 30),
		},
		{
			name:  "instant crosses the date line east of UTC",
			value: "FREQ=DAILY;UNTIL=20240630T130000Z",
			start: time.Date(2024, time.June, 1, 9, 0, 0, 0, auckland),
			want:  NewDate(2024, time.July, 1),
		},
		{
			name:  "utc start keeps the utc date",
			value: "FREQ=DAILY;UNTIL=20240630T130000Z",
			start: wednesday,
			want:  NewDate(2024, time.June, 30),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := RuleToModel(mustParse(t, tt.value), tt.start)
			require.Equal(t, EndUntil, m.Ends.Type)
			require.NotNil(t, m.Ends.Until)
			assert.Equal(t, tt.want, *m.Ends.Until)
			assert.Zero(t, m.Ends.Count)
		})
	}
}

func TestRuleToModelInterval(t *testing.T) {
	m := RuleToModel(mustParse(t, "FREQ=DAILY;INTERVAL=3"), wednesday)
	assert.Equal(t, Custom, m.Type)
	assert.Equal(t, Daily, m.Frequency)
	assert.Equal(t, 3, m.Interval)
}

func TestEndsDisplayCount(t *testing.T) {
	assert.Equal(t, DefaultEndCount, EndsModel{Type: EndNever}.DisplayCount())
	assert.Equal(t, DefaultEndCount, EndsModel{Type: EndAfterNTimes}.DisplayCount())
	assert.Equal(t, 7, EndsModel{Type: EndAfterNTimes, Count: 7}.DisplayCount())
}

func TestModelToRule(t *testing.T) {
	newYork := mustLocation(t, "America/New_York")
	until := NewDate(2024, time.June, 30)

	// Tuesday 11 June 2024 is the second Tuesday of the month.
	tuesday := DateTime{Time: time.Date(2024, time.June, 11, 9, 0, 0, 0, newYork)}
	// Friday 28 June 2024 is the last Friday of the month.
	lastFriday := DateTime{Time: time.Date(2024, time.June, 28, 9, 0, 0, 0, newYork)}

	tests := []struct {
		name  string
		model FrequencyModel
		start DateTime
		want  string
	}{
		{
			name:  "bare weekly",
			model: FrequencyModel{Type: Weekly, Frequency: Weekly},
			start: tuesday,
			want:  "FREQ=WEEKLY",
		},
		{
			name: "custom weekly dedupes days",
			model: FrequencyModel{
				Type: Custom, Frequency: Weekly, Interval: 2,
				Weekly: WeeklyModel{Type: WeeklyOnDays, Days: []time.Weekday{time.Monday, time.Wednesday, time.Monday}},
				Ends:   EndsModel{Type: EndAfterNTimes, Count: 5},
			},
			start: tuesday,
			want:  "FREQ=WEEKLY;INTERVAL=2;COUNT=5;BYDAY=MO,WE",
		},
		{
			name:  "custom weekly without days uses start weekday",
			model: FrequencyModel{Type: Custom, Frequency: Weekly, Interval: 1},
			start: tuesday,
			want:  "FREQ=WEEKLY;BYDAY=TU",
		},
		{
			name:  "monthly nth day",
			model: FrequencyModel{Type: Custom, Frequency: Monthly, Monthly: MonthlyModel{Type: MonthlyOnNthDay}},
			start: tuesday,
			want:  "FREQ=MONTHLY;BYSETPOS=2;BYDAY=TU",
		},
		{
			name:  "monthly last day",
			model: FrequencyModel{Type: Custom, Frequency: Monthly, Monthly: MonthlyModel{Type: MonthlyOnMinusNthDay}},
			start: lastFriday,
			want:  "FREQ=MONTHLY;BYSETPOS=-1;BYDAY=FR",
		},
		{
			name:  "timed until is end of day in utc",
			model: FrequencyModel{Type: Custom, Frequency: Daily, Ends: EndsModel{Type: EndUntil, Until: &until}},
			start: tuesday,
			want:  "FREQ=DAILY;UNTIL=20240701T035959Z",
		},
		{
			name:  "all-day until is a date",
			model: FrequencyModel{Type: Custom, Frequency: Daily, Ends: EndsModel{Type: EndUntil, Until: &until}},
			start: DateTime{Time: time.Date(2024, time.June, 11, 0, 0, 0, 0, time.UTC), AllDay: true},
			want:  "FREQ=DAILY;UNTIL=20240630",
		},
		{
			name:  "count placeholder is never written",
			model: FrequencyModel{Type: Custom, Frequency: Yearly, Interval: 2, Ends: EndsModel{Type: EndAfterNTimes}},
			start: tuesday,
			want:  "FREQ=YEARLY;INTERVAL=2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := ModelToRule(tt.model, tt.start)
			require.NotNil(t, rule)
			assert.Equal(t, tt.want, rule.String())
		})
	}

	assert.Nil(t, ModelToRule(FrequencyModel{Type: Once, Frequency: Weekly}, tuesday))
}

func TestModelRoundTrip(t *testing.T) {
	newYork := mustLocation(t, "America/New_York")
	tuesday := DateTime{Time: time.Date(2024, time.June, 11, 9, 0, 0, 0, newYork)}
	allDay := DateTime{Time: time.Date(2024, time.June, 11, 0, 0, 0, 0, time.UTC), AllDay: true}

	tests := []struct {
		value string
		start DateTime
	}{
		{"FREQ=DAILY", tuesday},
		{"FREQ=DAILY;COUNT=10", tuesday},
		{"FREQ=WEEKLY;INTERVAL=2;COUNT=5;BYDAY=MO,WE", tuesday},
		{"FREQ=WEEKLY;UNTIL=20240701T035959Z;BYDAY=TU", tuesday},
		{"FREQ=WEEKLY;UNTIL=20240630;BYDAY=TU,TH", allDay},
		{"FREQ=MONTHLY;BYSETPOS=2;BYDAY=TU", tuesday},
		{"FREQ=YEARLY;INTERVAL=2", tuesday},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			m := RuleToModel(mustParse(t, tt.value), tt.start.Time)
			rule := ModelToRule(m, tt.start)
			require.NotNil(t, rule)
			assert.Equal(t, tt.value, rule.String())
		})
	}
}

func TestFrequencyModelJSON(t *testing.T) {
	until := NewDate(2024, time.June, 30)
	m := FrequencyModel{
		Type: Custom, Frequency: Weekly, Interval: 1,
		Weekly: WeeklyModel{Type: WeeklyOnDays, Days: []time.Weekday{time.Monday}},
		Ends:   EndsModel{Type: EndUntil, Until: &until},
	}
	b, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"until":"2024-06-30"`)
	assert.NotContains(t, string(b), `"count"`)
}

func TestNthWeekOfMonth(t *testing.T) {
	assert.Equal(t, 1, NthWeekOfMonth(time.Date(2024, time.June, 7, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 2, NthWeekOfMonth(time.Date(2024, time.June, 8, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 5, NthWeekOfMonth(time.Date(2024, time.June, 29, 0, 0, 0, 0, time.UTC)))

	assert.Equal(t, -1, NegativeNthWeekOfMonth(time.Date(2024, time.June, 24, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, -2, NegativeNthWeekOfMonth(time.Date(2024, time.June, 23, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, -1, NegativeNthWeekOfMonth(time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC)))
}
