package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncateBeforeCountBounded(t *testing.T) {
	rule := mustParse(t, "FREQ=WEEKLY;COUNT=5;BYDAY=MO,WE")
	start := DateTime{Time: time.Date(2024, time.June, 3, 9, 0, 0, 0, time.UTC)}
	exclusion := time.Date(2024, time.June, 17, 9, 0, 0, 0, time.UTC)

	out, err := TruncateBefore(rule, start, exclusion, 5)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, "FREQ=WEEKLY;COUNT=4;BYDAY=MO,WE", out.String())

	// The input is left untouched.
	assert.Equal(t, 5, rule.End.Count)
}

func TestTruncateBeforeFirstOccurrenceDropsRule(t *testing.T) {
	rule := mustParse(t, "FREQ=DAILY;COUNT=5")
	start := DateTime{Time: time.Date(2024, time.June, 3, 9, 0, 0, 0, time.UTC)}

	out, err := TruncateBefore(rule, start, start.Time, 1)
	require.NoError(t, err)
	assert.Nil(t, out)

	out, err = TruncateBefore(rule, start, start.Time, 0)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestTruncateBeforeAllDayUntil(t *testing.T) {
	rule := mustParse(t, "FREQ=WEEKLY;INTERVAL=2;UNTIL=20240630;BYDAY=SA;WKST=MO")
	start := DateTime{Time: time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC), AllDay: true}
	exclusion := time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC)

	out, err := TruncateBefore(rule, start, exclusion, 3)
	require.NoError(t, err)
	require.NotNil(t, out)

	require.True(t, out.HasUntil())
	assert.False(t, out.End.Until.IsUTC())
	assert.Equal(t, NewDate(2024, time.June, 14), out.End.Until.Date())

	// Everything but the end is preserved.
	expected := rule.Clone()
	expected.End = out.End
	assert.Equal(t, expected, out)
	assert.Equal(t, "FREQ=WEEKLY;INTERVAL=2;UNTIL=20240614;BYDAY=SA;WKST=MO", out.String())
}

func TestTruncateBeforeUnboundedTimed(t *testing.T) {
	newYork := mustLocation(t, "America/New_York")
	rule := mustParse(t, "FREQ=DAILY")
	start := DateTime{Time: time.Date(2024, time.June, 1, 9, 0, 0, 0, newYork)}
	exclusion := time.Date(2024, time.June, 15, 9, 0, 0, 0, newYork)

	out, err := TruncateBefore(rule, start, exclusion, 15)
	require.NoError(t, err)
	require.True(t, out.HasUntil())
	assert.True(t, out.End.Until.IsUTC())
	assert.Equal(t, time.Date(2024, time.June, 15, 3, 59, 59, 0, time.UTC), out.End.Until.Instant())
	assert.Equal(t, "FREQ=DAILY;UNTIL=20240615T035959Z", out.String())

	assert.Equal(t, EndNever, rule.End.Type)
}

func TestTruncateBeforeNotRecurring(t *testing.T) {
	start := DateTime{Time: time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC)}

	out, err := TruncateBefore(nil, start, start.Time, 1)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, ErrNotRecurring)
}

func TestTruncateMatchesExpansion(t *testing.T) {
	newYork := mustLocation(t, "America/New_York")
	rule := mustParse(t, "FREQ=WEEKLY;BYDAY=MO")
	start := DateTime{Time: time.Date(2024, time.June, 3, 9, 0, 0, 0, newYork)}
	exclusion := time.Date(2024, time.June, 24, 9, 0, 0, 0, newYork)

	n, err := OccurrenceNumber(rule, start, exclusion)
	require.NoError(t, err)
	require.Equal(t, 4, n)

	out, err := TruncateBefore(rule, start, exclusion, n)
	require.NoError(t, err)

	res, err := Expand(out, start, ExpandConfig{
		RangeStart: start.Time,
		RangeEnd:   start.Time.AddDate(0, 3, 0),
	})
	require.NoError(t, err)
	require.Len(t, res.Occurrences, 3)
	assert.True(t, res.Occurrences[2].Equal(time.Date(2024, time.June, 17, 9, 0, 0, 0, newYork)))
}
