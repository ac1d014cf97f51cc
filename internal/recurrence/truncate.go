package recurrence

import (
	"errors"
	"time"
)

// ErrNotRecurring is returned when a series operation is applied to an event
// without a recurrence rule.
var ErrNotRecurring = errors.New("recurrence: event is not recurring")

// TruncateBefore returns the rule that keeps only the occurrences before the
// one starting at localExclusionStart. occurrence is the 1-based ordinal of
// that excluded occurrence.
//
// A count-bounded rule keeps its count bound; if no occurrence would remain
// the series is gone and TruncateBefore returns a nil rule and nil error. Any
// other rule ends on the day before localExclusionStart. All remaining parts
// of the rule are left untouched.
func TruncateBefore(rule *Rule, start DateTime, localExclusionStart time.Time, occurrence int) (*Rule, error) {
	if rule == nil {
		return nil, ErrNotRecurring
	}

	out := rule.Clone()
	if rule.HasCount() {
		remaining := occurrence - 1
		if remaining < 1 {
			return nil, nil
		}
		out.End = EndsAfter(remaining)
		return out, nil
	}

	lastDay := DateOf(localExclusionStart).AddDays(-1)
	out.End = EndsOn(UntilFor(lastDay, start))
	return out, nil
}
