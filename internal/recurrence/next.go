package recurrence

import (
	"slices"
	"time"
)

// maxSteps bounds the search for BYDAY rules.
const maxSteps = 5000

// Next returns the first occurrence of the rule strictly after after.
// Occurrences are anchored on anchor: they keep its time of day, and the
// interval is counted from it.
func (r Rule) Next(anchor, after time.Time) time.Time {
	interval := r.Interval
	if interval < 1 {
		interval = 1
	}

	if r.Freq == Weekly && len(r.ByDay) > 0 {
		return r.nextByDay(anchor, after, interval)
	}

	for k := 0; k < maxSteps; k++ {
		t := r.step(anchor, k*interval)
		if t.After(after) {
			return t
		}
	}
	return time.Time{}
}

func (r Rule) step(anchor time.Time, n int) time.Time {
	switch r.Freq {
	case Daily:
		return anchor.AddDate(0, 0, n)
	case Weekly:
		return anchor.AddDate(0, 0, 7*n)
	case Monthly:
		return addMonthsClamped(anchor, n)
	default:
		return addMonthsClamped(anchor, 12*n)
	}
}

// nextByDay walks forward one day at a time, accepting listed weekdays in
// weeks that are a multiple of interval away from the anchor's week.
func (r Rule) nextByDay(anchor, after time.Time, interval int) time.Time {
	start := weekStart(anchor)
	d := anchor
	if after.After(d) {
		d = time.Date(after.Year(), after.Month(), after.Day(),
			anchor.Hour(), anchor.Minute(), anchor.Second(), anchor.Nanosecond(), anchor.Location())
	}
	for i := 0; i < maxSteps; i++ {
		if d.After(after) && !d.Before(anchor) && slices.Contains(r.ByDay, d.Weekday()) {
			weeks := int(weekStart(d).Sub(start).Hours()+12) / (24 * 7)
			if weeks%interval == 0 {
				return d
			}
		}
		d = d.AddDate(0, 0, 1)
	}
	return time.Time{}
}

func weekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7 // Monday = 0
	m := t.AddDate(0, 0, -offset)
	return time.Date(m.Year(), m.Month(), m.Day(), 0, 0, 0, 0, t.Location())
}

// addMonthsClamped adds n months, pinning the day to the end of shorter
// months instead of overflowing into the next one.
func addMonthsClamped(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
