package recurrence

import (
	"time"

	"github.com/roach88/notesync/internal/task"
)

// maxAnchorWalk bounds the month walk of anchored rules.
const maxAnchorWalk = 48

// Result is the next occurrence of a rule.
type Result struct {
	// Next is the new reference date.
	Next time.Time
	// Start is set when a when-done rule carries a day-of-month anchor: the
	// start date snaps to the anchor while Next follows the pure interval.
	Start *time.Time
}

// Next computes the next occurrence of r.
//
// Without "when done" the rule advances strictly from ref, honoring any
// day-of-month anchor. A zero ref falls back to completion.
//
// With "when done" Next is the pure interval from completion (anchor
// stripped). If the rule has an anchor, Start is the next anchored day
// strictly after completion.
func Next(r Rule, ref, completion time.Time) Result {
	completion = task.Truncate(completion)
	if !r.WhenDone {
		base := completion
		if !ref.IsZero() {
			base = task.Truncate(ref)
		}
		return Result{Next: advance(r, base)}
	}

	res := Result{Next: advance(r.interval(), completion)}
	if r.HasAnchor() {
		start := anchoredAfter(completion, r.DayOfMonth, 1, 0)
		res.Start = &start
	}
	return res
}

// advance moves base forward by one full step of the rule.
func advance(r Rule, base time.Time) time.Time {
	n := r.Interval
	switch r.Unit {
	case Day:
		return base.AddDate(0, 0, n)
	case Week:
		return base.AddDate(0, 0, 7*n)
	case Weekday:
		return addWeekdays(base, n)
	case Month:
		if r.HasAnchor() {
			return anchoredAfter(base, r.DayOfMonth, n, 1)
		}
		return addMonthsClamped(base, n)
	case Year:
		return addMonthsClamped(base, 12*n)
	default:
		return base
	}
}

// anchoredAfter walks months in steps of step, starting at base's month plus
// first*step, until the anchored day of that month is strictly after base.
func anchoredAfter(base time.Time, dom, step, first int) time.Time {
	for k := first; k < first+maxAnchorWalk; k++ {
		y, m := monthOffset(base, k*step)
		c := task.Date(y, m, anchorDay(y, m, dom))
		if c.After(base) {
			return c
		}
	}
	// Unreachable for valid anchors; keep the base unchanged rather than loop.
	return base
}

// addMonthsClamped adds n calendar months, clamping the day to the length of
// the target month (Jan 31 + 1 month = Feb 28).
func addMonthsClamped(base time.Time, n int) time.Time {
	y, m := monthOffset(base, n)
	d := base.Day()
	if last := daysIn(y, m); d > last {
		d = last
	}
	return task.Date(y, m, d)
}

func addWeekdays(base time.Time, n int) time.Time {
	d := base
	for n > 0 {
		d = d.AddDate(0, 0, 1)
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			n--
		}
	}
	return d
}

func monthOffset(base time.Time, months int) (int, time.Month) {
	total := int(base.Month()) - 1 + months
	y := base.Year() + total/12
	mi := total % 12
	if mi < 0 {
		mi += 12
		y--
	}
	return y, time.Month(mi + 1)
}

func anchorDay(y int, m time.Month, dom int) int {
	last := daysIn(y, m)
	if dom == LastDay || dom > last {
		return last
	}
	return dom
}

func daysIn(y int, m time.Month) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
