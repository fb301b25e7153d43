package recurrence

import (
	"time"

	"github.com/roach88/notesync/internal/task"
)

// Field names the date field a rollover is anchored on.
type Field string

const (
	FieldDue       Field = "due"
	FieldScheduled Field = "scheduled"
	FieldStart     Field = "start"
	FieldNone      Field = ""
)

// Reference picks the reference date of t: due, then scheduled, then start.
func Reference(t task.Task) (Field, *time.Time) {
	switch {
	case t.Due != nil:
		return FieldDue, t.Due
	case t.Scheduled != nil:
		return FieldScheduled, t.Scheduled
	case t.Start != nil:
		return FieldStart, t.Start
	default:
		return FieldNone, nil
	}
}

// Roll computes the dates of the next instance of a recurring task completed
// on completedOn. It reports false when the task has no parseable rule.
//
// The reference field receives the rule's next date. Every other present date
// field moves by the same whole-day delta, except a start date produced by a
// day-of-month anchor, which is used as-is. A task with no dates at all gets
// the next date as its due date.
func Roll(t task.Task, completedOn time.Time) (task.Dates, bool) {
	rule, ok := Parse(t.Recurrence)
	if !ok {
		return task.Dates{}, false
	}

	field, ref := Reference(t)
	var refDate time.Time
	if ref != nil {
		refDate = task.Truncate(*ref)
	}
	res := Next(rule, refDate, completedOn)

	if field == FieldNone {
		next := res.Next
		return task.Dates{Due: &next, Start: res.Start}, true
	}

	delta := wholeDays(res.Next.Sub(refDate))
	shift := func(d *time.Time) *time.Time {
		if d == nil {
			return nil
		}
		v := task.Truncate(*d).AddDate(0, 0, delta)
		return &v
	}

	out := task.Dates{
		Due:       shift(t.Due),
		Start:     shift(t.Start),
		Scheduled: shift(t.Scheduled),
	}
	next := res.Next
	switch field {
	case FieldDue:
		out.Due = &next
	case FieldScheduled:
		out.Scheduled = &next
	case FieldStart:
		out.Start = &next
	}
	if res.Start != nil {
		s := *res.Start
		out.Start = &s
	}
	return out, true
}

func wholeDays(d time.Duration) int {
	hours := d.Hours()
	if hours < 0 {
		return -int((-hours + 12) / 24)
	}
	return int((hours + 12) / 24)
}
