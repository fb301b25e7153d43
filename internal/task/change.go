package task

import "time"

// ChangeKind discriminates the three states of a metadata field update.
type ChangeKind int

const (
	// Unchanged leaves the field as it is.
	Unchanged ChangeKind = iota
	// Cleared removes the field.
	Cleared
	// Set replaces the field with a value.
	Set
)

// Change is a per-field update: Unchanged, Cleared, or SetTo(value).
// The zero value is Unchanged.
type Change[T any] struct {
	kind  ChangeKind
	value T
}

// NoChange returns an Unchanged update.
func NoChange[T any]() Change[T] { return Change[T]{} }

// Clear returns a Cleared update.
func Clear[T any]() Change[T] { return Change[T]{kind: Cleared} }

// SetTo returns an update that sets the field to v.
func SetTo[T any](v T) Change[T] { return Change[T]{kind: Set, value: v} }

// Kind reports which of the three states c is in.
func (c Change[T]) Kind() ChangeKind { return c.kind }

// Value returns the new value. It is only meaningful when Kind is Set.
func (c Change[T]) Value() T { return c.value }

// IsZero reports whether c leaves the field untouched.
func (c Change[T]) IsZero() bool { return c.kind == Unchanged }

// DateChange derives the update that turns from into to.
func DateChange(from, to *time.Time) Change[time.Time] {
	switch {
	case SameDate(from, to):
		return NoChange[time.Time]()
	case to == nil:
		return Clear[time.Time]()
	default:
		return SetTo(Truncate(*to))
	}
}

// MetadataUpdate carries the writeback-able metadata fields of a task.
type MetadataUpdate struct {
	Due       Change[time.Time]
	Start     Change[time.Time]
	Scheduled Change[time.Time]
	Priority  Change[Priority]
}

// Empty reports whether the update touches no field.
func (u MetadataUpdate) Empty() bool {
	return u.Due.IsZero() && u.Start.IsZero() && u.Scheduled.IsZero() && u.Priority.IsZero()
}

// ApplyTo returns a copy of t with the update applied.
func (u MetadataUpdate) ApplyTo(t Task) Task {
	out := t.Clone()
	out.Due = applyDate(out.Due, u.Due)
	out.Start = applyDate(out.Start, u.Start)
	out.Scheduled = applyDate(out.Scheduled, u.Scheduled)
	switch u.Priority.Kind() {
	case Unchanged:
	case Cleared:
		out.Priority = PriorityNone
	case Set:
		out.Priority = u.Priority.Value()
	}
	return out
}

func applyDate(cur *time.Time, c Change[time.Time]) *time.Time {
	switch c.Kind() {
	case Cleared:
		return nil
	case Set:
		v := c.Value()
		return &v
	default:
		return cur
	}
}
