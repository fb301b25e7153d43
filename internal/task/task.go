package task

import (
	"sort"
	"strings"
	"time"
)

// DateLayout is the ISO calendar date format used in notes and digests.
const DateLayout = "2006-01-02"

// Priority is an ordinal task priority.
type Priority int

const (
	PriorityNone Priority = iota
	PriorityLow
	PriorityMedium
	PriorityHigh
)

// String returns the lowercase name of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	default:
		return "none"
	}
}

// ParsePriority maps a priority name back to its ordinal. Unknown names
// yield PriorityNone.
func ParsePriority(s string) Priority {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return PriorityLow
	case "medium":
		return PriorityMedium
	case "high":
		return PriorityHigh
	default:
		return PriorityNone
	}
}

// Provenance locates a task inside the source collection.
type Provenance struct {
	Path     string `json:"path"`
	Line     int    `json:"line"`     // 1-based
	Original string `json:"original"` // exact line text captured at scan time
}

// Task is the unified record exchanged between adapters and the engine.
//
// ID is side-specific: a source id for scanned tasks, a destination id for
// fetched ones.
type Task struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Completed   bool        `json:"completed"`
	Priority    Priority    `json:"priority"`
	Due         *time.Time  `json:"due,omitempty"`
	Start       *time.Time  `json:"start,omitempty"`
	Scheduled   *time.Time  `json:"scheduled,omitempty"`
	CompletedOn *time.Time  `json:"completed_on,omitempty"`
	Tags        []string    `json:"tags,omitempty"`
	List        string      `json:"list,omitempty"`
	Notes       string      `json:"notes,omitempty"`
	Recurrence  string      `json:"recurrence,omitempty"`
	Source      *Provenance `json:"source,omitempty"`
	Modified    time.Time   `json:"modified"`
}

// Path returns the provenance file path, or "" for tasks without one.
func (t Task) Path() string {
	if t.Source == nil {
		return ""
	}
	return t.Source.Path
}

// Clone returns a deep copy of t.
func (t Task) Clone() Task {
	c := t
	c.Due = cloneDate(t.Due)
	c.Start = cloneDate(t.Start)
	c.Scheduled = cloneDate(t.Scheduled)
	c.CompletedOn = cloneDate(t.CompletedOn)
	if t.Tags != nil {
		c.Tags = append([]string(nil), t.Tags...)
	}
	if t.Source != nil {
		p := *t.Source
		c.Source = &p
	}
	return c
}

// SortedTags returns the tag set deduplicated and sorted.
func (t Task) SortedTags() []string {
	seen := make(map[string]bool, len(t.Tags))
	out := make([]string, 0, len(t.Tags))
	for _, tag := range t.Tags {
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// Dates groups the three schedulable date fields.
type Dates struct {
	Due       *time.Time
	Start     *time.Time
	Scheduled *time.Time
}

// Dates returns the task's schedulable dates.
func (t Task) Dates() Dates {
	return Dates{Due: t.Due, Start: t.Start, Scheduled: t.Scheduled}
}

// ListTag renders a list name as a single tag segment, joining its words
// with "-". "Home Errands" becomes "Home-Errands".
func ListTag(name string) string {
	return strings.Join(strings.Fields(name), "-")
}

// SameList reports whether a and b name the same list once rendered as tags.
// A list read back from a note tag matches the destination's spaced name.
func SameList(a, b string) bool {
	if a == b {
		return true
	}
	return a != "" && b != "" && ListTag(a) == ListTag(b)
}

// Date builds a UTC midnight date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DatePtr is Date returning a pointer, handy for optional fields.
func DatePtr(year int, month time.Month, day int) *time.Time {
	d := Date(year, month, day)
	return &d
}

// ParseDate parses an ISO calendar date into a UTC midnight time.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// Truncate normalizes any time to its UTC calendar date.
func Truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return Date(y, m, d)
}

// FormatDate renders an optional date, "" when absent.
func FormatDate(d *time.Time) string {
	if d == nil {
		return ""
	}
	return d.Format(DateLayout)
}

// SameDate reports whether two optional dates denote the same calendar day.
func SameDate(a, b *time.Time) bool {
	return FormatDate(a) == FormatDate(b)
}

func cloneDate(d *time.Time) *time.Time {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}
