package markdown

import (
	"regexp"
	"strings"
	"time"

	"github.com/roach88/notesync/internal/task"
)

// Signifiers used in task lines.
const (
	DueMarker       = "📅"
	ScheduledMarker = "⏳"
	StartMarker     = "🛫"
	DoneMarker      = "✅"
	CreatedMarker   = "➕"
	RecurMarker     = "🔁"

	HighPriority    = "⏫"
	HighestPriority = "🔺"
	MediumPriority  = "🔼"
	LowPriority     = "🔽"

	// ListTagPrefix marks the tag naming the target list: #list/Work.
	ListTagPrefix = "list/"
)

var (
	taskRe     = regexp.MustCompile(`^(\s*[-*+]\s+\[)([^\]])(\]\s+)(.*)$`)
	markerRe   = regexp.MustCompile(`(📅|⏳|🛫|✅|➕|🔁|⏫|🔺|🔼|🔽)\x{FE0F}?`)
	priorityRe = regexp.MustCompile(`(⏫|🔺|🔼|🔽)\x{FE0F}?`)
	leadDateRe = regexp.MustCompile(`^\s*(\d{4}-\d{2}-\d{2})`)
	tagRe      = regexp.MustCompile(`(?:^|\s)#([\p{L}\p{N}_/-]+)`)
	blockIDRe  = regexp.MustCompile(`\s\^[A-Za-z0-9-]+\s*$`)
	spacesRe   = regexp.MustCompile(`\s+`)

	dateTokenRe = map[string]*regexp.Regexp{}
)

func init() {
	for _, m := range []string{DueMarker, ScheduledMarker, StartMarker, DoneMarker, CreatedMarker} {
		dateTokenRe[m] = regexp.MustCompile(regexp.QuoteMeta(m) + `\x{FE0F}?\s*(\d{4}-\d{2}-\d{2})`)
	}
}

// ParseLine parses one note line into a task. It reports false for lines
// that are not task list items, and for cancelled items ("- [-] ...").
//
// The returned task has no ID or provenance; callers fill those in.
func ParseLine(line string) (task.Task, bool) {
	m := taskRe.FindStringSubmatch(strings.TrimRight(line, "\r"))
	if m == nil {
		return task.Task{}, false
	}

	var t task.Task
	switch m[2] {
	case " ", "/":
	case "x", "X":
		t.Completed = true
	default:
		return task.Task{}, false
	}

	body := m[4]
	description := body
	marks := markerRe.FindAllStringSubmatchIndex(body, -1)
	if len(marks) > 0 {
		description = body[:marks[0][0]]
	}

	for i, mk := range marks {
		marker := body[mk[2]:mk[3]]
		end := len(body)
		if i+1 < len(marks) {
			end = marks[i+1][0]
		}
		value := body[mk[1]:end]

		switch marker {
		case DueMarker:
			t.Due = leadingDate(value)
		case ScheduledMarker:
			t.Scheduled = leadingDate(value)
		case StartMarker:
			t.Start = leadingDate(value)
		case DoneMarker:
			t.CompletedOn = leadingDate(value)
		case RecurMarker:
			t.Recurrence = clean(tagRe.ReplaceAllString(blockIDRe.ReplaceAllString(value, ""), ""))
		case HighPriority, HighestPriority:
			t.Priority = task.PriorityHigh
		case MediumPriority:
			t.Priority = task.PriorityMedium
		case LowPriority:
			t.Priority = task.PriorityLow
		}
	}

	for _, tm := range tagRe.FindAllStringSubmatch(body, -1) {
		tag := tm[1]
		if strings.HasPrefix(tag, ListTagPrefix) {
			t.List = strings.TrimPrefix(tag, ListTagPrefix)
			continue
		}
		t.Tags = append(t.Tags, tag)
	}
	t.Tags = t.SortedTags()
	if len(t.Tags) == 0 {
		t.Tags = nil
	}

	t.Title = clean(tagRe.ReplaceAllString(blockIDRe.ReplaceAllString(description, ""), ""))
	if t.Title == "" {
		return task.Task{}, false
	}
	return t, true
}

// FormatLine renders a task as a new note line.
func FormatLine(t task.Task) string {
	status := " "
	if t.Completed {
		status = "x"
	}
	parts := []string{"- [" + status + "] " + t.Title}

	for _, tag := range t.SortedTags() {
		parts = append(parts, "#"+tag)
	}
	if t.List != "" {
		parts = append(parts, "#"+ListTagPrefix+task.ListTag(t.List))
	}
	if g := priorityGlyph(t.Priority); g != "" {
		parts = append(parts, g)
	}
	if t.Recurrence != "" {
		parts = append(parts, RecurMarker+" "+t.Recurrence)
	}
	for _, d := range []struct {
		marker string
		date   *time.Time
	}{
		{StartMarker, t.Start},
		{ScheduledMarker, t.Scheduled},
		{DueMarker, t.Due},
		{DoneMarker, t.CompletedOn},
	} {
		if d.date != nil {
			parts = append(parts, d.marker+" "+task.FormatDate(d.date))
		}
	}
	return strings.Join(parts, " ")
}

func leadingDate(s string) *time.Time {
	m := leadDateRe.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	d, err := task.ParseDate(m[1])
	if err != nil {
		return nil
	}
	return &d
}

func priorityGlyph(p task.Priority) string {
	switch p {
	case task.PriorityHigh:
		return HighPriority
	case task.PriorityMedium:
		return MediumPriority
	case task.PriorityLow:
		return LowPriority
	default:
		return ""
	}
}

func clean(s string) string {
	return strings.TrimSpace(spacesRe.ReplaceAllString(s, " "))
}
