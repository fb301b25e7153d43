package markdown

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/notesync/internal/task"
)

// The functions below change the smallest possible substring of a task line.
// Marker glyphs, spacing and unrelated text are kept byte-for-byte.

// setStatus flips the status character between the brackets.
func setStatus(line string, done bool) (string, error) {
	m := taskRe.FindStringSubmatchIndex(line)
	if m == nil {
		return "", fmt.Errorf("not a task line: %q", line)
	}
	cur := line[m[4]:m[5]]
	isDone := cur == "x" || cur == "X"
	if isDone == done {
		return line, nil
	}
	status := " "
	if done {
		status = "x"
	}
	return line[:m[4]] + status + line[m[5]:], nil
}

// setDate rewrites the date following marker. An existing date has only its
// digits replaced; a nil date removes the token; a missing token is inserted.
func setDate(line, marker string, d *time.Time) string {
	re, ok := dateTokenRe[marker]
	if !ok {
		return line
	}
	loc := re.FindStringSubmatchIndex(line)
	switch {
	case loc != nil && d == nil:
		return removeToken(line, loc[0], loc[1])
	case loc != nil:
		return line[:loc[2]] + d.Format(task.DateLayout) + line[loc[3]:]
	case d == nil:
		return line
	default:
		return appendToken(line, marker+" "+d.Format(task.DateLayout))
	}
}

// setPriority swaps, removes or inserts the priority glyph.
func setPriority(line string, p task.Priority) string {
	glyph := priorityGlyph(p)
	loc := priorityRe.FindStringIndex(line)
	switch {
	case loc != nil && glyph == "":
		return removeToken(line, loc[0], loc[1])
	case loc != nil:
		if line[loc[0]:loc[1]] == glyph {
			return line
		}
		// 🔺 and ⏫ both mean high.
		if p == task.PriorityHigh && strings.HasPrefix(line[loc[0]:loc[1]], HighestPriority) {
			return line
		}
		return line[:loc[0]] + glyph + line[loc[1]:]
	case glyph == "":
		return line
	}

	m := taskRe.FindStringSubmatchIndex(line)
	if m != nil {
		bodyStart := m[8]
		if mk := markerRe.FindStringIndex(line[bodyStart:]); mk != nil {
			at := bodyStart + mk[0]
			return line[:at] + glyph + " " + line[at:]
		}
	}
	return appendToken(line, glyph)
}

// removeToken deletes line[start:end] together with one preceding space.
func removeToken(line string, start, end int) string {
	if start > 0 && line[start-1] == ' ' {
		start--
	}
	return line[:start] + line[end:]
}

// appendToken adds a token at the end of the line, before trailing
// whitespace and before a trailing block id (^abc123).
func appendToken(line, token string) string {
	trimmed := strings.TrimRight(line, " \t")
	tail := line[len(trimmed):]
	if loc := blockIDRe.FindStringIndex(trimmed); loc != nil {
		return trimmed[:loc[0]] + " " + token + trimmed[loc[0]:] + tail
	}
	return trimmed + " " + token + tail
}
