// Package recurrence computes the next occurrence of a repeating task.
//
// Everything in this package is pure: no I/O, no clock reads. Callers pass
// the reference and completion dates explicitly.
//
// Grammar (case-insensitive):
//
//	every [N] <day|week|month|year|weekday>[s] [on the <Nth|last> [day]] [when done]
//
// The "on the" clause is only valid for month rules.
package recurrence

import (
	"regexp"
	"strconv"
	"strings"
)

// Unit is the interval unit of a rule.
type Unit int

const (
	Day Unit = iota
	Week
	Month
	Year
	Weekday
)

func (u Unit) String() string {
	switch u {
	case Day:
		return "day"
	case Week:
		return "week"
	case Month:
		return "month"
	case Year:
		return "year"
	case Weekday:
		return "weekday"
	default:
		return "unknown"
	}
}

// LastDay is the DayOfMonth value for "on the last".
const LastDay = -1

// Rule is a parsed recurrence rule.
type Rule struct {
	Text     string
	Interval int
	Unit     Unit
	// DayOfMonth anchors month rules: 1..31, LastDay, or 0 for none.
	DayOfMonth int
	WhenDone   bool
}

// HasAnchor reports whether the rule carries an "on the Nth" clause.
func (r Rule) HasAnchor() bool {
	return r.DayOfMonth != 0
}

// interval returns the rule without its day-of-month anchor.
func (r Rule) interval() Rule {
	r.DayOfMonth = 0
	return r
}

var (
	ruleRe = regexp.MustCompile(`(?i)^every(?:\s+(\d+))?\s+(weekday|day|week|month|year)s?` +
		`(?:\s+on\s+the\s+(?:(\d{1,2})(?:st|nd|rd|th)?|(last))(?:\s+day)?)?` +
		`(\s+when\s+done)?$`)
	spaceRe = regexp.MustCompile(`\s+`)
)

// Parse parses rule text. It reports false for text outside the grammar;
// callers treat that as "no recurrence", not as an error.
func Parse(text string) (Rule, bool) {
	normalized := spaceRe.ReplaceAllString(strings.TrimSpace(text), " ")
	m := ruleRe.FindStringSubmatch(normalized)
	if m == nil {
		return Rule{}, false
	}

	r := Rule{Text: normalized, Interval: 1, WhenDone: m[5] != ""}

	if m[1] != "" {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 {
			return Rule{}, false
		}
		r.Interval = n
	}

	switch strings.ToLower(m[2]) {
	case "day":
		r.Unit = Day
	case "week":
		r.Unit = Week
	case "month":
		r.Unit = Month
	case "year":
		r.Unit = Year
	case "weekday":
		r.Unit = Weekday
	}

	switch {
	case m[4] != "":
		r.DayOfMonth = LastDay
	case m[3] != "":
		dom, err := strconv.Atoi(m[3])
		if err != nil || dom < 1 || dom > 31 {
			return Rule{}, false
		}
		r.DayOfMonth = dom
	}

	if r.HasAnchor() && r.Unit != Month {
		return Rule{}, false
	}
	return r, true
}
