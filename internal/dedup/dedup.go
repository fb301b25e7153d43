// Package dedup removes duplicate records from a freshly scanned source
// snapshot before the engine matches it against mappings.
//
// Pass A drops the completed half of a recurring pair: after a rollover the
// file holds both the finished instance and its fresh successor, with the
// same path and title.
//
// Pass B collapses cross-file duplicates sharing a title, keeping one record
// by preference: uncompleted over completed, non-inbox over inbox, mapped
// over unmapped. Title equality is assumed to imply identity, which is
// false for collections with legitimately repeated titles.
package dedup

import (
	"path/filepath"
	"sort"

	"github.com/roach88/notesync/internal/task"
)

// Reason values for dropped records.
const (
	ReasonRecurringPair  = "completed twin of an open task in the same file"
	ReasonCrossFileTitle = "duplicate title in another record"
)

// Options configures the dedup passes.
type Options struct {
	// Inbox is the designated inbox file path, relative to the collection
	// root. Records in it lose ties in Pass B.
	Inbox string
	// IsMapped reports whether a source id already has a mapping.
	IsMapped func(sourceID string) bool
}

// Dropped describes one record removed by a pass.
type Dropped struct {
	Task   task.Task
	KeptID string
	Reason string
}

// Run applies Pass A then Pass B to tasks (keyed by source id) and returns
// the surviving records plus what was dropped. The input map is not
// modified.
func Run(tasks map[string]task.Task, opts Options) (map[string]task.Task, []Dropped) {
	out := make(map[string]task.Task, len(tasks))
	for id, t := range tasks {
		out[id] = t
	}

	var dropped []Dropped
	dropped = append(dropped, passA(out)...)
	dropped = append(dropped, passB(out, opts)...)
	return out, dropped
}

func passA(tasks map[string]task.Task) []Dropped {
	type key struct{ path, title string }
	groups := make(map[key][]string)
	for _, id := range sortedIDs(tasks) {
		t := tasks[id]
		if t.Path() == "" {
			continue
		}
		k := key{t.Path(), t.Title}
		groups[k] = append(groups[k], id)
	}

	var dropped []Dropped
	for _, ids := range groups {
		openID := ""
		for _, id := range ids {
			if !tasks[id].Completed {
				openID = id
				break
			}
		}
		if openID == "" {
			continue
		}
		for _, id := range ids {
			if tasks[id].Completed {
				dropped = append(dropped, Dropped{Task: tasks[id], KeptID: openID, Reason: ReasonRecurringPair})
				delete(tasks, id)
			}
		}
	}
	sortDropped(dropped)
	return dropped
}

func passB(tasks map[string]task.Task, opts Options) []Dropped {
	groups := make(map[string][]string)
	for _, id := range sortedIDs(tasks) {
		title := tasks[id].Title
		groups[title] = append(groups[title], id)
	}

	var dropped []Dropped
	for _, ids := range groups {
		if len(ids) < 2 {
			continue
		}
		keep := ids[0]
		for _, id := range ids[1:] {
			if score(tasks[id], id, opts) > score(tasks[keep], keep, opts) {
				keep = id
			}
		}
		for _, id := range ids {
			if id == keep {
				continue
			}
			dropped = append(dropped, Dropped{Task: tasks[id], KeptID: keep, Reason: ReasonCrossFileTitle})
			delete(tasks, id)
		}
	}
	sortDropped(dropped)
	return dropped
}

// score orders the Pass B preferences lexicographically: completion state
// dominates inbox placement, which dominates mapping state.
func score(t task.Task, id string, opts Options) int {
	s := 0
	if !t.Completed {
		s += 4
	}
	if !isInbox(t.Path(), opts.Inbox) {
		s += 2
	}
	if opts.IsMapped != nil && opts.IsMapped(id) {
		s++
	}
	return s
}

func isInbox(path, inbox string) bool {
	if path == "" || inbox == "" {
		return false
	}
	return filepath.Clean(path) == filepath.Clean(inbox)
}

func sortedIDs(tasks map[string]task.Task) []string {
	ids := make([]string, 0, len(tasks))
	for id := range tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sortDropped(d []Dropped) {
	sort.Slice(d, func(i, j int) bool {
		return d[i].Task.ID < d[j].Task.ID
	})
}
