package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/notesync/internal/task"
)

// DestinationCall records one call made to a Destination.
type DestinationCall struct {
	Op    string // "fetch", "create", "update", "move", "delete"
	ID    string
	Title string
}

// Destination is an in-memory task store. Update leaves the list alone, as
// list changes go through Move.
type Destination struct {
	mu      sync.Mutex
	records map[string]task.Task
	next    int
	calls   []DestinationCall

	// FailOps makes the named operations fail.
	FailOps map[string]error
}

// NewDestination creates an empty Destination.
func NewDestination() *Destination {
	return &Destination{records: map[string]task.Task{}, FailOps: map[string]error{}}
}

// FetchAll returns every record ordered by id.
func (d *Destination) FetchAll(ctx context.Context) ([]task.Task, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record(DestinationCall{Op: "fetch"}); err != nil {
		return nil, err
	}
	out := make([]task.Task, 0, len(d.records))
	for _, t := range d.records {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Create stores t under a new id.
func (d *Destination) Create(ctx context.Context, t task.Task) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record(DestinationCall{Op: "create", Title: t.Title}); err != nil {
		return "", err
	}
	d.next++
	id := fmt.Sprintf("dst-%03d", d.next)
	t = t.Clone()
	t.ID = id
	t.Source = nil
	d.records[id] = t
	return id, nil
}

// Update overwrites everything but the list.
func (d *Destination) Update(ctx context.Context, id string, t task.Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record(DestinationCall{Op: "update", ID: id, Title: t.Title}); err != nil {
		return err
	}
	cur, ok := d.records[id]
	if !ok {
		return fmt.Errorf("update %s: not found", id)
	}
	t = t.Clone()
	t.ID = id
	t.List = cur.List
	t.Source = nil
	d.records[id] = t
	return nil
}

// Move sets the record's list.
func (d *Destination) Move(ctx context.Context, id, list string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record(DestinationCall{Op: "move", ID: id}); err != nil {
		return err
	}
	cur, ok := d.records[id]
	if !ok {
		return fmt.Errorf("move %s: not found", id)
	}
	cur.List = list
	d.records[id] = cur
	return nil
}

// Delete removes the record.
func (d *Destination) Delete(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record(DestinationCall{Op: "delete", ID: id}); err != nil {
		return err
	}
	if _, ok := d.records[id]; !ok {
		return fmt.Errorf("delete %s: not found", id)
	}
	delete(d.records, id)
	return nil
}

// Put stores t directly, bypassing call recording. An empty id is assigned.
func (d *Destination) Put(t task.Task) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t.ID == "" {
		d.next++
		t.ID = fmt.Sprintf("dst-%03d", d.next)
	}
	d.records[t.ID] = t.Clone()
	return t.ID
}

// Get returns the record with id.
func (d *Destination) Get(id string) (task.Task, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.records[id]
	return t.Clone(), ok
}

// Len returns the number of records.
func (d *Destination) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.records)
}

// Calls returns every recorded call.
func (d *Destination) Calls() []DestinationCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]DestinationCall(nil), d.calls...)
}

// Writes returns the recorded calls other than fetches.
func (d *Destination) Writes() []DestinationCall {
	var out []DestinationCall
	for _, c := range d.Calls() {
		if c.Op != "fetch" {
			out = append(out, c)
		}
	}
	return out
}

// ResetCalls forgets recorded calls.
func (d *Destination) ResetCalls() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = nil
}

func (d *Destination) record(c DestinationCall) error {
	d.calls = append(d.calls, c)
	return d.FailOps[c.Op]
}
