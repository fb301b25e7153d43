// Package engine reconciles a note collection with an external task store.
//
// A run is a pure function of three snapshots, a source scan, a
// destination fetch and the persisted mapping state, plus a Config:
//
//  1. Scan the source, assign content ids and drop duplicates.
//  2. Fetch the destination.
//  3. Abort with no side effects if the scan collapsed: more than
//     SafetyThreshold tasks are mapped and fewer than half of them remain.
//  4. Walk every prior mapping: converge pairs present on both sides,
//     relink or create when the destination record vanished, relink or
//     delete when the source task vanished, and collect mappings gone from
//     both.
//  5. Reconnect or create unmapped source tasks.
//  6. Optionally append unmatched destination records to the inbox note.
//  7. Persist the mapping state unless this is a dry run.
//
// The source always wins a conflict. Destination changes reach the source
// only through the writeback channels enabled in Config.Writeback, and only
// when the task's note is unmodified since the scan started.
//
// Only one Run may be in flight at a time.
package engine
