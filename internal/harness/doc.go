// Package harness runs end-to-end sync scenarios described in YAML.
//
// A scenario seeds a vault of Markdown notes, then performs one or more sync
// runs. Before each run it may rewrite notes or edit the destination, and
// after each run it checks the reported counts. Assertions on the final notes,
// destination and mapping state follow the last run.
//
// # Scenario Format
//
//	name: completion_writeback
//	description: "A task completed in the destination is ticked in its note"
//	sync:
//	  writeback: { completion: true }
//	notes:
//	  daily.md: |
//	    - [ ] Pay rent 📅 2026-03-01
//	runs:
//	  - expect: { created: 1 }
//	  - destination:
//	      - title: Pay rent
//	        completed: true
//	        completed_on: 2026-02-08
//	    expect: { completion_writebacks: 1 }
//	assertions:
//	  - type: note_contains
//	    note: daily.md
//	    text: "- [x] Pay rent"
//
// # Assertion Types
//
//   - note_contains: the note includes text
//   - note_absent: the note does not include text
//   - destination_count: the destination holds exactly count records
//   - destination_task: the record with title matches the expected fields
//   - mapping_count: the state holds exactly count mappings
//
// # Environment
//
// Every scenario runs against a fresh temp vault read by markdown.Source,
// with in-memory fakes from testutil for the destination and the mapping
// state. Run ids are fixed, and destination ids are sequential, so the
// golden snapshot written by RunWithGolden is stable.
package harness
