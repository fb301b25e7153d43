// Package edit implements the safety contract for every in-place mutation of
// a source note.
//
// An edit is a single-writer compare-and-swap against file content:
//
//  1. re-read the file immediately before mutating (never a cached copy)
//  2. verify the target line, whitespace-trimmed, equals the line captured
//     at scan time; otherwise fail with ContentMismatchError and write nothing
//  3. let the caller mutate only the minimal substring of that line
//  4. back up the whole file before the first write
//  5. write atomically (temp file + rename), keeping the file mode, line
//     endings and trailing newline as they were
//  6. audit every mutated or inserted line
//  7. tell the file-watch collaborator the path was self-modified
//
// Staleness is detected after the fact, never prevented by locking.
package edit
