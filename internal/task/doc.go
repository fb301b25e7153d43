// Package task defines the unified task record shared by every source and
// destination adapter, together with the content-derived identity and
// change-detection hash used by the reconciliation engine.
//
// Task values are ephemeral: adapters rebuild them on every scan or fetch.
// Nothing in this package performs I/O, so identity and hash generation are
// pure and safe for concurrent use.
//
// Two digests are derived from a task:
//   - GenerateID covers path, title, due/start/scheduled dates, sorted tags
//     and priority. Changing any of these yields a new id, trading id
//     stability for simple drift detection.
//   - GenerateHash covers title, completion, priority, all four dates, list
//     and tags. It only decides whether a writeback or push is needed.
//
// Both use canonical JSON (sorted keys, NFC-normalized strings) hashed with
// SHA-256 under a versioned domain prefix.
package task
