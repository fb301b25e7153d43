// Package store persists the sync mapping state in SQLite.
//
// The store is the persistence collaborator of the reconciliation engine:
//   - Load reads the full mapping table into a mapping.State
//   - Save replaces the full table inside one transaction, so a crash
//     leaves either the previous or the new state, never a mix
//
// # Versioning
//
// PRAGMA user_version records the mapping.SchemaVersion the rows were
// written under. Ids and hashes are content-derived, so rows written under
// an older scheme cannot be interpreted safely. Load therefore discards them
// and returns an empty state; the engine then reconnects or recreates every
// task instead of deleting anything.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
package store
