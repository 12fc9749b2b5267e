// Package catalog provides the SQLite-backed catalog of a repository root.
//
// The catalog holds three tables:
//   - items: one row per archived snapshot, keyed by (name, version)
//   - versions: the highest version ever issued per name
//   - config: key/value repository settings
//
// # Invariants
//
// Enforced by constraints and triggers in migrations/, not by convention:
//   - items.archive is UNIQUE and rows are never deleted, so a blob filename
//     is never reused for the life of the repository
//   - versions rows are never deleted and never decrease
//   - config rows cannot be deleted
//   - an item's (name, version, archive) never changes after insert
//
// # Transactions
//
// Every mutating method runs in its own transaction and commits before it
// returns. These are the commit checkpoints of an invocation: after
// NextVersion, after InsertItem, after MarkStatus, after SetSetting and after
// MarkDeleted. Nothing is rolled back across checkpoints.
//
// # Ordering
//
// Timestamps are stored as fixed-width UTC text so that lexical order is
// chronological. Equal timestamps fall back to rowid (insertion order).
//
// Callers are expected to hold the repository lock (package lock) for the
// lifetime of a Catalog.
package catalog
