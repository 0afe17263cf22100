// Package store provides SQLite-backed durable storage for the engine's
// frame lifecycle journal.
//
// The journal is a single append-only table of entries, one per transition:
// dispatch, suspend, commit, park, resume, complete, rollback and reject.
// Commit entries carry the committed state and the State Cell version they
// produced; rollback entries carry the discarded working copy.
//
// # Critical Patterns
//
// Logical time: all ordering uses seq (the engine's logical clock), never
// timestamps. Every query orders by seq ASC, so reads are identical across
// runs with the same inputs.
//
// Canonical payloads: state and result columns hold RFC 8785 canonical JSON
// produced by ir.MarshalStored, which also admits null.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//
// The schema version lives in PRAGMA user_version. Open applies pending
// migrations and refuses journals written by a newer schema. The meta
// table records which ckpt release created the journal.
//
// *Store implements engine.Journal, so it can be passed to
// engine.WithJournal directly.
package store
