// Package state provides durable storage for resource records: the
// last-known remote reality each reconciliation pass diffs against.
//
// Two backends implement the Backend contract:
//   - SQLite (default): single-file state, WAL mode, suited to one
//     operator or CI job per state file.
//   - PostgreSQL: shared-server state for teams, same contract.
//
// # Write discipline
//
//   - Every mutation runs in a transaction: the record set changes, the
//     snapshot serial advances, and the body checksum is recomputed
//     together. A concurrent reader never observes a half-written record.
//   - Records carry seq, the serial at which they were last written.
//     Ordering uses this logical clock, never wall time.
//   - ReadSnapshot verifies the checksum on every read. A mismatch is
//     surfaced as StateCorruptionError and never repaired silently.
//   - WriteSnapshot is optimistically concurrent: it fails with
//     ErrSerialConflict when the stored serial moved past the serial the
//     caller read.
//
// # Locking
//
// Reconciliation passes take an exclusive lease before touching records.
// A live lease held elsewhere yields LockContentionError carrying the
// holder, operation, and acquire time. An expired lease is stolen, which
// recovers from crashed holders without operator intervention.
//
// All stored attribute data uses RFC 8785 canonical JSON via
// internal/attr, so identical state always produces identical bytes and
// checksums.
package state
