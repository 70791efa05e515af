// Package store provides SQLite-backed durable storage for the event store.
//
// Tables:
//   - counts: next event number per root, plus the time of the last reservation
//   - events: append-only event records keyed by (root, number)
//   - snapshots: folded state per root, written by the block builder
//   - blocks: hash-chained Merkle commitments
//   - proofs: external anchoring status per block (accessed through bun)
//
// # Ordering
//
// Every multi-row read has an explicit ORDER BY: events by (root, number),
// roots by root, blocks by number. Keyset pagination is used throughout so
// pages are stable while writers append.
//
// # Atomicity
//
// Counter reservations, event inserts, snapshot upserts, block inserts and
// proof back-references all run through Tx, so a caller can commit a batch
// or a block as one SQLite transaction. A failed batch never leaves a gap.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Errors are wrapped with fmt.Errorf. ErrNotFound and ErrConflict are the
// only sentinels; callers map them to their own error taxonomy.
package store
