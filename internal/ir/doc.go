// Package ir provides the value and record types of the event store.
//
// ir imports nothing internal; every other package builds on it.
//
// Key design constraints:
//   - NO float types anywhere - numbers are int64 so hashes are reproducible
//   - Canonical JSON (RFC 8785) is the only serialization that is ever hashed
//   - Timestamps enter hashes as UTC millisecond ISO-8601 strings
//   - Proofs are never part of a hashed record; they are attached later
package ir
