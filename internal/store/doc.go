// Package store provides SQLite-backed durable storage for the engine's
// event and evaluation log.
//
// The store is an append-only log with:
//   - Events: every event the engine processed, with its logical seq
//   - Evaluations: one record per (event, rule) with the match result
//
// # Logical Time
//
// All ordering uses seq INTEGER (the engine's logical clock), never the
// event timestamp. Every query orders by seq ASC, then rule_id ASC COLLATE
// BINARY, so reads return identical results across runs.
//
// # Values
//
// Event values and aggregate results are stored as canonical JSON
// (scalar.MarshalCanonical) next to their kind, so Int(10) and Float(10)
// round-trip as the types they were written with.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Evaluations must reference a logged event
//
// Compiled rules are never stored. A replay recompiles rule sources and
// re-feeds the logged events.
package store
