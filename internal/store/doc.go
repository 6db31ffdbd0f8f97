// Package store provides the SQLite-backed relational store for quality
// profiles, rules, rule parameters and their activations.
//
// Writes go through a Session, which wraps a single transaction. A session
// tracks the activation keys it touches; only after the transaction commits
// are those keys handed to the registered CommitHooks. A rolled back session
// never reaches a hook, so downstream consumers only ever see committed rows.
//
// Reads on Store always observe committed state. They are expressed as
// queryir values and compiled by querysql, so every finder shares the same
// parameter binding and ORDER BY id ASC ordering.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity and cascades
//
// The pool holds a single connection. A goroutine holding an open Session
// must not call Store read methods until it commits or rolls back.
package store
