// Package engine assembles the active-rule index from configuration.
//
// An Engine owns the relational store, the document index and the
// synchronizer that connects them:
//
//	Store commit -> Synchronizer hook -> Project -> Index writer -> Refresh -> Queries
//
// Writes go through the store. Every committed change to an activation
// reaches the index as a pending write; it becomes searchable after the
// next refresh, explicit or periodic. Reads go to the index.
//
// The Engine is safe for concurrent use. Store sessions are serialized by
// the store's single connection, index writes to different keys proceed
// independently, and reads never block writers.
package engine
