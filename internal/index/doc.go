// Package index is the searchable store of active rule documents.
//
// Writes (Upsert, Delete) are accepted into a pending buffer and become
// visible to reads only when a refresh applies them to the underlying
// BadgerDB. Refresh is the explicit barrier: once it returns nil, every
// write accepted before the call is visible to GetByKey and the Find
// family. Without it, visibility is "soon": an Index opened with a
// positive RefreshInterval refreshes in the background, and one opened
// without never makes writes visible on its own.
//
// Storage layout in Badger:
//
//	d\x00<active rule key>                      msgpack document
//	r\x00<rule key>\x00<active rule key>         empty, posting for FindByRule
//	p\x00<profile key>\x00<active rule key>      empty, posting for FindByProfile
//
// Keys never contain control characters (see ir.ActiveRuleKey.Validate),
// so NUL is a safe separator.
//
// Reads use Badger read transactions and never block writers.
package index
