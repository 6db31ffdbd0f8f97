// Package harness runs YAML scenarios against a live engine.
//
// A scenario commits activations through the store, refreshes the index
// and asserts on what queries return. It exercises the whole path from
// relational commit to search result.
//
// # Scenario Format
//
//	name: severity_update
//	description: "Changing severity replaces the indexed value"
//	language: js
//	steps:
//	  - activate:
//	      profile: p1
//	      rule: javascript:S001
//	      severity: BLOCKER
//	      params: { min: "1", max: "10" }
//	  - refresh: true
//	  - assert:
//	      type: get
//	      key: p1:javascript:S001
//	      expect: { severity: BLOCKER }
//	  - activate:
//	      profile: p1
//	      rule: javascript:S001
//	      severity: MINOR
//	  - refresh: true
//	assertions:
//	  - type: get
//	    key: p1:javascript:S001
//	    expect: { severity: MINOR, params: {} }
//
// Each step does exactly one of: activate, deactivate, delete_profile,
// refresh, reindex, reconcile or assert. A step may name the error kind
// it expects with expect_error; the step then fails if no error or a
// different kind is returned.
//
// # Assertion Types
//
//   - get: the document at key is visible; expect is a subset match on its
//     canonical form, and a null value requires the field to be absent
//   - absent: no document is visible at key
//   - find_by_rule, find_by_profile, find: query results, checked by
//     count and, when given, the exact ordered keys
//   - count: total number of visible documents
//   - store_count: number of activations committed in the store
//
// # Visibility
//
// The harness never refreshes on its own. Writes become visible only after
// a refresh step, so scenarios state their visibility assumptions.
//
// # Golden Snapshots
//
// RunWithGolden compares the step trace and the final visible documents,
// serialized as canonical JSON, against testdata/golden/<name>.golden.
// Regenerate with:
//
//	go test ./internal/harness -update
package harness
