// Package ir provides the canonical index-side representation of active rules.
//
// An active rule is the activation of a rule (repository + rule key) inside a
// quality profile. The relational layer stores loosely typed strings; this
// package owns the closed types they are parsed into at the index boundary:
//   - RuleKey, ProfileKey and the composite ActiveRuleKey
//   - Severity and Inheritance enumerations with exhaustive parsing
//   - ActiveRule, the denormalized document held by the index
//
// ir imports nothing internal. Every other package may depend on it.
package ir
