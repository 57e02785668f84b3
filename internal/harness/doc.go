// Package harness provides scenario-driven conformance testing for the
// reconciliation engine.
//
// The harness runs a sequence of passes against a real state backend and
// the in-memory provider, checks per-pass outcomes, and validates the
// final recorded state and provider journal.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	steps:
//	  - apply:
//	      bucket:
//	        type: object-store-bucket
//	        attrs: { name: tf-state, versioning: true }
//	    expect:
//	      create: 1
//	  - destroy: true
//	    expect:
//	      destroy: 1
//	assertions:
//	  - type: record_absent
//	    name: bucket
//	  - type: serial
//	    value: 2
//
// Each step runs exactly one pass: "plan" computes without mutating,
// "apply" reconciles a declaration, "destroy" tears everything down. The
// expect clause is a subset match on the pass's plan summary plus failed
// and skipped node counts.
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - record_exists: the named record is present, with optional subset
//     checks on protect, dependencies, and recorded inputs
//   - record_absent: the named record is gone
//   - journal_contains: the provider journal holds a matching mutation
//   - journal_count: a matching mutation appears exactly N times
//   - journal_order: mutations appear in the given order, not necessarily
//     consecutively
//   - serial: the final snapshot serial
//
// # Deterministic Runs
//
// Runs default to parallelism 1 and sequential idempotency tokens
// (testutil.SequenceTokenGenerator), so the provider journal, assigned
// identities, and state serials line up across runs. That is what makes
// golden transcript comparison possible.
package harness
