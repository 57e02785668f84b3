// Package engine reconciles a declaration against recorded state through a
// provider.
//
// A pass runs in phases:
//
//  1. Graph build: reference edges are extracted and validated; cyclic or
//     unresolvable declarations are rejected before any provider call.
//  2. Lock: the state lease is taken for the whole pass so two passes never
//     interleave writes.
//  3. Refresh: every recorded resource is described against the provider and
//     live reality becomes the diff baseline. A resource that vanished
//     remotely drops out of the baseline and plans as a create.
//  4. Plan: each node gets an action (create, update, replace, no-op,
//     destroy) with the attribute diff that justifies it. Nodes removed from
//     the declaration plan as destroys in reverse recorded-dependency order.
//  5. Apply: a bounded worker pool walks the graph. A node starts only after
//     every dependency's record committed; transient provider failures retry
//     with exponential backoff; a failed node skips its dependents and the
//     rest of the graph keeps going.
//
// # Commit discipline
//
// Each node's record is written through the state backend immediately after
// its provider call succeeds, before any dependent is released. Reference
// expressions always resolve from committed records, so a dependent can never
// observe outputs that were not durably recorded first. Apply is not atomic
// across nodes: a partially-applied pass leaves valid state and rerunning the
// same declaration converges.
//
// # Destroy protection
//
// A node recorded with protection is never destroyed, whether the destroy
// comes from removal, from a replace, or from a full teardown. The node fails
// with ProtectedResourceError and no provider call is made for it; everything
// not depending on it proceeds.
package engine
