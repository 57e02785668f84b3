// Package provider defines the narrow interface through which the engine
// touches remote infrastructure, the schema registry describing each
// manageable resource type, and an in-memory reference implementation used by
// the CLI's memory mode and by tests.
//
// Every mutating call carries a client-supplied idempotency token, so a
// retried call after a network failure cannot double-apply.
package provider
