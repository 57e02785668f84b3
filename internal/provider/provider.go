package provider

import (
	"context"

	"github.com/groundworklabs/groundwork/internal/attr"
)

// Op identifies a provider operation, used in error reporting, fault
// injection, and the memory provider's call journal.
type Op string

const (
	OpDescribe Op = "describe"
	OpCreate   Op = "create"
	OpUpdate   Op = "update"
	OpDestroy  Op = "destroy"
)

// CreateRequest asks the provider to bring a new resource into existence.
type CreateRequest struct {
	Type  string   // registered schema type
	Token string   // idempotency token, stable across retries of one intent
	Attrs attr.Map // fully resolved input attributes
}

// CreateResult reports the remote identity the provider assigned and the
// full attribute set after creation, computed outputs included.
type CreateResult struct {
	Identity string
	Attrs    attr.Map
}

// UpdateRequest asks the provider to mutate an existing resource in place.
// Diff carries the changes that justify the call; Attrs is the full desired
// input set after the change.
type UpdateRequest struct {
	Type     string
	Identity string
	Token    string
	Diff     attr.Diff
	Attrs    attr.Map
}

// DestroyRequest asks the provider to remove a resource.
type DestroyRequest struct {
	Type     string
	Identity string
	Token    string
}

// Provider is the contract a resource backend must satisfy. Implementations
// must make every call safe to retry with the same token: a repeated Create
// returns the original result instead of creating twice, a repeated Destroy
// of an already-gone resource succeeds.
type Provider interface {
	// Describe returns the live attributes of the identified resource, or
	// ErrNotFound if the remote side has no such resource.
	Describe(ctx context.Context, typeName, identity string) (attr.Map, error)

	Create(ctx context.Context, req CreateRequest) (*CreateResult, error)

	// Update returns the full attribute set after the mutation.
	Update(ctx context.Context, req UpdateRequest) (attr.Map, error)

	Destroy(ctx context.Context, req DestroyRequest) error
}
