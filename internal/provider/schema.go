package provider

import (
	"slices"

	"github.com/groundworklabs/groundwork/internal/attr"
)

// Kind is the expected shape of an input attribute.
type Kind string

const (
	KindString Kind = "string"
	KindInt    Kind = "int"
	KindBool   Kind = "bool"
	KindList   Kind = "list"
	KindMap    Kind = "map"
)

// KindOf returns the Kind of a concrete attribute value.
func KindOf(v attr.Value) Kind {
	switch v.(type) {
	case attr.String:
		return KindString
	case attr.Int:
		return KindInt
	case attr.Bool:
		return KindBool
	case attr.List:
		return KindList
	case attr.Map:
		return KindMap
	default:
		return ""
	}
}

// Schema describes one manageable resource type: which input attributes it
// takes, which of them cannot change without replacing the resource, and
// which output attributes the provider computes.
type Schema struct {
	// Type is the registered type tag, e.g. "object-store-bucket".
	Type string

	// Required input attribute names.
	Required []string

	// Optional input attribute names.
	Optional []string

	// Kinds maps every input attribute to its expected kind.
	Kinds map[string]Kind

	// Immutable marks inputs whose change forces destroy-then-create.
	Immutable map[string]bool

	// Enum restricts string inputs to a fixed set of values.
	Enum map[string][]string

	// Outputs are the computed attribute names dependents may reference.
	Outputs []string
}

// KnownInput reports whether name is a declared input attribute.
func (s Schema) KnownInput(name string) bool {
	return slices.Contains(s.Required, name) || slices.Contains(s.Optional, name)
}

// HasOutput reports whether name is a computed output dependents may read.
func (s Schema) HasOutput(name string) bool {
	return slices.Contains(s.Outputs, name)
}

// ImmutableSet returns the immutable-attribute lookup used for diffing.
// Never nil.
func (s Schema) ImmutableSet() map[string]bool {
	if s.Immutable == nil {
		return map[string]bool{}
	}
	return s.Immutable
}

// Registry holds the schemas for every resource type a provider can manage.
type Registry struct {
	schemas map[string]Schema
}

// NewRegistry builds a registry from the given schemas.
func NewRegistry(schemas ...Schema) *Registry {
	r := &Registry{schemas: make(map[string]Schema, len(schemas))}
	for _, s := range schemas {
		r.schemas[s.Type] = s
	}
	return r
}

// Lookup returns the schema for a type tag.
func (r *Registry) Lookup(typeName string) (Schema, bool) {
	s, ok := r.schemas[typeName]
	return s, ok
}

// Types returns all registered type tags in sorted order.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.schemas))
	for t := range r.schemas {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// PolicyScopes are the accepted values for an assumable role's policy_scope
// input. Broad grants stay possible but must be asked for by name.
var PolicyScopes = []string{"admin", "power-user", "read-only"}

// DefaultRegistry returns the schemas for the built-in resource types: the
// remote-state bucket, its lock table, an OIDC federation trust, and the
// roles that assume it.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Schema{
			Type:     "object-store-bucket",
			Required: []string{"name"},
			Optional: []string{"versioning", "force_destroy", "tags"},
			Kinds: map[string]Kind{
				"name":          KindString,
				"versioning":    KindBool,
				"force_destroy": KindBool,
				"tags":          KindMap,
			},
			Immutable: map[string]bool{"name": true},
			Outputs:   []string{"id", "arn"},
		},
		Schema{
			Type:     "lock-table",
			Required: []string{"name", "hash_key"},
			Optional: []string{"billing_mode"},
			Kinds: map[string]Kind{
				"name":         KindString,
				"hash_key":     KindString,
				"billing_mode": KindString,
			},
			Immutable: map[string]bool{"name": true, "hash_key": true},
			Enum: map[string][]string{
				"billing_mode": {"on-demand", "provisioned"},
			},
			Outputs: []string{"id", "arn"},
		},
		Schema{
			Type:     "federation-trust",
			Required: []string{"url"},
			Optional: []string{"audiences", "thumbprints"},
			Kinds: map[string]Kind{
				"url":         KindString,
				"audiences":   KindList,
				"thumbprints": KindList,
			},
			Immutable: map[string]bool{"url": true},
			Outputs:   []string{"id", "arn"},
		},
		Schema{
			Type:     "assumable-role",
			Required: []string{"name", "trust_source"},
			Optional: []string{"policy_scope", "max_session_seconds"},
			Kinds: map[string]Kind{
				"name":                KindString,
				"trust_source":        KindString,
				"policy_scope":        KindString,
				"max_session_seconds": KindInt,
			},
			Immutable: map[string]bool{"name": true},
			Enum: map[string][]string{
				"policy_scope": PolicyScopes,
			},
			Outputs: []string{"id", "arn"},
		},
	)
}
