package decl

import (
	"slices"

	"cuelang.org/go/cue/token"

	"github.com/groundworklabs/groundwork/internal/attr"
)

// ResourceSpec is one declared resource node: a logical name, a type tag
// from the schema registry, its attribute expressions, and policy flags.
// Immutable within one reconciliation pass once the graph is built.
type ResourceSpec struct {
	Name  string   `json:"name"`
	Type  string   `json:"type"`
	Attrs attr.Map `json:"attrs"`

	// Protect refuses destroy for this node regardless of declaration
	// changes. It is recorded into state at apply time so the guard holds
	// even after the node disappears from the declaration.
	Protect bool `json:"protect,omitempty"`

	// DependsOn adds explicit ordering edges on top of the implicit ones
	// inferred from attribute references.
	DependsOn []string `json:"depends_on,omitempty"`

	// Pos is the declaration site, for diagnostics only.
	Pos token.Pos `json:"-"`
}

// References returns every ${node.output} expression in the spec's
// attributes, in deterministic order.
func (s *ResourceSpec) References() []attr.Ref {
	return attr.CollectRefs(s.Attrs)
}

// Declaration is the full desired-state description of all resource nodes.
type Declaration struct {
	Resources []ResourceSpec `json:"resources"`
}

// Names returns all declared logical names in sorted order.
func (d *Declaration) Names() []string {
	names := make([]string, 0, len(d.Resources))
	for _, r := range d.Resources {
		names = append(names, r.Name)
	}
	slices.Sort(names)
	return names
}

// Get returns the spec for a logical name.
func (d *Declaration) Get(name string) (*ResourceSpec, bool) {
	for i := range d.Resources {
		if d.Resources[i].Name == name {
			return &d.Resources[i], true
		}
	}
	return nil, false
}
