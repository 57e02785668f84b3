package graph

import (
	"fmt"
	"slices"

	"github.com/groundworklabs/groundwork/internal/decl"
	"github.com/groundworklabs/groundwork/internal/provider"
)

// Node is one resource in the dependency graph. Dependencies must be applied
// before this node; Dependents wait on it.
type Node struct {
	Spec         *decl.ResourceSpec
	Dependencies []string // sorted, deduped
	Dependents   []string // sorted, deduped
}

// Graph is the validated DAG over a declaration.
type Graph struct {
	nodes map[string]*Node
}

// Build constructs the dependency graph for a declaration. Explicit
// depends_on entries and implicit attribute references both become edges.
// Fails with UnresolvedReferenceError for edges pointing nowhere and with
// CycleError if the edge set is not acyclic.
func Build(d *decl.Declaration, reg *provider.Registry) (*Graph, error) {
	g := &Graph{nodes: make(map[string]*Node, len(d.Resources))}

	for i := range d.Resources {
		spec := &d.Resources[i]
		if _, exists := g.nodes[spec.Name]; exists {
			return nil, fmt.Errorf("duplicate resource name %q", spec.Name)
		}
		g.nodes[spec.Name] = &Node{Spec: spec}
	}

	for name, node := range g.nodes {
		deps := make(map[string]bool)

		for _, target := range node.Spec.DependsOn {
			if _, ok := g.nodes[target]; !ok {
				return nil, &UnresolvedReferenceError{
					Node:   name,
					Target: target,
					Reason: "no such resource in declaration",
				}
			}
			deps[target] = true
		}

		for _, ref := range node.Spec.References() {
			target, ok := g.nodes[ref.Node]
			if !ok {
				return nil, &UnresolvedReferenceError{
					Node:   name,
					Target: ref.Node,
					Output: ref.Output,
					Reason: "no such resource in declaration",
				}
			}
			schema, ok := reg.Lookup(target.Spec.Type)
			if ok && !schema.HasOutput(ref.Output) {
				return nil, &UnresolvedReferenceError{
					Node:   name,
					Target: ref.Node,
					Output: ref.Output,
					Reason: fmt.Sprintf("type %q has no output %q", target.Spec.Type, ref.Output),
				}
			}
			deps[target.Spec.Name] = true
		}

		node.Dependencies = sortedKeys(deps)
	}

	for name, node := range g.nodes {
		for _, dep := range node.Dependencies {
			g.nodes[dep].Dependents = append(g.nodes[dep].Dependents, name)
		}
	}
	for _, node := range g.nodes {
		slices.Sort(node.Dependents)
	}

	if cycle := g.findCycle(); cycle != nil {
		return nil, &CycleError{Path: cycle}
	}

	return g, nil
}

// Node returns the graph node for a logical name.
func (g *Graph) Node(name string) (*Node, bool) {
	n, ok := g.nodes[name]
	return n, ok
}

// Names returns every node name in sorted order.
func (g *Graph) Names() []string {
	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Len returns the node count.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// adjacency returns the dependency edge map used by cycle detection.
func (g *Graph) adjacency() map[string][]string {
	adj := make(map[string][]string, len(g.nodes))
	for name, node := range g.nodes {
		adj[name] = node.Dependencies
	}
	return adj
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
