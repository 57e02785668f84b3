package graph

import (
	"fmt"
	"slices"
)

// TopologicalOrder returns the node names in apply order: every node appears
// after all of its dependencies. Independent nodes tie-break
// lexicographically so the order, and everything rendered from it, is
// deterministic. The executor may still run independent nodes concurrently;
// this order is the sequential reference.
func (g *Graph) TopologicalOrder() ([]string, error) {
	result := make([]string, 0, len(g.nodes))
	visited := make(map[string]bool)
	visiting := make(map[string]bool)

	var visit func(name string) error
	visit = func(name string) error {
		if visited[name] {
			return nil
		}
		if visiting[name] {
			// Build rejects cycles; this guards direct construction paths.
			return fmt.Errorf("circular dependency detected at %s", name)
		}

		visiting[name] = true
		node := g.nodes[name]

		deps := slices.Clone(node.Dependencies)
		slices.Sort(deps)
		for _, dep := range deps {
			if err := visit(dep); err != nil {
				return err
			}
		}

		visiting[name] = false
		visited[name] = true
		result = append(result, name)
		return nil
	}

	for _, name := range g.Names() {
		if err := visit(name); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// ReverseTopologicalOrder returns the destroy order: every node appears
// before all of its dependencies, so dependents are torn down first.
func (g *Graph) ReverseTopologicalOrder() ([]string, error) {
	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}
	slices.Reverse(order)
	return order, nil
}
