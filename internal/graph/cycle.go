package graph

// findCycle returns a cycle path if the dependency edges contain one, nil
// otherwise. Strongly connected components are found with Tarjan's
// algorithm; any SCC with more than one member, or a single member with a
// self-loop, is a cycle.
func (g *Graph) findCycle() []string {
	adj := g.adjacency()
	sccs := tarjanSCC(adj)

	for _, scc := range sccs {
		if len(scc) > 1 {
			return reconstructCyclePath(scc, adj)
		}
		if len(scc) == 1 && hasSelfLoop(scc[0], adj) {
			return []string{scc[0], scc[0]}
		}
	}
	return nil
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, adj map[string][]string) bool {
	for _, neighbor := range adj[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Returns a list of SCCs, each a list of node names. Single-node SCCs
// without self-loops are not cycles.
func tarjanSCC(adj map[string][]string) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range adj[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root node: pop the stack into an SCC
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for node := range adj {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// reconstructCyclePath builds a readable cycle path from an SCC: start at
// the first member, follow edges inside the SCC until the start reappears.
func reconstructCyclePath(scc []string, adj map[string][]string) []string {
	if len(scc) == 0 {
		return nil
	}

	sccSet := make(map[string]bool, len(scc))
	for _, node := range scc {
		sccSet[node] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range adj[current] {
			if sccSet[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}

		if next == "" {
			break
		}

		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}

	return path
}
