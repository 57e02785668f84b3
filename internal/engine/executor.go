package engine

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/groundworklabs/groundwork/internal/attr"
	"github.com/groundworklabs/groundwork/internal/decl"
	"github.com/groundworklabs/groundwork/internal/state"
)

// NodeStatus is a node's terminal state within one pass.
type NodeStatus string

const (
	StatusApplied NodeStatus = "applied"
	StatusFailed  NodeStatus = "failed"
	StatusSkipped NodeStatus = "skipped"
)

// NodeResult records one executed node's outcome.
type NodeResult struct {
	Name     string
	Action   Action
	Status   NodeStatus
	Err      error
	Attempts int
	Duration time.Duration
}

// Result is the outcome of one apply pass.
type Result struct {
	Plan *Plan

	// Nodes holds the outcome of every non-no-op plan entry, keyed by name.
	Nodes map[string]*NodeResult

	Created   int
	Updated   int
	Replaced  int
	Destroyed int
	Failed    int
	Skipped   int

	Duration time.Duration
}

// OK reports whether every planned change landed.
func (r *Result) OK() bool {
	return r.Failed == 0 && r.Skipped == 0
}

// Names returns the executed node names in sorted order.
func (r *Result) Names() []string {
	names := make([]string, 0, len(r.Nodes))
	for name := range r.Nodes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// execNode is one schedulable unit of the apply walk.
type execNode struct {
	entry  PlanEntry
	spec   *decl.ResourceSpec // nil for destroy entries
	record *state.Record      // nil for creates
	deps   []string           // declared dependency names, for the record
	waits  []string           // executing nodes that must settle first
}

// buildExecNodes turns the plan's change entries into schedulable nodes with
// their wait edges. Forward actions wait on executing declared dependencies;
// anything embedding a destroy additionally waits on the destroys of nodes
// recorded as depending on it, so dependents are torn down first.
func (p *pass) buildExecNodes() map[string]*execNode {
	nodes := make(map[string]*execNode)
	for _, entry := range p.plan.Entries {
		if entry.Action == ActionNoop {
			continue
		}
		n := &execNode{entry: entry, record: p.snap.Record(entry.Name)}
		if gn, ok := p.graph.Node(entry.Name); ok {
			n.spec = gn.Spec
			n.deps = gn.Dependencies
		}
		nodes[entry.Name] = n
	}

	for name, n := range nodes {
		switch n.entry.Action {
		case ActionCreate, ActionUpdate, ActionReplace:
			for _, dep := range n.deps {
				if _, executing := nodes[dep]; executing {
					n.waits = append(n.waits, dep)
				}
			}
		}
		if n.entry.Action == ActionReplace || n.entry.Action == ActionDestroy {
			for otherName, other := range nodes {
				if other.entry.Action != ActionDestroy || otherName == name {
					continue
				}
				if other.record != nil && slices.Contains(other.record.Dependencies, name) {
					n.waits = append(n.waits, otherName)
				}
			}
		}
		slices.Sort(n.waits)
		n.waits = slices.Compact(n.waits)
	}
	return nodes
}

// execute walks the executable nodes with a bounded worker pool. Scheduling
// runs in waves: every node whose waits are settled launches under the
// semaphore, the wave drains, and the ready set is recomputed. Cancellation
// stops new launches; in-flight nodes finish and their records land before
// the walk returns.
func (e *Engine) execute(ctx context.Context, p *pass) *Result {
	start := time.Now()
	result := &Result{
		Plan:  p.plan,
		Nodes: make(map[string]*NodeResult),
	}

	pending := p.buildExecNodes()
	if len(pending) == 0 {
		result.Duration = time.Since(start)
		return result
	}

	committed := newCommitLog(p.snap)

	sem := make(chan struct{}, e.parallelism)
	var mu sync.Mutex
	applied := make(map[string]bool)
	failed := make(map[string]bool)

	record := func(nr *NodeResult) {
		mu.Lock()
		defer mu.Unlock()
		result.Nodes[nr.Name] = nr
		switch nr.Status {
		case StatusApplied:
			applied[nr.Name] = true
			switch nr.Action {
			case ActionCreate:
				result.Created++
			case ActionUpdate:
				result.Updated++
			case ActionReplace:
				result.Replaced++
			case ActionDestroy:
				result.Destroyed++
			}
		case StatusFailed:
			failed[nr.Name] = true
			result.Failed++
		case StatusSkipped:
			failed[nr.Name] = true
			result.Skipped++
		}
	}

	for len(pending) > 0 {
		if ctx.Err() != nil {
			// No new node starts after cancellation.
			for name, n := range pending {
				record(&NodeResult{Name: name, Action: n.entry.Action, Status: StatusSkipped, Err: ctx.Err()})
				delete(pending, name)
			}
			break
		}

		// The wave fully drained, so applied/failed are settled reads here.
		type blockedNode struct {
			node *execNode
			dep  string
		}
		var ready []*execNode
		var blocked []blockedNode
		for _, name := range sortedNodeNames(pending) {
			n := pending[name]
			badDep := ""
			waiting := false
			for _, dep := range n.waits {
				if failed[dep] {
					badDep = dep
					break
				}
				if !applied[dep] {
					waiting = true
				}
			}
			switch {
			case badDep != "":
				blocked = append(blocked, blockedNode{node: n, dep: badDep})
			case !waiting:
				ready = append(ready, n)
			}
		}

		for _, b := range blocked {
			name := b.node.entry.Name
			delete(pending, name)
			record(&NodeResult{
				Name:   name,
				Action: b.node.entry.Action,
				Status: StatusSkipped,
				Err:    &skipError{Dependency: b.dep},
			})
			e.logger.Warn("skipping node", "node", name, "reason", "dependency failed", "dependency", b.dep)
		}

		if len(ready) == 0 {
			if len(blocked) == 0 && len(pending) > 0 {
				// Every remaining node waits on something that never
				// settles. Plan construction keeps wait edges acyclic, so
				// this is a bug guard, not a reachable state.
				for name, n := range pending {
					record(&NodeResult{
						Name:   name,
						Action: n.entry.Action,
						Status: StatusFailed,
						Err:    fmt.Errorf("unschedulable: still waiting on %v", n.waits),
					})
					delete(pending, name)
				}
			}
			continue
		}

		var wg sync.WaitGroup
		for _, n := range ready {
			delete(pending, n.entry.Name)
			wg.Add(1)
			go func(n *execNode) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()

				if ctx.Err() != nil {
					record(&NodeResult{Name: n.entry.Name, Action: n.entry.Action, Status: StatusSkipped, Err: ctx.Err()})
					return
				}
				record(e.executeNode(ctx, n, committed))
			}(n)
		}
		wg.Wait()
	}

	result.Duration = time.Since(start)
	return result
}

func sortedNodeNames(nodes map[string]*execNode) []string {
	names := make([]string, 0, len(nodes))
	for name := range nodes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// commitLog is the mutex-guarded view of committed records the executor
// resolves references from. Seeded with the refreshed snapshot, updated as
// each node's record write lands.
type commitLog struct {
	mu      sync.Mutex
	records map[string]*state.Record
}

func newCommitLog(snap *state.Snapshot) *commitLog {
	c := &commitLog{records: make(map[string]*state.Record, len(snap.Records))}
	for i := range snap.Records {
		rec := snap.Records[i]
		c.records[rec.Name] = &rec
	}
	return c
}

func (c *commitLog) put(rec *state.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[rec.Name] = rec
}

func (c *commitLog) drop(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.records, name)
}

// lookup resolves a reference expression from committed outputs.
func (c *commitLog) lookup(r attr.Ref) (attr.Value, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[r.Node]
	if !ok {
		return nil, false
	}
	v, ok := rec.Outputs[r.Output]
	return v, ok
}
