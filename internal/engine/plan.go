package engine

import (
	"fmt"
	"slices"

	"github.com/groundworklabs/groundwork/internal/attr"
	"github.com/groundworklabs/groundwork/internal/graph"
	"github.com/groundworklabs/groundwork/internal/state"
)

// Action is what a pass intends to do with one node.
type Action string

const (
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionReplace Action = "replace"
	ActionNoop    Action = "no-op"
	ActionDestroy Action = "destroy"
)

// PlanEntry pairs a node with its decided action and the attribute diff that
// justifies it.
type PlanEntry struct {
	Name     string    `json:"name"`
	Type     string    `json:"type"`
	Action   Action    `json:"action"`
	Identity string    `json:"identity,omitempty"`
	Diff     attr.Diff `json:"diff,omitempty"`

	// Protected marks an entry whose action embeds a destroy of a node
	// under destroy protection. Apply refuses it with
	// ProtectedResourceError.
	Protected bool `json:"protected,omitempty"`
}

// Plan is one pass's decided actions. Entries are ordered for application:
// declared nodes in topological order, then removals in reverse recorded
// dependency order.
type Plan struct {
	Entries []PlanEntry `json:"entries"`
	Summary Summary     `json:"summary"`
}

// Summary counts entries per action.
type Summary struct {
	Create  int `json:"create"`
	Update  int `json:"update"`
	Replace int `json:"replace"`
	Noop    int `json:"no_op"`
	Destroy int `json:"destroy"`
}

// ChangeCount returns how many entries mutate something.
func (s Summary) ChangeCount() int {
	return s.Create + s.Update + s.Replace + s.Destroy
}

// HasChanges reports whether applying the plan would touch the provider.
func (p *Plan) HasChanges() bool {
	return p.Summary.ChangeCount() > 0
}

// Entry returns the entry for a logical name, or nil.
func (p *Plan) Entry(name string) *PlanEntry {
	for i := range p.Entries {
		if p.Entries[i].Name == name {
			return &p.Entries[i]
		}
	}
	return nil
}

// computePlan decides an action per node against the refreshed snapshot.
func (e *Engine) computePlan(g *graph.Graph, snap *state.Snapshot) (*Plan, error) {
	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	plan := &Plan{}
	declared := make(map[string]bool, g.Len())

	// Nodes planned for create or replace get fresh outputs during apply, so
	// their recorded outputs must not leak into dependents' desired values.
	// Topological order guarantees a dependency's entry is decided before any
	// referencer resolves against it.
	pending := make(map[string]bool, g.Len())

	for _, name := range order {
		node, _ := g.Node(name)
		spec := node.Spec
		declared[name] = true

		schema, ok := e.registry.Lookup(spec.Type)
		if !ok {
			return nil, fmt.Errorf("resource %q: unknown type %q", name, spec.Type)
		}

		desired := resolveForPlan(spec.Attrs, snap, pending)

		rec := snap.Record(name)
		if rec == nil {
			pending[name] = true
			// Immutability is irrelevant on a create, so the diff is not
			// tagged with replacement markers.
			plan.Entries = append(plan.Entries, PlanEntry{
				Name:   name,
				Type:   spec.Type,
				Action: ActionCreate,
				Diff:   attr.ComputeDiff(attr.Map{}, desired, nil),
			})
			continue
		}

		diff := attr.ComputeDiff(rec.Inputs, desired, schema.ImmutableSet())
		entry := PlanEntry{Name: name, Type: spec.Type, Identity: rec.Identity}
		switch {
		case diff.Empty():
			entry.Action = ActionNoop
		case diff.ForcesReplace():
			entry.Action = ActionReplace
			entry.Diff = diff
			entry.Protected = rec.Protect || spec.Protect
			pending[name] = true
		default:
			entry.Action = ActionUpdate
			entry.Diff = diff
		}
		plan.Entries = append(plan.Entries, entry)
	}

	// Recorded but no longer declared: destroys, dependents first.
	doomed := make([]state.Record, 0)
	for _, rec := range snap.Records {
		if !declared[rec.Name] {
			doomed = append(doomed, rec)
		}
	}
	names, err := destroyOrder(doomed)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		rec := snap.Record(name)
		plan.Entries = append(plan.Entries, PlanEntry{
			Name:      name,
			Type:      rec.Type,
			Action:    ActionDestroy,
			Identity:  rec.Identity,
			Diff:      attr.ComputeDiff(rec.Inputs, attr.Map{}, nil),
			Protected: rec.Protect,
		})
	}

	plan.Summary = summarize(plan.Entries)
	return plan, nil
}

// resolveForPlan substitutes reference expressions from committed records.
// A reference to a dependency with no committed output yet, or one being
// created or replaced this pass, stays as its literal expression text: the
// plan renders it as a value known only after apply, and the executor
// re-resolves strictly before each provider call.
func resolveForPlan(attrs attr.Map, snap *state.Snapshot, pending map[string]bool) attr.Map {
	resolved, err := attr.ResolveRefs(attrs, func(r attr.Ref) (attr.Value, bool) {
		if rec := snap.Record(r.Node); rec != nil && !pending[r.Node] {
			if v, ok := rec.Outputs[r.Output]; ok {
				return v, true
			}
		}
		return attr.String(r.String()), true
	})
	if err != nil {
		// The lookup never misses, so ResolveRefs cannot fail here.
		return attrs
	}
	return resolved.(attr.Map)
}

// destroyOrder returns dependents-before-dependencies order for records
// leaving the declaration, derived from the dependency lists captured at
// their last apply. Ties break lexicographically so plans render stably.
func destroyOrder(records []state.Record) ([]string, error) {
	doomed := make(map[string]*state.Record, len(records))
	names := make([]string, 0, len(records))
	for i := range records {
		doomed[records[i].Name] = &records[i]
		names = append(names, records[i].Name)
	}
	slices.Sort(names)

	// Dependencies-first order, then reversed.
	forward := make([]string, 0, len(records))
	visited := make(map[string]bool, len(records))
	visiting := make(map[string]bool, len(records))

	var visit func(name string) error
	visit = func(name string) error {
		if visited[name] {
			return nil
		}
		if visiting[name] {
			return fmt.Errorf("recorded dependencies form a cycle at %q", name)
		}
		visiting[name] = true
		for _, dep := range doomed[name].Dependencies {
			if _, ok := doomed[dep]; ok {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		visiting[name] = false
		visited[name] = true
		forward = append(forward, name)
		return nil
	}

	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}

	slices.Reverse(forward)
	return forward, nil
}

func summarize(entries []PlanEntry) Summary {
	var s Summary
	for _, entry := range entries {
		switch entry.Action {
		case ActionCreate:
			s.Create++
		case ActionUpdate:
			s.Update++
		case ActionReplace:
			s.Replace++
		case ActionNoop:
			s.Noop++
		case ActionDestroy:
			s.Destroy++
		}
	}
	return s
}
