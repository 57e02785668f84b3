package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/groundworklabs/groundwork/internal/attr"
	"github.com/groundworklabs/groundwork/internal/provider"
	"github.com/groundworklabs/groundwork/internal/state"
)

// executeNode runs one node's provider intent and commits its record. The
// returned result is terminal for the node within this pass.
func (e *Engine) executeNode(ctx context.Context, n *execNode, committed *commitLog) *NodeResult {
	start := time.Now()
	nr := &NodeResult{Name: n.entry.Name, Action: n.entry.Action}

	var attempts int
	var err error
	switch n.entry.Action {
	case ActionCreate:
		attempts, err = e.applyCreate(ctx, n, committed)
	case ActionUpdate:
		attempts, err = e.applyUpdate(ctx, n, committed)
	case ActionReplace:
		attempts, err = e.applyReplace(ctx, n, committed)
	case ActionDestroy:
		attempts, err = e.applyDestroy(ctx, n, committed)
	default:
		err = fmt.Errorf("unexpected action %q", n.entry.Action)
	}

	nr.Attempts = attempts
	nr.Duration = time.Since(start)
	if err != nil {
		nr.Status = StatusFailed
		nr.Err = err
		e.logger.Error("node failed",
			"node", nr.Name, "action", string(nr.Action), "attempts", attempts, "error", err)
		return nr
	}
	nr.Status = StatusApplied
	e.logger.Info("node applied",
		"node", nr.Name, "action", string(nr.Action), "duration", nr.Duration)
	return nr
}

func (e *Engine) applyCreate(ctx context.Context, n *execNode, committed *commitLog) (int, error) {
	resolved, err := resolveStrict(n.spec.Attrs, committed)
	if err != nil {
		return 0, err
	}
	schema, _ := e.registry.Lookup(n.spec.Type)

	token := e.tokens.Generate()
	var res *provider.CreateResult
	attempts, err := e.callWithRetry(ctx, n.entry.Name, provider.OpCreate, func() error {
		var cerr error
		res, cerr = e.provider.Create(ctx, provider.CreateRequest{
			Type:  n.spec.Type,
			Token: token,
			Attrs: resolved,
		})
		return cerr
	})
	if err != nil {
		return attempts, err
	}

	rec, err := buildRecord(n, schema, res.Identity, res.Attrs)
	if err != nil {
		return attempts, err
	}
	// The record write must land even mid-cancellation: the remote resource
	// exists now, and losing the record would orphan it.
	if err := e.backend.Put(context.WithoutCancel(ctx), rec); err != nil {
		return attempts, fmt.Errorf("record %q: %w", n.entry.Name, err)
	}
	committed.put(rec)
	return attempts, nil
}

func (e *Engine) applyUpdate(ctx context.Context, n *execNode, committed *commitLog) (int, error) {
	resolved, err := resolveStrict(n.spec.Attrs, committed)
	if err != nil {
		return 0, err
	}
	schema, _ := e.registry.Lookup(n.spec.Type)

	// Dependency outputs may have moved since planning; diff the final
	// resolved inputs against the refreshed baseline.
	diff := attr.ComputeDiff(n.record.Inputs, resolved, schema.ImmutableSet())
	if diff.Empty() {
		return 0, nil
	}

	token := e.tokens.Generate()
	var reported attr.Map
	attempts, err := e.callWithRetry(ctx, n.entry.Name, provider.OpUpdate, func() error {
		var uerr error
		reported, uerr = e.provider.Update(ctx, provider.UpdateRequest{
			Type:     n.spec.Type,
			Identity: n.record.Identity,
			Token:    token,
			Diff:     diff,
			Attrs:    resolved,
		})
		return uerr
	})
	if err != nil {
		return attempts, err
	}

	rec, err := buildRecord(n, schema, n.record.Identity, reported)
	if err != nil {
		return attempts, err
	}
	if err := e.backend.Put(context.WithoutCancel(ctx), rec); err != nil {
		return attempts, fmt.Errorf("record %q: %w", n.entry.Name, err)
	}
	committed.put(rec)
	return attempts, nil
}

func (e *Engine) applyReplace(ctx context.Context, n *execNode, committed *commitLog) (int, error) {
	if n.entry.Protected {
		return 0, &ProtectedResourceError{Name: n.entry.Name, Action: ActionReplace}
	}

	// Destroy leg. The record goes away as soon as the remote resource
	// does: if the create leg dies, state still matches reality and the
	// next pass plans a plain create.
	attempts, err := e.destroyRemote(ctx, n, committed)
	if err != nil {
		return attempts, err
	}

	createAttempts, err := e.applyCreate(ctx, n, committed)
	return attempts + createAttempts, err
}

func (e *Engine) applyDestroy(ctx context.Context, n *execNode, committed *commitLog) (int, error) {
	if n.entry.Protected {
		return 0, &ProtectedResourceError{Name: n.entry.Name, Action: ActionDestroy}
	}
	return e.destroyRemote(ctx, n, committed)
}

// destroyRemote removes the node's remote resource and its record.
func (e *Engine) destroyRemote(ctx context.Context, n *execNode, committed *commitLog) (int, error) {
	token := e.tokens.Generate()
	attempts, err := e.callWithRetry(ctx, n.entry.Name, provider.OpDestroy, func() error {
		return e.provider.Destroy(ctx, provider.DestroyRequest{
			Type:     n.record.Type,
			Identity: n.record.Identity,
			Token:    token,
		})
	})
	if err != nil {
		return attempts, err
	}
	if err := e.backend.Delete(context.WithoutCancel(ctx), n.entry.Name); err != nil {
		return attempts, fmt.Errorf("delete record %q: %w", n.entry.Name, err)
	}
	committed.drop(n.entry.Name)
	return attempts, nil
}

// buildRecord assembles the durable record for a node from what the
// provider reported. Inputs and outputs are split by schema so computed
// attributes never pollute the diff baseline.
func buildRecord(n *execNode, schema provider.Schema, identity string, reported attr.Map) (*state.Record, error) {
	inputs, outputs := splitBySchema(schema, reported)
	hash, err := attr.InputsHash(inputs)
	if err != nil {
		return nil, fmt.Errorf("hash inputs for %q: %w", n.entry.Name, err)
	}
	return &state.Record{
		Name:         n.entry.Name,
		Type:         n.spec.Type,
		Identity:     identity,
		Inputs:       inputs,
		Outputs:      outputs,
		InputsHash:   hash,
		Protect:      n.spec.Protect,
		Dependencies: n.deps,
	}, nil
}

// resolveStrict resolves every reference from committed records. By the
// time a node runs, its dependencies have committed, so a miss means a
// predecessor failed in a way scheduling did not catch; the node fails
// rather than apply half-resolved attributes.
func resolveStrict(attrs attr.Map, committed *commitLog) (attr.Map, error) {
	resolved, err := attr.ResolveRefs(attrs, committed.lookup)
	if err != nil {
		return nil, err
	}
	return resolved.(attr.Map), nil
}
