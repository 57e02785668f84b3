package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/groundworklabs/groundwork/internal/attr"
	"github.com/groundworklabs/groundwork/internal/decl"
	"github.com/groundworklabs/groundwork/internal/graph"
	"github.com/groundworklabs/groundwork/internal/provider"
	"github.com/groundworklabs/groundwork/internal/state"
)

// Executor defaults. Retry delays double per attempt with no jitter so
// failure-path tests are deterministic.
const (
	DefaultParallelism = 4
	DefaultAttempts    = 4
	DefaultBackoffBase = 100 * time.Millisecond
)

// Engine drives reconciliation passes: it plans a declaration against
// recorded state and applies the plan through the provider.
//
// Thread-safety model:
//   - One Engine may run one pass at a time; the state lease enforces this
//     across processes too.
//   - Within a pass, the executor runs provider calls from multiple
//     goroutines; the provider and backend must be safe for concurrent use.
type Engine struct {
	backend  state.Backend
	provider provider.Provider
	registry *provider.Registry

	parallelism int
	attempts    int
	backoffBase time.Duration
	lease       time.Duration
	tokens      TokenGenerator
	logger      *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithParallelism bounds how many provider calls run at once during apply.
func WithParallelism(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.parallelism = n
		}
	}
}

// WithRetry sets the transient-failure policy: total attempts per provider
// call and the first backoff delay, doubled per retry. A zero base retries
// immediately, which is what failure-path tests want.
func WithRetry(attempts int, base time.Duration) Option {
	return func(e *Engine) {
		if attempts > 0 {
			e.attempts = attempts
		}
		e.backoffBase = base
	}
}

// WithLease sets the state lock lease duration.
func WithLease(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.lease = d
		}
	}
}

// WithLogger routes engine logging somewhere other than slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTokenGenerator replaces the idempotency token source. Tests use
// FixedGenerator for deterministic tokens.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(e *Engine) {
		if g != nil {
			e.tokens = g
		}
	}
}

// New creates an Engine over a state backend, a provider, and the schema
// registry the provider's types are validated against.
func New(backend state.Backend, prov provider.Provider, reg *provider.Registry, opts ...Option) *Engine {
	e := &Engine{
		backend:     backend,
		provider:    prov,
		registry:    reg,
		parallelism: DefaultParallelism,
		attempts:    DefaultAttempts,
		backoffBase: DefaultBackoffBase,
		lease:       state.DefaultLease,
		tokens:      UUIDv7Generator{},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Plan computes what applying the declaration would do, without mutating
// anything. The state lease is still taken: refresh reads the provider, and
// a plan must not interleave with a concurrent apply.
func (e *Engine) Plan(ctx context.Context, d *decl.Declaration) (*Plan, error) {
	return e.planPass(ctx, d)
}

// PlanDestroy computes the full-teardown plan without mutating anything.
func (e *Engine) PlanDestroy(ctx context.Context) (*Plan, error) {
	return e.planPass(ctx, &decl.Declaration{})
}

// Apply plans and applies a declaration in one locked pass. Per-node
// failures land in the Result rather than the returned error; the error
// covers pass-level failures where nothing ran at all.
func (e *Engine) Apply(ctx context.Context, d *decl.Declaration) (*Result, error) {
	return e.applyPass(ctx, d, "apply")
}

// Destroy tears down every recorded resource, protection still honored. It
// is an apply of the empty declaration: everything on record plans as a
// destroy.
func (e *Engine) Destroy(ctx context.Context) (*Result, error) {
	return e.applyPass(ctx, &decl.Declaration{}, "destroy")
}

func (e *Engine) planPass(ctx context.Context, d *decl.Declaration) (*Plan, error) {
	pass, err := e.openPass(ctx, d, "plan")
	if err != nil {
		return nil, err
	}
	defer pass.close()
	return pass.plan, nil
}

func (e *Engine) applyPass(ctx context.Context, d *decl.Declaration, operation string) (*Result, error) {
	pass, err := e.openPass(ctx, d, operation)
	if err != nil {
		return nil, err
	}
	defer pass.close()

	// Commit the refreshed baseline before any node runs, so drift observed
	// by this pass survives even if the pass dies halfway.
	if pass.drifted {
		if err := e.backend.WriteSnapshot(ctx, pass.snap); err != nil {
			return nil, fmt.Errorf("persist refreshed state: %w", err)
		}
		e.logger.Info("state refreshed against live resources", "serial", pass.snap.Serial)
	}

	if err := e.syncPolicy(ctx, pass); err != nil {
		return nil, err
	}

	return e.execute(ctx, pass), nil
}

// pass bundles everything one locked reconciliation pass works with.
type pass struct {
	engine    *Engine
	operation string
	graph     *graph.Graph
	snap      *state.Snapshot
	plan      *Plan
	handle    *state.LockHandle
	drifted   bool
}

// openPass builds the graph, takes the lock, reads and refreshes the
// snapshot, and computes the plan. The caller must close() the pass to
// release the lease.
func (e *Engine) openPass(ctx context.Context, d *decl.Declaration, operation string) (*pass, error) {
	g, err := graph.Build(d, e.registry)
	if err != nil {
		return nil, err
	}

	handle, err := e.backend.Lock(ctx, state.LockRequest{Operation: operation, Lease: e.lease})
	if err != nil {
		return nil, err
	}
	p := &pass{engine: e, operation: operation, graph: g, handle: handle}
	e.logger.Debug("state lock acquired", "operation", operation, "holder", handle.ID)

	snap, err := e.backend.ReadSnapshot(ctx)
	if err != nil {
		p.close()
		return nil, err
	}
	p.snap = snap

	drifted, err := e.refresh(ctx, snap)
	if err != nil {
		p.close()
		return nil, err
	}
	p.drifted = drifted

	plan, err := e.computePlan(g, snap)
	if err != nil {
		p.close()
		return nil, err
	}
	p.plan = plan
	return p, nil
}

// close releases the state lease. Uses a fresh context so a canceled pass
// still unlocks.
func (p *pass) close() {
	if p.handle == nil {
		return
	}
	if err := p.engine.backend.Unlock(context.Background(), p.handle); err != nil {
		p.engine.logger.Warn("failed to release state lock", "operation", p.operation, "error", err)
	}
	p.handle = nil
}

// refresh folds live reality into the snapshot: every record is described
// against the provider and becomes the diff baseline. Records whose remote
// resource vanished drop out so they plan as creates. Reports whether
// anything moved.
func (e *Engine) refresh(ctx context.Context, snap *state.Snapshot) (bool, error) {
	changed := false
	kept := make([]state.Record, 0, len(snap.Records))

	for _, rec := range snap.Records {
		schema, ok := e.registry.Lookup(rec.Type)
		if !ok {
			// Written by a build with more types than this one. Leave it
			// alone; destroy planning needs no schema.
			e.logger.Warn("not refreshing record of unknown type", "node", rec.Name, "type", rec.Type)
			kept = append(kept, rec)
			continue
		}

		var live attr.Map
		_, err := e.callWithRetry(ctx, rec.Name, provider.OpDescribe, func() error {
			var derr error
			live, derr = e.provider.Describe(ctx, rec.Type, rec.Identity)
			return derr
		})
		if provider.IsNotFound(err) {
			e.logger.Info("recorded resource no longer exists remotely", "node", rec.Name, "identity", rec.Identity)
			changed = true
			continue
		}
		if err != nil {
			return false, fmt.Errorf("refresh %q: %w", rec.Name, err)
		}

		inputs, outputs := splitBySchema(schema, live)
		if !attr.Equal(inputs, rec.Inputs) || !attr.Equal(outputs, rec.Outputs) {
			hash, herr := attr.InputsHash(inputs)
			if herr != nil {
				return false, fmt.Errorf("refresh %q: %w", rec.Name, herr)
			}
			e.logger.Info("drift detected", "node", rec.Name, "identity", rec.Identity)
			rec.Inputs = inputs
			rec.Outputs = outputs
			rec.InputsHash = hash
			changed = true
		}
		kept = append(kept, rec)
	}

	snap.Records = kept
	return changed, nil
}

// syncPolicy re-records declaration-only changes for converged nodes.
// Protection and dependency edges live in the record so destroy planning
// works after a node leaves the declaration; a node whose inputs are
// converged still needs them refreshed when the declaration moved.
func (e *Engine) syncPolicy(ctx context.Context, p *pass) error {
	for _, entry := range p.plan.Entries {
		if entry.Action != ActionNoop {
			continue
		}
		rec := p.snap.Record(entry.Name)
		node, ok := p.graph.Node(entry.Name)
		if rec == nil || !ok {
			continue
		}
		if rec.Protect == node.Spec.Protect && slices.Equal(rec.Dependencies, node.Dependencies) {
			continue
		}
		rec.Protect = node.Spec.Protect
		rec.Dependencies = slices.Clone(node.Dependencies)
		if err := e.backend.Put(ctx, rec); err != nil {
			return fmt.Errorf("record %q: %w", entry.Name, err)
		}
		e.logger.Debug("record policy updated", "node", entry.Name, "protect", rec.Protect)
	}
	return nil
}

// callWithRetry runs one provider intent, retrying transient failures with
// exponential backoff until the attempt budget is spent. Returns how many
// attempts were made. The backoff sleep honors ctx, so cancellation
// interrupts a waiting retry.
func (e *Engine) callWithRetry(ctx context.Context, node string, op provider.Op, fn func() error) (int, error) {
	delay := e.backoffBase
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return attempt, nil
		}
		if !provider.IsTransient(err) || attempt >= e.attempts {
			return attempt, err
		}
		e.logger.Debug("transient provider failure, backing off",
			"node", node, "op", string(op), "attempt", attempt, "backoff", delay)
		if serr := sleep(ctx, delay); serr != nil {
			return attempt, serr
		}
		delay *= 2
	}
}

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// splitBySchema divides a provider-reported attribute set into declared
// inputs and computed outputs. Attributes the schema knows nothing about are
// dropped rather than recorded.
func splitBySchema(schema provider.Schema, attrs attr.Map) (inputs, outputs attr.Map) {
	inputs = make(attr.Map)
	outputs = make(attr.Map)
	for k, v := range attrs {
		switch {
		case schema.KnownInput(k):
			inputs[k] = v
		case schema.HasOutput(k):
			outputs[k] = v
		}
	}
	return inputs, outputs
}
