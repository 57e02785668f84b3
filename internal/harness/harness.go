package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/groundworklabs/groundwork/internal/attr"
	"github.com/groundworklabs/groundwork/internal/decl"
	"github.com/groundworklabs/groundwork/internal/engine"
	"github.com/groundworklabs/groundwork/internal/provider"
	"github.com/groundworklabs/groundwork/internal/state"
	"github.com/groundworklabs/groundwork/internal/testutil"
)

// Runner executes one scenario against a state backend and the in-memory
// provider. Steps share both, so records and remote objects persist from
// pass to pass the way they would across real invocations.
type Runner struct {
	backend  state.Backend
	memory   *provider.Memory
	registry *provider.Registry
	tokens   *testutil.SequenceTokenGenerator
}

// NewRunner wires a runner around an open backend. The caller owns the
// backend and closes it after the run.
func NewRunner(backend state.Backend) *Runner {
	reg := provider.DefaultRegistry()
	return &Runner{
		backend:  backend,
		memory:   provider.NewMemory(reg),
		registry: reg,
		tokens:   testutil.NewSequenceTokenGenerator("scenario"),
	}
}

// Memory exposes the provider, e.g. for fault injection before Run.
func (r *Runner) Memory() *provider.Memory {
	return r.memory
}

// StepOutcome captures one executed step.
type StepOutcome struct {
	Label  string
	Plan   *engine.Plan
	Result *engine.Result // nil for plan-only steps
}

// RunResult is the outcome of a scenario execution.
type RunResult struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool

	// Steps holds per-step outcomes in execution order.
	Steps []StepOutcome

	// Errors lists every expectation or assertion failure.
	Errors []string

	// Snapshot is the final recorded state.
	Snapshot *state.Snapshot

	// Journal is the provider's full call journal.
	Journal []provider.Call
}

// NewRunResult creates a passing result to accumulate into.
func NewRunResult() *RunResult {
	return &RunResult{Pass: true}
}

// AddError records a failure and marks the result failed.
func (r *RunResult) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

// Run executes every step in order, then evaluates the scenario's
// assertions. The returned error covers harness-level failures (bad
// declarations, pass-level engine errors); expectation failures land in
// RunResult.Errors instead.
func (r *Runner) Run(ctx context.Context, scenario *Scenario) (*RunResult, error) {
	parallelism := scenario.Parallelism
	if parallelism == 0 {
		parallelism = 1
	}

	eng := engine.New(r.backend, r.memory, r.registry,
		engine.WithParallelism(parallelism),
		engine.WithRetry(engine.DefaultAttempts, 0),
		engine.WithTokenGenerator(r.tokens),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	result := NewRunResult()
	for i, step := range scenario.Steps {
		label := step.Name
		if label == "" {
			label = fmt.Sprintf("step %d", i+1)
		}

		outcome := StepOutcome{Label: label}
		switch {
		case step.Plan != nil:
			d, err := buildDeclaration(step.Plan, r.registry)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", label, err)
			}
			plan, err := eng.Plan(ctx, d)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", label, err)
			}
			outcome.Plan = plan
			checkExpect(result, label, step.Expect, plan.Summary, 0, 0)

		case step.Apply != nil:
			d, err := buildDeclaration(step.Apply, r.registry)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", label, err)
			}
			res, err := eng.Apply(ctx, d)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", label, err)
			}
			outcome.Plan = res.Plan
			outcome.Result = res
			checkExpect(result, label, step.Expect, res.Plan.Summary, res.Failed, res.Skipped)

		case step.Destroy:
			res, err := eng.Destroy(ctx)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", label, err)
			}
			outcome.Plan = res.Plan
			outcome.Result = res
			checkExpect(result, label, step.Expect, res.Plan.Summary, res.Failed, res.Skipped)
		}
		result.Steps = append(result.Steps, outcome)
	}

	snap, err := r.backend.ReadSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("read final snapshot: %w", err)
	}
	result.Snapshot = snap
	result.Journal = r.memory.Journal()

	checkAssertions(result, scenario.Assertions)
	return result, nil
}

// buildDeclaration converts the YAML resource map into a declaration and
// validates it against the registry, so scenario typos fail loudly.
func buildDeclaration(resources map[string]Resource, reg *provider.Registry) (*decl.Declaration, error) {
	names := make([]string, 0, len(resources))
	for name := range resources {
		names = append(names, name)
	}
	sort.Strings(names)

	d := &decl.Declaration{}
	for _, name := range names {
		res := resources[name]
		attrs := make(attr.Map, len(res.Attrs))
		for key, raw := range res.Attrs {
			v, err := attr.FromGo(raw)
			if err != nil {
				return nil, fmt.Errorf("resource %q attr %q: %w", name, key, err)
			}
			attrs[key] = v
		}
		d.Resources = append(d.Resources, decl.ResourceSpec{
			Name:    name,
			Type:    res.Type,
			Attrs:   attrs,
			Protect: res.Protect,
		})
	}

	if verrs := decl.Validate(d, reg); len(verrs) > 0 {
		return nil, fmt.Errorf("invalid declaration: %s", verrs[0].Error())
	}
	return d, nil
}

// checkExpect applies a subset match of the expect clause against the
// pass outcome.
func checkExpect(result *RunResult, label string, expect *Expect, summary engine.Summary, failed, skipped int) {
	if expect == nil {
		return
	}

	check := func(field string, want *int, got int) {
		if want != nil && *want != got {
			result.AddError("%s: expected %s=%d, got %d", label, field, *want, got)
		}
	}
	check("create", expect.Create, summary.Create)
	check("update", expect.Update, summary.Update)
	check("replace", expect.Replace, summary.Replace)
	check("no_op", expect.NoOp, summary.Noop)
	check("destroy", expect.Destroy, summary.Destroy)
	check("failed", expect.Failed, failed)
	check("skipped", expect.Skipped, skipped)
}
