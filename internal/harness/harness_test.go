package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundworklabs/groundwork/internal/attr"
	"github.com/groundworklabs/groundwork/internal/provider"
	"github.com/groundworklabs/groundwork/internal/state"
)

// newTestRunner opens a fresh SQLite backend in a temp dir and wires a
// runner around it.
func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	backend, err := state.OpenSQLite(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, backend.Close())
	})
	return NewRunner(backend)
}

func intp(n int) *int { return &n }

func TestRun_ApplyCreatesInDependencyOrder(t *testing.T) {
	runner := newTestRunner(t)

	scenario := &Scenario{
		Name:        "apply_creates",
		Description: "Bucket and dependent role converge in one pass",
		Steps: []Step{
			{
				Name: "converge",
				Apply: map[string]Resource{
					"bucket": {
						Type:  "object-store-bucket",
						Attrs: map[string]any{"name": "tf-state"},
					},
					"policy": {
						Type: "assumable-role",
						Attrs: map[string]any{
							"name":         "deployer",
							"trust_source": "${bucket.id}",
						},
					},
				},
				Expect: &Expect{Create: intp(2), Failed: intp(0)},
			},
		},
	}

	result, err := runner.Run(context.Background(), scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Steps, 1)
	require.NotNil(t, result.Steps[0].Result)
	assert.Equal(t, 2, result.Steps[0].Result.Created)

	bucket := result.Snapshot.Record("bucket")
	require.NotNil(t, bucket)
	assert.Equal(t, "mem-object-store-bucket-1", bucket.Identity)

	policy := result.Snapshot.Record("policy")
	require.NotNil(t, policy)
	assert.Equal(t, []string{"bucket"}, policy.Dependencies)

	// The role's trust_source records the bucket's identity, not the
	// reference text.
	trust, ok := policy.Inputs["trust_source"]
	require.True(t, ok)
	b, err := attr.MarshalValue(trust)
	require.NoError(t, err)
	assert.Equal(t, `"mem-object-store-bucket-1"`, string(b))
}

func TestRun_PlanOnlyStepDoesNotMutate(t *testing.T) {
	runner := newTestRunner(t)

	scenario := &Scenario{
		Name:        "plan_only",
		Description: "Planning leaves state and provider untouched",
		Steps: []Step{
			{
				Plan: map[string]Resource{
					"bucket": {
						Type:  "object-store-bucket",
						Attrs: map[string]any{"name": "tf-state"},
					},
				},
				Expect: &Expect{Create: intp(1)},
			},
		},
	}

	result, err := runner.Run(context.Background(), scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	assert.Nil(t, result.Steps[0].Result)
	assert.Equal(t, int64(0), result.Snapshot.Serial)
	assert.Empty(t, result.Snapshot.Records)
	assert.Empty(t, result.Journal)
}

func TestRun_DestroyStepSweepsEverything(t *testing.T) {
	runner := newTestRunner(t)

	scenario := &Scenario{
		Name:        "destroy_sweeps",
		Description: "A destroy step removes every recorded resource",
		Steps: []Step{
			{
				Apply: map[string]Resource{
					"table": {
						Type:  "lock-table",
						Attrs: map[string]any{"name": "locks", "hash_key": "path"},
					},
				},
				Expect: &Expect{Create: intp(1)},
			},
			{
				Destroy: true,
				Expect:  &Expect{Destroy: intp(1), Failed: intp(0)},
			},
		},
	}

	result, err := runner.Run(context.Background(), scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	assert.Empty(t, result.Snapshot.Records)
	assert.Equal(t, 1, result.Steps[1].Result.Destroyed)
}

func TestRun_UpdateInPlace(t *testing.T) {
	runner := newTestRunner(t)

	scenario := &Scenario{
		Name:        "update_in_place",
		Description: "Flipping a mutable attribute updates without replacement",
		Steps: []Step{
			{
				Apply: map[string]Resource{
					"bucket": {
						Type:  "object-store-bucket",
						Attrs: map[string]any{"name": "tf-state", "versioning": true},
					},
				},
			},
			{
				Apply: map[string]Resource{
					"bucket": {
						Type:  "object-store-bucket",
						Attrs: map[string]any{"name": "tf-state", "versioning": false},
					},
				},
				Expect: &Expect{Update: intp(1), Replace: intp(0)},
			},
		},
	}

	result, err := runner.Run(context.Background(), scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	rec := result.Snapshot.Record("bucket")
	require.NotNil(t, rec)
	assert.Equal(t, "mem-object-store-bucket-1", rec.Identity, "identity survives an update")

	updates := 0
	for _, call := range result.Journal {
		if call.Op == provider.OpUpdate {
			updates++
		}
	}
	assert.Equal(t, 1, updates)
}

func TestRun_ExpectMismatchFailsRun(t *testing.T) {
	runner := newTestRunner(t)

	scenario := &Scenario{
		Name:        "expect_mismatch",
		Description: "A wrong expect clause fails the run without aborting it",
		Steps: []Step{
			{
				Name: "converge",
				Apply: map[string]Resource{
					"bucket": {
						Type:  "object-store-bucket",
						Attrs: map[string]any{"name": "tf-state"},
					},
				},
				Expect: &Expect{Create: intp(2)},
			},
		},
	}

	result, err := runner.Run(context.Background(), scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "converge: expected create=2, got 1")

	// The pass itself still ran.
	assert.NotNil(t, result.Snapshot.Record("bucket"))
}

func TestRun_AssertionFailureRecorded(t *testing.T) {
	runner := newTestRunner(t)

	scenario := &Scenario{
		Name:        "assertion_failure",
		Description: "A failing assertion lands in the error list",
		Steps: []Step{
			{
				Apply: map[string]Resource{
					"bucket": {
						Type:  "object-store-bucket",
						Attrs: map[string]any{"name": "tf-state"},
					},
				},
			},
		},
		Assertions: []Assertion{
			{Type: AssertRecordExists, Name: "ghost"},
		},
	}

	result, err := runner.Run(context.Background(), scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "assertions[0]")
	assert.Contains(t, result.Errors[0], `record "ghost" present`)
}

func TestRun_InvalidDeclarationAborts(t *testing.T) {
	runner := newTestRunner(t)

	scenario := &Scenario{
		Name:        "invalid_declaration",
		Description: "An unknown resource type aborts the run",
		Steps: []Step{
			{
				Name: "bad step",
				Apply: map[string]Resource{
					"db": {Type: "quantum-db", Attrs: map[string]any{"name": "x"}},
				},
			},
		},
	}

	_, err := runner.Run(context.Background(), scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad step")
	assert.Contains(t, err.Error(), "invalid declaration")
}

func TestRun_UnresolvedReferenceAborts(t *testing.T) {
	runner := newTestRunner(t)

	scenario := &Scenario{
		Name:        "unresolved_reference",
		Description: "A dangling reference aborts the run",
		Steps: []Step{
			{
				Apply: map[string]Resource{
					"policy": {
						Type: "assumable-role",
						Attrs: map[string]any{
							"name":         "deployer",
							"trust_source": "${ghost.id}",
						},
					},
				},
			},
		},
	}

	_, err := runner.Run(context.Background(), scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such resource")
}

func TestRun_DefaultStepLabels(t *testing.T) {
	runner := newTestRunner(t)

	scenario := &Scenario{
		Name:        "default_labels",
		Description: "Unnamed steps get positional labels",
		Steps: []Step{
			{Apply: map[string]Resource{}},
			{Destroy: true},
		},
	}

	result, err := runner.Run(context.Background(), scenario)
	require.NoError(t, err)

	require.Len(t, result.Steps, 2)
	assert.Equal(t, "step 1", result.Steps[0].Label)
	assert.Equal(t, "step 2", result.Steps[1].Label)
}

func TestRunResult_AddError(t *testing.T) {
	result := NewRunResult()
	assert.True(t, result.Pass)

	result.AddError("step %d: %s", 3, "boom")
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "step 3: boom", result.Errors[0])
}
