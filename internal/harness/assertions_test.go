package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundworklabs/groundwork/internal/attr"
	"github.com/groundworklabs/groundwork/internal/provider"
	"github.com/groundworklabs/groundwork/internal/state"
)

// mustAttrs converts plain Go values into an attribute map.
func mustAttrs(t *testing.T, raw map[string]any) attr.Map {
	t.Helper()
	m := make(attr.Map, len(raw))
	for k, v := range raw {
		av, err := attr.FromGo(v)
		require.NoError(t, err)
		m[k] = av
	}
	return m
}

func boolp(b bool) *bool { return &b }

func testSnapshot(t *testing.T) *state.Snapshot {
	t.Helper()
	return &state.Snapshot{
		Serial: 3,
		Records: []state.Record{
			{
				Name:     "bucket",
				Type:     "object-store-bucket",
				Identity: "mem-object-store-bucket-1",
				Inputs:   mustAttrs(t, map[string]any{"name": "tf-state", "versioning": true}),
			},
			{
				Name:         "policy",
				Type:         "assumable-role",
				Identity:     "mem-assumable-role-1",
				Inputs:       mustAttrs(t, map[string]any{"name": "deployer", "trust_source": "mem-object-store-bucket-1"}),
				Protect:      true,
				Dependencies: []string{"bucket"},
			},
		},
	}
}

func testJournal() []provider.Call {
	return []provider.Call{
		{Seq: 1, Op: provider.OpCreate, Type: "object-store-bucket", Identity: "mem-object-store-bucket-1", Name: "tf-state"},
		{Seq: 2, Op: provider.OpCreate, Type: "assumable-role", Identity: "mem-assumable-role-1", Name: "deployer"},
		{Seq: 3, Op: provider.OpDescribe, Type: "object-store-bucket", Identity: "mem-object-store-bucket-1", Name: "tf-state"},
		{Seq: 4, Op: provider.OpDestroy, Type: "assumable-role", Identity: "mem-assumable-role-1", Name: "deployer"},
	}
}

func TestMatchCall_EmptyPatternMatchesAnything(t *testing.T) {
	call := provider.Call{Op: provider.OpCreate, Type: "lock-table", Name: "locks"}
	assert.True(t, matchCall(call, CallPattern{}))
}

func TestMatchCall_FieldFiltering(t *testing.T) {
	call := provider.Call{Op: provider.OpCreate, Type: "lock-table", Name: "locks"}

	assert.True(t, matchCall(call, CallPattern{Op: "create"}))
	assert.True(t, matchCall(call, CallPattern{Op: "create", Type: "lock-table", Name: "locks"}))
	assert.False(t, matchCall(call, CallPattern{Op: "destroy"}))
	assert.False(t, matchCall(call, CallPattern{Type: "object-store-bucket"}))
	assert.False(t, matchCall(call, CallPattern{Name: "other"}))
}

func TestAssertRecordExists_Found(t *testing.T) {
	snap := testSnapshot(t)
	err := assertRecordExists(snap, Assertion{Type: AssertRecordExists, Name: "bucket"})
	assert.NoError(t, err)
}

func TestAssertRecordExists_Missing(t *testing.T) {
	snap := testSnapshot(t)
	err := assertRecordExists(snap, Assertion{Type: AssertRecordExists, Name: "ghost"})
	require.Error(t, err)

	var aerr *AssertionError
	require.ErrorAs(t, err, &aerr)
	assert.Contains(t, aerr.Expected, `record "ghost" present`)
	assert.Contains(t, aerr.Actual, "bucket")
	assert.Contains(t, aerr.Actual, "policy")
}

func TestAssertRecordExists_ProtectMismatch(t *testing.T) {
	snap := testSnapshot(t)
	err := assertRecordExists(snap, Assertion{Type: AssertRecordExists, Name: "bucket", Protect: boolp(true)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "protect=true")
	assert.Contains(t, err.Error(), "protect=false")
}

func TestAssertRecordExists_DependenciesMismatch(t *testing.T) {
	snap := testSnapshot(t)
	err := assertRecordExists(snap, Assertion{
		Type:         AssertRecordExists,
		Name:         "policy",
		Dependencies: []string{"bucket", "table"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dependencies")
}

func TestAssertRecordExists_InputSubsetMatch(t *testing.T) {
	snap := testSnapshot(t)

	// Extra recorded inputs are ignored; only the asserted keys count.
	err := assertRecordExists(snap, Assertion{
		Type:   AssertRecordExists,
		Name:   "bucket",
		Inputs: map[string]any{"versioning": true},
	})
	assert.NoError(t, err)
}

func TestAssertRecordExists_InputMismatch(t *testing.T) {
	snap := testSnapshot(t)
	err := assertRecordExists(snap, Assertion{
		Type:   AssertRecordExists,
		Name:   "bucket",
		Inputs: map[string]any{"versioning": false},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input versioning=false")
}

func TestAssertRecordAbsent_Pass(t *testing.T) {
	snap := testSnapshot(t)
	assert.NoError(t, assertRecordAbsent(snap, Assertion{Type: AssertRecordAbsent, Name: "ghost"}))
}

func TestAssertRecordAbsent_StillRecorded(t *testing.T) {
	snap := testSnapshot(t)
	err := assertRecordAbsent(snap, Assertion{Type: AssertRecordAbsent, Name: "policy"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "still recorded")
}

func TestAssertJournalContains_Found(t *testing.T) {
	err := assertJournalContains(testJournal(), Assertion{
		Type: AssertJournalContains,
		Call: &CallPattern{Op: "destroy", Type: "assumable-role"},
	})
	assert.NoError(t, err)
}

func TestAssertJournalContains_NotFoundCarriesJournal(t *testing.T) {
	journal := testJournal()
	err := assertJournalContains(journal, Assertion{
		Type: AssertJournalContains,
		Call: &CallPattern{Op: "update"},
	})
	require.Error(t, err)

	var aerr *AssertionError
	require.ErrorAs(t, err, &aerr)
	assert.Len(t, aerr.Journal, len(journal))
	assert.Contains(t, aerr.Expected, "op=update")
}

func TestAssertJournalCount_Exact(t *testing.T) {
	err := assertJournalCount(testJournal(), Assertion{
		Type:  AssertJournalCount,
		Call:  &CallPattern{Op: "create"},
		Count: 2,
	})
	assert.NoError(t, err)
}

func TestAssertJournalCount_Zero(t *testing.T) {
	err := assertJournalCount(testJournal(), Assertion{
		Type:  AssertJournalCount,
		Call:  &CallPattern{Op: "update"},
		Count: 0,
	})
	assert.NoError(t, err)
}

func TestAssertJournalCount_Mismatch(t *testing.T) {
	err := assertJournalCount(testJournal(), Assertion{
		Type:  AssertJournalCount,
		Call:  &CallPattern{Op: "create"},
		Count: 3,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 entries matching")
	assert.Contains(t, err.Error(), "2 entries")
}

func TestAssertJournalOrder_InterveningCallsAllowed(t *testing.T) {
	// The describe at seq 3 sits between the second create and the
	// destroy; the subsequence still matches.
	err := assertJournalOrder(testJournal(), Assertion{
		Type: AssertJournalOrder,
		Calls: []CallPattern{
			{Op: "create", Type: "object-store-bucket"},
			{Op: "create", Type: "assumable-role"},
			{Op: "destroy"},
		},
	})
	assert.NoError(t, err)
}

func TestAssertJournalOrder_WrongOrder(t *testing.T) {
	err := assertJournalOrder(testJournal(), Assertion{
		Type: AssertJournalOrder,
		Calls: []CallPattern{
			{Op: "destroy"},
			{Op: "create", Type: "object-store-bucket"},
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "matched only the first 1")
}

func TestAssertSerial_Mismatch(t *testing.T) {
	snap := testSnapshot(t)
	err := assertSerial(snap, Assertion{Type: AssertSerial, Value: 7})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "serial 7")
	assert.Contains(t, err.Error(), "serial 3")
}

func TestCheckAssertions_AccumulatesFailures(t *testing.T) {
	result := NewRunResult()
	result.Snapshot = testSnapshot(t)
	result.Journal = testJournal()

	checkAssertions(result, []Assertion{
		{Type: AssertRecordExists, Name: "bucket"},
		{Type: AssertRecordExists, Name: "ghost"},
		{Type: AssertSerial, Value: 99},
	})

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "assertions[1]")
	assert.Contains(t, result.Errors[1], "assertions[2]")
}

func TestCheckAssertions_UnknownType(t *testing.T) {
	result := NewRunResult()
	result.Snapshot = testSnapshot(t)

	checkAssertions(result, []Assertion{{Type: "final_state"}})

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], `unknown assertion type "final_state"`)
}

func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{
		Type:     AssertJournalCount,
		Expected: "2 entries matching {op=create}",
		Actual:   "1 entries",
		Journal: []provider.Call{
			{Seq: 1, Op: provider.OpCreate, Type: "lock-table", Name: "locks"},
		},
	}

	msg := err.Error()
	assert.Contains(t, msg, "assertion failed: journal_count")
	assert.Contains(t, msg, "expected: 2 entries matching {op=create}")
	assert.Contains(t, msg, "actual:   1 entries")
	assert.Contains(t, msg, `[1] create lock-table "locks"`)
}

func TestDescribePattern(t *testing.T) {
	assert.Equal(t, "{any}", describePattern(CallPattern{}))
	assert.Equal(t, "{op=create}", describePattern(CallPattern{Op: "create"}))
	assert.Equal(t, "{op=destroy type=lock-table name=locks}",
		describePattern(CallPattern{Op: "destroy", Type: "lock-table", Name: "locks"}))
}
