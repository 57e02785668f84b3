package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/groundworklabs/groundwork/internal/attr"
	"github.com/groundworklabs/groundwork/internal/provider"
	"github.com/groundworklabs/groundwork/internal/state"
)

// AssertionError is returned when an assertion fails. It carries enough
// context to debug without re-running the scenario.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Journal  []provider.Call
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  actual:   %s", e.Actual)

	if len(e.Journal) > 0 {
		fmt.Fprintf(&buf, "\n\njournal:\n")
		for _, call := range e.Journal {
			fmt.Fprintf(&buf, "  [%d] %s %s %q\n", call.Seq, call.Op, call.Type, call.Name)
		}
	}
	return buf.String()
}

// checkAssertions evaluates every assertion against the final snapshot and
// journal, accumulating failures into the result.
func checkAssertions(result *RunResult, assertions []Assertion) {
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertRecordExists:
			err = assertRecordExists(result.Snapshot, a)
		case AssertRecordAbsent:
			err = assertRecordAbsent(result.Snapshot, a)
		case AssertJournalContains:
			err = assertJournalContains(result.Journal, a)
		case AssertJournalCount:
			err = assertJournalCount(result.Journal, a)
		case AssertJournalOrder:
			err = assertJournalOrder(result.Journal, a)
		case AssertSerial:
			err = assertSerial(result.Snapshot, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			result.AddError("assertions[%d]: %v", i, err)
		}
	}
}

func assertRecordExists(snap *state.Snapshot, a Assertion) error {
	rec := snap.Record(a.Name)
	if rec == nil {
		return &AssertionError{
			Type:     AssertRecordExists,
			Expected: fmt.Sprintf("record %q present", a.Name),
			Actual:   fmt.Sprintf("only %v recorded", recordNames(snap)),
		}
	}

	if a.Protect != nil && rec.Protect != *a.Protect {
		return &AssertionError{
			Type:     AssertRecordExists,
			Expected: fmt.Sprintf("record %q protect=%v", a.Name, *a.Protect),
			Actual:   fmt.Sprintf("protect=%v", rec.Protect),
		}
	}

	if a.Dependencies != nil && !slices.Equal(rec.Dependencies, a.Dependencies) {
		return &AssertionError{
			Type:     AssertRecordExists,
			Expected: fmt.Sprintf("record %q dependencies %v", a.Name, a.Dependencies),
			Actual:   fmt.Sprintf("dependencies %v", rec.Dependencies),
		}
	}

	for key, raw := range a.Inputs {
		want, err := attr.FromGo(raw)
		if err != nil {
			return fmt.Errorf("inputs[%q]: %w", key, err)
		}
		got, ok := rec.Inputs[key]
		if !ok || !attr.Equal(got, want) {
			return &AssertionError{
				Type:     AssertRecordExists,
				Expected: fmt.Sprintf("record %q input %s=%v", a.Name, key, raw),
				Actual:   fmt.Sprintf("input %s=%v", key, got),
			}
		}
	}
	return nil
}

func assertRecordAbsent(snap *state.Snapshot, a Assertion) error {
	if snap.Record(a.Name) != nil {
		return &AssertionError{
			Type:     AssertRecordAbsent,
			Expected: fmt.Sprintf("record %q absent", a.Name),
			Actual:   "still recorded",
		}
	}
	return nil
}

func assertJournalContains(journal []provider.Call, a Assertion) error {
	for _, call := range journal {
		if matchCall(call, *a.Call) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertJournalContains,
		Expected: fmt.Sprintf("journal entry matching %s", describePattern(*a.Call)),
		Actual:   "not found",
		Journal:  journal,
	}
}

func assertJournalCount(journal []provider.Call, a Assertion) error {
	count := 0
	for _, call := range journal {
		if matchCall(call, *a.Call) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertJournalCount,
			Expected: fmt.Sprintf("%d entries matching %s", a.Count, describePattern(*a.Call)),
			Actual:   fmt.Sprintf("%d entries", count),
			Journal:  journal,
		}
	}
	return nil
}

// assertJournalOrder checks the patterns form a subsequence of the
// journal: in order, intervening calls allowed.
func assertJournalOrder(journal []provider.Call, a Assertion) error {
	next := 0
	for _, call := range journal {
		if next < len(a.Calls) && matchCall(call, a.Calls[next]) {
			next++
		}
	}
	if next != len(a.Calls) {
		return &AssertionError{
			Type:     AssertJournalOrder,
			Expected: fmt.Sprintf("calls in order %s", describePatterns(a.Calls)),
			Actual:   fmt.Sprintf("matched only the first %d", next),
			Journal:  journal,
		}
	}
	return nil
}

func assertSerial(snap *state.Snapshot, a Assertion) error {
	if snap.Serial != a.Value {
		return &AssertionError{
			Type:     AssertSerial,
			Expected: fmt.Sprintf("serial %d", a.Value),
			Actual:   fmt.Sprintf("serial %d", snap.Serial),
		}
	}
	return nil
}

// matchCall applies a pattern to a journal entry. Empty pattern fields
// match anything.
func matchCall(call provider.Call, p CallPattern) bool {
	if p.Op != "" && string(call.Op) != p.Op {
		return false
	}
	if p.Type != "" && call.Type != p.Type {
		return false
	}
	if p.Name != "" && call.Name != p.Name {
		return false
	}
	return true
}

func describePattern(p CallPattern) string {
	parts := []string{}
	if p.Op != "" {
		parts = append(parts, "op="+p.Op)
	}
	if p.Type != "" {
		parts = append(parts, "type="+p.Type)
	}
	if p.Name != "" {
		parts = append(parts, "name="+p.Name)
	}
	if len(parts) == 0 {
		return "{any}"
	}
	return "{" + strings.Join(parts, " ") + "}"
}

func describePatterns(patterns []CallPattern) string {
	parts := make([]string, len(patterns))
	for i, p := range patterns {
		parts[i] = describePattern(p)
	}
	return strings.Join(parts, " -> ")
}

func recordNames(snap *state.Snapshot) []string {
	names := make([]string, 0, len(snap.Records))
	for _, rec := range snap.Records {
		names = append(names, rec.Name)
	}
	return names
}
