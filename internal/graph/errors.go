package graph

import (
	"errors"
	"fmt"
	"strings"
)

// CycleError reports that the declaration's reference edges form a cycle.
// Fatal before any provider call: a cyclic declaration has no valid apply
// order.
type CycleError struct {
	// Path is the cycle sequence, first node repeated at the end:
	// ["a", "b", "a"].
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Path, " -> "))
}

// UnresolvedReferenceError reports a reference to a nonexistent node, or to
// an output the target's schema does not declare. Fatal before any provider
// call.
type UnresolvedReferenceError struct {
	// Node is the resource whose expression or depends_on entry is broken.
	Node string

	// Target is the referenced resource name.
	Target string

	// Output is the referenced output attribute; empty for depends_on
	// entries, which name a node without an output.
	Output string

	// Reason explains what failed to resolve.
	Reason string
}

func (e *UnresolvedReferenceError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("resource %q: reference ${%s.%s}: %s", e.Node, e.Target, e.Output, e.Reason)
	}
	return fmt.Sprintf("resource %q: depends_on %q: %s", e.Node, e.Target, e.Reason)
}

// IsCycle reports whether err is (or wraps) a CycleError.
func IsCycle(err error) bool {
	var ce *CycleError
	return errors.As(err, &ce)
}

// IsUnresolvedReference reports whether err is (or wraps) an
// UnresolvedReferenceError.
func IsUnresolvedReference(err error) bool {
	var ue *UnresolvedReferenceError
	return errors.As(err, &ue)
}
