package engine

import (
	"errors"
	"fmt"
)

// ProtectedResourceError is the per-node failure for a destroy that policy
// forbids. The planned action still renders so the operator can see what was
// refused, but no provider call is made for the node.
type ProtectedResourceError struct {
	// Name is the logical resource name.
	Name string

	// Action is the refused action: ActionDestroy, or ActionReplace when the
	// destroy is embedded in a replacement.
	Action Action
}

func (e *ProtectedResourceError) Error() string {
	return fmt.Sprintf("resource %q is protected from destroy (refusing %s)", e.Name, e.Action)
}

// IsProtected reports whether err is (or wraps) a ProtectedResourceError.
func IsProtected(err error) bool {
	var pe *ProtectedResourceError
	return errors.As(err, &pe)
}

// skipError marks a node that never ran because a predecessor failed.
type skipError struct {
	Dependency string
}

func (e *skipError) Error() string {
	return fmt.Sprintf("dependency %q failed", e.Dependency)
}

// IsSkip reports whether err records a skipped node rather than a real
// provider failure.
func IsSkip(err error) bool {
	var se *skipError
	return errors.As(err, &se)
}
