package provider

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Describe when the remote side has no resource
// for the given identity. Not an error condition for the engine: it means
// "never created" or "deleted out of band".
var ErrNotFound = errors.New("resource not found")

// TransientError is a provider failure worth retrying: timeouts, throttling,
// connection resets. The engine retries these with exponential backoff before
// giving up on the node.
type TransientError struct {
	Op       Op
	Type     string
	Identity string
	Err      error
}

func (e *TransientError) Error() string {
	if e.Identity != "" {
		return fmt.Sprintf("transient %s failure on %s %q: %v", e.Op, e.Type, e.Identity, e.Err)
	}
	return fmt.Sprintf("transient %s failure on %s: %v", e.Op, e.Type, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError is a provider failure that retrying cannot fix: rejected
// input, a conflict with remote reality, permission denied. The node is
// marked failed and its dependents are skipped.
type PermanentError struct {
	Op       Op
	Type     string
	Identity string
	Err      error
}

func (e *PermanentError) Error() string {
	if e.Identity != "" {
		return fmt.Sprintf("permanent %s failure on %s %q: %v", e.Op, e.Type, e.Identity, e.Err)
	}
	return fmt.Sprintf("permanent %s failure on %s: %v", e.Op, e.Type, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// NewTransient wraps err as a retryable provider failure.
func NewTransient(op Op, typeName, identity string, err error) *TransientError {
	return &TransientError{Op: op, Type: typeName, Identity: identity, Err: err}
}

// NewPermanent wraps err as a non-retryable provider failure.
func NewPermanent(op Op, typeName, identity string, err error) *PermanentError {
	return &PermanentError{Op: op, Type: typeName, Identity: identity, Err: err}
}
