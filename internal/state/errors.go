package state

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Get when no record exists for a name.
// Check with errors.Is.
var ErrNotFound = errors.New("record not found")

// ErrSerialConflict is returned by WriteSnapshot when the stored serial
// moved past the serial the snapshot was read at. The caller should
// re-read and retry.
var ErrSerialConflict = errors.New("snapshot serial conflict")

// LockContentionError reports that another holder owns a live lease on
// the state. The pass aborts before any mutation; retrying later is
// safe.
type LockContentionError struct {
	Holder    string    // holder UUID of the live lease
	Operation string    // what the holder is doing (plan, apply, destroy)
	Since     time.Time // when the lease was acquired
}

func (e *LockContentionError) Error() string {
	return fmt.Sprintf("state locked by %s (%s) since %s",
		e.Holder, e.Operation, e.Since.UTC().Format(time.RFC3339))
}

// StateCorruptionError reports stored state that fails integrity checks:
// a checksum mismatch, malformed record JSON, or a lineage conflict.
// There is no automatic remediation; the operator must inspect the
// backend.
type StateCorruptionError struct {
	Reason string
}

func (e *StateCorruptionError) Error() string {
	return "state corrupted: " + e.Reason
}

// IsLockContention reports whether err is (or wraps) a
// LockContentionError.
func IsLockContention(err error) bool {
	var lce *LockContentionError
	return errors.As(err, &lce)
}

// IsCorruption reports whether err is (or wraps) a StateCorruptionError.
func IsCorruption(err error) bool {
	var sce *StateCorruptionError
	return errors.As(err, &sce)
}
