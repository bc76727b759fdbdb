package state

import "fmt"

// StateErrorKind classifies tracker update failures.
type StateErrorKind string

const (
	// KindReorgSuspected means an observation arrived for a block below the
	// tracked cursor. The caller must resolve the reorg before retrying.
	KindReorgSuspected StateErrorKind = "reorg_suspected"

	// KindInvalidReserve means an observation carried a zero or
	// out-of-bounds reserve. Such data is corrupt and must not be skipped.
	KindInvalidReserve StateErrorKind = "invalid_reserve"
)

// StateError is returned when an observation is rejected. The tracker is
// left exactly as it was before the call.
type StateError struct {
	Kind   StateErrorKind
	Detail string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("state error (%s): %s", e.Kind, e.Detail)
}

func newStateError(kind StateErrorKind, format string, args ...any) *StateError {
	return &StateError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}
