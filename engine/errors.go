package engine

import "fmt"

// =============================================================================
// INVARIANT ERRORS - Malformed snapshots are programming errors
// =============================================================================

// InvariantError is the panic value used when a caller hands the engine a
// snapshot that breaks one of its invariants. It is never returned.
type InvariantError struct {
	Invariant string
	Detail    string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("engine invariant violated: %s: %s", e.Invariant, e.Detail)
}

func violate(invariant, format string, args ...any) {
	panic(&InvariantError{Invariant: invariant, Detail: fmt.Sprintf(format, args...)})
}
