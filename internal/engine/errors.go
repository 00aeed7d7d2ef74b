package engine

import "fmt"

// Errors are synchronous return values. A failed intent leaves every
// collection untouched; nothing is retried and nothing panics.

// ValidationError rejects malformed input before any state is examined.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InvalidTransitionError rejects an intent that does not apply to the
// current state.
type InvalidTransitionError struct {
	Intent string
	State  string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s not allowed in state %s", e.Intent, e.State)
}

// UnknownReferenceError rejects an intent naming a request, offer, or user
// absent from the current collections.
type UnknownReferenceError struct {
	Kind string
	ID   string
}

func (e *UnknownReferenceError) Error() string {
	return fmt.Sprintf("unknown %s: %s", e.Kind, e.ID)
}
