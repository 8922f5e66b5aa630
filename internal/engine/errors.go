package engine

import (
	"fmt"

	"servicelog/internal/domain"
)

// ValidationError indicates malformed or missing input. The caller must
// correct the request; retrying it unchanged will fail the same way.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func validationErr(field, reason string) error {
	return ValidationError{Field: field, Reason: reason}
}

// InvalidTransitionError indicates an action not permitted from the plan's
// current state or for the actor's role. Retrying an already-applied
// transition surfaces this conflict instead of double-applying.
type InvalidTransitionError struct {
	Current domain.Status
	Action  domain.Action
	Reason  string
}

func (e InvalidTransitionError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return fmt.Sprintf("cannot %s a plan in status %s", e.Action, e.Current)
}

// PersistenceError wraps an underlying store failure. Nothing was committed,
// so the same request is safe to retry verbatim.
type PersistenceError struct {
	Op  string
	Err error
}

func (e PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e PersistenceError) Unwrap() error { return e.Err }

func persistErr(op string, err error) error {
	return PersistenceError{Op: op, Err: err}
}
