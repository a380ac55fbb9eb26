package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the workflow or document does not exist
	ErrNotFound = errors.New("workflow: not found")

	// ErrUnauthorized indicates the actor's role or identity does not match
	// the participant allowed to act
	ErrUnauthorized = errors.New("workflow: actor not authorized")

	// ErrInvalidTransition indicates the action is not legal for the current
	// stage, or an immutable field was targeted again
	ErrInvalidTransition = errors.New("workflow: invalid transition")

	// ErrValidation indicates missing document approvals or malformed input
	ErrValidation = errors.New("workflow: validation failed")

	// ErrConflict indicates the optimistic version check failed; the caller
	// must re-read and retry
	ErrConflict = errors.New("workflow: version conflict")

	// ErrTerminal indicates the workflow already completed or was rejected
	ErrTerminal = errors.New("workflow: workflow is terminal")
)

// ActionError carries the context of a rejected operation. It unwraps to
// one of the sentinel errors above for errors.Is matching.
type ActionError struct {
	WorkflowID string
	Stage      Stage
	Action     Action
	Reason     string
	Err        error
}

func (e *ActionError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%v: %s on %s at stage %s: %s", e.Err, e.Action, e.WorkflowID, e.Stage, e.Reason)
	}
	return fmt.Sprintf("%v: %s: %s", e.Err, e.WorkflowID, e.Reason)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// ConflictError reports an optimistic concurrency failure with the versions
// involved so callers can log the race
type ConflictError struct {
	WorkflowID      string
	ExpectedVersion int
	ActualVersion   int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%v: %s expected version %d, stored version %d",
		ErrConflict, e.WorkflowID, e.ExpectedVersion, e.ActualVersion)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// Code maps an engine error to a stable machine-readable code for
// transport layers
func Code(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrTerminal):
		return "terminal"
	default:
		return "internal"
	}
}
