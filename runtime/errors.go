package runtime

import (
	"errors"
	"fmt"
)

var (
	ErrTenantRequired       = errors.New("runtime: tenant id required")
	ErrEntityRequired       = errors.New("runtime: entity id required")
	ErrEntityNotFound       = errors.New("runtime: governed entity does not exist")
	ErrOriginUnknown        = errors.New("runtime: origin has no registered resolver")
	ErrNoWorkflow           = errors.New("runtime: no published definition for origin")
	ErrTransitionRequired   = errors.New("runtime: transition key required")
	ErrTransitionUnknown    = errors.New("runtime: transition not declared by definition")
	ErrTransitionDisabled   = errors.New("runtime: transition is disabled")
	ErrTransitionNotAllowed = errors.New("runtime: transition does not originate from current state")
	ErrStateConflict        = errors.New("runtime: expected state does not match current state")
	ErrEngineDisabled       = errors.New("runtime: workflow engine is disabled")
)

// NotFoundError represents missing records from repository lookups.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %q not found", e.Resource, e.Key)
}

// ConflictError carries the state keys involved in an optimistic guard
// failure so callers can re-fetch and retry with fresh expectations.
type ConflictError struct {
	ExpectedStateKey string
	ActualStateKey   string
}

func (e *ConflictError) Error() string {
	if e == nil {
		return ErrStateConflict.Error()
	}
	return fmt.Sprintf("%s: expected %q, current %q", ErrStateConflict.Error(), e.ExpectedStateKey, e.ActualStateKey)
}

func (e *ConflictError) Unwrap() error {
	return ErrStateConflict
}

// DuplicateInstanceError signals a uniqueness race during lazy creation; the
// manager treats it as "someone else already created it" and re-reads.
type DuplicateInstanceError struct {
	Origin   string
	EntityID string
}

func (e *DuplicateInstanceError) Error() string {
	return fmt.Sprintf("runtime: instance already exists for %s %s", e.Origin, e.EntityID)
}
