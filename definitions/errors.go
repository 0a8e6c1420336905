package definitions

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTenantRequired     = errors.New("definitions: tenant id required")
	ErrDefinitionRequired = errors.New("definitions: definition id required")
	ErrNotPublished       = errors.New("definitions: no published definition for scope")
	ErrScopeMismatch      = errors.New("definitions: update targets a different scope")
	ErrDocumentInvalid    = errors.New("definitions: document is not a valid export")
	ErrGraphInvalid       = errors.New("definitions: graph validation failed")
	ErrAlreadyArchived    = errors.New("definitions: definition already archived")
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

// GraphValidationError carries every violation found in a candidate graph so
// callers can surface all problems at once.
type GraphValidationError struct {
	Violations []Violation
}

func (e *GraphValidationError) Error() string {
	if e == nil || len(e.Violations) == 0 {
		return ErrGraphInvalid.Error()
	}
	codes := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		codes = append(codes, v.Code)
	}
	return fmt.Sprintf("%s: %s", ErrGraphInvalid.Error(), strings.Join(codes, ", "))
}

func (e *GraphValidationError) Unwrap() error {
	return ErrGraphInvalid
}
