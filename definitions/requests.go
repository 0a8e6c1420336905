package definitions

import (
	"github.com/google/uuid"
)

// Scope narrows a (tenant, origin) lookup to an optional context, e.g. a
// specific movement-type configuration.
type Scope struct {
	ContextKind *string
	ContextID   *uuid.UUID
}

// Matches reports whether the scope equals the supplied context pair.
func (s Scope) Matches(kind *string, id *uuid.UUID) bool {
	return equalStringPtr(s.ContextKind, kind) && equalUUIDPtr(s.ContextID, id)
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalUUIDPtr(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// DefinitionRequest is the caller-facing payload for publishing a workflow
// graph. State and transition keys in the request exist only so transitions
// can reference their endpoints; persisted keys are always regenerated by the
// system, which keeps keys unique per definition across versions.
type DefinitionRequest struct {
	TenantID    uuid.UUID
	Origin      string
	ContextKind *string
	ContextID   *uuid.UUID
	Name        string
	Description *string
	Layout      map[string]any
	ActorID     uuid.UUID
	States      []StateInput
	Transitions []TransitionInput
}

// StateInput declares one state of the candidate graph.
type StateInput struct {
	Key      string
	Name     string
	Color    string
	Initial  bool
	Terminal bool
	PosX     float64
	PosY     float64
	Metadata map[string]any
}

// TransitionInput declares one directed edge of the candidate graph.
type TransitionInput struct {
	Key      string
	Name     string
	From     string
	To       string
	Enabled  bool
	Priority int
	Actions  []ActionConfig
	UI       map[string]any
}
