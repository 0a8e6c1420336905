package domain

import "strings"

// DefinitionStatus represents lifecycle states for workflow definitions.
type DefinitionStatus string

const (
	// DefinitionStatusDraft indicates a definition still under preparation.
	DefinitionStatusDraft DefinitionStatus = "draft"
	// DefinitionStatusPublished identifies the definition instances run against.
	DefinitionStatusPublished DefinitionStatus = "published"
	// DefinitionStatusArchived marks a definition retained for history and
	// for in-flight instances that still point at it.
	DefinitionStatusArchived DefinitionStatus = "archived"
)

// TriggerPhase identifies when a configured action runs relative to the state
// advance inside a transition.
type TriggerPhase string

const (
	TriggerBeforeTransition TriggerPhase = "before_transition"
	TriggerAfterTransition  TriggerPhase = "after_transition"
)

// KnownTriggerPhase reports whether the supplied phase is recognized.
func KnownTriggerPhase(input string) bool {
	switch TriggerPhase(strings.ToLower(strings.TrimSpace(input))) {
	case TriggerBeforeTransition, TriggerAfterTransition:
		return true
	default:
		return false
	}
}

// ExecutionStatus tracks one side-effect attempt in the idempotency ledger.
type ExecutionStatus string

const (
	ExecutionStatusStarted ExecutionStatus = "started"
	ExecutionStatusSuccess ExecutionStatus = "success"
	ExecutionStatusFailed  ExecutionStatus = "failed"
	ExecutionStatusPending ExecutionStatus = "pending"
)
