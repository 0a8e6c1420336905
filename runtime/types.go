package runtime

import (
	"time"

	"github.com/goliatone/go-flows/internal/domain"
	"github.com/goliatone/go-flows/pkg/interfaces"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Instance is the live state pointer binding one governed entity to one
// definition version and current state. Exactly one row exists per
// (tenant, origin, entity id); only the transition executor and the resync
// routine mutate it.
type Instance struct {
	bun.BaseModel `bun:"table:workflow_instances,alias:wi"`

	ID                uuid.UUID  `bun:",pk,type:uuid" json:"id"`
	TenantID          uuid.UUID  `bun:"tenant_id,notnull,type:uuid" json:"tenant_id"`
	Origin            string     `bun:"origin,notnull" json:"origin"`
	EntityID          uuid.UUID  `bun:"entity_id,notnull,type:uuid" json:"entity_id"`
	DefinitionID      uuid.UUID  `bun:"definition_id,notnull,type:uuid" json:"definition_id"`
	DefinitionVersion int        `bun:"definition_version,notnull" json:"definition_version"`
	StateID           uuid.UUID  `bun:"state_id,notnull,type:uuid" json:"state_id"`
	StateKey          string     `bun:"state_key,notnull" json:"state_key"`
	TransitionID      *uuid.UUID `bun:"transition_id,type:uuid" json:"transition_id,omitempty"`
	RowVersion        int64      `bun:"row_version,notnull,default:1" json:"row_version"`
	CreatedAt         time.Time  `bun:"created_at,nullzero,default:current_timestamp" json:"created_at"`
	UpdatedAt         time.Time  `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at"`
}

// History is the append-only audit trail, one row per transition execution.
// Rows are never mutated after insertion except to attach the action-results
// blob within the same transaction that ran the actions.
type History struct {
	bun.BaseModel `bun:"table:workflow_history,alias:wh"`

	ID            uuid.UUID                 `bun:",pk,type:uuid" json:"id"`
	TenantID      uuid.UUID                 `bun:"tenant_id,notnull,type:uuid" json:"tenant_id"`
	InstanceID    uuid.UUID                 `bun:"instance_id,notnull,type:uuid" json:"instance_id"`
	Origin        string                    `bun:"origin,notnull" json:"origin"`
	EntityID      uuid.UUID                 `bun:"entity_id,notnull,type:uuid" json:"entity_id"`
	FromStateKey  string                    `bun:"from_state_key,notnull" json:"from_state_key"`
	ToStateKey    string                    `bun:"to_state_key,notnull" json:"to_state_key"`
	TransitionKey string                    `bun:"transition_key,notnull" json:"transition_key"`
	ActorID       uuid.UUID                 `bun:"actor_id,type:uuid" json:"actor_id"`
	Notes         string                    `bun:"notes" json:"notes,omitempty"`
	ActionResults []interfaces.ActionResult `bun:"action_results,type:jsonb" json:"action_results,omitempty"`
	Success       bool                      `bun:"success,notnull,default:true" json:"success"`
	CreatedAt     time.Time                 `bun:"created_at,nullzero,default:current_timestamp" json:"created_at"`
}

// ActionExecution is one idempotency-ledger entry per side-effect attempt.
// The execution key is unique per tenant: a retried transition resolves to
// the same row and the dispatcher skips re-application.
type ActionExecution struct {
	bun.BaseModel `bun:"table:workflow_action_executions,alias:wae"`

	ID           uuid.UUID              `bun:",pk,type:uuid" json:"id"`
	TenantID     uuid.UUID              `bun:"tenant_id,notnull,type:uuid" json:"tenant_id"`
	InstanceID   uuid.UUID              `bun:"instance_id,notnull,type:uuid" json:"instance_id"`
	HistoryID    uuid.UUID              `bun:"history_id,type:uuid" json:"history_id"`
	ActionType   string                 `bun:"action_type,notnull" json:"action_type"`
	ExecutionKey string                 `bun:"execution_key,notnull" json:"execution_key"`
	Status       domain.ExecutionStatus `bun:"status,notnull,default:'started'" json:"status"`
	Attempts     int                    `bun:"attempts,notnull,default:1" json:"attempts"`
	Request      map[string]any         `bun:"request,type:jsonb" json:"request,omitempty"`
	Result       map[string]any         `bun:"result,type:jsonb" json:"result,omitempty"`
	ErrorMessage *string                `bun:"error_message" json:"error_message,omitempty"`
	ActorID      uuid.UUID              `bun:"actor_id,type:uuid" json:"actor_id"`
	CreatedAt    time.Time              `bun:"created_at,nullzero,default:current_timestamp" json:"created_at"`
	UpdatedAt    time.Time              `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at"`
}

// StateView is the read shape for one workflow state.
type StateView struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	Color    string `json:"color,omitempty"`
	Initial  bool   `json:"initial"`
	Terminal bool   `json:"terminal"`
}

// TransitionView is the read shape for one available transition.
type TransitionView struct {
	Key           string `json:"key"`
	Name          string `json:"name"`
	ToStateKey    string `json:"to_state_key"`
	ToStateName   string `json:"to_state_name"`
	Priority      int    `json:"priority"`
	PermissionKey string `json:"permission_key"`
}

// RuntimeState is the query surface for one governed entity: its current
// state plus the enabled outgoing transitions ordered by priority. When no
// definition is published for the origin, HasWorkflow is false and the
// remaining fields are zero: an explicit "no workflow" shape, not an error.
type RuntimeState struct {
	HasWorkflow       bool             `json:"has_workflow"`
	InstanceID        uuid.UUID        `json:"instance_id,omitempty"`
	Origin            string           `json:"origin,omitempty"`
	EntityID          uuid.UUID        `json:"entity_id,omitempty"`
	DefinitionID      uuid.UUID        `json:"definition_id,omitempty"`
	DefinitionVersion int              `json:"definition_version,omitempty"`
	CurrentState      *StateView       `json:"current_state,omitempty"`
	Transitions       []TransitionView `json:"transitions,omitempty"`
}

// TransitionRequest asks the executor to apply one transition by key.
// ExpectedStateKey is an optional optimistic guard checked under the
// instance lock.
type TransitionRequest struct {
	TenantID         uuid.UUID
	Origin           string
	EntityID         uuid.UUID
	TransitionKey    string
	ExpectedStateKey string
	ActorID          uuid.UUID
	Notes            string
}

// TransitionResult reports a committed transition: the before/after states,
// the actor, the timestamp, and one result per configured action.
type TransitionResult struct {
	InstanceID        uuid.UUID                 `json:"instance_id"`
	Origin            string                    `json:"origin"`
	EntityID          uuid.UUID                 `json:"entity_id"`
	TransitionKey     string                    `json:"transition_key"`
	FromState         StateView                 `json:"from_state"`
	ToState           StateView                 `json:"to_state"`
	ActorID           uuid.UUID                 `json:"actor_id"`
	CompletedAt       time.Time                 `json:"completed_at"`
	Notes             string                    `json:"notes,omitempty"`
	ActionResults     []interfaces.ActionResult `json:"action_results,omitempty"`
	DefinitionVersion int                       `json:"definition_version"`
}

// HistoryPage is one page of the audit trail, newest first.
type HistoryPage struct {
	Entries []*History `json:"entries"`
	Total   int        `json:"total"`
	Offset  int        `json:"offset"`
	Limit   int        `json:"limit"`
}
