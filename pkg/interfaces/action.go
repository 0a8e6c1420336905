package interfaces

import (
	"context"

	"github.com/google/uuid"
)

// ActionStatus describes the outcome recorded for one action execution.
type ActionStatus string

const (
	ActionStatusSuccess ActionStatus = "success"
	ActionStatusReused  ActionStatus = "reused"
	ActionStatusFailed  ActionStatus = "failed"
)

// ActionConfig is the strict schema persisted inline on a transition for one
// configured side effect. The blob is validated on every definition publish.
type ActionConfig struct {
	Type        string         `json:"type"`
	Trigger     string         `json:"trigger"`
	MustSucceed bool           `json:"must_succeed"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ActionContext carries the request-scoped data an action needs during a
// transition. Tenant and actor are threaded explicitly; there is no ambient
// request state.
type ActionContext struct {
	TenantID          uuid.UUID
	ActorID           uuid.UUID
	Origin            string
	EntityID          uuid.UUID
	InstanceID        uuid.UUID
	HistoryID         uuid.UUID
	DefinitionID      uuid.UUID
	DefinitionVersion int
	TransitionKey     string
	FromStateKey      string
	ToStateKey        string
	Notes             string
	Ledger            ExecutionLedger
}

// ActionResult is the per-action outcome attached to the transition's history
// entry and returned to the caller.
type ActionResult struct {
	Type         string         `json:"type"`
	Status       ActionStatus   `json:"status"`
	ExecutionKey string         `json:"execution_key"`
	Result       map[string]any `json:"result,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// Action is a pluggable, idempotent side effect registered under one action
// type key. Implementations derive their own deterministic execution key and
// route their effect through the execution ledger so retries never double-apply.
type Action interface {
	Type() string
	Execute(ctx context.Context, actx *ActionContext, cfg ActionConfig) (*ActionResult, error)
}

// LedgerOutcome reports whether the keyed effect ran or was replayed.
type LedgerOutcome struct {
	ExecutionKey string
	Reused       bool
	Result       map[string]any
}

// LedgerEntry is a read-only view over a recorded execution.
type LedgerEntry struct {
	ExecutionKey string
	ActionType   string
	Request      map[string]any
	Result       map[string]any
}

// ExecutionLedger serializes side-effect attempts by execution key. Run
// records a STARTED entry before invoking fn and finalizes it afterwards; a
// key that already completed short-circuits to the stored result.
type ExecutionLedger interface {
	Run(ctx context.Context, actionType, key string, request map[string]any, fn func(ctx context.Context) (map[string]any, error)) (*LedgerOutcome, error)
	LastSucceeded(ctx context.Context, instanceID uuid.UUID, actionType string) (*LedgerEntry, bool, error)
}
