package definitions

import (
	"time"

	"github.com/goliatone/go-flows/internal/domain"
	"github.com/goliatone/go-flows/pkg/interfaces"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ActionConfig re-exports the strict per-transition action schema.
type ActionConfig = interfaces.ActionConfig

// Definition is one immutable version of a workflow graph for a
// (tenant, origin, context) scope. Republishing always creates a new version
// and archives the previous active one; rows are never mutated in place.
type Definition struct {
	bun.BaseModel `bun:"table:workflow_definitions,alias:wd"`

	ID          uuid.UUID               `bun:",pk,type:uuid" json:"id"`
	TenantID    uuid.UUID               `bun:"tenant_id,notnull,type:uuid" json:"tenant_id"`
	Origin      string                  `bun:"origin,notnull" json:"origin"`
	ContextKind *string                 `bun:"context_kind" json:"context_kind,omitempty"`
	ContextID   *uuid.UUID              `bun:"context_id,type:uuid" json:"context_id,omitempty"`
	Name        string                  `bun:"name,notnull" json:"name"`
	Description *string                 `bun:"description" json:"description,omitempty"`
	Version     int                     `bun:"version,notnull" json:"version"`
	Status      domain.DefinitionStatus `bun:"status,notnull,default:'draft'" json:"status"`
	Active      bool                    `bun:"active,notnull,default:false" json:"active"`
	Layout      map[string]any          `bun:"layout,type:jsonb" json:"layout,omitempty"`
	PublishedAt *time.Time              `bun:"published_at,nullzero" json:"published_at,omitempty"`
	PublishedBy *uuid.UUID              `bun:"published_by,type:uuid" json:"published_by,omitempty"`
	RowVersion  int64                   `bun:"row_version,notnull,default:1" json:"row_version"`
	CreatedAt   time.Time               `bun:"created_at,nullzero,default:current_timestamp" json:"created_at"`
	UpdatedAt   time.Time               `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at"`

	States      []*State      `bun:"rel:has-many,join:id=definition_id" json:"states,omitempty"`
	Transitions []*Transition `bun:"rel:has-many,join:id=definition_id" json:"transitions,omitempty"`
}

// State belongs to exactly one definition. Keys are opaque, system-generated,
// and immutable once created; states are never shared across versions.
type State struct {
	bun.BaseModel `bun:"table:workflow_states,alias:ws"`

	ID           uuid.UUID      `bun:",pk,type:uuid" json:"id"`
	DefinitionID uuid.UUID      `bun:"definition_id,notnull,type:uuid" json:"definition_id"`
	Key          string         `bun:"key,notnull" json:"key"`
	Name         string         `bun:"name,notnull" json:"name"`
	Color        string         `bun:"color" json:"color,omitempty"`
	Initial      bool           `bun:"initial,notnull,default:false" json:"initial"`
	Terminal     bool           `bun:"terminal,notnull,default:false" json:"terminal"`
	PosX         float64        `bun:"pos_x" json:"pos_x"`
	PosY         float64        `bun:"pos_y" json:"pos_y"`
	Position     int            `bun:"position,notnull,default:0" json:"position"`
	Metadata     map[string]any `bun:"metadata,type:jsonb" json:"metadata,omitempty"`
	CreatedAt    time.Time      `bun:"created_at,nullzero,default:current_timestamp" json:"created_at"`
}

// Transition is a directed edge between two states of the same definition,
// carrying the ordered list of action configurations to run when taken.
type Transition struct {
	bun.BaseModel `bun:"table:workflow_transitions,alias:wt"`

	ID           uuid.UUID      `bun:",pk,type:uuid" json:"id"`
	DefinitionID uuid.UUID      `bun:"definition_id,notnull,type:uuid" json:"definition_id"`
	Key          string         `bun:"key,notnull" json:"key"`
	Name         string         `bun:"name,notnull" json:"name"`
	FromStateKey string         `bun:"from_state_key,notnull" json:"from_state_key"`
	ToStateKey   string         `bun:"to_state_key,notnull" json:"to_state_key"`
	Enabled      bool           `bun:"enabled,notnull,default:true" json:"enabled"`
	Priority     int            `bun:"priority,notnull,default:0" json:"priority"`
	Position     int            `bun:"position,notnull,default:0" json:"position"`
	Actions      []ActionConfig `bun:"actions,type:jsonb" json:"actions,omitempty"`
	UI           map[string]any `bun:"ui,type:jsonb" json:"ui,omitempty"`
	CreatedAt    time.Time      `bun:"created_at,nullzero,default:current_timestamp" json:"created_at"`
}

// InitialState locates the definition's sole initial state.
func (d *Definition) InitialState() (*State, bool) {
	if d == nil {
		return nil, false
	}
	for _, state := range d.States {
		if state != nil && state.Initial {
			return state, true
		}
	}
	return nil, false
}

// StateByKey looks up a state by its opaque key.
func (d *Definition) StateByKey(key string) (*State, bool) {
	if d == nil {
		return nil, false
	}
	for _, state := range d.States {
		if state != nil && state.Key == key {
			return state, true
		}
	}
	return nil, false
}

// TransitionByKey looks up a transition by its opaque key.
func (d *Definition) TransitionByKey(key string) (*Transition, bool) {
	if d == nil {
		return nil, false
	}
	for _, tr := range d.Transitions {
		if tr != nil && tr.Key == key {
			return tr, true
		}
	}
	return nil, false
}

// TransitionsFrom returns the enabled transitions leaving the given state,
// ordered by priority (lower first) then declaration order.
func (d *Definition) TransitionsFrom(stateKey string) []*Transition {
	if d == nil {
		return nil
	}
	out := make([]*Transition, 0, len(d.Transitions))
	for _, tr := range d.Transitions {
		if tr == nil || !tr.Enabled || tr.FromStateKey != stateKey {
			continue
		}
		out = append(out, tr)
	}
	sortTransitions(out)
	return out
}

func sortTransitions(transitions []*Transition) {
	for i := 1; i < len(transitions); i++ {
		for j := i; j > 0; j-- {
			a, b := transitions[j-1], transitions[j]
			if a.Priority < b.Priority || (a.Priority == b.Priority && a.Position <= b.Position) {
				break
			}
			transitions[j-1], transitions[j] = b, a
		}
	}
}
