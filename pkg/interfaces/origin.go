package interfaces

import (
	"context"

	"github.com/google/uuid"
)

// OriginResolver is the capability contract an origin (the kind of business
// entity a workflow governs) implements so the engine can verify entities and
// mirror state changes back onto them. The workflow instance remains the
// source of truth; SyncStatus feeds the entity's denormalized status column.
type OriginResolver interface {
	// Exists reports whether the governed entity is present for the tenant.
	Exists(ctx context.Context, tenantID, entityID uuid.UUID) (bool, error)
	// SyncStatus pushes the current workflow state key onto the entity.
	SyncStatus(ctx context.Context, tenantID, entityID uuid.UUID, stateKey string) error
}

// DependentRef identifies a sub-entity governed by its own workflow.
type DependentRef struct {
	Origin   string
	EntityID uuid.UUID
}

// DependentsProvider is an optional OriginResolver extension for origins whose
// entities own dependent sub-entities (e.g. a movement and its line items).
// Cascading actions use it to enumerate the workflows they must drive.
type DependentsProvider interface {
	Dependents(ctx context.Context, tenantID, entityID uuid.UUID) ([]DependentRef, error)
}

// ScopeProvider is an optional OriginResolver extension for origins whose
// entities pick a context-narrowed definition (e.g. one configuration per
// movement type). Without it the engine resolves the origin's default scope.
type ScopeProvider interface {
	Scope(ctx context.Context, tenantID, entityID uuid.UUID) (contextKind *string, contextID *uuid.UUID, err error)
}

// OriginRegistry resolves the capability set registered for an origin kind.
type OriginRegistry interface {
	Resolver(origin string) (OriginResolver, bool)
	Origins() []string
}
