package definitions

import (
	"context"
	"sort"
	"sync"

	"github.com/goliatone/go-flows/internal/domain"
	"github.com/google/uuid"
)

// MemoryRepository is an in-memory implementation for scaffolding and tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*Definition
}

// NewMemoryRepository creates an empty in-memory definition repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		records: make(map[uuid.UUID]*Definition),
	}
}

// Publish archives the scope's current published+active definition, assigns
// the next version number, and stores the record with its graph.
func (m *MemoryRepository) Publish(_ context.Context, record *Definition) (*Definition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	scope := Scope{ContextKind: record.ContextKind, ContextID: record.ContextID}
	maxVersion := 0
	for _, existing := range m.records {
		if !sameScope(existing, record.TenantID, record.Origin, scope) {
			continue
		}
		if existing.Version > maxVersion {
			maxVersion = existing.Version
		}
		if existing.Active {
			existing.Active = false
			existing.Status = domain.DefinitionStatusArchived
		}
	}

	copied := cloneDefinition(record)
	copied.Version = maxVersion + 1
	m.records[copied.ID] = copied
	return cloneDefinition(copied), nil
}

// GetByID retrieves a definition with its graph loaded.
func (m *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*Definition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, &NotFoundError{Resource: "workflow_definition", Key: id.String()}
	}
	return cloneDefinition(rec), nil
}

// GetPublished returns the single published+active definition for the scope.
func (m *MemoryRepository) GetPublished(_ context.Context, tenantID uuid.UUID, origin string, scope Scope) (*Definition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, rec := range m.records {
		if sameScope(rec, tenantID, origin, scope) && rec.Active && rec.Status == domain.DefinitionStatusPublished {
			return cloneDefinition(rec), nil
		}
	}
	return nil, &NotFoundError{Resource: "workflow_definition", Key: origin}
}

// List returns every definition version for (tenant, origin), newest first.
func (m *MemoryRepository) List(_ context.Context, tenantID uuid.UUID, origin string) ([]*Definition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Definition, 0, len(m.records))
	for _, rec := range m.records {
		if rec.TenantID == tenantID && rec.Origin == origin {
			out = append(out, cloneDefinition(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Version > out[j].Version
	})
	return out, nil
}

// Update persists mutations to a definition row (lifecycle flips only).
func (m *MemoryRepository) Update(_ context.Context, record *Definition) (*Definition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[record.ID]; !ok {
		return nil, &NotFoundError{Resource: "workflow_definition", Key: record.ID.String()}
	}
	copied := cloneDefinition(record)
	m.records[copied.ID] = copied
	return cloneDefinition(copied), nil
}

func sameScope(rec *Definition, tenantID uuid.UUID, origin string, scope Scope) bool {
	return rec.TenantID == tenantID &&
		rec.Origin == origin &&
		scope.Matches(rec.ContextKind, rec.ContextID)
}

func cloneDefinition(src *Definition) *Definition {
	if src == nil {
		return nil
	}

	copied := *src
	if len(src.States) > 0 {
		copied.States = make([]*State, len(src.States))
		for i, state := range src.States {
			if state == nil {
				continue
			}
			clonedState := *state
			copied.States[i] = &clonedState
		}
	}
	if len(src.Transitions) > 0 {
		copied.Transitions = make([]*Transition, len(src.Transitions))
		for i, tr := range src.Transitions {
			if tr == nil {
				continue
			}
			clonedTransition := *tr
			if len(tr.Actions) > 0 {
				clonedTransition.Actions = make([]ActionConfig, len(tr.Actions))
				copy(clonedTransition.Actions, tr.Actions)
			}
			copied.Transitions[i] = &clonedTransition
		}
	}
	return &copied
}
