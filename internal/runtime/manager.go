package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"

	flowdefs "github.com/goliatone/go-flows/definitions"
	"github.com/goliatone/go-flows/internal/domain"
	"github.com/goliatone/go-flows/pkg/interfaces"
	flowruntime "github.com/goliatone/go-flows/runtime"
	"github.com/google/uuid"
)

func (s *service) EnsureInstance(ctx context.Context, tenantID uuid.UUID, origin string, entityID uuid.UUID) (*Instance, error) {
	if !s.enabled {
		return nil, ErrEngineDisabled
	}
	if tenantID == uuid.Nil {
		return nil, ErrTenantRequired
	}
	if entityID == uuid.Nil {
		return nil, ErrEntityRequired
	}
	resolver, ok := s.origins.Resolver(origin)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrOriginUnknown, origin)
	}
	normalized := string(domain.NormalizeOrigin(origin))

	existing, err := s.store.Instances().Get(ctx, tenantID, normalized, entityID)
	if err == nil {
		return s.resync(ctx, resolver, existing)
	}
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		return nil, err
	}

	scope, err := s.scopeFor(ctx, resolver, tenantID, entityID)
	if err != nil {
		return nil, err
	}
	def, err := s.definitions.GetByOrigin(ctx, tenantID, normalized, scope)
	if err != nil {
		if errors.Is(err, flowdefs.ErrNotPublished) {
			return nil, nil
		}
		return nil, err
	}

	exists, err := resolver.Exists(ctx, tenantID, entityID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrEntityNotFound
	}

	initial, ok := def.InitialState()
	if !ok {
		return nil, fmt.Errorf("runtime: definition %s has no initial state", def.ID)
	}

	now := s.now().UTC()
	record := &Instance{
		ID:                s.id(),
		TenantID:          tenantID,
		Origin:            normalized,
		EntityID:          entityID,
		DefinitionID:      def.ID,
		DefinitionVersion: def.Version,
		StateID:           initial.ID,
		StateKey:          initial.Key,
		RowVersion:        1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	created, err := s.store.Instances().Create(ctx, record)
	if err != nil {
		var dup *DuplicateInstanceError
		if errors.As(err, &dup) {
			// lost the creation race, the winner's row is authoritative
			winner, readErr := s.store.Instances().Get(ctx, tenantID, normalized, entityID)
			if readErr != nil {
				return nil, readErr
			}
			return s.resync(ctx, resolver, winner)
		}
		return nil, err
	}

	s.pushStatus(ctx, resolver, tenantID, entityID, created.StateKey)
	s.logger.Info("instance created",
		"instance_id", created.ID,
		"origin", created.Origin,
		"entity_id", created.EntityID,
		"definition_version", created.DefinitionVersion,
		"state_key", created.StateKey,
	)
	return created, nil
}

// resync re-points an instance at the current published definition. States
// are matched by case-insensitive display name; when the old state's name no
// longer resolves, the instance falls back to the new initial state.
func (s *service) resync(ctx context.Context, resolver interfaces.OriginResolver, record *Instance) (*Instance, error) {
	scope, err := s.scopeFor(ctx, resolver, record.TenantID, record.EntityID)
	if err != nil {
		return nil, err
	}
	def, err := s.definitions.GetByOrigin(ctx, record.TenantID, record.Origin, scope)
	if err != nil {
		if errors.Is(err, flowdefs.ErrNotPublished) {
			// nothing published anymore, keep the instance pinned
			return record, nil
		}
		return nil, err
	}
	if def.ID == record.DefinitionID {
		return record, nil
	}

	// Re-point under the same lock the executor takes so an in-flight
	// transition cannot interleave with the update.
	var updated *Instance
	changed := false
	err = s.store.Atomic(ctx, func(ctx context.Context, store Store) error {
		locked, err := store.Instances().GetLocked(ctx, record.TenantID, record.Origin, record.EntityID)
		if err != nil {
			return err
		}
		if locked.DefinitionID == def.ID {
			updated = locked
			return nil
		}

		stateName := ""
		if previous, err := s.definitions.Get(ctx, locked.DefinitionID); err == nil {
			if state, ok := previous.StateByKey(locked.StateKey); ok {
				stateName = state.Name
			}
		}
		target, ok := stateByName(def, stateName)
		if !ok {
			if target, ok = def.InitialState(); !ok {
				return fmt.Errorf("runtime: definition %s has no initial state", def.ID)
			}
		}

		locked.DefinitionID = def.ID
		locked.DefinitionVersion = def.Version
		locked.StateID = target.ID
		locked.StateKey = target.Key
		locked.TransitionID = nil
		locked.RowVersion++
		locked.UpdatedAt = s.now().UTC()

		updated, err = store.Instances().Update(ctx, locked)
		if err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return updated, nil
	}

	s.pushStatus(ctx, resolver, updated.TenantID, updated.EntityID, updated.StateKey)
	s.logger.Info("instance resynced",
		"instance_id", updated.ID,
		"origin", updated.Origin,
		"definition_version", updated.DefinitionVersion,
		"state_key", updated.StateKey,
	)
	return updated, nil
}

func (s *service) RuntimeState(ctx context.Context, tenantID uuid.UUID, origin string, entityID uuid.UUID) (*RuntimeState, error) {
	record, err := s.EnsureInstance(ctx, tenantID, origin, entityID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return &RuntimeState{HasWorkflow: false}, nil
	}

	def, err := s.definitions.Get(ctx, record.DefinitionID)
	if err != nil {
		return nil, err
	}

	current, ok := def.StateByKey(record.StateKey)
	if !ok {
		return nil, fmt.Errorf("runtime: state %q missing from definition %s", record.StateKey, def.ID)
	}

	state := &RuntimeState{
		HasWorkflow:       true,
		InstanceID:        record.ID,
		Origin:            record.Origin,
		EntityID:          record.EntityID,
		DefinitionID:      def.ID,
		DefinitionVersion: def.Version,
		CurrentState:      stateView(current),
	}
	for _, tr := range def.TransitionsFrom(record.StateKey) {
		view := TransitionView{
			Key:           tr.Key,
			Name:          tr.Name,
			ToStateKey:    tr.ToStateKey,
			Priority:      tr.Priority,
			PermissionKey: flowruntime.PermissionKey(record.Origin, def.ContextKind, def.ContextID, tr.Key),
		}
		if to, ok := def.StateByKey(tr.ToStateKey); ok {
			view.ToStateName = to.Name
		}
		state.Transitions = append(state.Transitions, view)
	}
	return state, nil
}

func (s *service) History(ctx context.Context, tenantID uuid.UUID, origin string, entityID uuid.UUID, offset, limit int) (*HistoryPage, error) {
	if !s.enabled {
		return nil, ErrEngineDisabled
	}
	if tenantID == uuid.Nil {
		return nil, ErrTenantRequired
	}
	if entityID == uuid.Nil {
		return nil, ErrEntityRequired
	}
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = s.historyDefault
	}
	if limit > s.historyMax {
		limit = s.historyMax
	}

	entries, total, err := s.store.History().List(ctx, tenantID, string(domain.NormalizeOrigin(origin)), entityID, offset, limit)
	if err != nil {
		return nil, err
	}
	return &HistoryPage{
		Entries: entries,
		Total:   total,
		Offset:  offset,
		Limit:   limit,
	}, nil
}

// PurgeInstances removes live state pointers for the given entities. History
// rows are retained as audit; only the instances disappear.
func (s *service) PurgeInstances(ctx context.Context, tenantID uuid.UUID, origin string, entityIDs []uuid.UUID) (int, error) {
	if !s.enabled {
		return 0, ErrEngineDisabled
	}
	if tenantID == uuid.Nil {
		return 0, ErrTenantRequired
	}
	if len(entityIDs) == 0 {
		return 0, nil
	}
	removed, err := s.store.Instances().DeleteByEntityIDs(ctx, tenantID, string(domain.NormalizeOrigin(origin)), entityIDs)
	if err != nil {
		return 0, err
	}
	s.logger.Info("instances purged", "origin", origin, "requested", len(entityIDs), "removed", removed)
	return removed, nil
}

func (s *service) scopeFor(ctx context.Context, resolver interfaces.OriginResolver, tenantID, entityID uuid.UUID) (flowdefs.Scope, error) {
	provider, ok := resolver.(interfaces.ScopeProvider)
	if !ok {
		return flowdefs.Scope{}, nil
	}
	kind, id, err := provider.Scope(ctx, tenantID, entityID)
	if err != nil {
		return flowdefs.Scope{}, err
	}
	return flowdefs.Scope{ContextKind: kind, ContextID: id}, nil
}

func (s *service) pushStatus(ctx context.Context, resolver interfaces.OriginResolver, tenantID, entityID uuid.UUID, stateKey string) {
	if err := resolver.SyncStatus(ctx, tenantID, entityID, stateKey); err != nil {
		s.logger.Warn("status sync failed",
			"entity_id", entityID,
			"state_key", stateKey,
			"error", err,
		)
	}
}

func stateByName(def *flowdefs.Definition, name string) (*flowdefs.State, bool) {
	if strings.TrimSpace(name) == "" {
		return nil, false
	}
	for i := range def.States {
		if strings.EqualFold(def.States[i].Name, name) {
			return def.States[i], true
		}
	}
	return nil, false
}

func stateView(state *flowdefs.State) *StateView {
	return &StateView{
		Key:      state.Key,
		Name:     state.Name,
		Color:    state.Color,
		Initial:  state.Initial,
		Terminal: state.Terminal,
	}
}
