package runtime

import (
	"context"
	"fmt"

	"github.com/goliatone/go-flows/internal/domain"
	"github.com/goliatone/go-flows/pkg/interfaces"
	"github.com/google/uuid"
)

// ExecuteTransition applies one transition under the instance lock. The
// guard checks, the history insert, the configured actions, and the state
// advance share a single atomic unit: an action whose must-succeed flag is
// set rolls back everything, leaving the instance untouched.
func (s *service) ExecuteTransition(ctx context.Context, req TransitionRequest) (*TransitionResult, error) {
	if !s.enabled {
		return nil, ErrEngineDisabled
	}
	if req.TenantID == uuid.Nil {
		return nil, ErrTenantRequired
	}
	if req.EntityID == uuid.Nil {
		return nil, ErrEntityRequired
	}
	if req.TransitionKey == "" {
		return nil, ErrTransitionRequired
	}
	resolver, ok := s.origins.Resolver(req.Origin)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrOriginUnknown, req.Origin)
	}
	normalized := string(domain.NormalizeOrigin(req.Origin))

	// resync happens here, before the lock is taken
	instance, err := s.EnsureInstance(ctx, req.TenantID, normalized, req.EntityID)
	if err != nil {
		return nil, err
	}
	if instance == nil {
		return nil, ErrNoWorkflow
	}

	var result *TransitionResult
	err = s.store.Atomic(ctx, func(ctx context.Context, store Store) error {
		locked, err := store.Instances().GetLocked(ctx, req.TenantID, normalized, req.EntityID)
		if err != nil {
			return err
		}
		if req.ExpectedStateKey != "" && locked.StateKey != req.ExpectedStateKey {
			return &ConflictError{
				ExpectedStateKey: req.ExpectedStateKey,
				ActualStateKey:   locked.StateKey,
			}
		}

		def, err := s.definitions.Get(ctx, locked.DefinitionID)
		if err != nil {
			return err
		}
		transition, ok := def.TransitionByKey(req.TransitionKey)
		if !ok {
			return fmt.Errorf("%w: %q", ErrTransitionUnknown, req.TransitionKey)
		}
		if !transition.Enabled {
			return fmt.Errorf("%w: %q", ErrTransitionDisabled, transition.Key)
		}
		if transition.FromStateKey != locked.StateKey {
			return fmt.Errorf("%w: %q starts at %q, instance is at %q",
				ErrTransitionNotAllowed, transition.Key, transition.FromStateKey, locked.StateKey)
		}
		fromState, ok := def.StateByKey(transition.FromStateKey)
		if !ok {
			return fmt.Errorf("runtime: state %q missing from definition %s", transition.FromStateKey, def.ID)
		}
		toState, ok := def.StateByKey(transition.ToStateKey)
		if !ok {
			return fmt.Errorf("runtime: state %q missing from definition %s", transition.ToStateKey, def.ID)
		}

		now := s.now().UTC()
		entry := &History{
			ID:            s.id(),
			TenantID:      req.TenantID,
			InstanceID:    locked.ID,
			Origin:        normalized,
			EntityID:      req.EntityID,
			FromStateKey:  fromState.Key,
			ToStateKey:    toState.Key,
			TransitionKey: transition.Key,
			ActorID:       req.ActorID,
			Notes:         req.Notes,
			Success:       true,
			CreatedAt:     now,
		}
		if entry, err = store.History().Insert(ctx, entry); err != nil {
			return err
		}

		actx := &interfaces.ActionContext{
			TenantID:          req.TenantID,
			ActorID:           req.ActorID,
			Origin:            normalized,
			EntityID:          req.EntityID,
			InstanceID:        locked.ID,
			HistoryID:         entry.ID,
			DefinitionID:      def.ID,
			DefinitionVersion: def.Version,
			TransitionKey:     transition.Key,
			FromStateKey:      fromState.Key,
			ToStateKey:        toState.Key,
			Notes:             req.Notes,
			Ledger:            NewLedger(store.Executions(), req.TenantID, locked.ID, entry.ID, req.ActorID, s.id, s.now),
		}

		var results []interfaces.ActionResult
		if s.dispatcher != nil && len(transition.Actions) > 0 {
			before, err := s.dispatcher.Dispatch(ctx, actx, transition.Actions, domain.TriggerBeforeTransition)
			results = append(results, before...)
			if err != nil {
				return err
			}
		}

		transitionID := transition.ID
		locked.StateID = toState.ID
		locked.StateKey = toState.Key
		locked.TransitionID = &transitionID
		locked.RowVersion++
		locked.UpdatedAt = now
		if locked, err = store.Instances().Update(ctx, locked); err != nil {
			return err
		}

		if s.dispatcher != nil && len(transition.Actions) > 0 {
			after, err := s.dispatcher.Dispatch(ctx, actx, transition.Actions, domain.TriggerAfterTransition)
			results = append(results, after...)
			if err != nil {
				return err
			}
		}

		if len(results) > 0 {
			entry.ActionResults = results
			if _, err := store.History().AttachResults(ctx, entry); err != nil {
				return err
			}
		}

		result = &TransitionResult{
			InstanceID:        locked.ID,
			Origin:            normalized,
			EntityID:          req.EntityID,
			TransitionKey:     transition.Key,
			FromState:         *stateView(fromState),
			ToState:           *stateView(toState),
			ActorID:           req.ActorID,
			CompletedAt:       now,
			Notes:             req.Notes,
			ActionResults:     results,
			DefinitionVersion: def.Version,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.pushStatus(ctx, resolver, req.TenantID, req.EntityID, result.ToState.Key)
	s.recordTransitionActivity(ctx, req.TenantID, result)
	s.logger.Info("transition executed",
		"instance_id", result.InstanceID,
		"origin", result.Origin,
		"entity_id", result.EntityID,
		"transition_key", result.TransitionKey,
		"from_state", result.FromState.Key,
		"to_state", result.ToState.Key,
	)
	return result, nil
}

func (s *service) recordTransitionActivity(ctx context.Context, tenantID uuid.UUID, result *TransitionResult) {
	if s.activity == nil {
		return
	}
	record := interfaces.ActivityRecord{
		ActorID:    result.ActorID,
		UserID:     result.ActorID,
		TenantID:   tenantID,
		Verb:       "workflow.transition",
		ObjectType: result.Origin,
		ObjectID:   result.EntityID.String(),
		Channel:    "flows",
		OccurredAt: result.CompletedAt,
		Data: map[string]any{
			"transition_key":     result.TransitionKey,
			"from_state":         result.FromState.Key,
			"to_state":           result.ToState.Key,
			"definition_version": result.DefinitionVersion,
		},
	}
	if err := s.activity.Log(ctx, record); err != nil {
		s.logger.Warn("activity record failed", "entity_id", result.EntityID, "error", err)
	}
}
