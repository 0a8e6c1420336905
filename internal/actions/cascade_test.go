package actions_test

import (
	"context"
	"strings"
	"testing"

	"github.com/goliatone/go-flows/internal/actions"
	"github.com/goliatone/go-flows/internal/domain"
	"github.com/goliatone/go-flows/pkg/interfaces"
	flowruntime "github.com/goliatone/go-flows/runtime"
	"github.com/google/uuid"
)

// movementResolver exposes a fixed dependent list for one movement.
type movementResolver struct {
	dependents []interfaces.DependentRef
}

func (r *movementResolver) Exists(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return true, nil
}

func (r *movementResolver) SyncStatus(context.Context, uuid.UUID, uuid.UUID, string) error {
	return nil
}

func (r *movementResolver) Dependents(context.Context, uuid.UUID, uuid.UUID) ([]interfaces.DependentRef, error) {
	return r.dependents, nil
}

type staticRegistry struct {
	resolvers map[string]interfaces.OriginResolver
}

func (r *staticRegistry) Resolver(origin string) (interfaces.OriginResolver, bool) {
	resolver, ok := r.resolvers[origin]
	return resolver, ok
}

func (r *staticRegistry) Origins() []string {
	out := make([]string, 0, len(r.resolvers))
	for origin := range r.resolvers {
		out = append(out, origin)
	}
	return out
}

// scriptedRunner serves canned runtime states and records executed transitions.
type scriptedRunner struct {
	states   map[uuid.UUID]*flowruntime.RuntimeState
	executed []flowruntime.TransitionRequest
}

func (r *scriptedRunner) RuntimeState(_ context.Context, _ uuid.UUID, _ string, entityID uuid.UUID) (*flowruntime.RuntimeState, error) {
	if state, ok := r.states[entityID]; ok {
		return state, nil
	}
	return &flowruntime.RuntimeState{HasWorkflow: false}, nil
}

func (r *scriptedRunner) ExecuteTransition(_ context.Context, req flowruntime.TransitionRequest) (*flowruntime.TransitionResult, error) {
	r.executed = append(r.executed, req)
	return &flowruntime.TransitionResult{
		EntityID:      req.EntityID,
		TransitionKey: req.TransitionKey,
	}, nil
}

func stateAt(name string, transitions ...flowruntime.TransitionView) *flowruntime.RuntimeState {
	return &flowruntime.RuntimeState{
		HasWorkflow:  true,
		CurrentState: &flowruntime.StateView{Key: "st_" + strings.ToLower(name), Name: name},
		Transitions:  transitions,
	}
}

func TestCascadeMovesDependentsTowardTarget(t *testing.T) {
	movable := uuid.New()      // draft item with a path to Approved
	alreadyThere := uuid.New() // item already at the target
	noWorkflow := uuid.New()   // item without a published workflow
	stuck := uuid.New()        // item with no transition toward the target

	resolver := &movementResolver{dependents: []interfaces.DependentRef{
		{Origin: "movement_item", EntityID: movable},
		{Origin: "movement_item", EntityID: alreadyThere},
		{Origin: "movement_item", EntityID: noWorkflow},
		{Origin: "movement_item", EntityID: stuck},
	}}
	runner := &scriptedRunner{states: map[uuid.UUID]*flowruntime.RuntimeState{
		movable: stateAt("Draft", flowruntime.TransitionView{
			Key: "tr_approve", Name: "Approve", ToStateKey: "st_approved", ToStateName: "Approved",
		}),
		alreadyThere: stateAt("Approved"),
		stuck: stateAt("Draft", flowruntime.TransitionView{
			Key: "tr_reject", Name: "Reject", ToStateKey: "st_rejected", ToStateName: "Rejected",
		}),
	}}

	action := actions.NewCascadeStatusAction(&staticRegistry{resolvers: map[string]interfaces.OriginResolver{
		"movement": resolver,
	}}, runner)

	actx := newActionContext("tr_complete")
	actx.Origin = "movement"
	result, err := action.Execute(context.Background(), actx, interfaces.ActionConfig{
		Type:       domain.ActionTypeCascadeStatus,
		Trigger:    "after_transition",
		Parameters: map[string]any{"target_state": "approved"},
	})
	if err != nil {
		t.Fatalf("cascade: %v", err)
	}
	if result.Status != interfaces.ActionStatusSuccess {
		t.Fatalf("unexpected status %q", result.Status)
	}

	if len(runner.executed) != 1 {
		t.Fatalf("expected one dependent transition, got %d", len(runner.executed))
	}
	req := runner.executed[0]
	if req.EntityID != movable || req.TransitionKey != "tr_approve" {
		t.Fatalf("unexpected transition request %+v", req)
	}
	if req.ActorID != actx.ActorID {
		t.Fatal("cascade must act as the originating actor")
	}

	if moved, _ := result.Result["moved"].(int); moved != 1 {
		t.Fatalf("moved = %v", result.Result["moved"])
	}
	if skipped, _ := result.Result["skipped"].(int); skipped != 2 {
		t.Fatalf("skipped = %v", result.Result["skipped"])
	}
	unreachable, _ := result.Result["unreachable"].([]string)
	if len(unreachable) != 1 || unreachable[0] != stuck.String() {
		t.Fatalf("unreachable = %v", result.Result["unreachable"])
	}
}

func TestCascadeReplaysUnderSameKey(t *testing.T) {
	entityID := uuid.New()
	resolver := &movementResolver{dependents: []interfaces.DependentRef{
		{Origin: "movement_item", EntityID: entityID},
	}}
	runner := &scriptedRunner{states: map[uuid.UUID]*flowruntime.RuntimeState{
		entityID: stateAt("Draft", flowruntime.TransitionView{
			Key: "tr_approve", Name: "Approve", ToStateKey: "st_approved", ToStateName: "Approved",
		}),
	}}
	action := actions.NewCascadeStatusAction(&staticRegistry{resolvers: map[string]interfaces.OriginResolver{
		"movement": resolver,
	}}, runner)

	actx := newActionContext("tr_complete")
	actx.Origin = "movement"
	cfg := interfaces.ActionConfig{
		Type:       domain.ActionTypeCascadeStatus,
		Trigger:    "after_transition",
		Parameters: map[string]any{"target_state": "Approved"},
	}
	ctx := context.Background()

	if _, err := action.Execute(ctx, actx, cfg); err != nil {
		t.Fatalf("first cascade: %v", err)
	}
	second, err := action.Execute(ctx, actx, cfg)
	if err != nil {
		t.Fatalf("second cascade: %v", err)
	}
	if second.Status != interfaces.ActionStatusReused {
		t.Fatalf("expected replay, got %q", second.Status)
	}
	if len(runner.executed) != 1 {
		t.Fatalf("dependents cascaded %d times, want once", len(runner.executed))
	}
}

func TestCascadeRequiresTargetState(t *testing.T) {
	action := actions.NewCascadeStatusAction(&staticRegistry{resolvers: map[string]interfaces.OriginResolver{
		"movement": &movementResolver{},
	}}, &scriptedRunner{})
	actx := newActionContext("tr_complete")
	actx.Origin = "movement"

	_, err := action.Execute(context.Background(), actx, interfaces.ActionConfig{
		Type:    domain.ActionTypeCascadeStatus,
		Trigger: "after_transition",
	})
	if err == nil || !strings.Contains(err.Error(), "target_state") {
		t.Fatalf("expected target_state error, got %v", err)
	}
}

func TestCascadeRequiresDependentsCapableOrigin(t *testing.T) {
	// embedding the interface hides the Dependents method
	plain := struct{ interfaces.OriginResolver }{&movementResolver{}}
	action := actions.NewCascadeStatusAction(&staticRegistry{resolvers: map[string]interfaces.OriginResolver{
		"movement": plain,
	}}, &scriptedRunner{})
	actx := newActionContext("tr_complete")
	actx.Origin = "movement"

	_, err := action.Execute(context.Background(), actx, interfaces.ActionConfig{
		Type:       domain.ActionTypeCascadeStatus,
		Trigger:    "after_transition",
		Parameters: map[string]any{"target_state": "approved"},
	})
	if err == nil || !strings.Contains(err.Error(), "dependents") {
		t.Fatalf("expected dependents capability error, got %v", err)
	}
}
