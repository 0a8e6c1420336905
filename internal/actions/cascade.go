package actions

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-flows/internal/domain"
	"github.com/goliatone/go-flows/internal/identity"
	"github.com/goliatone/go-flows/pkg/interfaces"
	flowruntime "github.com/goliatone/go-flows/runtime"
	"github.com/google/uuid"
)

// CascadeRunner is the slice of the runtime service the cascade action
// drives dependent workflows through.
type CascadeRunner interface {
	RuntimeState(ctx context.Context, tenantID uuid.UUID, origin string, entityID uuid.UUID) (*flowruntime.RuntimeState, error)
	ExecuteTransition(ctx context.Context, req flowruntime.TransitionRequest) (*flowruntime.TransitionResult, error)
}

// CascadeStatusAction pushes every dependent entity's workflow toward a
// named target state. Dependents already at the target are skipped; each
// moved dependent runs its own transition with its own actions and its own
// atomic unit.
type CascadeStatusAction struct {
	origins interfaces.OriginRegistry
	runner  CascadeRunner
}

func NewCascadeStatusAction(origins interfaces.OriginRegistry, runner CascadeRunner) *CascadeStatusAction {
	return &CascadeStatusAction{origins: origins, runner: runner}
}

// SetRunner breaks the construction cycle between the runtime service and
// the registry it dispatches through.
func (a *CascadeStatusAction) SetRunner(runner CascadeRunner) {
	a.runner = runner
}

func (a *CascadeStatusAction) Type() string {
	return domain.ActionTypeCascadeStatus
}

func (a *CascadeStatusAction) Execute(ctx context.Context, actx *interfaces.ActionContext, cfg interfaces.ActionConfig) (*interfaces.ActionResult, error) {
	if a.runner == nil {
		return nil, fmt.Errorf("cascade action: no transition runner wired")
	}
	targetState, ok := cfg.Parameters["target_state"].(string)
	if !ok || strings.TrimSpace(targetState) == "" {
		return nil, fmt.Errorf("cascade action requires a target_state parameter")
	}

	resolver, ok := a.origins.Resolver(actx.Origin)
	if !ok {
		return nil, fmt.Errorf("cascade action: no resolver for origin %q", actx.Origin)
	}
	provider, ok := resolver.(interfaces.DependentsProvider)
	if !ok {
		return nil, fmt.Errorf("cascade action: origin %q does not expose dependents", actx.Origin)
	}

	key := identity.ExecutionKey(a.Type(), actx.EntityID, actx.TransitionKey, actx.DefinitionVersion)
	request := map[string]any{
		"target_state":   targetState,
		"transition_key": actx.TransitionKey,
	}
	outcome, err := actx.Ledger.Run(ctx, a.Type(), key, request, func(ctx context.Context) (map[string]any, error) {
		return a.cascade(ctx, actx, provider, targetState)
	})
	if err != nil {
		return &interfaces.ActionResult{Type: a.Type(), ExecutionKey: key}, err
	}

	status := interfaces.ActionStatusSuccess
	if outcome.Reused {
		status = interfaces.ActionStatusReused
	}
	return &interfaces.ActionResult{
		Type:         a.Type(),
		Status:       status,
		ExecutionKey: key,
		Result:       outcome.Result,
	}, nil
}

func (a *CascadeStatusAction) cascade(ctx context.Context, actx *interfaces.ActionContext, provider interfaces.DependentsProvider, targetState string) (map[string]any, error) {
	dependents, err := provider.Dependents(ctx, actx.TenantID, actx.EntityID)
	if err != nil {
		return nil, fmt.Errorf("enumerate dependents: %w", err)
	}

	moved := 0
	skipped := 0
	var unreachable []string
	for _, dep := range dependents {
		state, err := a.runner.RuntimeState(ctx, actx.TenantID, dep.Origin, dep.EntityID)
		if err != nil {
			return nil, fmt.Errorf("dependent %s state: %w", dep.EntityID, err)
		}
		if !state.HasWorkflow {
			skipped++
			continue
		}
		if strings.EqualFold(state.CurrentState.Name, targetState) {
			skipped++
			continue
		}

		transition, ok := transitionToward(state, targetState)
		if !ok {
			unreachable = append(unreachable, dep.EntityID.String())
			continue
		}
		if _, err := a.runner.ExecuteTransition(ctx, flowruntime.TransitionRequest{
			TenantID:      actx.TenantID,
			Origin:        dep.Origin,
			EntityID:      dep.EntityID,
			TransitionKey: transition.Key,
			ActorID:       actx.ActorID,
			Notes:         actx.Notes,
		}); err != nil {
			return nil, fmt.Errorf("dependent %s transition %q: %w", dep.EntityID, transition.Key, err)
		}
		moved++
	}

	result := map[string]any{
		"target_state": targetState,
		"dependents":   len(dependents),
		"moved":        moved,
		"skipped":      skipped,
	}
	if len(unreachable) > 0 {
		result["unreachable"] = unreachable
	}
	return result, nil
}

// transitionToward picks the highest-priority enabled transition whose
// destination matches the target state by display name.
func transitionToward(state *flowruntime.RuntimeState, targetState string) (*flowruntime.TransitionView, bool) {
	for i := range state.Transitions {
		if strings.EqualFold(state.Transitions[i].ToStateName, targetState) {
			return &state.Transitions[i], true
		}
	}
	return nil, false
}
