package actions

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-flows/internal/domain"
	"github.com/goliatone/go-flows/internal/logging"
	"github.com/goliatone/go-flows/pkg/interfaces"
)

// Dispatcher runs the actions configured on a transition, one trigger phase
// at a time. A failing action with must_succeed set aborts the dispatch and
// with it the surrounding transaction; a failing optional action is recorded
// as a failed result and the remaining actions still run.
type Dispatcher struct {
	registry *Registry
	logger   interfaces.Logger
}

func NewDispatcher(registry *Registry, logger interfaces.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.NoOp()
	}
	return &Dispatcher{registry: registry, logger: logger}
}

func (d *Dispatcher) Dispatch(ctx context.Context, actx *interfaces.ActionContext, configs []interfaces.ActionConfig, phase domain.TriggerPhase) ([]interfaces.ActionResult, error) {
	var results []interfaces.ActionResult
	for _, cfg := range configs {
		if domain.TriggerPhase(strings.ToLower(strings.TrimSpace(cfg.Trigger))) != phase {
			continue
		}
		action, err := d.registry.Resolve(cfg.Type)
		if err != nil {
			// publish-time validation makes this unreachable for stored
			// definitions, fail loudly instead of skipping
			return results, err
		}

		result, err := action.Execute(ctx, actx, cfg)
		if err != nil {
			failure := interfaces.ActionResult{
				Type:         cfg.Type,
				Status:       interfaces.ActionStatusFailed,
				ErrorMessage: err.Error(),
			}
			if result != nil {
				failure.ExecutionKey = result.ExecutionKey
			}
			results = append(results, failure)
			if cfg.MustSucceed {
				return results, fmt.Errorf("actions: %s failed: %w", cfg.Type, err)
			}
			d.logger.Warn("optional action failed",
				"action_type", cfg.Type,
				"transition_key", actx.TransitionKey,
				"entity_id", actx.EntityID,
				"error", err,
			)
			continue
		}
		if result != nil {
			results = append(results, *result)
		}
	}
	return results, nil
}
