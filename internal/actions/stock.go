package actions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/goliatone/go-flows/internal/domain"
	"github.com/goliatone/go-flows/internal/identity"
	"github.com/goliatone/go-flows/pkg/interfaces"
)

// StockMoveAction applies the stock impacts configured on a transition
// through the external stock ledger. The execution key doubles as the
// ledger's idempotency key, so a replayed transition resolves to the effect
// already recorded instead of moving stock twice.
type StockMoveAction struct {
	ledger interfaces.StockLedger
}

func NewStockMoveAction(ledger interfaces.StockLedger) *StockMoveAction {
	return &StockMoveAction{ledger: ledger}
}

func (a *StockMoveAction) Type() string {
	return domain.ActionTypeStockMove
}

func (a *StockMoveAction) Execute(ctx context.Context, actx *interfaces.ActionContext, cfg interfaces.ActionConfig) (*interfaces.ActionResult, error) {
	impacts, err := impactsFromParameters(cfg.Parameters)
	if err != nil {
		return nil, err
	}
	key := identity.ExecutionKey(a.Type(), actx.EntityID, actx.TransitionKey, actx.DefinitionVersion)
	return runStockCommand(ctx, a.ledger, actx, a.Type(), key, impacts)
}

// StockReverseAction undoes the last successful stock move recorded for the
// instance by applying the negated impacts under a fresh execution key. With
// no prior move on record there is nothing to reverse and the action is a
// no-op.
type StockReverseAction struct {
	ledger interfaces.StockLedger
}

func NewStockReverseAction(ledger interfaces.StockLedger) *StockReverseAction {
	return &StockReverseAction{ledger: ledger}
}

func (a *StockReverseAction) Type() string {
	return domain.ActionTypeStockReverse
}

func (a *StockReverseAction) Execute(ctx context.Context, actx *interfaces.ActionContext, cfg interfaces.ActionConfig) (*interfaces.ActionResult, error) {
	prior, found, err := actx.Ledger.LastSucceeded(ctx, actx.InstanceID, domain.ActionTypeStockMove)
	if err != nil {
		return nil, err
	}
	key := identity.ExecutionKey(a.Type(), actx.EntityID, actx.TransitionKey, actx.DefinitionVersion)
	if !found {
		return &interfaces.ActionResult{
			Type:         a.Type(),
			Status:       interfaces.ActionStatusSuccess,
			ExecutionKey: key,
			Result:       map[string]any{"reversed": false, "reason": "no prior stock move"},
		}, nil
	}

	impacts, err := impactsFromParameters(prior.Request)
	if err != nil {
		return nil, fmt.Errorf("decode prior stock move: %w", err)
	}
	for i := range impacts {
		impacts[i].Delta = -impacts[i].Delta
	}
	return runStockCommand(ctx, a.ledger, actx, a.Type(), key, impacts)
}

func runStockCommand(ctx context.Context, ledger interfaces.StockLedger, actx *interfaces.ActionContext, actionType, key string, impacts []interfaces.StockImpact) (*interfaces.ActionResult, error) {
	request := map[string]any{
		"impacts":        encodeImpacts(impacts),
		"transition_key": actx.TransitionKey,
	}
	outcome, err := actx.Ledger.Run(ctx, actionType, key, request, func(ctx context.Context) (map[string]any, error) {
		result, err := ledger.Apply(ctx, interfaces.StockCommand{
			TenantID:       actx.TenantID,
			ItemID:         actx.EntityID,
			Origin:         actx.Origin,
			Reference:      actx.TransitionKey,
			Impacts:        impacts,
			IdempotencyKey: key,
			ActorID:        actx.ActorID,
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"effect_id": result.EffectID.String(),
			"reused":    result.Reused,
			"applied":   encodeImpacts(result.Applied),
		}, nil
	})
	if err != nil {
		return &interfaces.ActionResult{Type: actionType, ExecutionKey: key}, err
	}

	status := interfaces.ActionStatusSuccess
	if outcome.Reused {
		status = interfaces.ActionStatusReused
	}
	return &interfaces.ActionResult{
		Type:         actionType,
		Status:       status,
		ExecutionKey: key,
		Result:       outcome.Result,
	}, nil
}

// impactsFromParameters decodes the impacts list out of a loosely typed
// parameter map, tolerating both live structs and JSON round-tripped maps.
func impactsFromParameters(params map[string]any) ([]interfaces.StockImpact, error) {
	raw, ok := params["impacts"]
	if !ok {
		return nil, fmt.Errorf("stock action requires an impacts parameter")
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode impacts: %w", err)
	}
	var impacts []interfaces.StockImpact
	if err := json.Unmarshal(encoded, &impacts); err != nil {
		return nil, fmt.Errorf("decode impacts: %w", err)
	}
	if len(impacts) == 0 {
		return nil, fmt.Errorf("stock action requires at least one impact")
	}
	return impacts, nil
}

func encodeImpacts(impacts []interfaces.StockImpact) []map[string]any {
	out := make([]map[string]any, 0, len(impacts))
	for _, impact := range impacts {
		out = append(out, map[string]any{
			"metric": impact.Metric,
			"scope":  impact.Scope,
			"delta":  impact.Delta,
		})
	}
	return out
}
