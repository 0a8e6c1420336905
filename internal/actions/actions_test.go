package actions_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/goliatone/go-flows/internal/actions"
	"github.com/goliatone/go-flows/internal/domain"
	runtimesvc "github.com/goliatone/go-flows/internal/runtime"
	"github.com/goliatone/go-flows/pkg/interfaces"
	"github.com/google/uuid"
)

// fakeStockLedger records every command it applies.
type fakeStockLedger struct {
	mu       sync.Mutex
	commands []interfaces.StockCommand
	failWith error
}

func (l *fakeStockLedger) Apply(_ context.Context, cmd interfaces.StockCommand) (*interfaces.StockResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failWith != nil {
		return nil, l.failWith
	}
	l.commands = append(l.commands, cmd)
	return &interfaces.StockResult{
		EffectID: uuid.New(),
		Applied:  cmd.Impacts,
	}, nil
}

func (l *fakeStockLedger) applyCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.commands)
}

func (l *fakeStockLedger) lastCommand(t *testing.T) interfaces.StockCommand {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.commands) == 0 {
		t.Fatal("no stock command applied")
	}
	return l.commands[len(l.commands)-1]
}

// newActionContext binds a fresh execution ledger to a synthetic transition.
func newActionContext(transitionKey string) *interfaces.ActionContext {
	store := runtimesvc.NewMemoryStore()
	tenantID := uuid.New()
	instanceID := uuid.New()
	return &interfaces.ActionContext{
		TenantID:          tenantID,
		ActorID:           uuid.New(),
		Origin:            "movement_item",
		EntityID:          uuid.New(),
		InstanceID:        instanceID,
		HistoryID:         uuid.New(),
		DefinitionID:      uuid.New(),
		DefinitionVersion: 1,
		TransitionKey:     transitionKey,
		FromStateKey:      "st_from",
		ToStateKey:        "st_to",
		Ledger:            runtimesvc.NewLedger(store.Executions(), tenantID, instanceID, uuid.New(), uuid.New(), nil, nil),
	}
}

func moveConfig(delta float64) interfaces.ActionConfig {
	return interfaces.ActionConfig{
		Type:        domain.ActionTypeStockMove,
		Trigger:     "after_transition",
		MustSucceed: true,
		Parameters: map[string]any{
			"impacts": []map[string]any{
				{"metric": "qty", "scope": "onhand", "delta": delta},
			},
		},
	}
}

func TestStockMoveAppliesOnceUnderSameKey(t *testing.T) {
	ledger := &fakeStockLedger{}
	action := actions.NewStockMoveAction(ledger)
	actx := newActionContext("tr_approve")
	ctx := context.Background()

	first, err := action.Execute(ctx, actx, moveConfig(5))
	if err != nil {
		t.Fatalf("first execute: %v", err)
	}
	if first.Status != interfaces.ActionStatusSuccess {
		t.Fatalf("unexpected status %q", first.Status)
	}
	cmd := ledger.lastCommand(t)
	if cmd.IdempotencyKey != first.ExecutionKey {
		t.Fatalf("idempotency key %q, execution key %q", cmd.IdempotencyKey, first.ExecutionKey)
	}
	if len(cmd.Impacts) != 1 || cmd.Impacts[0].Delta != 5 {
		t.Fatalf("unexpected impacts %+v", cmd.Impacts)
	}

	second, err := action.Execute(ctx, actx, moveConfig(5))
	if err != nil {
		t.Fatalf("second execute: %v", err)
	}
	if second.Status != interfaces.ActionStatusReused {
		t.Fatalf("replay status %q", second.Status)
	}
	if ledger.applyCount() != 1 {
		t.Fatalf("stock moved %d times, want once", ledger.applyCount())
	}
}

func TestStockMoveRequiresImpacts(t *testing.T) {
	action := actions.NewStockMoveAction(&fakeStockLedger{})
	actx := newActionContext("tr_approve")

	_, err := action.Execute(context.Background(), actx, interfaces.ActionConfig{
		Type:       domain.ActionTypeStockMove,
		Trigger:    "after_transition",
		Parameters: map[string]any{},
	})
	if err == nil || !strings.Contains(err.Error(), "impacts") {
		t.Fatalf("expected impacts error, got %v", err)
	}
}

func TestStockMoveSurfacesLedgerFailure(t *testing.T) {
	ledger := &fakeStockLedger{failWith: errors.New("ledger offline")}
	action := actions.NewStockMoveAction(ledger)
	actx := newActionContext("tr_approve")

	_, err := action.Execute(context.Background(), actx, moveConfig(3))
	if err == nil || !strings.Contains(err.Error(), "ledger offline") {
		t.Fatalf("expected the ledger error back, got %v", err)
	}
}

func TestStockReverseNegatesPriorMove(t *testing.T) {
	ledger := &fakeStockLedger{}
	move := actions.NewStockMoveAction(ledger)
	reverse := actions.NewStockReverseAction(ledger)
	actx := newActionContext("tr_approve")
	ctx := context.Background()

	if _, err := move.Execute(ctx, actx, moveConfig(5)); err != nil {
		t.Fatalf("move: %v", err)
	}

	actx.TransitionKey = "tr_reject"
	result, err := reverse.Execute(ctx, actx, interfaces.ActionConfig{
		Type:    domain.ActionTypeStockReverse,
		Trigger: "after_transition",
	})
	if err != nil {
		t.Fatalf("reverse: %v", err)
	}
	if result.Status != interfaces.ActionStatusSuccess {
		t.Fatalf("unexpected status %q", result.Status)
	}
	cmd := ledger.lastCommand(t)
	if len(cmd.Impacts) != 1 || cmd.Impacts[0].Delta != -5 {
		t.Fatalf("expected negated delta, got %+v", cmd.Impacts)
	}
	if ledger.applyCount() != 2 {
		t.Fatalf("expected move plus reverse, got %d commands", ledger.applyCount())
	}
}

func TestStockReverseWithoutPriorMoveIsNoOp(t *testing.T) {
	ledger := &fakeStockLedger{}
	reverse := actions.NewStockReverseAction(ledger)
	actx := newActionContext("tr_reject")

	result, err := reverse.Execute(context.Background(), actx, interfaces.ActionConfig{
		Type:    domain.ActionTypeStockReverse,
		Trigger: "after_transition",
	})
	if err != nil {
		t.Fatalf("reverse: %v", err)
	}
	if result.Status != interfaces.ActionStatusSuccess {
		t.Fatalf("unexpected status %q", result.Status)
	}
	if reversed, _ := result.Result["reversed"].(bool); reversed {
		t.Fatalf("expected a no-op, got %+v", result.Result)
	}
	if ledger.applyCount() != 0 {
		t.Fatalf("no stock command expected, got %d", ledger.applyCount())
	}
}

// scriptedAction returns canned outcomes in registration order.
type scriptedAction struct {
	typeName string
	err      error
	calls    int
}

func (a *scriptedAction) Type() string { return a.typeName }

func (a *scriptedAction) Execute(context.Context, *interfaces.ActionContext, interfaces.ActionConfig) (*interfaces.ActionResult, error) {
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	return &interfaces.ActionResult{
		Type:   a.typeName,
		Status: interfaces.ActionStatusSuccess,
	}, nil
}

func TestDispatcherFiltersByPhase(t *testing.T) {
	before := &scriptedAction{typeName: "test.before"}
	after := &scriptedAction{typeName: "test.after"}
	dispatcher := actions.NewDispatcher(actions.NewRegistry(before, after), nil)
	actx := newActionContext("tr_approve")
	configs := []interfaces.ActionConfig{
		{Type: "test.before", Trigger: "before_transition"},
		{Type: "test.after", Trigger: "After_Transition"},
	}

	results, err := dispatcher.Dispatch(context.Background(), actx, configs, domain.TriggerBeforeTransition)
	if err != nil {
		t.Fatalf("dispatch before: %v", err)
	}
	if len(results) != 1 || results[0].Type != "test.before" {
		t.Fatalf("unexpected before results %+v", results)
	}
	if after.calls != 0 {
		t.Fatal("after-phase action ran during the before phase")
	}

	// trigger matching is case-insensitive
	results, err = dispatcher.Dispatch(context.Background(), actx, configs, domain.TriggerAfterTransition)
	if err != nil {
		t.Fatalf("dispatch after: %v", err)
	}
	if len(results) != 1 || results[0].Type != "test.after" {
		t.Fatalf("unexpected after results %+v", results)
	}
}

func TestDispatcherOptionalFailureContinues(t *testing.T) {
	failing := &scriptedAction{typeName: "test.fail", err: errors.New("boom")}
	trailing := &scriptedAction{typeName: "test.ok"}
	dispatcher := actions.NewDispatcher(actions.NewRegistry(failing, trailing), nil)
	actx := newActionContext("tr_approve")

	results, err := dispatcher.Dispatch(context.Background(), actx, []interfaces.ActionConfig{
		{Type: "test.fail", Trigger: "before_transition", MustSucceed: false},
		{Type: "test.ok", Trigger: "before_transition"},
	}, domain.TriggerBeforeTransition)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected both results, got %d", len(results))
	}
	if results[0].Status != interfaces.ActionStatusFailed || results[0].ErrorMessage == "" {
		t.Fatalf("unexpected failure record %+v", results[0])
	}
	if trailing.calls != 1 {
		t.Fatal("trailing action did not run after an optional failure")
	}
}

func TestDispatcherMustSucceedAborts(t *testing.T) {
	failing := &scriptedAction{typeName: "test.fail", err: errors.New("boom")}
	trailing := &scriptedAction{typeName: "test.ok"}
	dispatcher := actions.NewDispatcher(actions.NewRegistry(failing, trailing), nil)
	actx := newActionContext("tr_approve")

	results, err := dispatcher.Dispatch(context.Background(), actx, []interfaces.ActionConfig{
		{Type: "test.fail", Trigger: "before_transition", MustSucceed: true},
		{Type: "test.ok", Trigger: "before_transition"},
	}, domain.TriggerBeforeTransition)
	if err == nil {
		t.Fatal("expected the dispatch to abort")
	}
	if len(results) != 1 || results[0].Status != interfaces.ActionStatusFailed {
		t.Fatalf("unexpected results %+v", results)
	}
	if trailing.calls != 0 {
		t.Fatal("trailing action ran after a must-succeed failure")
	}
}

func TestDispatcherRejectsUnknownActionType(t *testing.T) {
	dispatcher := actions.NewDispatcher(actions.NewRegistry(), nil)
	actx := newActionContext("tr_approve")

	_, err := dispatcher.Dispatch(context.Background(), actx, []interfaces.ActionConfig{
		{Type: "test.ghost", Trigger: "before_transition"},
	}, domain.TriggerBeforeTransition)
	if err == nil {
		t.Fatal("expected an error for an unregistered action type")
	}
}
