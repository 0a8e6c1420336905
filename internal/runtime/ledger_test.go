package runtime_test

import (
	"context"
	"errors"
	"testing"

	runtimesvc "github.com/goliatone/go-flows/internal/runtime"
	"github.com/google/uuid"
)

func newTestLedger(t *testing.T) (*runtimesvc.Ledger, uuid.UUID) {
	t.Helper()
	store := runtimesvc.NewMemoryStore()
	instanceID := uuid.New()
	ledger := runtimesvc.NewLedger(store.Executions(), uuid.New(), instanceID, uuid.New(), uuid.New(), nil, nil)
	return ledger, instanceID
}

func TestLedgerReplaysCompletedKey(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	calls := 0

	first, err := ledger.Run(ctx, "test.effect", "k1", map[string]any{"qty": 5}, func(context.Context) (map[string]any, error) {
		calls++
		return map[string]any{"effect": "e1"}, nil
	})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Reused {
		t.Fatal("first run must not be marked reused")
	}

	second, err := ledger.Run(ctx, "test.effect", "k1", nil, func(context.Context) (map[string]any, error) {
		calls++
		return nil, nil
	})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !second.Reused {
		t.Fatal("completed key must replay")
	}
	if second.Result["effect"] != "e1" {
		t.Fatalf("replay must return the stored result, got %v", second.Result)
	}
	if calls != 1 {
		t.Fatalf("effect ran %d times", calls)
	}
}

func TestLedgerRetriesFailedKey(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.Run(ctx, "test.effect", "k1", nil, func(context.Context) (map[string]any, error) {
		return nil, errors.New("transient")
	})
	if err == nil || err.Error() != "transient" {
		t.Fatalf("expected the fn error back, got %v", err)
	}

	outcome, err := ledger.Run(ctx, "test.effect", "k1", nil, func(context.Context) (map[string]any, error) {
		return map[string]any{"ok": true}, nil
	})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if outcome.Reused {
		t.Fatal("a failed key must re-execute, not replay")
	}

	third, err := ledger.Run(ctx, "test.effect", "k1", nil, func(context.Context) (map[string]any, error) {
		t.Fatal("must not re-run a completed key")
		return nil, nil
	})
	if err != nil {
		t.Fatalf("third run: %v", err)
	}
	if !third.Reused {
		t.Fatal("expected replay after successful retry")
	}
}

func TestLedgerLastSucceeded(t *testing.T) {
	ledger, instanceID := newTestLedger(t)
	ctx := context.Background()

	if _, found, err := ledger.LastSucceeded(ctx, instanceID, "test.effect"); err != nil || found {
		t.Fatalf("expected no prior execution, found=%v err=%v", found, err)
	}

	for _, key := range []string{"k1", "k2"} {
		if _, err := ledger.Run(ctx, "test.effect", key, map[string]any{"key": key}, func(context.Context) (map[string]any, error) {
			return map[string]any{"key": key}, nil
		}); err != nil {
			t.Fatalf("run %s: %v", key, err)
		}
	}

	entry, found, err := ledger.LastSucceeded(ctx, instanceID, "test.effect")
	if err != nil {
		t.Fatalf("last succeeded: %v", err)
	}
	if !found || entry.ExecutionKey != "k2" {
		t.Fatalf("expected the most recent key, got found=%v entry=%+v", found, entry)
	}
	if entry.Request["key"] != "k2" {
		t.Fatalf("expected the recorded request, got %v", entry.Request)
	}
}
