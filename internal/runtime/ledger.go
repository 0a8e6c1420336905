package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/goliatone/go-flows/internal/domain"
	"github.com/goliatone/go-flows/pkg/interfaces"
	"github.com/google/uuid"
)

// Ledger is the idempotency journal handed to actions for one transition.
// It is bound to the transaction-scoped execution repository, so ledger rows
// roll back with the transition that created them.
type Ledger struct {
	executions ExecutionRepository
	tenantID   uuid.UUID
	instanceID uuid.UUID
	historyID  uuid.UUID
	actorID    uuid.UUID
	idgen      func() uuid.UUID
	clock      func() time.Time
}

func NewLedger(executions ExecutionRepository, tenantID, instanceID, historyID, actorID uuid.UUID, idgen func() uuid.UUID, clock func() time.Time) *Ledger {
	if idgen == nil {
		idgen = uuid.New
	}
	if clock == nil {
		clock = time.Now
	}
	return &Ledger{
		executions: executions,
		tenantID:   tenantID,
		instanceID: instanceID,
		historyID:  historyID,
		actorID:    actorID,
		idgen:      idgen,
		clock:      clock,
	}
}

func (l *Ledger) Run(ctx context.Context, actionType, key string, request map[string]any, fn func(ctx context.Context) (map[string]any, error)) (*interfaces.LedgerOutcome, error) {
	record, err := l.executions.FindByKey(ctx, l.tenantID, key)
	switch {
	case err == nil:
		if record.Status == domain.ExecutionStatusSuccess {
			return &interfaces.LedgerOutcome{
				ExecutionKey: key,
				Reused:       true,
				Result:       record.Result,
			}, nil
		}
		// a prior attempt never completed, retry under the same key
		record.Attempts++
		record.Status = domain.ExecutionStatusStarted
		record.ErrorMessage = nil
		record.HistoryID = l.historyID
		if record, err = l.executions.Update(ctx, record); err != nil {
			return nil, err
		}
	default:
		var notFound *NotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		record = &ActionExecution{
			ID:           l.idgen(),
			TenantID:     l.tenantID,
			InstanceID:   l.instanceID,
			HistoryID:    l.historyID,
			ActionType:   actionType,
			ExecutionKey: key,
			Status:       domain.ExecutionStatusStarted,
			Attempts:     1,
			Request:      request,
			ActorID:      l.actorID,
			CreatedAt:    l.clock().UTC(),
			UpdatedAt:    l.clock().UTC(),
		}
		if record, err = l.executions.Insert(ctx, record); err != nil {
			return nil, err
		}
	}

	result, runErr := fn(ctx)
	if runErr != nil {
		msg := runErr.Error()
		record.Status = domain.ExecutionStatusFailed
		record.ErrorMessage = &msg
		if _, updateErr := l.executions.Update(ctx, record); updateErr != nil {
			return nil, updateErr
		}
		return nil, runErr
	}

	record.Status = domain.ExecutionStatusSuccess
	record.Result = result
	record.ErrorMessage = nil
	if _, err := l.executions.Update(ctx, record); err != nil {
		return nil, err
	}
	return &interfaces.LedgerOutcome{
		ExecutionKey: key,
		Reused:       false,
		Result:       result,
	}, nil
}

func (l *Ledger) LastSucceeded(ctx context.Context, instanceID uuid.UUID, actionType string) (*interfaces.LedgerEntry, bool, error) {
	record, err := l.executions.LastSucceeded(ctx, instanceID, actionType)
	if err != nil {
		var notFound *NotFoundError
		if errors.As(err, &notFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &interfaces.LedgerEntry{
		ExecutionKey: record.ExecutionKey,
		ActionType:   record.ActionType,
		Request:      record.Request,
		Result:       record.Result,
	}, true, nil
}
