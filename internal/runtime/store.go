package runtime

import (
	"context"

	"github.com/google/uuid"
)

// InstanceRepository persists workflow instances. Implementations must expose
// a uniqueness violation on Create as *runtime.DuplicateInstanceError so the
// manager can resolve creation races by re-reading.
type InstanceRepository interface {
	Get(ctx context.Context, tenantID uuid.UUID, origin string, entityID uuid.UUID) (*Instance, error)
	// GetLocked acquires the per-instance exclusive lock. It must be called
	// inside Store.Atomic; the lock is released when the unit commits or
	// rolls back.
	GetLocked(ctx context.Context, tenantID uuid.UUID, origin string, entityID uuid.UUID) (*Instance, error)
	Create(ctx context.Context, record *Instance) (*Instance, error)
	Update(ctx context.Context, record *Instance) (*Instance, error)
	DeleteByEntityIDs(ctx context.Context, tenantID uuid.UUID, origin string, entityIDs []uuid.UUID) (int, error)
}

// HistoryRepository persists the append-only audit trail.
type HistoryRepository interface {
	Insert(ctx context.Context, record *History) (*History, error)
	// AttachResults revises the action-results payload of a row inserted in
	// the same atomic unit. No other mutation is permitted after insertion.
	AttachResults(ctx context.Context, record *History) (*History, error)
	List(ctx context.Context, tenantID uuid.UUID, origin string, entityID uuid.UUID, offset, limit int) ([]*History, int, error)
}

// ExecutionRepository persists idempotency-ledger entries keyed uniquely per
// (tenant, execution key).
type ExecutionRepository interface {
	FindByKey(ctx context.Context, tenantID uuid.UUID, key string) (*ActionExecution, error)
	Insert(ctx context.Context, record *ActionExecution) (*ActionExecution, error)
	Update(ctx context.Context, record *ActionExecution) (*ActionExecution, error)
	LastSucceeded(ctx context.Context, instanceID uuid.UUID, actionType string) (*ActionExecution, error)
}

// Store groups the runtime repositories behind one atomicity boundary.
// Atomic runs fn inside a single transaction: every write made through the
// supplied store commits or rolls back together.
type Store interface {
	Instances() InstanceRepository
	History() HistoryRepository
	Executions() ExecutionRepository
	Atomic(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}
