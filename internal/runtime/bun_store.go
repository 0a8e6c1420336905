package runtime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-flows/internal/domain"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// BunStore persists runtime state through bun. Atomic runs its unit of work
// inside one database transaction; the instance row lock is taken with
// SELECT ... FOR UPDATE on dialects that support it, and falls back to the
// connection-level write lock on SQLite.
type BunStore struct {
	db  *bun.DB
	idb bun.IDB
}

func NewBunStore(db *bun.DB) *BunStore {
	return &BunStore{db: db, idb: db}
}

func (s *BunStore) Instances() InstanceRepository { return &bunInstances{store: s} }
func (s *BunStore) History() HistoryRepository { return &bunHistory{store: s} }
func (s *BunStore) Executions() ExecutionRepository { return &bunExecutions{store: s} }

func (s *BunStore) Atomic(ctx context.Context, fn func(ctx context.Context, store Store) error) error {
	if _, inTx := s.idb.(bun.Tx); inTx {
		return fn(ctx, s)
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &BunStore{db: s.db, idb: tx})
	})
}

func (s *BunStore) supportsRowLock() bool {
	return s.db.Dialect().Name() != dialect.SQLite
}

type bunInstances struct {
	store *BunStore
}

func (r *bunInstances) Get(ctx context.Context, tenantID uuid.UUID, origin string, entityID uuid.UUID) (*Instance, error) {
	return r.get(ctx, tenantID, origin, entityID, false)
}

func (r *bunInstances) GetLocked(ctx context.Context, tenantID uuid.UUID, origin string, entityID uuid.UUID) (*Instance, error) {
	return r.get(ctx, tenantID, origin, entityID, true)
}

func (r *bunInstances) get(ctx context.Context, tenantID uuid.UUID, origin string, entityID uuid.UUID, lock bool) (*Instance, error) {
	record := new(Instance)
	q := r.store.idb.NewSelect().
		Model(record).
		Where("?TableAlias.tenant_id = ?", tenantID).
		Where("?TableAlias.origin = ?", domain.NormalizeOrigin(origin)).
		Where("?TableAlias.entity_id = ?", entityID).
		Limit(1)
	if lock && r.store.supportsRowLock() {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Resource: "instance", Key: entityID.String()}
		}
		return nil, fmt.Errorf("load instance: %w", err)
	}
	return record, nil
}

func (r *bunInstances) Create(ctx context.Context, record *Instance) (*Instance, error) {
	if _, err := r.store.idb.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return nil, &DuplicateInstanceError{Origin: record.Origin, EntityID: record.EntityID.String()}
		}
		return nil, fmt.Errorf("insert instance: %w", err)
	}
	return record, nil
}

func (r *bunInstances) Update(ctx context.Context, record *Instance) (*Instance, error) {
	record.UpdatedAt = time.Now().UTC()
	res, err := r.store.idb.NewUpdate().
		Model(record).
		WherePK().
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("update instance: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return nil, &NotFoundError{Resource: "instance", Key: record.ID.String()}
	}
	return record, nil
}

func (r *bunInstances) DeleteByEntityIDs(ctx context.Context, tenantID uuid.UUID, origin string, entityIDs []uuid.UUID) (int, error) {
	if len(entityIDs) == 0 {
		return 0, nil
	}
	res, err := r.store.idb.NewDelete().
		Model((*Instance)(nil)).
		Where("?TableAlias.tenant_id = ?", tenantID).
		Where("?TableAlias.origin = ?", domain.NormalizeOrigin(origin)).
		Where("?TableAlias.entity_id IN (?)", bun.In(entityIDs)).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete instances: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted instances: %w", err)
	}
	return int(affected), nil
}

type bunHistory struct {
	store *BunStore
}

func (r *bunHistory) Insert(ctx context.Context, record *History) (*History, error) {
	if _, err := r.store.idb.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, fmt.Errorf("insert history: %w", err)
	}
	return record, nil
}

func (r *bunHistory) AttachResults(ctx context.Context, record *History) (*History, error) {
	_, err := r.store.idb.NewUpdate().
		Model(record).
		Column("action_results", "success").
		WherePK().
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("attach history results: %w", err)
	}
	return record, nil
}

func (r *bunHistory) List(ctx context.Context, tenantID uuid.UUID, origin string, entityID uuid.UUID, offset, limit int) ([]*History, int, error) {
	var records []*History
	q := r.store.idb.NewSelect().
		Model(&records).
		Where("?TableAlias.tenant_id = ?", tenantID).
		Where("?TableAlias.origin = ?", domain.NormalizeOrigin(origin)).
		Where("?TableAlias.entity_id = ?", entityID).
		Order("created_at DESC").
		Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	total, err := q.ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list history: %w", err)
	}
	return records, total, nil
}

type bunExecutions struct {
	store *BunStore
}

func (r *bunExecutions) FindByKey(ctx context.Context, tenantID uuid.UUID, key string) (*ActionExecution, error) {
	record := new(ActionExecution)
	err := r.store.idb.NewSelect().
		Model(record).
		Where("?TableAlias.tenant_id = ?", tenantID).
		Where("?TableAlias.execution_key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Resource: "action execution", Key: key}
		}
		return nil, fmt.Errorf("load action execution: %w", err)
	}
	return record, nil
}

func (r *bunExecutions) Insert(ctx context.Context, record *ActionExecution) (*ActionExecution, error) {
	if _, err := r.store.idb.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, fmt.Errorf("insert action execution: %w", err)
	}
	return record, nil
}

func (r *bunExecutions) Update(ctx context.Context, record *ActionExecution) (*ActionExecution, error) {
	record.UpdatedAt = time.Now().UTC()
	if _, err := r.store.idb.NewUpdate().Model(record).WherePK().Exec(ctx); err != nil {
		return nil, fmt.Errorf("update action execution: %w", err)
	}
	return record, nil
}

func (r *bunExecutions) LastSucceeded(ctx context.Context, instanceID uuid.UUID, actionType string) (*ActionExecution, error) {
	record := new(ActionExecution)
	err := r.store.idb.NewSelect().
		Model(record).
		Where("?TableAlias.instance_id = ?", instanceID).
		Where("?TableAlias.action_type = ?", actionType).
		Where("?TableAlias.status = ?", domain.ExecutionStatusSuccess).
		Order("created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Resource: "action execution", Key: actionType}
		}
		return nil, fmt.Errorf("load action execution: %w", err)
	}
	return record, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") ||
		strings.Contains(msg, "duplicate key value")
}
