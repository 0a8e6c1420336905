package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-flows/internal/domain"
	"github.com/goliatone/go-flows/pkg/interfaces"
	"github.com/google/uuid"
)

type memoryTxKey struct{}

// MemoryStore is an in-memory Store used by tests and by deployments that
// do not persist runtime state. Atomic serializes units of work under one
// mutex and restores a snapshot when fn returns an error, so rollback
// semantics match the transactional store.
type MemoryStore struct {
	mu         sync.Mutex
	instances  map[string]*Instance
	byID       map[uuid.UUID]*Instance
	history    []*History
	executions map[string]*ActionExecution
	execOrder  []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		instances:  map[string]*Instance{},
		byID:       map[uuid.UUID]*Instance{},
		executions: map[string]*ActionExecution{},
	}
}

func (s *MemoryStore) Instances() InstanceRepository { return &memoryInstances{store: s} }
func (s *MemoryStore) History() HistoryRepository { return &memoryHistory{store: s} }
func (s *MemoryStore) Executions() ExecutionRepository { return &memoryExecutions{store: s} }

func (s *MemoryStore) Atomic(ctx context.Context, fn func(ctx context.Context, store Store) error) error {
	if ctx.Value(memoryTxKey{}) != nil {
		// already inside a unit of work, join it
		return fn(ctx, s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.snapshot()
	err := fn(context.WithValue(ctx, memoryTxKey{}, struct{}{}), s)
	if err != nil {
		s.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	instances  map[string]*Instance
	byID       map[uuid.UUID]*Instance
	history    []*History
	executions map[string]*ActionExecution
	execOrder  []string
}

func (s *MemoryStore) snapshot() memorySnapshot {
	snap := memorySnapshot{
		instances:  make(map[string]*Instance, len(s.instances)),
		byID:       make(map[uuid.UUID]*Instance, len(s.byID)),
		history:    make([]*History, 0, len(s.history)),
		executions: make(map[string]*ActionExecution, len(s.executions)),
		execOrder:  append([]string(nil), s.execOrder...),
	}
	for key, record := range s.instances {
		clone := cloneInstance(record)
		snap.instances[key] = clone
		snap.byID[record.ID] = clone
	}
	for _, record := range s.history {
		snap.history = append(snap.history, cloneHistory(record))
	}
	for key, record := range s.executions {
		snap.executions[key] = cloneExecution(record)
	}
	return snap
}

func (s *MemoryStore) restore(snap memorySnapshot) {
	s.instances = snap.instances
	s.byID = snap.byID
	s.history = snap.history
	s.executions = snap.executions
	s.execOrder = snap.execOrder
}

func (s *MemoryStore) locked(ctx context.Context, fn func() error) error {
	if ctx.Value(memoryTxKey{}) != nil {
		return fn()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

func instanceKey(tenantID uuid.UUID, origin string, entityID uuid.UUID) string {
	return fmt.Sprintf("%s|%s|%s", tenantID, domain.NormalizeOrigin(origin), entityID)
}

func executionKey(tenantID uuid.UUID, key string) string {
	return fmt.Sprintf("%s|%s", tenantID, key)
}

type memoryInstances struct {
	store *MemoryStore
}

func (r *memoryInstances) Get(ctx context.Context, tenantID uuid.UUID, origin string, entityID uuid.UUID) (*Instance, error) {
	var found *Instance
	err := r.store.locked(ctx, func() error {
		record, ok := r.store.instances[instanceKey(tenantID, origin, entityID)]
		if !ok {
			return &NotFoundError{Resource: "instance", Key: entityID.String()}
		}
		found = cloneInstance(record)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func (r *memoryInstances) GetLocked(ctx context.Context, tenantID uuid.UUID, origin string, entityID uuid.UUID) (*Instance, error) {
	// Atomic already holds the store mutex, which locks every instance.
	return r.Get(ctx, tenantID, origin, entityID)
}

func (r *memoryInstances) Create(ctx context.Context, record *Instance) (*Instance, error) {
	clone := cloneInstance(record)
	err := r.store.locked(ctx, func() error {
		key := instanceKey(clone.TenantID, clone.Origin, clone.EntityID)
		if _, exists := r.store.instances[key]; exists {
			return &DuplicateInstanceError{Origin: clone.Origin, EntityID: clone.EntityID.String()}
		}
		if clone.ID == uuid.Nil {
			clone.ID = uuid.New()
		}
		now := time.Now()
		if clone.CreatedAt.IsZero() {
			clone.CreatedAt = now
		}
		if clone.UpdatedAt.IsZero() {
			clone.UpdatedAt = now
		}
		r.store.instances[key] = clone
		r.store.byID[clone.ID] = clone
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cloneInstance(clone), nil
}

func (r *memoryInstances) Update(ctx context.Context, record *Instance) (*Instance, error) {
	clone := cloneInstance(record)
	err := r.store.locked(ctx, func() error {
		key := instanceKey(clone.TenantID, clone.Origin, clone.EntityID)
		if _, ok := r.store.instances[key]; !ok {
			return &NotFoundError{Resource: "instance", Key: clone.ID.String()}
		}
		r.store.instances[key] = clone
		r.store.byID[clone.ID] = clone
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cloneInstance(clone), nil
}

func (r *memoryInstances) DeleteByEntityIDs(ctx context.Context, tenantID uuid.UUID, origin string, entityIDs []uuid.UUID) (int, error) {
	removed := 0
	err := r.store.locked(ctx, func() error {
		for _, entityID := range entityIDs {
			key := instanceKey(tenantID, origin, entityID)
			record, ok := r.store.instances[key]
			if !ok {
				continue
			}
			delete(r.store.instances, key)
			delete(r.store.byID, record.ID)
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

type memoryHistory struct {
	store *MemoryStore
}

func (r *memoryHistory) Insert(ctx context.Context, record *History) (*History, error) {
	clone := cloneHistory(record)
	err := r.store.locked(ctx, func() error {
		if clone.ID == uuid.Nil {
			clone.ID = uuid.New()
		}
		if clone.CreatedAt.IsZero() {
			clone.CreatedAt = time.Now()
		}
		r.store.history = append(r.store.history, clone)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cloneHistory(clone), nil
}

func (r *memoryHistory) AttachResults(ctx context.Context, record *History) (*History, error) {
	clone := cloneHistory(record)
	err := r.store.locked(ctx, func() error {
		for i, existing := range r.store.history {
			if existing.ID == clone.ID {
				r.store.history[i] = clone
				return nil
			}
		}
		return &NotFoundError{Resource: "history", Key: clone.ID.String()}
	})
	if err != nil {
		return nil, err
	}
	return cloneHistory(clone), nil
}

func (r *memoryHistory) List(ctx context.Context, tenantID uuid.UUID, origin string, entityID uuid.UUID, offset, limit int) ([]*History, int, error) {
	var entries []*History
	total := 0
	err := r.store.locked(ctx, func() error {
		normalized := string(domain.NormalizeOrigin(origin))
		var matched []*History
		for _, record := range r.store.history {
			if record.TenantID == tenantID && record.Origin == normalized && record.EntityID == entityID {
				matched = append(matched, record)
			}
		}
		total = len(matched)
		// newest first
		for i := len(matched) - 1; i >= 0; i-- {
			entries = append(entries, cloneHistory(matched[i]))
		}
		if offset >= len(entries) {
			entries = nil
			return nil
		}
		entries = entries[offset:]
		if limit > 0 && len(entries) > limit {
			entries = entries[:limit]
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

type memoryExecutions struct {
	store *MemoryStore
}

func (r *memoryExecutions) FindByKey(ctx context.Context, tenantID uuid.UUID, key string) (*ActionExecution, error) {
	var found *ActionExecution
	err := r.store.locked(ctx, func() error {
		record, ok := r.store.executions[executionKey(tenantID, key)]
		if !ok {
			return &NotFoundError{Resource: "action execution", Key: key}
		}
		found = cloneExecution(record)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func (r *memoryExecutions) Insert(ctx context.Context, record *ActionExecution) (*ActionExecution, error) {
	clone := cloneExecution(record)
	err := r.store.locked(ctx, func() error {
		key := executionKey(clone.TenantID, clone.ExecutionKey)
		if _, exists := r.store.executions[key]; exists {
			return fmt.Errorf("runtime: duplicate execution key %q", clone.ExecutionKey)
		}
		if clone.ID == uuid.Nil {
			clone.ID = uuid.New()
		}
		now := time.Now()
		if clone.CreatedAt.IsZero() {
			clone.CreatedAt = now
		}
		if clone.UpdatedAt.IsZero() {
			clone.UpdatedAt = now
		}
		r.store.executions[key] = clone
		r.store.execOrder = append(r.store.execOrder, key)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cloneExecution(clone), nil
}

func (r *memoryExecutions) Update(ctx context.Context, record *ActionExecution) (*ActionExecution, error) {
	clone := cloneExecution(record)
	err := r.store.locked(ctx, func() error {
		key := executionKey(clone.TenantID, clone.ExecutionKey)
		if _, ok := r.store.executions[key]; !ok {
			return &NotFoundError{Resource: "action execution", Key: clone.ExecutionKey}
		}
		clone.UpdatedAt = time.Now()
		r.store.executions[key] = clone
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cloneExecution(clone), nil
}

func (r *memoryExecutions) LastSucceeded(ctx context.Context, instanceID uuid.UUID, actionType string) (*ActionExecution, error) {
	var found *ActionExecution
	err := r.store.locked(ctx, func() error {
		for i := len(r.store.execOrder) - 1; i >= 0; i-- {
			record, ok := r.store.executions[r.store.execOrder[i]]
			if !ok {
				continue
			}
			if record.InstanceID == instanceID && record.ActionType == actionType && record.Status == domain.ExecutionStatusSuccess {
				found = cloneExecution(record)
				return nil
			}
		}
		return &NotFoundError{Resource: "action execution", Key: actionType}
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func cloneInstance(record *Instance) *Instance {
	if record == nil {
		return nil
	}
	clone := *record
	if record.TransitionID != nil {
		id := *record.TransitionID
		clone.TransitionID = &id
	}
	return &clone
}

func cloneHistory(record *History) *History {
	if record == nil {
		return nil
	}
	clone := *record
	if record.ActionResults != nil {
		clone.ActionResults = append([]interfaces.ActionResult(nil), record.ActionResults...)
	}
	return &clone
}

func cloneExecution(record *ActionExecution) *ActionExecution {
	if record == nil {
		return nil
	}
	clone := *record
	if record.Request != nil {
		clone.Request = cloneMap(record.Request)
	}
	if record.Result != nil {
		clone.Result = cloneMap(record.Result)
	}
	return &clone
}

func cloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
