package runtime_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	flowdefs "github.com/goliatone/go-flows/definitions"
	"github.com/goliatone/go-flows/internal/actions"
	defsvc "github.com/goliatone/go-flows/internal/definitions"
	runtimesvc "github.com/goliatone/go-flows/internal/runtime"
	"github.com/goliatone/go-flows/pkg/interfaces"
	flowruntime "github.com/goliatone/go-flows/runtime"
	"github.com/google/uuid"
)

// fakeResolver is an in-memory origin resolver tracking sync pushes.
type fakeResolver struct {
	mu         sync.Mutex
	entities   map[uuid.UUID]bool
	dependents map[uuid.UUID][]interfaces.DependentRef
	synced     map[uuid.UUID][]string
	failSync   error
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		entities:   map[uuid.UUID]bool{},
		dependents: map[uuid.UUID][]interfaces.DependentRef{},
		synced:     map[uuid.UUID][]string{},
	}
}

func (r *fakeResolver) addEntity(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities[id] = true
}

func (r *fakeResolver) Exists(_ context.Context, _ uuid.UUID, entityID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entities[entityID], nil
}

func (r *fakeResolver) SyncStatus(_ context.Context, _ uuid.UUID, entityID uuid.UUID, stateKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failSync != nil {
		return r.failSync
	}
	r.synced[entityID] = append(r.synced[entityID], stateKey)
	return nil
}

func (r *fakeResolver) Dependents(_ context.Context, _ uuid.UUID, entityID uuid.UUID) ([]interfaces.DependentRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dependents[entityID], nil
}

func (r *fakeResolver) lastSynced(entityID uuid.UUID) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := r.synced[entityID]
	if len(keys) == 0 {
		return ""
	}
	return keys[len(keys)-1]
}

// engineHarness bundles the services under test with their fakes.
type engineHarness struct {
	tenantID    uuid.UUID
	definitions defsvc.Service
	runtime     runtimesvc.Service
	store       *runtimesvc.MemoryStore
	movements   *fakeResolver
	items       *fakeResolver
	registry    *actions.Registry
}

func newHarness(t *testing.T, extraActions ...interfaces.Action) *engineHarness {
	t.Helper()

	catalog := flowdefs.DefaultActionCatalog()
	for _, action := range extraActions {
		catalog[action.Type()] = nil
	}
	definitions := defsvc.NewService(
		defsvc.NewMemoryRepository(),
		defsvc.WithValidator(flowdefs.NewValidator(flowdefs.WithActionCatalog(catalog))),
	)

	origins := runtimesvc.NewOriginRegistry()
	movements := newFakeResolver()
	items := newFakeResolver()
	origins.Register("movement", movements)
	origins.Register("movement_item", items)

	registry := actions.NewRegistry(extraActions...)
	cascade := actions.NewCascadeStatusAction(origins, nil)
	registry.Register(cascade)

	store := runtimesvc.NewMemoryStore()
	svc := runtimesvc.NewService(store, definitions, origins,
		runtimesvc.WithDispatcher(actions.NewDispatcher(registry, nil)),
	)
	cascade.SetRunner(svc)

	return &engineHarness{
		tenantID:    uuid.New(),
		definitions: definitions,
		runtime:     svc,
		store:       store,
		movements:   movements,
		items:       items,
		registry:    registry,
	}
}

func (h *engineHarness) publishItemWorkflow(t *testing.T, actionsByTransition map[string][]flowdefs.ActionConfig) *flowdefs.Definition {
	t.Helper()
	req := flowdefs.DefinitionRequest{
		TenantID: h.tenantID,
		Origin:   "movement_item",
		Name:     "Item Lifecycle",
		ActorID:  uuid.New(),
		States: []flowdefs.StateInput{
			{Key: "draft", Name: "Draft", Initial: true},
			{Key: "approved", Name: "Approved"},
			{Key: "done", Name: "Done", Terminal: true},
		},
		Transitions: []flowdefs.TransitionInput{
			{Key: "approve", Name: "Approve", From: "draft", To: "approved", Enabled: true, Actions: actionsByTransition["approve"]},
			{Key: "complete", Name: "Complete", From: "approved", To: "done", Enabled: true, Actions: actionsByTransition["complete"]},
			{Key: "reject", Name: "Reject", From: "draft", To: "done", Enabled: false},
		},
	}
	published, err := h.definitions.Publish(context.Background(), req)
	if err != nil {
		t.Fatalf("publish item workflow: %v", err)
	}
	return published
}

func transitionKeyByName(t *testing.T, def *flowdefs.Definition, name string) string {
	t.Helper()
	for _, tr := range def.Transitions {
		if tr.Name == name {
			return tr.Key
		}
	}
	t.Fatalf("no transition named %q", name)
	return ""
}

func stateKeyByName(t *testing.T, def *flowdefs.Definition, name string) string {
	t.Helper()
	for _, state := range def.States {
		if state.Name == name {
			return state.Key
		}
	}
	t.Fatalf("no state named %q", name)
	return ""
}

func TestEnsureInstanceCreatesAtInitialState(t *testing.T) {
	h := newHarness(t)
	def := h.publishItemWorkflow(t, nil)
	entityID := uuid.New()
	h.items.addEntity(entityID)

	instance, err := h.runtime.EnsureInstance(context.Background(), h.tenantID, "movement_item", entityID)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if instance == nil {
		t.Fatal("expected an instance")
	}
	if instance.DefinitionID != def.ID || instance.DefinitionVersion != 1 {
		t.Fatalf("instance bound to %s v%d", instance.DefinitionID, instance.DefinitionVersion)
	}
	if want := stateKeyByName(t, def, "Draft"); instance.StateKey != want {
		t.Fatalf("expected initial state %q, got %q", want, instance.StateKey)
	}
	if got := h.items.lastSynced(entityID); got != instance.StateKey {
		t.Fatalf("expected status sync %q, got %q", instance.StateKey, got)
	}
}

func TestEnsureInstanceWithoutPublishedDefinition(t *testing.T) {
	h := newHarness(t)
	entityID := uuid.New()
	h.items.addEntity(entityID)

	instance, err := h.runtime.EnsureInstance(context.Background(), h.tenantID, "movement_item", entityID)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if instance != nil {
		t.Fatalf("expected no instance without a published definition, got %+v", instance)
	}
}

func TestEnsureInstanceRejectsUnknownEntity(t *testing.T) {
	h := newHarness(t)
	h.publishItemWorkflow(t, nil)

	_, err := h.runtime.EnsureInstance(context.Background(), h.tenantID, "movement_item", uuid.New())
	if !errors.Is(err, flowruntime.ErrEntityNotFound) {
		t.Fatalf("expected entity not found, got %v", err)
	}
}

func TestEnsureInstanceRejectsUnknownOrigin(t *testing.T) {
	h := newHarness(t)

	_, err := h.runtime.EnsureInstance(context.Background(), h.tenantID, "invoice", uuid.New())
	if !errors.Is(err, flowruntime.ErrOriginUnknown) {
		t.Fatalf("expected unknown origin, got %v", err)
	}
}

func TestConcurrentEnsureCreatesOneInstance(t *testing.T) {
	h := newHarness(t)
	h.publishItemWorkflow(t, nil)
	entityID := uuid.New()
	h.items.addEntity(entityID)

	const workers = 8
	ids := make([]uuid.UUID, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			instance, err := h.runtime.EnsureInstance(context.Background(), h.tenantID, "movement_item", entityID)
			if err != nil {
				errs[slot] = err
				return
			}
			ids[slot] = instance.ID
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Fatalf("workers observed different instances: %s vs %s", ids[i], ids[0])
		}
	}
}

func TestResyncMatchesStateByName(t *testing.T) {
	h := newHarness(t)
	v1 := h.publishItemWorkflow(t, nil)
	entityID := uuid.New()
	h.items.addEntity(entityID)
	ctx := context.Background()

	if _, err := h.runtime.EnsureInstance(ctx, h.tenantID, "movement_item", entityID); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if _, err := h.runtime.ExecuteTransition(ctx, flowruntime.TransitionRequest{
		TenantID:      h.tenantID,
		Origin:        "movement_item",
		EntityID:      entityID,
		TransitionKey: transitionKeyByName(t, v1, "Approve"),
		ActorID:       uuid.New(),
	}); err != nil {
		t.Fatalf("approve: %v", err)
	}

	v2 := h.publishItemWorkflow(t, nil)

	instance, err := h.runtime.EnsureInstance(ctx, h.tenantID, "movement_item", entityID)
	if err != nil {
		t.Fatalf("ensure after republish: %v", err)
	}
	if instance.DefinitionID != v2.ID || instance.DefinitionVersion != 2 {
		t.Fatalf("expected instance on v2, got %s v%d", instance.DefinitionID, instance.DefinitionVersion)
	}
	if want := stateKeyByName(t, v2, "Approved"); instance.StateKey != want {
		t.Fatalf("expected resync to %q, got %q", want, instance.StateKey)
	}
}

func TestResyncFallsBackToInitialWhenNameGone(t *testing.T) {
	h := newHarness(t)
	v1 := h.publishItemWorkflow(t, nil)
	entityID := uuid.New()
	h.items.addEntity(entityID)
	ctx := context.Background()

	if _, err := h.runtime.ExecuteTransition(ctx, flowruntime.TransitionRequest{
		TenantID:      h.tenantID,
		Origin:        "movement_item",
		EntityID:      entityID,
		TransitionKey: transitionKeyByName(t, v1, "Approve"),
		ActorID:       uuid.New(),
	}); err != nil {
		t.Fatalf("approve: %v", err)
	}

	// v2 renames every state, the old "Approved" name no longer resolves
	req := flowdefs.DefinitionRequest{
		TenantID: h.tenantID,
		Origin:   "movement_item",
		Name:     "Item Lifecycle v2",
		ActorID:  uuid.New(),
		States: []flowdefs.StateInput{
			{Key: "open", Name: "Open", Initial: true},
			{Key: "closed", Name: "Closed", Terminal: true},
		},
		Transitions: []flowdefs.TransitionInput{
			{Key: "close", Name: "Close", From: "open", To: "closed", Enabled: true},
		},
	}
	v2, err := h.definitions.Publish(ctx, req)
	if err != nil {
		t.Fatalf("publish v2: %v", err)
	}

	instance, err := h.runtime.EnsureInstance(ctx, h.tenantID, "movement_item", entityID)
	if err != nil {
		t.Fatalf("ensure after republish: %v", err)
	}
	if want := stateKeyByName(t, v2, "Open"); instance.StateKey != want {
		t.Fatalf("expected fallback to initial %q, got %q", want, instance.StateKey)
	}
}

// writeAudit records whether instance writes happen inside an atomic unit
// that first acquired the row lock.
type writeAudit struct {
	mu             sync.Mutex
	inAtomic       bool
	lockHeld       bool
	lockedWrites   int
	unlockedWrites int
}

type auditStore struct {
	base  runtimesvc.Store
	audit *writeAudit
}

func (s *auditStore) Instances() runtimesvc.InstanceRepository {
	return &auditInstances{base: s.base.Instances(), audit: s.audit}
}

func (s *auditStore) History() runtimesvc.HistoryRepository { return s.base.History() }

func (s *auditStore) Executions() runtimesvc.ExecutionRepository { return s.base.Executions() }

func (s *auditStore) Atomic(ctx context.Context, fn func(ctx context.Context, store runtimesvc.Store) error) error {
	s.audit.mu.Lock()
	s.audit.inAtomic = true
	s.audit.lockHeld = false
	s.audit.mu.Unlock()
	err := s.base.Atomic(ctx, func(ctx context.Context, inner runtimesvc.Store) error {
		return fn(ctx, &auditStore{base: inner, audit: s.audit})
	})
	s.audit.mu.Lock()
	s.audit.inAtomic = false
	s.audit.mu.Unlock()
	return err
}

type auditInstances struct {
	base  runtimesvc.InstanceRepository
	audit *writeAudit
}

func (r *auditInstances) Get(ctx context.Context, tenantID uuid.UUID, origin string, entityID uuid.UUID) (*runtimesvc.Instance, error) {
	return r.base.Get(ctx, tenantID, origin, entityID)
}

func (r *auditInstances) GetLocked(ctx context.Context, tenantID uuid.UUID, origin string, entityID uuid.UUID) (*runtimesvc.Instance, error) {
	r.audit.mu.Lock()
	r.audit.lockHeld = true
	r.audit.mu.Unlock()
	return r.base.GetLocked(ctx, tenantID, origin, entityID)
}

func (r *auditInstances) Create(ctx context.Context, record *runtimesvc.Instance) (*runtimesvc.Instance, error) {
	return r.base.Create(ctx, record)
}

func (r *auditInstances) Update(ctx context.Context, record *runtimesvc.Instance) (*runtimesvc.Instance, error) {
	r.audit.mu.Lock()
	if r.audit.inAtomic && r.audit.lockHeld {
		r.audit.lockedWrites++
	} else {
		r.audit.unlockedWrites++
	}
	r.audit.mu.Unlock()
	return r.base.Update(ctx, record)
}

func (r *auditInstances) DeleteByEntityIDs(ctx context.Context, tenantID uuid.UUID, origin string, entityIDs []uuid.UUID) (int, error) {
	return r.base.DeleteByEntityIDs(ctx, tenantID, origin, entityIDs)
}

func TestResyncUpdatesUnderInstanceLock(t *testing.T) {
	h := newHarness(t)
	audit := &writeAudit{}
	origins := runtimesvc.NewOriginRegistry()
	origins.Register("movement_item", h.items)
	svc := runtimesvc.NewService(&auditStore{base: h.store, audit: audit}, h.definitions, origins)

	h.publishItemWorkflow(t, nil)
	entityID := uuid.New()
	h.items.addEntity(entityID)
	ctx := context.Background()

	if _, err := svc.EnsureInstance(ctx, h.tenantID, "movement_item", entityID); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	v2 := h.publishItemWorkflow(t, nil)
	instance, err := svc.EnsureInstance(ctx, h.tenantID, "movement_item", entityID)
	if err != nil {
		t.Fatalf("ensure after republish: %v", err)
	}
	if instance.DefinitionID != v2.ID {
		t.Fatalf("expected instance on v2, got %s", instance.DefinitionID)
	}

	audit.mu.Lock()
	locked, unlocked := audit.lockedWrites, audit.unlockedWrites
	audit.mu.Unlock()
	if unlocked != 0 {
		t.Fatalf("%d instance writes happened outside the row lock", unlocked)
	}
	if locked != 1 {
		t.Fatalf("expected one locked resync write, got %d", locked)
	}
}

func TestRuntimeStateListsAvailableTransitions(t *testing.T) {
	h := newHarness(t)
	h.publishItemWorkflow(t, nil)
	entityID := uuid.New()
	h.items.addEntity(entityID)

	state, err := h.runtime.RuntimeState(context.Background(), h.tenantID, "movement_item", entityID)
	if err != nil {
		t.Fatalf("runtime state: %v", err)
	}
	if !state.HasWorkflow {
		t.Fatal("expected a workflow")
	}
	if state.CurrentState == nil || state.CurrentState.Name != "Draft" {
		t.Fatalf("unexpected current state: %+v", state.CurrentState)
	}
	// the disabled reject transition must not be offered
	if len(state.Transitions) != 1 {
		t.Fatalf("expected 1 transition, got %d", len(state.Transitions))
	}
	view := state.Transitions[0]
	if view.Name != "Approve" || view.ToStateName != "Approved" {
		t.Fatalf("unexpected transition view: %+v", view)
	}
	if !strings.HasPrefix(view.PermissionKey, "workflow:movement-item:") {
		t.Fatalf("unexpected permission key %q", view.PermissionKey)
	}
}

func TestRuntimeStateWithoutWorkflow(t *testing.T) {
	h := newHarness(t)
	entityID := uuid.New()
	h.items.addEntity(entityID)

	state, err := h.runtime.RuntimeState(context.Background(), h.tenantID, "movement_item", entityID)
	if err != nil {
		t.Fatalf("runtime state: %v", err)
	}
	if state.HasWorkflow {
		t.Fatalf("expected no workflow, got %+v", state)
	}
}

func TestPurgeInstances(t *testing.T) {
	h := newHarness(t)
	h.publishItemWorkflow(t, nil)
	entityID := uuid.New()
	h.items.addEntity(entityID)
	ctx := context.Background()

	if _, err := h.runtime.EnsureInstance(ctx, h.tenantID, "movement_item", entityID); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	removed, err := h.runtime.PurgeInstances(ctx, h.tenantID, "movement_item", []uuid.UUID{entityID, uuid.New()})
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}

	// purged entity lazily reinitializes at the initial state
	instance, err := h.runtime.EnsureInstance(ctx, h.tenantID, "movement_item", entityID)
	if err != nil {
		t.Fatalf("re-ensure: %v", err)
	}
	if instance == nil || instance.RowVersion != 1 {
		t.Fatalf("expected fresh instance, got %+v", instance)
	}
}
