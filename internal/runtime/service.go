package runtime

import (
	"context"
	"time"

	defsvc "github.com/goliatone/go-flows/internal/definitions"
	"github.com/goliatone/go-flows/internal/domain"
	"github.com/goliatone/go-flows/internal/logging"
	"github.com/goliatone/go-flows/pkg/interfaces"
	"github.com/google/uuid"
)

// Service is the runtime surface: lazy instance management, state queries,
// locked transition execution, the audit trail, and test-data purges.
type Service interface {
	// EnsureInstance returns the entity's instance, creating it at the
	// initial state when a published definition exists. A nil instance with
	// a nil error means the origin has no published workflow.
	EnsureInstance(ctx context.Context, tenantID uuid.UUID, origin string, entityID uuid.UUID) (*Instance, error)
	RuntimeState(ctx context.Context, tenantID uuid.UUID, origin string, entityID uuid.UUID) (*RuntimeState, error)
	ExecuteTransition(ctx context.Context, req TransitionRequest) (*TransitionResult, error)
	History(ctx context.Context, tenantID uuid.UUID, origin string, entityID uuid.UUID, offset, limit int) (*HistoryPage, error)
	PurgeInstances(ctx context.Context, tenantID uuid.UUID, origin string, entityIDs []uuid.UUID) (int, error)
}

// ActionDispatcher runs the actions configured on a transition for one
// trigger phase, honoring each action's must-succeed flag.
type ActionDispatcher interface {
	Dispatch(ctx context.Context, actx *interfaces.ActionContext, configs []interfaces.ActionConfig, phase domain.TriggerPhase) ([]interfaces.ActionResult, error)
}

// ServiceOption configures the runtime service at construction time.
type ServiceOption func(*service)

func WithClock(clock func() time.Time) ServiceOption {
	return func(s *service) {
		if clock != nil {
			s.now = clock
		}
	}
}

func WithIDGenerator(generator func() uuid.UUID) ServiceOption {
	return func(s *service) {
		if generator != nil {
			s.id = generator
		}
	}
}

func WithLogger(logger interfaces.Logger) ServiceOption {
	return func(s *service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDispatcher wires the action dispatcher invoked during transitions.
func WithDispatcher(dispatcher ActionDispatcher) ServiceOption {
	return func(s *service) {
		s.dispatcher = dispatcher
	}
}

// WithActivitySink wires the audit sink notified after committed transitions.
func WithActivitySink(sink interfaces.ActivitySink) ServiceOption {
	return func(s *service) {
		s.activity = sink
	}
}

// WithEnabled toggles the engine-wide kill switch for this service.
func WithEnabled(enabled bool) ServiceOption {
	return func(s *service) {
		s.enabled = enabled
	}
}

// WithHistoryPaging overrides the default and maximum history page sizes.
func WithHistoryPaging(defaultSize, maxSize int) ServiceOption {
	return func(s *service) {
		if defaultSize > 0 {
			s.historyDefault = defaultSize
		}
		if maxSize > 0 {
			s.historyMax = maxSize
		}
	}
}

type service struct {
	store          Store
	definitions    defsvc.Service
	origins        interfaces.OriginRegistry
	dispatcher     ActionDispatcher
	activity       interfaces.ActivitySink
	logger         interfaces.Logger
	now            func() time.Time
	id             func() uuid.UUID
	enabled        bool
	historyDefault int
	historyMax     int
}

// NewService builds the runtime manager and transition executor.
func NewService(store Store, definitions defsvc.Service, origins interfaces.OriginRegistry, opts ...ServiceOption) Service {
	svc := &service{
		store:          store,
		definitions:    definitions,
		origins:        origins,
		logger:         logging.NoOp(),
		now:            time.Now,
		id:             uuid.New,
		enabled:        true,
		historyDefault: 25,
		historyMax:     200,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}
