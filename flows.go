package flows

import (
	"time"

	flowdefs "github.com/goliatone/go-flows/definitions"
	"github.com/goliatone/go-flows/internal/actions"
	"github.com/goliatone/go-flows/internal/commands/flowscmd"
	defsvc "github.com/goliatone/go-flows/internal/definitions"
	"github.com/goliatone/go-flows/internal/logging"
	"github.com/goliatone/go-flows/internal/logging/gologger"
	runtimesvc "github.com/goliatone/go-flows/internal/runtime"
	"github.com/goliatone/go-flows/pkg/interfaces"
	"github.com/goliatone/go-repository-cache/cache"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DefinitionService exports the definition store contract for consumers of
// the flows package.
type DefinitionService = defsvc.Service

// RuntimeService exports the runtime manager and transition executor contract.
type RuntimeService = runtimesvc.Service

// Option mutates the module wiring before it is finalised.
type Option func(*Module)

// WithBunDB switches persistence from the in-memory stores to bun-backed
// repositories over the provided database.
func WithBunDB(db *bun.DB) Option {
	return func(m *Module) {
		m.db = db
	}
}

// WithCache wires the cache service used for hot published-definition lookups.
func WithCache(service cache.CacheService, serializer cache.KeySerializer) Option {
	return func(m *Module) {
		m.cacheService = service
		m.keySerializer = serializer
	}
}

// WithLoggerProvider injects the logging provider used by every engine service.
func WithLoggerProvider(provider interfaces.LoggerProvider) Option {
	return func(m *Module) {
		m.loggerProvider = provider
	}
}

// WithActivitySink wires the audit sink notified after committed transitions.
func WithActivitySink(sink interfaces.ActivitySink) Option {
	return func(m *Module) {
		m.activitySink = sink
	}
}

// WithStockLedger wires the external stock mutation engine consumed by the
// stock actions.
func WithStockLedger(ledger interfaces.StockLedger) Option {
	return func(m *Module) {
		m.stockLedger = ledger
	}
}

// WithOriginResolver registers the capability set for an origin kind.
func WithOriginResolver(origin string, resolver interfaces.OriginResolver) Option {
	return func(m *Module) {
		m.resolvers[origin] = resolver
	}
}

// WithAction registers an additional action implementation beyond the
// built-in set.
func WithAction(action interfaces.Action) Option {
	return func(m *Module) {
		m.extraActions = append(m.extraActions, action)
	}
}

// WithClock overrides the clock used by the engine services.
func WithClock(clock func() time.Time) Option {
	return func(m *Module) {
		m.clock = clock
	}
}

// WithIDGenerator overrides record identifier generation.
func WithIDGenerator(generator func() uuid.UUID) Option {
	return func(m *Module) {
		m.idgen = generator
	}
}

// Module is the top level workflow engine facade. It owns the wiring between
// the definition store, the runtime, the action registry, and the origin
// registry.
type Module struct {
	config Config

	db             *bun.DB
	cacheService   cache.CacheService
	keySerializer  cache.KeySerializer
	loggerProvider interfaces.LoggerProvider
	activitySink   interfaces.ActivitySink
	stockLedger    interfaces.StockLedger
	resolvers      map[string]interfaces.OriginResolver
	extraActions   []interfaces.Action
	clock          func() time.Time
	idgen          func() uuid.UUID

	origins     *runtimesvc.OriginRegistry
	registry    *actions.Registry
	definitions defsvc.Service
	runtime     runtimesvc.Service
}

// New constructs the workflow engine using the provided configuration and
// optional wiring overrides.
func New(cfg Config, opts ...Option) (*Module, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Module{
		config:    cfg,
		resolvers: map[string]interfaces.OriginResolver{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	if m.loggerProvider == nil && cfg.Features.Logger {
		provider, err := gologger.NewProvider(gologger.Config{
			Level:     cfg.Logging.Level,
			Format:    cfg.Logging.Format,
			AddSource: cfg.Logging.AddSource,
			Focus:     cfg.Logging.Focus,
		})
		if err != nil {
			return nil, err
		}
		m.loggerProvider = provider
	}

	m.origins = runtimesvc.NewOriginRegistry()
	for origin, resolver := range m.resolvers {
		m.origins.Register(origin, resolver)
	}

	m.registry = actions.NewRegistry(m.extraActions...)
	if m.stockLedger != nil {
		m.registry.Register(actions.NewStockMoveAction(m.stockLedger))
		m.registry.Register(actions.NewStockReverseAction(m.stockLedger))
	}
	cascade := actions.NewCascadeStatusAction(m.origins, nil)
	m.registry.Register(cascade)
	dispatcher := actions.NewDispatcher(m.registry, logging.ActionsLogger(m.loggerProvider))

	var defsRepo defsvc.Repository
	if m.db != nil {
		if cfg.Features.DefinitionCache && m.cacheService != nil {
			defsRepo = defsvc.NewBunRepositoryWithCache(m.db, m.cacheService, m.keySerializer)
		} else {
			defsRepo = defsvc.NewBunRepository(m.db)
		}
	} else {
		defsRepo = defsvc.NewMemoryRepository()
	}

	defOpts := []defsvc.ServiceOption{
		defsvc.WithLogger(logging.DefinitionsLogger(m.loggerProvider)),
		defsvc.WithEnabled(cfg.Enabled),
	}
	if registered := m.origins.Origins(); len(registered) > 0 {
		defOpts = append(defOpts, defsvc.WithValidator(flowdefs.NewValidator(
			flowdefs.WithKnownOrigins(registered...),
		)))
	}
	if m.clock != nil {
		defOpts = append(defOpts, defsvc.WithClock(m.clock))
	}
	if m.idgen != nil {
		defOpts = append(defOpts, defsvc.WithIDGenerator(m.idgen))
	}
	m.definitions = defsvc.NewService(defsRepo, defOpts...)

	var store runtimesvc.Store
	if m.db != nil {
		store = runtimesvc.NewBunStore(m.db)
	} else {
		store = runtimesvc.NewMemoryStore()
	}

	runOpts := []runtimesvc.ServiceOption{
		runtimesvc.WithLogger(logging.RuntimeLogger(m.loggerProvider)),
		runtimesvc.WithEnabled(cfg.Enabled),
		runtimesvc.WithDispatcher(dispatcher),
		runtimesvc.WithHistoryPaging(cfg.History.DefaultPageSize, cfg.History.MaxPageSize),
	}
	if cfg.Features.Activity && m.activitySink != nil {
		runOpts = append(runOpts, runtimesvc.WithActivitySink(m.activitySink))
	}
	if m.clock != nil {
		runOpts = append(runOpts, runtimesvc.WithClock(m.clock))
	}
	if m.idgen != nil {
		runOpts = append(runOpts, runtimesvc.WithIDGenerator(m.idgen))
	}
	m.runtime = runtimesvc.NewService(store, m.definitions, m.origins, runOpts...)

	cascade.SetRunner(m.runtime)

	return m, nil
}

// Config returns the configuration the module was built with.
func (m *Module) Config() Config {
	return m.config
}

// Definitions returns the configured definition store service.
func (m *Module) Definitions() DefinitionService {
	return m.definitions
}

// Runtime returns the configured runtime service.
func (m *Module) Runtime() RuntimeService {
	return m.runtime
}

// Actions returns the registry of executable action types.
func (m *Module) Actions() *actions.Registry {
	return m.registry
}

// Origins returns the origin resolver registry. Resolvers registered after
// construction become visible to the runtime, but not to the publish-time
// origin validation.
func (m *Module) Origins() *runtimesvc.OriginRegistry {
	return m.origins
}

// PublishDefinitionHandler returns a command handler bound to the definition service.
func (m *Module) PublishDefinitionHandler() *flowscmd.PublishDefinitionHandler {
	return flowscmd.NewPublishDefinitionHandler(m.definitions, logging.ModuleLogger(m.loggerProvider, "flows.commands.definitions"))
}

// ExecuteTransitionHandler returns a command handler bound to the runtime service.
func (m *Module) ExecuteTransitionHandler() *flowscmd.ExecuteTransitionHandler {
	return flowscmd.NewExecuteTransitionHandler(m.runtime, logging.ModuleLogger(m.loggerProvider, "flows.commands.runtime"))
}
