package definitions

import (
	"context"
	"errors"
	"strings"
	"time"

	flowdefs "github.com/goliatone/go-flows/definitions"
	"github.com/goliatone/go-flows/internal/domain"
	"github.com/goliatone/go-flows/internal/identity"
	"github.com/goliatone/go-flows/internal/logging"
	"github.com/goliatone/go-flows/pkg/interfaces"
	"github.com/google/uuid"
)

// Scope re-exports the public lookup scope.
type Scope = flowdefs.Scope

// Service exposes definition-store use-cases: publish, republish, lookup,
// validation, and lossless export/import.
type Service interface {
	Publish(ctx context.Context, req DefinitionRequest) (*Definition, error)
	Update(ctx context.Context, id uuid.UUID, req DefinitionRequest) (*Definition, error)
	Get(ctx context.Context, id uuid.UUID) (*Definition, error)
	GetByOrigin(ctx context.Context, tenantID uuid.UUID, origin string, scope Scope) (*Definition, error)
	List(ctx context.Context, tenantID uuid.UUID, origin string) ([]*Definition, error)
	Validate(req DefinitionRequest) []Violation
	Export(ctx context.Context, id uuid.UUID) (*Document, error)
	Import(ctx context.Context, tenantID, actorID uuid.UUID, contextID *uuid.UUID, doc *Document) (*Definition, error)
	Archive(ctx context.Context, id, actorID uuid.UUID) (*Definition, error)
}

// Repository abstracts storage for workflow definitions and their graphs.
type Repository interface {
	// Publish atomically archives the current published+active definition for
	// the record's scope (when one exists), assigns the next version number,
	// and inserts the record with its states and transitions. Readers never
	// observe two active published definitions for one scope.
	Publish(ctx context.Context, record *Definition) (*Definition, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Definition, error)
	GetPublished(ctx context.Context, tenantID uuid.UUID, origin string, scope Scope) (*Definition, error)
	List(ctx context.Context, tenantID uuid.UUID, origin string) ([]*Definition, error)
	Update(ctx context.Context, record *Definition) (*Definition, error)
}

// ServiceOption configures the service at construction time.
type ServiceOption func(*service)

// WithClock overrides the clock used to stamp records.
func WithClock(clock func() time.Time) ServiceOption {
	return func(s *service) {
		if clock != nil {
			s.now = clock
		}
	}
}

// IDGenerator creates identifiers for new records.
type IDGenerator func() uuid.UUID

// WithIDGenerator overrides record identifier generation.
func WithIDGenerator(generator IDGenerator) ServiceOption {
	return func(s *service) {
		if generator != nil {
			s.id = generator
		}
	}
}

// WithValidator replaces the graph validator (e.g. to register extra origins).
func WithValidator(validator *flowdefs.Validator) ServiceOption {
	return func(s *service) {
		if validator != nil {
			s.validator = validator
		}
	}
}

// WithLogger wires the module logger.
func WithLogger(logger interfaces.Logger) ServiceOption {
	return func(s *service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithEnabled toggles the engine-wide kill switch for this service.
func WithEnabled(enabled bool) ServiceOption {
	return func(s *service) {
		s.enabled = enabled
	}
}

// ErrEngineDisabled short-circuits every operation when the module toggle is off.
var ErrEngineDisabled = errors.New("definitions: workflow engine is disabled")

type service struct {
	repo      Repository
	validator *flowdefs.Validator
	logger    interfaces.Logger
	now       func() time.Time
	id        IDGenerator
	enabled   bool
}

// NewService builds the definition store service.
func NewService(repo Repository, opts ...ServiceOption) Service {
	svc := &service{
		repo:      repo,
		validator: flowdefs.NewValidator(),
		logger:    logging.NoOp(),
		now:       time.Now,
		id:        uuid.New,
		enabled:   true,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func (s *service) Publish(ctx context.Context, req DefinitionRequest) (*Definition, error) {
	if !s.enabled {
		return nil, ErrEngineDisabled
	}
	if req.TenantID == uuid.Nil {
		return nil, flowdefs.ErrTenantRequired
	}

	if violations := s.Validate(req); len(violations) > 0 {
		return nil, &flowdefs.GraphValidationError{Violations: violations}
	}
	if err := validateActionBlobs(req); err != nil {
		return nil, err
	}

	record := s.buildDefinition(req)
	published, err := s.repo.Publish(ctx, record)
	if err != nil {
		return nil, err
	}

	s.logger.Info("definition published",
		"definition_id", published.ID,
		"origin", published.Origin,
		"version", published.Version,
	)
	return published, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, req DefinitionRequest) (*Definition, error) {
	if !s.enabled {
		return nil, ErrEngineDisabled
	}
	if id == uuid.Nil {
		return nil, flowdefs.ErrDefinitionRequired
	}

	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// Updating never mutates rows in place: the request rides the same
	// publish path and must target the same scope as the definition it
	// replaces.
	scope := Scope{ContextKind: existing.ContextKind, ContextID: existing.ContextID}
	if existing.TenantID != req.TenantID ||
		existing.Origin != string(domain.NormalizeOrigin(req.Origin)) ||
		!scope.Matches(req.ContextKind, req.ContextID) {
		return nil, flowdefs.ErrScopeMismatch
	}

	return s.Publish(ctx, req)
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*Definition, error) {
	if !s.enabled {
		return nil, ErrEngineDisabled
	}
	if id == uuid.Nil {
		return nil, flowdefs.ErrDefinitionRequired
	}
	return s.repo.GetByID(ctx, id)
}

func (s *service) GetByOrigin(ctx context.Context, tenantID uuid.UUID, origin string, scope Scope) (*Definition, error) {
	if !s.enabled {
		return nil, ErrEngineDisabled
	}
	if tenantID == uuid.Nil {
		return nil, flowdefs.ErrTenantRequired
	}
	record, err := s.repo.GetPublished(ctx, tenantID, string(domain.NormalizeOrigin(origin)), scope)
	if err != nil {
		var notFound *NotFoundError
		if errors.As(err, &notFound) {
			return nil, flowdefs.ErrNotPublished
		}
		return nil, err
	}
	return record, nil
}

func (s *service) List(ctx context.Context, tenantID uuid.UUID, origin string) ([]*Definition, error) {
	if !s.enabled {
		return nil, ErrEngineDisabled
	}
	if tenantID == uuid.Nil {
		return nil, flowdefs.ErrTenantRequired
	}
	return s.repo.List(ctx, tenantID, string(domain.NormalizeOrigin(origin)))
}

func (s *service) Validate(req DefinitionRequest) []Violation {
	return s.validator.Validate(req)
}

func (s *service) Export(ctx context.Context, id uuid.UUID) (*Document, error) {
	if !s.enabled {
		return nil, ErrEngineDisabled
	}
	record, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return flowdefs.ExportDefinition(record)
}

func (s *service) Import(ctx context.Context, tenantID, actorID uuid.UUID, contextID *uuid.UUID, doc *Document) (*Definition, error) {
	if !s.enabled {
		return nil, ErrEngineDisabled
	}
	if doc == nil {
		return nil, flowdefs.ErrDocumentInvalid
	}

	// Import is equivalent to create: the document is re-keyed and published
	// as a brand-new version for the target scope.
	req := doc.Request()
	req.TenantID = tenantID
	req.ActorID = actorID
	req.ContextID = contextID
	return s.Publish(ctx, req)
}

func (s *service) Archive(ctx context.Context, id, actorID uuid.UUID) (*Definition, error) {
	if !s.enabled {
		return nil, ErrEngineDisabled
	}
	record, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.Status == domain.DefinitionStatusArchived {
		return nil, flowdefs.ErrAlreadyArchived
	}

	now := s.now().UTC()
	record.Status = domain.DefinitionStatusArchived
	record.Active = false
	record.UpdatedAt = now
	record.RowVersion++

	updated, err := s.repo.Update(ctx, record)
	if err != nil {
		return nil, err
	}
	s.logger.Info("definition archived", "definition_id", id, "actor_id", actorID)
	return updated, nil
}

// buildDefinition materializes a validated request as a fresh definition,
// regenerating every state and transition key so caller-supplied keys never
// collide across versions.
func (s *service) buildDefinition(req DefinitionRequest) *Definition {
	now := s.now().UTC()
	defID := s.id()

	record := &Definition{
		ID:          defID,
		TenantID:    req.TenantID,
		Origin:      string(domain.NormalizeOrigin(req.Origin)),
		ContextKind: req.ContextKind,
		ContextID:   req.ContextID,
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Status:      domain.DefinitionStatusPublished,
		Active:      true,
		Layout:      req.Layout,
		PublishedAt: &now,
		RowVersion:  1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.ActorID != uuid.Nil {
		actor := req.ActorID
		record.PublishedBy = &actor
	}

	keyMap := make(map[string]string, len(req.States))
	for idx, input := range req.States {
		key := identity.StateKey(defID, idx)
		keyMap[strings.TrimSpace(input.Key)] = key
		record.States = append(record.States, &State{
			ID:           s.id(),
			DefinitionID: defID,
			Key:          key,
			Name:         strings.TrimSpace(input.Name),
			Color:        input.Color,
			Initial:      input.Initial,
			Terminal:     input.Terminal,
			PosX:         input.PosX,
			PosY:         input.PosY,
			Position:     idx,
			Metadata:     input.Metadata,
			CreatedAt:    now,
		})
	}

	for idx, input := range req.Transitions {
		record.Transitions = append(record.Transitions, &Transition{
			ID:           s.id(),
			DefinitionID: defID,
			Key:          identity.TransitionKey(defID, idx),
			Name:         strings.TrimSpace(input.Name),
			FromStateKey: keyMap[strings.TrimSpace(input.From)],
			ToStateKey:   keyMap[strings.TrimSpace(input.To)],
			Enabled:      input.Enabled,
			Priority:     input.Priority,
			Position:     idx,
			Actions:      input.Actions,
			UI:           input.UI,
			CreatedAt:    now,
		})
	}

	return record
}
