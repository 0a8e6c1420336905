package flowscmd

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	command "github.com/goliatone/go-command"
	"github.com/goliatone/go-flows/internal/commands"
	"github.com/goliatone/go-flows/internal/logging"
	runtimesvc "github.com/goliatone/go-flows/internal/runtime"
	"github.com/goliatone/go-flows/pkg/interfaces"
	flowruntime "github.com/goliatone/go-flows/runtime"
	"github.com/google/uuid"
)

const executeTransitionMessageType = "flows.transition.execute"

// ExecuteTransitionCommand requests one locked transition on a governed entity.
type ExecuteTransitionCommand struct {
	TenantID         uuid.UUID `json:"tenant_id"`
	Origin           string    `json:"origin"`
	EntityID         uuid.UUID `json:"entity_id"`
	TransitionKey    string    `json:"transition_key"`
	ExpectedStateKey string    `json:"expected_state_key,omitempty"`
	ActorID          uuid.UUID `json:"actor_id"`
	Notes            string    `json:"notes,omitempty"`
}

// Type implements command.Message.
func (ExecuteTransitionCommand) Type() string { return executeTransitionMessageType }

// Validate ensures the command carries the required identifiers.
func (m ExecuteTransitionCommand) Validate() error {
	errs := validation.Errors{}
	if m.TenantID == uuid.Nil {
		errs["tenant_id"] = validation.NewError("flows.transition.execute.tenant_required", "tenant_id is required")
	}
	if strings.TrimSpace(m.Origin) == "" {
		errs["origin"] = validation.NewError("flows.transition.execute.origin_required", "origin is required")
	}
	if m.EntityID == uuid.Nil {
		errs["entity_id"] = validation.NewError("flows.transition.execute.entity_required", "entity_id is required")
	}
	if strings.TrimSpace(m.TransitionKey) == "" {
		errs["transition_key"] = validation.NewError("flows.transition.execute.transition_required", "transition_key is required")
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ExecuteTransitionHandler drives transitions via the runtime service.
type ExecuteTransitionHandler struct {
	service runtimesvc.Service
	logger  interfaces.Logger
	timeout time.Duration
}

// ExecuteTransitionOption customises the transition handler.
type ExecuteTransitionOption func(*ExecuteTransitionHandler)

// ExecuteTransitionWithTimeout overrides the default execution timeout.
func ExecuteTransitionWithTimeout(timeout time.Duration) ExecuteTransitionOption {
	return func(h *ExecuteTransitionHandler) {
		h.timeout = timeout
	}
}

// NewExecuteTransitionHandler constructs a handler wired to the runtime service.
func NewExecuteTransitionHandler(service runtimesvc.Service, logger interfaces.Logger, opts ...ExecuteTransitionOption) *ExecuteTransitionHandler {
	handler := &ExecuteTransitionHandler{
		service: service,
		logger:  commands.EnsureLogger(logger),
		timeout: commands.DefaultCommandTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(handler)
		}
	}
	return handler
}

// Execute satisfies command.Commander[ExecuteTransitionCommand].
func (h *ExecuteTransitionHandler) Execute(ctx context.Context, msg ExecuteTransitionCommand) error {
	if err := commands.WrapValidationError(command.ValidateMessage(msg)); err != nil {
		return err
	}
	ctx = commands.EnsureContext(ctx)
	ctx, cancel := commands.WithCommandTimeout(ctx, h.timeout)
	defer cancel()

	if err := ctx.Err(); err != nil {
		return commands.WrapContextError(err)
	}

	result, err := h.service.ExecuteTransition(ctx, flowruntime.TransitionRequest{
		TenantID:         msg.TenantID,
		Origin:           msg.Origin,
		EntityID:         msg.EntityID,
		TransitionKey:    msg.TransitionKey,
		ExpectedStateKey: msg.ExpectedStateKey,
		ActorID:          msg.ActorID,
		Notes:            msg.Notes,
	})
	if err != nil {
		return commands.WrapExecuteError(err)
	}

	logging.WithFields(h.logger, map[string]any{
		"operation":      "transition.execute",
		"instance_id":    result.InstanceID,
		"origin":         result.Origin,
		"entity_id":      result.EntityID,
		"transition_key": result.TransitionKey,
		"to_state":       result.ToState.Key,
	}).Info("flows.command.transition.completed")
	return nil
}
