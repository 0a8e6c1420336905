package flowscmd

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	command "github.com/goliatone/go-command"
	flowdefs "github.com/goliatone/go-flows/definitions"
	"github.com/goliatone/go-flows/internal/commands"
	defsvc "github.com/goliatone/go-flows/internal/definitions"
	"github.com/goliatone/go-flows/internal/logging"
	"github.com/goliatone/go-flows/pkg/interfaces"
	"github.com/google/uuid"
)

const publishDefinitionMessageType = "flows.definition.publish"

// PublishDefinitionCommand requests validation and publication of a workflow
// definition graph as the next version for its scope.
type PublishDefinitionCommand struct {
	TenantID    uuid.UUID                  `json:"tenant_id"`
	Origin      string                     `json:"origin"`
	ContextKind *string                    `json:"context_kind,omitempty"`
	ContextID   *uuid.UUID                 `json:"context_id,omitempty"`
	Name        string                     `json:"name"`
	Description string                     `json:"description,omitempty"`
	Layout      map[string]any             `json:"layout,omitempty"`
	ActorID     uuid.UUID                  `json:"actor_id"`
	States      []flowdefs.StateInput      `json:"states"`
	Transitions []flowdefs.TransitionInput `json:"transitions"`
}

// Type implements command.Message.
func (PublishDefinitionCommand) Type() string { return publishDefinitionMessageType }

// Validate ensures the command carries the required identifiers.
func (m PublishDefinitionCommand) Validate() error {
	errs := validation.Errors{}
	if m.TenantID == uuid.Nil {
		errs["tenant_id"] = validation.NewError("flows.definition.publish.tenant_required", "tenant_id is required")
	}
	if strings.TrimSpace(m.Origin) == "" {
		errs["origin"] = validation.NewError("flows.definition.publish.origin_required", "origin is required")
	}
	if strings.TrimSpace(m.Name) == "" {
		errs["name"] = validation.NewError("flows.definition.publish.name_required", "name is required")
	}
	if len(m.States) == 0 {
		errs["states"] = validation.NewError("flows.definition.publish.states_required", "at least one state is required")
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// PublishDefinitionHandler publishes definition graphs via the definition service.
type PublishDefinitionHandler struct {
	service defsvc.Service
	logger  interfaces.Logger
	timeout time.Duration
}

// PublishDefinitionOption customises the publish handler.
type PublishDefinitionOption func(*PublishDefinitionHandler)

// PublishDefinitionWithTimeout overrides the default execution timeout.
func PublishDefinitionWithTimeout(timeout time.Duration) PublishDefinitionOption {
	return func(h *PublishDefinitionHandler) {
		h.timeout = timeout
	}
}

// NewPublishDefinitionHandler constructs a handler wired to the definition service.
func NewPublishDefinitionHandler(service defsvc.Service, logger interfaces.Logger, opts ...PublishDefinitionOption) *PublishDefinitionHandler {
	handler := &PublishDefinitionHandler{
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

// Execute satisfies command.Commander[PublishDefinitionCommand].
func (h *PublishDefinitionHandler) Execute(ctx context.Context, msg PublishDefinitionCommand) error {
	if err := commands.WrapValidationError(command.ValidateMessage(msg)); err != nil {
		return err
	}
	ctx = commands.EnsureContext(ctx)
	ctx, cancel := commands.WithCommandTimeout(ctx, h.timeout)
	defer cancel()

	if err := ctx.Err(); err != nil {
		return commands.WrapContextError(err)
	}

	var description *string
	if strings.TrimSpace(msg.Description) != "" {
		value := msg.Description
		description = &value
	}
	req := flowdefs.DefinitionRequest{
		TenantID:    msg.TenantID,
		Origin:      msg.Origin,
		ContextKind: msg.ContextKind,
		ContextID:   msg.ContextID,
		Name:        msg.Name,
		Description: description,
		Layout:      msg.Layout,
		ActorID:     msg.ActorID,
		States:      msg.States,
		Transitions: msg.Transitions,
	}
	published, err := h.service.Publish(ctx, req)
	if err != nil {
		return commands.WrapExecuteError(err)
	}

	logging.WithFields(h.logger, map[string]any{
		"operation":     "definition.publish",
		"definition_id": published.ID,
		"origin":        published.Origin,
		"version":       published.Version,
	}).Info("flows.command.publish.completed")
	return nil
}
