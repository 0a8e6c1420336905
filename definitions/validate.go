package definitions

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-flows/internal/domain"
)

// Violation codes emitted by the graph validator. They are machine-readable
// so UIs can map them to user-facing messages.
const (
	ViolationOriginRequired          = "origin_required"
	ViolationOriginUnknown           = "origin_unknown"
	ViolationNameRequired            = "name_required"
	ViolationStatesRequired          = "states_required"
	ViolationInitialStateMissing     = "initial_state_missing"
	ViolationInitialStateMultiple    = "initial_state_multiple"
	ViolationStateKeyRequired        = "state_key_required"
	ViolationStateKeyDuplicate       = "state_key_duplicate"
	ViolationStateNameRequired       = "state_name_required"
	ViolationTransitionKeyRequired   = "transition_key_required"
	ViolationTransitionKeyDuplicate  = "transition_key_duplicate"
	ViolationTransitionNameRequired  = "transition_name_required"
	ViolationTransitionFromUnknown   = "transition_from_unknown"
	ViolationTransitionToUnknown     = "transition_to_unknown"
	ViolationTransitionSelfReference = "transition_self_reference"
	ViolationActionTypeUnknown       = "action_type_unknown"
	ViolationActionIncompatible      = "action_origin_incompatible"
	ViolationActionTriggerUnknown    = "action_trigger_unknown"
)

// Violation is a single graph-validation failure.
type Violation struct {
	Code    string `json:"code"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message,omitempty"`
}

// ActionCatalog maps each valid action type to the origins it may run for.
// An empty origin list means the action is origin-agnostic.
type ActionCatalog map[string][]string

// Validator checks candidate workflow graphs without side effects. All
// problems are reported at once as a list of coded violations.
type Validator struct {
	origins map[string]struct{}
	catalog ActionCatalog
}

// ValidatorOption configures validator construction.
type ValidatorOption func(*Validator)

// WithKnownOrigins replaces the set of origin kinds accepted by the validator.
func WithKnownOrigins(origins ...string) ValidatorOption {
	return func(v *Validator) {
		v.origins = make(map[string]struct{}, len(origins))
		for _, origin := range origins {
			v.origins[string(domain.NormalizeOrigin(origin))] = struct{}{}
		}
	}
}

// WithActionCatalog replaces the action compatibility catalog.
func WithActionCatalog(catalog ActionCatalog) ValidatorOption {
	return func(v *Validator) {
		if catalog != nil {
			v.catalog = catalog
		}
	}
}

// NewValidator builds a validator seeded with the built-in origins and the
// built-in action catalog.
func NewValidator(opts ...ValidatorOption) *Validator {
	v := &Validator{
		origins: map[string]struct{}{
			string(domain.OriginMovement):     {},
			string(domain.OriginMovementItem): {},
		},
		catalog: DefaultActionCatalog(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks the candidate graph and returns every violation found.
// An empty slice means the request is publishable.
func (v *Validator) Validate(req DefinitionRequest) []Violation {
	var out []Violation

	origin := string(domain.NormalizeOrigin(req.Origin))
	if origin == "" {
		out = append(out, Violation{Code: ViolationOriginRequired, Path: "origin"})
	} else if _, ok := v.origins[origin]; !ok {
		out = append(out, Violation{
			Code:    ViolationOriginUnknown,
			Path:    "origin",
			Message: fmt.Sprintf("origin %q is not a registered entity kind", origin),
		})
	}

	if strings.TrimSpace(req.Name) == "" {
		out = append(out, Violation{Code: ViolationNameRequired, Path: "name"})
	}

	if len(req.States) == 0 {
		out = append(out, Violation{Code: ViolationStatesRequired, Path: "states"})
	}

	stateKeys := make(map[string]struct{}, len(req.States))
	initialCount := 0
	for idx, state := range req.States {
		path := fmt.Sprintf("states[%d]", idx)
		key := strings.TrimSpace(state.Key)
		if key == "" {
			out = append(out, Violation{Code: ViolationStateKeyRequired, Path: path})
		} else if _, dup := stateKeys[key]; dup {
			out = append(out, Violation{
				Code:    ViolationStateKeyDuplicate,
				Path:    path,
				Message: fmt.Sprintf("state key %q declared more than once", key),
			})
		} else {
			stateKeys[key] = struct{}{}
		}
		if strings.TrimSpace(state.Name) == "" {
			out = append(out, Violation{Code: ViolationStateNameRequired, Path: path})
		}
		if state.Initial {
			initialCount++
		}
	}

	if len(req.States) > 0 {
		if initialCount == 0 {
			out = append(out, Violation{Code: ViolationInitialStateMissing, Path: "states"})
		} else if initialCount > 1 {
			out = append(out, Violation{Code: ViolationInitialStateMultiple, Path: "states"})
		}
	}

	transitionKeys := make(map[string]struct{}, len(req.Transitions))
	for idx, tr := range req.Transitions {
		path := fmt.Sprintf("transitions[%d]", idx)
		key := strings.TrimSpace(tr.Key)
		if key == "" {
			out = append(out, Violation{Code: ViolationTransitionKeyRequired, Path: path})
		} else if _, dup := transitionKeys[key]; dup {
			out = append(out, Violation{
				Code:    ViolationTransitionKeyDuplicate,
				Path:    path,
				Message: fmt.Sprintf("transition key %q declared more than once", key),
			})
		} else {
			transitionKeys[key] = struct{}{}
		}

		if strings.TrimSpace(tr.Name) == "" {
			out = append(out, Violation{Code: ViolationTransitionNameRequired, Path: path})
		}

		from := strings.TrimSpace(tr.From)
		to := strings.TrimSpace(tr.To)
		if _, ok := stateKeys[from]; !ok {
			out = append(out, Violation{
				Code:    ViolationTransitionFromUnknown,
				Path:    path + ".from",
				Message: fmt.Sprintf("from state %q is not declared", from),
			})
		}
		if _, ok := stateKeys[to]; !ok {
			out = append(out, Violation{
				Code:    ViolationTransitionToUnknown,
				Path:    path + ".to",
				Message: fmt.Sprintf("to state %q is not declared", to),
			})
		}
		if from != "" && from == to {
			out = append(out, Violation{Code: ViolationTransitionSelfReference, Path: path})
		}

		out = append(out, v.validateActions(origin, path, tr.Actions)...)
	}

	return out
}

func (v *Validator) validateActions(origin, path string, configs []ActionConfig) []Violation {
	var out []Violation
	for idx, cfg := range configs {
		actionPath := fmt.Sprintf("%s.actions[%d]", path, idx)
		actionType := strings.ToLower(strings.TrimSpace(cfg.Type))

		allowed, known := v.catalog[actionType]
		if !known {
			out = append(out, Violation{
				Code:    ViolationActionTypeUnknown,
				Path:    actionPath,
				Message: fmt.Sprintf("action type %q is not registered", cfg.Type),
			})
		} else if len(allowed) > 0 && !containsOrigin(allowed, origin) {
			out = append(out, Violation{
				Code:    ViolationActionIncompatible,
				Path:    actionPath,
				Message: fmt.Sprintf("action %q is not valid for origin %q", actionType, origin),
			})
		}

		if !domain.KnownTriggerPhase(cfg.Trigger) {
			out = append(out, Violation{
				Code:    ViolationActionTriggerUnknown,
				Path:    actionPath + ".trigger",
				Message: fmt.Sprintf("trigger %q is not recognized", cfg.Trigger),
			})
		}
	}
	return out
}

func containsOrigin(origins []string, origin string) bool {
	for _, candidate := range origins {
		if string(domain.NormalizeOrigin(candidate)) == origin {
			return true
		}
	}
	return false
}
