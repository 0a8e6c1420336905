package actions

import (
	"fmt"
	"sort"
	"sync"

	"github.com/goliatone/go-flows/pkg/interfaces"
)

// Registry holds the closed set of executable action types. Definitions
// referencing unregistered types are rejected at publish time, so a lookup
// miss at execution time is a wiring defect, not user input.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]interfaces.Action
}

func NewRegistry(actions ...interfaces.Action) *Registry {
	r := &Registry{actions: map[string]interfaces.Action{}}
	for _, action := range actions {
		r.Register(action)
	}
	return r
}

func (r *Registry) Register(action interfaces.Action) {
	if action == nil || action.Type() == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[action.Type()] = action
}

func (r *Registry) Resolve(actionType string) (interfaces.Action, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	action, ok := r.actions[actionType]
	if !ok {
		return nil, fmt.Errorf("actions: no action registered for type %q", actionType)
	}
	return action, nil
}

func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.actions))
	for actionType := range r.actions {
		out = append(out, actionType)
	}
	sort.Strings(out)
	return out
}
