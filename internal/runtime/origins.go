package runtime

import (
	"sort"
	"sync"

	"github.com/goliatone/go-flows/internal/domain"
	"github.com/goliatone/go-flows/pkg/interfaces"
)

// OriginRegistry maps origin kinds to their entity resolvers. Registration
// happens at wiring time; lookups are safe for concurrent use.
type OriginRegistry struct {
	mu        sync.RWMutex
	resolvers map[string]interfaces.OriginResolver
}

func NewOriginRegistry() *OriginRegistry {
	return &OriginRegistry{
		resolvers: map[string]interfaces.OriginResolver{},
	}
}

func (r *OriginRegistry) Register(origin string, resolver interfaces.OriginResolver) {
	if resolver == nil {
		return
	}
	normalized := string(domain.NormalizeOrigin(origin))
	if normalized == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolvers[normalized] = resolver
}

func (r *OriginRegistry) Resolver(origin string) (interfaces.OriginResolver, bool) {
	normalized := string(domain.NormalizeOrigin(origin))
	r.mu.RLock()
	defer r.mu.RUnlock()
	resolver, ok := r.resolvers[normalized]
	return resolver, ok
}

func (r *OriginRegistry) Origins() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.resolvers))
	for origin := range r.resolvers {
		out = append(out, origin)
	}
	sort.Strings(out)
	return out
}
