package sandbox

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/vinayprograms/companion/internal/policy"
)

// HandlerFunc implements one task action. It may call back into the
// sandbox context to request the site's API key.
type HandlerFunc func(ctx context.Context, sb *Context, params map[string]interface{}) (interface{}, error)

// Registry maps validated action names to handlers. Constructed
// explicitly and passed in at startup so tests can substitute fakes
// without process-wide state.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

// Register binds an action name to a handler. The name must be a
// well-formed identifier; re-registration replaces the old handler.
func (r *Registry) Register(name string, h HandlerFunc) error {
	if !policy.ValidIdentifier(name) {
		return fmt.Errorf("invalid action name %q", name)
	}
	if h == nil {
		return fmt.Errorf("nil handler for action %q", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
	return nil
}

// Get looks up a handler by action name.
func (r *Registry) Get(name string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns all registered action names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
