package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/vinayprograms/companion/internal/policy"
	"github.com/vinayprograms/companion/internal/session"
)

// ErrNetworkBlocked is returned by a handler when the session's
// network capability is off. This gate is orthogonal to the security
// guard: the guard answers "is this inherently dangerous", this gate
// answers "is outbound access currently permitted".
var ErrNetworkBlocked = errors.New("network access disabled")

// IsNetworkBlocked reports whether err is the network gate refusing.
func IsNetworkBlocked(err error) bool {
	return errors.Is(err, ErrNetworkBlocked)
}

// Request is what a handler receives for one directive.
type Request struct {
	Action   string
	Argument string
	Session  *session.State
}

// HandlerFunc implements one conversational action. It returns the
// human-readable display text for the result list.
type HandlerFunc func(ctx context.Context, req *Request) (string, error)

// Registry maps action names to handlers. Constructed explicitly and
// injected at startup so tests can substitute fakes without
// process-wide state.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

// Register binds an action name to a handler.
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
