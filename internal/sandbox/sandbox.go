package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/agentkit/telemetry"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vinayprograms/companion/internal/policy"
)

// Sandbox dispatches validated tasks to registered handlers.
type Sandbox struct {
	registry *Registry
	guard    *policy.Guard
	logger   *logging.Logger
}

// New creates a sandbox over the given registry and guard. Nil
// arguments select an empty registry, the default rules and a fresh
// logger.
func New(registry *Registry, guard *policy.Guard, logger *logging.Logger) *Sandbox {
	if registry == nil {
		registry = NewRegistry()
	}
	if guard == nil {
		guard = policy.NewGuard(nil)
	}
	if logger == nil {
		logger = logging.New().WithComponent("sandbox")
	}
	return &Sandbox{registry: registry, guard: guard, logger: logger}
}

// Registry exposes the handler registry for startup registration.
func (s *Sandbox) Registry() *Registry {
	return s.registry
}

// ExecuteTask runs one declared task inside the context's isolation
// boundary. The quota check runs before parameter validation: a
// quota-exhausted site never reaches content inspection. The request
// counter increments exactly once, before the handler runs, and only
// after every check passed.
func (s *Sandbox) ExecuteTask(ctx context.Context, sb *Context, action string, params map[string]interface{}) (interface{}, error) {
	tracer := telemetry.GetTracer()
	ctx, span := tracer.StartSpan(ctx, "heartbeat.task")
	span.SetAttributes(
		attribute.String("task.action", action),
		attribute.String("task.site", sb.SiteID),
	)
	defer span.End()

	if sb.RequestCount >= sb.MaxRequests {
		v := &Violation{
			Kind:   policy.KindRateLimit,
			Reason: fmt.Sprintf("site %q exhausted its quota of %d requests", sb.SiteID, sb.MaxRequests),
		}
		s.logViolation(action, sb, v)
		span.RecordError(v)
		return nil, v
	}

	if verdict := s.guard.CheckParams(params); !verdict.Allowed {
		v := &Violation{Kind: verdict.Kind, Reason: verdict.Reason}
		s.logViolation(action, sb, v)
		span.RecordError(v)
		return nil, v
	}

	handler, ok := s.registry.Get(action)
	if !ok {
		return nil, fmt.Errorf("%w for action %q", ErrNoHandler, action)
	}

	sb.RequestCount++

	start := time.Now()
	result, err := s.invoke(ctx, sb, action, handler, params)
	if err != nil {
		span.RecordError(err)
		if v, ok := AsViolation(err); ok {
			s.logViolation(action, sb, v)
		}
		return nil, err
	}

	s.logger.Info("task completed", map[string]interface{}{
		"site":        sb.SiteID,
		"action":      action,
		"duration_ms": time.Since(start).Milliseconds(),
		"requests":    sb.RequestCount,
	})
	return result, nil
}

// invoke runs the handler and converts a panic into an ordinary
// failure so one broken handler cannot take down the run.
func (s *Sandbox) invoke(ctx context.Context, sb *Context, action string, handler HandlerFunc, params map[string]interface{}) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler %q panicked: %v", action, r)
		}
	}()
	return handler(ctx, sb, params)
}

func (s *Sandbox) logViolation(action string, sb *Context, v *Violation) {
	s.logger.SecurityWarning("task rejected", map[string]interface{}{
		"site":   sb.SiteID,
		"action": action,
		"kind":   string(v.Kind),
		"reason": v.Reason,
	})
}
