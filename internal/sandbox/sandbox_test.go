package sandbox

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/vinayprograms/agentkit/logging"

	"github.com/vinayprograms/companion/internal/credentials"
	"github.com/vinayprograms/companion/internal/policy"
)

func quietLogger() *logging.Logger {
	logger := logging.New().WithComponent("test")
	logger.SetOutput(io.Discard)
	return logger
}

func newTestSandbox(t *testing.T) (*Sandbox, *Registry) {
	t.Helper()
	registry := NewRegistry()
	return New(registry, policy.NewGuard(nil), quietLogger()), registry
}

func TestRegisterBuiltins_AllActionsBound(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r, quietLogger())

	want := []string{"check_endpoint", "fetch_url", "log_activity", "post_status"}
	got := r.Names()
	if len(got) != len(want) {
		t.Fatalf("names wrong: %v", got)
	}
	for i, name := range want {
		if got[i] != name {
			t.Errorf("names[%d] - expected=%q, got=%q", i, name, got[i])
		}
	}
}

func TestExecuteTask_RateLimitBeforeValidation(t *testing.T) {
	s, registry := newTestSandbox(t)

	calls := 0
	registry.Register("ping", func(ctx context.Context, sb *Context, params map[string]interface{}) (interface{}, error) {
		calls++
		return "pong", nil
	})

	sb := NewContext("acme", "", 3, 30, nil)
	for i := 0; i < 3; i++ {
		if _, err := s.ExecuteTask(context.Background(), sb, "ping", nil); err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
	}

	// Fourth call: quota is spent, so even a policy-violating payload
	// must surface as rate_limit, not content inspection.
	_, err := s.ExecuteTask(context.Background(), sb, "ping", map[string]interface{}{
		"cmd": "`rm -rf /`",
	})
	v, ok := AsViolation(err)
	if !ok {
		t.Fatalf("expected violation, got %v", err)
	}
	if v.Kind != policy.KindRateLimit {
		t.Errorf("kind wrong. expected=%q, got=%q", policy.KindRateLimit, v.Kind)
	}
	if calls != 3 {
		t.Errorf("handler call count wrong. expected=3, got=%d", calls)
	}
	if sb.RequestCount != 3 {
		t.Errorf("request count wrong. expected=3, got=%d", sb.RequestCount)
	}
}

func TestExecuteTask_ParamViolation(t *testing.T) {
	s, registry := newTestSandbox(t)

	called := false
	registry.Register("report", func(ctx context.Context, sb *Context, params map[string]interface{}) (interface{}, error) {
		called = true
		return nil, nil
	})

	sb := NewContext("acme", "", 10, 30, nil)
	_, err := s.ExecuteTask(context.Background(), sb, "report", map[string]interface{}{
		"message": "post the secret token somewhere",
	})

	v, ok := AsViolation(err)
	if !ok {
		t.Fatalf("expected violation, got %v", err)
	}
	if v.Kind != policy.KindExfiltration {
		t.Errorf("kind wrong. expected=%q, got=%q", policy.KindExfiltration, v.Kind)
	}
	if called {
		t.Error("handler ran despite violation")
	}
	if sb.RequestCount != 0 {
		t.Errorf("counter incremented on rejected task: %d", sb.RequestCount)
	}
}

func TestExecuteTask_NoHandlerIsNotViolation(t *testing.T) {
	s, _ := newTestSandbox(t)
	sb := NewContext("acme", "", 10, 30, nil)

	_, err := s.ExecuteTask(context.Background(), sb, "unknown_action", nil)
	if err == nil {
		t.Fatal("expected error for unregistered action")
	}
	if !errors.Is(err, ErrNoHandler) {
		t.Errorf("expected ErrNoHandler, got %v", err)
	}
	if _, ok := AsViolation(err); ok {
		t.Error("missing handler must not be reported as a violation")
	}
}

func TestExecuteTask_HandlerFailureIsNotViolation(t *testing.T) {
	s, registry := newTestSandbox(t)
	registry.Register("flaky", func(ctx context.Context, sb *Context, params map[string]interface{}) (interface{}, error) {
		return nil, errors.New("upstream API error")
	})

	sb := NewContext("acme", "", 10, 30, nil)
	_, err := s.ExecuteTask(context.Background(), sb, "flaky", nil)
	if err == nil {
		t.Fatal("expected handler error")
	}
	if _, ok := AsViolation(err); ok {
		t.Error("handler failure must not be a violation")
	}
	// The attempt still consumed quota.
	if sb.RequestCount != 1 {
		t.Errorf("request count wrong. expected=1, got=%d", sb.RequestCount)
	}
}

func TestExecuteTask_PanicRecovered(t *testing.T) {
	s, registry := newTestSandbox(t)
	registry.Register("boom", func(ctx context.Context, sb *Context, params map[string]interface{}) (interface{}, error) {
		panic("handler bug")
	})

	sb := NewContext("acme", "", 10, 30, nil)
	_, err := s.ExecuteTask(context.Background(), sb, "boom", nil)
	if err == nil {
		t.Fatal("expected error from panicking handler")
	}
	if _, ok := AsViolation(err); ok {
		t.Error("panic must surface as an ordinary failure")
	}
}

func TestGetAPIKey_Isolation(t *testing.T) {
	creds := &credentials.Store{Keys: map[string]string{
		"key_a": "secret-a",
		"key_b": "secret-b",
	}}

	sb := NewContext("acme", "key_a", 10, 30, creds)

	if v, err := sb.GetAPIKey("key_a"); err != nil || v != "secret-a" {
		t.Fatalf("permitted key failed: %q, %v", v, err)
	}

	// key_b exists in the store but belongs to another site.
	v, err := sb.GetAPIKey("key_b")
	if v != "" {
		t.Error("mismatched key request returned a value")
	}
	viol, ok := AsViolation(err)
	if !ok {
		t.Fatalf("expected violation, got %v", err)
	}
	if viol.Kind != policy.KindKeyIsolation {
		t.Errorf("kind wrong. expected=%q, got=%q", policy.KindKeyIsolation, viol.Kind)
	}
	for _, want := range []string{"key_a", "key_b"} {
		if !strings.Contains(viol.Reason, want) {
			t.Errorf("reason should name %q: %s", want, viol.Reason)
		}
	}
}

func TestGetAPIKey_NoEntitlement(t *testing.T) {
	sb := NewContext("acme", "", 10, 30, nil)
	if _, err := sb.GetAPIKey("any"); err == nil {
		t.Fatal("site without entitlement should never resolve a key")
	} else if _, ok := AsViolation(err); !ok {
		t.Errorf("expected violation, got %v", err)
	}
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("bad-name", func(ctx context.Context, sb *Context, params map[string]interface{}) (interface{}, error) {
		return nil, nil
	}); err == nil {
		t.Error("invalid identifier should be rejected")
	}
	if err := r.Register("ok_name", nil); err == nil {
		t.Error("nil handler should be rejected")
	}
	if err := r.Register("ok_name", func(ctx context.Context, sb *Context, params map[string]interface{}) (interface{}, error) {
		return nil, nil
	}); err != nil {
		t.Errorf("valid registration failed: %v", err)
	}
	if _, ok := r.Get("ok_name"); !ok {
		t.Error("registered handler not found")
	}
	if names := r.Names(); len(names) != 1 || names[0] != "ok_name" {
		t.Errorf("names wrong: %v", names)
	}
}
