package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vinayprograms/agentkit/logging"

	"github.com/vinayprograms/companion/internal/policy"
	"github.com/vinayprograms/companion/internal/session"
)

func quietLogger() *logging.Logger {
	logger := logging.New().WithComponent("test")
	logger.SetOutput(io.Discard)
	return logger
}

func newTestExecutor() (*Executor, *Registry) {
	registry := NewRegistry()
	return New(registry, policy.NewGuard(nil), quietLogger()), registry
}

func newSession(caps session.Capabilities) *session.State {
	return session.New(caps)
}

func TestExecute_BlockedDirective(t *testing.T) {
	e, registry := newTestExecutor()

	spawned := false
	registry.Register("run", func(ctx context.Context, req *Request) (string, error) {
		spawned = true
		return "ran", nil
	})

	state := newSession(session.Capabilities{SafetyEnabled: true})
	outcome := e.Execute(context.Background(), "ok [ACTION:run|rm -rf /] done", state, nil)

	if outcome.Cleaned != "ok  done" {
		t.Errorf("cleaned wrong: %q", outcome.Cleaned)
	}
	if len(outcome.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(outcome.Results))
	}
	if outcome.Results[0].Success || !strings.Contains(outcome.Results[0].DisplayText, "blocked") {
		t.Errorf("result wrong: %+v", outcome.Results[0])
	}
	if spawned {
		t.Error("handler ran despite policy denial")
	}
}

func TestExecute_ConsentGate(t *testing.T) {
	e, registry := newTestExecutor()

	calls := 0
	registry.Register("note", func(ctx context.Context, req *Request) (string, error) {
		calls++
		return "noted", nil
	})

	state := newSession(session.Capabilities{SafetyEnabled: true})
	denyAll := func(action, argument string) bool { return false }

	outcome := e.Execute(context.Background(), "[ACTION:note|remember this]", state, denyAll)
	if calls != 0 {
		t.Error("handler ran despite denied consent")
	}
	if len(outcome.Results) != 1 || !strings.Contains(outcome.Results[0].DisplayText, "skipped, user denied") {
		t.Errorf("result wrong: %+v", outcome.Results)
	}

	// Consent runs only for directives the guard allowed.
	consentCalls := 0
	counting := func(action, argument string) bool {
		consentCalls++
		return true
	}
	e.Execute(context.Background(), "[ACTION:run|ls; rm -rf ~]", state, counting)
	if consentCalls != 0 {
		t.Error("consent invoked for a blocked directive")
	}
}

func TestExecute_DeduplicatedHandlerCalls(t *testing.T) {
	e, registry := newTestExecutor()

	calls := 0
	registry.Register("note", func(ctx context.Context, req *Request) (string, error) {
		calls++
		return "noted", nil
	})

	state := newSession(session.Capabilities{SafetyEnabled: true})
	e.Execute(context.Background(), "[ACTION:note|same] and again [ACTION:note|same]", state, nil)

	if calls != 1 {
		t.Errorf("expected exactly 1 handler call, got %d", calls)
	}
}

func TestExecute_UnknownActionDistinctFromBlocked(t *testing.T) {
	e, _ := newTestExecutor()
	state := newSession(session.Capabilities{SafetyEnabled: true})

	outcome := e.Execute(context.Background(), "[ACTION:teleport|home]", state, nil)
	if len(outcome.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(outcome.Results))
	}
	text := outcome.Results[0].DisplayText
	if !strings.Contains(text, "unknown action") {
		t.Errorf("missing-handler text wrong: %q", text)
	}
	if strings.Contains(text, "blocked") {
		t.Error("missing handler must not read as a policy denial")
	}
}

func TestExecute_HandlerFailureKeepsSiblingsRunning(t *testing.T) {
	e, registry := newTestExecutor()

	registry.Register("bad", func(ctx context.Context, req *Request) (string, error) {
		return "", errors.New("disk full")
	})
	registry.Register("good", func(ctx context.Context, req *Request) (string, error) {
		return "fine", nil
	})

	state := newSession(session.Capabilities{SafetyEnabled: true})
	outcome := e.Execute(context.Background(), "[ACTION:bad|x] [ACTION:good|y]", state, nil)

	if len(outcome.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(outcome.Results))
	}
	if outcome.Results[0].Success || !strings.Contains(outcome.Results[0].DisplayText, "disk full") {
		t.Errorf("failure result wrong: %+v", outcome.Results[0])
	}
	if !outcome.Results[1].Success {
		t.Error("sibling directive did not run after a failure")
	}
}

func TestExecute_PanicRecovered(t *testing.T) {
	e, registry := newTestExecutor()
	registry.Register("boom", func(ctx context.Context, req *Request) (string, error) {
		panic("handler bug")
	})

	state := newSession(session.Capabilities{SafetyEnabled: true})
	outcome := e.Execute(context.Background(), "[ACTION:boom|x]", state, nil)
	if len(outcome.Results) != 1 || outcome.Results[0].Success {
		t.Fatalf("expected failure result, got %+v", outcome.Results)
	}
}

func TestExecute_NetworkGate(t *testing.T) {
	e, registry := newTestExecutor()
	RegisterBuiltins(registry, BuiltinConfig{})

	state := newSession(session.Capabilities{SafetyEnabled: true, NetworkEnabled: false})
	outcome := e.Execute(context.Background(), "[ACTION:run|curl https://example.com]", state, nil)

	if len(outcome.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(outcome.Results))
	}
	if !strings.Contains(outcome.Results[0].DisplayText, "network blocked") {
		t.Errorf("expected network gate refusal, got %q", outcome.Results[0].DisplayText)
	}
}

func TestExecute_SequentialSideEffects(t *testing.T) {
	e, registry := newTestExecutor()
	RegisterBuiltins(registry, BuiltinConfig{})

	path := filepath.Join(t.TempDir(), "note.txt")
	state := newSession(session.Capabilities{SafetyEnabled: true})

	text := fmt.Sprintf("[ACTION:write|%s|hello] [ACTION:read|%s]", path, path)
	outcome := e.Execute(context.Background(), text, state, nil)

	if len(outcome.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(outcome.Results))
	}
	if !outcome.Results[0].Success {
		t.Fatalf("write failed: %q", outcome.Results[0].DisplayText)
	}
	// The write's side effect is visible to the read in the same turn.
	if !outcome.Results[1].Success || !strings.Contains(outcome.Results[1].DisplayText, "hello") {
		t.Errorf("read result wrong: %+v", outcome.Results[1])
	}
}

func TestExecute_MoodSignal(t *testing.T) {
	e, _ := newTestExecutor()
	state := newSession(session.Capabilities{SafetyEnabled: true})

	outcome := e.Execute(context.Background(), "what a day [MOOD:tired]", state, nil)
	if outcome.Mood != "tired" {
		t.Errorf("mood wrong: %q", outcome.Mood)
	}
	if state.Mood != "tired" {
		t.Errorf("session mood not updated: %q", state.Mood)
	}
	if len(outcome.Results) != 0 || outcome.FollowUp != "" {
		t.Error("mood alone must not stage a follow-up")
	}
}

func TestExecute_FollowUpConstrained(t *testing.T) {
	e, registry := newTestExecutor()
	registry.Register("note", func(ctx context.Context, req *Request) (string, error) {
		return "noted it", nil
	})

	state := newSession(session.Capabilities{SafetyEnabled: true})
	outcome := e.Execute(context.Background(), "[ACTION:note|x]", state, nil)

	if outcome.FollowUp == "" {
		t.Fatal("expected a follow-up prompt")
	}
	if !strings.Contains(outcome.FollowUp, "noted it") {
		t.Error("follow-up omits the collected output")
	}
	if !strings.Contains(outcome.FollowUp, "[ACTION:") {
		t.Error("follow-up should explicitly name the forbidden tag form")
	}
}

func TestExecute_SafetyDisabledStillBlocksDestructive(t *testing.T) {
	e, registry := newTestExecutor()

	ran := 0
	registry.Register("run", func(ctx context.Context, req *Request) (string, error) {
		ran++
		return "ok", nil
	})

	state := newSession(session.Capabilities{SafetyEnabled: false})

	// Chaining normally trips the guard; with safety off it dispatches.
	outcome := e.Execute(context.Background(), "[ACTION:run|true && true]", state, nil)
	if ran != 1 || !outcome.Results[0].Success {
		t.Errorf("safety-off session should dispatch: %+v", outcome.Results)
	}

	// The destructive table stays fatal regardless.
	outcome = e.Execute(context.Background(), "[ACTION:run|rm -rf /]", state, nil)
	if ran != 1 {
		t.Error("destructive command dispatched with safety off")
	}
	if !strings.Contains(outcome.Results[0].DisplayText, "blocked") {
		t.Errorf("destructive result wrong: %+v", outcome.Results[0])
	}
}

func TestExecute_EventLogRecordsPipeline(t *testing.T) {
	e, registry := newTestExecutor()
	registry.Register("note", func(ctx context.Context, req *Request) (string, error) {
		return "noted", nil
	})

	state := newSession(session.Capabilities{SafetyEnabled: true})
	e.Execute(context.Background(), "[ACTION:note|x] [ACTION:run|ls; id]", state, nil)

	var types []string
	for _, evt := range state.Events {
		types = append(types, evt.Type)
	}
	want := []string{
		session.EventDirective, session.EventHandlerResult,
		session.EventDirective, session.EventPolicyDeny,
	}
	if len(types) != len(want) {
		t.Fatalf("event log wrong: %v", types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event %d wrong: expected %q, got %q", i, want[i], types[i])
		}
	}
}
