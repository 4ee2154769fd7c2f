// Package executor turns parsed directives into constrained side
// effects. The pipeline per directive: security guard, consent gate,
// handler dispatch, with an orthogonal network gate inside the
// handlers that touch the network.
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vinayprograms/agentkit/logging"

	"github.com/vinayprograms/companion/internal/directive"
	"github.com/vinayprograms/companion/internal/policy"
	"github.com/vinayprograms/companion/internal/session"
)

// ActionResult is one human-readable outcome line for a directive.
type ActionResult struct {
	DisplayText string
	Success     bool
}

// ConsentFunc approves or declines an allowed directive before it
// runs. Invoked synchronously, before any side effect.
type ConsentFunc func(action, argument string) bool

// AllowAll is the default consent callback for headless contexts.
func AllowAll(action, argument string) bool { return true }

// Outcome is everything one conversational turn produced.
type Outcome struct {
	Cleaned  string
	Results  []ActionResult
	Mood     string
	FollowUp string
}

// Executor runs the directive pipeline against a handler registry.
type Executor struct {
	registry *Registry
	guard    *policy.Guard
	logger   *logging.Logger
}

// New builds an executor. Nil arguments select an empty registry, the
// default rules and a fresh logger.
func New(registry *Registry, guard *policy.Guard, logger *logging.Logger) *Executor {
	if registry == nil {
		registry = NewRegistry()
	}
	if guard == nil {
		guard = policy.NewGuard(nil)
	}
	if logger == nil {
		logger = logging.New().WithComponent("executor")
	}
	return &Executor{registry: registry, guard: guard, logger: logger}
}

// Registry exposes the handler registry for startup registration.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Execute parses a model response and runs each directive in source
// order. Directive N's side effect is observable by directive N+1.
// Denied and failed directives never stop their siblings.
func (e *Executor) Execute(ctx context.Context, text string, state *session.State, consent ConsentFunc) *Outcome {
	if consent == nil {
		consent = AllowAll
	}

	parsed := directive.Parse(text)
	outcome := &Outcome{Cleaned: parsed.Cleaned, Mood: parsed.Mood}

	if parsed.Mood != "" {
		state.SetMood(parsed.Mood)
		state.AddEvent(session.Event{Type: session.EventMoodChange, Content: parsed.Mood})
	}

	for _, d := range parsed.Directives {
		outcome.Results = append(outcome.Results, e.executeOne(ctx, d, state, consent))
	}

	if len(outcome.Results) > 0 {
		outcome.FollowUp = buildFollowUp(outcome.Results)
	}
	return outcome
}

func (e *Executor) executeOne(ctx context.Context, d directive.Directive, state *session.State, consent ConsentFunc) ActionResult {
	corr := state.StartCorrelation()
	state.AddEvent(session.Event{
		Type:          session.EventDirective,
		CorrelationID: corr,
		Action:        d.Action,
		Argument:      truncateForLog(d.RawArgument, 500),
	})

	verdict := e.evaluate(d, state)
	if !verdict.Allowed {
		e.logger.SecurityWarning("directive blocked", map[string]interface{}{
			"action": d.Action,
			"kind":   string(verdict.Kind),
			"reason": verdict.Reason,
		})
		state.AddEvent(session.Event{
			Type:          session.EventPolicyDeny,
			CorrelationID: corr,
			Action:        d.Action,
			Kind:          string(verdict.Kind),
			Reason:        verdict.Reason,
		})
		return ActionResult{
			DisplayText: fmt.Sprintf("[%s] blocked: %s", d.Action, verdict.Reason),
		}
	}

	if !consent(d.Action, d.RawArgument) {
		state.AddEvent(session.Event{
			Type:          session.EventConsentDeny,
			CorrelationID: corr,
			Action:        d.Action,
		})
		return ActionResult{
			DisplayText: fmt.Sprintf("[%s] skipped, user denied", d.Action),
		}
	}

	handler, ok := e.registry.Get(d.Action)
	if !ok {
		// A missing handler is a plain not-found result, kept
		// distinguishable from a policy denial.
		return ActionResult{
			DisplayText: fmt.Sprintf("[%s] unknown action", d.Action),
		}
	}

	start := time.Now()
	ctx, span := e.startDirectiveSpan(ctx, d.Action)
	display, err := e.invoke(ctx, handler, d, state)
	e.endDirectiveSpan(span, err)
	durationMs := time.Since(start).Milliseconds()

	if err != nil {
		if IsNetworkBlocked(err) {
			state.AddEvent(session.Event{
				Type:          session.EventNetworkDeny,
				CorrelationID: corr,
				Action:        d.Action,
			})
			return ActionResult{
				DisplayText: fmt.Sprintf("[%s] network blocked: outbound access is disabled for this session", d.Action),
			}
		}
		failed := false
		state.AddEvent(session.Event{
			Type:          session.EventHandlerResult,
			CorrelationID: corr,
			Action:        d.Action,
			Success:       &failed,
			Reason:        err.Error(),
			DurationMs:    durationMs,
		})
		return ActionResult{
			DisplayText: fmt.Sprintf("[%s] failed: %v", d.Action, err),
		}
	}

	succeeded := true
	state.AddEvent(session.Event{
		Type:          session.EventHandlerResult,
		CorrelationID: corr,
		Action:        d.Action,
		Success:       &succeeded,
		Content:       truncateForLog(display, 1000),
		DurationMs:    durationMs,
	})
	return ActionResult{DisplayText: display, Success: true}
}

// evaluate applies the security guard. With safety toggled off only
// the destructive table applies; those patterns are fatal no matter
// what.
func (e *Executor) evaluate(d directive.Directive, state *session.State) policy.Verdict {
	if !state.Caps.SafetyEnabled {
		return e.guard.CheckDestructive(d.RawArgument)
	}
	return e.guard.Evaluate(d.Action, d.RawArgument)
}

// invoke runs a handler, converting a panic into an ordinary failure.
func (e *Executor) invoke(ctx context.Context, handler HandlerFunc, d directive.Directive, state *session.State) (display string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler %q panicked: %v", d.Action, r)
		}
	}()
	return handler(ctx, &Request{
		Action:   d.Action,
		Argument: d.RawArgument,
		Session:  state,
	})
}

// buildFollowUp stages the constrained follow-up turn: the model
// narrates the real collected output and must not emit new tags, so
// an output line can never trigger another action loop.
func buildFollowUp(results []ActionResult) string {
	var b strings.Builder
	b.WriteString("The following actions were just performed, with their real output:\n")
	for _, r := range results {
		b.WriteString("- ")
		b.WriteString(r.DisplayText)
		b.WriteString("\n")
	}
	b.WriteString("\nDescribe these results to the user in your own voice. ")
	b.WriteString("Use only the output shown above; do not invent additional output. ")
	b.WriteString("Do not include any [ACTION:...] or [MOOD:...] tags in this response.")
	return b.String()
}

// truncateForLog truncates a string for logging purposes.
func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
