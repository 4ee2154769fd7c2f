package replay

import (
	"fmt"
	"strings"

	"github.com/vinayprograms/companion/internal/session"
)

// Render produces a readable audit timeline for one session. Verbosity
// 0 truncates arguments and content; higher levels show them in full.
func Render(s *session.State, verbose int) string {
	var sb strings.Builder

	sb.WriteString(renderHeader(s))
	sb.WriteString("\n")

	for _, evt := range s.Events {
		sb.WriteString(renderEvent(evt, verbose))
		sb.WriteString("\n")
	}

	sb.WriteString(renderSummary(s))
	return sb.String()
}

func renderHeader(s *session.State) string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Session "+s.ID) + "\n")
	sb.WriteString(labelStyle.Render("started: ") + valueStyle.Render(s.CreatedAt.Format("2006-01-02 15:04:05")) + "\n")

	caps := []string{}
	if s.Caps.NetworkEnabled {
		caps = append(caps, "network")
	}
	if s.Caps.SafetyEnabled {
		caps = append(caps, "safety")
	}
	if len(caps) == 0 {
		caps = append(caps, "none")
	}
	sb.WriteString(labelStyle.Render("caps:    ") + valueStyle.Render(strings.Join(caps, ", ")) + "\n")

	if s.Mood != "" {
		sb.WriteString(labelStyle.Render("mood:    ") + moodStyle.Render(s.Mood) + "\n")
	}
	sb.WriteString(divider + "\n")
	return sb.String()
}

func renderEvent(evt session.Event, verbose int) string {
	seq := seqStyle.Render(fmt.Sprintf("%d", evt.SeqID))
	ts := timeStyle.Render(evt.Timestamp.Format("15:04:05"))

	return fmt.Sprintf("%s │ %s │ %s", seq, ts, describeEvent(evt, verbose))
}

func describeEvent(evt session.Event, verbose int) string {
	switch evt.Type {
	case session.EventDirective:
		return directiveStyle.Render("["+evt.Action+"]") + " " + dimStyle.Render(clip(evt.Argument, verbose))

	case session.EventPolicyDeny:
		detail := evt.Kind
		if verbose > 0 && evt.Reason != "" {
			detail = evt.Reason
		}
		return denyStyle.Render("✗ denied ["+evt.Action+"]") + " " + dimStyle.Render(detail)

	case session.EventConsentDeny:
		return gateStyle.Render("⊘ declined [" + evt.Action + "]")

	case session.EventNetworkDeny:
		return gateStyle.Render("⊘ network blocked [" + evt.Action + "]")

	case session.EventHandlerResult:
		marker := successStyle.Render("✓")
		if evt.Success != nil && !*evt.Success {
			marker = errorStyle.Render("✗")
		}
		out := marker + " " + directiveStyle.Render("["+evt.Action+"]")
		if evt.DurationMs > 0 {
			out += " " + dimStyle.Render(fmt.Sprintf("%dms", evt.DurationMs))
		}
		if verbose > 0 && evt.Content != "" {
			out += " " + dimStyle.Render(clip(evt.Content, verbose))
		}
		return out

	case session.EventMoodChange:
		return moodStyle.Render("mood → " + evt.Content)

	case session.EventHeartbeatRun:
		marker := successStyle.Render("✓")
		if evt.Success != nil && !*evt.Success {
			marker = errorStyle.Render("✗")
		}
		return marker + " " + heartbeatStyle.Render("heartbeat "+evt.Site) + " " + dimStyle.Render(evt.Content)

	case session.EventViolation:
		return violationStyle.Render("⚠ violation ("+evt.Kind+")") + " " + dimStyle.Render(clip(evt.Reason, verbose))

	default:
		return valueStyle.Render(evt.Type)
	}
}

func renderSummary(s *session.State) string {
	var directives, denials, violations, failures int
	for _, evt := range s.Events {
		switch evt.Type {
		case session.EventDirective:
			directives++
		case session.EventPolicyDeny, session.EventConsentDeny, session.EventNetworkDeny:
			denials++
		case session.EventViolation:
			violations++
		case session.EventHandlerResult:
			if evt.Success != nil && !*evt.Success {
				failures++
			}
		}
	}

	var sb strings.Builder
	sb.WriteString(divider + "\n")
	sb.WriteString(labelStyle.Render(fmt.Sprintf("%d events │ %d directives │ ", len(s.Events), directives)))
	if denials > 0 {
		sb.WriteString(gateStyle.Render(fmt.Sprintf("%d denied", denials)))
	} else {
		sb.WriteString(labelStyle.Render("0 denied"))
	}
	sb.WriteString(labelStyle.Render(" │ "))
	if violations > 0 {
		sb.WriteString(violationStyle.Render(fmt.Sprintf("%d violations", violations)))
	} else {
		sb.WriteString(labelStyle.Render("0 violations"))
	}
	sb.WriteString(labelStyle.Render(" │ "))
	if failures > 0 {
		sb.WriteString(errorStyle.Render(fmt.Sprintf("%d failed", failures)))
	} else {
		sb.WriteString(labelStyle.Render("0 failed"))
	}
	sb.WriteString("\n")
	return sb.String()
}

// clip bounds a value for the compact view. Verbose mode shows all of
// it, newlines collapsed so the timeline stays one row per event.
func clip(s string, verbose int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if verbose > 0 {
		return s
	}
	if len(s) > 80 {
		return s[:80] + "..."
	}
	return s
}
