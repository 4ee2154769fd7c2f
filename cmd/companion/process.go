package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/muesli/reflow/wordwrap"
	"github.com/vinayprograms/companion/internal/executor"
	"github.com/vinayprograms/companion/internal/session"
)

const outputWidth = 80

// runProcess executes one model response through the directive pipeline.
func runProcess(cmd *ProcessCmd) error {
	rt, err := newRuntime(cmd.Config)
	if err != nil {
		return err
	}
	defer rt.cleanup()

	text := cmd.Text
	if text == "" {
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		text = string(raw)
	}

	store, err := rt.sessionStore()
	if err != nil {
		return err
	}

	var state *session.State
	if cmd.Session != "" {
		state, err = store.Load(cmd.Session)
		if err != nil {
			return fmt.Errorf("loading session %q: %w", cmd.Session, err)
		}
	} else {
		state = session.New(session.Capabilities{
			NetworkEnabled: rt.cfg.Session.NetworkEnabled && !cmd.NoNetwork,
			SafetyEnabled:  rt.cfg.Session.SafetyEnabled && !cmd.NoSafety,
		})
	}

	consent := executor.AllowAll
	if cmd.Confirm || rt.cfg.Policy.ConsentRequired {
		consent = promptConsent()
	}

	outcome := rt.exec.Execute(context.Background(), text, state, consent)
	rt.telem.LogEvent("directives_processed", map[string]interface{}{
		"session":    state.ID,
		"directives": len(outcome.Results),
	})

	if err := store.Save(state); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to save session: %v\n", err)
	}

	if cmd.JSON {
		return printJSON(state, outcome)
	}
	printOutcome(state, outcome)
	return nil
}

// promptConsent asks on the terminal before each dispatch. The prompt
// reads from /dev/tty so it works when the response text came on stdin.
func promptConsent() executor.ConsentFunc {
	in := os.Stdin
	if tty, err := os.Open("/dev/tty"); err == nil {
		in = tty
	}
	reader := bufio.NewReader(in)

	return func(action, argument string) bool {
		preview := argument
		if len(preview) > 60 {
			preview = preview[:60] + "..."
		}
		fmt.Fprintf(os.Stderr, "Allow [%s] %s? [y/N] ", action, preview)
		line, err := reader.ReadString('\n')
		if err != nil {
			return false
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes"
	}
}

// printOutcome renders one turn's results for the terminal.
func printOutcome(state *session.State, outcome *executor.Outcome) {
	if outcome.Cleaned != "" {
		fmt.Println(wordwrap.String(outcome.Cleaned, outputWidth))
	}

	if outcome.Mood != "" {
		fmt.Println(moodStyle.Render("mood: " + outcome.Mood))
	}

	if len(outcome.Results) > 0 {
		fmt.Println()
		fmt.Println(titleStyle.Render("Actions"))
		for _, r := range outcome.Results {
			marker := successStyle.Render("✓")
			if !r.Success {
				marker = errorStyle.Render("✗")
			}
			fmt.Printf("  %s %s\n", marker, wordwrap.String(r.DisplayText, outputWidth-4))
		}
	}

	fmt.Println(dimStyle.Render("session: " + state.ID))
}

// printJSON emits the outcome as machine-readable JSON.
func printJSON(state *session.State, outcome *executor.Outcome) error {
	type resultJSON struct {
		Text    string `json:"text"`
		Success bool   `json:"success"`
	}
	payload := struct {
		SessionID string       `json:"session_id"`
		Cleaned   string       `json:"cleaned"`
		Mood      string       `json:"mood,omitempty"`
		Results   []resultJSON `json:"results,omitempty"`
		FollowUp  string       `json:"follow_up,omitempty"`
	}{
		SessionID: state.ID,
		Cleaned:   outcome.Cleaned,
		Mood:      outcome.Mood,
		FollowUp:  outcome.FollowUp,
	}
	for _, r := range outcome.Results {
		payload.Results = append(payload.Results, resultJSON{Text: r.DisplayText, Success: r.Success})
	}

	out, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
