package main

import (
	"fmt"

	"github.com/vinayprograms/companion/internal/replay"
)

// runReplay renders a session audit log, or lists sessions when no ID
// was given.
func runReplay(cmd *ReplayCmd) error {
	rt, err := newRuntime(cmd.Config)
	if err != nil {
		return err
	}
	defer rt.cleanup()

	store, err := rt.sessionStore()
	if err != nil {
		return err
	}

	if cmd.Session == "" {
		ids, err := store.List()
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Println("no sessions recorded")
			return nil
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	}

	render := func() (string, error) {
		state, err := store.Load(cmd.Session)
		if err != nil {
			return "", err
		}
		return replay.Render(state, cmd.Verbose), nil
	}

	if cmd.Follow {
		return replay.PageLive("session "+cmd.Session, store.Path(cmd.Session), render)
	}

	content, err := render()
	if err != nil {
		return fmt.Errorf("loading session %q: %w", cmd.Session, err)
	}

	if cmd.NoPager {
		fmt.Print(content)
		return nil
	}
	return replay.Page("session "+cmd.Session, content)
}
