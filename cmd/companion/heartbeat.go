package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vinayprograms/companion/internal/heartbeat"
)

// runHeartbeatServe runs the scheduler loop until interrupted.
func runHeartbeatServe(cmd *HeartbeatServeCmd) error {
	rt, err := newRuntime(cmd.Config)
	if err != nil {
		return err
	}
	defer rt.cleanup()

	audit, save, err := rt.auditSession()
	if err != nil {
		return err
	}

	mgr, _, err := rt.heartbeatManager(audit)
	if err != nil {
		return err
	}

	tick := time.Duration(rt.cfg.Heartbeat.TickSecs) * time.Second
	if err := mgr.Start(tick); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}

	fmt.Fprintf(os.Stderr, "heartbeat scheduler running (%d sites, tick %s)\n", len(mgr.Sites()), tick)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	fmt.Fprintln(os.Stderr, "shutting down")
	mgr.Stop()
	save()
	return nil
}

// runHeartbeatOnce runs a single site heartbeat immediately.
func runHeartbeatOnce(cmd *HeartbeatRunCmd) error {
	rt, err := newRuntime(cmd.Config)
	if err != nil {
		return err
	}
	defer rt.cleanup()

	audit, save, err := rt.auditSession()
	if err != nil {
		return err
	}

	mgr, _, err := rt.heartbeatManager(audit)
	if err != nil {
		return err
	}

	result, err := mgr.RunHeartbeat(context.Background(), cmd.Site, cmd.Force)
	if errors.Is(err, heartbeat.ErrNotDue) {
		fmt.Printf("site %q is not due (use --force to run anyway)\n", cmd.Site)
		return nil
	}
	if err != nil {
		return err
	}
	save()

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))
	return nil
}

// runHeartbeatList lists configured sites with their run state.
func runHeartbeatList(cmd *HeartbeatListCmd) error {
	rt, err := newRuntime(cmd.Config)
	if err != nil {
		return err
	}
	defer rt.cleanup()

	mgr, state, err := rt.heartbeatManager(nil)
	if err != nil {
		return err
	}

	sites := mgr.Sites()
	if len(sites) == 0 {
		fmt.Println("no sites configured")
		return nil
	}

	for _, siteID := range sites {
		cfg, ok := mgr.Config(siteID)
		if !ok {
			continue
		}

		status := dimStyle.Render("idle")
		if mgr.ShouldRun(siteID) {
			status = warnStyle.Render("due")
		}
		if !cfg.Enabled {
			status = dimStyle.Render("disabled")
		}

		last := "never"
		if st, ok := state.Get(siteID); ok && st.LastHeartbeat != nil {
			last = st.LastHeartbeat.Format(time.RFC3339)
			if st.LastResult != "" {
				last += " (" + string(st.LastResult) + ")"
			}
		}

		fmt.Printf("%s  %s\n", titleStyle.Render(siteID), status)
		fmt.Printf("  %s\n", dimStyle.Render(fmt.Sprintf("every %.1fh, %d tasks, last run %s", cfg.IntervalHours, len(cfg.Tasks), last)))
	}
	return nil
}
