// Package main is the entry point for the companion CLI.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/vinayprograms/companion/internal/credentials"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// globalCreds holds loaded credentials (file > env fallback happens in Get)
var globalCreds *credentials.Store

func init() {
	// Load credentials from standard locations
	if creds, _, err := credentials.Load(); err == nil && creds != nil {
		globalCreds = creds
	}

	// Load .env for any additional env vars
	_ = godotenv.Load()
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("companion"),
		kong.Description("Guarded directive execution for conversational agents"),
		kongVars(),
	)

	var err error
	switch ctx.Command() {
	case "process", "process <text>":
		err = runProcess(&cli.Process)
	case "heartbeat serve":
		err = runHeartbeatServe(&cli.Heartbeat.Serve)
	case "heartbeat run <site>":
		err = runHeartbeatOnce(&cli.Heartbeat.Run)
	case "heartbeat list":
		err = runHeartbeatList(&cli.Heartbeat.List)
	case "replay", "replay <session>":
		err = runReplay(&cli.Replay)
	case "validate", "validate <path>":
		err = runValidate(&cli.Validate)
	case "setup":
		err = runSetup()
	case "version":
		fmt.Printf("companion version %s (commit: %s, built: %s)\n", version, commit, buildTime)
	default:
		err = fmt.Errorf("unknown command: %s", ctx.Command())
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
