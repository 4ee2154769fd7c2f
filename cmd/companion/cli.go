// Package main defines the CLI structure using kong.
package main

import "github.com/alecthomas/kong"

// CLI defines the command-line interface.
type CLI struct {
	Process   ProcessCmd   `cmd:"" help:"Process a model response and execute its directives"`
	Heartbeat HeartbeatCmd `cmd:"" help:"Scheduled site task commands"`
	Replay    ReplayCmd    `cmd:"" help:"Replay a session audit log"`
	Validate  ValidateCmd  `cmd:"" help:"Validate heartbeat task configs"`
	Setup     SetupCmd     `cmd:"" help:"Interactive setup wizard"`
	Version   VersionCmd   `cmd:"" help:"Show version information"`
}

// ProcessCmd runs the directive pipeline over one model response.
type ProcessCmd struct {
	Text      string `arg:"" optional:"" help:"Response text (reads stdin when omitted)"`
	Config    string `help:"Config file path"`
	Session   string `help:"Resume an existing session by ID"`
	NoNetwork bool   `help:"Disable network-reaching directives"`
	NoSafety  bool   `help:"Disable the session safety gate (destructive commands stay blocked)"`
	Confirm   bool   `help:"Prompt before each directive dispatch"`
	JSON      bool   `help:"Emit results as JSON"`
}

// HeartbeatCmd groups the scheduler subcommands.
type HeartbeatCmd struct {
	Serve HeartbeatServeCmd `cmd:"" help:"Run the heartbeat scheduler"`
	Run   HeartbeatRunCmd   `cmd:"" help:"Run one site's heartbeat now"`
	List  HeartbeatListCmd  `cmd:"" help:"List configured sites and their state"`
}

// HeartbeatServeCmd runs the scheduler loop until interrupted.
type HeartbeatServeCmd struct {
	Config string `help:"Config file path"`
}

// HeartbeatRunCmd executes a single site heartbeat.
type HeartbeatRunCmd struct {
	Site   string `arg:"" help:"Site ID to run"`
	Config string `help:"Config file path"`
	Force  bool   `help:"Run even if the site is not due"`
}

// HeartbeatListCmd lists configured sites.
type HeartbeatListCmd struct {
	Config string `help:"Config file path"`
}

// ReplayCmd replays a session audit log.
type ReplayCmd struct {
	Session string `arg:"" optional:"" help:"Session ID (lists sessions when omitted)"`
	Config  string `help:"Config file path"`
	Verbose int    `short:"v" type:"counter" help:"Verbosity level (-v, -vv)"`
	NoPager bool   `help:"Disable pager for output"`
	Follow  bool   `help:"Keep the view open and refresh as the session grows"`
}

// ValidateCmd validates heartbeat config files without running them.
type ValidateCmd struct {
	Path string `arg:"" optional:"" help:"Config file or directory (defaults to the configured heartbeat dir)"`
}

// SetupCmd runs the interactive setup wizard.
type SetupCmd struct{}

// VersionCmd shows version information.
type VersionCmd struct{}

// kongVars returns variables for kong (version info).
func kongVars() kong.Vars {
	return kong.Vars{
		"version": version,
	}
}
