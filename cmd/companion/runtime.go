// Package main provides runtime wiring for the CLI commands.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/agentkit/telemetry"
	"github.com/vinayprograms/companion/internal/config"
	"github.com/vinayprograms/companion/internal/events"
	"github.com/vinayprograms/companion/internal/executor"
	"github.com/vinayprograms/companion/internal/heartbeat"
	"github.com/vinayprograms/companion/internal/policy"
	"github.com/vinayprograms/companion/internal/sandbox"
	"github.com/vinayprograms/companion/internal/session"
)

// runtime holds the wired components shared by the CLI commands.
type runtime struct {
	cfg    *config.Config
	logger *logging.Logger
	guard  *policy.Guard
	telem  telemetry.Exporter
	events events.Publisher

	exec     *executor.Executor
	sessions *session.FileStore

	// Cleanup
	closers []func()
}

// newRuntime loads configuration and wires the shared components.
func newRuntime(configPath string) (*runtime, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	rt := &runtime{
		cfg:    cfg,
		logger: logging.New().WithComponent("companion"),
	}

	if err := rt.setupGuard(); err != nil {
		return nil, err
	}
	if err := rt.setupTelemetry(); err != nil {
		rt.cleanup()
		return nil, err
	}
	rt.setupEvents()
	rt.setupExecutor()
	return rt, nil
}

// loadConfig reads the config file, falling back to defaults when no
// file exists and none was requested explicitly.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	cfg, err := config.LoadFile("companion.toml")
	if os.IsNotExist(err) {
		return config.Default(), nil
	}
	return cfg, err
}

// setupGuard builds the policy guard with operator extensions applied.
func (rt *runtime) setupGuard() error {
	rules := policy.DefaultRules()
	if len(rt.cfg.Policy.ExtraPatterns) > 0 {
		if err := rules.AddContentPatterns(rt.cfg.Policy.ExtraPatterns); err != nil {
			return fmt.Errorf("invalid policy pattern in config: %w", err)
		}
	}
	if len(rt.cfg.Policy.ProtectedPaths) > 0 {
		rules.AddProtectedPrefixes(rt.cfg.Policy.ProtectedPaths)
	}
	rt.guard = policy.NewGuard(rules)
	return nil
}

// setupTelemetry creates the telemetry exporter.
func (rt *runtime) setupTelemetry() error {
	var err error
	if rt.cfg.Telemetry.Enabled {
		rt.telem, err = telemetry.NewExporter(rt.cfg.Telemetry.Protocol, rt.cfg.Telemetry.Endpoint)
		if err != nil {
			return fmt.Errorf("creating telemetry exporter: %w", err)
		}
	} else {
		rt.telem = telemetry.NewNoopExporter()
	}
	rt.addCloser(func() { rt.telem.Close() })
	return nil
}

// setupEvents connects the violation alert publisher. A missing broker
// degrades to a no-op publisher rather than failing startup.
func (rt *runtime) setupEvents() {
	if rt.cfg.Events.NATSURL == "" {
		rt.events = events.NoopPublisher{}
		return
	}
	pub, err := events.NewNATSPublisher(rt.cfg.Events.NATSURL, rt.cfg.Events.Subject, rt.logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: alert broker unavailable: %v\n", err)
		rt.events = events.NoopPublisher{}
		return
	}
	rt.events = pub
	rt.addCloser(pub.Close)
}

// setupExecutor builds the directive executor with the stock handlers.
func (rt *runtime) setupExecutor() {
	registry := executor.NewRegistry()
	executor.RegisterBuiltins(registry, executor.BuiltinConfig{
		RunTimeout:     time.Duration(rt.cfg.Executor.RunTimeout) * time.Second,
		MediaDir:       rt.cfg.Executor.MediaDir,
		SearchURL:      rt.cfg.Executor.SearchURL,
		MediaSearchURL: rt.cfg.Executor.MediaSearchURL,
	})
	rt.exec = executor.New(registry, rt.guard, rt.logger)
}

// sessionStore lazily opens the session log directory.
func (rt *runtime) sessionStore() (*session.FileStore, error) {
	if rt.sessions != nil {
		return rt.sessions, nil
	}
	store, err := session.NewFileStore(config.ExpandPath(rt.cfg.Session.Dir))
	if err != nil {
		return nil, fmt.Errorf("opening session store: %w", err)
	}
	rt.sessions = store
	return store, nil
}

// auditSession opens a fresh session log for heartbeat runs and
// returns it with a save function. Save failures are warnings: the
// audit trail never blocks a run.
func (rt *runtime) auditSession() (*session.State, func(), error) {
	store, err := rt.sessionStore()
	if err != nil {
		return nil, nil, err
	}
	state := session.New(session.Capabilities{
		NetworkEnabled: rt.cfg.Session.NetworkEnabled,
		SafetyEnabled:  rt.cfg.Session.SafetyEnabled,
	})
	save := func() {
		if len(state.Events) == 0 {
			return
		}
		if err := store.Save(state); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to save audit log: %v\n", err)
		}
	}
	return state, save, nil
}

// heartbeatManager wires a manager over the configured heartbeat dir.
// Runs and violations are appended to the audit sink when one is given.
func (rt *runtime) heartbeatManager(audit heartbeat.AuditSink) (*heartbeat.Manager, *heartbeat.StateStore, error) {
	state, err := heartbeat.NewStateStore(config.ExpandPath(rt.cfg.Heartbeat.StatePath))
	if err != nil {
		return nil, nil, fmt.Errorf("opening heartbeat state: %w", err)
	}

	registry := sandbox.NewRegistry()
	sandbox.RegisterBuiltins(registry, rt.logger)

	mgr := heartbeat.NewManager(heartbeat.Options{
		Dir:     config.ExpandPath(rt.cfg.Heartbeat.Dir),
		Sandbox: sandbox.New(registry, rt.guard, rt.logger),
		Guard:   rt.guard,
		Creds:   globalCreds,
		State:   state,
		Events:  rt.events,
		Audit:   audit,
		Logger:  rt.logger,
	})
	if _, err := mgr.LoadConfigs(); err != nil {
		return nil, nil, fmt.Errorf("loading heartbeat configs: %w", err)
	}
	return mgr, state, nil
}

// cleanup runs all registered cleanup functions.
func (rt *runtime) cleanup() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

// addCloser registers a cleanup function.
func (rt *runtime) addCloser(fn func()) {
	rt.closers = append(rt.closers, fn)
}
