package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/agentkit/telemetry"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vinayprograms/companion/internal/credentials"
	"github.com/vinayprograms/companion/internal/events"
	"github.com/vinayprograms/companion/internal/policy"
	"github.com/vinayprograms/companion/internal/sandbox"
	"github.com/vinayprograms/companion/internal/session"
)

var (
	ErrUnknownSite    = errors.New("unknown site")
	ErrNotDue         = errors.New("site not due")
	ErrAlreadyRunning = errors.New("heartbeat already running for site")
)

// TaskResult is the outcome of one declared task within a run.
type TaskResult struct {
	Action      string      `json:"action"`
	Description string      `json:"description,omitempty"`
	Success     bool        `json:"success"`
	Violation   bool        `json:"violation,omitempty"`
	Error       string      `json:"error,omitempty"`
	Data        interface{} `json:"data,omitempty"`
}

// RunResult summarizes one heartbeat run for a site.
type RunResult struct {
	RunID      string        `json:"run_id"`
	SiteID     string        `json:"site_id"`
	Outcome    RunOutcome    `json:"outcome"`
	TasksRun   int           `json:"tasks_run"`
	Failures   int           `json:"failures"`
	Violations int           `json:"violations"`
	Results    []TaskResult  `json:"results,omitempty"`
	Duration   time.Duration `json:"duration"`
	Err        string        `json:"error,omitempty"`
}

// AuditSink receives forensic events for a session log. session.State
// satisfies it; a nil sink drops the events.
type AuditSink interface {
	AddEvent(event session.Event) uint64
}

// Options wires the manager's collaborators. Nil fields get safe
// defaults.
type Options struct {
	Dir     string
	Sandbox *sandbox.Sandbox
	Guard   *policy.Guard
	Creds   *credentials.Store
	State   *StateStore
	Events  events.Publisher
	Audit   AuditSink
	Logger  *logging.Logger
}

// Manager loads site configs from a directory, tracks per-site run
// state and invokes the sandbox for due sites.
type Manager struct {
	dir     string
	sandbox *sandbox.Sandbox
	guard   *policy.Guard
	creds   *credentials.Store
	state   *StateStore
	events  events.Publisher
	audit   AuditSink
	logger  *logging.Logger

	mu      sync.RWMutex
	configs map[string]*Config
	running map[string]bool

	stopCh  chan struct{}
	stopped chan struct{}
}

// NewManager builds a manager over a config directory.
func NewManager(opts Options) *Manager {
	if opts.Guard == nil {
		opts.Guard = policy.NewGuard(nil)
	}
	if opts.Sandbox == nil {
		opts.Sandbox = sandbox.New(nil, opts.Guard, opts.Logger)
	}
	if opts.Events == nil {
		opts.Events = events.NoopPublisher{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.New().WithComponent("heartbeat")
	}
	return &Manager{
		dir:     opts.Dir,
		sandbox: opts.Sandbox,
		guard:   opts.Guard,
		creds:   opts.Creds,
		state:   opts.State,
		events:  opts.Events,
		audit:   opts.Audit,
		logger:  opts.Logger,
		configs: make(map[string]*Config),
		running: make(map[string]bool),
	}
}

// LoadConfigs walks the config directory and replaces the registry
// wholesale. A file that fails to parse or validate is skipped with a
// logged reason; it never aborts loading of the others.
func (m *Manager) LoadConfigs() (int, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read config directory: %w", err)
	}

	configs := make(map[string]*Config)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(m.dir, entry.Name())

		cfg, err := LoadConfigFile(path)
		if err != nil {
			m.logger.Warn("skipping config", map[string]interface{}{
				"file":   entry.Name(),
				"reason": err.Error(),
			})
			continue
		}
		if err := cfg.Validate(m.guard); err != nil {
			m.logger.SecurityWarning("config rejected", map[string]interface{}{
				"file":   entry.Name(),
				"reason": err.Error(),
			})
			continue
		}
		if _, dup := configs[cfg.SiteID]; dup {
			m.logger.Warn("skipping config", map[string]interface{}{
				"file":   entry.Name(),
				"reason": fmt.Sprintf("duplicate site_id %q", cfg.SiteID),
			})
			continue
		}
		configs[cfg.SiteID] = cfg
	}

	m.mu.Lock()
	m.configs = configs
	m.mu.Unlock()

	m.logger.Info("configs loaded", map[string]interface{}{
		"dir":   m.dir,
		"sites": len(configs),
	})
	return len(configs), nil
}

// Sites returns all registered site IDs, sorted.
func (m *Manager) Sites() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sites := make([]string, 0, len(m.configs))
	for id := range m.configs {
		sites = append(sites, id)
	}
	sort.Strings(sites)
	return sites
}

// Config returns the registered config for a site.
func (m *Manager) Config(siteID string) (*Config, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.configs[siteID]
	return cfg, ok
}

// ShouldRun reports whether a site is enabled and due: never run, or
// elapsed time past its interval. An interval of zero is always due.
func (m *Manager) ShouldRun(siteID string) bool {
	m.mu.RLock()
	cfg, ok := m.configs[siteID]
	m.mu.RUnlock()
	if !ok || !cfg.Enabled {
		return false
	}
	return m.due(cfg)
}

func (m *Manager) due(cfg *Config) bool {
	if m.state == nil {
		return true
	}
	st, ok := m.state.Get(cfg.SiteID)
	if !ok || st.LastHeartbeat == nil {
		return true
	}
	interval := time.Duration(cfg.IntervalHours * float64(time.Hour))
	return time.Since(*st.LastHeartbeat) >= interval
}

// PendingSites returns the sites due for a run this tick.
func (m *Manager) PendingSites() []string {
	var pending []string
	for _, id := range m.Sites() {
		if m.ShouldRun(id) {
			pending = append(pending, id)
		}
	}
	return pending
}

// RunHeartbeat executes one site's task list. force bypasses the due
// check (manual triggers) but still re-validates the config and still
// enforces the sandbox. Two runs for the same site never overlap.
func (m *Manager) RunHeartbeat(ctx context.Context, siteID string, force bool) (*RunResult, error) {
	m.mu.Lock()
	cfg, ok := m.configs[siteID]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrUnknownSite, siteID)
	}
	if m.running[siteID] {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrAlreadyRunning, siteID)
	}
	// Re-check dueness at execution time, not only at tick-scan time.
	if !force && (!cfg.Enabled || !m.due(cfg)) {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrNotDue, siteID)
	}
	m.running[siteID] = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.running, siteID)
		m.mu.Unlock()
	}()

	return m.execute(ctx, cfg, force), nil
}

func (m *Manager) execute(ctx context.Context, cfg *Config, force bool) *RunResult {
	tracer := telemetry.GetTracer()
	ctx, span := tracer.StartSpan(ctx, "heartbeat.run")
	span.SetAttributes(
		attribute.String("heartbeat.site", cfg.SiteID),
		attribute.Bool("heartbeat.forced", force),
	)
	defer span.End()

	start := time.Now()
	result := &RunResult{
		RunID:  uuid.NewString(),
		SiteID: cfg.SiteID,
	}

	// A stale registry entry could have been edited since load;
	// validation always runs again at execution time.
	if err := cfg.Validate(m.guard); err != nil {
		result.Outcome = OutcomeError
		result.Err = err.Error()
		result.Duration = time.Since(start)
		span.RecordError(err)
		m.finish(result)
		return result
	}

	if len(cfg.Tasks) == 0 {
		result.Outcome = OutcomeError
		result.Err = "no tasks declared"
		result.Duration = time.Since(start)
		m.finish(result)
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(cfg.TimeoutSeconds)*time.Second)
	defer cancel()

	sbctx := sandbox.NewContext(cfg.SiteID, cfg.APIKeyName, cfg.MaxRequestsPerHeartbeat, cfg.TimeoutSeconds, m.creds)

	for _, task := range cfg.Tasks {
		tr := TaskResult{Action: task.Action, Description: task.Description}

		data, err := m.sandbox.ExecuteTask(ctx, sbctx, task.Action, task.Params)
		if err != nil {
			tr.Error = err.Error()
			result.Failures++
			if v, ok := sandbox.AsViolation(err); ok {
				tr.Violation = true
				result.Violations++
				m.alert(cfg.SiteID, task.Action, v)
			}
		} else {
			tr.Success = true
			tr.Data = data
		}

		result.TasksRun++
		result.Results = append(result.Results, tr)
	}

	switch {
	case result.Failures == 0:
		result.Outcome = OutcomeSuccess
	case result.Failures < result.TasksRun:
		result.Outcome = OutcomePartial
	default:
		result.Outcome = OutcomeError
	}
	result.Duration = time.Since(start)

	span.SetAttributes(
		attribute.String("heartbeat.outcome", string(result.Outcome)),
		attribute.Int("heartbeat.tasks", result.TasksRun),
	)
	m.finish(result)
	return result
}

// finish persists the classification. The timestamp advances for
// every outcome so a failing site keeps its normal cadence.
func (m *Manager) finish(result *RunResult) {
	if m.audit != nil {
		ok := result.Outcome == OutcomeSuccess
		m.audit.AddEvent(session.Event{
			Type:       session.EventHeartbeatRun,
			Site:       result.SiteID,
			Success:    &ok,
			Content:    fmt.Sprintf("%s, %d tasks, %d failed", result.Outcome, result.TasksRun, result.Failures),
			Reason:     result.Err,
			DurationMs: result.Duration.Milliseconds(),
		})
	}
	if m.state != nil {
		if err := m.state.Record(result.SiteID, result.Outcome, uint32(result.Failures), time.Now()); err != nil {
			m.logger.Error("failed to persist run state", map[string]interface{}{
				"site":  result.SiteID,
				"error": err.Error(),
			})
		}
	}
	m.logger.Info("heartbeat completed", map[string]interface{}{
		"site":       result.SiteID,
		"run_id":     result.RunID,
		"outcome":    string(result.Outcome),
		"tasks":      result.TasksRun,
		"failures":   result.Failures,
		"violations": result.Violations,
	})
}

// alert raises a sandbox violation out of band. Violations get the
// log-and-alert treatment rather than the log-and-continue one
// ordinary failures get.
func (m *Manager) alert(siteID, action string, v *sandbox.Violation) {
	if m.audit != nil {
		m.audit.AddEvent(session.Event{
			Type:   session.EventViolation,
			Site:   siteID,
			Action: action,
			Kind:   string(v.Kind),
			Reason: v.Reason,
		})
	}
	if err := m.events.PublishViolation(events.Alert{
		Site:   siteID,
		Action: action,
		Kind:   string(v.Kind),
		Reason: v.Reason,
	}); err != nil {
		m.logger.Error("failed to publish violation alert", map[string]interface{}{
			"site":  siteID,
			"error": err.Error(),
		})
	}
}

// Start launches the scheduler loop: every tick, due sites run
// concurrently, each with its own context. A config directory watcher
// reloads the registry when files change.
func (m *Manager) Start(tick time.Duration) error {
	m.mu.Lock()
	if m.stopCh != nil {
		m.mu.Unlock()
		return errors.New("manager already started")
	}
	m.stopCh = make(chan struct{})
	m.stopped = make(chan struct{})
	m.mu.Unlock()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(m.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	go m.loop(tick, watcher)
	return nil
}

func (m *Manager) loop(tick time.Duration, watcher *fsnotify.Watcher) {
	defer close(m.stopped)
	defer watcher.Close()

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	// Debounce timer for config reloads; editors fire several events
	// per save.
	var reload <-chan time.Time

	for {
		select {
		case <-m.stopCh:
			return

		case <-ticker.C:
			for _, siteID := range m.PendingSites() {
				go func(id string) {
					if _, err := m.RunHeartbeat(context.Background(), id, false); err != nil &&
						!errors.Is(err, ErrNotDue) && !errors.Is(err, ErrAlreadyRunning) {
						m.logger.Error("heartbeat failed", map[string]interface{}{
							"site":  id,
							"error": err.Error(),
						})
					}
				}(siteID)
			}

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				reload = time.After(500 * time.Millisecond)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("config watcher error", map[string]interface{}{"error": err.Error()})

		case <-reload:
			reload = nil
			if _, err := m.LoadConfigs(); err != nil {
				m.logger.Error("config reload failed", map[string]interface{}{"error": err.Error()})
			}
		}
	}
}

// Stop halts the scheduler loop and waits for it to exit. In-flight
// site runs complete on their own timeouts.
func (m *Manager) Stop() {
	m.mu.Lock()
	stopCh, stopped := m.stopCh, m.stopped
	m.stopCh, m.stopped = nil, nil
	m.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	<-stopped
}
