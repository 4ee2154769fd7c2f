package heartbeat

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// RunOutcome classifies one completed heartbeat run.
type RunOutcome string

const (
	OutcomeSuccess RunOutcome = "success"
	OutcomePartial RunOutcome = "partial"
	OutcomeError   RunOutcome = "error"
)

// SiteState is the persisted per-site run record. Mutated only by the
// manager immediately after a run completes, never mid-run.
type SiteState struct {
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`
	LastResult    RunOutcome `json:"last_result,omitempty"`
	ErrorCount    uint32     `json:"error_count"`
}

// StateStore persists SiteState records keyed by site ID in one JSON
// file, rewritten atomically on every update.
type StateStore struct {
	path   string
	mu     sync.Mutex
	states map[string]SiteState
}

// NewStateStore opens (or creates) the run-state file at path.
func NewStateStore(path string) (*StateStore, error) {
	s := &StateStore{path: path, states: make(map[string]SiteState)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read run state: %w", err)
	}
	if err := json.Unmarshal(data, &s.states); err != nil {
		return nil, fmt.Errorf("corrupt run state file %s: %w", path, err)
	}
	return s, nil
}

// Get returns the recorded state for a site.
func (s *StateStore) Get(siteID string) (SiteState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[siteID]
	return st, ok
}

// Record persists the outcome of one completed run. The timestamp is
// always advanced so a persistently failing site does not retry every
// tick.
func (s *StateStore) Record(siteID string, outcome RunOutcome, failures uint32, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.states[siteID]
	st.LastHeartbeat = &at
	st.LastResult = outcome
	if outcome == OutcomeSuccess {
		st.ErrorCount = 0
	} else {
		st.ErrorCount += failures
	}
	s.states[siteID] = st

	return s.flushLocked()
}

// flushLocked rewrites the state file via a temp file and rename so a
// crash mid-write never leaves a truncated file.
func (s *StateStore) flushLocked() error {
	data, err := json.MarshalIndent(s.states, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write run state: %w", err)
	}
	return os.Rename(tmp, s.path)
}
