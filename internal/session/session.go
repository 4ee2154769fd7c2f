// Package session tracks per-conversation state (mood, capability
// flags) and persists a forensic event log of every directive verdict
// and heartbeat outcome.
package session

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Event types for the session log - unified forensic events
const (
	EventDirective     = "directive"      // Directive parsed and queued
	EventPolicyDeny    = "policy_deny"    // Security guard denied a directive
	EventConsentDeny   = "consent_deny"   // User declined an allowed directive
	EventNetworkDeny   = "network_deny"   // Network gate refused a handler
	EventHandlerResult = "handler_result" // Handler completed
	EventMoodChange    = "mood_change"    // Mood token extracted from a response
	EventHeartbeatRun  = "heartbeat_run"  // Scheduled run completed
	EventViolation     = "violation"      // Sandbox violation raised
)

// Capabilities are the explicit gate inputs for directive execution.
// They travel with the state struct rather than an ambient lookup so
// the gates' inputs are part of the call signature.
type Capabilities struct {
	NetworkEnabled bool `json:"network_enabled"`
	SafetyEnabled  bool `json:"safety_enabled"`
}

// State is one conversation's mutable session record.
type State struct {
	ID        string       `json:"id"`
	Mood      string       `json:"mood,omitempty"`
	Caps      Capabilities `json:"caps"`
	Events    []Event      `json:"events"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`

	// Internal state (not persisted)
	seqCounter uint64
	mu         sync.Mutex
}

// Event is a single entry in the session log. This is THE forensic
// record - audit tooling reads from here.
type Event struct {
	SeqID     uint64    `json:"seq"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// Correlation - links a directive to its verdict and result
	CorrelationID string `json:"corr_id,omitempty"`

	// Directive context
	Action   string `json:"action,omitempty"`
	Argument string `json:"argument,omitempty"`

	// Heartbeat context
	Site string `json:"site,omitempty"`

	// Verdict detail
	Kind   string `json:"kind,omitempty"`
	Reason string `json:"reason,omitempty"`

	// Outcome
	Content    string `json:"content,omitempty"`
	Success    *bool  `json:"success,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// New creates a fresh session state with the given capabilities.
func New(caps Capabilities) *State {
	now := time.Now()
	return &State{
		ID:        generateID(),
		Caps:      caps,
		Events:    []Event{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *State) nextSeqID() uint64 {
	return atomic.AddUint64(&s.seqCounter, 1)
}

// AddEvent appends an event with automatic sequencing.
func (s *State) AddEvent(event Event) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	event.SeqID = s.nextSeqID()
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	s.Events = append(s.Events, event)
	s.UpdatedAt = time.Now()
	return event.SeqID
}

// SetMood records a mood change. Mood is advisory and never gates
// execution.
func (s *State) SetMood(mood string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mood == "" || mood == s.Mood {
		return
	}
	s.Mood = mood
	s.UpdatedAt = time.Now()
}

// StartCorrelation generates a new correlation ID for linking related
// events.
func (s *State) StartCorrelation() string {
	b := make([]byte, 4)
	rand.Read(b)
	return hex.EncodeToString(b)
}

func generateID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// Store is the interface for session persistence.
type Store interface {
	Save(s *State) error
	Load(id string) (*State, error)
}

// JSONL record types for the streaming format
const (
	RecordTypeHeader = "header"
	RecordTypeEvent  = "event"
	RecordTypeFooter = "footer"
)

// JSONLRecord is a wrapper for JSONL lines with type discrimination.
type JSONLRecord struct {
	RecordType string `json:"_type"`

	// Header fields (when _type == "header")
	ID        string    `json:"id,omitempty"`
	Caps      *Capabilities `json:"caps,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`

	// Event fields (when _type == "event")
	*Event `json:",omitempty"`

	// Footer fields (when _type == "footer")
	Mood      string    `json:"mood,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// FileStore implements Store using one JSONL file per session.
type FileStore struct {
	dir string
}

// NewFileStore creates a file-based store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir}, nil
}

// Save persists a session to disk in JSONL format.
func (fs *FileStore) Save(s *State) error {
	if err := os.MkdirAll(fs.dir, 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	path := filepath.Join(fs.dir, s.ID+".jsonl")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create session file: %w", err)
	}
	defer f.Close()

	caps := s.Caps
	header := JSONLRecord{
		RecordType: RecordTypeHeader,
		ID:         s.ID,
		Caps:       &caps,
		CreatedAt:  s.CreatedAt,
	}
	if err := writeLine(f, header); err != nil {
		return err
	}

	for _, evt := range s.Events {
		evtCopy := evt
		if err := writeLine(f, JSONLRecord{RecordType: RecordTypeEvent, Event: &evtCopy}); err != nil {
			return err
		}
	}

	footer := JSONLRecord{
		RecordType: RecordTypeFooter,
		Mood:       s.Mood,
		UpdatedAt:  s.UpdatedAt,
	}
	return writeLine(f, footer)
}

func writeLine(f *os.File, record JSONLRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		return err
	}
	_, err = f.WriteString("\n")
	return err
}

// Path returns the on-disk location of a session log.
func (fs *FileStore) Path(id string) string {
	return filepath.Join(fs.dir, id+".jsonl")
}

// List returns all stored session IDs, newest first.
func (fs *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return nil, err
	}

	type candidate struct {
		id  string
		mod time.Time
	}
	var found []candidate
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		found = append(found, candidate{
			id:  strings.TrimSuffix(entry.Name(), ".jsonl"),
			mod: info.ModTime(),
		})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].mod.After(found[j].mod) })

	ids := make([]string, len(found))
	for i, c := range found {
		ids[i] = c.id
	}
	return ids, nil
}

// Load reads a session back from its JSONL file.
func (fs *FileStore) Load(id string) (*State, error) {
	f, err := os.Open(filepath.Join(fs.dir, id+".jsonl"))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s := &State{Events: []Event{}}

	// bufio.Reader instead of Scanner - no line length limits
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				if len(bytes.TrimSpace(line)) > 0 {
					if parseErr := parseJSONLLine(line, s); parseErr != nil {
						return nil, parseErr
					}
				}
				break
			}
			return nil, fmt.Errorf("error reading session log: %w", err)
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if err := parseJSONLLine(line, s); err != nil {
			return nil, err
		}
	}

	// Restore sequence counter from the last event
	if len(s.Events) > 0 {
		s.seqCounter = s.Events[len(s.Events)-1].SeqID
	}
	return s, nil
}

func parseJSONLLine(line []byte, s *State) error {
	var record JSONLRecord
	if err := json.Unmarshal(line, &record); err != nil {
		return fmt.Errorf("failed to parse session record: %w", err)
	}

	switch record.RecordType {
	case RecordTypeHeader:
		s.ID = record.ID
		if record.Caps != nil {
			s.Caps = *record.Caps
		}
		s.CreatedAt = record.CreatedAt
	case RecordTypeEvent:
		if record.Event != nil {
			s.Events = append(s.Events, *record.Event)
		}
	case RecordTypeFooter:
		s.Mood = record.Mood
		s.UpdatedAt = record.UpdatedAt
	}
	return nil
}
