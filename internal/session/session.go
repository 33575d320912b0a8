// Package session records what happened during a run: the conversation of
// every worker task, the actions it executed and the tasks it delegated.
package session

import (
	"bufio"
	"bytes"
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

	"github.com/google/uuid"
)

// Status constants for sessions.
const (
	StatusRunning   = "running"
	StatusComplete  = "complete"
	StatusTimeout   = "timeout"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Event types for the session log.
const (
	// Conversation
	EventSystem    = "system"
	EventUser      = "user"
	EventAssistant = "assistant"

	// Task lifecycle
	EventTaskStart = "task_start"
	EventTaskEnd   = "task_end"
	EventPhase     = "phase"
	EventPlan      = "plan"
	EventLearning  = "learning"

	// Actions
	EventToolCall   = "tool_call"
	EventToolResult = "tool_result"
	EventRejected   = "action_rejected"
	EventDiagnostic = "diagnostic" // block dropped by the parser

	// Scheduler
	EventDelegation = "delegation"
)

// Session is one run of the agent. A run may drive several tasks.
type Session struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Inputs    map[string]string `json:"inputs"`
	Status    string            `json:"status"`
	Result    string            `json:"result,omitempty"`
	Error     string            `json:"error,omitempty"`
	Events    []Event           `json:"events"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`

	seqCounter uint64
	mu         sync.Mutex
}

// Event is a single entry in the session log.
type Event struct {
	SeqID     uint64    `json:"seq"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// CorrelationID links a tool_call to its tool_result.
	CorrelationID string `json:"corr_id,omitempty"`

	TaskID string `json:"task,omitempty"`
	Agent  string `json:"agent,omitempty"` // worker name for delegated tasks
	State  string `json:"state,omitempty"` // machine state when the event happened

	Content string                 `json:"content,omitempty"`
	Tool    string                 `json:"tool,omitempty"`
	Args    map[string]interface{} `json:"args,omitempty"`

	Success    *bool  `json:"success,omitempty"` // nil = in progress
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`

	Meta *EventMeta `json:"meta,omitempty"`
}

// EventMeta carries the structured details of an event.
type EventMeta struct {
	// Loop
	Iteration  int    `json:"iteration,omitempty"`
	From       string `json:"from,omitempty"`
	To         string `json:"to,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Steps      int    `json:"steps,omitempty"`

	// Delegation
	Worker   string `json:"worker,omitempty"`
	ParentID string `json:"parent_id,omitempty"`
	Status   string `json:"status,omitempty"`

	// LLM
	Model     string `json:"model,omitempty"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
	TokensIn  int    `json:"tokens_in,omitempty"`
	TokensOut int    `json:"tokens_out,omitempty"`
	Thinking  string `json:"thinking,omitempty"`
}

// BoolPtr returns a pointer to b, for Event.Success.
func BoolPtr(b bool) *bool { return &b }

func (s *Session) nextSeqID() uint64 {
	return atomic.AddUint64(&s.seqCounter, 1)
}

// CurrentSeqID returns the last sequence ID used, or 0 before any event.
func (s *Session) CurrentSeqID() uint64 {
	return atomic.LoadUint64(&s.seqCounter)
}

// AddEvent appends event with the next sequence ID. Safe for concurrent use.
func (s *Session) AddEvent(event Event) uint64 {
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

// Finish sets the final status of the session.
func (s *Session) Finish(status, result, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = status
	s.Result = result
	s.Error = errMsg
	s.UpdatedAt = time.Now()
}

// snapshot copies the session under its lock.
func (s *Session) snapshot() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := &Session{
		ID:        s.ID,
		Name:      s.Name,
		Inputs:    s.Inputs,
		Status:    s.Status,
		Result:    s.Result,
		Error:     s.Error,
		Events:    make([]Event, len(s.Events)),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
	copy(cp.Events, s.Events)
	return cp
}

// Store is the interface for session persistence.
type Store interface {
	Save(sess *Session) error
	Load(id string) (*Session, error)
}

// SessionManager is the interface for session management operations.
type SessionManager interface {
	Create(name string) (*Session, error)
	Update(sess *Session) error
	Get(id string) (*Session, error)
}

// Manager manages sessions on top of a Store.
type Manager struct {
	store Store
	mu    sync.Mutex
}

// NewManager creates a new session manager.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// Create creates and saves a new running session.
func (m *Manager) Create(name string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	sess := &Session{
		ID:        generateID(),
		Name:      name,
		Inputs:    make(map[string]string),
		Status:    StatusRunning,
		Events:    []Event{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.Save(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get retrieves a session by ID.
func (m *Manager) Get(id string) (*Session, error) {
	return m.store.Load(id)
}

// Update saves changes to a session.
func (m *Manager) Update(sess *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Save(sess)
}

// AddEvent adds an event to a stored session.
func (m *Manager) AddEvent(id string, event Event) error {
	sess, err := m.store.Load(id)
	if err != nil {
		return err
	}
	sess.AddEvent(event)
	return m.Update(sess)
}

func generateID() string {
	return uuid.NewString()
}

// JSONL record types
const (
	RecordTypeHeader = "header" // first line
	RecordTypeEvent  = "event"
	RecordTypeFooter = "footer" // last line
)

// JSONLRecord is one line of a session file.
type JSONLRecord struct {
	RecordType string `json:"_type"`

	// header
	ID        string            `json:"id,omitempty"`
	Name      string            `json:"name,omitempty"`
	Inputs    map[string]string `json:"inputs,omitempty"`
	CreatedAt time.Time         `json:"created_at,omitempty"`

	*Event `json:",omitempty"`

	// footer; the error key differs from Event's so neither shadows the other
	Status       string    `json:"status,omitempty"`
	Result       string    `json:"result,omitempty"`
	SessionError string    `json:"session_error,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// FileStore implements Store with one JSONL file per session.
type FileStore struct {
	dir string
}

// NewFileStore creates a new file-based store.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir}, nil
}

// Path returns the file a session is stored in.
func (s *FileStore) Path(id string) string {
	return filepath.Join(s.dir, id+".jsonl")
}

// Save writes the whole session. It is safe to call while other goroutines
// add events.
func (s *FileStore) Save(sess *Session) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	snap := sess.snapshot()

	var buf bytes.Buffer
	header := JSONLRecord{
		RecordType: RecordTypeHeader,
		ID:         snap.ID,
		Name:       snap.Name,
		Inputs:     snap.Inputs,
		CreatedAt:  snap.CreatedAt,
	}
	if err := writeLine(&buf, header); err != nil {
		return err
	}
	for i := range snap.Events {
		if err := writeLine(&buf, JSONLRecord{RecordType: RecordTypeEvent, Event: &snap.Events[i]}); err != nil {
			return err
		}
	}
	footer := JSONLRecord{
		RecordType:   RecordTypeFooter,
		Status:       snap.Status,
		Result:       snap.Result,
		SessionError: snap.Error,
		UpdatedAt:    snap.UpdatedAt,
	}
	if err := writeLine(&buf, footer); err != nil {
		return err
	}

	// Write then rename so followers never read a half-written file.
	path := s.Path(snap.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return os.Rename(tmp, path)
}

func writeLine(w io.Writer, record JSONLRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// Load reads a session from disk.
func (s *FileStore) Load(id string) (*Session, error) {
	return LoadFile(s.Path(id))
}

// LoadFile reads a JSONL session file.
func LoadFile(path string) (*Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads a JSONL session from r.
func Decode(r io.Reader) (*Session, error) {
	sess := &Session{
		Inputs: make(map[string]string),
		Events: []Event{},
	}

	// bufio.Reader has no line length limit, unlike Scanner.
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("error reading JSONL: %w", err)
		}
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			if perr := parseLine(trimmed, sess); perr != nil {
				return nil, perr
			}
		}
		if err == io.EOF {
			break
		}
	}

	if len(sess.Events) > 0 {
		sess.seqCounter = sess.Events[len(sess.Events)-1].SeqID
	}
	return sess, nil
}

func parseLine(line []byte, sess *Session) error {
	var record JSONLRecord
	if err := json.Unmarshal(line, &record); err != nil {
		return fmt.Errorf("failed to parse JSONL line: %w", err)
	}

	switch record.RecordType {
	case RecordTypeHeader:
		sess.ID = record.ID
		sess.Name = record.Name
		if record.Inputs != nil {
			sess.Inputs = record.Inputs
		}
		sess.CreatedAt = record.CreatedAt
	case RecordTypeEvent:
		if record.Event != nil {
			sess.Events = append(sess.Events, *record.Event)
		}
	case RecordTypeFooter:
		sess.Status = record.Status
		sess.Result = record.Result
		sess.Error = record.SessionError
		sess.UpdatedAt = record.UpdatedAt
	}
	return nil
}

// List returns the IDs of the stored sessions, newest first.
func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	type item struct {
		id  string
		mod time.Time
	}
	var items []item
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		items = append(items, item{strings.TrimSuffix(e.Name(), ".jsonl"), info.ModTime()})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].mod.After(items[j].mod) })
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.id
	}
	return ids, nil
}
