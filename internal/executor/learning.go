package executor

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vinayprograms/taskforce/internal/catalog"
	"github.com/vinayprograms/taskforce/internal/protocol"
)

// ErrorRecord is one failed action, kept for the learner.
type ErrorRecord struct {
	TaskID    string        `json:"task_id"`
	Task      string        `json:"task"`
	Kind      protocol.Kind `json:"kind"`
	Message   string        `json:"message"`
	Iteration int           `json:"iteration"`
	State     catalog.State `json:"state"`
	At        time.Time     `json:"at"`
}

// Learner collects what tasks teach. It must be safe for concurrent use.
type Learner interface {
	RecordError(rec ErrorRecord)
	Reflect(task string, r protocol.Reflection)
	// Conclude is called once per task that did not complete.
	Conclude(taskID string)
	Learnings() []string
}

// recentErrors is how many of a task's latest errors become learnings.
const recentErrors = 5

// SessionLearner keeps learnings in memory for the life of the process.
type SessionLearner struct {
	mu        sync.Mutex
	errors    []ErrorRecord
	learnings []string
	seen      map[string]bool
}

// NewSessionLearner returns an empty learner.
func NewSessionLearner() *SessionLearner {
	return &SessionLearner{seen: make(map[string]bool)}
}

// RecordError implements Learner.
func (l *SessionLearner) RecordError(rec ErrorRecord) {
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, rec)
}

// Reflect implements Learner. The "what I learned" section becomes a
// learning.
func (l *SessionLearner) Reflect(task string, r protocol.Reflection) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if learned := strings.TrimSpace(r.Learned); learned != "" {
		l.add(learned)
	}
}

// Conclude implements Learner. The task's last errors become "Avoid"
// learnings.
func (l *SessionLearner) Conclude(taskID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var mine []ErrorRecord
	for _, rec := range l.errors {
		if rec.TaskID == taskID {
			mine = append(mine, rec)
		}
	}
	if len(mine) > recentErrors {
		mine = mine[len(mine)-recentErrors:]
	}
	for _, rec := range mine {
		l.add(fmt.Sprintf("Avoid: %s when doing %s", rec.Message, rec.Kind))
	}
}

func (l *SessionLearner) add(learning string) {
	if l.seen[learning] {
		return
	}
	l.seen[learning] = true
	l.learnings = append(l.learnings, learning)
}

// Learnings implements Learner.
func (l *SessionLearner) Learnings() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.learnings))
	copy(out, l.learnings)
	return out
}

// Errors returns every recorded error.
func (l *SessionLearner) Errors() []ErrorRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ErrorRecord, len(l.errors))
	copy(out, l.errors)
	return out
}
