// Package eventbus publishes task progress and delegated task outcomes to
// NATS so that dashboards and other agents can follow a run.
//
// Subjects:
//
//	<prefix>.task.<task id>.<event type>    executor events
//	<prefix>.delegation.<worker>.<status>    finished delegated tasks
package eventbus

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/vinayprograms/agentkit/logging"

	"github.com/vinayprograms/taskforce/internal/executor"
	"github.com/vinayprograms/taskforce/internal/orchestrator"
)

// DefaultPrefix is the subject prefix used when none is configured.
const DefaultPrefix = "taskforce"

// Publisher sends raw messages. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Bus publishes events under a subject prefix. Publishing never blocks
// or fails the caller; errors are logged and counted.
type Bus struct {
	pub    Publisher
	prefix string
	conn   *nats.Conn // nil when built with New
	logger *logging.Logger

	mu     sync.Mutex
	failed int
}

// New creates a bus on top of an existing publisher.
func New(pub Publisher, prefix string) *Bus {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Bus{
		pub:    pub,
		prefix: prefix,
		logger: logging.New().WithComponent("eventbus"),
	}
}

// Connect dials the NATS server at url.
func Connect(url, prefix, name string) (*Bus, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	b := New(nc, prefix)
	b.conn = nc
	b.logger.Info("connected", map[string]interface{}{"url": nc.ConnectedUrl(), "prefix": b.prefix})
	return b, nil
}

// TaskMessage is the payload of an executor event.
type TaskMessage struct {
	TaskID    string                 `json:"task_id"`
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// DelegationMessage is the payload of a finished delegated task.
type DelegationMessage struct {
	ID          string `json:"id"`
	Worker      string `json:"worker"`
	ParentID    string `json:"parent_id,omitempty"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Result      string `json:"result,omitempty"`
	Error       string `json:"error,omitempty"`
	DurationMs  int64  `json:"duration_ms"`
}

// Publish implements executor.Sink.
func (b *Bus) Publish(taskID string, ev executor.Event) {
	b.send(b.Subject("task", taskID, string(ev.Type)), TaskMessage{
		TaskID:    taskID,
		Type:      string(ev.Type),
		Data:      ev.Data,
		Timestamp: ev.Timestamp,
	})
}

// PublishDelegation announces a finished delegated task. It has the shape
// of the Orchestrator.OnTaskFinished hook.
func (b *Bus) PublishDelegation(t orchestrator.DelegatedTask) {
	msg := DelegationMessage{
		ID:          t.ID,
		Worker:      t.Worker,
		ParentID:    t.ParentID,
		Description: t.Description,
		Status:      string(t.Status),
		Error:       t.Error,
		DurationMs:  t.Duration().Milliseconds(),
	}
	if t.Result != nil {
		msg.Result = fmt.Sprint(t.Result)
	}
	b.send(b.Subject("delegation", t.Worker, string(t.Status)), msg)
}

// Subject joins tokens under the prefix, replacing characters NATS
// reserves in subject tokens.
func (b *Bus) Subject(tokens ...string) string {
	parts := make([]string, 0, len(tokens)+1)
	parts = append(parts, b.prefix)
	for _, t := range tokens {
		parts = append(parts, sanitize(t))
	}
	return strings.Join(parts, ".")
}

var subjectReplacer = strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_", "\t", "_")

func sanitize(token string) string {
	if token == "" {
		return "_"
	}
	return subjectReplacer.Replace(token)
}

func (b *Bus) send(subject string, v interface{}) {
	data, err := json.Marshal(v)
	if err == nil {
		err = b.pub.Publish(subject, data)
	}
	if err != nil {
		b.mu.Lock()
		b.failed++
		b.mu.Unlock()
		b.logger.Warn("publish failed", map[string]interface{}{
			"subject": subject,
			"error":   err.Error(),
		})
	}
}

// Failed returns the number of messages that could not be published.
func (b *Bus) Failed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failed
}

// Close flushes pending messages and closes the connection opened by
// Connect.
func (b *Bus) Close() error {
	if b.conn == nil {
		return nil
	}
	return b.conn.Drain()
}
