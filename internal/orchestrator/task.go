package orchestrator

import (
	"context"
	"time"
)

// Status is the lifecycle state of a delegated task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// DelegatedTask is one unit of work handed to a worker.
type DelegatedTask struct {
	ID          string                 `json:"id"`
	Worker      string                 `json:"worker"`
	Description string                 `json:"description"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	Status      Status                 `json:"status"`
	Result      interface{}            `json:"result,omitempty"`
	Error       string                 `json:"error,omitempty"`
	StartedAt   time.Time              `json:"started_at,omitempty"`
	CompletedAt time.Time              `json:"completed_at,omitempty"`
	ParentID    string                 `json:"parent_id,omitempty"`
}

// Succeeded reports whether the task completed.
func (t *DelegatedTask) Succeeded() bool {
	return t.Status == StatusCompleted
}

// Duration is the wall time spent in the executor, zero if it never ran.
func (t *DelegatedTask) Duration() time.Duration {
	if t.StartedAt.IsZero() || t.CompletedAt.IsZero() {
		return 0
	}
	return t.CompletedAt.Sub(t.StartedAt)
}

// TaskSpec describes a task before it is delegated.
type TaskSpec struct {
	Worker      string                 `yaml:"worker" json:"worker"`
	Description string                 `yaml:"description" json:"description"`
	Payload     map[string]interface{} `yaml:"payload,omitempty" json:"payload,omitempty"`
}

// Executor performs a delegated task.
type Executor interface {
	Execute(ctx context.Context, description string, payload map[string]interface{}) (interface{}, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, description string, payload map[string]interface{}) (interface{}, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, description string, payload map[string]interface{}) (interface{}, error) {
	return f(ctx, description, payload)
}

type parentKey struct{}

// WithParent records the delegated task that owns work started under ctx.
func WithParent(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, parentKey{}, id)
}

// ParentFrom returns the task ID recorded by WithParent.
func ParentFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(parentKey{}).(string)
	return id, ok && id != ""
}
