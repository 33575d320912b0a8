package executor

import "time"

// EventType identifies a progress event of a task.
type EventType string

const (
	EventPhaseEntered     EventType = "phase_entered"
	EventPlanCreated      EventType = "plan_created"
	EventPlanFailed       EventType = "plan_failed"
	EventIterationStarted EventType = "iteration_started"
	EventAgentMessage     EventType = "agent_message"
	EventActionRejected   EventType = "action_rejected"
	EventActionExecuted   EventType = "action_executed"
	EventTaskCompleted    EventType = "task_completed"
	EventTaskTimeout      EventType = "task_timeout"
	EventTaskFailed       EventType = "task_failed"
	EventStatistics       EventType = "statistics"
)

// Terminal reports whether the event ends the task's outcome. Phase and
// statistics events still follow a terminal event.
func (t EventType) Terminal() bool {
	return t == EventTaskCompleted || t == EventTaskTimeout || t == EventTaskFailed
}

// Event is one record of the stream returned by RunTask. It is the only
// thing a task exposes while it runs.
type Event struct {
	Type      EventType              `json:"type"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func newEvent(t EventType, data map[string]interface{}) Event {
	return Event{Type: t, Data: data, Timestamp: time.Now()}
}

// String returns a data field as a string, or "".
func (e Event) String(key string) string {
	s, _ := e.Data[key].(string)
	return s
}

// Int returns a data field as an int, or 0.
func (e Event) Int(key string) int {
	n, _ := e.Data[key].(int)
	return n
}

// Sink receives every event of every task an Executor runs, in order per
// task. Implementations must be safe for concurrent use.
type Sink interface {
	Publish(taskID string, ev Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(taskID string, ev Event)

// Publish implements Sink.
func (f SinkFunc) Publish(taskID string, ev Event) { f(taskID, ev) }
