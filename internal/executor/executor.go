// Package executor drives worker tasks. A task is planned, then runs a
// bounded loop: request a completion, parse its action blocks, check each
// against the task's state machine, execute the legal ones and feed the
// results back as the next user turn.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vinayprograms/agentkit/logging"

	"github.com/vinayprograms/taskforce/internal/catalog"
	"github.com/vinayprograms/taskforce/internal/effector"
	"github.com/vinayprograms/taskforce/internal/orchestrator"
	"github.com/vinayprograms/taskforce/internal/planner"
	"github.com/vinayprograms/taskforce/internal/protocol"
	"github.com/vinayprograms/taskforce/internal/session"
)

// DefaultMaxIterations bounds a task when Config leaves it unset.
const DefaultMaxIterations = 20

// ErrMaxIterations is returned by Run when a task never signals completion.
var ErrMaxIterations = errors.New("task reached maximum iterations")

// Status is the outcome of a task.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusTimeout   Status = "timeout"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Config controls the worker loop.
type Config struct {
	MaxIterations int
	Retry         RetryPolicy
}

// Planner decomposes a task before execution.
type Planner interface {
	Plan(ctx context.Context, req planner.Request) (*planner.Plan, error)
}

// Statistics counts what one task did.
type Statistics struct {
	Iterations    int           `json:"iterations"`
	Actions       int           `json:"actions"`
	Rejected      int           `json:"rejected"`
	Verifications int           `json:"verifications"`
	Tests         int           `json:"tests"`
	Errors        int           `json:"errors"`
	Masking       catalog.Stats `json:"masking"`
}

// TaskResult is what Run returns once a task's stream is closed.
type TaskResult struct {
	TaskID      string               `json:"task_id"`
	Description string               `json:"description"`
	Status      Status               `json:"status"`
	Summary     string               `json:"summary,omitempty"`
	Reflection  protocol.Reflection  `json:"reflection"`
	Error       string               `json:"error,omitempty"`
	Stats       Statistics           `json:"stats"`
	History     []Turn               `json:"history"`
	Transitions []catalog.Transition `json:"transitions"`
	Duration    time.Duration        `json:"duration"`
}

// Executor runs worker tasks. Its collaborators are shared; everything a
// task mutates lives in that task, so one Executor may run many tasks
// concurrently.
type Executor struct {
	cfg       Config
	completer Completer
	effector  effector.Effector
	planner   Planner
	learner   Learner
	sinks     []Sink
	logger    *logging.Logger

	session        *session.Session
	sessionManager session.SessionManager
}

// Option configures an Executor.
type Option func(*Executor)

// WithPlanner sets the planning collaborator. Without one every task runs
// unplanned.
func WithPlanner(p Planner) Option {
	return func(e *Executor) { e.planner = p }
}

// WithLearner replaces the in-memory session learner.
func WithLearner(l Learner) Option {
	return func(e *Executor) { e.learner = l }
}

// WithSink adds a receiver for every event.
func WithSink(s Sink) Option {
	return func(e *Executor) { e.sinks = append(e.sinks, s) }
}

// WithSession records tasks in sess.
func WithSession(sess *session.Session, mgr session.SessionManager) Option {
	return func(e *Executor) {
		e.session = sess
		e.sessionManager = mgr
	}
}

// New creates an executor. eff receives every validated action.
func New(cfg Config, completer Completer, eff effector.Effector, opts ...Option) *Executor {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	e := &Executor{
		cfg:       cfg,
		completer: completer,
		effector:  eff,
		learner:   NewSessionLearner(),
		logger:    logging.New().WithComponent("executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Learner returns the learner shared by this executor's tasks.
func (e *Executor) Learner() Learner { return e.learner }

// RunTask starts a task and returns its event stream. The channel is
// closed after the statistics event; callers must drain it.
func (e *Executor) RunTask(ctx context.Context, description string) <-chan Event {
	_, ch := e.start(ctx, description)
	return ch
}

// Run runs a task to the end. The result is always returned; err is
// non-nil unless the task completed.
func (e *Executor) Run(ctx context.Context, description string) (*TaskResult, error) {
	t, ch := e.start(ctx, description)
	for range ch {
	}
	return t.result, t.err
}

func (e *Executor) start(ctx context.Context, description string) (*task, <-chan Event) {
	ch := make(chan Event, 16)
	t := &task{
		exec:        e,
		id:          "task-" + uuid.NewString(),
		description: description,
		machine:     catalog.NewMachine(),
		history:     &History{},
		events:      ch,
	}
	go func() {
		defer close(ch)
		t.run(ctx)
	}()
	return t, ch
}

// task is the state of one RunTask call. Only its goroutine touches it
// until the event channel is closed.
type task struct {
	exec        *Executor
	id          string
	description string
	machine     *catalog.Machine
	history     *History
	events      chan<- Event

	iteration int
	stats     Statistics
	result    *TaskResult
	err       error
}

func (t *task) run(ctx context.Context) {
	e := t.exec
	if _, ok := orchestrator.ParentFrom(ctx); !ok {
		ctx = orchestrator.WithParent(ctx, t.id)
	}
	ctx, span := e.startTaskSpan(ctx, t.id, t.description)
	start := time.Now()
	t.result = &TaskResult{TaskID: t.id, Description: t.description}
	e.logTaskStart(t)
	known := len(e.learner.Learnings())

	t.execute(ctx)
	if r, ok := e.effector.(effector.Releaser); ok {
		owner, _ := orchestrator.ParentFrom(ctx)
		r.Release(owner)
	}

	t.enter(catalog.StateLearning)
	if t.result.Status != StatusCompleted {
		e.learner.Conclude(t.id)
	}
	if learned := e.learner.Learnings(); len(learned) > known {
		e.logLearnings(t, learned[known:])
	}
	t.enter(catalog.StateIdle)

	t.stats.Masking = t.machine.Stats()
	t.result.Stats = t.stats
	t.result.History = t.history.Turns()
	t.result.Transitions = t.machine.History()
	t.result.Duration = time.Since(start)
	t.emit(EventStatistics, map[string]interface{}{
		"iterations":    t.stats.Iterations,
		"actions":       t.stats.Actions,
		"rejected":      t.stats.Rejected,
		"verifications": t.stats.Verifications,
		"tests":         t.stats.Tests,
		"errors":        t.stats.Errors,
		"masking":       t.stats.Masking,
		"learnings":     len(e.learner.Learnings()),
	})
	e.logTaskEnd(t)
	e.endTaskSpan(span, t.result, t.err)
}

// execute runs planning and the iteration loop and sets the outcome.
// Effector panics end the task as failed.
func (t *task) execute(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.fail(fmt.Errorf("panic during iteration %d: %v", t.iteration, r))
		}
	}()

	e := t.exec
	plan := t.plan(ctx)

	t.enter(catalog.StateExecuting)
	t.say(RoleSystem, systemPrompt())
	t.say(RoleUser, taskPrompt(t.description, plan, t.machine.Guidance()))
	if learnings := e.learner.Learnings(); len(learnings) > 0 {
		t.say(RoleSystem, learningsPrompt(learnings))
	}

	limit := e.cfg.MaxIterations
	for i := 1; i <= limit; i++ {
		if err := ctx.Err(); err != nil {
			t.cancel(err)
			return
		}
		t.iteration = i
		t.stats.Iterations = i
		t.emit(EventIterationStarted, map[string]interface{}{"iteration": i, "max_iterations": limit})

		reply, usage, err := t.request(ctx)
		if err != nil {
			if ctx.Err() != nil {
				t.cancel(ctx.Err())
				return
			}
			t.fail(fmt.Errorf("completion failed: %w", err))
			return
		}
		t.history.Append(RoleAssistant, reply)
		e.logReply(t, reply, usage)
		t.emit(EventAgentMessage, map[string]interface{}{"message": reply, "iteration": i})

		if c, ok := protocol.ParseCompletion(reply); ok {
			t.succeed(c, reply)
			return
		}

		actions, diags := protocol.ParseWithDiagnostics(reply)
		e.logDiagnostics(t, diags)
		if len(actions) == 0 {
			t.say(RoleUser, nudge)
			continue
		}
		for _, a := range actions {
			if err := ctx.Err(); err != nil {
				t.cancel(err)
				return
			}
			t.act(ctx, a)
		}
	}

	t.result.Status = StatusTimeout
	t.err = fmt.Errorf("%w (%d)", ErrMaxIterations, limit)
	t.result.Error = t.err.Error()
	t.emit(EventTaskTimeout, map[string]interface{}{
		"message":    fmt.Sprintf("Task reached maximum iterations (%d)", limit),
		"iterations": limit,
	})
}

// plan asks the planner for steps and writes todo.md. Failures leave the
// task unplanned.
func (t *task) plan(ctx context.Context) *planner.Plan {
	e := t.exec
	t.enter(catalog.StatePlanning)
	if e.planner == nil {
		t.emit(EventPlanFailed, map[string]interface{}{"error": "no planner configured"})
		return nil
	}
	p, err := e.planner.Plan(ctx, planner.Request{Task: t.description, PreviousAttempts: e.learner.Learnings()})
	if err != nil {
		e.logger.Warn("planning failed, proceeding with direct execution", map[string]interface{}{
			"task":  t.id,
			"error": err.Error(),
		})
		t.emit(EventPlanFailed, map[string]interface{}{"error": err.Error()})
		return nil
	}
	t.emit(EventPlanCreated, map[string]interface{}{
		"plan":  p.Raw,
		"steps": p.Outline(),
		"count": len(p.Steps),
	})
	e.logPlan(t, p)

	todo := protocol.Action{Kind: protocol.KindUpdateTodo, Fields: map[string]string{"CONTENT": p.Todo()}}
	if res := e.effector.Execute(ctx, todo); !res.Success {
		e.logger.Warn("todo.md not written", map[string]interface{}{"task": t.id, "error": res.Error})
	}
	return p
}

// request asks the completer for the next reply, retrying per policy. usage
// is nil unless the completer reports it.
func (t *task) request(ctx context.Context) (string, *Usage, error) {
	e := t.exec
	ctx, span := e.startIterationSpan(ctx, t.id, t.iteration, t.machine.State())
	defer span.End()

	var (
		reply string
		usage *Usage
	)
	err := e.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		req := Request{Turns: t.history.Turns(), Bias: t.machine.Bias()}
		if uc, ok := e.completer.(UsageCompleter); ok {
			r, u, err := uc.CompleteWithUsage(ctx, req)
			reply, usage = r, &u
			return err
		}
		r, err := e.completer.Complete(ctx, req)
		reply = r
		return err
	}, func(attempt int, err error) {
		e.logger.Warn("completion failed, retrying", map[string]interface{}{
			"task":      t.id,
			"iteration": t.iteration,
			"attempt":   attempt,
			"error":     err.Error(),
		})
	})
	if err != nil {
		span.RecordError(err)
	}
	return reply, usage, err
}

// act validates and executes one action and appends the feedback turn.
func (t *task) act(ctx context.Context, a protocol.Action) {
	e := t.exec
	state := t.machine.State()
	if ok, reason := t.machine.Validate(a.Kind); !ok {
		t.stats.Rejected++
		e.logRejected(t, a, reason)
		t.emit(EventActionRejected, map[string]interface{}{
			"action":    string(a.Kind),
			"reason":    reason,
			"iteration": t.iteration,
		})
		t.say(RoleUser, rejection(reason, t.machine.Guidance()))
		return
	}

	corrID := e.logToolCall(t, a)
	start := time.Now()
	res := e.effector.Execute(ctx, a)
	e.logToolResult(t, a, corrID, res, time.Since(start))

	t.stats.Actions++
	switch a.Kind {
	case protocol.KindVerify:
		t.stats.Verifications++
	case protocol.KindExecute:
		if containsFold(a.Field("COMMAND"), "test") {
			t.stats.Tests++
		}
	}
	t.emit(EventActionExecuted, map[string]interface{}{
		"action":      string(a.Kind),
		"success":     res.Success,
		"output":      res.Output,
		"error":       res.Error,
		"status_code": res.StatusCode,
		"iteration":   t.iteration,
	})
	t.say(RoleUser, feedback(a, res))

	if !res.Success {
		t.stats.Errors++
		e.learner.RecordError(ErrorRecord{
			TaskID:    t.id,
			Task:      t.description,
			Kind:      a.Kind,
			Message:   res.Error,
			Iteration: t.iteration,
			State:     state,
		})
	}
}

func (t *task) succeed(c protocol.Completion, reply string) {
	t.result.Status = StatusCompleted
	t.result.Summary = c.Summary
	t.result.Reflection = c.Reflection
	if !c.Reflection.Empty() {
		t.exec.learner.Reflect(t.description, c.Reflection)
	}
	t.emit(EventTaskCompleted, map[string]interface{}{
		"summary":       c.Summary,
		"reflection":    c.Reflection,
		"message":       reply,
		"iterations":    t.iteration,
		"verifications": t.stats.Verifications,
		"tests":         t.stats.Tests,
	})
}

func (t *task) fail(err error) {
	t.result.Status = StatusFailed
	t.err = err
	t.result.Error = err.Error()
	t.exec.logger.Error("task failed", map[string]interface{}{"task": t.id, "error": err.Error()})
	t.emit(EventTaskFailed, map[string]interface{}{"error": err.Error(), "iteration": t.iteration})
}

func (t *task) cancel(err error) {
	t.result.Status = StatusCancelled
	t.err = err
	t.result.Error = err.Error()
	t.emit(EventTaskFailed, map[string]interface{}{
		"error":     err.Error(),
		"iteration": t.iteration,
		"cancelled": true,
	})
}

// enter moves the machine to s. It is the only place state changes.
func (t *task) enter(s catalog.State) {
	tr := t.machine.Transition(s)
	t.exec.logPhase(t, tr)
	t.emit(EventPhaseEntered, map[string]interface{}{"state": string(s), "from": string(tr.From)})
}

// say appends a turn to the history and records it.
func (t *task) say(role, content string) {
	t.history.Append(role, content)
	t.exec.logTurn(t, role, content)
}

func (t *task) emit(typ EventType, data map[string]interface{}) {
	ev := newEvent(typ, data)
	for _, s := range t.exec.sinks {
		s.Publish(t.id, ev)
	}
	t.events <- ev
}
