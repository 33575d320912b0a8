// Package orchestrator delegates tasks to registered workers and composes
// them sequentially, in parallel, hierarchically or by consensus.
//
// Every delegation produces a DelegatedTask that is kept in an append-only
// registry for status queries and statistics. Worker failures never
// propagate as Go errors; they are recorded on the task.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/vinayprograms/agentkit/logging"
)

var (
	// ErrUnknownWorker is recorded when a task names an unregistered worker.
	ErrUnknownWorker = errors.New("worker not registered")
	// ErrWorkerInactive is recorded when a task names a deactivated worker.
	ErrWorkerInactive = errors.New("worker is not active")
	// ErrDuplicateWorker is returned by Register for a name already in use.
	ErrDuplicateWorker = errors.New("worker already registered")
)

// DefaultConcurrency bounds fan-out when Config.Concurrency is unset.
// Workers mostly wait on the network, so CPUs are oversubscribed.
var DefaultConcurrency = func() int {
	limit := runtime.NumCPU() * 4
	if limit < 4 {
		limit = 4
	}
	if limit > 32 {
		limit = 32
	}
	return limit
}()

// Config tunes the scheduler.
type Config struct {
	// Concurrency is the maximum number of sibling tasks in flight.
	Concurrency int
	// TaskTimeout is the default per-task deadline. Zero means none.
	TaskTimeout time.Duration
}

// Worker is a registered executor.
type Worker struct {
	Name        string
	Priority    int
	Active      bool
	Description string
	Keywords    []string
	Timeout     time.Duration
	Executor    Executor `json:"-"`
}

// Option configures a worker at registration.
type Option func(*Worker)

// WithKeywords sets the words Route matches against task descriptions.
func WithKeywords(words ...string) Option {
	return func(w *Worker) { w.Keywords = append(w.Keywords, words...) }
}

// WithDescription documents what the worker does.
func WithDescription(desc string) Option {
	return func(w *Worker) { w.Description = desc }
}

// WithTimeout overrides Config.TaskTimeout for this worker.
func WithTimeout(d time.Duration) Option {
	return func(w *Worker) { w.Timeout = d }
}

// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	cfg    Config
	logger *logging.Logger

	mu      sync.RWMutex
	workers map[string]*Worker
	tasks   []*DelegatedTask
	byID    map[string]*DelegatedTask

	// OnTaskFinished, if set, is called after every delegation reaches a
	// terminal status. It receives a copy.
	OnTaskFinished func(DelegatedTask)
}

// New creates an orchestrator with no workers.
func New(cfg Config) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	return &Orchestrator{
		cfg:     cfg,
		logger:  logging.New().WithComponent("orchestrator"),
		workers: make(map[string]*Worker),
		byID:    make(map[string]*DelegatedTask),
	}
}

// Register adds an active worker. Priority orders Route candidates.
func (o *Orchestrator) Register(name string, priority int, exec Executor, opts ...Option) error {
	if name == "" {
		return errors.New("worker name is required")
	}
	if exec == nil {
		return fmt.Errorf("worker %s: executor is nil", name)
	}
	w := &Worker{Name: name, Priority: priority, Active: true, Executor: exec}
	for _, opt := range opts {
		opt(w)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.workers[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateWorker, name)
	}
	o.workers[name] = w
	o.logger.Info("worker registered", map[string]interface{}{
		"worker":   name,
		"priority": priority,
	})
	return nil
}

// Deactivate stops new delegations to name. In-flight tasks finish.
func (o *Orchestrator) Deactivate(name string) error {
	return o.setActive(name, false)
}

// Activate re-enables a deactivated worker.
func (o *Orchestrator) Activate(name string) error {
	return o.setActive(name, true)
}

func (o *Orchestrator) setActive(name string, active bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	w, ok := o.workers[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownWorker, name)
	}
	w.Active = active
	return nil
}

// Workers returns copies of every registered worker, highest priority first.
func (o *Orchestrator) Workers() []Worker {
	o.mu.RLock()
	out := make([]Worker, 0, len(o.workers))
	for _, w := range o.workers {
		out = append(out, *w)
	}
	o.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (o *Orchestrator) lookup(name string) (Worker, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	w, ok := o.workers[name]
	if !ok {
		return Worker{}, fmt.Errorf("%w: %s", ErrUnknownWorker, name)
	}
	if !w.Active {
		return Worker{}, fmt.Errorf("%w: %s", ErrWorkerInactive, name)
	}
	return *w, nil
}

// Delegate runs one task on the named worker and returns its record.
// Unknown or inactive workers yield a Failed task without calling any
// executor. A cancelled ctx yields a Cancelled task.
func (o *Orchestrator) Delegate(ctx context.Context, worker, description string, payload map[string]interface{}, parentID string) *DelegatedTask {
	task := o.record(worker, description, payload, parentID)

	w, err := o.lookup(worker)
	if err != nil {
		o.finish(task, nil, err, StatusFailed)
		return task
	}
	if err := ctx.Err(); err != nil {
		o.finish(task, nil, err, StatusCancelled)
		return task
	}

	o.mu.Lock()
	task.Status = StatusInProgress
	task.StartedAt = time.Now()
	o.mu.Unlock()

	o.logger.Info("task delegated", map[string]interface{}{
		"task_id":     task.ID,
		"worker":      worker,
		"parent_id":   parentID,
		"description": truncate(description, 100),
	})

	ctx, span := o.startDelegateSpan(ctx, task)
	timeout := w.Timeout
	if timeout == 0 {
		timeout = o.cfg.TaskTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := invoke(WithParent(ctx, task.ID), w.Executor, description, payload)
	status := StatusCompleted
	if err != nil {
		status = StatusFailed
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			status = StatusCancelled
		}
	}
	o.finish(task, result, err, status)
	o.endDelegateSpan(span, task, err)
	return task
}

// invoke calls the executor and converts a panic into an error.
func invoke(ctx context.Context, exec Executor, description string, payload map[string]interface{}) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("worker panicked: %v", r)
		}
	}()
	return exec.Execute(ctx, description, payload)
}

func (o *Orchestrator) record(worker, description string, payload map[string]interface{}, parentID string) *DelegatedTask {
	task := &DelegatedTask{
		ID:          "task-" + uuid.NewString(),
		Worker:      worker,
		Description: description,
		Payload:     payload,
		Status:      StatusPending,
		ParentID:    parentID,
	}
	o.mu.Lock()
	o.tasks = append(o.tasks, task)
	o.byID[task.ID] = task
	o.mu.Unlock()
	return task
}

func (o *Orchestrator) finish(task *DelegatedTask, result interface{}, err error, status Status) {
	o.mu.Lock()
	task.Status = status
	task.Result = result
	if err != nil {
		task.Error = err.Error()
	}
	task.CompletedAt = time.Now()
	snapshot := *task
	hook := o.OnTaskFinished
	o.mu.Unlock()

	fields := map[string]interface{}{
		"task_id":     task.ID,
		"worker":      task.Worker,
		"status":      string(status),
		"duration_ms": snapshot.Duration().Milliseconds(),
	}
	if err != nil {
		fields["error"] = err.Error()
		o.logger.Warn("task did not complete", fields)
	} else {
		o.logger.Info("task completed", fields)
	}
	if hook != nil {
		hook(snapshot)
	}
}

// Task returns a snapshot of the task with the given ID.
func (o *Orchestrator) Task(id string) (DelegatedTask, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	t, ok := o.byID[id]
	if !ok {
		return DelegatedTask{}, false
	}
	return *t, true
}

// Tasks returns snapshots of every task in delegation order.
func (o *Orchestrator) Tasks() []DelegatedTask {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]DelegatedTask, len(o.tasks))
	for i, t := range o.tasks {
		out[i] = *t
	}
	return out
}

// Children returns snapshots of the tasks delegated under parentID.
func (o *Orchestrator) Children(parentID string) []DelegatedTask {
	var out []DelegatedTask
	for _, t := range o.Tasks() {
		if t.ParentID == parentID {
			out = append(out, t)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return cutUTF8(s, n) + "..."
}

// cutUTF8 returns at most n bytes of s without splitting a rune.
func cutUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
