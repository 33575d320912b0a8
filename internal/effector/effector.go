// Package effector executes validated actions against the outside world:
// a shell sandbox, the workspace file store, a browser, web search and the
// delegation scheduler.
//
// Effectors never return Go errors. Every outcome, including failure, is a
// Result that the worker loop turns into feedback for the model.
package effector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/taskforce/internal/protocol"
)

// Result is the outcome of one action.
type Result struct {
	Success    bool   `json:"success"`
	Output     string `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
	StatusCode int    `json:"status_code"`
}

// OK returns a successful result.
func OK(output string) Result {
	return Result{Success: true, Output: output}
}

// Fail returns a failed result with status code 1.
func Fail(format string, args ...interface{}) Result {
	return Result{Error: fmt.Sprintf(format, args...), StatusCode: 1}
}

// Effector executes one kind of action.
type Effector interface {
	Execute(ctx context.Context, a protocol.Action) Result
}

// Func adapts a function to Effector.
type Func func(ctx context.Context, a protocol.Action) Result

// Execute calls f.
func (f Func) Execute(ctx context.Context, a protocol.Action) Result {
	return f(ctx, a)
}

// Dispatcher routes actions to the effector registered for their kind.
type Dispatcher struct {
	mu        sync.RWMutex
	effectors map[protocol.Kind]Effector
	logger    *logging.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		effectors: make(map[protocol.Kind]Effector),
		logger:    logging.New().WithComponent("effector"),
	}
}

// Handle registers e for kind, replacing any previous effector.
func (d *Dispatcher) Handle(kind protocol.Kind, e Effector) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.effectors[kind] = e
}

// Handles reports whether an effector is registered for kind.
func (d *Dispatcher) Handles(kind protocol.Kind) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.effectors[kind]
	return ok
}

// Execute runs the action. Panics propagate to the caller.
func (d *Dispatcher) Execute(ctx context.Context, a protocol.Action) Result {
	d.mu.RLock()
	e, ok := d.effectors[a.Kind]
	d.mu.RUnlock()
	if !ok {
		return Fail("no effector available for %s", a.Kind)
	}

	start := time.Now()
	res := e.Execute(ctx, a)
	var err error
	if !res.Success {
		err = errors.New(res.Error)
	}
	d.logger.ToolResult(string(a.Kind), time.Since(start), err)
	return res
}

// Releaser is implemented by effectors that hold per-task resources.
// owner is the task ID recorded by orchestrator.WithParent.
type Releaser interface {
	Release(owner string)
}

// Release frees owner's resources in every effector that holds any.
func (d *Dispatcher) Release(owner string) {
	d.mu.RLock()
	seen := make(map[Releaser]bool)
	var rs []Releaser
	for _, e := range d.effectors {
		if r, ok := e.(Releaser); ok && !seen[r] {
			seen[r] = true
			rs = append(rs, r)
		}
	}
	d.mu.RUnlock()
	for _, r := range rs {
		r.Release(owner)
	}
}

// Think records reasoning without side effects.
func Think(ctx context.Context, a protocol.Action) Result {
	return OK("Thought recorded.")
}

// Set is the collection of effectors a worker loop can use. Nil members
// are left unregistered, so their actions fail with a clear message.
type Set struct {
	Workspace  *Workspace
	Sandbox    *Sandbox
	Browser    *Browser
	Searcher   *Searcher
	Delegation *Delegation
}

// Dispatcher registers every configured effector.
func (s Set) Dispatcher() *Dispatcher {
	d := NewDispatcher()
	d.Handle(protocol.KindThink, Func(Think))
	if s.Workspace != nil {
		d.Handle(protocol.KindCreateFile, Func(s.Workspace.CreateFile))
		d.Handle(protocol.KindReadFile, Func(s.Workspace.ReadFile))
		d.Handle(protocol.KindListFiles, Func(s.Workspace.ListFiles))
		d.Handle(protocol.KindUpdateTodo, Func(s.Workspace.UpdateTodo))
	}
	if s.Sandbox != nil {
		d.Handle(protocol.KindExecute, Func(s.Sandbox.Execute))
		d.Handle(protocol.KindVerify, Func(s.Sandbox.Verify))
	}
	if s.Browser != nil {
		d.Handle(protocol.KindBrowser, s.Browser)
	}
	if s.Searcher != nil {
		d.Handle(protocol.KindSearchWeb, s.Searcher)
	}
	if s.Delegation != nil {
		for _, k := range s.Delegation.Kinds() {
			d.Handle(k, s.Delegation)
		}
	}
	return d
}
