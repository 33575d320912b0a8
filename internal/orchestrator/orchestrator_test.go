package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// echo returns its description.
func echo() ExecutorFunc {
	return func(ctx context.Context, description string, payload map[string]interface{}) (interface{}, error) {
		return description, nil
	}
}

// constant returns v for every task.
func constant(v interface{}) ExecutorFunc {
	return func(ctx context.Context, description string, payload map[string]interface{}) (interface{}, error) {
		return v, nil
	}
}

func failing(msg string) ExecutorFunc {
	return func(ctx context.Context, description string, payload map[string]interface{}) (interface{}, error) {
		return nil, errors.New(msg)
	}
}

func mustRegister(t *testing.T, o *Orchestrator, name string, priority int, exec Executor, opts ...Option) {
	t.Helper()
	if err := o.Register(name, priority, exec, opts...); err != nil {
		t.Fatalf("Register(%s): %v", name, err)
	}
}

func TestRegister_Duplicate(t *testing.T) {
	o := New(Config{})
	mustRegister(t, o, "code", 5, echo())
	err := o.Register("code", 7, echo())
	if !errors.Is(err, ErrDuplicateWorker) {
		t.Errorf("expected ErrDuplicateWorker, got %v", err)
	}
	if err := o.Register("", 1, echo()); err == nil {
		t.Error("expected error for empty name")
	}
	if err := o.Register("nil", 1, nil); err == nil {
		t.Error("expected error for nil executor")
	}
}

func TestDelegate_Success(t *testing.T) {
	o := New(Config{})
	mustRegister(t, o, "knowledge", 5, echo())

	task := o.Delegate(context.Background(), "knowledge", "research gin", map[string]interface{}{"q": 1}, "")
	if task.Status != StatusCompleted {
		t.Fatalf("status = %s, error = %s", task.Status, task.Error)
	}
	if task.Result != "research gin" {
		t.Errorf("result = %v", task.Result)
	}
	if task.StartedAt.IsZero() || task.CompletedAt.Before(task.StartedAt) {
		t.Errorf("bad timestamps %v %v", task.StartedAt, task.CompletedAt)
	}
	if !strings.HasPrefix(task.ID, "task-") {
		t.Errorf("unexpected id %q", task.ID)
	}

	snap, ok := o.Task(task.ID)
	if !ok || snap.Status != StatusCompleted {
		t.Errorf("Task(%s) = %+v, %v", task.ID, snap, ok)
	}
}

func TestDelegate_UnavailableWorker(t *testing.T) {
	var calls int32
	counting := ExecutorFunc(func(ctx context.Context, d string, p map[string]interface{}) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return "x", nil
	})

	o := New(Config{})
	mustRegister(t, o, "review", 5, counting)
	if err := o.Deactivate("review"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		worker string
		want   string
	}{
		{"review", "not active"},
		{"ghost", "not registered"},
	}
	for _, tt := range tests {
		task := o.Delegate(context.Background(), tt.worker, "look", nil, "")
		if task.Status != StatusFailed {
			t.Errorf("%s: status = %s, want failed", tt.worker, task.Status)
		}
		if !strings.Contains(task.Error, tt.want) {
			t.Errorf("%s: error = %q, want substring %q", tt.worker, task.Error, tt.want)
		}
		if !task.StartedAt.IsZero() {
			t.Errorf("%s: task should never have started", tt.worker)
		}
	}
	if calls != 0 {
		t.Errorf("executor called %d times", calls)
	}

	if err := o.Activate("review"); err != nil {
		t.Fatal(err)
	}
	if task := o.Delegate(context.Background(), "review", "look", nil, ""); task.Status != StatusCompleted {
		t.Errorf("reactivated worker: status = %s", task.Status)
	}
	if err := o.Activate("ghost"); !errors.Is(err, ErrUnknownWorker) {
		t.Errorf("Activate(ghost) = %v", err)
	}
}

func TestDelegate_ErrorAndPanic(t *testing.T) {
	o := New(Config{})
	mustRegister(t, o, "broken", 5, failing("disk full"))
	mustRegister(t, o, "panicky", 5, ExecutorFunc(func(ctx context.Context, d string, p map[string]interface{}) (interface{}, error) {
		panic("boom")
	}))

	task := o.Delegate(context.Background(), "broken", "x", nil, "")
	if task.Status != StatusFailed || task.Error != "disk full" {
		t.Errorf("broken: %s %q", task.Status, task.Error)
	}
	task = o.Delegate(context.Background(), "panicky", "x", nil, "")
	if task.Status != StatusFailed || !strings.Contains(task.Error, "boom") {
		t.Errorf("panicky: %s %q", task.Status, task.Error)
	}
}

func TestDelegate_Cancelled(t *testing.T) {
	o := New(Config{})
	mustRegister(t, o, "code", 5, echo())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	task := o.Delegate(ctx, "code", "x", nil, "")
	if task.Status != StatusCancelled {
		t.Errorf("status = %s, want cancelled", task.Status)
	}
}

func TestDelegate_Timeout(t *testing.T) {
	o := New(Config{})
	slow := ExecutorFunc(func(ctx context.Context, d string, p map[string]interface{}) (interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	mustRegister(t, o, "slow", 5, slow, WithTimeout(20*time.Millisecond))

	task := o.Delegate(context.Background(), "slow", "x", nil, "")
	if task.Status != StatusFailed {
		t.Errorf("status = %s, want failed", task.Status)
	}
	if !strings.Contains(task.Error, "deadline") {
		t.Errorf("error = %q", task.Error)
	}
}

func TestDelegate_ParentPropagates(t *testing.T) {
	o := New(Config{})
	var seen string
	mustRegister(t, o, "outer", 5, ExecutorFunc(func(ctx context.Context, d string, p map[string]interface{}) (interface{}, error) {
		id, _ := ParentFrom(ctx)
		seen = id
		return "ok", nil
	}))

	task := o.Delegate(context.Background(), "outer", "x", nil, "root")
	if task.ParentID != "root" {
		t.Errorf("parent = %q", task.ParentID)
	}
	if seen != task.ID {
		t.Errorf("executor saw parent %q, want own id %q", seen, task.ID)
	}
}

func TestRoute(t *testing.T) {
	o := New(Config{})
	mustRegister(t, o, "knowledge", 5, echo(), WithKeywords("search", "research", "find"))
	mustRegister(t, o, "code", 7, echo(), WithKeywords("code", "implement", "write"))
	mustRegister(t, o, "debug", 6, echo(), WithKeywords("debug", "fix", "error"))

	tests := []struct {
		desc string
		want string
		ok   bool
	}{
		{"Research the best HTTP routers", "knowledge", true},
		{"Implement a parser and fix the error", "code", true},
		{"Fix the flaky error", "debug", true},
		{"Sing a song", "", false},
	}
	for _, tt := range tests {
		got, ok := o.Route(tt.desc)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Route(%q) = %q, %v; want %q, %v", tt.desc, got, ok, tt.want, tt.ok)
		}
	}

	_ = o.Deactivate("code")
	if got, _ := o.Route("implement a parser"); got != "" {
		t.Errorf("inactive worker routed: %q", got)
	}
}

func TestStatistics(t *testing.T) {
	o := New(Config{})
	mustRegister(t, o, "good", 5, echo())
	mustRegister(t, o, "bad", 5, failing("nope"))

	o.Delegate(context.Background(), "good", "a", nil, "")
	o.Delegate(context.Background(), "good", "b", nil, "")
	o.Delegate(context.Background(), "bad", "c", nil, "")
	o.Delegate(context.Background(), "ghost", "d", nil, "")

	s := o.Statistics()
	if s.TotalTasks != 4 || s.Workers != 2 || s.ActiveWorkers != 2 {
		t.Errorf("unexpected totals %+v", s)
	}
	if s.ByStatus[StatusCompleted] != 2 || s.ByStatus[StatusFailed] != 2 {
		t.Errorf("by status = %v", s.ByStatus)
	}
	if s.ByWorker["good"] != 2 || s.ByWorker["ghost"] != 1 {
		t.Errorf("by worker = %v", s.ByWorker)
	}
	if s.SuccessRate != 50 {
		t.Errorf("success rate = %v", s.SuccessRate)
	}
	if got := len(o.Tasks()); got != 4 {
		t.Errorf("registry holds %d tasks", got)
	}
}

func TestOnTaskFinished(t *testing.T) {
	o := New(Config{})
	mustRegister(t, o, "code", 5, echo())
	var got []DelegatedTask
	o.OnTaskFinished = func(task DelegatedTask) { got = append(got, task) }

	o.Delegate(context.Background(), "code", "a", nil, "")
	o.Delegate(context.Background(), "ghost", "b", nil, "")
	if len(got) != 2 {
		t.Fatalf("hook called %d times", len(got))
	}
	if got[0].Status != StatusCompleted || got[1].Status != StatusFailed {
		t.Errorf("hook statuses %s %s", got[0].Status, got[1].Status)
	}
}

func TestTruncate_RuneBoundary(t *testing.T) {
	if got := truncate("日本語", 5); got != "日..." {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("abc", 5); got != "abc" {
		t.Errorf("truncate = %q", got)
	}
}
