package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vinayprograms/agentkit/llm"

	"github.com/vinayprograms/taskforce/internal/catalog"
	"github.com/vinayprograms/taskforce/internal/effector"
	"github.com/vinayprograms/taskforce/internal/orchestrator"
	"github.com/vinayprograms/taskforce/internal/planner"
	"github.com/vinayprograms/taskforce/internal/protocol"
	"github.com/vinayprograms/taskforce/internal/session"
)

// script replays canned replies and records every request.
type script struct {
	mu       sync.Mutex
	replies  []string
	requests []Request
}

func (s *script) Complete(ctx context.Context, req Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.replies) == 0 {
		return "Still thinking about it.", nil
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r, nil
}

const createBlock = `I'll create the file.

ACTION: CREATE_FILE
PATH: /workspace/calc.py
CONTENT:
def add(a, b): return a + b
---END---`

const doneReply = `TASK_COMPLETED: Created calc.py

REFLECTION:
- What worked: small steps
- What I learned: check paths first`

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 2}
}

func newWorkspaceDispatcher(t *testing.T) (*effector.Dispatcher, string) {
	t.Helper()
	dir := t.TempDir()
	ws, err := effector.NewWorkspace(dir)
	if err != nil {
		t.Fatal(err)
	}
	return effector.Set{Workspace: ws}.Dispatcher(), ws.Root()
}

func collect(ch <-chan Event) []Event {
	var events []Event
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func types(events []Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = string(ev.Type)
		if ev.Type == EventPhaseEntered {
			out[i] += ":" + ev.String("state")
		}
	}
	return out
}

func TestRunTask_CompletesTask(t *testing.T) {
	disp, root := newWorkspaceDispatcher(t)
	s := &script{replies: []string{createBlock, doneReply}}
	exec := New(Config{MaxIterations: 5}, s, disp)

	events := collect(exec.RunTask(context.Background(), "Create a calculator"))

	want := []string{
		"phase_entered:planning", "plan_failed",
		"phase_entered:executing",
		"iteration_started", "agent_message", "action_executed",
		"iteration_started", "agent_message", "task_completed",
		"phase_entered:learning", "phase_entered:idle", "statistics",
	}
	if got := types(events); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("events:\n got %v\nwant %v", got, want)
	}

	data, err := os.ReadFile(filepath.Join(root, "calc.py"))
	if err != nil || !strings.Contains(string(data), "def add") {
		t.Errorf("calc.py = %q, %v", data, err)
	}

	done := events[8]
	if done.String("summary") != "Created calc.py" {
		t.Errorf("summary = %q", done.String("summary"))
	}
	if r, ok := done.Data["reflection"].(protocol.Reflection); !ok || r.Learned != "check paths first" {
		t.Errorf("reflection = %#v", done.Data["reflection"])
	}
	if got := exec.Learner().Learnings(); len(got) != 1 || got[0] != "check paths first" {
		t.Errorf("learnings = %v", got)
	}
}

func TestRun_SeedsHistoryAndBias(t *testing.T) {
	disp, _ := newWorkspaceDispatcher(t)
	s := &script{replies: []string{doneReply}}
	res, err := New(Config{}, s, disp).Run(context.Background(), "Say hi")
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusCompleted {
		t.Fatalf("status = %s", res.Status)
	}

	req := s.requests[0]
	if len(req.Turns) != 2 || req.Turns[0].Role != RoleSystem || req.Turns[1].Role != RoleUser {
		t.Fatalf("seed turns = %+v", req.Turns)
	}
	if !strings.Contains(req.Turns[0].Content, catalog.RenderCatalog(catalog.StateExecuting)) {
		t.Error("system turn lacks the executing catalog")
	}
	if !strings.HasPrefix(req.Turns[1].Content, "Task: Say hi") || !strings.Contains(req.Turns[1].Content, "EXECUTION MODE") {
		t.Errorf("user turn = %q", req.Turns[1].Content)
	}
	if req.Bias["ACTION: VERIFY"] != -100 {
		t.Errorf("bias = %v", req.Bias)
	}
	if _, masked := req.Bias["ACTION: CREATE_FILE"]; masked {
		t.Error("CREATE_FILE should not be masked while executing")
	}
}

func TestRun_PlansAndWritesTodo(t *testing.T) {
	disp, root := newWorkspaceDispatcher(t)
	provider := llm.NewMockProvider()
	provider.SetResponse("## Execution Plan\n1. Write calc.py\n   - Verification: python calc.py\n2. Test it")

	s := &script{replies: []string{doneReply}}
	exec := New(Config{}, s, disp, WithPlanner(planner.New(provider)))
	events := collect(exec.RunTask(context.Background(), "Build calc"))

	if events[1].Type != EventPlanCreated || events[1].Int("count") != 2 {
		t.Fatalf("second event = %+v", events[1])
	}
	todo, err := os.ReadFile(filepath.Join(root, effector.TodoFile))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(todo), "- [ ] Step 1: Write calc.py") {
		t.Errorf("todo.md = %s", todo)
	}
	if user := s.requests[0].Turns[1].Content; !strings.Contains(user, "1. Write calc.py\n   Verification: python calc.py") {
		t.Errorf("plan missing from user turn: %q", user)
	}
}

func TestRun_RejectsActionIllegalInState(t *testing.T) {
	calls := 0
	eff := effector.Func(func(ctx context.Context, a protocol.Action) effector.Result {
		calls++
		return effector.OK("")
	})
	s := &script{replies: []string{
		"ACTION: VERIFY\nWHAT: calc works\nHOW: python calc.py\n---END---",
		doneReply,
	}}
	exec := New(Config{}, s, eff)
	events := collect(exec.RunTask(context.Background(), "calc"))

	var rejected *Event
	for i := range events {
		if events[i].Type == EventActionRejected {
			rejected = &events[i]
		}
	}
	if rejected == nil {
		t.Fatalf("no action_rejected in %v", types(events))
	}
	if rejected.String("action") != "VERIFY" || !strings.Contains(rejected.String("reason"), "not available in state executing") {
		t.Errorf("rejected = %+v", rejected.Data)
	}
	if calls != 0 {
		t.Errorf("effector called %d times", calls)
	}

	turns := s.requests[1].Turns
	last := turns[len(turns)-1]
	if last.Role != RoleUser || !strings.HasPrefix(last.Content, "❌ Action rejected: Action VERIFY not available") ||
		!strings.Contains(last.Content, "EXECUTION MODE") {
		t.Errorf("rejection turn = %+v", last)
	}
}

func TestRun_NudgesWhenNoActions(t *testing.T) {
	s := &script{replies: []string{"Let me think.", doneReply}}
	res, err := New(Config{}, s, effector.NewDispatcher()).Run(context.Background(), "x")
	if err != nil {
		t.Fatal(err)
	}
	if res.Stats.Iterations != 2 {
		t.Errorf("iterations = %d", res.Stats.Iterations)
	}
	turns := s.requests[1].Turns
	if turns[len(turns)-1].Content != nudge {
		t.Errorf("last turn = %q", turns[len(turns)-1].Content)
	}
}

func TestRun_Timeout(t *testing.T) {
	s := &script{}
	exec := New(Config{MaxIterations: 3}, s, effector.NewDispatcher())
	events := collect(exec.RunTask(context.Background(), "never ends"))

	got := types(events)
	tail := strings.Join(got[len(got)-4:], ",")
	if tail != "task_timeout,phase_entered:learning,phase_entered:idle,statistics" {
		t.Errorf("tail = %s", tail)
	}
	if len(s.requests) != 3 {
		t.Errorf("requests = %d", len(s.requests))
	}

	res, err := New(Config{MaxIterations: 2}, &script{}, effector.NewDispatcher()).Run(context.Background(), "x")
	if !errors.Is(err, ErrMaxIterations) || res.Status != StatusTimeout {
		t.Errorf("status = %s, err = %v", res.Status, err)
	}
}

func TestRun_ProviderFailureAfterRetries(t *testing.T) {
	calls := 0
	failing := CompleterFunc(func(ctx context.Context, req Request) (string, error) {
		calls++
		return "", errors.New("503 overloaded")
	})
	res, err := New(Config{Retry: fastRetry()}, failing, effector.NewDispatcher()).Run(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "503 overloaded") {
		t.Fatalf("err = %v", err)
	}
	if res.Status != StatusFailed || calls != 2 {
		t.Errorf("status = %s, calls = %d", res.Status, calls)
	}
	if n := len(res.Transitions); n != 4 || res.Transitions[n-1].To != catalog.StateIdle {
		t.Errorf("transitions = %+v", res.Transitions)
	}
}

func TestRun_RetryRecovers(t *testing.T) {
	calls := 0
	flaky := CompleterFunc(func(ctx context.Context, req Request) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("timeout")
		}
		return doneReply, nil
	})
	res, err := New(Config{Retry: fastRetry()}, flaky, effector.NewDispatcher()).Run(context.Background(), "x")
	if err != nil || res.Status != StatusCompleted {
		t.Errorf("status = %s, err = %v", res.Status, err)
	}
}

func TestRun_EffectorPanicFailsTask(t *testing.T) {
	eff := effector.Func(func(ctx context.Context, a protocol.Action) effector.Result {
		panic("sandbox exploded")
	})
	s := &script{replies: []string{"ACTION: EXECUTE\nCOMMAND: ls\n---END---"}}
	events := collect(New(Config{}, s, eff).RunTask(context.Background(), "x"))

	got := types(events)
	if !contains(got, "task_failed") || got[len(got)-1] != "statistics" || got[len(got)-2] != "phase_entered:idle" {
		t.Fatalf("events = %v", got)
	}
	for _, ev := range events {
		if ev.Type == EventTaskFailed && !strings.Contains(ev.String("error"), "sandbox exploded") {
			t.Errorf("error = %q", ev.String("error"))
		}
	}
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &script{}
	res, err := New(Config{}, s, effector.NewDispatcher()).Run(ctx, "x")
	if !errors.Is(err, context.Canceled) || res.Status != StatusCancelled {
		t.Errorf("status = %s, err = %v", res.Status, err)
	}
	if len(s.requests) != 0 {
		t.Errorf("completer called %d times after cancel", len(s.requests))
	}
}

func TestRun_CancelledBetweenActions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var ran []string
	eff := effector.Func(func(ctx context.Context, a protocol.Action) effector.Result {
		ran = append(ran, a.Field("THOUGHT"))
		cancel()
		return effector.OK("ok")
	})
	s := &script{replies: []string{"ACTION: THINK\nTHOUGHT: one\n---END---\nACTION: THINK\nTHOUGHT: two\n---END---"}}
	res, _ := New(Config{}, s, eff).Run(ctx, "x")
	if res.Status != StatusCancelled || len(ran) != 1 {
		t.Errorf("status = %s, ran = %v", res.Status, ran)
	}
}

func TestRun_HistoryIsAppendOnly(t *testing.T) {
	s := &script{replies: []string{
		"ACTION: THINK\nTHOUGHT: plan\n---END---",
		"ACTION: VERIFY\nWHAT: a\nHOW: b\n---END---",
		"nothing",
		doneReply,
	}}
	res, err := New(Config{}, s, effector.NewDispatcher()).Run(context.Background(), "x")
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(s.requests); i++ {
		prev, cur := s.requests[i-1].Turns, s.requests[i].Turns
		if len(cur) <= len(prev) {
			t.Fatalf("request %d did not grow: %d -> %d", i, len(prev), len(cur))
		}
		for j := range prev {
			if prev[j] != cur[j] {
				t.Fatalf("request %d changed turn %d", i, j)
			}
		}
	}
	last := s.requests[len(s.requests)-1].Turns
	for j := range last {
		if res.History[j] != last[j] {
			t.Fatalf("final history changed turn %d", j)
		}
	}
	if res.History[len(res.History)-1].Role != RoleAssistant {
		t.Error("final turn should be the completion")
	}
}

func TestRun_FailuresBecomeLearnings(t *testing.T) {
	eff := effector.Func(func(ctx context.Context, a protocol.Action) effector.Result {
		r := effector.Fail("command not found: pytest")
		r.StatusCode = 127
		return r
	})
	s := &script{replies: []string{"ACTION: EXECUTE\nCOMMAND: pytest\n---END---"}}
	exec := New(Config{MaxIterations: 2}, s, eff)

	res, _ := exec.Run(context.Background(), "run tests")
	if res.Stats.Errors != 1 || res.Stats.Tests != 1 {
		t.Errorf("stats = %+v", res.Stats)
	}
	fb := s.requests[1].Turns[len(s.requests[1].Turns)-1].Content
	if !strings.HasPrefix(fb, "❌ EXECUTE failed.\nError: command not found: pytest") || !strings.Contains(fb, "Exit code: 127") {
		t.Errorf("feedback = %q", fb)
	}

	learner := exec.Learner().(*SessionLearner)
	if errs := learner.Errors(); len(errs) != 1 || errs[0].State != catalog.StateExecuting || errs[0].Iteration != 1 {
		t.Errorf("errors = %+v", errs)
	}
	want := "Avoid: command not found: pytest when doing EXECUTE"
	if got := learner.Learnings(); len(got) != 1 || got[0] != want {
		t.Fatalf("learnings = %v", got)
	}

	next := &script{replies: []string{doneReply}}
	exec2 := New(Config{}, next, eff, WithLearner(learner))
	if _, err := exec2.Run(context.Background(), "again"); err != nil {
		t.Fatal(err)
	}
	seed := next.requests[0].Turns
	if len(seed) != 3 || seed[2].Role != RoleSystem || !strings.Contains(seed[2].Content, want) {
		t.Errorf("learnings turn = %+v", seed)
	}
}

func TestRun_ConcurrentTasksDoNotShareState(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]int{}
	sink := SinkFunc(func(taskID string, ev Event) {
		mu.Lock()
		defer mu.Unlock()
		if ev.Type == EventPhaseEntered {
			seen[taskID]++
		}
	})
	done := CompleterFunc(func(ctx context.Context, req Request) (string, error) {
		return doneReply, nil
	})
	exec := New(Config{}, done, effector.NewDispatcher(), WithSink(sink))

	var wg sync.WaitGroup
	results := make([]*TaskResult, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = exec.Run(context.Background(), "parallel")
		}(i)
	}
	wg.Wait()

	for i, res := range results {
		if res.Status != StatusCompleted || len(res.Transitions) != 4 {
			t.Errorf("task %d: status %s, %d transitions", i, res.Status, len(res.Transitions))
		}
	}
	if len(seen) != 8 {
		t.Errorf("sink saw %d tasks", len(seen))
	}
	for id, n := range seen {
		if n != 4 {
			t.Errorf("%s: %d phase events", id, n)
		}
	}
}

func TestRun_RecordsSession(t *testing.T) {
	store, err := session.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	mgr := session.NewManager(store)
	sess, _ := mgr.Create("calc")

	s := &script{replies: []string{"ACTION: CREATE_FILE\nPATH: a.txt\n---END---\n" + createBlock, doneReply}}
	disp, _ := newWorkspaceDispatcher(t)
	if _, err := New(Config{}, s, disp, WithSession(sess, mgr)).Run(context.Background(), "calc"); err != nil {
		t.Fatal(err)
	}

	loaded, err := mgr.Get(sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	counts := map[string]int{}
	for _, ev := range loaded.Events {
		counts[ev.Type]++
	}
	if counts[session.EventTaskStart] != 1 || counts[session.EventTaskEnd] != 1 {
		t.Errorf("counts = %v", counts)
	}
	if counts[session.EventPhase] != 4 || counts[session.EventToolCall] != 1 || counts[session.EventToolResult] != 1 {
		t.Errorf("counts = %v", counts)
	}
	// The CREATE_FILE block without CONTENT is dropped and reported.
	if counts[session.EventDiagnostic] != 1 {
		t.Errorf("diagnostics = %d", counts[session.EventDiagnostic])
	}
	if counts[session.EventAssistant] != 2 {
		t.Errorf("assistant turns = %d", counts[session.EventAssistant])
	}
}

func TestWorker_RunsDelegatedTask(t *testing.T) {
	s := &script{replies: []string{doneReply}}
	exec := New(Config{}, s, effector.NewDispatcher())

	o := orchestrator.New(orchestrator.Config{})
	if err := o.Register("agent", 5, NewWorker(exec)); err != nil {
		t.Fatal(err)
	}
	task := o.Delegate(context.Background(), "agent", "Build calc", map[string]interface{}{"language": "go"}, "")
	if !task.Succeeded() || task.Result != "Created calc.py" {
		t.Fatalf("task = %+v", task)
	}
	user := s.requests[0].Turns[1].Content
	if !strings.Contains(user, "Build calc\n\nContext:\n- language: go") {
		t.Errorf("user turn = %q", user)
	}

	failing := New(Config{MaxIterations: 1}, &script{}, effector.NewDispatcher())
	o.Register("stuck", 1, NewWorker(failing))
	if task := o.Delegate(context.Background(), "stuck", "x", nil, ""); task.Status != orchestrator.StatusFailed {
		t.Errorf("status = %s", task.Status)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// pageHolder is an effector holding per-task resources.
type pageHolder struct {
	mu       sync.Mutex
	used     []string
	released []string
}

func (p *pageHolder) Execute(ctx context.Context, a protocol.Action) effector.Result {
	owner, _ := orchestrator.ParentFrom(ctx)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.used = append(p.used, owner)
	return effector.OK("ok")
}

func (p *pageHolder) Release(owner string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released = append(p.released, owner)
}

func TestRun_ReleasesTaskResources(t *testing.T) {
	holder := &pageHolder{}
	disp := effector.NewDispatcher()
	disp.Handle(protocol.KindBrowser, holder)

	browse := "ACTION: BROWSER\nTASK: open https://go.dev\n---END---"
	s := &script{replies: []string{browse, doneReply}}
	res, err := New(Config{MaxIterations: 5}, s, disp).Run(context.Background(), "Read go.dev")
	if err != nil {
		t.Fatal(err)
	}

	if len(holder.used) != 1 || holder.used[0] != res.TaskID {
		t.Errorf("actions ran for %v, want [%s]", holder.used, res.TaskID)
	}
	if len(holder.released) != 1 || holder.released[0] != res.TaskID {
		t.Errorf("released %v, want [%s]", holder.released, res.TaskID)
	}
}
