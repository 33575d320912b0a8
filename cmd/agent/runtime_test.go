package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vinayprograms/taskforce/internal/config"
	"github.com/vinayprograms/taskforce/internal/executor"
	"github.com/vinayprograms/taskforce/internal/orchestrator"
	"github.com/vinayprograms/taskforce/internal/session"
)

func TestRetryPolicy(t *testing.T) {
	p := retryPolicy(config.RetryConfig{MaxAttempts: 4, InitialBackoff: "200ms", MaxBackoff: "2s", Multiplier: 3})
	if p.MaxAttempts != 4 || p.InitialBackoff != 200*time.Millisecond || p.MaxBackoff != 2*time.Second || p.Multiplier != 3 {
		t.Errorf("got %+v", p)
	}
	if got := retryPolicy(config.RetryConfig{}); got != executor.DefaultRetryPolicy() {
		t.Errorf("zero config = %+v, want default", got)
	}
}

func TestSessionStatus(t *testing.T) {
	tests := map[executor.Status]string{
		executor.StatusCompleted: session.StatusComplete,
		executor.StatusTimeout:   session.StatusTimeout,
		executor.StatusCancelled: session.StatusCancelled,
		executor.StatusFailed:    session.StatusFailed,
	}
	for in, want := range tests {
		if got := sessionStatus(in); got != want {
			t.Errorf("sessionStatus(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestAPIKey(t *testing.T) {
	rt := newRuntime(&config.Config{}, nil)

	t.Setenv("ANTHROPIC_API_KEY", "from-default")
	if got := rt.apiKey("anthropic", config.LLMConfig{}); got != "from-default" {
		t.Errorf("default env: got %q", got)
	}

	t.Setenv("MY_KEY", "from-custom")
	if got := rt.apiKey("anthropic", config.LLMConfig{APIKeyEnv: "MY_KEY"}); got != "from-custom" {
		t.Errorf("custom env: got %q", got)
	}

	if got := rt.apiKey("unknown", config.LLMConfig{}); got != "" {
		t.Errorf("unknown provider: got %q", got)
	}
}

func TestRecordDelegation(t *testing.T) {
	store, err := session.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	rt := newRuntime(&config.Config{}, nil)
	rt.store = store
	rt.sessionMgr = session.NewManager(store)
	rt.sess, err = rt.sessionMgr.Create("test")
	if err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	rt.taskFinished(orchestrator.DelegatedTask{
		ID:          "d1",
		Worker:      "code",
		Description: "write calc.py",
		Status:      orchestrator.StatusCompleted,
		Result:      42,
		StartedAt:   start,
		CompletedAt: start.Add(1500 * time.Millisecond),
		ParentID:    "t1",
	})

	loaded, err := session.LoadFile(rt.sessionPath())
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Events) != 1 {
		t.Fatalf("events = %d, want 1", len(loaded.Events))
	}
	ev := loaded.Events[0]
	if ev.Type != session.EventDelegation || ev.Agent != "code" || ev.TaskID != "t1" {
		t.Errorf("event = %+v", ev)
	}
	if ev.Content != "42" || ev.DurationMs != 1500 {
		t.Errorf("content=%q duration=%d", ev.Content, ev.DurationMs)
	}
	if ev.Success == nil || !*ev.Success {
		t.Error("expected success")
	}
	if ev.Meta == nil || ev.Meta.Status != "completed" {
		t.Errorf("meta = %+v", ev.Meta)
	}
}

func TestPlanFailed(t *testing.T) {
	done := &orchestrator.DelegatedTask{Status: orchestrator.StatusCompleted}
	failed := &orchestrator.DelegatedTask{Status: orchestrator.StatusFailed}

	tests := []struct {
		name string
		res  *orchestrator.PlanResult
		want string
	}{
		{"all done", &orchestrator.PlanResult{Tasks: []*orchestrator.DelegatedTask{done, done}}, ""},
		{"one failed", &orchestrator.PlanResult{Tasks: []*orchestrator.DelegatedTask{done, failed}}, "1 of 2"},
		{"consensus", &orchestrator.PlanResult{Consensus: &orchestrator.ConsensusResult{Consensus: true}}, ""},
		{"no consensus", &orchestrator.PlanResult{Consensus: &orchestrator.ConsensusResult{Agreement: 0.5, MinAgreement: 0.6}}, "no consensus"},
		{"hierarchical", &orchestrator.PlanResult{Hierarchical: &orchestrator.HierarchicalResult{Successful: 1}}, ""},
		{"hierarchical failed", &orchestrator.PlanResult{Hierarchical: &orchestrator.HierarchicalResult{Failed: 2}}, "every subtask"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := planFailed(tt.res)
			if tt.want == "" && got != "" {
				t.Errorf("got %q, want success", got)
			}
			if tt.want != "" && !strings.Contains(got, tt.want) {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPrintCatalog(t *testing.T) {
	var buf bytes.Buffer
	if err := printCatalog(&buf, "", false); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Allowed actions per state") || !strings.Contains(buf.String(), "executing") {
		t.Errorf("overview missing states:\n%s", buf.String())
	}

	buf.Reset()
	if err := printCatalog(&buf, "executing", true); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Decoding bias") {
		t.Errorf("bias missing:\n%s", buf.String())
	}

	if err := printCatalog(&buf, "dreaming", false); err == nil {
		t.Error("expected error for unknown state")
	}
}

func TestProgressLine(t *testing.T) {
	tests := []struct {
		ev   executor.Event
		want string
	}{
		{executor.Event{Type: executor.EventPhaseEntered, Data: map[string]interface{}{"state": "planning"}}, "planning"},
		{executor.Event{Type: executor.EventActionExecuted, Data: map[string]interface{}{"action": "CREATE_FILE", "success": true}}, "CREATE_FILE"},
		{executor.Event{Type: executor.EventActionRejected, Data: map[string]interface{}{"action": "VERIFY", "reason": "not allowed"}}, "not allowed"},
		{executor.Event{Type: executor.EventTaskFailed, Data: map[string]interface{}{"error": "boom"}}, "boom"},
		{executor.Event{Type: executor.EventAgentMessage}, ""},
	}
	for _, tt := range tests {
		got := progressLine(tt.ev)
		if tt.want == "" {
			if got != "" {
				t.Errorf("%s: got %q, want no line", tt.ev.Type, got)
			}
			continue
		}
		if !strings.Contains(got, tt.want) {
			t.Errorf("%s: got %q, want %q", tt.ev.Type, got, tt.want)
		}
	}
}

func TestProgressSink(t *testing.T) {
	var buf bytes.Buffer
	s := newProgressSink(&buf)
	s.Publish("0123456789abcdef", executor.Event{Type: executor.EventPhaseEntered, Data: map[string]interface{}{"state": "executing"}})
	s.Publish("0123456789abcdef", executor.Event{Type: executor.EventStatistics})
	out := buf.String()
	if strings.Count(out, "\n") != 1 || !strings.Contains(out, "[01234567]") {
		t.Errorf("got %q", out)
	}
}

func TestOneLine(t *testing.T) {
	if got := oneLine("a\n  b\tc", 20); got != "a b c" {
		t.Errorf("got %q", got)
	}
	if got := oneLine(strings.Repeat("x", 30), 10); got != "xxxxxxx..." {
		t.Errorf("got %q", got)
	}
	if got := oneLine("aé€xyz", 7); got != "aé..." {
		t.Errorf("got %q", got)
	}
}

func TestTUIModel(t *testing.T) {
	cancelled := 0
	m := newTUIModel("build a calculator", func() { cancelled++ })

	m.Update(taskEventMsg{taskID: "t1", ev: executor.Event{Type: executor.EventPhaseEntered, Data: map[string]interface{}{"state": "executing"}}})
	m.Update(taskEventMsg{taskID: "t1", ev: executor.Event{Type: executor.EventIterationStarted, Data: map[string]interface{}{"iteration": 2, "max_iterations": 10}}})
	if m.state != "executing" || m.iteration != 2 || m.maxIter != 10 {
		t.Errorf("state=%s iteration=%d/%d", m.state, m.iteration, m.maxIter)
	}
	if !strings.Contains(m.View(), "iteration 2/10") {
		t.Errorf("view missing iteration:\n%s", m.View())
	}

	for i := 0; i < maxTUILines+5; i++ {
		m.Update(taskEventMsg{ev: executor.Event{Type: executor.EventActionExecuted, Data: map[string]interface{}{"action": "READ_FILE", "success": true}}})
	}
	if len(m.lines) != maxTUILines {
		t.Errorf("lines = %d, want %d", len(m.lines), maxTUILines)
	}

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cancelled != 1 {
		t.Errorf("cancel called %d times, want 1", cancelled)
	}

	_, cmd := m.Update(taskDoneMsg{res: &executor.TaskResult{Status: executor.StatusCancelled}, err: context.Canceled})
	if cmd == nil || !m.done {
		t.Fatal("expected quit after task finished")
	}
	if !strings.Contains(m.View(), "cancelled") {
		t.Errorf("view missing outcome:\n%s", m.View())
	}
}

func TestExitCode(t *testing.T) {
	if got := exitCode(&exitError{code: exitTimeout, err: errors.New("slow")}); got != exitTimeout {
		t.Errorf("got %d", got)
	}
	wrapped := errors.Join(errors.New("ctx"), &exitError{code: exitCancelled, err: context.Canceled})
	if got := exitCode(wrapped); got != exitCancelled {
		t.Errorf("wrapped: got %d", got)
	}
	if got := exitCode(errors.New("plain")); got != exitFailed {
		t.Errorf("plain: got %d", got)
	}
}
