package replay

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/vinayprograms/taskforce/internal/session"
)

// writeSession stores a session with one task that executes an action,
// has another rejected, delegates once and completes.
func writeSession(t *testing.T, dir, name string) string {
	t.Helper()
	store, err := session.NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	sess, err := session.NewManager(store).Create(name)
	if err != nil {
		t.Fatal(err)
	}

	start := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	at := func(sec int) time.Time { return start.Add(time.Duration(sec) * time.Second) }

	sess.AddEvent(session.Event{Type: session.EventTaskStart, TaskID: "t1", Timestamp: at(0), Content: "build a calculator"})
	sess.AddEvent(session.Event{Type: session.EventPhase, TaskID: "t1", Timestamp: at(0), State: "planning",
		Meta: &session.EventMeta{From: "idle", To: "planning"}})
	sess.AddEvent(session.Event{Type: session.EventPhase, TaskID: "t1", Timestamp: at(2), State: "executing",
		Meta: &session.EventMeta{From: "planning", To: "executing"}})
	sess.AddEvent(session.Event{Type: session.EventAssistant, TaskID: "t1", Timestamp: at(3), Content: "creating file",
		Meta: &session.EventMeta{Iteration: 1, Model: "m1", LatencyMs: 400, TokensIn: 1000, TokensOut: 200}})
	sess.AddEvent(session.Event{Type: session.EventToolCall, TaskID: "t1", Timestamp: at(3), Tool: "CREATE_FILE",
		Args: map[string]interface{}{"PATH": "/workspace/calc.py"}})
	sess.AddEvent(session.Event{Type: session.EventToolResult, TaskID: "t1", Timestamp: at(4), Tool: "CREATE_FILE",
		Success: session.BoolPtr(true), DurationMs: 12})
	sess.AddEvent(session.Event{Type: session.EventRejected, TaskID: "t1", Timestamp: at(4), Tool: "VERIFY", State: "executing",
		Meta: &session.EventMeta{Reason: "VERIFY is not allowed while executing"}})
	sess.AddEvent(session.Event{Type: session.EventDelegation, TaskID: "t1", Timestamp: at(5), Agent: "reviewer",
		Args: map[string]interface{}{"task": "review calc.py"}, Content: "looks fine", Success: session.BoolPtr(true), DurationMs: 900,
		Meta: &session.EventMeta{Worker: "reviewer", ParentID: "t1", Status: "completed"}})
	sess.AddEvent(session.Event{Type: session.EventAssistant, TaskID: "t1", Timestamp: at(6), Content: "done",
		Meta: &session.EventMeta{Iteration: 2, Model: "m1", LatencyMs: 600, TokensIn: 3000, TokensOut: 800}})
	sess.AddEvent(session.Event{Type: session.EventLearning, TaskID: "t1", Timestamp: at(7), Content: "check paths first"})
	sess.AddEvent(session.Event{Type: session.EventTaskEnd, TaskID: "t1", Timestamp: at(8), Success: session.BoolPtr(true),
		DurationMs: 8000, Meta: &session.EventMeta{Status: "completed", Iteration: 2}})
	sess.Finish(session.StatusComplete, "Created calc.py", "")
	if err := store.Save(sess); err != nil {
		t.Fatal(err)
	}
	return store.Path(sess.ID)
}

func TestReplay_Timeline(t *testing.T) {
	path := writeSession(t, t.TempDir(), "calc")

	var buf bytes.Buffer
	if err := New(&buf, 1).ReplayFile(path); err != nil {
		t.Fatalf("ReplayFile: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"SESSION",
		"calc",
		"TASK: t1",
		"TASK START",
		"PHASE",
		"ACTION:",
		"/workspace/calc.py",
		"RESULT:",
		"REJECTED:",
		"VERIFY is not allowed while executing",
		"DELEGATE:",
		"reviewer",
		"review calc.py",
		"LEARNED",
		"TASK END",
		"COMPLETED",
		"SESSION STATISTICS",
		"Token Usage:",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestReplay_VerbosityHidesContent(t *testing.T) {
	path := writeSession(t, t.TempDir(), "calc")

	var quiet, verbose bytes.Buffer
	if err := New(&quiet, 0).ReplayFile(path); err != nil {
		t.Fatal(err)
	}
	if err := New(&verbose, 2).ReplayFile(path); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(quiet.String(), "creating file") {
		t.Error("assistant content shown at verbosity 0")
	}
	if !strings.Contains(verbose.String(), "creating file") {
		t.Error("assistant content missing at verbosity 2")
	}
	if !strings.Contains(verbose.String(), "latency:") {
		t.Error("LLM metadata missing at verbosity 2")
	}
}

func TestReplay_TruncatesContent(t *testing.T) {
	dir := t.TempDir()
	store, err := session.NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	sess, err := session.NewManager(store).Create("big")
	if err != nil {
		t.Fatal(err)
	}
	sess.AddEvent(session.Event{Type: session.EventUser, Content: strings.Repeat("x", 500)})
	if err := store.Save(sess); err != nil {
		t.Fatal(err)
	}

	r := New(&bytes.Buffer{}, 0, WithMaxContentSize(100))
	loaded, err := r.loadSession(store.Path(sess.ID))
	if err != nil {
		t.Fatal(err)
	}
	got := loaded.Events[0].Content
	if !strings.HasPrefix(got, strings.Repeat("x", 100)+"\n... [truncated") {
		t.Errorf("content not truncated: %q", got[:120])
	}
}

func TestComputeStats(t *testing.T) {
	path := writeSession(t, t.TempDir(), "calc")
	sess, err := session.LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	s := ComputeStats(sess)
	if s.Tasks != 1 || s.TaskStatus["completed"] != 1 {
		t.Errorf("tasks = %d %v", s.Tasks, s.TaskStatus)
	}
	if s.Actions != 1 || s.Rejected != 1 || s.Failed != 0 {
		t.Errorf("actions=%d rejected=%d failed=%d", s.Actions, s.Rejected, s.Failed)
	}
	if s.Delegations != 1 || s.DelegationMs != 900 {
		t.Errorf("delegations=%d ms=%d", s.Delegations, s.DelegationMs)
	}
	if s.LLMCallCount != 2 || s.LLMAvgMs != 500 {
		t.Errorf("llm calls=%d avg=%d", s.LLMCallCount, s.LLMAvgMs)
	}
	if u := s.Tokens["m1"]; u == nil || u.Calls != 2 || u.Input != 4000 || u.Output != 1000 {
		t.Errorf("tokens = %+v", s.Tokens["m1"])
	}
	if s.StateMs["planning"] != 2000 {
		t.Errorf("planning ms = %d, want 2000", s.StateMs["planning"])
	}
	if s.TotalDurationMs != 8000 {
		t.Errorf("total = %d, want 8000", s.TotalDurationMs)
	}
}

func TestParseCostSpec(t *testing.T) {
	tests := []struct {
		spec    string
		model   string
		in, out float64
		wantErr bool
	}{
		{spec: "m1:3,15", model: "m1", in: 3, out: 15},
		{spec: "*:0.5, 1.5", model: "*", in: 0.5, out: 1.5},
		{spec: "provider/model:1,2", model: "provider/model", in: 1, out: 2},
		{spec: "m1", wantErr: true},
		{spec: ":1,2", wantErr: true},
		{spec: "m1:1", wantErr: true},
		{spec: "m1:a,2", wantErr: true},
		{spec: "m1:1,b", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			model, p, err := ParseCostSpec(tt.spec)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q %+v", model, p)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if model != tt.model || p.InputPer1M != tt.in || p.OutputPer1M != tt.out {
				t.Errorf("got %q %+v", model, p)
			}
		})
	}
}

func TestPricing_Cost(t *testing.T) {
	p := Pricing{InputPer1M: 3, OutputPer1M: 15}
	got := p.Cost(TokenUsage{Input: 1_000_000, Output: 100_000})
	if math.Abs(got-4.5) > 1e-9 {
		t.Errorf("cost = %v, want 4.5", got)
	}
}

func TestPrintTokenUsage_WildcardPrice(t *testing.T) {
	stats := &Stats{Tokens: map[string]*TokenUsage{"m1": {Calls: 1, Input: 1_000_000}}}
	var buf bytes.Buffer
	PrintTokenUsage(&buf, stats, PriceTable{"*": {InputPer1M: 2}})
	if !strings.Contains(buf.String(), "$2.0000") {
		t.Errorf("missing cost in %q", buf.String())
	}
}

func TestMulti_OrdersByCreation(t *testing.T) {
	dir := t.TempDir()
	first := writeSession(t, dir, "first")
	time.Sleep(10 * time.Millisecond)
	second := writeSession(t, dir, "second")

	var buf bytes.Buffer
	if err := NewMulti(&buf, 0).ReplayFiles([]string{second, first}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	i, j := strings.Index(out, "[1/2] first"), strings.Index(out, "[2/2] second")
	if i < 0 || j < 0 || i > j {
		t.Errorf("sessions out of order:\n%s", out)
	}
}

func TestSessionName_FallsBackToFile(t *testing.T) {
	got := sessionName(&session.Session{}, filepath.Join(os.TempDir(), "abc.jsonl"))
	if got != "abc" {
		t.Errorf("got %q, want abc", got)
	}
}

func TestWrapContent(t *testing.T) {
	line := "1 │ 10:00:00 │ " + strings.Repeat("word ", 20)
	got := wrapContent(line, 40)
	lines := strings.Split(got, "\n")
	if len(lines) < 2 {
		t.Fatalf("expected wrapping, got %q", got)
	}
	prefix := strings.Repeat(" ", len("1 │ 10:00:00 │ ")-4) // │ is 3 bytes, 1 column
	for _, l := range lines[1:] {
		if !strings.HasPrefix(l, prefix) {
			t.Errorf("continuation not indented: %q", l)
		}
	}
	if wrapContent("short", 40) != "short" {
		t.Error("short line changed")
	}
}

func TestExpandPaths(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.jsonl", "a.jsonl", "notes.txt", "x.jsonl.tmp"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
	single := filepath.Join(dir, "notes.txt")

	got, err := ExpandPaths([]string{dir, single})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{filepath.Join(dir, "a.jsonl"), filepath.Join(dir, "b.jsonl"), single}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("got %v, want %v", got, want)
	}

	if _, err := ExpandPaths([]string{filepath.Join(dir, "missing")}); err == nil {
		t.Error("expected error for missing path")
	}
}

func TestCostOptions(t *testing.T) {
	opts, err := CostOptions([]string{"m1:3,15", "*:1,1"})
	if err != nil {
		t.Fatal(err)
	}
	r := New(&bytes.Buffer{}, 0, opts...)
	if len(r.prices) != 2 || r.prices["m1"].OutputPer1M != 15 {
		t.Errorf("prices = %v", r.prices)
	}
	if _, err := CostOptions([]string{"bad"}); err == nil {
		t.Error("expected error")
	}
}

func TestTruncate_RuneBoundary(t *testing.T) {
	content := truncateContent("naïve café", 3)
	if content != "na..." || !utf8.ValidString(content) {
		t.Errorf("truncateContent = %q", content)
	}
	hint := truncateHint("über alles", 4)
	if hint != "..." || !utf8.ValidString(hint) {
		t.Errorf("truncateHint = %q", hint)
	}
	if got := truncateHint("üb", 4); got != "üb" {
		t.Errorf("short hint = %q", got)
	}
}
