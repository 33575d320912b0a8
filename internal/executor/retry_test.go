package executor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vinayprograms/agentkit/llm"

	"github.com/vinayprograms/taskforce/internal/effector"
	"github.com/vinayprograms/taskforce/internal/protocol"
)

func TestRetryPolicy_Backoff(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, InitialBackoff: time.Second, MaxBackoff: 5 * time.Second, Multiplier: 2}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 0},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 5 * time.Second},
		{10, 5 * time.Second},
	}
	for _, tt := range tests {
		if got := p.Backoff(tt.attempt); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
	if got := (RetryPolicy{}).Backoff(3); got != 0 {
		t.Errorf("zero policy backoff = %v", got)
	}
}

func TestRetryPolicy_Do(t *testing.T) {
	p := fastRetry()
	p.MaxAttempts = 3

	calls, retries := 0, 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("boom")
	}, func(attempt int, err error) { retries++ })
	if err == nil || !strings.HasPrefix(err.Error(), "after 3 attempts: boom") {
		t.Errorf("err = %v", err)
	}
	if calls != 3 || retries != 2 {
		t.Errorf("calls = %d, retries = %d", calls, retries)
	}

	ctx, cancel := context.WithCancel(context.Background())
	calls = 0
	err = p.Do(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("boom")
	}, nil)
	if !errors.Is(err, context.Canceled) || calls != 1 {
		t.Errorf("cancelled: err = %v, calls = %d", err, calls)
	}
}

func TestFeedback(t *testing.T) {
	tests := []struct {
		name   string
		action protocol.Action
		res    effector.Result
		want   []string
	}{
		{
			name:   "execute ok",
			action: protocol.Action{Kind: protocol.KindExecute, Fields: map[string]string{"COMMAND": "ls"}},
			res:    effector.OK("a.txt"),
			want:   []string{"✅ EXECUTE succeeded.\n", "Command: ls\n", "Output:\na.txt\n", "Exit code: 0\n", "What's the next step?"},
		},
		{
			name:   "read preview",
			action: protocol.Action{Kind: protocol.KindReadFile},
			res:    effector.OK(strings.Repeat("x", 600)),
			want:   []string{"File content (first 500 chars):\n" + strings.Repeat("x", 500) + "...\n"},
		},
		{
			name:   "create",
			action: protocol.Action{Kind: protocol.KindCreateFile},
			res:    effector.OK("/workspace/a.py"),
			want:   []string{"File created at: /workspace/a.py\n"},
		},
		{
			name:   "list",
			action: protocol.Action{Kind: protocol.KindListFiles},
			res:    effector.OK(`[{"name":"a","type":"file","size":1}]`),
			want:   []string{"Found 1 files/directories:\n"},
		},
		{
			name:   "failure",
			action: protocol.Action{Kind: protocol.KindReadFile},
			res:    effector.Result{},
			want:   []string{"❌ READ_FILE failed.\nError: Unknown error\n", "IMPORTANT: Learn from this error!"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := feedback(tt.action, tt.res)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("feedback missing %q:\n%s", w, got)
				}
			}
		})
	}
}

func TestDescribe(t *testing.T) {
	if got := describe("task", nil); got != "task" {
		t.Errorf("got %q", got)
	}
	got := describe("task", map[string]interface{}{"b": 2, "a": "x"})
	if got != "task\n\nContext:\n- a: x\n- b: 2" {
		t.Errorf("got %q", got)
	}
}

func TestProviderCompleter(t *testing.T) {
	provider := llm.NewMockProvider()
	provider.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
		return &llm.ChatResponse{Content: "ACTION: THINK", Model: "mock", InputTokens: 10, OutputTokens: 2}, nil
	}
	c := NewProviderCompleter(provider, 0, 0)
	var usage Usage
	c.OnUsage = func(u Usage) { usage = u }

	reply, err := c.Complete(context.Background(), Request{
		Turns: []Turn{{Role: RoleSystem, Content: "sys"}, {Role: RoleUser, Content: "go"}},
		Bias:  map[string]float64{"ACTION: VERIFY": -100},
	})
	if err != nil || reply != "ACTION: THINK" {
		t.Fatalf("reply = %q, err = %v", reply, err)
	}
	if usage.Model != "mock" || usage.TokensIn != 10 || usage.TokensOut != 2 {
		t.Errorf("usage = %+v", usage)
	}

	provider.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("messages = %+v", req.Messages)
		}
		return nil, errors.New("down")
	}
	if _, err := c.Complete(context.Background(), Request{Turns: []Turn{{Role: RoleUser, Content: "x"}}}); err == nil {
		t.Error("expected provider error")
	}
}

// chatOnly implements nothing beyond llm.Provider.
type chatOnly struct {
	reply *llm.ChatResponse
}

var _ llm.Provider = chatOnly{}

func (c chatOnly) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return c.reply, nil
}

func TestProviderCompleter_ChatOnlyProvider(t *testing.T) {
	c := NewProviderCompleter(chatOnly{reply: &llm.ChatResponse{Content: "ACTION: THINK", Model: "bare", InputTokens: 3, OutputTokens: 1}}, 0, 0)
	reply, usage, err := c.CompleteWithUsage(context.Background(), Request{
		Turns: []Turn{{Role: RoleUser, Content: "go"}},
		Bias:  map[string]float64{"ACTION: VERIFY": -100},
	})
	if err != nil || reply != "ACTION: THINK" {
		t.Fatalf("reply = %q, err = %v", reply, err)
	}
	if usage.Model != "bare" || usage.TokensIn != 3 || usage.TokensOut != 1 {
		t.Errorf("usage = %+v", usage)
	}
}

func TestSessionLearner_Dedupes(t *testing.T) {
	l := NewSessionLearner()
	l.Reflect("a", protocol.Reflection{Learned: "use go test"})
	l.Reflect("b", protocol.Reflection{Learned: "use go test"})
	for i := 0; i < 7; i++ {
		l.RecordError(ErrorRecord{TaskID: "t1", Kind: protocol.KindExecute, Message: string(rune('a' + i))})
	}
	l.RecordError(ErrorRecord{TaskID: "t2", Kind: protocol.KindExecute, Message: "other"})
	l.Conclude("t1")

	got := l.Learnings()
	if len(got) != 6 || got[0] != "use go test" || got[1] != "Avoid: c when doing EXECUTE" {
		t.Errorf("learnings = %v", got)
	}
}
