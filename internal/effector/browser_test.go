package effector

import (
	"context"
	"strings"
	"testing"

	"github.com/vinayprograms/taskforce/internal/protocol"
)

func TestTaskURL(t *testing.T) {
	tests := []struct {
		task string
		want string
	}{
		{"Open https://go.dev/doc and read it", "https://go.dev/doc"},
		{"Visit (https://example.com).", "https://example.com"},
		{"Navigate to github.com/golang/go", "https://github.com/golang/go"},
		{"go to news.ycombinator.com", "https://news.ycombinator.com"},
		{"Find the best pizza in Rome", ""},
		{"open the settings", ""},
	}
	for _, tt := range tests {
		if got := TaskURL(tt.task); got != tt.want {
			t.Errorf("TaskURL(%q) = %q, want %q", tt.task, got, tt.want)
		}
	}
}

// These cases are rejected before Chrome is launched.
func TestBrowser_RejectsBadArguments(t *testing.T) {
	b := NewBrowser(BrowserConfig{Headless: true}, nil)
	tests := []struct {
		fields map[string]string
		want   string
	}{
		{map[string]string{"ACTION_TYPE": "navigate"}, "requires URL"},
		{map[string]string{"ACTION_TYPE": "click"}, "requires SELECTOR"},
		{map[string]string{"ACTION_TYPE": "fill", "VALUE": "x"}, "requires SELECTOR"},
		{map[string]string{"ACTION_TYPE": "teleport"}, "unknown browser action"},
	}
	for _, tt := range tests {
		res := b.Execute(context.Background(), act(protocol.KindBrowser, tt.fields))
		if res.Success || !strings.Contains(res.Error, tt.want) {
			t.Errorf("%v: %+v", tt.fields, res)
		}
	}
	if err := b.Close(); err != nil {
		t.Errorf("close without start: %v", err)
	}
}
