package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"

	"github.com/vinayprograms/taskforce/internal/executor"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	phaseStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	toolStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	rejectStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// progressSink prints one line per noteworthy event.
type progressSink struct {
	mu sync.Mutex
	w  io.Writer
}

func newProgressSink(w io.Writer) *progressSink {
	return &progressSink{w: w}
}

// Publish implements executor.Sink.
func (p *progressSink) Publish(taskID string, ev executor.Event) {
	line := progressLine(ev)
	if line == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "%s %s\n", labelStyle.Render("["+shortID(taskID)+"]"), line)
}

// progressLine renders ev, or "" for events not worth a line.
func progressLine(ev executor.Event) string {
	switch ev.Type {
	case executor.EventPhaseEntered:
		return phaseStyle.Render("▶ " + ev.String("state"))
	case executor.EventPlanCreated:
		return phaseStyle.Render(fmt.Sprintf("  plan with %d step(s)", ev.Int("count")))
	case executor.EventPlanFailed:
		return labelStyle.Render("  no plan: " + ev.String("error"))
	case executor.EventIterationStarted:
		return labelStyle.Render(fmt.Sprintf("  iteration %d/%d", ev.Int("iteration"), ev.Int("max_iterations")))
	case executor.EventActionExecuted:
		ok, _ := ev.Data["success"].(bool)
		if ok {
			return toolStyle.Render("  → "+ev.String("action")) + " " + successStyle.Render("✓")
		}
		return toolStyle.Render("  → "+ev.String("action")) + " " + errorStyle.Render("✗ "+oneLine(ev.String("error"), 80))
	case executor.EventActionRejected:
		return rejectStyle.Render("  ⊘ " + ev.String("action") + ": " + oneLine(ev.String("reason"), 80))
	case executor.EventTaskCompleted:
		return successStyle.Render("✓ completed: " + oneLine(ev.String("summary"), 100))
	case executor.EventTaskTimeout:
		return errorStyle.Render("✗ " + ev.String("message"))
	case executor.EventTaskFailed:
		return errorStyle.Render("✗ failed: " + ev.String("error"))
	}
	return ""
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > n {
		return cutUTF8(s, n-3) + "..."
	}
	return s
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
