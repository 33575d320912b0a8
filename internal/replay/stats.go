package replay

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/vinayprograms/taskforce/internal/session"
)

// Stats holds aggregate statistics for a session.
type Stats struct {
	// Total session duration
	TotalDurationMs int64

	// Tasks by final status
	Tasks         int
	TaskStatus    map[string]int
	TaskDurations map[string]int64

	// Worker loop
	Iterations  int
	Actions     int
	Failed      int
	Rejected    int
	Dropped     int
	ActionCount map[string]int
	ActionMs    map[string]int64
	Learnings   int

	// Time spent per machine state, from phase transitions
	StateMs map[string]int64

	// Delegations
	Delegations      int
	DelegationFailed int
	DelegationMs     int64

	// LLM response times
	LLMCallCount int
	LLMTotalMs   int64
	LLMAvgMs     int64

	// Token usage per model
	Tokens map[string]*TokenUsage
}

// TokenUsage is the token count of one model.
type TokenUsage struct {
	Calls  int
	Input  int
	Output int
}

// ComputeStats calculates aggregate statistics from session events.
func ComputeStats(sess *session.Session) *Stats {
	stats := &Stats{
		TaskStatus:    make(map[string]int),
		TaskDurations: make(map[string]int64),
		ActionCount:   make(map[string]int),
		ActionMs:      make(map[string]int64),
		StateMs:       make(map[string]int64),
		Tokens:        make(map[string]*TokenUsage),
	}

	var firstEvent, lastEvent time.Time
	// Last phase entry per task, for state durations.
	entered := make(map[string]session.Event)

	for _, event := range sess.Events {
		if firstEvent.IsZero() || event.Timestamp.Before(firstEvent) {
			firstEvent = event.Timestamp
		}
		if lastEvent.IsZero() || event.Timestamp.After(lastEvent) {
			lastEvent = event.Timestamp
		}

		switch event.Type {
		case session.EventTaskStart:
			stats.Tasks++

		case session.EventTaskEnd:
			if event.Meta != nil {
				stats.TaskStatus[event.Meta.Status]++
				stats.Iterations += event.Meta.Iteration
			}
			stats.TaskDurations[event.TaskID] = event.DurationMs

		case session.EventPhase:
			if prev, ok := entered[event.TaskID]; ok {
				stats.StateMs[prev.State] += event.Timestamp.Sub(prev.Timestamp).Milliseconds()
			}
			entered[event.TaskID] = event

		case session.EventToolResult:
			stats.Actions++
			stats.ActionCount[event.Tool]++
			stats.ActionMs[event.Tool] += event.DurationMs
			if event.Success != nil && !*event.Success {
				stats.Failed++
			}

		case session.EventRejected:
			stats.Rejected++

		case session.EventDiagnostic:
			stats.Dropped++

		case session.EventLearning:
			stats.Learnings++

		case session.EventDelegation:
			stats.Delegations++
			stats.DelegationMs += event.DurationMs
			if event.Success != nil && !*event.Success {
				stats.DelegationFailed++
			}

		case session.EventAssistant:
			if event.Meta == nil {
				continue
			}
			if event.Meta.LatencyMs > 0 {
				stats.LLMCallCount++
				stats.LLMTotalMs += event.Meta.LatencyMs
			}
			if event.Meta.Model != "" {
				u := stats.Tokens[event.Meta.Model]
				if u == nil {
					u = &TokenUsage{}
					stats.Tokens[event.Meta.Model] = u
				}
				u.Calls++
				u.Input += event.Meta.TokensIn
				u.Output += event.Meta.TokensOut
			}
		}
	}

	if !firstEvent.IsZero() && !lastEvent.IsZero() {
		stats.TotalDurationMs = lastEvent.Sub(firstEvent).Milliseconds()
	}
	if stats.LLMCallCount > 0 {
		stats.LLMAvgMs = stats.LLMTotalMs / int64(stats.LLMCallCount)
	}

	return stats
}

// PrintStats outputs the statistics to the writer.
func PrintStats(w io.Writer, stats *Stats) {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("15"))

	line := func(indent, label, value string) {
		fmt.Fprintf(w, "%s%s %s\n", indent, labelStyle.Render(label), valueStyle.Render(value))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render("═══════════════════════════════════════════════════════════════════"))
	fmt.Fprintln(w, headerStyle.Render("                         SESSION STATISTICS                         "))
	fmt.Fprintln(w, headerStyle.Render("═══════════════════════════════════════════════════════════════════"))
	fmt.Fprintln(w)

	line("", "Total Duration:", formatDuration(stats.TotalDurationMs))
	fmt.Fprintln(w)

	if stats.Tasks > 0 {
		fmt.Fprintln(w, headerStyle.Render("Tasks:"))
		line("  ", "Started:", fmt.Sprintf("%d", stats.Tasks))
		for _, status := range sortedKeys(stats.TaskStatus) {
			line("  ", status+":", fmt.Sprintf("%d", stats.TaskStatus[status]))
		}
		line("  ", "Iterations:", fmt.Sprintf("%d", stats.Iterations))
		if stats.Learnings > 0 {
			line("  ", "Learnings:", fmt.Sprintf("%d", stats.Learnings))
		}
		fmt.Fprintln(w)
	}

	if stats.Actions > 0 || stats.Rejected > 0 || stats.Dropped > 0 {
		fmt.Fprintln(w, headerStyle.Render("Actions:"))
		line("  ", "Executed:", fmt.Sprintf("%d (%d failed)", stats.Actions, stats.Failed))
		line("  ", "Rejected:", fmt.Sprintf("%d", stats.Rejected))
		line("  ", "Dropped blocks:", fmt.Sprintf("%d", stats.Dropped))
		for _, kind := range sortedKeys(stats.ActionCount) {
			n := stats.ActionCount[kind]
			line("    ", kind+":", fmt.Sprintf("%d (avg %s)", n, formatDuration(stats.ActionMs[kind]/int64(n))))
		}
		fmt.Fprintln(w)
	}

	if len(stats.StateMs) > 0 {
		fmt.Fprintln(w, headerStyle.Render("Time per State:"))
		for _, state := range sortedKeys(stats.StateMs) {
			line("  ", state+":", formatDuration(stats.StateMs[state]))
		}
		fmt.Fprintln(w)
	}

	if stats.Delegations > 0 {
		fmt.Fprintln(w, headerStyle.Render("Delegations:"))
		line("  ", "Count:", fmt.Sprintf("%d (%d failed)", stats.Delegations, stats.DelegationFailed))
		line("  ", "Average:", formatDuration(stats.DelegationMs/int64(stats.Delegations)))
		fmt.Fprintln(w)
	}

	if stats.LLMCallCount > 0 {
		fmt.Fprintln(w, headerStyle.Render("LLM Response Times:"))
		line("  ", "Calls:", fmt.Sprintf("%d", stats.LLMCallCount))
		line("  ", "Total:", formatDuration(stats.LLMTotalMs))
		line("  ", "Average:", formatDuration(stats.LLMAvgMs))
		fmt.Fprintln(w)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// formatDuration formats milliseconds as human-readable duration.
func formatDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.2fs", float64(ms)/1000)
	}
	mins := ms / 60000
	secs := (ms % 60000) / 1000
	return fmt.Sprintf("%dm%ds", mins, secs)
}
