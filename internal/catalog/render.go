package catalog

import (
	"fmt"
	"strings"
)

const (
	markAvailable   = "✅"
	markUnavailable = "⛔"
)

// RenderCatalog lists every tool with an availability marker for state s.
// The text differs between states only in the markers.
func RenderCatalog(s State) string {
	var b strings.Builder
	b.WriteString("AVAILABLE ACTIONS:")
	for i, d := range tools {
		mark := markUnavailable
		if d.AllowedIn(s) {
			mark = markAvailable
		}
		fmt.Fprintf(&b, "\n\n%d. %s %s", i+1, d.Kind, mark)
		fmt.Fprintf(&b, "\n   Description: %s", d.Description)
		fmt.Fprintf(&b, "\n   Format:\n   %s", d.Format)
	}
	return b.String()
}

// DecodingBias returns negative weights for every tool that is not legal
// in state s. Providers may ignore it; Validate is the enforcement point.
func DecodingBias(s State) map[string]float64 {
	bias := make(map[string]float64)
	for _, d := range tools {
		if d.AllowedIn(s) {
			continue
		}
		bias["ACTION: "+string(d.Kind)] = -100
		bias[string(d.Kind)] = -50
	}
	return bias
}

var guidance = map[State]string{
	StatePlanning: `PLANNING MODE
Focus on: understanding requirements, breaking down tasks, identifying risks
Available: READ_FILE, LIST_FILES, UPDATE_TODO, SEARCH_WEB, THINK
Goal: create a clear execution plan before taking action`,
	StateExecuting: `EXECUTION MODE
Focus on: taking action, implementing solutions, making changes
Available: all tools marked available (CREATE_FILE, EXECUTE, BROWSER, DELEGATE, ...)
Goal: execute the plan step by step with verification`,
	StateVerifying: `VERIFICATION MODE
Focus on: testing, validation, ensuring correctness
Available: READ_FILE, LIST_FILES, EXECUTE, VERIFY
Goal: confirm actions worked as expected`,
	StateBrowsing: `BROWSING MODE
Focus on: web research, data gathering, online resources
Available: BROWSER
Goal: gather information from the internet`,
	StateLearning: `LEARNING MODE
Focus on: reflection, analysis, improvement
Available: READ_FILE, LIST_FILES, SEARCH_WEB, THINK
Goal: learn from results and improve future performance`,
	StateIdle: `IDLE MODE
Waiting for task assignment`,
}

// Guidance returns the instructions shown to the model in state s.
func Guidance(s State) string {
	return guidance[s]
}
