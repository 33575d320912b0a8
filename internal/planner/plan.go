package planner

import (
	"fmt"
	"strings"
	"unicode"
)

// Step is one numbered item of a plan.
type Step struct {
	Number       int    `json:"number"`
	Description  string `json:"description"`
	Expected     string `json:"expected,omitempty"`
	Verification string `json:"verification,omitempty"`
	Risk         string `json:"risk,omitempty"`
}

// Plan is a parsed execution plan.
type Plan struct {
	Task  string `json:"task"`
	Steps []Step `json:"steps"`
	Raw   string `json:"raw"`
}

// ParseSteps extracts numbered steps ("1. Do X") and the Expected output,
// Verification and Risk notes that follow each one.
func ParseSteps(text string) []Step {
	var steps []Step
	var cur *Step
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if desc, ok := numbered(line); ok {
			steps = append(steps, Step{Number: len(steps) + 1, Description: desc})
			cur = &steps[len(steps)-1]
			continue
		}
		if cur == nil {
			continue
		}
		label, value, ok := strings.Cut(strings.TrimLeft(line, "-*• "), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(label)) {
		case "verification":
			cur.Verification = value
		case "risk":
			cur.Risk = value
		case "expected output":
			cur.Expected = value
		}
	}
	return steps
}

// numbered reports whether line starts with "N. " within its first five
// bytes and returns the text after it.
func numbered(line string) (string, bool) {
	if !unicode.IsDigit(rune(line[0])) {
		return "", false
	}
	head := line
	if len(head) > 5 {
		head = head[:5]
	}
	i := strings.Index(head, ". ")
	if i < 0 {
		return "", false
	}
	for _, r := range line[:i] {
		if !unicode.IsDigit(r) {
			return "", false
		}
	}
	return strings.TrimSpace(line[i+2:]), true
}

// Todo renders the plan as todo.md.
func (p *Plan) Todo() string {
	return RenderTodo(p.Task, p.Steps)
}

// RenderTodo renders the todo.md progress file for task. With no steps
// it lists the task itself.
func RenderTodo(task string, steps []Step) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Task: %s\n\n## Progress Tracker\n\n", task)
	if len(steps) == 0 {
		b.WriteString("- [ ] Complete the task\n")
	}
	for _, s := range steps {
		fmt.Fprintf(&b, "- [ ] Step %d: %s\n", s.Number, s.Description)
	}
	b.WriteString(`
## Instructions
1. Read this file before each step
2. Mark steps done as you progress ([ ] -> [x])
3. Add notes about issues or learnings
4. Keep this file updated!

## Notes
`)
	return b.String()
}

// Outline is the compact step list shown to the worker.
func (p *Plan) Outline() string {
	var b strings.Builder
	for _, s := range p.Steps {
		fmt.Fprintf(&b, "%d. %s\n", s.Number, s.Description)
		if s.Verification != "" {
			fmt.Fprintf(&b, "   Verification: %s\n", s.Verification)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
