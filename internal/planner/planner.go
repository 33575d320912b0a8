// Package planner decomposes a task into numbered steps before execution
// and renders the plan as the todo.md progress file.
package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/agentkit/logging"
)

const systemPrompt = `You are a strategic task planner. Your role is to analyze complex tasks and break them down into clear, actionable steps.

CAPABILITIES:
- Analyze task requirements and dependencies
- Decompose complex goals into sub-tasks
- Identify potential challenges and solutions
- Create structured execution plans

PLANNING FORMAT:
Create a detailed plan in this format:

## Task Analysis
[Analyze the task requirements and scope]

## Success Criteria
[Define clear success metrics]

## Execution Plan
1. [Step 1 - Clear, actionable task]
   - Expected output: [What should result]
   - Verification: [How to verify success]
   - Risk: [Potential issues]

2. [Step 2...]
   ...

## Dependencies
[List any dependencies between steps]

## Potential Challenges
[Identify risks and mitigation strategies]

IMPORTANT:
- Be specific and actionable
- Consider edge cases
- Include verification steps
- Each step should be testable`

// ErrEmptyPlan is returned when the model answers without numbered steps.
var ErrEmptyPlan = errors.New("plan has no steps")

// Request is the input to Plan.
type Request struct {
	Task             string
	PreviousAttempts []string
	Constraints      []string
	Resources        []string
}

// Planner asks a model for an execution plan.
type Planner struct {
	provider llm.Provider
	logger   *logging.Logger
}

// New returns a planner backed by provider.
func New(provider llm.Provider) *Planner {
	return &Planner{provider: provider, logger: logging.New().WithComponent("planner")}
}

// Plan requests and parses a plan for req.Task.
func (p *Planner) Plan(ctx context.Context, req Request) (*Plan, error) {
	user := "Task: " + req.Task + formatContext(req)
	return p.ask(ctx, req.Task, user)
}

// Refine asks for a revised plan given feedback from execution.
func (p *Planner) Refine(ctx context.Context, plan *Plan, feedback string) (*Plan, error) {
	user := fmt.Sprintf(`Original Plan:
%s

Execution Feedback:
%s

Please refine the plan based on this feedback. Focus on:
1. Addressing issues that were encountered
2. Adding missing steps that were discovered
3. Improving verification methods
4. Adjusting for constraints found during execution`, plan.Raw, feedback)
	return p.ask(ctx, plan.Task, user)
}

func (p *Planner) ask(ctx context.Context, task, user string) (*Plan, error) {
	start := time.Now()
	p.logger.PhaseStart("PLAN", truncate(task, 60), "")

	resp, err := p.provider.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		p.logger.PhaseComplete("PLAN", truncate(task, 60), "", time.Since(start), "error")
		return nil, fmt.Errorf("request plan: %w", err)
	}

	plan := &Plan{Task: task, Raw: resp.Content, Steps: ParseSteps(resp.Content)}
	if len(plan.Steps) == 0 {
		p.logger.PhaseComplete("PLAN", truncate(task, 60), "", time.Since(start), "empty")
		return nil, ErrEmptyPlan
	}
	p.logger.PhaseComplete("PLAN", truncate(task, 60), "", time.Since(start), fmt.Sprintf("%d steps", len(plan.Steps)))
	return plan, nil
}

func formatContext(req Request) string {
	if len(req.PreviousAttempts)+len(req.Constraints)+len(req.Resources) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\nAdditional Context:\n")
	if len(req.PreviousAttempts) > 0 {
		fmt.Fprintf(&b, "- Previous attempts: %s\n", strings.Join(req.PreviousAttempts, "; "))
	}
	if len(req.Constraints) > 0 {
		fmt.Fprintf(&b, "- Constraints: %s\n", strings.Join(req.Constraints, "; "))
	}
	if len(req.Resources) > 0 {
		fmt.Fprintf(&b, "- Available resources: %s\n", strings.Join(req.Resources, "; "))
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return cutUTF8(s, n) + "..."
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
