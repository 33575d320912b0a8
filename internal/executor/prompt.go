package executor

import (
	"fmt"
	"strings"

	"github.com/vinayprograms/taskforce/internal/catalog"
	"github.com/vinayprograms/taskforce/internal/planner"
)

// systemPrompt frames the task around the catalog. The catalog is always
// rendered for the executing state, so the prompt is byte-identical for
// every task and state.
func systemPrompt() string {
	return `You are an autonomous AI agent with planning and learning capabilities.

CORE CAPABILITIES:
1. Planning: break complex tasks into clear steps
2. Execution: run commands, edit files and read data in a sandbox
3. Verification: test your work to make sure it is correct
4. Learning: remember mistakes and change your approach

` + catalog.RenderCatalog(catalog.StateExecuting) + `

TOOL AVAILABILITY:
- Tools marked ✅ are available in your current state
- Tools marked ⛔ are not available in your current state
- Availability changes with the execution phase; invalid actions are rejected

FORMAT:
Every action is a block that starts with "ACTION: NAME", lists one field per
line as "FIELD: value" and ends with "---END---". Multi-line values such as
file content start on the line after the field header.

WORKFLOW:
1. Read todo.md to see the plan
2. Do one step at a time and verify it worked
3. Test code before calling it done
4. Update todo.md after each step
5. When something fails, work out why before retrying

When the task is complete, respond with:
TASK_COMPLETED: [summary]

REFLECTION:
- What worked: [...]
- What I learned: [...]
- Mistakes made: [...]
- Improvements: [...]`
}

// taskPrompt is the first user turn of a task.
func taskPrompt(description string, plan *planner.Plan, guidance string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n\n", description)
	if plan != nil {
		fmt.Fprintf(&b, "Your plan has been created and saved to /workspace/todo.md:\n%s\n\n", plan.Outline())
	} else {
		b.WriteString("No plan could be created. Work out the steps as you go.\n\n")
	}
	b.WriteString(guidance)
	b.WriteString(`

IMPORTANT: Follow the workflow:
1. Read todo.md to see your plan
2. Execute one step at a time
3. Verify each step works
4. Update todo.md as you progress
5. Learn from any failures
6. Test thoroughly
7. Reflect at the end

Begin execution now!`)
	return b.String()
}

// learningsPrompt lists what earlier tasks of this session taught.
func learningsPrompt(learnings []string) string {
	var b strings.Builder
	b.WriteString("Previous learnings from this session:")
	for _, l := range learnings {
		fmt.Fprintf(&b, "\n- %s", l)
	}
	return b.String()
}
