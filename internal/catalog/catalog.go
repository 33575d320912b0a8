// Package catalog defines the fixed tool table and the per-task state
// machine that decides which tools are legal.
//
// The rendered catalog lists every tool in every state; only the
// availability marker changes. Providers that cache by exact prefix keep
// their cache across state transitions.
package catalog

import (
	"fmt"
	"strings"

	"github.com/vinayprograms/taskforce/internal/protocol"
)

// State is the execution phase of one task.
type State string

const (
	StatePlanning  State = "planning"
	StateExecuting State = "executing"
	StateVerifying State = "verifying"
	StateBrowsing  State = "browsing"
	StateLearning  State = "learning"
	StateIdle      State = "idle"
)

// AllStates returns every state in declaration order.
func AllStates() []State {
	return []State{StatePlanning, StateExecuting, StateVerifying, StateBrowsing, StateLearning, StateIdle}
}

// IsValid reports whether s is a known state.
func (s State) IsValid() bool {
	for _, v := range AllStates() {
		if s == v {
			return true
		}
	}
	return false
}

// ParseState resolves a state name, ignoring case.
func ParseState(name string) (State, error) {
	s := State(strings.ToLower(strings.TrimSpace(name)))
	if !s.IsValid() {
		return "", fmt.Errorf("unknown state %q", name)
	}
	return s, nil
}

// ToolDefinition is one immutable catalog entry.
type ToolDefinition struct {
	Kind        protocol.Kind
	Description string
	Format      string
	States      []State
}

// Required returns the fields the protocol requires for this tool.
func (d ToolDefinition) Required() []string {
	s, _ := protocol.SchemaFor(d.Kind)
	return s.Required
}

// AllowedIn reports whether the tool is legal in state s.
func (d ToolDefinition) AllowedIn(s State) bool {
	for _, v := range d.States {
		if v == s {
			return true
		}
	}
	return false
}

// tools is the catalog. Its size and order never change at runtime.
var tools = []ToolDefinition{
	{
		Kind:        protocol.KindCreateFile,
		Description: "Create or overwrite a file in the workspace",
		Format:      "ACTION: CREATE_FILE\nPATH: /workspace/file.py\nCONTENT:\n[content]\n---END---",
		States:      []State{StateExecuting},
	},
	{
		Kind:        protocol.KindReadFile,
		Description: "Read contents of a file",
		Format:      "ACTION: READ_FILE\nPATH: /workspace/file.py\n---END---",
		States:      []State{StatePlanning, StateExecuting, StateVerifying, StateLearning},
	},
	{
		Kind:        protocol.KindExecute,
		Description: "Execute a shell command in the sandbox",
		Format:      "ACTION: EXECUTE\nCOMMAND: python test.py\n---END---",
		States:      []State{StateExecuting, StateVerifying},
	},
	{
		Kind:        protocol.KindListFiles,
		Description: "List files in a directory",
		Format:      "ACTION: LIST_FILES\nPATH: /workspace\n---END---",
		States:      []State{StatePlanning, StateExecuting, StateVerifying, StateLearning},
	},
	{
		Kind:        protocol.KindUpdateTodo,
		Description: "Update task progress tracking (todo.md)",
		Format:      "ACTION: UPDATE_TODO\nCONTENT:\n## Progress\n- [x] Done\n- [ ] In progress\n---END---",
		States:      []State{StatePlanning, StateExecuting},
	},
	{
		Kind:        protocol.KindVerify,
		Description: "Verify that an action worked correctly",
		Format:      "ACTION: VERIFY\nWHAT: The script runs\nHOW: python test.py\n---END---",
		States:      []State{StateVerifying},
	},
	{
		Kind:        protocol.KindBrowser,
		Description: "Interact with a web browser. Give a TASK, or an ACTION_TYPE (navigate, click, fill, get_text, screenshot) with URL, SELECTOR, VALUE or PATH",
		Format:      "ACTION: BROWSER\nACTION_TYPE: navigate\nURL: https://go.dev\n---END---",
		States:      []State{StateBrowsing, StateExecuting},
	},
	{
		Kind:        protocol.KindSearchWeb,
		Description: "Search the web for information",
		Format:      "ACTION: SEARCH_WEB\nQUERY: latest python best practices\nMAX_RESULTS: 5\n---END---",
		States:      []State{StatePlanning, StateExecuting, StateLearning},
	},
	{
		Kind:        protocol.KindThink,
		Description: "Internal reasoning and planning (no action taken)",
		Format:      "ACTION: THINK\nTHOUGHT: I need to analyze the requirements first\n---END---",
		States:      []State{StatePlanning, StateExecuting, StateVerifying, StateLearning},
	},
	{
		Kind:        protocol.KindDelegate,
		Description: "Delegate a subtask to a specialized agent (knowledge, planner, browser, code, test, review, debug)",
		Format:      "ACTION: DELEGATE\nAGENT_TYPE: knowledge\nTASK: Research React hooks\n---END---",
		States:      []State{StateExecuting},
	},
	{
		Kind:        protocol.KindGenerateCode,
		Description: "Generate code from requirements with the code agent",
		Format:      "ACTION: GENERATE_CODE\nREQUIREMENTS: A function that parses ISO dates\nLANGUAGE: python\n---END---",
		States:      []State{StateExecuting},
	},
	{
		Kind:        protocol.KindGenerateTests,
		Description: "Generate unit or integration tests with the test agent",
		Format:      "ACTION: GENERATE_TESTS\nCODE:\n[code]\nLANGUAGE: python\nTEST_TYPE: unit\n---END---",
		States:      []State{StateExecuting, StateVerifying},
	},
	{
		Kind:        protocol.KindReviewCode,
		Description: "Review code for bugs, style and security with the review agent",
		Format:      "ACTION: REVIEW_CODE\nCODE:\n[code]\nFOCUS_AREAS: security, performance\n---END---",
		States:      []State{StateExecuting, StateVerifying},
	},
	{
		Kind:        protocol.KindDebugError,
		Description: "Diagnose an error and propose fixes with the debug agent",
		Format:      "ACTION: DEBUG_ERROR\nERROR_MESSAGE: KeyError: 'id'\nSTACK_TRACE:\n[trace]\n---END---",
		States:      []State{StateExecuting, StateVerifying},
	},
	{
		Kind:        protocol.KindComplete,
		Description: "Mark task as completed with summary",
		Format:      "TASK_COMPLETED: [summary]\n\nREFLECTION:\n- What worked: [...]\n- What I learned: [...]\n- Mistakes made: [...]\n- Improvements: [...]\n---END---",
		States:      []State{StateExecuting, StateLearning},
	},
}

// Tools returns the full catalog in order.
func Tools() []ToolDefinition {
	out := make([]ToolDefinition, len(tools))
	copy(out, tools)
	return out
}

// Lookup returns the definition of kind.
func Lookup(kind protocol.Kind) (ToolDefinition, bool) {
	for _, d := range tools {
		if d.Kind == kind {
			return d, true
		}
	}
	return ToolDefinition{}, false
}

// AvailableTools returns the kinds legal in state s, in catalog order.
func AvailableTools(s State) []protocol.Kind {
	var out []protocol.Kind
	for _, d := range tools {
		if d.AllowedIn(s) {
			out = append(out, d.Kind)
		}
	}
	return out
}

// Validate decides whether kind may run in state s. The reason is meant
// to be shown to the model.
func Validate(kind protocol.Kind, s State) (bool, string) {
	d, ok := Lookup(kind)
	if !ok {
		return false, fmt.Sprintf("Unknown action: %s", kind)
	}
	if d.AllowedIn(s) {
		return true, ""
	}
	names := make([]string, len(d.States))
	for i, st := range d.States {
		names[i] = string(st)
	}
	return false, fmt.Sprintf("Action %s not available in state %s. Available in: %s",
		kind, s, strings.Join(names, ", "))
}
