package effector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vinayprograms/taskforce/internal/orchestrator"
	"github.com/vinayprograms/taskforce/internal/protocol"
)

// AgentTypes are the worker names a DELEGATE action may target.
var AgentTypes = []string{"knowledge", "planner", "browser", "code", "test", "review", "debug"}

// shortcuts map specialist actions to the worker that serves them.
var shortcuts = map[protocol.Kind]string{
	protocol.KindGenerateCode:  "code",
	protocol.KindGenerateTests: "test",
	protocol.KindReviewCode:    "review",
	protocol.KindDebugError:    "debug",
}

// Delegator is the part of the scheduler the bridge needs.
type Delegator interface {
	Delegate(ctx context.Context, worker, description string, payload map[string]interface{}, parentID string) *orchestrator.DelegatedTask
}

// Delegation hands DELEGATE and specialist actions to the scheduler.
type Delegation struct {
	sched Delegator
}

// NewDelegation returns a bridge to sched.
func NewDelegation(sched Delegator) *Delegation {
	return &Delegation{sched: sched}
}

// Kinds returns the action kinds the bridge serves.
func (d *Delegation) Kinds() []protocol.Kind {
	return []protocol.Kind{
		protocol.KindDelegate,
		protocol.KindGenerateCode,
		protocol.KindGenerateTests,
		protocol.KindReviewCode,
		protocol.KindDebugError,
	}
}

// Execute delegates the action and reports the task outcome.
func (d *Delegation) Execute(ctx context.Context, a protocol.Action) Result {
	worker, description, payload, err := delegationTarget(a)
	if err != nil {
		return Fail("%v", err)
	}
	parentID, _ := orchestrator.ParentFrom(ctx)
	task := d.sched.Delegate(ctx, worker, description, payload, parentID)
	if !task.Succeeded() {
		return Fail("%s task %s %s: %s", worker, task.ID, task.Status, task.Error)
	}
	return OK(fmt.Sprintf("%s agent (task %s) returned:\n%s", worker, task.ID, formatResult(task.Result)))
}

func delegationTarget(a protocol.Action) (worker, description string, payload map[string]interface{}, err error) {
	payload = make(map[string]interface{})
	for k, v := range a.Fields {
		payload[strings.ToLower(k)] = v
	}

	if a.Kind == protocol.KindDelegate {
		worker = a.Field("AGENT_TYPE")
		if !validAgentType(worker) {
			return "", "", nil, fmt.Errorf("unknown agent type %q (valid: %s)", worker, strings.Join(AgentTypes, ", "))
		}
		return worker, a.Field("TASK"), payload, nil
	}

	worker, ok := shortcuts[a.Kind]
	if !ok {
		return "", "", nil, fmt.Errorf("%s cannot be delegated", a.Kind)
	}
	switch a.Kind {
	case protocol.KindGenerateCode:
		description = "Generate " + a.Field("LANGUAGE") + " code: " + a.Field("REQUIREMENTS")
	case protocol.KindGenerateTests:
		description = "Generate " + a.Field("TEST_TYPE") + " tests for the given " + a.Field("LANGUAGE") + " code"
	case protocol.KindReviewCode:
		description = "Review the given " + a.Field("LANGUAGE") + " code"
		if focus := a.Field("FOCUS_AREAS"); focus != "" {
			description += " focusing on " + focus
		}
	case protocol.KindDebugError:
		description = "Debug error: " + a.Field("ERROR_MESSAGE")
	}
	return worker, description, payload, nil
}

func validAgentType(name string) bool {
	for _, t := range AgentTypes {
		if t == name {
			return true
		}
	}
	return false
}

func formatResult(v interface{}) string {
	switch r := v.(type) {
	case nil:
		return "(no result)"
	case string:
		return r
	case fmt.Stringer:
		return r.String()
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
