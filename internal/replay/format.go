package replay

import (
	"fmt"
	"strings"

	"github.com/vinayprograms/taskforce/internal/session"
)

// formatEvent formats a single event for display.
func (r *Replayer) formatEvent(seq int, event *session.Event, lastTask *string) {
	// Show task transitions
	if event.TaskID != "" && event.TaskID != *lastTask {
		fmt.Fprintln(r.output)
		fmt.Fprintf(r.output, "%s %s\n", flowStyle.Render("TASK:"), valueStyle.Render(event.TaskID))
		fmt.Fprintln(r.output)
		*lastTask = event.TaskID
	}

	ts := timeStyle.Render(event.Timestamp.Format("15:04:05"))
	seqNum := seqStyle.Render(fmt.Sprintf("%d", seq))

	switch event.Type {
	case session.EventTaskStart:
		r.fmtTaskStart(seqNum, ts, event)
	case session.EventTaskEnd:
		r.fmtTaskEnd(seqNum, ts, event)
	case session.EventPhase:
		r.fmtPhase(seqNum, ts, event)
	case session.EventPlan:
		r.fmtPlan(seqNum, ts, event)
	case session.EventLearning:
		r.fmtLearning(seqNum, ts, event)
	case session.EventSystem:
		r.fmtTurn(seqNum, ts, dimStyle.Render("SYSTEM"), event)
	case session.EventUser:
		r.fmtTurn(seqNum, ts, flowStyle.Render("USER"), event)
	case session.EventAssistant:
		r.fmtAssistant(seqNum, ts, event)
	case session.EventToolCall:
		r.fmtToolCall(seqNum, ts, event)
	case session.EventToolResult:
		r.fmtToolResult(seqNum, ts, event)
	case session.EventRejected:
		r.fmtRejected(seqNum, ts, "REJECTED:", event)
	case session.EventDiagnostic:
		r.fmtRejected(seqNum, ts, "DROPPED:", event)
	case session.EventDelegation:
		r.fmtDelegation(seqNum, ts, event)
	default:
		fmt.Fprintf(r.output, "%s │ %s │ %s\n", seqNum, ts, dimStyle.Render(event.Type))
	}
}

func (r *Replayer) fmtTaskStart(seqNum, ts string, event *session.Event) {
	fmt.Fprintf(r.output, "%s │ %s │ %s %s\n", seqNum, ts,
		flowStyle.Render("TASK START"),
		dimStyle.Render(truncateContent(event.Content, 80)))
	if r.verbosity >= 1 && len(event.Content) > 80 {
		r.printContent(event.Content)
	}
}

func (r *Replayer) fmtTaskEnd(seqNum, ts string, event *session.Event) {
	status := ""
	if event.Meta != nil {
		status = event.Meta.Status
	}
	style := successStyle
	if event.Success == nil || !*event.Success {
		style = errorStyle
	}
	fmt.Fprintf(r.output, "%s │ %s │ %s %s %s\n", seqNum, ts,
		flowStyle.Render("TASK END"),
		style.Render(strings.ToUpper(status)),
		dimStyle.Render(fmt.Sprintf("(%s)", formatDuration(event.DurationMs))))
	if event.Error != "" {
		r.printError(event.Error)
	}
	if r.verbosity >= 1 && event.Content != "" {
		r.printContent(event.Content)
	}
}

func (r *Replayer) fmtPhase(seqNum, ts string, event *session.Event) {
	from, to := "", event.State
	if event.Meta != nil {
		from, to = event.Meta.From, event.Meta.To
	}
	fmt.Fprintf(r.output, "%s │ %s │ %s %s %s %s\n", seqNum, ts,
		phaseStyle.Render("PHASE"),
		dimStyle.Render(from),
		dimStyle.Render("→"),
		phaseStyle.Render(to))
}

func (r *Replayer) fmtPlan(seqNum, ts string, event *session.Event) {
	steps := 0
	if event.Meta != nil {
		steps = event.Meta.Steps
	}
	fmt.Fprintf(r.output, "%s │ %s │ %s %s\n", seqNum, ts,
		phaseStyle.Render("PLAN"),
		dimStyle.Render(fmt.Sprintf("(%d steps)", steps)))
	if r.verbosity >= 1 && event.Content != "" {
		r.printContent(event.Content)
	}
}

func (r *Replayer) fmtLearning(seqNum, ts string, event *session.Event) {
	fmt.Fprintf(r.output, "%s │ %s │ %s %s\n", seqNum, ts,
		phaseStyle.Render("LEARNED"),
		valueStyle.Render(truncateContent(event.Content, 100)))
}

func (r *Replayer) fmtTurn(seqNum, ts, label string, event *session.Event) {
	fmt.Fprintf(r.output, "%s │ %s │ %s\n", seqNum, ts, label)
	if r.verbosity >= 1 && event.Content != "" {
		r.printContent(event.Content)
	}
}

func (r *Replayer) fmtAssistant(seqNum, ts string, event *session.Event) {
	iter := ""
	if event.Meta != nil && event.Meta.Iteration > 0 {
		iter = dimStyle.Render(fmt.Sprintf(" #%d", event.Meta.Iteration))
	}
	fmt.Fprintf(r.output, "%s │ %s │ %s%s\n", seqNum, ts, flowStyle.Render("ASSISTANT"), iter)
	if r.verbosity >= 1 && event.Content != "" {
		r.printContent(event.Content)
	}
	if r.verbosity >= 2 {
		r.printLLMMeta(event.Meta)
	}
}

func (r *Replayer) fmtToolCall(seqNum, ts string, event *session.Event) {
	fmt.Fprintf(r.output, "%s │ %s │ %s %s%s\n", seqNum, ts,
		toolStyle.Render("ACTION:"),
		valueStyle.Render(event.Tool),
		r.getArgsHint(event.Tool, event.Args))
	if r.verbosity >= 1 && len(event.Args) > 0 {
		r.printArgs(event.Args)
	}
}

func (r *Replayer) fmtToolResult(seqNum, ts string, event *session.Event) {
	code := ""
	if event.Meta != nil && event.Meta.StatusCode != 0 {
		code = dimStyle.Render(fmt.Sprintf(" exit=%d", event.Meta.StatusCode))
	}
	failed := event.Success != nil && !*event.Success
	if failed {
		fmt.Fprintf(r.output, "%s │ %s │ %s %s %s%s\n", seqNum, ts,
			toolStyle.Render("RESULT:"),
			errorStyle.Render(event.Tool+" FAILED"),
			dimStyle.Render(fmt.Sprintf("(%dms)", event.DurationMs)),
			code)
		r.printError(event.Error)
		return
	}
	fmt.Fprintf(r.output, "%s │ %s │ %s %s %s%s\n", seqNum, ts,
		toolStyle.Render("RESULT:"),
		successStyle.Render(event.Tool),
		dimStyle.Render(fmt.Sprintf("(%dms)", event.DurationMs)),
		code)
	if r.verbosity >= 1 && event.Content != "" {
		r.printContent(event.Content)
	}
}

func (r *Replayer) fmtRejected(seqNum, ts, label string, event *session.Event) {
	reason := ""
	if event.Meta != nil {
		reason = event.Meta.Reason
	}
	fmt.Fprintf(r.output, "%s │ %s │ %s %s %s\n", seqNum, ts,
		rejectStyle.Render(label),
		valueStyle.Render(event.Tool),
		dimStyle.Render(fmt.Sprintf("(%s)", event.State)))
	if reason != "" {
		fmt.Fprintf(r.output, "      │          │   %s\n", rejectStyle.Render(truncateContent(reason, 120)))
	}
}

func (r *Replayer) fmtDelegation(seqNum, ts string, event *session.Event) {
	worker, status, parent := event.Agent, "", ""
	if event.Meta != nil {
		if event.Meta.Worker != "" {
			worker = event.Meta.Worker
		}
		status = event.Meta.Status
		parent = event.Meta.ParentID
	}
	style := delegateStyle
	if event.Success != nil && !*event.Success {
		style = errorStyle
	}
	parentInfo := ""
	if parent != "" {
		parentInfo = dimStyle.Render(fmt.Sprintf(" ← %s", parent))
	}
	fmt.Fprintf(r.output, "%s │ %s │ %s %s %s %s%s\n", seqNum, ts,
		delegateStyle.Render("DELEGATE:"),
		valueStyle.Render(worker),
		style.Render(strings.ToUpper(status)),
		dimStyle.Render(fmt.Sprintf("(%dms)", event.DurationMs)),
		parentInfo)
	if r.verbosity >= 1 {
		if task, ok := event.Args["task"].(string); ok && task != "" {
			fmt.Fprintf(r.output, "      │          │   %s %s\n", labelStyle.Render("task:"), truncateContent(task, 100))
		}
	}
	if event.Error != "" {
		r.printError(event.Error)
	} else if event.Content != "" {
		r.printDelegateOutput(event.Content)
	}
}
