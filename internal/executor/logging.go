// Session event logging functions for the executor.
package executor

import (
	"fmt"
	"time"

	"github.com/vinayprograms/taskforce/internal/catalog"
	"github.com/vinayprograms/taskforce/internal/effector"
	"github.com/vinayprograms/taskforce/internal/planner"
	"github.com/vinayprograms/taskforce/internal/protocol"
	"github.com/vinayprograms/taskforce/internal/session"
)

// record appends an event to the session and saves it.
func (e *Executor) record(ev session.Event) uint64 {
	if e.session == nil || e.sessionManager == nil {
		return 0
	}
	seq := e.session.AddEvent(ev)
	if err := e.sessionManager.Update(e.session); err != nil {
		e.logger.Warn("session not saved", map[string]interface{}{"error": err.Error()})
	}
	return seq
}

func (e *Executor) logTaskStart(t *task) {
	e.logger.Info("task started", map[string]interface{}{
		"task":        t.id,
		"description": truncateForLog(t.description, 80),
	})
	e.record(session.Event{
		Type:    session.EventTaskStart,
		TaskID:  t.id,
		Content: t.description,
	})
}

func (e *Executor) logTaskEnd(t *task) {
	res := t.result
	e.logger.Info("task finished", map[string]interface{}{
		"task":       t.id,
		"status":     string(res.Status),
		"iterations": t.stats.Iterations,
		"actions":    t.stats.Actions,
		"rejected":   t.stats.Rejected,
		"errors":     t.stats.Errors,
		"duration":   res.Duration.String(),
	})
	e.record(session.Event{
		Type:       session.EventTaskEnd,
		TaskID:     t.id,
		Content:    res.Summary,
		Success:    session.BoolPtr(res.Status == StatusCompleted),
		Error:      res.Error,
		DurationMs: res.Duration.Milliseconds(),
		Meta: &session.EventMeta{
			Status:    string(res.Status),
			Iteration: t.stats.Iterations,
		},
	})
}

func (e *Executor) logPhase(t *task, tr catalog.Transition) {
	e.logger.Debug("state transition", map[string]interface{}{
		"task": t.id,
		"from": string(tr.From),
		"to":   string(tr.To),
	})
	e.record(session.Event{
		Type:   session.EventPhase,
		TaskID: t.id,
		State:  string(tr.To),
		Meta:   &session.EventMeta{From: string(tr.From), To: string(tr.To)},
	})
}

func (e *Executor) logPlan(t *task, p *planner.Plan) {
	e.record(session.Event{
		Type:    session.EventPlan,
		TaskID:  t.id,
		State:   string(catalog.StatePlanning),
		Content: p.Raw,
		Meta:    &session.EventMeta{Steps: len(p.Steps)},
	})
}

func (e *Executor) logLearnings(t *task, learned []string) {
	for _, l := range learned {
		e.logger.Info("learned", map[string]interface{}{"task": t.id, "learning": truncateForLog(l, 200)})
		e.record(session.Event{
			Type:    session.EventLearning,
			TaskID:  t.id,
			State:   string(catalog.StateLearning),
			Content: l,
		})
	}
}

// logTurn records a conversation turn.
func (e *Executor) logTurn(t *task, role, content string) {
	typ := session.EventUser
	switch role {
	case RoleSystem:
		typ = session.EventSystem
	case RoleAssistant:
		typ = session.EventAssistant
	}
	e.record(session.Event{
		Type:    typ,
		TaskID:  t.id,
		State:   string(t.machine.State()),
		Content: content,
		Meta:    &session.EventMeta{Iteration: t.iteration},
	})
}

// logReply records an assistant turn with what the call cost.
func (e *Executor) logReply(t *task, reply string, usage *Usage) {
	meta := &session.EventMeta{Iteration: t.iteration}
	if usage != nil {
		meta.Model = usage.Model
		meta.LatencyMs = usage.Latency.Milliseconds()
		meta.TokensIn = usage.TokensIn
		meta.TokensOut = usage.TokensOut
		meta.Thinking = usage.Thinking
	}
	e.record(session.Event{
		Type:    session.EventAssistant,
		TaskID:  t.id,
		State:   string(t.machine.State()),
		Content: reply,
		Meta:    meta,
	})
}

// logDiagnostics reports dropped blocks to the operator. The model is not
// told about them.
func (e *Executor) logDiagnostics(t *task, diags []protocol.Diagnostic) {
	for _, d := range diags {
		e.logger.Warn("action block dropped", map[string]interface{}{
			"task":      t.id,
			"iteration": t.iteration,
			"line":      d.Line,
			"action":    d.Action,
			"reason":    d.Reason,
		})
		e.record(session.Event{
			Type:    session.EventDiagnostic,
			TaskID:  t.id,
			State:   string(t.machine.State()),
			Tool:    d.Action,
			Content: d.String(),
			Meta:    &session.EventMeta{Iteration: t.iteration, Reason: d.Reason},
		})
	}
}

func (e *Executor) logRejected(t *task, a protocol.Action, reason string) {
	e.logger.Warn("action rejected", map[string]interface{}{
		"task":      t.id,
		"action":    string(a.Kind),
		"state":     string(t.machine.State()),
		"iteration": t.iteration,
	})
	e.record(session.Event{
		Type:    session.EventRejected,
		TaskID:  t.id,
		State:   string(t.machine.State()),
		Tool:    string(a.Kind),
		Args:    a.Args(),
		Success: session.BoolPtr(false),
		Meta:    &session.EventMeta{Iteration: t.iteration, Reason: reason},
	})
}

// logToolCall records an action about to run and returns the correlation
// ID for its result.
func (e *Executor) logToolCall(t *task, a protocol.Action) string {
	corrID := fmt.Sprintf("%s-%d-%d", a.Kind, t.iteration, time.Now().UnixNano())
	e.record(session.Event{
		Type:          session.EventToolCall,
		CorrelationID: corrID,
		TaskID:        t.id,
		State:         string(t.machine.State()),
		Tool:          string(a.Kind),
		Args:          sanitizeArgs(a),
		Meta:          &session.EventMeta{Iteration: t.iteration},
	})
	return corrID
}

func (e *Executor) logToolResult(t *task, a protocol.Action, corrID string, res effector.Result, d time.Duration) {
	e.record(session.Event{
		Type:          session.EventToolResult,
		CorrelationID: corrID,
		TaskID:        t.id,
		State:         string(t.machine.State()),
		Tool:          string(a.Kind),
		Content:       truncateForLog(res.Output, 4000),
		Success:       session.BoolPtr(res.Success),
		Error:         res.Error,
		DurationMs:    d.Milliseconds(),
		Meta:          &session.EventMeta{Iteration: t.iteration, StatusCode: res.StatusCode},
	})
}

// sanitizeArgs shortens large field values such as file content.
func sanitizeArgs(a protocol.Action) map[string]interface{} {
	args := a.Args()
	for k, v := range args {
		if s, ok := v.(string); ok {
			args[k] = truncateForLog(s, 1000)
		}
	}
	return args
}
