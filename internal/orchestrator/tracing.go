package orchestrator

import (
	"context"

	"github.com/vinayprograms/agentkit/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

func (o *Orchestrator) startDelegateSpan(ctx context.Context, task *DelegatedTask) (context.Context, trace.Span) {
	ctx, span := telemetry.GetTracer().StartSpan(ctx, "delegate."+task.Worker)
	span.SetAttributes(
		attribute.String("task.id", task.ID),
		attribute.String("task.worker", task.Worker),
		attribute.String("task.parent_id", task.ParentID),
	)
	return ctx, span
}

func (o *Orchestrator) endDelegateSpan(span trace.Span, task *DelegatedTask, err error) {
	span.SetAttributes(attribute.String("task.status", string(task.Status)))
	if telemetry.GetTracer().Debug() && task.Result != nil {
		span.SetAttributes(attribute.String("task.result", truncate(voteKey(task.Result), 2000)))
	}
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}
