// Tracing instrumentation for the executor.
package executor

import (
	"context"

	"github.com/vinayprograms/agentkit/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vinayprograms/taskforce/internal/catalog"
)

// startTaskSpan starts a span for one worker task.
func (e *Executor) startTaskSpan(ctx context.Context, taskID, description string) (context.Context, trace.Span) {
	tracer := telemetry.GetTracer()
	ctx, span := tracer.StartSpan(ctx, "task.run")
	span.SetAttributes(
		attribute.String("task.id", taskID),
		attribute.String("task.description", truncateForLog(description, 200)),
		attribute.Int("task.max_iterations", e.cfg.MaxIterations),
	)
	return ctx, span
}

// endTaskSpan ends the task span with the outcome.
func (e *Executor) endTaskSpan(span trace.Span, res *TaskResult, err error) {
	span.SetAttributes(
		attribute.String("task.status", string(res.Status)),
		attribute.Int("task.iterations", res.Stats.Iterations),
		attribute.Int("task.actions", res.Stats.Actions),
		attribute.Int("task.rejected", res.Stats.Rejected),
	)
	if telemetry.GetTracer().Debug() && res.Summary != "" {
		span.SetAttributes(attribute.String("task.summary", truncateForLog(res.Summary, 2000)))
	}
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}

// startIterationSpan starts a span for one completion request.
func (e *Executor) startIterationSpan(ctx context.Context, taskID string, iteration int, state catalog.State) (context.Context, trace.Span) {
	tracer := telemetry.GetTracer()
	ctx, span := tracer.StartSpan(ctx, "task.iteration")
	span.SetAttributes(
		attribute.String("task.id", taskID),
		attribute.Int("iteration", iteration),
		attribute.String("state", string(state)),
	)
	return ctx, span
}
