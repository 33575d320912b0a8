package executor

import "context"

// Worker lets the scheduler delegate to a full worker loop. Each delegated
// task runs as its own task on the shared Executor.
type Worker struct {
	exec *Executor
}

// NewWorker wraps e.
func NewWorker(e *Executor) *Worker {
	return &Worker{exec: e}
}

// Execute implements orchestrator.Executor. The result is the completion
// summary.
func (w *Worker) Execute(ctx context.Context, description string, payload map[string]interface{}) (interface{}, error) {
	res, err := w.exec.Run(ctx, describe(description, payload))
	if err != nil {
		return nil, err
	}
	if res.Summary == "" {
		return "Task completed.", nil
	}
	return res.Summary, nil
}
