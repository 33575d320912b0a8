package orchestrator

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Sequential delegates specs one after another. In strict mode it stops
// after the first Failed task; a Cancelled task does not stop the run.
// Once ctx is cancelled the remaining specs are recorded as Cancelled
// tasks.
func (o *Orchestrator) Sequential(ctx context.Context, specs []TaskSpec, strict bool) []*DelegatedTask {
	parentID, _ := ParentFrom(ctx)
	results := make([]*DelegatedTask, 0, len(specs))
	for i, spec := range specs {
		task := o.Delegate(ctx, spec.Worker, spec.Description, spec.Payload, parentID)
		results = append(results, task)
		if strict && task.Status == StatusFailed {
			o.logger.Warn("sequential run stopped", map[string]interface{}{
				"failed_step": i + 1,
				"remaining":   len(specs) - i - 1,
				"task_id":     task.ID,
			})
			break
		}
	}
	return results
}

// Parallel delegates every spec concurrently, bounded by Config.Concurrency.
// Results are in input order.
func (o *Orchestrator) Parallel(ctx context.Context, specs []TaskSpec) []*DelegatedTask {
	parentID, _ := ParentFrom(ctx)
	return o.fanOut(ctx, specs, parentID)
}

func (o *Orchestrator) fanOut(ctx context.Context, specs []TaskSpec, parentID string) []*DelegatedTask {
	results := make([]*DelegatedTask, len(specs))
	var g errgroup.Group
	g.SetLimit(o.cfg.Concurrency)
	for i, spec := range specs {
		g.Go(func() error {
			results[i] = o.Delegate(ctx, spec.Worker, spec.Description, spec.Payload, parentID)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// HierarchicalResult is the outcome of Hierarchical.
type HierarchicalResult struct {
	MainTask    string           `json:"main_task"`
	ParentID    string           `json:"parent_id"`
	Aggregation Aggregation      `json:"aggregation"`
	Successful  int              `json:"successful"`
	Failed      int              `json:"failed"`
	Result      interface{}      `json:"result"`
	Subtasks    []*DelegatedTask `json:"subtasks"`
}

// Hierarchical fans subtasks out under one synthetic parent ID and
// combines the successful results with agg.
func (o *Orchestrator) Hierarchical(ctx context.Context, mainTask string, subtasks []TaskSpec, agg Aggregation) (*HierarchicalResult, error) {
	if !agg.IsValid() {
		return nil, fmt.Errorf("unknown aggregation %q", agg)
	}
	parentID := "parent-" + uuid.NewString()
	o.logger.Info("hierarchical run", map[string]interface{}{
		"parent_id":   parentID,
		"subtasks":    len(subtasks),
		"aggregation": string(agg),
		"main_task":   truncate(mainTask, 100),
	})

	results := o.fanOut(ctx, subtasks, parentID)
	out := &HierarchicalResult{
		MainTask:    mainTask,
		ParentID:    parentID,
		Aggregation: agg,
		Result:      Aggregate(results, agg),
		Subtasks:    results,
	}
	for _, t := range results {
		if t.Succeeded() {
			out.Successful++
		} else {
			out.Failed++
		}
	}
	return out, nil
}

// ConsensusResult is the outcome of Consensus.
type ConsensusResult struct {
	Consensus    bool             `json:"consensus"`
	Agreement    float64          `json:"agreement"`
	MinAgreement float64          `json:"min_agreement"`
	Winner       interface{}      `json:"winner"`
	Votes        map[string]int   `json:"votes"`
	TotalWorkers int              `json:"total_workers"`
	Successful   int              `json:"successful"`
	Individual   []*DelegatedTask `json:"individual"`
	Error        string           `json:"error,omitempty"`
}

// Consensus asks every worker the same question and measures how many of
// the successful answers agree. Agreement is 0 when no worker succeeds.
func (o *Orchestrator) Consensus(ctx context.Context, description string, workers []string, payload map[string]interface{}, minAgreement float64) *ConsensusResult {
	specs := make([]TaskSpec, len(workers))
	for i, w := range workers {
		specs[i] = TaskSpec{Worker: w, Description: description, Payload: payload}
	}
	parentID, _ := ParentFrom(ctx)
	results := o.fanOut(ctx, specs, parentID)

	out := &ConsensusResult{
		MinAgreement: minAgreement,
		TotalWorkers: len(workers),
		Individual:   results,
	}
	winner, votes, top := tally(results)
	out.Votes = votes
	for _, t := range results {
		if t.Succeeded() {
			out.Successful++
		}
	}
	if out.Successful == 0 {
		out.Error = "no workers completed successfully"
		return out
	}
	out.Winner = winner
	out.Agreement = float64(top) / float64(out.Successful)
	out.Consensus = out.Agreement >= minAgreement

	o.logger.Info("consensus evaluated", map[string]interface{}{
		"workers":   len(workers),
		"succeeded": out.Successful,
		"agreement": out.Agreement,
		"consensus": out.Consensus,
	})
	return out
}
