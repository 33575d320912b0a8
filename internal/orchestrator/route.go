package orchestrator

import (
	"strings"
	"time"
)

// Route picks the active worker whose keywords appear in description.
// Among matches the highest priority wins, then the most keyword hits.
func (o *Orchestrator) Route(description string) (string, bool) {
	text := strings.ToLower(description)
	best, bestHits, bestPriority := "", 0, 0
	for _, w := range o.Workers() {
		if !w.Active {
			continue
		}
		hits := 0
		for _, kw := range w.Keywords {
			if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		if best == "" || w.Priority > bestPriority || (w.Priority == bestPriority && hits > bestHits) {
			best, bestHits, bestPriority = w.Name, hits, w.Priority
		}
	}
	return best, best != ""
}

// Statistics summarizes the registry.
type Statistics struct {
	Workers       int            `json:"workers"`
	ActiveWorkers int            `json:"active_workers"`
	TotalTasks    int            `json:"total_tasks"`
	ByStatus      map[Status]int `json:"by_status"`
	ByWorker      map[string]int `json:"by_worker"`
	SuccessRate   float64        `json:"success_rate"`
	TotalDuration time.Duration  `json:"total_duration"`
}

// Statistics returns counts over every task delegated so far.
func (o *Orchestrator) Statistics() Statistics {
	stats := Statistics{
		ByStatus: make(map[Status]int),
		ByWorker: make(map[string]int),
	}
	for _, w := range o.Workers() {
		stats.Workers++
		if w.Active {
			stats.ActiveWorkers++
		}
	}
	for _, t := range o.Tasks() {
		stats.TotalTasks++
		stats.ByStatus[t.Status]++
		stats.ByWorker[t.Worker]++
		stats.TotalDuration += t.Duration()
	}
	if stats.TotalTasks > 0 {
		stats.SuccessRate = float64(stats.ByStatus[StatusCompleted]) / float64(stats.TotalTasks) * 100
	}
	return stats
}
