package orchestrator

import "fmt"

// Aggregation combines the results of sibling tasks.
type Aggregation string

const (
	// AggregateConcat keeps every successful result in input order.
	AggregateConcat Aggregation = "concat"
	// AggregateVote picks the most frequent result.
	AggregateVote Aggregation = "vote"
	// AggregateMerge shallow-merges map results; later keys win.
	AggregateMerge Aggregation = "merge"
)

// IsValid reports whether a is a known strategy.
func (a Aggregation) IsValid() bool {
	switch a {
	case AggregateConcat, AggregateVote, AggregateMerge:
		return true
	}
	return false
}

// Aggregate combines the results of the tasks that completed.
func Aggregate(tasks []*DelegatedTask, a Aggregation) interface{} {
	switch a {
	case AggregateVote:
		winner, _, _ := tally(tasks)
		return winner
	case AggregateMerge:
		merged := make(map[string]interface{})
		for _, t := range tasks {
			if !t.Succeeded() {
				continue
			}
			switch r := t.Result.(type) {
			case map[string]interface{}:
				for k, v := range r {
					merged[k] = v
				}
			case map[string]string:
				for k, v := range r {
					merged[k] = v
				}
			}
		}
		return merged
	default:
		out := make([]interface{}, 0, len(tasks))
		for _, t := range tasks {
			if t.Succeeded() {
				out = append(out, t.Result)
			}
		}
		return out
	}
}

// voteKey is the equality used for voting.
func voteKey(v interface{}) string {
	return fmt.Sprintf("%v", v)
}

// tally counts successful results by voteKey. The winner is the first
// encountered value among those with the highest count.
func tally(tasks []*DelegatedTask) (winner interface{}, votes map[string]int, top int) {
	votes = make(map[string]int)
	var order []string
	first := make(map[string]interface{})
	for _, t := range tasks {
		if !t.Succeeded() {
			continue
		}
		k := voteKey(t.Result)
		if _, seen := votes[k]; !seen {
			order = append(order, k)
			first[k] = t.Result
		}
		votes[k]++
	}
	for _, k := range order {
		if votes[k] > top {
			top = votes[k]
			winner = first[k]
		}
	}
	return winner, votes, top
}
