package orchestrator

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Mode selects how a Plan composes its tasks.
type Mode string

const (
	ModeSequential   Mode = "sequential"
	ModeParallel     Mode = "parallel"
	ModeHierarchical Mode = "hierarchical"
	ModeConsensus    Mode = "consensus"
)

// DefaultMinAgreement is used by consensus plans that set no threshold.
const DefaultMinAgreement = 0.6

// Plan is an orchestration described in YAML:
//
//	mode: hierarchical
//	main_task: Compare web frameworks
//	aggregation: concat
//	tasks:
//	  - worker: knowledge
//	    description: Research Gin
type Plan struct {
	Mode         Mode                   `yaml:"mode"`
	Strict       bool                   `yaml:"strict,omitempty"`
	MainTask     string                 `yaml:"main_task,omitempty"`
	Aggregation  Aggregation            `yaml:"aggregation,omitempty"`
	Tasks        []TaskSpec             `yaml:"tasks,omitempty"`
	Description  string                 `yaml:"description,omitempty"`
	Workers      []string               `yaml:"workers,omitempty"`
	Payload      map[string]interface{} `yaml:"payload,omitempty"`
	MinAgreement float64                `yaml:"min_agreement,omitempty"`
}

// ParsePlan decodes and validates a plan.
func ParsePlan(data []byte) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	p.Mode = Mode(strings.ToLower(string(p.Mode)))
	if p.Mode == ModeHierarchical && p.Aggregation == "" {
		p.Aggregation = AggregateConcat
	}
	if p.Mode == ModeConsensus && p.MinAgreement == 0 {
		p.MinAgreement = DefaultMinAgreement
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// LoadPlan reads a plan file.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	return ParsePlan(data)
}

// Validate checks that the plan is complete for its mode.
func (p *Plan) Validate() error {
	switch p.Mode {
	case ModeSequential, ModeParallel, ModeHierarchical:
		if len(p.Tasks) == 0 {
			return fmt.Errorf("%s plan has no tasks", p.Mode)
		}
		for i, t := range p.Tasks {
			if t.Worker == "" {
				return fmt.Errorf("task %d: worker is required", i+1)
			}
			if t.Description == "" {
				return fmt.Errorf("task %d: description is required", i+1)
			}
		}
		if p.Mode == ModeHierarchical && !p.Aggregation.IsValid() {
			return fmt.Errorf("unknown aggregation %q", p.Aggregation)
		}
	case ModeConsensus:
		if p.Description == "" {
			return fmt.Errorf("consensus plan needs a description")
		}
		if len(p.Workers) == 0 {
			return fmt.Errorf("consensus plan has no workers")
		}
		if p.MinAgreement < 0 || p.MinAgreement > 1 {
			return fmt.Errorf("min_agreement %v outside [0, 1]", p.MinAgreement)
		}
	default:
		return fmt.Errorf("unknown mode %q", p.Mode)
	}
	return nil
}

// PlanResult holds whichever outcome the plan's mode produced.
type PlanResult struct {
	Mode         Mode                `json:"mode"`
	Tasks        []*DelegatedTask    `json:"tasks,omitempty"`
	Hierarchical *HierarchicalResult `json:"hierarchical,omitempty"`
	Consensus    *ConsensusResult    `json:"consensus,omitempty"`
}

// Execute runs the plan on o.
func (o *Orchestrator) Execute(ctx context.Context, p *Plan) (*PlanResult, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	out := &PlanResult{Mode: p.Mode}
	switch p.Mode {
	case ModeSequential:
		out.Tasks = o.Sequential(ctx, p.Tasks, p.Strict)
	case ModeParallel:
		out.Tasks = o.Parallel(ctx, p.Tasks)
	case ModeHierarchical:
		h, err := o.Hierarchical(ctx, p.MainTask, p.Tasks, p.Aggregation)
		if err != nil {
			return nil, err
		}
		out.Hierarchical = h
		out.Tasks = h.Subtasks
	case ModeConsensus:
		c := o.Consensus(ctx, p.Description, p.Workers, p.Payload, p.MinAgreement)
		out.Consensus = c
		out.Tasks = c.Individual
	}
	return out, nil
}
