package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/vinayprograms/taskforce/internal/catalog"
	"github.com/vinayprograms/taskforce/internal/config"
	"github.com/vinayprograms/taskforce/internal/executor"
	"github.com/vinayprograms/taskforce/internal/orchestrator"
	"github.com/vinayprograms/taskforce/internal/session"
)

// Exit codes of run.
const (
	exitFailed    = 1
	exitTimeout   = 2
	exitCancelled = 130
)

// Run executes one task through the worker loop.
func (c *RunCmd) Run(cli *CLI, ctx context.Context) error {
	task := strings.TrimSpace(strings.Join(c.Task, " "))
	if task == "" {
		return errors.New("task description is empty")
	}
	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	c.apply(cfg)

	rt := newRuntime(cfg, globalCreds)
	defer rt.cleanup()

	if c.TUI {
		return c.runTUI(ctx, rt, task)
	}

	rt.sinks = append(rt.sinks, newProgressSink(os.Stderr))
	if err := rt.setup("run"); err != nil {
		return err
	}
	rt.sess.Inputs["task"] = task
	fmt.Fprintf(os.Stderr, "Running task (session: %s)\n\n", rt.sess.ID)

	res, runErr := rt.exec.Run(ctx, task)
	return c.report(rt, res, runErr, os.Stdout)
}

// apply overrides configuration from flags.
func (c *RunCmd) apply(cfg *config.Config) {
	if c.Workspace != "" {
		cfg.Agent.Workspace = c.Workspace
	}
	if c.MaxIterations > 0 {
		cfg.Agent.MaxIterations = c.MaxIterations
	}
	if c.NoPlan {
		cfg.Agent.Plan = false
	}
}

// report finishes the session, prints the result and maps the outcome to
// an exit error.
func (c *RunCmd) report(rt *runtime, res *executor.TaskResult, runErr error, w io.Writer) error {
	if res == nil {
		rt.finish(session.StatusFailed, "", runErr.Error())
		return runErr
	}
	rt.finish(sessionStatus(res.Status), res.Summary, res.Error)

	if c.JSON {
		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(out))
	} else if res.Summary != "" {
		fmt.Fprintln(w, res.Summary)
	}
	fmt.Fprintf(os.Stderr, "\nSession log: %s\n", rt.sessionPath())

	if runErr == nil {
		return nil
	}
	code := exitFailed
	switch res.Status {
	case executor.StatusTimeout:
		code = exitTimeout
	case executor.StatusCancelled:
		code = exitCancelled
	}
	return &exitError{code: code, err: runErr}
}

// Run executes an orchestration plan.
func (c *OrchestrateCmd) Run(cli *CLI, ctx context.Context) error {
	plan, err := orchestrator.LoadPlan(c.Plan)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if c.Workspace != "" {
		cfg.Agent.Workspace = c.Workspace
	}
	if plan.Mode == orchestrator.ModeConsensus && plan.MinAgreement == orchestrator.DefaultMinAgreement {
		plan.MinAgreement = cfg.Orchestrator.MinAgreement
	}

	rt := newRuntime(cfg, globalCreds)
	defer rt.cleanup()
	rt.sinks = append(rt.sinks, newProgressSink(os.Stderr))
	if err := rt.setup("orchestrate"); err != nil {
		return err
	}
	rt.sess.Inputs["plan"] = c.Plan
	rt.sess.Inputs["mode"] = string(plan.Mode)
	fmt.Fprintf(os.Stderr, "Running %s plan with %d task(s) (session: %s)\n\n", plan.Mode, planSize(plan), rt.sess.ID)

	res, err := rt.orch.Execute(ctx, plan)
	if err != nil {
		rt.finish(session.StatusFailed, "", err.Error())
		return err
	}

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	stats := rt.orch.Statistics()
	fmt.Fprintf(os.Stderr, "\n%d task(s), %.0f%% succeeded in %s\n", stats.TotalTasks, stats.SuccessRate, elapsed(stats.TotalDuration))
	fmt.Fprintf(os.Stderr, "Session log: %s\n", rt.sessionPath())

	if ctx.Err() != nil {
		rt.finish(session.StatusCancelled, "", ctx.Err().Error())
		return &exitError{code: exitCancelled, err: ctx.Err()}
	}
	if failed := planFailed(res); failed != "" {
		rt.finish(session.StatusFailed, "", failed)
		return &exitError{code: exitFailed, err: errors.New(failed)}
	}
	rt.finish(session.StatusComplete, fmt.Sprintf("%d task(s) completed", stats.ByStatus[orchestrator.StatusCompleted]), "")
	return nil
}

func planSize(p *orchestrator.Plan) int {
	if p.Mode == orchestrator.ModeConsensus {
		return len(p.Workers)
	}
	return len(p.Tasks)
}

// planFailed describes why a plan did not succeed, or returns "".
func planFailed(res *orchestrator.PlanResult) string {
	if res.Consensus != nil {
		if !res.Consensus.Consensus {
			return fmt.Sprintf("no consensus: agreement %.2f below %.2f", res.Consensus.Agreement, res.Consensus.MinAgreement)
		}
		return ""
	}
	if res.Hierarchical != nil {
		if res.Hierarchical.Successful == 0 {
			return "every subtask failed"
		}
		return ""
	}
	failed := 0
	for _, t := range res.Tasks {
		if !t.Succeeded() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Sprintf("%d of %d task(s) did not complete", failed, len(res.Tasks))
	}
	return ""
}

// Run prints the catalog.
func (c *CatalogCmd) Run() error {
	return printCatalog(os.Stdout, c.State, c.Bias)
}

func printCatalog(w io.Writer, stateName string, bias bool) error {
	if stateName == "" {
		fmt.Fprintln(w, catalog.RenderCatalog(catalog.StateIdle))
		fmt.Fprintln(w, titleStyle.Render("Allowed actions per state"))
		for _, s := range catalog.AllStates() {
			kinds := catalog.AvailableTools(s)
			names := make([]string, len(kinds))
			for i, k := range kinds {
				names[i] = string(k)
			}
			fmt.Fprintf(w, "  %s %s\n", labelStyle.Render(fmt.Sprintf("%-10s", s)), strings.Join(names, ", "))
		}
		return nil
	}

	s, err := catalog.ParseState(stateName)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, catalog.RenderCatalog(s))
	fmt.Fprintln(w, catalog.Guidance(s))
	if bias {
		b := catalog.DecodingBias(s)
		keys := make([]string, 0, len(b))
		for k := range b {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintln(w, titleStyle.Render("Decoding bias"))
		for _, k := range keys {
			fmt.Fprintf(w, "  %s %+.1f\n", labelStyle.Render(k), b[k])
		}
	}
	return nil
}

// Run lists the workers the configuration registers.
func (c *WorkersCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	rt := newRuntime(cfg, globalCreds)
	defer rt.cleanup()
	if err := rt.setupWorkspace(); err != nil {
		return err
	}
	if err := rt.createProvider(); err != nil {
		return err
	}
	rt.setupEffectors()
	rt.setupOrchestrator()
	rt.createExecutor()
	if err := rt.registerWorkers(); err != nil {
		return err
	}
	printWorkers(os.Stdout, rt.orch.Workers())
	return nil
}

func printWorkers(w io.Writer, workers []orchestrator.Worker) {
	for _, wk := range workers {
		fmt.Fprintf(w, "%s %s %s\n",
			valueStyle.Render(fmt.Sprintf("%-10s", wk.Name)),
			labelStyle.Render(fmt.Sprintf("p%-2d", wk.Priority)),
			wk.Description)
		if len(wk.Keywords) > 0 {
			fmt.Fprintf(w, "           %s\n", labelStyle.Render(strings.Join(wk.Keywords, ", ")))
		}
	}
}
