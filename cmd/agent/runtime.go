// Package main provides the runtime shared by run and orchestrate.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vinayprograms/agentkit/credentials"
	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/agentkit/telemetry"

	"github.com/vinayprograms/taskforce/internal/config"
	"github.com/vinayprograms/taskforce/internal/effector"
	"github.com/vinayprograms/taskforce/internal/eventbus"
	"github.com/vinayprograms/taskforce/internal/executor"
	"github.com/vinayprograms/taskforce/internal/orchestrator"
	"github.com/vinayprograms/taskforce/internal/planner"
	"github.com/vinayprograms/taskforce/internal/session"
	"github.com/vinayprograms/taskforce/internal/specialist"
)

// workerName is the scheduler name of the full worker loop.
const workerName = "worker"

// runtime owns every component of one CLI invocation.
type runtime struct {
	cfg   *config.Config
	creds *credentials.Credentials

	// Components
	provider  llm.Provider
	completer *executor.ProviderCompleter
	telem     telemetry.Exporter
	workspace *effector.Workspace
	browser   *effector.Browser
	searcher  *effector.Searcher
	planner   *planner.Planner
	orch      *orchestrator.Orchestrator
	exec      *executor.Executor
	bus       *eventbus.Bus

	// Session
	store      *session.FileStore
	sessionMgr *session.Manager
	sess       *session.Session

	// Extra event receivers, e.g. the TUI
	sinks []executor.Sink

	// Cleanup
	closers []func()
}

// newRuntime creates a runtime from loaded configuration.
func newRuntime(cfg *config.Config, creds *credentials.Credentials) *runtime {
	return &runtime{cfg: cfg, creds: creds}
}

// loadConfig loads path, or agent.toml when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.LoadDefault()
}

// setup initializes all runtime components. name labels the session.
func (rt *runtime) setup(name string) error {
	if err := rt.setupWorkspace(); err != nil {
		return err
	}
	if err := rt.createProvider(); err != nil {
		return err
	}
	if err := rt.setupTelemetry(); err != nil {
		return err
	}
	if err := rt.setupSession(name); err != nil {
		return err
	}
	if err := rt.setupEvents(); err != nil {
		return err
	}
	rt.setupEffectors()
	rt.setupOrchestrator()
	rt.createExecutor()
	return rt.registerWorkers()
}

// setupWorkspace resolves the workspace to an absolute path.
func (rt *runtime) setupWorkspace() error {
	dir := rt.cfg.Agent.Workspace
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolving workspace: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return fmt.Errorf("creating workspace: %w", err)
	}
	rt.workspace, err = effector.NewWorkspace(abs)
	if err != nil {
		return fmt.Errorf("opening workspace: %w", err)
	}
	return nil
}

// createProvider creates the worker loop provider and its completer.
func (rt *runtime) createProvider() error {
	p, err := rt.newProvider(rt.cfg.LLM)
	if err != nil {
		return err
	}
	rt.provider = p
	rt.completer = executor.NewProviderCompleter(p, rt.cfg.LLM.RateLimit, rt.cfg.LLM.RateBurst)
	return nil
}

// newProvider builds a provider from one LLM section.
func (rt *runtime) newProvider(c config.LLMConfig) (llm.Provider, error) {
	name := c.Provider
	if name == "" {
		name = llm.InferProviderFromModel(c.Model)
	}
	if name == "" && c.Model == "" {
		return nil, fmt.Errorf("LLM model not configured")
	}
	p, err := llm.NewProvider(llm.ProviderConfig{
		Provider:  name,
		Model:     c.Model,
		APIKey:    rt.apiKey(name, c),
		MaxTokens: c.MaxTokens,
		BaseURL:   c.BaseURL,
		Thinking:  llm.ThinkingConfig{Level: llm.ThinkingLevel(c.Thinking)},
	})
	if err != nil {
		return nil, fmt.Errorf("creating LLM provider: %w", err)
	}
	return p, nil
}

// apiKey prefers the credentials file, then the configured environment
// variable.
func (rt *runtime) apiKey(provider string, c config.LLMConfig) string {
	if rt.creds != nil {
		if key := rt.creds.GetAPIKey(provider); key != "" {
			return key
		}
	}
	env := c.APIKeyEnv
	if env == "" {
		env = config.DefaultAPIKeyEnv(provider)
	}
	if env == "" {
		return ""
	}
	return os.Getenv(env)
}

// setupTelemetry creates the telemetry exporter.
func (rt *runtime) setupTelemetry() error {
	var err error
	if rt.cfg.Telemetry.Enabled {
		rt.telem, err = telemetry.NewExporter(rt.cfg.Telemetry.Protocol, rt.cfg.Telemetry.Endpoint)
		if err != nil {
			return fmt.Errorf("creating telemetry exporter: %w", err)
		}
	} else {
		rt.telem = telemetry.NewNoopExporter()
	}
	rt.addCloser(func() { rt.telem.Close() })
	return nil
}

// setupSession creates the session log.
func (rt *runtime) setupSession(name string) error {
	var err error
	rt.store, err = session.NewFileStore(rt.cfg.SessionsDir())
	if err != nil {
		return fmt.Errorf("creating session store: %w", err)
	}
	rt.sessionMgr = session.NewManager(rt.store)
	rt.sess, err = rt.sessionMgr.Create(name)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	return nil
}

// setupEvents connects to NATS when enabled. An unreachable server is not
// fatal; the run continues without publication.
func (rt *runtime) setupEvents() error {
	if !rt.cfg.Events.Enabled {
		return nil
	}
	name := rt.cfg.Agent.ID
	if name == "" {
		name = "taskforce"
	}
	bus, err := eventbus.Connect(rt.cfg.Events.URL, rt.cfg.Events.Subject, name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: events disabled: %v\n", err)
		return nil
	}
	rt.bus = bus
	rt.addCloser(func() { bus.Close() })
	return nil
}

// setupEffectors creates the sandbox-independent effectors.
func (rt *runtime) setupEffectors() {
	if rt.cfg.Search.Enabled {
		rt.searcher = effector.NewSearcher(rt.cfg.Search.Endpoint, config.Duration(rt.cfg.Search.Timeout))
	}
	if rt.cfg.Browser.Enabled {
		rt.browser = effector.NewBrowser(effector.BrowserConfig{
			ControlURL:        rt.cfg.Browser.ControlURL,
			Bin:               rt.cfg.Browser.Bin,
			Headless:          rt.cfg.Browser.Headless,
			NavigationTimeout: config.Duration(rt.cfg.Browser.Timeout),
			SearchURL:         rt.cfg.Browser.SearchURL,
		}, rt.workspace)
		rt.addCloser(func() { rt.browser.Close() })
	}
}

// setupOrchestrator creates the scheduler and records every finished
// delegation.
func (rt *runtime) setupOrchestrator() {
	rt.orch = orchestrator.New(orchestrator.Config{
		Concurrency: rt.cfg.Orchestrator.Concurrency,
		TaskTimeout: config.Duration(rt.cfg.Orchestrator.TaskTimeout),
	})
	rt.orch.OnTaskFinished = rt.taskFinished
}

// taskFinished logs a delegated task to the session, the bus and telemetry.
func (rt *runtime) taskFinished(t orchestrator.DelegatedTask) {
	rt.recordDelegation(t)
	if rt.bus != nil {
		rt.bus.PublishDelegation(t)
	}
	if rt.telem == nil {
		return
	}
	rt.telem.LogEvent("delegation", map[string]interface{}{
		"id":          t.ID,
		"worker":      t.Worker,
		"status":      string(t.Status),
		"parent_id":   t.ParentID,
		"duration_ms": t.Duration().Milliseconds(),
	})
}

// recordDelegation appends a delegation event to the session.
func (rt *runtime) recordDelegation(t orchestrator.DelegatedTask) {
	if rt.sess == nil {
		return
	}
	ev := session.Event{
		Type:       session.EventDelegation,
		TaskID:     t.ParentID,
		Agent:      t.Worker,
		Args:       map[string]interface{}{"task": t.Description},
		Success:    session.BoolPtr(t.Succeeded()),
		Error:      t.Error,
		DurationMs: t.Duration().Milliseconds(),
		Meta: &session.EventMeta{
			Worker:   t.Worker,
			ParentID: t.ParentID,
			Status:   string(t.Status),
		},
	}
	if t.Result != nil {
		ev.Content = fmt.Sprint(t.Result)
	}
	rt.sess.AddEvent(ev)
	if err := rt.sessionMgr.Update(rt.sess); err != nil {
		fmt.Fprintf(os.Stderr, "warning: session not saved: %v\n", err)
	}
}

// createExecutor creates the worker loop with every effector configured.
func (rt *runtime) createExecutor() {
	set := effector.Set{
		Workspace:  rt.workspace,
		Browser:    rt.browser,
		Searcher:   rt.searcher,
		Delegation: effector.NewDelegation(rt.orch),
	}
	if rt.cfg.Sandbox.Enabled {
		set.Sandbox = effector.NewSandbox(rt.workspace.Root(), config.Duration(rt.cfg.Sandbox.Timeout), rt.cfg.Sandbox.MaxOutput)
	}

	rt.planner = planner.New(rt.provider)
	var opts []executor.Option
	if rt.sess != nil {
		opts = append(opts, executor.WithSession(rt.sess, rt.sessionMgr))
	}
	if rt.cfg.Agent.Plan {
		opts = append(opts, executor.WithPlanner(rt.planner))
	}
	if rt.bus != nil {
		opts = append(opts, executor.WithSink(rt.bus))
	}
	for _, s := range rt.sinks {
		opts = append(opts, executor.WithSink(s))
	}

	rt.exec = executor.New(executor.Config{
		MaxIterations: rt.cfg.Agent.MaxIterations,
		Retry:         retryPolicy(rt.cfg.Retry),
	}, rt.completer, set.Dispatcher(), opts...)
}

// registerWorkers registers the specialists and the worker loop itself.
func (rt *runtime) registerWorkers() error {
	deps := specialist.Deps{
		Provider:  rt.provider,
		Providers: make(map[string]llm.Provider),
		Planner:   rt.planner,
		Timeout:   config.Duration(rt.cfg.Orchestrator.TaskTimeout),
		Only:      rt.cfg.Orchestrator.Specialists,
	}
	if rt.searcher != nil {
		deps.Searcher = rt.searcher
	}
	if rt.browser != nil {
		deps.Browser = rt.browser
	}
	for name := range rt.cfg.Profiles {
		p, err := rt.newProvider(rt.cfg.GetProfile(name))
		if err != nil {
			return fmt.Errorf("profile %s: %w", name, err)
		}
		deps.Providers[name] = p
	}
	if err := specialist.RegisterAll(rt.orch, deps); err != nil {
		return fmt.Errorf("registering specialists: %w", err)
	}
	return rt.orch.Register(workerName, 5, executor.NewWorker(rt.exec),
		orchestrator.WithDescription("Autonomous worker loop with the full tool catalog"),
		orchestrator.WithKeywords("implement", "build", "create", "fix", "run"))
}

// retryPolicy converts the validated retry section.
func retryPolicy(c config.RetryConfig) executor.RetryPolicy {
	p := executor.RetryPolicy{
		MaxAttempts:    c.MaxAttempts,
		InitialBackoff: config.Duration(c.InitialBackoff),
		MaxBackoff:     config.Duration(c.MaxBackoff),
		Multiplier:     c.Multiplier,
	}
	if p.MaxAttempts <= 0 {
		return executor.DefaultRetryPolicy()
	}
	return p
}

// finish writes the final session status.
func (rt *runtime) finish(status, result, errMsg string) {
	if rt.sess == nil {
		return
	}
	rt.sess.Finish(status, result, errMsg)
	if err := rt.sessionMgr.Update(rt.sess); err != nil {
		fmt.Fprintf(os.Stderr, "warning: session not saved: %v\n", err)
	}
}

// sessionPath is the file the session log is written to.
func (rt *runtime) sessionPath() string {
	return rt.store.Path(rt.sess.ID)
}

// cleanup runs all registered cleanup functions.
func (rt *runtime) cleanup() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

// addCloser registers a cleanup function.
func (rt *runtime) addCloser(fn func()) {
	rt.closers = append(rt.closers, fn)
}

// sessionStatus maps a task outcome to a session status.
func sessionStatus(s executor.Status) string {
	switch s {
	case executor.StatusCompleted:
		return session.StatusComplete
	case executor.StatusTimeout:
		return session.StatusTimeout
	case executor.StatusCancelled:
		return session.StatusCancelled
	default:
		return session.StatusFailed
	}
}

// elapsed formats a duration for progress lines.
func elapsed(d time.Duration) string {
	return d.Round(100 * time.Millisecond).String()
}
