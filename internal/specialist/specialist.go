// Package specialist provides the workers the scheduler delegates to: one
// LLM call per task with a role-specific prompt, plus planner and browser
// workers backed by their packages.
package specialist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/agentkit/telemetry"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vinayprograms/taskforce/internal/effector"
	"github.com/vinayprograms/taskforce/internal/orchestrator"
	"github.com/vinayprograms/taskforce/internal/planner"
	"github.com/vinayprograms/taskforce/internal/protocol"
)

// ErrEmptyResponse is returned when the model answers with nothing.
var ErrEmptyResponse = errors.New("specialist returned an empty response")

// Searcher finds sources for the knowledge specialist.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]effector.SearchResult, error)
}

// Specialist answers a task with a single model call.
type Specialist struct {
	role     Role
	provider llm.Provider
	searcher Searcher
	logger   *logging.Logger
}

// New returns a specialist for role.
func New(role Role, provider llm.Provider) *Specialist {
	return &Specialist{
		role:     role,
		provider: provider,
		logger:   logging.New().WithComponent("specialist." + role.Name),
	}
}

// WithSearcher lets the specialist gather sources before answering.
func (s *Specialist) WithSearcher(searcher Searcher) *Specialist {
	s.searcher = searcher
	return s
}

// Role returns the specialist's role.
func (s *Specialist) Role() Role { return s.role }

// Execute implements orchestrator.Executor.
func (s *Specialist) Execute(ctx context.Context, description string, payload map[string]interface{}) (interface{}, error) {
	ctx, span := telemetry.GetTracer().StartSpan(ctx, "specialist."+s.role.Name)
	defer span.End()
	start := time.Now()
	s.logger.PhaseStart("EXECUTE", s.role.Name, "")

	if payload == nil {
		payload = map[string]interface{}{}
	}
	if s.searcher != nil && field(payload, "sources") == "" {
		payload = s.withSources(ctx, description, payload)
	}

	resp, err := s.provider.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: s.role.System},
			{Role: "user", Content: s.role.Prompt(description, payload)},
		},
	})
	if err != nil {
		span.RecordError(err)
		s.logger.PhaseComplete("EXECUTE", s.role.Name, "", time.Since(start), "error")
		return nil, fmt.Errorf("%s specialist: %w", s.role.Name, err)
	}
	content := strings.TrimSpace(resp.Content)
	if content == "" {
		s.logger.PhaseComplete("EXECUTE", s.role.Name, "", time.Since(start), "empty")
		return nil, ErrEmptyResponse
	}
	span.SetAttributes(attribute.Int("specialist.output_len", len(content)))
	s.logger.PhaseComplete("EXECUTE", s.role.Name, "", time.Since(start), "complete")
	return content, nil
}

// withSources copies payload and adds search results under "sources".
// Search failures are logged and the specialist answers without sources.
func (s *Specialist) withSources(ctx context.Context, query string, payload map[string]interface{}) map[string]interface{} {
	if q := field(payload, "query"); q != "" {
		query = q
	}
	results, err := s.searcher.Search(ctx, query, 5)
	if err != nil {
		s.logger.Warn("search failed", map[string]interface{}{"query": query, "error": err.Error()})
		return payload
	}
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "Source %d: %s (%s)\n%s\n\n", i+1, r.Title, r.URL, r.Snippet)
	}
	out := make(map[string]interface{}, len(payload)+1)
	for k, v := range payload {
		out[k] = v
	}
	out["sources"] = strings.TrimSpace(b.String())
	return out
}

// PlannerWorker exposes the planner as a delegation target. Its result is
// a map so hierarchical merges can combine plans.
type PlannerWorker struct {
	planner *planner.Planner
}

// NewPlannerWorker wraps p.
func NewPlannerWorker(p *planner.Planner) *PlannerWorker {
	return &PlannerWorker{planner: p}
}

// Execute implements orchestrator.Executor.
func (w *PlannerWorker) Execute(ctx context.Context, description string, payload map[string]interface{}) (interface{}, error) {
	req := planner.Request{Task: description}
	if c := field(payload, "constraints"); c != "" {
		req.Constraints = []string{c}
	}
	plan, err := w.planner.Plan(ctx, req)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"plan":  plan.Raw,
		"steps": plan.Outline(),
		"count": len(plan.Steps),
	}, nil
}

// BrowserWorker runs a delegated task through a browser effector.
type BrowserWorker struct {
	browser effector.Effector
}

// NewBrowserWorker wraps b.
func NewBrowserWorker(b effector.Effector) *BrowserWorker {
	return &BrowserWorker{browser: b}
}

// Execute implements orchestrator.Executor. Payload keys action_type,
// url, selector, value and path select a structured command.
func (w *BrowserWorker) Execute(ctx context.Context, description string, payload map[string]interface{}) (interface{}, error) {
	fields := map[string]string{"TASK": description}
	for _, k := range []string{"action_type", "url", "selector", "value", "path"} {
		if v := field(payload, k); v != "" {
			fields[strings.ToUpper(k)] = v
		}
	}
	res := w.browser.Execute(ctx, protocol.Action{Kind: protocol.KindBrowser, Fields: fields})
	if r, ok := w.browser.(effector.Releaser); ok {
		owner, _ := orchestrator.ParentFrom(ctx)
		r.Release(owner)
	}
	if !res.Success {
		return nil, errors.New(res.Error)
	}
	return res.Output, nil
}

// Deps are the collaborators RegisterAll wires into workers. Nil members
// leave the corresponding worker unregistered or degraded.
type Deps struct {
	Provider llm.Provider
	// Providers overrides Provider per worker name.
	Providers map[string]llm.Provider
	Searcher Searcher
	Planner  *planner.Planner
	Browser  effector.Effector
	Timeout  time.Duration
	// Only limits registration to the named workers. Empty registers all.
	Only []string
}

func (d Deps) provider(name string) llm.Provider {
	if p, ok := d.Providers[name]; ok && p != nil {
		return p
	}
	return d.Provider
}

func (d Deps) wants(name string) bool {
	if len(d.Only) == 0 {
		return true
	}
	for _, n := range d.Only {
		if n == name {
			return true
		}
	}
	return false
}

// RegisterAll registers every specialist the dependencies allow.
func RegisterAll(o *orchestrator.Orchestrator, deps Deps) error {
	if deps.Provider == nil {
		return errors.New("specialists need a provider")
	}
	opts := func(desc string, keywords []string) []orchestrator.Option {
		out := []orchestrator.Option{orchestrator.WithDescription(desc), orchestrator.WithKeywords(keywords...)}
		if deps.Timeout > 0 {
			out = append(out, orchestrator.WithTimeout(deps.Timeout))
		}
		return out
	}

	for _, role := range Roles() {
		if !deps.wants(role.Name) {
			continue
		}
		s := New(role, deps.provider(role.Name))
		if role.Name == knowledgeRole.Name && deps.Searcher != nil {
			s.WithSearcher(deps.Searcher)
		}
		if err := o.Register(role.Name, role.Priority, s, opts(role.Description, role.Keywords)...); err != nil {
			return err
		}
	}

	if deps.wants("planner") {
		p := deps.Planner
		if p == nil {
			p = planner.New(deps.provider("planner"))
		}
		if err := o.Register("planner", 8, NewPlannerWorker(p),
			opts("Strategic planning and task decomposition", []string{"plan", "strategy", "approach", "design"})...); err != nil {
			return err
		}
	}

	if deps.Browser != nil && deps.wants("browser") {
		if err := o.Register("browser", 6, NewBrowserWorker(deps.Browser),
			opts("Web automation and browser interaction", []string{"browse", "navigate", "click", "web automation"})...); err != nil {
			return err
		}
	}
	return nil
}
