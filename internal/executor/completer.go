package executor

import (
	"context"
	"errors"
	"time"

	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/agentkit/logging"
	"golang.org/x/time/rate"
)

// Request is one completion request: the full conversation so far and the
// decoding bias of the task's current state.
type Request struct {
	Turns []Turn
	Bias  map[string]float64
}

// Completer produces the next assistant turn. Implementations may reuse
// work for an unchanged leading prefix of turns.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

// Complete implements Completer.
func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// UsageCompleter is implemented by completers that can report what a call
// cost. The worker loop records it with the assistant turn.
type UsageCompleter interface {
	Completer
	CompleteWithUsage(ctx context.Context, req Request) (string, Usage, error)
}

// Usage describes one provider call.
type Usage struct {
	Model     string
	Latency   time.Duration
	TokensIn  int
	TokensOut int
	Thinking  string
}

// ProviderCompleter sends requests to an llm.Provider, spacing them with a
// token-bucket limiter shared by every task using it.
type ProviderCompleter struct {
	provider llm.Provider
	limiter  *rate.Limiter
	logger   *logging.Logger

	// OnUsage, if set, is called after every successful call.
	OnUsage func(Usage)
}

// NewProviderCompleter wraps provider. A perSecond of zero or less means no
// rate limit.
func NewProviderCompleter(provider llm.Provider, perSecond float64, burst int) *ProviderCompleter {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &ProviderCompleter{
		provider: provider,
		limiter:  rate.NewLimiter(limit, burst),
		logger:   logging.New().WithComponent("completer"),
	}
}

// Complete implements Completer.
func (c *ProviderCompleter) Complete(ctx context.Context, req Request) (string, error) {
	reply, _, err := c.CompleteWithUsage(ctx, req)
	return reply, err
}

// CompleteWithUsage implements UsageCompleter.
//
// llm.ChatRequest has no decoding bias field, so the bias only reaches the
// log here; the state machine still rejects masked actions.
func (c *ProviderCompleter) CompleteWithUsage(ctx context.Context, req Request) (string, Usage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", Usage{}, err
	}

	messages := make([]llm.Message, len(req.Turns))
	for i, t := range req.Turns {
		messages[i] = llm.Message{Role: t.Role, Content: t.Content}
	}
	if len(req.Bias) > 0 {
		c.logger.Debug("decoding bias not supported by provider", map[string]interface{}{
			"masked": len(req.Bias),
		})
	}

	start := time.Now()
	resp, err := c.provider.Chat(ctx, llm.ChatRequest{Messages: messages})
	if err != nil {
		return "", Usage{}, err
	}
	if resp == nil {
		return "", Usage{}, errors.New("provider returned no response")
	}
	usage := Usage{
		Model:     resp.Model,
		Latency:   time.Since(start),
		TokensIn:  resp.InputTokens,
		TokensOut: resp.OutputTokens,
		Thinking:  resp.Thinking,
	}
	c.logger.Debug("completion", map[string]interface{}{
		"model":      usage.Model,
		"turns":      len(messages),
		"tokens_in":  usage.TokensIn,
		"tokens_out": usage.TokensOut,
		"latency_ms": usage.Latency.Milliseconds(),
	})
	if c.OnUsage != nil {
		c.OnUsage(usage)
	}
	return resp.Content, usage, nil
}
