// Package llm assembles the rate-limited, retrying LLM client used by every
// pipeline stage. The client is a middleware chain around a core HTTP
// handler: panic containment and truncation recovery on the outside, retry
// in the middle, rate limiting immediately before the wire.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/caseval/caseval/internal/llm/circuitbreaker"
	"github.com/caseval/caseval/internal/llm/configuration"
	llmerrors "github.com/caseval/caseval/internal/llm/errors"
	"github.com/caseval/caseval/internal/llm/providers"
	"github.com/caseval/caseval/internal/llm/ratelimit"
	"github.com/caseval/caseval/internal/llm/recovery"
	"github.com/caseval/caseval/internal/llm/retry"
	"github.com/caseval/caseval/internal/llm/transport"
)

// Client is the interface pipeline stages use to talk to any provider.
type Client interface {
	// Complete sends a normalized chat-completion request through the full
	// middleware chain and returns the normalized response.
	Complete(ctx context.Context, req *transport.Request) (*transport.Response, error)

	// SupportsReasoningTrace reports whether the named provider returns a
	// chain-of-thought trace.
	SupportsReasoningTrace(provider string) bool

	// Close releases pooled resources.
	Close() error
}

type client struct {
	handler transport.Handler
	router  *providers.Router
	global  *ratelimit.GlobalLimiter
	logger  *slog.Logger
}

// NewClient builds the client from configuration. The middleware chain is
// ordered so a truncation resubmit re-enters retry and rate limiting, and
// every outbound attempt (including retries) consumes a rate-limit slot.
func NewClient(cfg *configuration.Config) (Client, error) {
	return newClient(cfg, nil)
}

// NewClientWithClock is the test seam for driving the rate-limit windows
// with a synthetic clock.
func NewClientWithClock(cfg *configuration.Config, clock ratelimit.Clock) (Client, error) {
	return newClient(cfg, clock)
}

func newClient(cfg *configuration.Config, clock ratelimit.Clock) (Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client configuration: %w", err)
	}

	router, err := providers.NewRouter(cfg.Providers)
	if err != nil {
		return nil, err
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = configuration.NewHTTPClient(cfg.HTTPTimeout)
	}

	global := ratelimit.NewGlobalLimiter(cfg.GlobalLimiter)

	breaker := circuitbreaker.NewMiddleware(circuitbreaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		OpenTimeout:      cfg.Breaker.OpenTimeout,
	}, nil)

	core := transport.NewHTTPHandler(httpClient, router)
	handler := transport.Chain(core,
		recovery.NewPanicMiddleware(),
		recovery.NewTruncationMiddleware(cfg.Recovery),
		retry.NewMiddleware(cfg.Retry),
		breaker.Wrap(),
		ratelimit.GlobalMiddleware(global, clock),
		ratelimit.NewMiddleware(cfg.RateLimits, clock),
	)

	return &client{
		handler: handler,
		router:  router,
		global:  global,
		logger:  slog.Default().With("component", "llm_client"),
	}, nil
}

// Complete runs the request through the chain and rejects empty answers.
// An empty response for a stage that requires content is surfaced as
// ErrUpstreamEmptyAnswer, never silently replaced with placeholder text.
func (c *client) Complete(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	if req.Provider == "" {
		return nil, fmt.Errorf("%w: empty provider name", llmerrors.ErrUnknownProvider)
	}
	if req.Model == "" {
		return nil, fmt.Errorf("model is required for provider %s", req.Provider)
	}

	resp, err := c.handler.Handle(ctx, req)
	if err != nil {
		return nil, err
	}

	if resp.ContentFiltered {
		return nil, &llmerrors.ContentFilterError{Provider: req.Provider}
	}
	if strings.TrimSpace(resp.Content) == "" {
		return nil, fmt.Errorf("provider %s stage %s: %w",
			req.Provider, req.Stage, llmerrors.ErrUpstreamEmptyAnswer)
	}

	c.logger.Debug("completion finished",
		"provider", req.Provider,
		"stage", req.Stage,
		"tokens", resp.Usage.TotalTokens,
		"latency_ms", resp.Usage.LatencyMs,
		"truncated", resp.Truncated)

	return resp, nil
}

// SupportsReasoningTrace implements Client.
func (c *client) SupportsReasoningTrace(provider string) bool {
	adapter, err := c.router.Pick(provider)
	if err != nil {
		return false
	}
	return adapter.SupportsReasoningTrace()
}

// Close implements Client.
func (c *client) Close() error {
	if c.global != nil {
		return c.global.Close()
	}
	return nil
}
