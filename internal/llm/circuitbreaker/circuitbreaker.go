// Package circuitbreaker guards each provider with a three-state breaker
// so a hard provider outage fails fast instead of burning the retry and
// rate-limit budget of every worker.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	llmerrors "github.com/caseval/caseval/internal/llm/errors"
	"github.com/caseval/caseval/internal/llm/transport"
)

// State is the breaker state machine position.
type State int32

const (
	// StateClosed allows requests through.
	StateClosed State = iota
	// StateOpen blocks all requests until the open timeout elapses.
	StateOpen
	// StateHalfOpen allows a single probe request.
	StateHalfOpen
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// OpenError reports a request rejected by an open breaker. Not retryable:
// the point of the breaker is to fail fast while the provider recovers.
type OpenError struct {
	Provider string
	Until    time.Time
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit open for %s until %s", e.Provider, e.Until.Format(time.RFC3339))
}

// Default breaker tuning.
const (
	DefaultFailureThreshold = 5
	DefaultSuccessThreshold = 2
	DefaultOpenTimeout      = 30 * time.Second
)

// Config tunes one breaker.
type Config struct {
	FailureThreshold int           `json:"failure_threshold" yaml:"failure_threshold"`
	SuccessThreshold int           `json:"success_threshold" yaml:"success_threshold"`
	OpenTimeout      time.Duration `json:"open_timeout" yaml:"open_timeout"`
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = DefaultSuccessThreshold
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = DefaultOpenTimeout
	}
	return c
}

// breaker is the per-provider state machine. Mutex-guarded; the request
// itself runs outside the lock.
type breaker struct {
	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time

	cfg    Config
	now    func() time.Time
	logger *slog.Logger
}

func newBreaker(provider string, cfg Config, now func() time.Time) *breaker {
	return &breaker{
		cfg:    cfg,
		now:    now,
		logger: slog.Default().With("component", "circuitbreaker", "provider", provider),
	}
}

// allow decides whether a request may proceed, transitioning open to
// half-open after the timeout.
func (b *breaker) allow() (bool, time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true, time.Time{}
	case StateOpen:
		reopenAt := b.openedAt.Add(b.cfg.OpenTimeout)
		if b.now().Before(reopenAt) {
			return false, reopenAt
		}
		b.state = StateHalfOpen
		b.successes = 0
		b.logger.Info("circuit half-open, probing")
		return true, time.Time{}
	default: // StateHalfOpen
		// One probe at a time: reject while a probe is outstanding is
		// approximated by allowing but counting outcomes strictly.
		return true, time.Time{}
	}
}

func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.state = StateClosed
			b.failures = 0
			b.logger.Info("circuit closed")
		}
	case StateClosed:
		b.failures = 0
	}
}

func (b *breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.open()
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.open()
		}
	}
}

func (b *breaker) open() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.failures = 0
	b.logger.Warn("circuit opened", "timeout", b.cfg.OpenTimeout)
}

// currentState returns the state for observability.
func (b *breaker) currentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Middleware holds one breaker per provider.
type Middleware struct {
	mu       sync.Mutex
	breakers map[string]*breaker
	cfg      Config
	now      func() time.Time
}

// NewMiddleware creates the breaker middleware. A nil now function uses
// the wall clock.
func NewMiddleware(cfg Config, now func() time.Time) *Middleware {
	if now == nil {
		now = time.Now
	}
	return &Middleware{
		breakers: make(map[string]*breaker),
		cfg:      cfg.withDefaults(),
		now:      now,
	}
}

// Wrap returns the transport middleware.
func (m *Middleware) Wrap() transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			b := m.breakerFor(req.Provider)

			ok, until := b.allow()
			if !ok {
				return nil, &OpenError{Provider: req.Provider, Until: until}
			}

			resp, err := next.Handle(ctx, req)
			if err != nil && countsAsFailure(err) {
				b.recordFailure()
				return nil, err
			}
			if err != nil {
				return nil, err
			}
			b.recordSuccess()
			return resp, nil
		})
	}
}

// State reports the breaker state for a provider.
func (m *Middleware) State(provider string) State {
	return m.breakerFor(provider).currentState()
}

func (m *Middleware) breakerFor(provider string) *breaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.breakers[provider]
	if !ok {
		b = newBreaker(provider, m.cfg, m.now)
		m.breakers[provider] = b
	}
	return b
}

// countsAsFailure reports whether an error indicates provider
// unavailability. Rate limits, content filters, and parse failures are
// provider responses, not outages, and leave the breaker alone.
func countsAsFailure(err error) bool {
	var rlErr *llmerrors.RateLimitError
	if errors.As(err, &rlErr) {
		return false
	}
	var filterErr *llmerrors.ContentFilterError
	if errors.As(err, &filterErr) {
		return false
	}
	var malformedErr *llmerrors.MalformedResponseError
	if errors.As(err, &malformedErr) {
		return false
	}
	if errors.Is(err, llmerrors.ErrUpstreamEmptyAnswer) {
		return false
	}

	var provErr *llmerrors.ProviderError
	if errors.As(err, &provErr) {
		switch provErr.Type {
		case llmerrors.ErrorTypeTimeout, llmerrors.ErrorTypeNetwork, llmerrors.ErrorTypeProvider:
			return true
		default:
			return false
		}
	}
	return llmerrors.IsNetworkError(err)
}
