// Package ratelimit provides per-provider request pacing for the LLM
// pipeline. Each provider gets one process-wide sliding window shared by
// every worker thread, so real outbound throughput is capped independent
// of pool sizes.
//
// The window enforces three constraints before a request may leave the
// process: a per-minute cap over a 60-second sliding window, a per-second
// cap over a 1-second sliding window, and a minimum inter-request spacing
// implemented with a token-bucket limiter. Acquire blocks the calling
// goroutine until all three are satisfied.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/caseval/caseval/internal/llm/configuration"
	"github.com/caseval/caseval/internal/llm/transport"
)

const (
	// minuteWindow is the span of the per-minute sliding window.
	minuteWindow = 60 * time.Second

	// secondWindow is the span of the per-second sliding window.
	secondWindow = time.Second

	// timestampCapacity bounds the retained timestamp history. Sized for
	// the highest configured RPM observed in practice.
	timestampCapacity = 3000
)

// Window is the shared rate-limit state for one provider. All fields are
// guarded by mu; waits happen while holding the lock so concurrent callers
// are paced strictly one behind another, matching the single-gate model.
type Window struct {
	mu     sync.Mutex
	recent []time.Time

	maxRPM int
	maxRPS int

	// spacer enforces the minimum inter-request interval even when both
	// window caps have headroom. Nil when no spacing is configured.
	spacer *rate.Limiter

	clock Clock

	// slept accumulates enforced sleep for observability and tests.
	slept time.Duration
}

// NewWindow creates a sliding window for one provider. A nil clock selects
// the wall clock. Zero caps disable the corresponding constraint.
func NewWindow(maxRPM, maxRPS int, minInterval time.Duration, clock Clock) *Window {
	if clock == nil {
		clock = realClock{}
	}
	w := &Window{
		recent: make([]time.Time, 0, timestampCapacity),
		maxRPM: maxRPM,
		maxRPS: maxRPS,
		clock:  clock,
	}
	if minInterval > 0 {
		w.spacer = rate.NewLimiter(rate.Every(minInterval), 1)
	}
	return w
}

// Acquire blocks until a request slot is available or ctx is cancelled.
func (w *Window) Acquire(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock.Now()
	w.evict(now)

	if w.maxRPM > 0 && len(w.recent) >= w.maxRPM {
		wait := minuteWindow - now.Sub(w.recent[0])
		if wait > 0 {
			if err := w.sleepLocked(ctx, wait); err != nil {
				return err
			}
			now = w.clock.Now()
			w.evict(now)
		}
	}

	if w.maxRPS > 0 {
		if first, n := w.lastSecond(now); n >= w.maxRPS {
			wait := secondWindow - now.Sub(first)
			if wait > 0 {
				if err := w.sleepLocked(ctx, wait); err != nil {
					return err
				}
				now = w.clock.Now()
			}
		}
	}

	w.recent = append(w.recent, w.clock.Now())
	if len(w.recent) > timestampCapacity {
		w.recent = w.recent[len(w.recent)-timestampCapacity:]
	}

	if w.spacer != nil {
		// Token-bucket wait uses the wall clock; it is the spacing gate,
		// not part of the synthetic-clock window accounting.
		if err := w.spacer.Wait(ctx); err != nil {
			return err
		}
	}

	return nil
}

// Slept returns the cumulative enforced sleep since creation.
func (w *Window) Slept() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.slept
}

func (w *Window) sleepLocked(ctx context.Context, d time.Duration) error {
	w.slept += d
	return w.clock.Sleep(ctx, d)
}

// evict drops timestamps that have left the minute window. The boundary
// is inclusive: an entry exactly one window old no longer counts.
func (w *Window) evict(now time.Time) {
	i := 0
	for i < len(w.recent) && now.Sub(w.recent[i]) >= minuteWindow {
		i++
	}
	if i > 0 {
		w.recent = w.recent[i:]
	}
}

// lastSecond returns the earliest timestamp within the 1-second window and
// the count of requests inside it.
func (w *Window) lastSecond(now time.Time) (time.Time, int) {
	n := 0
	var first time.Time
	for i := len(w.recent) - 1; i >= 0; i-- {
		if now.Sub(w.recent[i]) >= secondWindow {
			break
		}
		first = w.recent[i]
		n++
	}
	return first, n
}

// middleware holds one Window per provider, created lazily from config.
type middleware struct {
	mu      sync.Mutex
	windows map[string]*Window
	cfg     map[string]configuration.RateLimitConfig
	clock   Clock
	logger  *slog.Logger
}

// NewMiddleware creates the rate-limiting transport middleware. Limits are
// looked up per provider; providers without configuration run unlimited
// except for a defensive default window.
func NewMiddleware(cfg map[string]configuration.RateLimitConfig, clock Clock) transport.Middleware {
	m := &middleware{
		windows: make(map[string]*Window),
		cfg:     cfg,
		clock:   clock,
		logger:  slog.Default().With("component", "ratelimit"),
	}
	return m.handle
}

func (m *middleware) handle(next transport.Handler) transport.Handler {
	return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		w := m.windowFor(req.Provider)
		start := m.clockNow()
		if err := w.Acquire(ctx); err != nil {
			return nil, err
		}
		if waited := m.clockNow().Sub(start); waited > time.Second {
			m.logger.Debug("rate limit wait",
				"provider", req.Provider,
				"stage", req.Stage,
				"waited", waited)
		}
		return next.Handle(ctx, req)
	})
}

func (m *middleware) clockNow() time.Time {
	if m.clock != nil {
		return m.clock.Now()
	}
	return time.Now()
}

func (m *middleware) windowFor(provider string) *Window {
	m.mu.Lock()
	defer m.mu.Unlock()

	if w, ok := m.windows[provider]; ok {
		return w
	}

	rl, ok := m.cfg[provider]
	if !ok {
		rl = configuration.DefaultRateLimit()
	}
	w := NewWindow(rl.MaxRPM, rl.MaxRPS, rl.MinInterval, m.clock)
	m.windows[provider] = w
	return w
}
