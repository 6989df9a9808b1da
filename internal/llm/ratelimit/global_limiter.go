package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/caseval/caseval/internal/llm/configuration"
	"github.com/caseval/caseval/internal/llm/transport"
)

// fixedWindowScript atomically increments the per-window counter and sets
// its expiry on first use. Returns the count after increment.
var fixedWindowScript = redis.NewScript(`
local key = KEYS[1]
local window = tonumber(ARGV[1])
local count = redis.call('INCR', key)
if count == 1 then
    redis.call('EXPIRE', key, window)
end
return count
`)

// GlobalLimiter enforces a cross-process fixed-window cap backed by Redis.
// Multiple evaluation runs sharing one API key coordinate through it so
// their combined throughput stays under the provider quota.
//
// The limiter fails open: when Redis is unreachable the local sliding
// windows remain the only constraint and the outage is logged once per
// degradation.
type GlobalLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	logger *slog.Logger
	now    func() time.Time

	// mu guards degraded; Allow is called from every worker goroutine.
	mu       sync.Mutex
	degraded bool
}

// NewGlobalLimiter connects to Redis and returns the limiter. Callers
// should check cfg.Enabled() first; a disabled config returns nil.
func NewGlobalLimiter(cfg configuration.GlobalLimiterConfig) *GlobalLimiter {
	if !cfg.Enabled() {
		return nil
	}
	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &GlobalLimiter{
		client: client,
		limit:  cfg.Limit,
		window: window,
		logger: slog.Default().With("component", "global_limiter"),
		now:    time.Now,
	}
}

// Allow reports whether a request for the provider may proceed in the
// current window. Errors from Redis degrade to allow.
func (g *GlobalLimiter) Allow(ctx context.Context, provider string) (bool, error) {
	key := g.windowKey(provider)
	count, err := fixedWindowScript.Run(ctx, g.client, []string{key},
		int(g.window.Seconds())).Int64()
	if err != nil {
		g.markDegraded(err)
		return true, nil
	}
	g.clearDegraded()
	return count <= int64(g.limit), nil
}

// markDegraded records the outage, logging only on the transition so a
// long Redis outage produces one warning rather than one per request.
func (g *GlobalLimiter) markDegraded(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.degraded {
		return
	}
	g.degraded = true
	g.logger.Warn("global limiter unreachable, failing open", "error", err)
}

func (g *GlobalLimiter) clearDegraded() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.degraded {
		g.degraded = false
		g.logger.Info("global limiter reachable again")
	}
}

// Close releases the Redis connection.
func (g *GlobalLimiter) Close() error {
	return g.client.Close()
}

func (g *GlobalLimiter) windowKey(provider string) string {
	bucket := g.now().Unix() / int64(g.window.Seconds())
	return fmt.Sprintf("caseval:ratelimit:%s:%d", provider, bucket)
}

// windowRemainder is how long until the fixed window containing now rolls
// over.
func windowRemainder(now time.Time, window time.Duration) time.Duration {
	return window - time.Duration(now.UnixNano())%window
}

// GlobalMiddleware wraps the handler with the cross-process limiter. When
// the window is exhausted the request waits until the next window opens
// and tries again, so callers see latency rather than failures.
func GlobalMiddleware(limiter *GlobalLimiter, clock Clock) transport.Middleware {
	if clock == nil {
		clock = realClock{}
	}
	return func(next transport.Handler) transport.Handler {
		if limiter == nil {
			return next
		}
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			for {
				ok, err := limiter.Allow(ctx, req.Provider)
				if err != nil {
					return nil, err
				}
				if ok {
					return next.Handle(ctx, req)
				}
				remaining := windowRemainder(clock.Now(), limiter.window)
				if err := clock.Sleep(ctx, remaining); err != nil {
					return nil, err
				}
			}
		})
	}
}
