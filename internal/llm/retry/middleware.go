// Package retry implements the resilience middleware that re-attempts
// transient failures with linear backoff and honors provider Retry-After
// hints for rate limits.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/caseval/caseval/internal/llm/configuration"
	llmerrors "github.com/caseval/caseval/internal/llm/errors"
	"github.com/caseval/caseval/internal/llm/transport"
)

// maxRateLimitRounds bounds consecutive 429 waits per call so a provider
// that never clears cannot stall a worker forever.
const maxRateLimitRounds = 5

// AfterProvider is implemented by errors that carry retry timing hints.
type AfterProvider interface {
	GetRetryAfter() time.Duration
}

// Sleeper abstracts the backoff wait so tests run without real delays.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NewMiddleware creates retry middleware with linear backoff. Attempt n
// waits n * cfg.Interval before resubmitting. Rate-limit responses sleep
// for the provider's Retry-After hint without consuming an attempt.
func NewMiddleware(cfg configuration.RetryConfig) transport.Middleware {
	return newMiddleware(cfg, timerSleeper{})
}

// NewMiddlewareWithSleeper is the test seam for injecting a fake sleeper.
func NewMiddlewareWithSleeper(cfg configuration.RetryConfig, sleeper Sleeper) transport.Middleware {
	return newMiddleware(cfg, sleeper)
}

func newMiddleware(cfg configuration.RetryConfig, sleeper Sleeper) transport.Middleware {
	logger := slog.Default().With("component", "retry")
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = configuration.DefaultMaxAttempts
	}

	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			var lastErr error
			rateLimitRounds := 0

			for attempt := 1; attempt <= maxAttempts; attempt++ {
				resp, err := next.Handle(ctx, req)
				if err == nil {
					return resp, nil
				}
				lastErr = err

				if ctx.Err() != nil {
					return nil, ctx.Err()
				}

				// Rate limits are paced by the provider hint and do not
				// consume the retry budget.
				var rlErr *llmerrors.RateLimitError
				if errors.As(err, &rlErr) && rateLimitRounds < maxRateLimitRounds {
					rateLimitRounds++
					wait := retryAfterWait(rlErr, cfg.MaxRateLimitWait)
					logger.Warn("rate limited, waiting",
						"provider", req.Provider,
						"stage", req.Stage,
						"wait", wait,
						"round", rateLimitRounds)
					if serr := sleeper.Sleep(ctx, wait); serr != nil {
						return nil, serr
					}
					attempt--
					continue
				}

				if !llmerrors.IsRetryable(err) {
					return nil, err
				}

				if attempt == maxAttempts {
					break
				}

				backoff := time.Duration(attempt) * cfg.Interval
				logger.Warn("retrying after failure",
					"provider", req.Provider,
					"stage", req.Stage,
					"attempt", attempt,
					"backoff", backoff,
					"error", err)
				if serr := sleeper.Sleep(ctx, backoff); serr != nil {
					return nil, serr
				}
			}

			return nil, &llmerrors.TransportError{
				Provider: req.Provider,
				Attempts: maxAttempts,
				Last:     lastErr,
			}
		})
	}
}

// retryAfterWait resolves the wait for a rate-limit error: the provider
// hint when present, a conservative default otherwise, capped at maxWait.
func retryAfterWait(err AfterProvider, maxWait time.Duration) time.Duration {
	wait := err.GetRetryAfter()
	if wait <= 0 {
		wait = 5 * time.Second
	}
	if maxWait > 0 && wait > maxWait {
		wait = maxWait
	}
	return wait
}
