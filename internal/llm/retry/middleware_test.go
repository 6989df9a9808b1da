package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseval/caseval/internal/llm/configuration"
	llmerrors "github.com/caseval/caseval/internal/llm/errors"
	"github.com/caseval/caseval/internal/llm/transport"
)

// recordingSleeper captures backoff waits without sleeping.
type recordingSleeper struct {
	waits []time.Duration
}

func (s *recordingSleeper) Sleep(_ context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return nil
}

func testConfig() configuration.RetryConfig {
	return configuration.RetryConfig{
		MaxAttempts:      3,
		Interval:         2 * time.Second,
		MaxRateLimitWait: 90 * time.Second,
	}
}

func failNTimes(n int, err error) transport.Handler {
	calls := 0
	return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		calls++
		if calls <= n {
			return nil, err
		}
		return &transport.Response{Content: "ok"}, nil
	})
}

func TestRetry_LinearBackoff(t *testing.T) {
	sleeper := &recordingSleeper{}
	mw := NewMiddlewareWithSleeper(testConfig(), sleeper)

	transient := &llmerrors.ProviderError{
		Provider: "deepseek", StatusCode: 503, Type: llmerrors.ErrorTypeProvider,
	}
	handler := mw(failNTimes(2, transient))

	resp, err := handler.Handle(context.Background(), &transport.Request{Provider: "deepseek"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)

	// Attempt 1 waits 1*interval, attempt 2 waits 2*interval.
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sleeper.waits)
}

func TestRetry_ExhaustionReturnsTransportError(t *testing.T) {
	sleeper := &recordingSleeper{}
	mw := NewMiddlewareWithSleeper(testConfig(), sleeper)

	transient := &llmerrors.ProviderError{
		Provider: "openai", StatusCode: 502, Type: llmerrors.ErrorTypeProvider,
	}
	handler := mw(failNTimes(99, transient))

	_, err := handler.Handle(context.Background(), &transport.Request{Provider: "openai"})
	require.Error(t, err)

	var transportErr *llmerrors.TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Equal(t, "openai", transportErr.Provider)
	assert.Equal(t, 3, transportErr.Attempts)
	assert.ErrorIs(t, err, transient)
}

func TestRetry_TerminalErrorNotRetried(t *testing.T) {
	sleeper := &recordingSleeper{}
	mw := NewMiddlewareWithSleeper(testConfig(), sleeper)

	calls := 0
	terminal := &llmerrors.ContentFilterError{Provider: "google"}
	handler := mw(transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		calls++
		return nil, terminal
	}))

	_, err := handler.Handle(context.Background(), &transport.Request{Provider: "google"})
	assert.ErrorIs(t, err, terminal)
	assert.Equal(t, 1, calls)
	assert.Empty(t, sleeper.waits)
}

func TestRetry_RateLimitSleepsWithoutConsumingAttempt(t *testing.T) {
	sleeper := &recordingSleeper{}
	mw := NewMiddlewareWithSleeper(testConfig(), sleeper)

	calls := 0
	handler := mw(transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		calls++
		if calls == 1 {
			return nil, &llmerrors.RateLimitError{Provider: "qwen", RetryAfter: 7}
		}
		return &transport.Response{Content: "ok"}, nil
	}))

	resp, err := handler.Handle(context.Background(), &transport.Request{Provider: "qwen"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	// The Retry-After hint drives the wait, not the backoff schedule.
	assert.Equal(t, []time.Duration{7 * time.Second}, sleeper.waits)
}

func TestRetry_RateLimitWaitCapped(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRateLimitWait = 10 * time.Second
	sleeper := &recordingSleeper{}
	mw := NewMiddlewareWithSleeper(cfg, sleeper)

	handler := mw(failNTimes(1, &llmerrors.RateLimitError{Provider: "qwen", RetryAfter: 600}))

	_, err := handler.Handle(context.Background(), &transport.Request{Provider: "qwen"})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{10 * time.Second}, sleeper.waits)
}

func TestRetry_RateLimitRoundsBounded(t *testing.T) {
	sleeper := &recordingSleeper{}
	mw := NewMiddlewareWithSleeper(testConfig(), sleeper)

	handler := mw(failNTimes(99, &llmerrors.RateLimitError{Provider: "qwen", RetryAfter: 1}))

	_, err := handler.Handle(context.Background(), &transport.Request{Provider: "qwen"})
	require.Error(t, err)

	var transportErr *llmerrors.TransportError
	require.True(t, errors.As(err, &transportErr))
	// 5 rate-limit waits plus 2 backoffs before the budget runs out.
	assert.Len(t, sleeper.waits, 7)
}

func TestRetry_NetworkErrorRetried(t *testing.T) {
	sleeper := &recordingSleeper{}
	mw := NewMiddlewareWithSleeper(testConfig(), sleeper)

	handler := mw(failNTimes(1, errors.New("dial tcp: connection refused")))

	resp, err := handler.Handle(context.Background(), &transport.Request{Provider: "deepseek"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Len(t, sleeper.waits, 1)
}

func TestRetry_ContextCancelledStops(t *testing.T) {
	sleeper := &recordingSleeper{}
	mw := NewMiddlewareWithSleeper(testConfig(), sleeper)

	ctx, cancel := context.WithCancel(context.Background())
	handler := mw(transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		cancel()
		return nil, &llmerrors.ProviderError{Provider: "p", Type: llmerrors.ErrorTypeProvider}
	}))

	_, err := handler.Handle(ctx, &transport.Request{Provider: "p"})
	assert.ErrorIs(t, err, context.Canceled)
}
