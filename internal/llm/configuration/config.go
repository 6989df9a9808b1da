// Package configuration holds the LLM client configuration: provider
// endpoints and credentials, rate-limit windows, retry policy, and
// truncation recovery settings.
package configuration

import (
	"fmt"
	"net/http"
	"time"
)

// Config holds the complete configuration for the LLM client.
type Config struct {
	// HTTP client configuration.
	HTTPTimeout time.Duration `json:"http_timeout"`
	HTTPClient  *http.Client  `json:"-"`

	// Providers maps provider name to its configuration.
	Providers map[string]ProviderConfig `json:"providers"`

	// RateLimits maps provider name to its rate-limit windows. Providers
	// absent from the map use DefaultRateLimit.
	RateLimits map[string]RateLimitConfig `json:"rate_limits"`

	Retry    RetryConfig    `json:"retry"`
	Recovery RecoveryConfig `json:"recovery"`
	Breaker  BreakerConfig  `json:"breaker"`

	// GlobalLimiter configures the optional cross-process limiter.
	GlobalLimiter GlobalLimiterConfig `json:"global_limiter"`
}

// ProviderConfig holds provider-specific settings and authentication.
type ProviderConfig struct {
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"-"` // Sensitive, not serialized
	Model    string `json:"model"`

	// Headers carries extra HTTP headers some endpoints require.
	Headers map[string]string `json:"headers,omitempty"`
}

// RateLimitConfig defines the sliding-window limits for one provider.
// Zero values disable the corresponding constraint.
type RateLimitConfig struct {
	MaxRPM      int           `json:"max_rpm" yaml:"max_rpm"`           // Requests per 60s sliding window
	MaxRPS      int           `json:"max_rps" yaml:"max_rps"`           // Requests per 1s sliding window
	MinInterval time.Duration `json:"min_interval" yaml:"min_interval"` // Minimum spacing between requests
}

// RetryConfig controls retry behavior for transient failures. Backoff is
// linear: attempt n sleeps n * Interval before resubmitting.
type RetryConfig struct {
	MaxAttempts int           `json:"max_attempts" yaml:"max_attempts"`
	Interval    time.Duration `json:"interval" yaml:"interval"`

	// MaxRateLimitWait caps how long a single 429 Retry-After hint is
	// honored before it is treated as a plain retryable failure.
	MaxRateLimitWait time.Duration `json:"max_rate_limit_wait" yaml:"max_rate_limit_wait"`
}

// RecoveryConfig controls the one-shot truncation recovery.
type RecoveryConfig struct {
	// Enabled turns the doubled max_tokens resubmit on.
	Enabled bool `json:"enabled"`

	// MaxTokensCeiling bounds the escalated token budget.
	MaxTokensCeiling int64 `json:"max_tokens_ceiling"`
}

// BreakerConfig tunes the per-provider circuit breaker. Zero values use
// the breaker package defaults.
type BreakerConfig struct {
	FailureThreshold int           `json:"failure_threshold" yaml:"failure_threshold"`
	SuccessThreshold int           `json:"success_threshold" yaml:"success_threshold"`
	OpenTimeout      time.Duration `json:"open_timeout" yaml:"open_timeout"`
}

// GlobalLimiterConfig configures the optional Redis fixed-window limiter
// shared across processes. Disabled unless Addr is set.
type GlobalLimiterConfig struct {
	Addr     string        `json:"addr"`
	Password string        `json:"-"`
	DB       int           `json:"db"`
	Limit    int           `json:"limit"`  // Requests per window across all processes
	Window   time.Duration `json:"window"` // Fixed window span
}

// Enabled reports whether a global limiter should be constructed.
func (g GlobalLimiterConfig) Enabled() bool { return g.Addr != "" && g.Limit > 0 }

// Validate checks that the configuration is internally consistent and that
// every configured provider has the fields required to issue requests.
func (c *Config) Validate() error {
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http_timeout must be positive, got %v", c.HTTPTimeout)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Recovery.Enabled && c.Recovery.MaxTokensCeiling <= 0 {
		return fmt.Errorf("recovery.max_tokens_ceiling must be positive when recovery is enabled")
	}
	// Endpoints may stay empty; adapters fill in their provider default.
	for name, p := range c.Providers {
		if p.APIKey == "" {
			return fmt.Errorf("provider %q: api key is required", name)
		}
	}
	for name, rl := range c.RateLimits {
		if rl.MaxRPM < 0 || rl.MaxRPS < 0 || rl.MinInterval < 0 {
			return fmt.Errorf("rate limit for %q: negative values not allowed", name)
		}
	}
	return nil
}
