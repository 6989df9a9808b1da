package configuration

import (
	"net"
	"net/http"
	"time"
)

// HTTP and connection constants.
const (
	DefaultMaxIdleConns      = 100
	DefaultIdleTimeout       = 90 * time.Second
	DefaultTLSTimeout        = 10 * time.Second
	DefaultDialTimeout       = 10 * time.Second
	DefaultHTTPTimeout       = 180 * time.Second
	DefaultKeepAliveInterval = 30 * time.Second
	DefaultMaxConnsPerHost   = 50
)

// Retry constants.
const (
	DefaultMaxAttempts      = 3
	DefaultRetryInterval    = 2 * time.Second
	DefaultMaxRateLimitWait = 90 * time.Second
)

// Recovery constants.
const (
	// DefaultMaxTokensCeiling caps the escalated token budget after a
	// truncation recovery doubles max_tokens.
	DefaultMaxTokensCeiling = 16000
)

// Rate limiting constants.
const (
	DefaultMaxRPM      = 60
	DefaultMaxRPS      = 2
	DefaultMinInterval = 500 * time.Millisecond
)

// DefaultRateLimit returns the conservative per-provider window used when
// no explicit limits are configured.
func DefaultRateLimit() RateLimitConfig {
	return RateLimitConfig{
		MaxRPM:      DefaultMaxRPM,
		MaxRPS:      DefaultMaxRPS,
		MinInterval: DefaultMinInterval,
	}
}

// DefaultConfig returns a configuration with production defaults. Provider
// entries must be added by the caller since they carry credentials.
func DefaultConfig() *Config {
	return &Config{
		HTTPTimeout: DefaultHTTPTimeout,
		Providers:   make(map[string]ProviderConfig),
		RateLimits:  make(map[string]RateLimitConfig),
		Retry: RetryConfig{
			MaxAttempts:      DefaultMaxAttempts,
			Interval:         DefaultRetryInterval,
			MaxRateLimitWait: DefaultMaxRateLimitWait,
		},
		Recovery: RecoveryConfig{
			Enabled:          true,
			MaxTokensCeiling: DefaultMaxTokensCeiling,
		},
	}
}

// NewHTTPClient builds the shared HTTP client with pooled connections. One
// client serves every provider so idle connections are reused across the
// whole run.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   DefaultDialTimeout,
				KeepAlive: DefaultKeepAliveInterval,
			}).DialContext,
			MaxIdleConns:        DefaultMaxIdleConns,
			MaxConnsPerHost:     DefaultMaxConnsPerHost,
			IdleConnTimeout:     DefaultIdleTimeout,
			TLSHandshakeTimeout: DefaultTLSTimeout,
		},
	}
}
