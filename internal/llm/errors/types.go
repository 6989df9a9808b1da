// Package errors defines the failure taxonomy for LLM pipeline operations.
// Types classify failures into retryable and terminal categories so the
// retry middleware, stage functions, and report rows can agree on how each
// failure propagates.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType categorizes LLM operation failures for retry classification.
type ErrorType string

const (
	// ErrorTypeTimeout indicates request timeout or deadline exceeded (retryable).
	ErrorTypeTimeout ErrorType = "timeout"

	// ErrorTypeRateLimit indicates rate limit exceeded, retry with backoff (retryable).
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// ErrorTypeNetwork indicates network connectivity issues (retryable).
	ErrorTypeNetwork ErrorType = "network"

	// ErrorTypeProvider indicates provider service unavailable (retryable).
	ErrorTypeProvider ErrorType = "provider_unavailable"

	// ErrorTypeContent indicates content blocked by safety filters (terminal).
	ErrorTypeContent ErrorType = "content_filtered"

	// ErrorTypeAuth indicates authentication failed (terminal).
	ErrorTypeAuth ErrorType = "authentication"

	// ErrorTypePermission indicates insufficient permissions (terminal).
	ErrorTypePermission ErrorType = "permission_denied"

	// ErrorTypeQuota indicates account quota exceeded (terminal).
	ErrorTypeQuota ErrorType = "quota_exceeded"

	// ErrorTypeValidation indicates the request was rejected as malformed (terminal).
	ErrorTypeValidation ErrorType = "validation_failed"

	// ErrorTypeUnknown indicates an unclassified error.
	ErrorTypeUnknown ErrorType = "unknown"
)

// Sentinel errors shared across the client and pipeline stages.
var (
	// ErrUnknownProvider indicates an unknown or unconfigured provider.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrInvalidResponse indicates the provider returned an unparseable body.
	ErrInvalidResponse = errors.New("invalid provider response")

	// ErrUpstreamEmptyAnswer indicates the provider returned empty content
	// for a request that required a non-empty answer. Not retried: an empty
	// answer is treated as provider policy, not a transient fault.
	ErrUpstreamEmptyAnswer = errors.New("upstream returned empty answer")
)

// ProviderError captures structured error responses from LLM providers.
// Includes the HTTP status, provider error code, and retry timing so the
// retry middleware can classify and pace re-attempts.
type ProviderError struct {
	Provider   string    `json:"provider"`
	StatusCode int       `json:"status_code"`
	Message    string    `json:"message"`
	Code       string    `json:"code"`
	Type       ErrorType `json:"type"`
	RetryAfter int       `json:"retry_after"` // Retry-After header value in seconds
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// IsRetryable reports whether the error warrants a retry attempt.
func (e *ProviderError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeTimeout, ErrorTypeRateLimit, ErrorTypeNetwork, ErrorTypeProvider:
		return true
	default:
		return false
	}
}

// GetRetryAfter implements the retry.AfterProvider interface.
func (e *ProviderError) GetRetryAfter() time.Duration {
	if e.RetryAfter > 0 {
		return time.Duration(e.RetryAfter) * time.Second
	}
	return 0
}

// RateLimitError reports a provider 429 with retry guidance. Retrying a
// rate limit does not consume a retry-budget slot.
type RateLimitError struct {
	Provider   string `json:"provider"`
	RetryAfter int    `json:"retry_after"` // seconds to wait before retry
	Limit      int    `json:"limit"`
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limit exceeded for %s, retry after %d seconds", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("rate limit exceeded for %s", e.Provider)
}

// GetRetryAfter implements the retry.AfterProvider interface.
func (e *RateLimitError) GetRetryAfter() time.Duration {
	if e.RetryAfter > 0 {
		return time.Duration(e.RetryAfter) * time.Second
	}
	return 0
}

// TransportError indicates the retry budget was exhausted on transport
// failures (timeouts, connection errors). Last preserves the final attempt's
// cause for diagnostics.
type TransportError struct {
	Provider string `json:"provider"`
	Attempts int    `json:"attempts"`
	Last     error  `json:"-"`
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure for %s after %d attempts: %v", e.Provider, e.Attempts, e.Last)
}

func (e *TransportError) Unwrap() error { return e.Last }

// TruncationError flags a response that remained truncated after the one
// escalated max_tokens retry. The truncated content is still usable; the
// error is metadata, not a hard failure.
type TruncationError struct {
	Provider  string `json:"provider"`
	MaxTokens int64  `json:"max_tokens"`
}

func (e *TruncationError) Error() string {
	return fmt.Sprintf("%s response truncated at max_tokens=%d", e.Provider, e.MaxTokens)
}

// ContentFilterError marks a response refused by the provider's safety
// filter. Never retried: re-sending a refused prompt is assumed futile.
type ContentFilterError struct {
	Provider string `json:"provider"`
}

func (e *ContentFilterError) Error() string {
	return fmt.Sprintf("%s blocked the response via content filter", e.Provider)
}

// MalformedResponseError indicates a response body that could not be
// decoded into the expected shape. The record is zeroed rather than
// populated with guessed values.
type MalformedResponseError struct {
	Provider string `json:"provider"`
	Reason   string `json:"reason"`
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response from %s: %s", e.Provider, e.Reason)
}

// ScoringParseError indicates judge output that could not be parsed into
// the structured rubric (five dimension scores plus findings). The
// evaluation is recorded with zero totals and an explicit parse-failure
// flag; scores are never invented.
type ScoringParseError struct {
	Reason string `json:"reason"`
	Raw    string `json:"raw,omitempty"` // snippet of the offending output
}

func (e *ScoringParseError) Error() string {
	return fmt.Sprintf("judge output unparseable: %s", e.Reason)
}
