package errors

import (
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// ServerErrorStatusThreshold is the HTTP status threshold for server errors.
const ServerErrorStatusThreshold = 500

// Classify determines ErrorType from an HTTP status and a provider error
// code. Provider codes take precedence over status codes because several
// providers return 400 for quota and rate conditions.
func Classify(statusCode int, errorCode string) ErrorType {
	lowerCode := strings.ToLower(errorCode)
	if strings.Contains(lowerCode, "rate") || strings.Contains(lowerCode, "limit") {
		return ErrorTypeRateLimit
	}
	if strings.Contains(lowerCode, "timeout") {
		return ErrorTypeTimeout
	}
	if strings.Contains(lowerCode, "auth") || strings.Contains(lowerCode, "unauthorized") {
		return ErrorTypeAuth
	}
	if strings.Contains(lowerCode, "permission") || strings.Contains(lowerCode, "forbidden") {
		return ErrorTypePermission
	}
	if strings.Contains(lowerCode, "quota") {
		return ErrorTypeQuota
	}
	if strings.Contains(lowerCode, "content_filter") {
		return ErrorTypeContent
	}

	switch statusCode {
	case http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case http.StatusUnauthorized:
		return ErrorTypeAuth
	case http.StatusForbidden:
		return ErrorTypePermission
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return ErrorTypeTimeout
	case http.StatusBadRequest:
		return ErrorTypeValidation
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return ErrorTypeProvider
	default:
		if statusCode >= ServerErrorStatusThreshold {
			return ErrorTypeProvider
		}
		return ErrorTypeUnknown
	}
}

// IsRetryable reports whether an error warrants another attempt. Rate
// limits are always retryable (with their own pacing); content filters,
// empty answers, and parse failures never are.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		return true
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.IsRetryable()
	}

	var contentErr *ContentFilterError
	if errors.As(err, &contentErr) {
		return false
	}

	if errors.Is(err, ErrUpstreamEmptyAnswer) {
		return false
	}

	var malformedErr *MalformedResponseError
	if errors.As(err, &malformedErr) {
		return false
	}

	if IsNetworkError(err) {
		return true
	}

	// Conservative default: don't retry unknown errors.
	return false
}

// IsNetworkError checks whether an error is network-related using type
// assertions first and string patterns as a last resort.
func IsNetworkError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		var netErr net.Error
		if errors.As(urlErr.Err, &netErr) {
			return netErr.Timeout()
		}
		return isNetworkErrorByString(urlErr.Err.Error())
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return isNetworkErrorByString(err.Error())
}

func isNetworkErrorByString(errStr string) bool {
	lowered := strings.ToLower(errStr)
	for _, indicator := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"network is unreachable",
		"i/o timeout",
		"eof",
	} {
		if strings.Contains(lowered, indicator) {
			return true
		}
	}
	return false
}
