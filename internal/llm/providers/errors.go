package providers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	llmerrors "github.com/caseval/caseval/internal/llm/errors"
)

// malformed wraps a parse failure in the shared error type.
func malformed(provider, reason string) error {
	return &llmerrors.MalformedResponseError{Provider: provider, Reason: reason}
}

// parseChatCompletionsError converts an OpenAI-dialect error body into a
// classified error. 429 responses become RateLimitError carrying the
// Retry-After hint so the retry middleware can pace the re-attempt.
func parseChatCompletionsError(provider string, httpResp *http.Response, body []byte) error {
	if httpResp.StatusCode == http.StatusTooManyRequests {
		return &llmerrors.RateLimitError{
			Provider:   provider,
			RetryAfter: retryAfterSeconds(httpResp.Header),
		}
	}

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		code := errResp.Error.Code
		if code == "" {
			code = errResp.Error.Type
		}
		return &llmerrors.ProviderError{
			Provider:   provider,
			StatusCode: httpResp.StatusCode,
			Message:    errResp.Error.Message,
			Code:       code,
			Type:       llmerrors.Classify(httpResp.StatusCode, code),
			RetryAfter: retryAfterSeconds(httpResp.Header),
		}
	}

	return &llmerrors.ProviderError{
		Provider:   provider,
		StatusCode: httpResp.StatusCode,
		Message:    strings.TrimSpace(string(body)),
		Type:       llmerrors.Classify(httpResp.StatusCode, ""),
		RetryAfter: retryAfterSeconds(httpResp.Header),
	}
}

// retryAfterSeconds reads the Retry-After header in delta-seconds form.
// HTTP-date values are ignored; providers in this pipeline send seconds.
func retryAfterSeconds(header http.Header) int {
	raw := header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || secs < 0 {
		return 0
	}
	return secs
}
