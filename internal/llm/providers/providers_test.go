package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseval/caseval/internal/domain"
	"github.com/caseval/caseval/internal/llm/configuration"
	llmerrors "github.com/caseval/caseval/internal/llm/errors"
	"github.com/caseval/caseval/internal/llm/transport"
)

func httpResponse(status int, body string, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func decodeBody(t *testing.T, req *http.Request) map[string]any {
	t.Helper()
	raw, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

func TestDeepSeekBuild(t *testing.T) {
	adapter := NewDeepSeekAdapter(configuration.ProviderConfig{APIKey: "sk-test"})

	req, err := adapter.Build(context.Background(), &transport.Request{
		Model:        "deepseek-reasoner",
		SystemPrompt: "你是一位法律专家",
		UserPrompt:   "分析此案",
		MaxTokens:    4000,
		Temperature:  0.7,
	})
	require.NoError(t, err)

	assert.Equal(t, "https://api.deepseek.com/v1/chat/completions", req.URL.String())
	assert.Equal(t, "Bearer sk-test", req.Header.Get("Authorization"))

	body := decodeBody(t, req)
	assert.Equal(t, "deepseek-reasoner", body["model"])
	messages := body["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "user", messages[1].(map[string]any)["role"])
}

func TestChatCompletionsParse_ReasoningTrace(t *testing.T) {
	adapter := NewDeepSeekAdapter(configuration.ProviderConfig{})
	assert.True(t, adapter.SupportsReasoningTrace())

	header := http.Header{}
	header.Set("x-request-id", "req-123")
	resp, err := adapter.Parse(httpResponse(200, `{
		"choices": [{
			"message": {"content": "答案", "reasoning_content": "推理过程"},
			"finish_reason": "stop"
		}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 20, "total_tokens": 30}
	}`, header))
	require.NoError(t, err)

	assert.Equal(t, "答案", resp.Content)
	assert.Equal(t, "推理过程", resp.Reasoning)
	assert.Equal(t, domain.FinishStop, resp.FinishReason)
	assert.Equal(t, int64(30), resp.Usage.TotalTokens)
	assert.Equal(t, []string{"req-123"}, resp.ProviderRequestIDs)
}

func TestChatCompletionsParse_ReasoningDroppedWhenUnsupported(t *testing.T) {
	adapter := NewOpenAIAdapter(configuration.ProviderConfig{})
	assert.False(t, adapter.SupportsReasoningTrace())

	resp, err := adapter.Parse(httpResponse(200, `{
		"choices": [{
			"message": {"content": "answer", "reasoning_content": "leaked"},
			"finish_reason": "stop"
		}]
	}`, nil))
	require.NoError(t, err)
	assert.Equal(t, "answer", resp.Content)
	assert.Empty(t, resp.Reasoning)
}

func TestChatCompletionsParse_FinishReasons(t *testing.T) {
	adapter := NewQwenAdapter(configuration.ProviderConfig{})

	tests := []struct {
		wire string
		want domain.FinishReason
	}{
		{"stop", domain.FinishStop},
		{"length", domain.FinishLength},
		{"content_filter", domain.FinishContentFilter},
		{"tool_calls", domain.FinishToolUse},
		{"something_new", domain.FinishStop},
	}
	for _, tt := range tests {
		t.Run(tt.wire, func(t *testing.T) {
			resp, err := adapter.Parse(httpResponse(200,
				`{"choices": [{"message": {"content": "x"}, "finish_reason": "`+tt.wire+`"}]}`, nil))
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.FinishReason)
		})
	}
}

func TestChatCompletionsParse_NoChoices(t *testing.T) {
	adapter := NewDeepSeekAdapter(configuration.ProviderConfig{})

	_, err := adapter.Parse(httpResponse(200, `{"choices": []}`, nil))
	var malformedErr *llmerrors.MalformedResponseError
	require.True(t, errors.As(err, &malformedErr))
	assert.Equal(t, ProviderDeepSeek, malformedErr.Provider)
}

func TestChatCompletionsParse_RateLimited(t *testing.T) {
	adapter := NewDeepSeekAdapter(configuration.ProviderConfig{})

	header := http.Header{}
	header.Set("Retry-After", "12")
	_, err := adapter.Parse(httpResponse(429, `{"error": {"message": "slow down"}}`, header))

	var rlErr *llmerrors.RateLimitError
	require.True(t, errors.As(err, &rlErr))
	assert.Equal(t, ProviderDeepSeek, rlErr.Provider)
	assert.Equal(t, 12, rlErr.RetryAfter)
}

func TestChatCompletionsParse_ClassifiedProviderError(t *testing.T) {
	adapter := NewOpenAIAdapter(configuration.ProviderConfig{})

	_, err := adapter.Parse(httpResponse(503,
		`{"error": {"message": "overloaded", "type": "server_error"}}`, nil))

	var provErr *llmerrors.ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.Equal(t, 503, provErr.StatusCode)
	assert.Equal(t, "overloaded", provErr.Message)
	assert.Equal(t, llmerrors.ErrorTypeProvider, provErr.Type)
	assert.True(t, provErr.IsRetryable())
}

func TestChatCompletionsParse_AuthErrorTerminal(t *testing.T) {
	adapter := NewQwenAdapter(configuration.ProviderConfig{})

	_, err := adapter.Parse(httpResponse(401,
		`{"error": {"message": "bad key", "code": "invalid_api_key"}}`, nil))

	var provErr *llmerrors.ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.False(t, provErr.IsRetryable())
}

func TestAnthropicBuild(t *testing.T) {
	adapter := NewAnthropicAdapter(configuration.ProviderConfig{APIKey: "ak-test"})

	req, err := adapter.Build(context.Background(), &transport.Request{
		Model:        "claude-sonnet-4-20250514",
		SystemPrompt: "system text",
		UserPrompt:   "user text",
		MaxTokens:    2000,
	})
	require.NoError(t, err)

	assert.Equal(t, "https://api.anthropic.com/v1/messages", req.URL.String())
	assert.Equal(t, "ak-test", req.Header.Get("x-api-key"))
	assert.Equal(t, anthropicAPIVersion, req.Header.Get("anthropic-version"))
	assert.Empty(t, req.Header.Get("Authorization"))

	body := decodeBody(t, req)
	// System prompt is a top-level field, not a message.
	assert.Equal(t, "system text", body["system"])
	require.Len(t, body["messages"].([]any), 1)
}

func TestAnthropicParse(t *testing.T) {
	adapter := NewAnthropicAdapter(configuration.ProviderConfig{})

	resp, err := adapter.Parse(httpResponse(200, `{
		"content": [
			{"type": "text", "text": "first "},
			{"type": "text", "text": "second"}
		],
		"stop_reason": "max_tokens",
		"usage": {"input_tokens": 100, "output_tokens": 50}
	}`, nil))
	require.NoError(t, err)

	assert.Equal(t, "first second", resp.Content)
	assert.Equal(t, domain.FinishLength, resp.FinishReason)
	assert.Equal(t, int64(150), resp.Usage.TotalTokens)
}

func TestAnthropicParse_Refusal(t *testing.T) {
	adapter := NewAnthropicAdapter(configuration.ProviderConfig{})

	resp, err := adapter.Parse(httpResponse(200,
		`{"content": [], "stop_reason": "refusal"}`, nil))
	require.NoError(t, err)
	assert.Equal(t, domain.FinishContentFilter, resp.FinishReason)
}

func TestGoogleBuild(t *testing.T) {
	adapter := NewGoogleAdapter(configuration.ProviderConfig{APIKey: "gk-test"})

	req, err := adapter.Build(context.Background(), &transport.Request{
		Model:      "gemini-2.5-pro",
		UserPrompt: "question",
		MaxTokens:  1000,
	})
	require.NoError(t, err)

	// Model travels in the URL, key in a header.
	assert.Contains(t, req.URL.String(), "/models/gemini-2.5-pro:generateContent")
	assert.Equal(t, "gk-test", req.Header.Get("x-goog-api-key"))
}

func TestGoogleParse(t *testing.T) {
	adapter := NewGoogleAdapter(configuration.ProviderConfig{})

	resp, err := adapter.Parse(httpResponse(200, `{
		"candidates": [{
			"content": {"parts": [{"text": "part one "}, {"text": "part two"}]},
			"finishReason": "STOP"
		}],
		"usageMetadata": {"promptTokenCount": 8, "candidatesTokenCount": 4, "totalTokenCount": 12}
	}`, nil))
	require.NoError(t, err)

	assert.Equal(t, "part one part two", resp.Content)
	assert.Equal(t, domain.FinishStop, resp.FinishReason)
	assert.Equal(t, int64(12), resp.Usage.TotalTokens)
}

func TestGoogleParse_SafetyBlock(t *testing.T) {
	adapter := NewGoogleAdapter(configuration.ProviderConfig{})

	resp, err := adapter.Parse(httpResponse(200,
		`{"candidates": [{"content": {"parts": []}, "finishReason": "SAFETY"}]}`, nil))
	require.NoError(t, err)
	assert.Equal(t, domain.FinishContentFilter, resp.FinishReason)
	assert.Empty(t, resp.Content)
}

func TestRouter_RejectsUnknownProvider(t *testing.T) {
	_, err := NewRouter(map[string]configuration.ProviderConfig{
		"deepseek": {},
		"mystery":  {},
	})
	assert.ErrorIs(t, err, llmerrors.ErrUnknownProvider)
}

func TestRouter_Pick(t *testing.T) {
	router, err := NewRouter(map[string]configuration.ProviderConfig{
		"deepseek":  {},
		"anthropic": {},
	})
	require.NoError(t, err)

	adapter, err := router.Pick("deepseek")
	require.NoError(t, err)
	assert.Equal(t, ProviderDeepSeek, adapter.Name())

	_, err = router.Pick("google")
	assert.ErrorIs(t, err, llmerrors.ErrUnknownProvider)
}

func TestRetryAfterSeconds(t *testing.T) {
	header := http.Header{}
	assert.Equal(t, 0, retryAfterSeconds(header))

	header.Set("Retry-After", "30")
	assert.Equal(t, 30, retryAfterSeconds(header))

	// HTTP-date form is ignored.
	header.Set("Retry-After", "Wed, 21 Oct 2026 07:28:00 GMT")
	assert.Equal(t, 0, retryAfterSeconds(header))
}
