package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/caseval/caseval/internal/domain"
	"github.com/caseval/caseval/internal/llm/configuration"
	"github.com/caseval/caseval/internal/llm/transport"
)

// chatCompletionsAdapter is the shared implementation for providers that
// speak the OpenAI chat/completions dialect (OpenAI, DeepSeek, Qwen via
// the DashScope compatible endpoint). Provider-specific adapters embed it
// and set the name, endpoint default, and reasoning support.
type chatCompletionsAdapter struct {
	provider         string
	config           configuration.ProviderConfig
	reasoningCapable bool
}

// Name returns the provider name.
func (a *chatCompletionsAdapter) Name() string { return a.provider }

// SupportsReasoningTrace reports whether responses can carry a
// chain-of-thought trace.
func (a *chatCompletionsAdapter) SupportsReasoningTrace() bool { return a.reasoningCapable }

// Build constructs a chat/completions request with system and user
// messages, token budget, and authentication headers.
func (a *chatCompletionsAdapter) Build(ctx context.Context, req *transport.Request) (*http.Request, error) {
	endpoint := fmt.Sprintf("%s/chat/completions", a.config.Endpoint)

	messages := []map[string]any{}
	if req.SystemPrompt != "" {
		messages = append(messages, map[string]any{
			"role":    "system",
			"content": req.SystemPrompt,
		})
	}
	messages = append(messages, map[string]any{
		"role":    "user",
		"content": req.UserPrompt,
	})

	body := map[string]any{
		"model":       req.Model,
		"messages":    messages,
		"max_tokens":  req.MaxTokens,
		"temperature": req.Temperature,
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", a.config.APIKey))
	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}

	return httpReq, nil
}

// Parse extracts normalized content, reasoning trace, finish reason, and
// usage from a chat/completions response.
func (a *chatCompletionsAdapter) Parse(httpResp *http.Response) (*transport.Response, error) {
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, parseChatCompletionsError(a.provider, httpResp, body)
	}

	var resp struct {
		ID      string `json:"id"`
		Choices []struct {
			Message struct {
				Content          string `json:"content"`
				ReasoningContent string `json:"reasoning_content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int64 `json:"prompt_tokens"`
			CompletionTokens int64 `json:"completion_tokens"`
			TotalTokens      int64 `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, malformed(a.provider, fmt.Sprintf("invalid JSON: %v", err))
	}
	if len(resp.Choices) == 0 {
		return nil, malformed(a.provider, "response contained no choices")
	}

	choice := resp.Choices[0]
	reasoning := ""
	if a.reasoningCapable {
		reasoning = choice.Message.ReasoningContent
	}

	var requestIDs []string
	if reqID := httpResp.Header.Get("x-request-id"); reqID != "" {
		requestIDs = append(requestIDs, reqID)
	}

	return &transport.Response{
		Content:            choice.Message.Content,
		Reasoning:          reasoning,
		FinishReason:       mapChatFinishReason(choice.FinishReason),
		ProviderRequestIDs: requestIDs,
		Usage: transport.NormalizedUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		Headers: httpResp.Header,
		RawBody: body,
	}, nil
}

// mapChatFinishReason converts chat/completions finish reasons to the
// normalized domain type.
func mapChatFinishReason(reason string) domain.FinishReason {
	switch reason {
	case "stop":
		return domain.FinishStop
	case "length":
		return domain.FinishLength
	case "content_filter":
		return domain.FinishContentFilter
	case "tool_calls", "function_call":
		return domain.FinishToolUse
	default:
		return domain.FinishStop
	}
}
