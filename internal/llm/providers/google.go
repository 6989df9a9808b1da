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
	llmerrors "github.com/caseval/caseval/internal/llm/errors"
	"github.com/caseval/caseval/internal/llm/transport"
)

// GoogleAdapter implements ProviderAdapter for Gemini models using the
// generateContent API. The model name is part of the URL and the API key
// travels as a header rather than a bearer token.
type GoogleAdapter struct {
	config configuration.ProviderConfig
}

// NewGoogleAdapter creates a Gemini adapter with the default endpoint.
func NewGoogleAdapter(cfg configuration.ProviderConfig) *GoogleAdapter {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://generativelanguage.googleapis.com/v1beta"
	}
	return &GoogleAdapter{config: cfg}
}

// Name returns the provider name.
func (a *GoogleAdapter) Name() string { return ProviderGoogle }

// SupportsReasoningTrace reports false for the generateContent API.
func (a *GoogleAdapter) SupportsReasoningTrace() bool { return false }

// Build constructs a generateContent request. The system prompt maps to
// systemInstruction and generation parameters nest under generationConfig.
func (a *GoogleAdapter) Build(ctx context.Context, req *transport.Request) (*http.Request, error) {
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", a.config.Endpoint, req.Model)

	body := map[string]any{
		"contents": []map[string]any{
			{
				"role":  "user",
				"parts": []map[string]any{{"text": req.UserPrompt}},
			},
		},
		"generationConfig": map[string]any{
			"maxOutputTokens": req.MaxTokens,
			"temperature":     req.Temperature,
		},
	}
	if req.SystemPrompt != "" {
		body["systemInstruction"] = map[string]any{
			"parts": []map[string]any{{"text": req.SystemPrompt}},
		}
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
	httpReq.Header.Set("x-goog-api-key", a.config.APIKey)
	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}

	return httpReq, nil
}

// Parse extracts normalized data from a generateContent response.
func (a *GoogleAdapter) Parse(httpResp *http.Response) (*transport.Response, error) {
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, parseGoogleError(httpResp, body)
	}

	var resp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
			FinishReason string `json:"finishReason"`
		} `json:"candidates"`
		UsageMetadata struct {
			PromptTokenCount     int64 `json:"promptTokenCount"`
			CandidatesTokenCount int64 `json:"candidatesTokenCount"`
			TotalTokenCount      int64 `json:"totalTokenCount"`
		} `json:"usageMetadata"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, malformed(ProviderGoogle, fmt.Sprintf("invalid JSON: %v", err))
	}
	if len(resp.Candidates) == 0 {
		return nil, malformed(ProviderGoogle, "response contained no candidates")
	}

	candidate := resp.Candidates[0]
	var content string
	for _, part := range candidate.Content.Parts {
		content += part.Text
	}

	return &transport.Response{
		Content:      content,
		FinishReason: mapGoogleFinishReason(candidate.FinishReason),
		Usage: transport.NormalizedUsage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		},
		Headers: httpResp.Header,
		RawBody: body,
	}, nil
}

// mapGoogleFinishReason converts generateContent finish reasons to the
// normalized domain type.
func mapGoogleFinishReason(reason string) domain.FinishReason {
	switch reason {
	case "STOP":
		return domain.FinishStop
	case "MAX_TOKENS":
		return domain.FinishLength
	case "SAFETY", "PROHIBITED_CONTENT", "BLOCKLIST":
		return domain.FinishContentFilter
	default:
		return domain.FinishStop
	}
}

// parseGoogleError converts generateContent error responses.
func parseGoogleError(httpResp *http.Response, body []byte) error {
	if httpResp.StatusCode == http.StatusTooManyRequests {
		return &llmerrors.RateLimitError{
			Provider:   ProviderGoogle,
			RetryAfter: retryAfterSeconds(httpResp.Header),
		}
	}

	var errResp struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return &llmerrors.ProviderError{
			Provider:   ProviderGoogle,
			StatusCode: httpResp.StatusCode,
			Message:    errResp.Error.Message,
			Code:       errResp.Error.Status,
			Type:       llmerrors.Classify(httpResp.StatusCode, errResp.Error.Status),
			RetryAfter: retryAfterSeconds(httpResp.Header),
		}
	}

	return &llmerrors.ProviderError{
		Provider:   ProviderGoogle,
		StatusCode: httpResp.StatusCode,
		Message:    string(body),
		Type:       llmerrors.Classify(httpResp.StatusCode, ""),
	}
}
