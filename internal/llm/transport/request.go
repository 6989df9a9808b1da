// Package transport defines the normalized request/response types and the
// composable Handler/Middleware pipeline that every chat-completion call
// flows through. Provider specifics live behind the ProviderAdapter
// interface; resilience concerns (rate limiting, retry, truncation
// recovery) are middleware layered around the core HTTP handler.
package transport

import (
	"net/http"
	"time"

	"github.com/caseval/caseval/internal/domain"
	llmerrors "github.com/caseval/caseval/internal/llm/errors"
)

// Stage identifies which pipeline stage a request belongs to. Stages get
// distinct rate-limit accounting, prompt defaults, and metrics labels.
type Stage string

const (
	// StageMasking anonymizes a case document.
	StageMasking Stage = "masking"

	// StageQuestions generates law-reasoning questions from a masked case.
	StageQuestions Stage = "questions"

	// StageAnswer generates a candidate answer for one question.
	StageAnswer Stage = "answer"

	// StageScoring evaluates an answer against the judge decision.
	StageScoring Stage = "scoring"
)

// Request is a normalized chat-completion request across all providers.
// Stage functions build the prompts; adapters translate the rest into
// provider-specific wire format.
type Request struct {
	Stage    Stage  `json:"stage"`
	Provider string `json:"provider"`
	Model    string `json:"model"`

	SystemPrompt string `json:"system_prompt,omitempty"`
	UserPrompt   string `json:"user_prompt"`

	MaxTokens   int64   `json:"max_tokens"`
	Temperature float64 `json:"temperature"`

	// AutoRecover enables the one-shot truncation recovery (doubled
	// max_tokens resubmit) for this call.
	AutoRecover bool `json:"auto_recover"`

	// Timeout bounds the individual HTTP call so a hung socket cannot
	// block shutdown indefinitely.
	Timeout time.Duration `json:"timeout"`

	TraceID string `json:"trace_id,omitempty"`
}

// Clone returns a shallow copy, used by middleware that resubmits with
// modified parameters without mutating the caller's request.
func (r *Request) Clone() *Request {
	c := *r
	return &c
}

// Response is normalized output from any provider.
type Response struct {
	// Content is the generated text, or empty when the provider filtered
	// the response.
	Content string `json:"content"`

	// Reasoning is the chain-of-thought trace for providers that expose
	// one; empty otherwise.
	Reasoning string `json:"reasoning,omitempty"`

	FinishReason domain.FinishReason `json:"finish_reason"`

	// Truncated is set by the recovery middleware when the response
	// remained length-limited after the escalated retry. Truncation
	// carries the details; the content is still usable, so this is
	// metadata rather than a returned error.
	Truncated  bool                       `json:"truncated,omitempty"`
	Truncation *llmerrors.TruncationError `json:"truncation,omitempty"`

	// ContentFiltered is set when the safety filter blocked the output;
	// Content is empty in that case.
	ContentFiltered bool `json:"content_filtered,omitempty"`

	Usage NormalizedUsage `json:"usage"`

	// ProviderRequestIDs enables cross-system correlation.
	ProviderRequestIDs []string `json:"provider_request_ids,omitempty"`

	// Headers and RawBody preserve the raw response for debugging.
	Headers http.Header `json:"-"`
	RawBody []byte      `json:"-"`
}

// NormalizedUsage provides consistent usage metrics across all providers.
type NormalizedUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
	LatencyMs        int64 `json:"latency_ms"`
}

// ToTokenUsage converts to the domain accounting type, counting one call.
func (u NormalizedUsage) ToTokenUsage() domain.TokenUsage {
	return domain.TokenUsage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
		Calls:            1,
	}
}
