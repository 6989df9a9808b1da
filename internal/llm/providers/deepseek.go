package providers

import "github.com/caseval/caseval/internal/llm/configuration"

// DeepSeekAdapter implements ProviderAdapter for the DeepSeek API. The API
// speaks the chat/completions dialect and additionally returns a
// reasoning_content field with the model's chain of thought, which is
// surfaced as the response's reasoning trace.
type DeepSeekAdapter struct {
	chatCompletionsAdapter
}

// NewDeepSeekAdapter creates a DeepSeek adapter with the default endpoint.
func NewDeepSeekAdapter(cfg configuration.ProviderConfig) *DeepSeekAdapter {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.deepseek.com/v1"
	}
	return &DeepSeekAdapter{chatCompletionsAdapter{
		provider:         ProviderDeepSeek,
		config:           cfg,
		reasoningCapable: true,
	}}
}
