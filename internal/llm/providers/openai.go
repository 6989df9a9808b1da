package providers

import "github.com/caseval/caseval/internal/llm/configuration"

// OpenAIAdapter implements ProviderAdapter for OpenAI GPT models using the
// chat/completions API.
type OpenAIAdapter struct {
	chatCompletionsAdapter
}

// NewOpenAIAdapter creates an OpenAI adapter with the default endpoint.
func NewOpenAIAdapter(cfg configuration.ProviderConfig) *OpenAIAdapter {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.openai.com/v1"
	}
	return &OpenAIAdapter{chatCompletionsAdapter{
		provider: ProviderOpenAI,
		config:   cfg,
	}}
}
