package providers

import "github.com/caseval/caseval/internal/llm/configuration"

// QwenAdapter implements ProviderAdapter for Qwen models served through
// the DashScope OpenAI-compatible endpoint.
type QwenAdapter struct {
	chatCompletionsAdapter
}

// NewQwenAdapter creates a Qwen adapter with the default DashScope endpoint.
func NewQwenAdapter(cfg configuration.ProviderConfig) *QwenAdapter {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	}
	return &QwenAdapter{chatCompletionsAdapter{
		provider: ProviderQwen,
		config:   cfg,
	}}
}
