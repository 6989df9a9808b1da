// Package providers contains the per-provider adapters that translate
// normalized requests into provider wire formats and parse the responses
// back. One adapter per provider; the Router selects among them by name.
package providers

import (
	"fmt"

	"github.com/caseval/caseval/internal/llm/configuration"
	llmerrors "github.com/caseval/caseval/internal/llm/errors"
	"github.com/caseval/caseval/internal/llm/transport"
)

// Supported provider names.
const (
	ProviderDeepSeek  = "deepseek"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
	ProviderQwen      = "qwen"
)

// Router maps provider names to their adapters.
type Router struct {
	adapters map[string]transport.ProviderAdapter
}

// NewRouter builds adapters for every configured provider. Unknown names
// in the configuration are rejected up front rather than at request time.
func NewRouter(cfgs map[string]configuration.ProviderConfig) (*Router, error) {
	adapters := make(map[string]transport.ProviderAdapter, len(cfgs))
	for name, cfg := range cfgs {
		adapter, err := newAdapter(name, cfg)
		if err != nil {
			return nil, err
		}
		adapters[name] = adapter
	}
	return &Router{adapters: adapters}, nil
}

func newAdapter(name string, cfg configuration.ProviderConfig) (transport.ProviderAdapter, error) {
	switch name {
	case ProviderDeepSeek:
		return NewDeepSeekAdapter(cfg), nil
	case ProviderOpenAI:
		return NewOpenAIAdapter(cfg), nil
	case ProviderAnthropic:
		return NewAnthropicAdapter(cfg), nil
	case ProviderGoogle:
		return NewGoogleAdapter(cfg), nil
	case ProviderQwen:
		return NewQwenAdapter(cfg), nil
	default:
		return nil, fmt.Errorf("%w: %s", llmerrors.ErrUnknownProvider, name)
	}
}

// Pick returns the adapter for the named provider.
func (r *Router) Pick(provider string) (transport.ProviderAdapter, error) {
	adapter, ok := r.adapters[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", llmerrors.ErrUnknownProvider, provider)
	}
	return adapter, nil
}

// Names returns the configured provider names.
func (r *Router) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}
