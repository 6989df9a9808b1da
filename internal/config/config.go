// Package config loads the run configuration: a YAML file for everything
// shareable and environment variables for credentials.
package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"

	"github.com/caseval/caseval/internal/llm/configuration"
	"github.com/caseval/caseval/internal/llm/providers"
	"github.com/caseval/caseval/internal/pipeline"
	"github.com/caseval/caseval/internal/scoring"
)

// Secrets holds credentials sourced exclusively from the environment so
// they never land in checked-in YAML.
type Secrets struct {
	DeepSeekAPIKey  string `env:"DEEPSEEK_API_KEY"`
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	GoogleAPIKey    string `env:"GOOGLE_API_KEY"`
	QwenAPIKey      string `env:"DASHSCOPE_API_KEY"`
	RedisPassword   string `env:"REDIS_PASSWORD"`
}

// ProviderSettings is the YAML shape for one provider entry.
type ProviderSettings struct {
	Endpoint  string                         `yaml:"endpoint"`
	Model     string                         `yaml:"model"`
	Headers   map[string]string              `yaml:"headers"`
	RateLimit *configuration.RateLimitConfig `yaml:"rate_limit"`
}

// Workers sets the two-level pool sizes.
type Workers struct {
	Cases     int `yaml:"cases"`
	Questions int `yaml:"questions"`
}

// GlobalLimiter is the YAML shape for the optional Redis limiter.
type GlobalLimiter struct {
	Addr   string        `yaml:"addr"`
	DB     int           `yaml:"db"`
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

// Config is the complete run configuration.
type Config struct {
	Providers map[string]ProviderSettings `yaml:"providers"`

	Stages  pipeline.StageConfig `yaml:"stages"`
	Scoring scoring.EngineConfig `yaml:"scoring"`
	Workers Workers              `yaml:"workers"`

	HTTPTimeout   time.Duration             `yaml:"http_timeout"`
	Retry         configuration.RetryConfig `yaml:"retry"`
	GlobalLimiter GlobalLimiter             `yaml:"global_limiter"`

	// Secrets are filled from the environment, never from YAML.
	Secrets Secrets `yaml:"-"`
}

// Default returns the configuration used when no file is given: DeepSeek
// drives masking, question generation, and scoring, mirroring the
// standard rubric; the answer stage must be chosen by the caller.
func Default() *Config {
	return &Config{
		Providers: map[string]ProviderSettings{},
		Stages: pipeline.StageConfig{
			Masking:      pipeline.ModelRef{Provider: providers.ProviderDeepSeek, Model: "deepseek-chat"},
			Questions:    pipeline.ModelRef{Provider: providers.ProviderDeepSeek, Model: "deepseek-chat"},
			Answer:       pipeline.ModelRef{Provider: providers.ProviderDeepSeek, Model: "deepseek-reasoner"},
			Scoring:      pipeline.ModelRef{Provider: providers.ProviderDeepSeek, Model: "deepseek-chat"},
			NumQuestions: pipeline.DefaultNumQuestions,
		},
		Scoring: scoring.DefaultEngineConfig(),
		Workers: Workers{
			Cases:     pipeline.DefaultCaseWorkers,
			Questions: pipeline.DefaultQuestionWorkers,
		},
		HTTPTimeout: configuration.DefaultHTTPTimeout,
		Retry: configuration.RetryConfig{
			MaxAttempts:      configuration.DefaultMaxAttempts,
			Interval:         configuration.DefaultRetryInterval,
			MaxRateLimitWait: configuration.DefaultMaxRateLimitWait,
		},
	}
}

// Load reads the YAML file at path (optional, empty path uses defaults),
// then overlays credentials from the environment.
func Load(ctx context.Context, path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := envconfig.Process(ctx, &cfg.Secrets); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	return cfg, nil
}

// ClientConfig assembles the LLM client configuration from the run
// config. Only providers actually referenced by a stage or listed in the
// providers map are included; each must have its API key in the
// environment.
func (c *Config) ClientConfig() (*configuration.Config, error) {
	cc := configuration.DefaultConfig()
	cc.HTTPTimeout = c.HTTPTimeout
	cc.Retry = c.Retry
	cc.GlobalLimiter = configuration.GlobalLimiterConfig{
		Addr:     c.GlobalLimiter.Addr,
		Password: c.Secrets.RedisPassword,
		DB:       c.GlobalLimiter.DB,
		Limit:    c.GlobalLimiter.Limit,
		Window:   c.GlobalLimiter.Window,
	}

	for _, name := range c.referencedProviders() {
		settings := c.Providers[name]
		key, err := c.apiKeyFor(name)
		if err != nil {
			return nil, err
		}
		cc.Providers[name] = configuration.ProviderConfig{
			Endpoint: settings.Endpoint,
			APIKey:   key,
			Model:    settings.Model,
			Headers:  settings.Headers,
		}
		if settings.RateLimit != nil {
			cc.RateLimits[name] = *settings.RateLimit
		}
	}
	return cc, nil
}

// referencedProviders returns the union of stage providers and explicit
// provider entries, deduplicated.
func (c *Config) referencedProviders() []string {
	seen := make(map[string]bool)
	var names []string
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	add(c.Stages.Masking.Provider)
	add(c.Stages.Questions.Provider)
	add(c.Stages.Answer.Provider)
	add(c.Stages.Scoring.Provider)
	for name := range c.Providers {
		add(name)
	}
	return names
}

func (c *Config) apiKeyFor(provider string) (string, error) {
	var key string
	switch provider {
	case providers.ProviderDeepSeek:
		key = c.Secrets.DeepSeekAPIKey
	case providers.ProviderOpenAI:
		key = c.Secrets.OpenAIAPIKey
	case providers.ProviderAnthropic:
		key = c.Secrets.AnthropicAPIKey
	case providers.ProviderGoogle:
		key = c.Secrets.GoogleAPIKey
	case providers.ProviderQwen:
		key = c.Secrets.QwenAPIKey
	default:
		return "", fmt.Errorf("no credential mapping for provider %q", provider)
	}
	if key == "" {
		return "", fmt.Errorf("missing API key for provider %q", provider)
	}
	return key, nil
}
