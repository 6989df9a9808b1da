package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseval/caseval/internal/scoring"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "caseval.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, "deepseek", cfg.Stages.Masking.Provider)
	assert.Equal(t, "deepseek-chat", cfg.Stages.Masking.Model)
	assert.Equal(t, "deepseek-reasoner", cfg.Stages.Answer.Model)
	assert.Equal(t, 5, cfg.Stages.NumQuestions)
	assert.Equal(t, 3, cfg.Workers.Cases)
	assert.Equal(t, 5, cfg.Workers.Questions)
	assert.Equal(t, scoring.PenaltyModeWorst, cfg.Scoring.PenaltyMode)
}

func TestLoad_YAMLOverlay(t *testing.T) {
	path := writeConfigFile(t, `
stages:
  answer:
    provider: qwen
    model: qwen-max
  num_questions: 3
scoring:
  penalty_mode: compound
workers:
  cases: 8
http_timeout: 90s
providers:
  qwen:
    rate_limit:
      max_rpm: 30
      max_rps: 1
`)

	cfg, err := Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "qwen", cfg.Stages.Answer.Provider)
	assert.Equal(t, "qwen-max", cfg.Stages.Answer.Model)
	assert.Equal(t, 3, cfg.Stages.NumQuestions)
	assert.Equal(t, scoring.PenaltyModeCompound, cfg.Scoring.PenaltyMode)
	assert.Equal(t, 8, cfg.Workers.Cases)
	assert.Equal(t, 90*time.Second, cfg.HTTPTimeout)

	// Unset file fields keep their defaults.
	assert.Equal(t, "deepseek", cfg.Stages.Masking.Provider)
	assert.Equal(t, 5, cfg.Workers.Questions)

	require.NotNil(t, cfg.Providers["qwen"].RateLimit)
	assert.Equal(t, 30, cfg.Providers["qwen"].RateLimit.MaxRPM)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(context.Background(), "/nonexistent/caseval.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestLoad_SecretsFromEnvironment(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "sk-deepseek")
	t.Setenv("DASHSCOPE_API_KEY", "sk-qwen")

	cfg, err := Load(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "sk-deepseek", cfg.Secrets.DeepSeekAPIKey)
	assert.Equal(t, "sk-qwen", cfg.Secrets.QwenAPIKey)
}

func TestClientConfig_ReferencedProvidersOnly(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "sk-deepseek")

	cfg, err := Load(context.Background(), "")
	require.NoError(t, err)

	cc, err := cfg.ClientConfig()
	require.NoError(t, err)

	// All four default stages run on DeepSeek, so only it is configured.
	require.Len(t, cc.Providers, 1)
	assert.Equal(t, "sk-deepseek", cc.Providers["deepseek"].APIKey)
}

func TestClientConfig_MissingKeyRejected(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "")

	cfg, err := Load(context.Background(), "")
	require.NoError(t, err)

	_, err = cfg.ClientConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing API key for provider "deepseek"`)
}

func TestClientConfig_PerProviderRateLimit(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "sk-deepseek")
	t.Setenv("DASHSCOPE_API_KEY", "sk-qwen")

	path := writeConfigFile(t, `
stages:
  answer:
    provider: qwen
    model: qwen-max
providers:
  qwen:
    rate_limit:
      max_rpm: 30
      max_rps: 1
      min_interval: 2s
`)
	cfg, err := Load(context.Background(), path)
	require.NoError(t, err)

	cc, err := cfg.ClientConfig()
	require.NoError(t, err)

	require.Contains(t, cc.Providers, "qwen")
	require.Contains(t, cc.Providers, "deepseek")
	rl, ok := cc.RateLimits["qwen"]
	require.True(t, ok)
	assert.Equal(t, 30, rl.MaxRPM)
	assert.Equal(t, 2*time.Second, rl.MinInterval)
}

func TestClientConfig_RedisPasswordFromEnvironment(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "sk-deepseek")
	t.Setenv("REDIS_PASSWORD", "hunter2")

	path := writeConfigFile(t, `
global_limiter:
  addr: localhost:6379
  limit: 100
  window: 1m
`)
	cfg, err := Load(context.Background(), path)
	require.NoError(t, err)

	cc, err := cfg.ClientConfig()
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", cc.GlobalLimiter.Addr)
	assert.Equal(t, "hunter2", cc.GlobalLimiter.Password)
	assert.Equal(t, 100, cc.GlobalLimiter.Limit)
	assert.True(t, cc.GlobalLimiter.Enabled())
}
