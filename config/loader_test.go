package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dishscout/dishscout/retry"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, ProviderAnthropic, cfg.LLM.Provider)
	assert.Equal(t, "sk-ant-test", cfg.LLM.Anthropic.APIKey)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, BackendMemory, cfg.Queue.Backend)
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 10000, cfg.Cache.Size)
	assert.Equal(t, 2048, cfg.LLM.MaxTokens)
	assert.True(t, cfg.Worker.WorkerEnabled())
	assert.False(t, cfg.UsesRedis())
	assert.Empty(t, cfg.Retry.API.Options())
}

func TestLoad_EnvSubstitution(t *testing.T) {
	t.Setenv("TEST_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("TEST_OPENAI_KEY", "sk-openai")

	path := writeConfig(t, `
llm:
  provider: openai
  openai:
    api_key: ${TEST_OPENAI_KEY}
store:
  backend: redis
redis:
  addr: ${TEST_REDIS_ADDR}
  prefix: scout
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, "scout", cfg.Redis.Prefix)
	assert.Equal(t, "sk-openai", cfg.LLM.OpenAI.APIKey)
	assert.True(t, cfg.UsesRedis())
}

func TestLoad_RetryOverrides(t *testing.T) {
	path := writeConfig(t, `
retry:
  api:
    max_retries: 5
    base_delay: 250ms
    jitter: 0s
  logical:
    max_retries: 0
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	api := retry.Resolve(retry.TransportDefaults(), cfg.Retry.API.Options()...)
	assert.Equal(t, 5, api.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, api.BaseDelay)
	assert.Equal(t, retry.TransportDefaults().MaxDelay, api.MaxDelay)
	assert.Zero(t, api.Jitter)

	logical := retry.Resolve(retry.LogicalDefaults(), cfg.Retry.Logical.Options()...)
	assert.Zero(t, logical.MaxRetries)
}

func TestLoad_Durations(t *testing.T) {
	path := writeConfig(t, `
server:
  request_timeout: 90s
worker:
  enabled: false
  job_timeout: 2m
cache:
  backend: none
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Worker.JobTimeout)
	assert.False(t, cfg.Worker.WorkerEnabled())
	assert.Equal(t, BackendNone, cfg.Cache.Backend)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "unknown key", content: "servr:\n  addr: :1\n", wantErr: "failed to parse config file"},
		{name: "provider", content: "llm:\n  provider: gemini\n", wantErr: "llm.provider"},
		{name: "same fallback", content: "llm:\n  fallback: anthropic\n", wantErr: "llm.fallback"},
		{name: "queue backend", content: "queue:\n  backend: kafka\n", wantErr: "queue.backend"},
		{name: "sqs url", content: "queue:\n  backend: sqs\n", wantErr: "sqs.queue_url"},
		{name: "negative retries", content: "retry:\n  logical:\n    max_retries: -1\n", wantErr: "retry.logical.max_retries"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}
