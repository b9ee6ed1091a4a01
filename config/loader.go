package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file. ${VAR} references are expanded
// from the environment before parsing. An empty path yields the defaults.
func Load(path string) (*AppConfig, error) {
	var cfg AppConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := Parse([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
			return nil, err
		}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Parse decodes YAML into cfg, rejecting unknown keys.
func Parse(data []byte, cfg *AppConfig) error {
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (c *AppConfig) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = 60 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = ProviderAnthropic
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 2048
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 30 * time.Second
	}
	if c.LLM.Anthropic.APIKey == "" {
		c.LLM.Anthropic.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if c.LLM.OpenAI.APIKey == "" {
		c.LLM.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if c.Store.Backend == "" {
		c.Store.Backend = BackendMemory
	}
	if c.Queue.Backend == "" {
		c.Queue.Backend = BackendMemory
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = BackendMemory
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = 10 * time.Minute
	}
	if c.Cache.Size == 0 {
		c.Cache.Size = 10000
	}
	if c.Queue.VisibilityTimeout == 0 {
		c.Queue.VisibilityTimeout = 3 * time.Minute
	}
	if c.Worker.Concurrency == 0 {
		c.Worker.Concurrency = 4
	}
	if c.Worker.MaxAttempts == 0 {
		c.Worker.MaxAttempts = 3
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
}

// Validate reports configuration errors that would fail at startup.
func (c *AppConfig) Validate() error {
	var errs []error
	switch c.LLM.Provider {
	case ProviderAnthropic, ProviderOpenAI:
	default:
		errs = append(errs, fmt.Errorf("llm.provider: unknown provider %q", c.LLM.Provider))
	}
	switch c.LLM.Fallback {
	case "", ProviderAnthropic, ProviderOpenAI:
		if c.LLM.Fallback != "" && c.LLM.Fallback == c.LLM.Provider {
			errs = append(errs, errors.New("llm.fallback: must differ from llm.provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("llm.fallback: unknown provider %q", c.LLM.Fallback))
	}
	if !oneOf(c.Store.Backend, BackendMemory, BackendRedis) {
		errs = append(errs, fmt.Errorf("store.backend: unsupported %q", c.Store.Backend))
	}
	if !oneOf(c.Cache.Backend, BackendMemory, BackendRedis, BackendNone) {
		errs = append(errs, fmt.Errorf("cache.backend: unsupported %q", c.Cache.Backend))
	}
	if !oneOf(c.Queue.Backend, BackendMemory, BackendRedis, BackendSQS) {
		errs = append(errs, fmt.Errorf("queue.backend: unsupported %q", c.Queue.Backend))
	}
	if c.Queue.Backend == BackendSQS && c.SQS.QueueURL == "" {
		errs = append(errs, errors.New("sqs.queue_url: required for the sqs queue backend"))
	}
	if n := c.Retry.API.MaxRetries; n != nil && *n < 0 {
		errs = append(errs, errors.New("retry.api.max_retries: must not be negative"))
	}
	if n := c.Retry.Logical.MaxRetries; n != nil && *n < 0 {
		errs = append(errs, errors.New("retry.logical.max_retries: must not be negative"))
	}
	return errors.Join(errs...)
}

// UsesRedis reports whether any component needs a Redis connection.
func (c *AppConfig) UsesRedis() bool {
	return c.Store.Backend == BackendRedis || c.Cache.Backend == BackendRedis || c.Queue.Backend == BackendRedis
}

func oneOf(v string, allowed ...string) bool {
	return slices.Contains(allowed, v)
}
