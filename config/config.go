// Package config loads the service configuration from YAML.
package config

import (
	"time"

	redisstore "github.com/dishscout/dishscout/adapters/redis"
	sqsqueue "github.com/dishscout/dishscout/adapters/sqs"
	"github.com/dishscout/dishscout/retry"
)

// Backends selectable for the store, cache and queue.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQS    = "sqs"
	BackendNone   = "none"
)

// Providers selectable for the LLM.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// AppConfig is the root configuration document.
type AppConfig struct {
	Server  ServerConfig      `yaml:"server"`
	Logging LoggingConfig     `yaml:"logging"`
	LLM     LLMConfig         `yaml:"llm"`
	Retry   RetryConfig       `yaml:"retry"`
	Cache   CacheConfig       `yaml:"cache"`
	Store   StoreConfig       `yaml:"store"`
	Queue   QueueConfig       `yaml:"queue"`
	Worker  WorkerConfig      `yaml:"worker"`
	Redis   redisstore.Config `yaml:"redis"`
	SQS     sqsqueue.Config   `yaml:"sqs"`
}

type ServerConfig struct {
	Addr                string        `yaml:"addr"`
	RequestTimeout      time.Duration `yaml:"request_timeout"`
	ReadTimeout         time.Duration `yaml:"read_timeout"`
	WriteTimeout        time.Duration `yaml:"write_timeout"`
	MaxRequestBodyBytes int64         `yaml:"max_request_body_bytes"`
	ShutdownTimeout     time.Duration `yaml:"shutdown_timeout"`
}

type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`
	// Format is "text" for colored console output or "json".
	Format string `yaml:"format"`
}

// LLMConfig selects the primary provider and an optional fallback.
type LLMConfig struct {
	Provider    string         `yaml:"provider"`
	Fallback    string         `yaml:"fallback"`
	Model       string         `yaml:"model"`
	MaxTokens   int            `yaml:"max_tokens"`
	Temperature float64        `yaml:"temperature"`
	Timeout     time.Duration  `yaml:"timeout"`
	Anthropic   ProviderConfig `yaml:"anthropic"`
	OpenAI      ProviderConfig `yaml:"openai"`
}

type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// RetryConfig overrides the two retry layers. Unset fields keep the
// package defaults.
type RetryConfig struct {
	API     LayerConfig `yaml:"api"`
	Logical LayerConfig `yaml:"logical"`
}

type LayerConfig struct {
	MaxRetries *int           `yaml:"max_retries"`
	BaseDelay  *time.Duration `yaml:"base_delay"`
	MaxDelay   *time.Duration `yaml:"max_delay"`
	Jitter     *time.Duration `yaml:"jitter"`
}

// Options converts the set fields into retry options.
func (l LayerConfig) Options() []retry.Option {
	var opts []retry.Option
	if l.MaxRetries != nil {
		opts = append(opts, retry.WithMaxRetries(*l.MaxRetries))
	}
	if l.BaseDelay != nil {
		opts = append(opts, retry.WithBaseDelay(*l.BaseDelay))
	}
	if l.MaxDelay != nil {
		opts = append(opts, retry.WithMaxDelay(*l.MaxDelay))
	}
	if l.Jitter != nil {
		opts = append(opts, retry.WithJitter(*l.Jitter))
	}
	return opts
}

type CacheConfig struct {
	Backend string        `yaml:"backend"`
	TTL     time.Duration `yaml:"ttl"`
	// Size caps the memory backend's entry count.
	Size int `yaml:"size"`
}

type StoreConfig struct {
	Backend string `yaml:"backend"`
}

type QueueConfig struct {
	Backend           string        `yaml:"backend"`
	Name              string        `yaml:"name"`
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`
	Capacity          int           `yaml:"capacity"`
	EnableDLQ         bool          `yaml:"enable_dlq"`
}

type WorkerConfig struct {
	Enabled      *bool         `yaml:"enabled"`
	Concurrency  int           `yaml:"concurrency"`
	MaxAttempts  int           `yaml:"max_attempts"`
	PollInterval time.Duration `yaml:"poll_interval"`
	JobTimeout   time.Duration `yaml:"job_timeout"`
}

// WorkerEnabled reports whether this process runs a worker; unset means yes.
func (w WorkerConfig) WorkerEnabled() bool {
	return w.Enabled == nil || *w.Enabled
}
