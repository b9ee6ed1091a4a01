package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/redis/go-redis/v9"

	redisstore "github.com/dishscout/dishscout/adapters/redis"
	sqsqueue "github.com/dishscout/dishscout/adapters/sqs"
	"github.com/dishscout/dishscout/config"
	"github.com/dishscout/dishscout/llm"
	"github.com/dishscout/dishscout/llm/anthropic"
	"github.com/dishscout/dishscout/llm/openai"
	"github.com/dishscout/dishscout/observability"
	"github.com/dishscout/dishscout/queue"
	"github.com/dishscout/dishscout/recommend"
	"github.com/dishscout/dishscout/retry"
	"github.com/dishscout/dishscout/state"
)

// newLogger builds a colored console logger or a JSON logger.
func newLogger(out io.Writer, cfg config.LoggingConfig) *slog.Logger {
	level := parseLevel(cfg.Level)
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(tint.NewHandler(out, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	}))
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// newLLMClient builds the primary provider, wrapped in a router with the
// fallback provider when one is configured.
func newLLMClient(cfg config.LLMConfig, hooks *observability.Hooks) (llm.Client, error) {
	primary, err := newProvider(cfg.Provider, cfg, hooks)
	if err != nil {
		return nil, err
	}
	if cfg.Fallback == "" {
		return primary, nil
	}
	fallback, err := newProvider(cfg.Fallback, cfg, hooks)
	if err != nil {
		return nil, err
	}
	return llm.NewRouterClient(llm.StaticPolicy{Default: primary}).WithConfig(llm.RouterConfig{
		Fallback:       fallback,
		ShouldFallback: shouldFallback,
	}), nil
}

// shouldFallback switches providers only for transient upstream failures.
func shouldFallback(err error) bool {
	return retry.IsRetryable(err) && !retry.IsLogicalValidation(err)
}

func newProvider(name string, cfg config.LLMConfig, hooks *observability.Hooks) (llm.Client, error) {
	switch name {
	case config.ProviderAnthropic:
		return anthropic.NewClient(anthropic.Config{
			APIKey:      cfg.Anthropic.APIKey,
			Model:       cfg.Anthropic.Model,
			BaseURL:     cfg.Anthropic.BaseURL,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
			Hooks:       hooks,
		})
	case config.ProviderOpenAI:
		return openai.NewClient(openai.Config{
			APIKey:      cfg.OpenAI.APIKey,
			Model:       cfg.OpenAI.Model,
			BaseURL:     cfg.OpenAI.BaseURL,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
			Hooks:       hooks,
		})
	default:
		return nil, fmt.Errorf("unknown llm provider %q", name)
	}
}

// backends groups the store, cache and queue selected by configuration.
type backends struct {
	store   state.Store
	cache   recommend.Cache
	queue   queue.Queue
	closers []func() error
}

func openBackends(ctx context.Context, cfg *config.AppConfig) (*backends, error) {
	b := &backends{}

	var rdb redis.UniversalClient
	if cfg.UsesRedis() {
		var err error
		rdb, err = redisstore.Open(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, rdb.Close)
	}

	switch cfg.Store.Backend {
	case config.BackendRedis:
		b.store = redisstore.NewStore(rdb, cfg.Redis.Prefix)
	default:
		b.store = state.NewInMemoryStore()
	}

	switch cfg.Cache.Backend {
	case config.BackendRedis:
		b.cache = redisstore.NewCache(rdb, cfg.Redis.Prefix)
	case config.BackendMemory:
		b.cache = recommend.NewMemoryCache(cfg.Cache.Size, cfg.Cache.TTL)
	}

	switch cfg.Queue.Backend {
	case config.BackendRedis:
		b.queue = redisstore.NewQueue(rdb, cfg.Redis.Prefix, redisstore.QueueOptions{
			VisibilityTimeout: cfg.Queue.VisibilityTimeout,
			EnableDLQ:         cfg.Queue.EnableDLQ,
		})
	case config.BackendSQS:
		q, err := sqsqueue.New(ctx, cfg.SQS)
		if err != nil {
			b.closeAll()
			return nil, err
		}
		b.queue = q
	default:
		b.queue = queue.NewInMemoryQueueWithOptions(queue.Options{
			VisibilityTimeout: cfg.Queue.VisibilityTimeout,
			Capacity:          cfg.Queue.Capacity,
			EnableDLQ:         cfg.Queue.EnableDLQ,
		})
	}
	// The queue closes before the Redis client it may use.
	b.closers = append([]func() error{b.queue.Close}, b.closers...)
	return b, nil
}

func (b *backends) closeAll() []error {
	var errs []error
	for _, c := range b.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Close releases every backend, logging failures.
func (b *backends) Close(logger *slog.Logger) {
	for _, err := range b.closeAll() {
		logger.Warn("close backend", "error", err)
	}
}
