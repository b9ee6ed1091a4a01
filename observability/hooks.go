package observability

import (
	"context"
	"log/slog"
	"time"
)

// Hooks provides optional callbacks for logging, metrics, and tracing without
// introducing dependencies in the core library. All functions are optional.
type Hooks struct {
	// Logf logs a structured message with a severity level and key-value fields.
	Logf func(ctx context.Context, level string, msg string, fields map[string]any)

	// OnLLMRequest is called before a provider request is sent.
	OnLLMRequest func(ctx context.Context, provider string, model string, meta map[string]any)
	// OnLLMResponse is called after a provider response is received.
	OnLLMResponse func(ctx context.Context, provider string, model string, latency time.Duration, meta map[string]any)
	// OnLLMRetry is called before a retry sleeps. Layer is "api" or "logical".
	OnLLMRetry func(ctx context.Context, layer string, attempt int, delay time.Duration, err error)
}

// SafeLog logs if Logf is configured.
func (h *Hooks) SafeLog(ctx context.Context, level string, msg string, fields map[string]any) {
	if h != nil && h.Logf != nil {
		h.Logf(ctx, level, msg, fields)
	}
}

// SafeLLMRequest invokes OnLLMRequest if configured.
func (h *Hooks) SafeLLMRequest(ctx context.Context, provider string, model string, meta map[string]any) {
	if h != nil && h.OnLLMRequest != nil {
		h.OnLLMRequest(ctx, provider, model, meta)
	}
}

// SafeLLMResponse invokes OnLLMResponse if configured.
func (h *Hooks) SafeLLMResponse(ctx context.Context, provider string, model string, latency time.Duration, meta map[string]any) {
	if h != nil && h.OnLLMResponse != nil {
		h.OnLLMResponse(ctx, provider, model, latency, meta)
	}
}

// SafeLLMRetry invokes OnLLMRetry if configured.
func (h *Hooks) SafeLLMRetry(ctx context.Context, layer string, attempt int, delay time.Duration, err error) {
	if h != nil && h.OnLLMRetry != nil {
		h.OnLLMRetry(ctx, layer, attempt, delay, err)
	}
}

// NewSlogHooks returns hooks that write every event to logger.
func NewSlogHooks(logger *slog.Logger) *Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hooks{
		Logf: func(ctx context.Context, level string, msg string, fields map[string]any) {
			logger.Log(ctx, parseLevel(level), msg, attrs(fields)...)
		},
		OnLLMRequest: func(ctx context.Context, provider string, model string, meta map[string]any) {
			args := append([]any{"provider", provider, "model", model}, attrs(meta)...)
			logger.DebugContext(ctx, "llm request", args...)
		},
		OnLLMResponse: func(ctx context.Context, provider string, model string, latency time.Duration, meta map[string]any) {
			args := append([]any{"provider", provider, "model", model, "latency", latency}, attrs(meta)...)
			logger.DebugContext(ctx, "llm response", args...)
		},
		OnLLMRetry: func(ctx context.Context, layer string, attempt int, delay time.Duration, err error) {
			logger.WarnContext(ctx, "llm retry", "layer", layer, "attempt", attempt, "delay", delay, "error", err)
		},
	}
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func attrs(fields map[string]any) []any {
	out := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		out = append(out, k, v)
	}
	return out
}
