package recommend

import (
	"context"
	"time"

	"github.com/dishscout/dishscout/llm"
	"github.com/dishscout/dishscout/metrics"
	"github.com/dishscout/dishscout/observability"
	"github.com/dishscout/dishscout/retry"
)

// Modes label the two request paths in metrics and cache keys.
const (
	ModeTool = "tool"
	ModeText = "text"
)

// Result is a validated recommendation.
type Result struct {
	Items   []Item        `json:"items"`
	Metrics retry.Metrics `json:"metrics"`
	Cached  bool          `json:"cached"`
}

// Service produces recommendations with two-layer retries around the LLM
// call.
type Service struct {
	client      llm.Client
	cache       Cache
	cacheTTL    time.Duration
	hooks       *observability.Hooks
	metrics     *metrics.RecommendMetrics
	apiOpts     []retry.Option
	logicalOpts []retry.Option
	model       string
	maxTokens   int
	temperature float64
}

// Option configures a Service.
type Option func(*Service)

// WithCache enables result caching.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(s *Service) { s.cache, s.cacheTTL = c, ttl }
}

// WithHooks reports LLM requests and retries to h.
func WithHooks(h *observability.Hooks) Option {
	return func(s *Service) { s.hooks = h }
}

// WithMetrics records request outcomes and attempt counts.
func WithMetrics(m *metrics.RecommendMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithAPIRetry overrides the transport retry defaults.
func WithAPIRetry(opts ...retry.Option) Option {
	return func(s *Service) { s.apiOpts = append(s.apiOpts, opts...) }
}

// WithLogicalRetry overrides the logical retry defaults.
func WithLogicalRetry(opts ...retry.Option) Option {
	return func(s *Service) { s.logicalOpts = append(s.logicalOpts, opts...) }
}

// WithModel sets the model requested from the client; empty uses the
// client's default.
func WithModel(model string) Option {
	return func(s *Service) { s.model = model }
}

// WithMaxTokens caps the completion length; the default is 2048.
func WithMaxTokens(n int) Option {
	return func(s *Service) { s.maxTokens = n }
}

// WithTemperature sets the sampling temperature; zero uses the client default.
func WithTemperature(t float64) Option {
	return func(s *Service) { s.temperature = t }
}

// NewService creates a Service calling client. Without WithCache every
// request reaches the model.
func NewService(client llm.Client, opts ...Option) *Service {
	s := &Service{client: client, maxTokens: 2048}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Recommend asks the model for a forced tool call and validates it.
func (s *Service) Recommend(ctx context.Context, p Params) (*Result, error) {
	lang := p.Language()
	req := s.request(p, SystemPrompt(lang))
	req.Tools = []llm.Tool{BuildToolSchema(lang)}
	req.ToolChoice = ToolName
	return s.run(ctx, ModeTool, p, req, func(r *llm.Response) ([]Item, error) {
		return ValidateToolResponse(r, lang)
	})
}

// RecommendFromText asks for a free-form JSON answer and repairs it before
// validation.
func (s *Service) RecommendFromText(ctx context.Context, p Params) (*Result, error) {
	lang := p.Language()
	return s.run(ctx, ModeText, p, s.request(p, TextSystemPrompt(lang)), func(r *llm.Response) ([]Item, error) {
		return ValidateTextResponse(r, lang)
	})
}

func (s *Service) request(p Params, system string) *llm.ChatRequest {
	return &llm.ChatRequest{
		Model:        s.model,
		SystemPrompt: system,
		Messages:     []llm.Message{{Role: "user", Content: UserPrompt(p)}},
		MaxTokens:    s.maxTokens,
		Temperature:  s.temperature,
	}
}

func (s *Service) run(ctx context.Context, mode string, p Params, req *llm.ChatRequest, validate retry.Validator[*llm.Response, []Item]) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	key := mode + ":" + p.CacheKey()

	if items, ok := s.cacheGet(ctx, key); ok {
		s.metrics.ObserveRecommendation(mode, nil, time.Since(start), 0, 0, 0)
		return &Result{Items: items, Cached: true}, nil
	}

	apiCall := func(ctx context.Context) (*llm.Response, error) {
		return s.client.Chat(ctx, req)
	}
	apiOpts := append(append([]retry.Option(nil), s.apiOpts...), retry.WithNotify(s.notify(ctx, "api")))
	logicalOpts := append(append([]retry.Option(nil), s.logicalOpts...), retry.WithNotify(s.notify(ctx, "logical")))

	out, err := retry.DoTwoLayer(ctx, apiCall, validate, apiOpts, logicalOpts)
	if err != nil {
		s.metrics.ObserveRecommendation(mode, err, time.Since(start), 0, 0, 0)
		s.hooks.SafeLog(ctx, "error", "recommendation failed", map[string]any{
			"mode":       mode,
			"error":      err.Error(),
			"retryable":  retry.IsRetryable(err),
			"logical":    retry.IsLogicalValidation(err),
			"elapsed_ms": time.Since(start).Milliseconds(),
		})
		return nil, err
	}

	m := out.Metrics
	s.metrics.ObserveRecommendation(mode, nil, time.Since(start), m.APIRetries, m.LogicalRetries, m.TotalAttempts)
	s.hooks.SafeLog(ctx, "debug", "recommendation generated", map[string]any{
		"mode":            mode,
		"items":           len(out.Result),
		"api_retries":     m.APIRetries,
		"logical_retries": m.LogicalRetries,
		"total_attempts":  m.TotalAttempts,
	})
	s.cacheSet(ctx, key, out.Result)
	return &Result{Items: out.Result, Metrics: m}, nil
}

func (s *Service) notify(ctx context.Context, layer string) retry.NotifyFunc {
	return func(attempt int, err error, delay time.Duration) {
		s.hooks.SafeLLMRetry(ctx, layer, attempt, delay, err)
	}
}

func (s *Service) cacheGet(ctx context.Context, key string) ([]Item, bool) {
	if s.cache == nil {
		return nil, false
	}
	items, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.hooks.SafeLog(ctx, "warn", "recommendation cache read failed", map[string]any{"error": err.Error()})
		return nil, false
	}
	s.metrics.ObserveCache(ok)
	return items, ok
}

func (s *Service) cacheSet(ctx context.Context, key string, items []Item) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, items, s.cacheTTL); err != nil {
		s.hooks.SafeLog(ctx, "warn", "recommendation cache write failed", map[string]any{"error": err.Error()})
	}
}
