package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dishscout/dishscout/observability"
)

// LLMMetrics tracks provider calls and retry sleeps.
type LLMMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	retries  *prometheus.CounterVec
}

func NewLLMMetrics(reg prometheus.Registerer) (*LLMMetrics, error) {
	m := &LLMMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Provider requests by provider and error flag.",
		}, []string{"provider", "error"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Provider request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_retry_sleeps_total",
			Help:      "Backoff sleeps by retry layer.",
		}, []string{"layer"}),
	}
	if err := register(reg, m.requests, m.latency, m.retries); err != nil {
		return nil, err
	}
	return m, nil
}

// Instrument returns hooks that record LLM metrics and then delegate to next.
func (m *LLMMetrics) Instrument(next *observability.Hooks) *observability.Hooks {
	if m == nil {
		return next
	}
	h := &observability.Hooks{
		OnLLMRequest: func(ctx context.Context, provider, model string, meta map[string]any) {
			next.SafeLLMRequest(ctx, provider, model, meta)
		},
		OnLLMResponse: func(ctx context.Context, provider, model string, latency time.Duration, meta map[string]any) {
			failed, _ := meta["error"].(bool)
			m.requests.WithLabelValues(provider, strconv.FormatBool(failed)).Inc()
			m.latency.WithLabelValues(provider).Observe(latency.Seconds())
			next.SafeLLMResponse(ctx, provider, model, latency, meta)
		},
		OnLLMRetry: func(ctx context.Context, layer string, attempt int, delay time.Duration, err error) {
			m.retries.WithLabelValues(layer).Inc()
			next.SafeLLMRetry(ctx, layer, attempt, delay, err)
		},
	}
	if next != nil {
		h.Logf = next.Logf
	}
	return h
}
