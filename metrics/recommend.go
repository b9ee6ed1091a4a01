package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RecommendMetrics tracks recommendation outcomes and the retry budget they
// consumed.
type RecommendMetrics struct {
	requests       *prometheus.CounterVec
	duration       prometheus.Histogram
	apiRetries     prometheus.Counter
	logicalRetries prometheus.Counter
	attempts       prometheus.Histogram
	cache          *prometheus.CounterVec
}

func NewRecommendMetrics(reg prometheus.Registerer) (*RecommendMetrics, error) {
	m := &RecommendMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recommendations_total",
			Help:      "Recommendation requests by mode and outcome.",
		}, []string{"mode", "outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recommendation_duration_seconds",
			Help:      "End-to-end recommendation latency including retries.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}),
		apiRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_api_retries_total",
			Help:      "Transport-level retries reported by the two-layer orchestrator.",
		}),
		logicalRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_logical_retries_total",
			Help:      "Validation-level retries reported by the two-layer orchestrator.",
		}),
		attempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_attempts_per_recommendation",
			Help:      "Underlying API calls per recommendation.",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 8},
		}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recommendation_cache_total",
			Help:      "Recommendation cache lookups by result.",
		}, []string{"result"}),
	}
	if err := register(reg, m.requests, m.duration, m.apiRetries, m.logicalRetries, m.attempts, m.cache); err != nil {
		return nil, err
	}
	return m, nil
}

// ObserveRecommendation records one finished recommendation. Retry counts
// are only reported when the orchestrator produced metrics.
func (m *RecommendMetrics) ObserveRecommendation(mode string, err error, elapsed time.Duration, apiRetries, logicalRetries, attempts int) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.requests.WithLabelValues(mode, outcome).Inc()
	m.duration.Observe(elapsed.Seconds())
	if attempts > 0 {
		m.apiRetries.Add(float64(apiRetries))
		m.logicalRetries.Add(float64(logicalRetries))
		m.attempts.Observe(float64(attempts))
	}
}

// ObserveCache records a cache lookup.
func (m *RecommendMetrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cache.WithLabelValues("hit").Inc()
		return
	}
	m.cache.WithLabelValues("miss").Inc()
}
