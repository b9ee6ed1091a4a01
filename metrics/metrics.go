// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dishscout"

// Registry owns a private Prometheus registry and every collector group.
type Registry struct {
	registry  *prometheus.Registry
	Recommend *RecommendMetrics
	LLM       *LLMMetrics
	Jobs      *JobMetrics
}

// New creates a Registry and registers all collectors.
func New() (*Registry, error) {
	reg := prometheus.NewRegistry()

	rec, err := NewRecommendMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize recommend metrics: %w", err)
	}
	llm, err := NewLLMMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize llm metrics: %w", err)
	}
	jobs, err := NewJobMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize job metrics: %w", err)
	}
	return &Registry{registry: reg, Recommend: rec, LLM: llm, Jobs: jobs}, nil
}

// Handler exposes the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Gatherer returns the underlying registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

func register(reg prometheus.Registerer, collectors ...prometheus.Collector) error {
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return nil
}
