package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dishscout/dishscout/observability"
)

func TestNewRegistersEverything(t *testing.T) {
	reg, err := New()
	require.NoError(t, err)
	assert.NotNil(t, reg.Recommend)
	assert.NotNil(t, reg.LLM)
	assert.NotNil(t, reg.Jobs)
}

func TestDuplicateRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewRecommendMetrics(reg)
	require.NoError(t, err)
	_, err = NewRecommendMetrics(reg)
	assert.Error(t, err)
}

func TestObserveRecommendation(t *testing.T) {
	m, err := NewRecommendMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.ObserveRecommendation("tool", nil, time.Second, 2, 1, 4)
	m.ObserveRecommendation("tool", errors.New("boom"), time.Second, 0, 0, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("tool", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("tool", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.apiRetries))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.logicalRetries))
}

func TestObserveCache(t *testing.T) {
	m, err := NewRecommendMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	m.ObserveCache(true)
	m.ObserveCache(false)
	m.ObserveCache(false)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cache.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cache.WithLabelValues("miss")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var r *RecommendMetrics
	var j *JobMetrics
	assert.NotPanics(t, func() {
		r.ObserveRecommendation("tool", nil, 0, 0, 0, 0)
		r.ObserveCache(true)
		j.Started()
		j.Finished("completed")
		j.Requeued()
	})
}

func TestInstrumentDelegates(t *testing.T) {
	m, err := NewLLMMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	var retried bool
	h := m.Instrument(&observability.Hooks{
		OnLLMRetry: func(context.Context, string, int, time.Duration, error) { retried = true },
	})
	ctx := context.Background()
	h.SafeLLMResponse(ctx, "anthropic", "claude", 200*time.Millisecond, map[string]any{"error": true})
	h.SafeLLMRetry(ctx, "api", 1, time.Second, errors.New("503"))

	assert.True(t, retried)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("anthropic", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.retries.WithLabelValues("api")))
}

func TestJobMetrics(t *testing.T) {
	m, err := NewJobMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	m.Started()
	m.Started()
	m.Finished("completed")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.inFlight))
	m.Requeued()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.inFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requeued))
}

func TestHandlerServesText(t *testing.T) {
	reg, err := New()
	require.NoError(t, err)
	reg.Recommend.ObserveCache(true)

	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.True(t, strings.Contains(string(body), "dishscout_recommendation_cache_total"))
}
