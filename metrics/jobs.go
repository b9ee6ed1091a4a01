package metrics

import "github.com/prometheus/client_golang/prometheus"

// JobMetrics tracks asynchronous recommendation jobs.
type JobMetrics struct {
	finished *prometheus.CounterVec
	requeued prometheus.Counter
	inFlight prometheus.Gauge
}

func NewJobMetrics(reg prometheus.Registerer) (*JobMetrics, error) {
	m := &JobMetrics{
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Jobs that reached a terminal status.",
		}, []string{"status"}),
		requeued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_requeued_total",
			Help:      "Job tasks returned to the queue after a retryable failure.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_in_flight",
			Help:      "Jobs currently executing.",
		}),
	}
	if err := register(reg, m.finished, m.requeued, m.inFlight); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *JobMetrics) Started() {
	if m != nil {
		m.inFlight.Inc()
	}
}

func (m *JobMetrics) Finished(status string) {
	if m != nil {
		m.inFlight.Dec()
		m.finished.WithLabelValues(status).Inc()
	}
}

func (m *JobMetrics) Requeued() {
	if m != nil {
		m.inFlight.Dec()
		m.requeued.Inc()
	}
}
