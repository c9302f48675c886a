package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the prometheus collectors of the server. Each server owns a
// private registry so several servers can live in one process (tests).
type Metrics struct {
	registry    *prometheus.Registry
	jobs        *prometheus.CounterVec
	evaluations prometheus.Counter
	steps       prometheus.Histogram
	curvature   prometheus.Gauge
}

// NewMetrics creates and registers the collectors
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		jobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saddlefind_jobs_total",
				Help: "Saddle search jobs by final state.",
			},
			[]string{"state"},
		),
		evaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "saddlefind_evaluations_total",
			Help: "Potential energy evaluations across all jobs.",
		}),
		steps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "saddlefind_translation_steps",
			Help:    "Translation steps per finished job.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		curvature: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "saddlefind_final_curvature",
			Help: "Lowest curvature at the end of the most recently finished job.",
		}),
	}
	m.registry.MustRegister(m.jobs, m.evaluations, m.steps, m.curvature)
	return m
}

// Handler serves the registry in the prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) jobFinished(state JobState, steps int, curvature float64) {
	m.jobs.WithLabelValues(string(state)).Inc()
	m.steps.Observe(float64(steps))
	if state == StateCompleted {
		m.curvature.Set(curvature)
	}
}
