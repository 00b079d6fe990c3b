package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	runsTotal      *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	runsInFlight   prometheus.Gauge
	documentsTotal *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	runsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsorter",
			Subsystem: "worker",
			Name:      "runs_total",
			Help:      "Total executed runs by terminal state.",
		},
		[]string{"service", "state"},
	)
	runDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docsorter",
			Subsystem: "worker",
			Name:      "run_duration_seconds",
			Help:      "Run execution duration in seconds by terminal state.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"service", "state"},
	)
	runsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docsorter",
			Subsystem: "worker",
			Name:      "runs_in_flight",
			Help:      "Number of runs currently executing.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	documentsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsorter",
			Subsystem: "worker",
			Name:      "documents_total",
			Help:      "Total processed documents by outcome.",
		},
		[]string{"service", "outcome"},
	)

	registry.MustRegister(runsTotal, runDuration, runsInFlight, documentsTotal)

	return &WorkerMetrics{
		registry:       registry,
		runsTotal:      runsTotal,
		runDuration:    runDuration,
		runsInFlight:   runsInFlight,
		documentsTotal: documentsTotal,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartRun() {
	m.runsInFlight.Inc()
}

func (m *WorkerMetrics) FinishRun(service string, duration time.Duration, err error) {
	m.runsInFlight.Dec()

	state := "succeeded"
	if err != nil {
		state = "failed"
	}

	m.runsTotal.WithLabelValues(service, state).Inc()
	m.runDuration.WithLabelValues(service, state).Observe(duration.Seconds())
}

func (m *WorkerMetrics) RecordDocuments(service, outcome string, n int) {
	if n <= 0 {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.documentsTotal.WithLabelValues(service, outcome).Add(float64(n))
}
