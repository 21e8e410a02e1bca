package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/skincare-rag/internal/core/domain"
)

type WorkerMetrics struct {
	registry *prometheus.Registry
	service  string

	runTotal           *prometheus.CounterVec
	runInFlight        prometheus.Gauge
	queueLag           *prometheus.HistogramVec
	modeTotal          *prometheus.CounterVec
	modeDuration       *prometheus.HistogramVec
	questionsEvaluated *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	runTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "evaluation_runs_total",
			Help:      "Total processed evaluation requests by status.",
		},
		[]string{"service", "status"},
	)
	runInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "evaluation_runs_in_flight",
			Help:      "Number of in-flight evaluation requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between an evaluation request and its processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	modeTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "modes_total",
			Help:      "Total evaluated modes by status.",
		},
		[]string{"service", "mode", "status"},
	)
	modeDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "mode_duration_seconds",
			Help:      "Duration of one mode over the question set.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"service", "mode"},
	)
	questionsEvaluated := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "questions_total",
			Help:      "Total questions scored by mode.",
		},
		[]string{"service", "mode"},
	)

	registry.MustRegister(runTotal, runInFlight, queueLag, modeTotal, modeDuration, questionsEvaluated)

	return &WorkerMetrics{
		registry:           registry,
		service:            service,
		runTotal:           runTotal,
		runInFlight:        runInFlight,
		queueLag:           queueLag,
		modeTotal:          modeTotal,
		modeDuration:       modeDuration,
		questionsEvaluated: questionsEvaluated,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartRun() {
	m.runInFlight.Inc()
}

func (m *WorkerMetrics) FinishRun(err error) {
	m.runInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}
	m.runTotal.WithLabelValues(m.service, status).Inc()
}

func (m *WorkerMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(m.service).Observe(lag.Seconds())
}

func (m *WorkerMetrics) RecordEvaluation(mode domain.ModeName, questions int, duration time.Duration, err error) {
	label := modeLabel(mode)
	m.modeDuration.WithLabelValues(m.service, label).Observe(duration.Seconds())
	if err != nil {
		m.modeTotal.WithLabelValues(m.service, label, "error").Inc()
		return
	}
	m.modeTotal.WithLabelValues(m.service, label, "success").Inc()
	m.questionsEvaluated.WithLabelValues(m.service, label).Add(float64(questions))
}
