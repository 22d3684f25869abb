package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	eventsTotal     *prometheus.CounterVec
	rebuildDuration *prometheus.HistogramVec
	rebuildInFlight prometheus.Gauge
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	eventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "ingest_events_total",
			Help:      "Handled filing ingested events by status.",
		},
		[]string{"service", "status"},
	)
	rebuildDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "rebuild_duration_seconds",
			Help:      "Full index rebuild duration in seconds by status.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"service", "status"},
	)
	rebuildInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "rebuild_in_flight",
			Help:      "Number of in-flight rebuilds.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(eventsTotal, rebuildDuration, rebuildInFlight)

	return &WorkerMetrics{
		registry:        registry,
		eventsTotal:     eventsTotal,
		rebuildDuration: rebuildDuration,
		rebuildInFlight: rebuildInFlight,
	}
}

func (m *WorkerMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartRebuild() {
	m.rebuildInFlight.Inc()
}

func (m *WorkerMetrics) FinishRebuild(service string, duration time.Duration, err error) {
	m.rebuildInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.eventsTotal.WithLabelValues(service, status).Inc()
	m.rebuildDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}
