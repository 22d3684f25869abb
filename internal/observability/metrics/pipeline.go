package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/filing-qa/internal/core/domain"
)

// PipelineMetrics observes routing, retrieval, verification and index rebuilds.
type PipelineMetrics struct {
	service string

	routesTotal        *prometheus.CounterVec
	tableFallbackTotal *prometheus.CounterVec
	retrievalDuration  *prometheus.HistogramVec
	retrievalResults   *prometheus.HistogramVec
	verificationsTotal *prometheus.CounterVec
	indexBuildsTotal   *prometheus.CounterVec
	indexBuildDuration *prometheus.HistogramVec
	corpusSize         *prometheus.GaugeVec
	rebuildFailures    *prometheus.CounterVec
	dependencyRetries  *prometheus.CounterVec
	breakerOpen        *prometheus.GaugeVec
}

func NewPipelineMetrics(reg prometheus.Registerer, service string) *PipelineMetrics {
	m := &PipelineMetrics{
		service: service,
		routesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "routes_total",
			Help:      "Routed questions by query type.",
		}, []string{"service", "query_type", "table_centric"}),
		tableFallbackTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "table_fallback_total",
			Help:      "Table-centric questions answered from text because the table corpus was empty.",
		}, []string{"service"}),
		retrievalDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "Per-corpus retrieval duration in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"service", "corpus"}),
		retrievalResults: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "results",
			Help:      "Results returned per corpus search.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		}, []string{"service", "corpus"}),
		verificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verifier",
			Name:      "verifications_total",
			Help:      "Numeric verification outcomes.",
		}, []string{"service", "status"}),
		indexBuildsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "builds_total",
			Help:      "Published corpus index versions.",
		}, []string{"service", "corpus", "kind"}),
		indexBuildDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "rebuild_duration_seconds",
			Help:      "Time from rebuild start to corpus publication.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"service", "corpus"}),
		corpusSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "corpus_size",
			Help:      "Units in the published corpus version.",
		}, []string{"service", "corpus"}),
		rebuildFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "rebuild_failures_total",
			Help:      "Rebuild failures by stage.",
		}, []string{"service", "stage"}),
		dependencyRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dependency",
			Name:      "retries_total",
			Help:      "Retried calls to outbound dependencies.",
		}, []string{"service", "dependency", "operation"}),
		breakerOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dependency",
			Name:      "breaker_open",
			Help:      "1 while the circuit breaker of a dependency operation is open, 0.5 half-open, 0 closed.",
		}, []string{"service", "dependency", "operation"}),
	}
	reg.MustRegister(
		m.routesTotal,
		m.tableFallbackTotal,
		m.retrievalDuration,
		m.retrievalResults,
		m.verificationsTotal,
		m.indexBuildsTotal,
		m.indexBuildDuration,
		m.corpusSize,
		m.rebuildFailures,
		m.dependencyRetries,
		m.breakerOpen,
	)
	return m
}

func (m *PipelineMetrics) ObserveRoute(route domain.RouteDecision) {
	centric := "false"
	if route.IsTableCentric {
		centric = "true"
	}
	m.routesTotal.WithLabelValues(m.service, string(route.QueryType), centric).Inc()
}

func (m *PipelineMetrics) ObserveTableFallback() {
	m.tableFallbackTotal.WithLabelValues(m.service).Inc()
}

func (m *PipelineMetrics) ObserveRetrieval(corpus domain.Corpus, duration time.Duration, results int) {
	m.retrievalDuration.WithLabelValues(m.service, string(corpus)).Observe(duration.Seconds())
	m.retrievalResults.WithLabelValues(m.service, string(corpus)).Observe(float64(results))
}

func (m *PipelineMetrics) ObserveVerification(status domain.VerificationStatus) {
	m.verificationsTotal.WithLabelValues(m.service, string(status)).Inc()
}

func (m *PipelineMetrics) ObserveIndexBuild(build domain.IndexBuild, duration time.Duration) {
	m.indexBuildsTotal.WithLabelValues(m.service, string(build.Corpus), build.Kind).Inc()
	m.indexBuildDuration.WithLabelValues(m.service, string(build.Corpus)).Observe(duration.Seconds())
	m.corpusSize.WithLabelValues(m.service, string(build.Corpus)).Set(float64(build.Size))
}

func (m *PipelineMetrics) ObserveRebuildFailure(stage string) {
	m.rebuildFailures.WithLabelValues(m.service, stage).Inc()
}

// SetCorpusSize records sizes of snapshots restored at startup.
func (m *PipelineMetrics) SetCorpusSize(corpus domain.Corpus, size int) {
	m.corpusSize.WithLabelValues(m.service, string(corpus)).Set(float64(size))
}

func (m *PipelineMetrics) ObserveRetry(dependency, operation string) {
	m.dependencyRetries.WithLabelValues(m.service, dependency, operation).Inc()
}

func (m *PipelineMetrics) ObserveBreakerState(dependency, operation, state string) {
	value := 0.0
	switch state {
	case "open":
		value = 1
	case "half-open":
		value = 0.5
	}
	m.breakerOpen.WithLabelValues(m.service, dependency, operation).Set(value)
}
