package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StageOutcome classifies a single backend stage call.
type StageOutcome string

const (
	OutcomeSuccess        StageOutcome = "success"
	OutcomeBackendError   StageOutcome = "backend_error"
	OutcomeTransportError StageOutcome = "transport_error"
)

// Metrics holds the gateway's prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	stageCalls    *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	pipelineRuns  *prometheus.CounterVec
}

// NewMetrics creates collectors on a private registry, together with the
// standard Go and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stageCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "appointment_gateway",
			Name:      "stage_calls_total",
			Help:      "Outbound calls to the processing service by stage and outcome.",
		}, []string{"stage", "outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "appointment_gateway",
			Name:      "stage_duration_seconds",
			Help:      "Latency of outbound calls to the processing service.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"stage"}),
		pipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "appointment_gateway",
			Name:      "pipeline_runs_total",
			Help:      "Pipeline runs by variant and the stage that failed (none when scheduled).",
		}, []string{"variant", "failed_stage"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.stageCalls,
		m.stageDuration,
		m.pipelineRuns,
	)

	return m
}

// ObserveStage records one outbound stage call.
func (m *Metrics) ObserveStage(stage string, outcome StageOutcome, d time.Duration) {
	if m == nil {
		return
	}
	m.stageCalls.WithLabelValues(stage, string(outcome)).Inc()
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObservePipeline records a finished pipeline run. failedStage is empty for
// a run that reached scheduling successfully.
func (m *Metrics) ObservePipeline(variant, failedStage string) {
	if m == nil {
		return
	}
	if failedStage == "" {
		failedStage = "none"
	}
	m.pipelineRuns.WithLabelValues(variant, failedStage).Inc()
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
