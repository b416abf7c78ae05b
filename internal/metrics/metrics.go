// Package metrics holds the Prometheus collectors for codeguard on a dedicated registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"codeguard/internal/model"
)

type Metrics struct {
	registry *prometheus.Registry

	AnalysesTotal      *prometheus.CounterVec
	FindingsTotal      *prometheus.CounterVec
	RuleCompileErrors  prometheus.Counter
	AIFailuresTotal    *prometheus.CounterVec
	PersistErrorsTotal prometheus.Counter
	PublishErrorsTotal prometheus.Counter
	AnalysisDuration   prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		AnalysesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "codeguard_analyses_total",
			Help: "Analyses completed, by whether AI detection ran.",
		}, []string{"ai_used"}),
		FindingsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "codeguard_findings_total",
			Help: "Findings reported after merge, by type, severity and source.",
		}, []string{"type", "severity", "source"}),
		RuleCompileErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "codeguard_rule_compile_errors_total",
			Help: "Rules skipped because their pattern did not compile.",
		}),
		AIFailuresTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "codeguard_ai_failures_total",
			Help: "AI provider failures recovered by the detector.",
		}, []string{"provider", "stage"}),
		PersistErrorsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "codeguard_persist_errors_total",
			Help: "Analyses whose result could not be stored.",
		}),
		PublishErrorsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "codeguard_publish_errors_total",
			Help: "Completion events that could not be published.",
		}),
		AnalysisDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "codeguard_analysis_duration_seconds",
			Help:    "Wall time of one analysis including AI detection.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the dedicated registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveAnalysis records one completed analysis. Safe on a nil receiver.
func (m *Metrics) ObserveAnalysis(result model.AnalysisResult, aiUsed bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := "false"
	if aiUsed {
		label = "true"
	}
	m.AnalysesTotal.WithLabelValues(label).Inc()
	for _, f := range result.Findings {
		m.FindingsTotal.WithLabelValues(string(f.Type), string(f.Severity), string(f.Source)).Inc()
	}
	m.AnalysisDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) IncRuleCompileErrors(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RuleCompileErrors.Add(float64(n))
}

func (m *Metrics) IncAIFailure(provider, stage string) {
	if m == nil {
		return
	}
	m.AIFailuresTotal.WithLabelValues(provider, stage).Inc()
}

func (m *Metrics) IncPersistErrors() {
	if m == nil {
		return
	}
	m.PersistErrorsTotal.Inc()
}

func (m *Metrics) IncPublishErrors() {
	if m == nil {
		return
	}
	m.PublishErrorsTotal.Inc()
}
