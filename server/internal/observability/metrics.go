package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeOK       = "ok"
	OutcomeFailed   = "failed"
	OutcomeSkipped  = "skipped"
	OutcomeDegraded = "degraded"
)

// Metrics holds the chat pipeline collectors. Each instance registers on its own
// registry so tests and multiple servers in one process do not collide.
type Metrics struct {
	registry *prometheus.Registry

	StageTotal         *prometheus.CounterVec
	GenerationDuration prometheus.Histogram
	RetrievalResults   prometheus.Histogram
	EmbeddingBackfill  *prometheus.CounterVec
}

// NewMetrics creates the collectors on a fresh registry that also carries the Go
// and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		StageTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "intellichat",
				Subsystem: "chat",
				Name:      "stage_total",
				Help:      "Chat pipeline stage outcomes",
			},
			[]string{"stage", "outcome"},
		),
		GenerationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "intellichat",
				Name:      "generation_duration_seconds",
				Help:      "Generation call duration in seconds",
				Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
		),
		RetrievalResults: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "intellichat",
				Name:      "retrieval_results",
				Help:      "Number of history entries placed into a prompt",
				Buckets:   []float64{0, 1, 2, 3, 5, 10, 20},
			},
		),
		EmbeddingBackfill: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "intellichat",
				Subsystem: "embedding",
				Name:      "backfill_total",
				Help:      "Messages processed by the embedding backfill runner",
			},
			[]string{"outcome"},
		),
	}
}

// RecordStage counts one outcome of a pipeline stage.
func (m *Metrics) RecordStage(stage, outcome string) {
	if m == nil {
		return
	}
	m.StageTotal.WithLabelValues(stage, outcome).Inc()
}

func (m *Metrics) ObserveGeneration(d time.Duration) {
	if m == nil {
		return
	}
	m.GenerationDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveRetrieval(n int) {
	if m == nil {
		return
	}
	m.RetrievalResults.Observe(float64(n))
}

func (m *Metrics) RecordBackfill(outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.EmbeddingBackfill.WithLabelValues(outcome).Add(float64(n))
}

// Registry exposes the registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
