package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/qonfido/fundrag/internal/core/domain"
)

// EngineMetrics observes the index lifecycle: rebuild outcomes, corpus
// size and the current state machine position.
type EngineMetrics struct {
	registry *prometheus.Registry

	rebuildTotal     *prometheus.CounterVec
	rebuildDuration  *prometheus.HistogramVec
	rebuildInFlight  prometheus.Gauge
	documentsIndexed prometheus.Gauge
	lifecycleState   prometheus.Gauge
}

func NewEngineMetrics(service string) *EngineMetrics {
	registry := prometheus.NewRegistry()

	rebuildTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fundrag",
			Subsystem: "engine",
			Name:      "rebuilds_total",
			Help:      "Total index rebuild passes by outcome.",
		},
		[]string{"service", "status"},
	)
	rebuildDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fundrag",
			Subsystem: "engine",
			Name:      "rebuild_duration_seconds",
			Help:      "Index rebuild duration in seconds by outcome.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service", "status"},
	)
	rebuildInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fundrag",
			Subsystem: "engine",
			Name:      "rebuild_in_flight",
			Help:      "Whether a rebuild pass is currently running.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	documentsIndexed := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fundrag",
			Subsystem: "engine",
			Name:      "documents_indexed",
			Help:      "Documents in the currently published corpus snapshot.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	lifecycleState := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fundrag",
			Subsystem: "engine",
			Name:      "lifecycle_state",
			Help:      "Index lifecycle state (0 uninitialized, 1 loading, 2 rebuilding, 3 ready).",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(rebuildTotal, rebuildDuration, rebuildInFlight, documentsIndexed, lifecycleState)

	return &EngineMetrics{
		registry:         registry,
		rebuildTotal:     rebuildTotal,
		rebuildDuration:  rebuildDuration,
		rebuildInFlight:  rebuildInFlight,
		documentsIndexed: documentsIndexed,
		lifecycleState:   lifecycleState,
	}
}

func (m *EngineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *EngineMetrics) StartRebuild() {
	m.rebuildInFlight.Inc()
}

func (m *EngineMetrics) FinishRebuild(service string, duration time.Duration, err error) {
	m.rebuildInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}
	m.rebuildTotal.WithLabelValues(service, status).Inc()
	m.rebuildDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *EngineMetrics) SetDocumentsIndexed(count int) {
	m.documentsIndexed.Set(float64(count))
}

func (m *EngineMetrics) SetLifecycleState(state domain.IndexState) {
	var v float64
	switch state {
	case domain.IndexLoading:
		v = 1
	case domain.IndexRebuilding:
		v = 2
	case domain.IndexReady:
		v = 3
	}
	m.lifecycleState.Set(v)
}
