package workflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: длительность применения перехода (включая авто-хопы)
	TransitionDuration *prometheus.HistogramVec

	// Traffic: сколько переходов применено
	TransitionsTotal *prometheus.CounterVec

	// Errors: классификация отказов движка
	DeniedTotal *prometheus.CounterVec

	// Конфликты оптимистичной блокировки (чужая запись успела раньше)
	ConflictsTotal prometheus.Counter

	// Saturation: заполненность буфера аудита (backpressure)
	AuditBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		TransitionDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "workflow_transition_duration_seconds",
			Help:    "Histogram of transition apply latencies.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"kind"}),

		TransitionsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_transitions_total",
			Help: "Total number of applied transitions.",
		}, []string{"from", "to", "kind"}),

		DeniedTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_denied_total",
			Help: "Total number of refused commands by reason.",
		}, []string{"reason"}), // reason: forbidden, not_found, invalid_argument, conflict, config

		ConflictsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "workflow_version_conflicts_total",
			Help: "Optimistic lock conflicts detected by the store.",
		}),

		AuditBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "workflow_audit_buffer_utilization",
			Help: "Current number of events in the audit trail buffer.",
		}),
	}
}
