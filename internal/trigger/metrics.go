package trigger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OpportunitiesTriggeredTotal tracks accepted detections.
	OpportunitiesTriggeredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dexpulse_trigger_opportunities_total",
		Help: "Total number of opportunity detections emitted",
	})

	// RejectedTotal tracks rejected candidates by reason.
	RejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dexpulse_trigger_rejected_total",
			Help: "Total number of candidates rejected by the profitability check",
		},
		[]string{"reason"},
	)

	// DebounceSkipsTotal tracks events suppressed by the debounce window.
	DebounceSkipsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dexpulse_trigger_debounce_skips_total",
		Help: "Total number of events suppressed by debouncing",
	})

	// FailedExecutionsTotal tracks execution failures reported back.
	FailedExecutionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dexpulse_trigger_failed_executions_total",
		Help: "Total number of execution failures reported by the collaborator",
	})

	// EvaluationDurationSeconds tracks per-event evaluation latency.
	EvaluationDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dexpulse_trigger_evaluation_seconds",
		Help:    "Duration of a single profitability evaluation",
		Buckets: prometheus.DefBuckets,
	})

	// NetProfitNative tracks accepted net profit in native-token units.
	NetProfitNative = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dexpulse_trigger_net_profit_native",
		Help:    "Net profit of accepted opportunities in native-token units",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})
)
