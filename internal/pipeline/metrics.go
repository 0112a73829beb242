package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReceivedTotal tracks raw events entering the pipeline.
	ReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dexpulse_pipeline_received_total",
		Help: "Total number of raw pool events received by the pipeline",
	})

	// FilteredTotal tracks events rejected by the filter, by reason.
	FilteredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dexpulse_pipeline_filtered_total",
			Help: "Total number of events rejected by the filter",
		},
		[]string{"reason"},
	)

	// DuplicatesTotal tracks events suppressed by the idempotency watermark.
	DuplicatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dexpulse_pipeline_duplicates_total",
		Help: "Total number of duplicate or replayed events suppressed",
	})

	// EmittedTotal tracks filtered events emitted downstream, by priority.
	EmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dexpulse_pipeline_emitted_total",
			Help: "Total number of filtered events emitted downstream",
		},
		[]string{"priority"},
	)

	// QueueDroppedTotal tracks events dropped by the backpressure queue, by policy.
	QueueDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dexpulse_pipeline_queue_dropped_total",
			Help: "Total number of events dropped by the backpressure queue",
		},
		[]string{"policy"},
	)

	// BackpressureTotal tracks ErrQueueFull signals surfaced to producers.
	BackpressureTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dexpulse_pipeline_backpressure_total",
		Help: "Total number of backpressure signals returned to producers",
	})

	// QueueDepth tracks the current backpressure queue depth.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dexpulse_pipeline_queue_depth",
		Help: "Current backpressure queue depth",
	})

	// ProcessingLatencySeconds tracks receive-to-emit latency.
	ProcessingLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dexpulse_pipeline_latency_seconds",
		Help:    "Latency from event receipt to downstream emission",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})
)
