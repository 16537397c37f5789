package opqueue

import "github.com/prometheus/client_golang/prometheus"

var (
	dispatchedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blesync_operations_dispatched_total",
			Help: "Operations handed to the radio link",
		},
		[]string{"kind"},
	)
	completedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blesync_operations_completed_total",
			Help: "Operations released by a driver completion",
		},
		[]string{"kind"},
	)
	timedOutCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blesync_operations_timed_out_total",
			Help: "Operations abandoned after the completion deadline",
		},
		[]string{"kind"},
	)
	droppedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blesync_operations_dropped_total",
			Help: "Operations never awaited: no link, dispatch failure or queue stop",
		},
		[]string{"kind", "reason"},
	)
	depthGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "blesync_operation_queue_depth",
			Help: "Operations waiting for dispatch",
		},
	)
)

// MetricsCollectors exposes the queue collectors for registration.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		dispatchedCounter,
		completedCounter,
		timedOutCounter,
		droppedCounter,
		depthGauge,
	}
}
