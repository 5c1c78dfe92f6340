// Package metrics exposes the run-control core's Prometheus gauges and
// counters: task/run lifecycle transitions and Command Bridge round-trip
// latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TaskTransitions counts every task status transition by resulting
	// status, so a dashboard can chart completion vs. failure rate.
	TaskTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runcontrol_task_transitions_total",
			Help: "Total task status transitions by resulting status",
		},
		[]string{"status"},
	)

	// RunTransitions counts every autonomy run status transition.
	RunTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runcontrol_run_transitions_total",
			Help: "Total autonomy run status transitions by resulting status",
		},
		[]string{"status"},
	)

	// BridgeRoundTrip observes Command Bridge dispatch latency, labeled
	// by whether the collector returned ok=true.
	BridgeRoundTrip = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "runcontrol_bridge_round_trip_seconds",
			Help:    "Command Bridge round-trip latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"ok"},
	)

	// BroadcastSubscribers tracks the Broadcast Hub's current subscriber
	// count.
	BroadcastSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "runcontrol_broadcast_subscribers",
			Help: "Current Broadcast Hub subscriber count",
		},
	)
)

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
