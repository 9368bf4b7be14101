// Package telemetry exposes the core's Prometheus metrics and the
// /metrics HTTP server, adapted from the teacher's pkg/metrics package:
// the same package-level prometheus.MustRegister-at-init shape, the
// same Timer helper, retargeted from container/deployment metrics onto
// the core's placement/resource/dispatch concerns (see SPEC_FULL.md
// §4.2-§4.5 and DESIGN.md).
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Placement metrics.
	PlacementCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "loom_placement_cycle_duration_seconds",
			Help:    "Time taken for one placement reconciliation pass",
			Buckets: prometheus.DefBuckets,
		},
	)

	UnassignableBlocksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "loom_unassignable_blocks_total",
			Help: "Total number of unassignable-block events observed",
		},
	)

	// Block Supervisor metrics.
	BlocksRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "loom_blocks_running",
			Help: "Number of blocks currently running on this node",
		},
	)

	BlocksUnassigned = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "loom_blocks_unassigned",
			Help: "Number of configured blocks with no owner",
		},
	)

	BlocksBlacklisted = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "loom_blocks_blacklisted",
			Help: "Number of blocks this node has given up placing",
		},
	)

	// Resource Evaluator metrics.
	ProbesPerformedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "loom_resource_probes_total",
			Help: "Total number of resource fitness probes performed",
		},
	)

	ResourceCheckedAllPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "loom_resource_checked_all_pending",
			Help: "Number of distinct resources not yet probed by every node",
		},
	)

	// Event Dispatcher metrics.
	EventsDispatchedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "loom_events_dispatched_total",
			Help: "Total number of dispatch passes completed (one per out_queue event)",
		},
	)

	EventsDeliveredLocalTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "loom_events_delivered_local_total",
			Help: "Total number of local handler invocations from in_queue",
		},
	)

	EventsRetriedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "loom_events_retried_total",
			Help: "Total number of outbound dispatch retries after an I/O failure",
		},
	)

	OutQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "loom_out_queue_depth",
			Help: "Current depth of the outbound event queue",
		},
	)

	InQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "loom_in_queue_depth",
			Help: "Current depth of the inbound event queue",
		},
	)

	// Replicated Store / Raft metrics.
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "loom_raft_is_leader",
			Help: "Whether this node is the Raft leader (1 = leader, 0 = follower)",
		},
	)
)

func init() {
	prometheus.MustRegister(
		PlacementCycleDuration,
		UnassignableBlocksTotal,
		BlocksRunning,
		BlocksUnassigned,
		BlocksBlacklisted,
		ProbesPerformedTotal,
		ResourceCheckedAllPending,
		EventsDispatchedTotal,
		EventsDeliveredLocalTotal,
		EventsRetriedTotal,
		OutQueueDepth,
		InQueueDepth,
		RaftLeader,
	)
}

// Handler returns the Prometheus scrape handler for GET /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer times an operation and records it to a histogram on completion,
// mirroring the teacher's metrics.Timer helper.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}
