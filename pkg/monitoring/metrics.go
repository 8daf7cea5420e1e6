// Package monitoring exposes the prometheus metrics of the approval engine.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder registers and records the engine's metrics. A nil *Recorder is a
// no-op, so callers never need to guard metric calls.
type Recorder struct {
	decisions      *prometheus.CounterVec
	decideDuration *prometheus.HistogramVec
	graphLoads     *prometheus.CounterVec
	queueDepth     *prometheus.GaugeVec
}

// NewRecorder registers the engine metrics with the given registerer.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stagegate",
			Name:      "approval_decisions_total",
			Help:      "Approval decisions by kind and outcome.",
		}, []string{"kind", "outcome"}),
		decideDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "stagegate",
			Name:      "approval_decide_duration_seconds",
			Help:      "Latency of decision calls by kind.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		graphLoads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stagegate",
			Name:      "dependency_graph_loads_total",
			Help:      "Dependency graph store loads by workflow version (cache misses).",
		}, []string{"workflow_version"}),
		queueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "stagegate",
			Name:      "approval_queue_depth",
			Help:      "Pending requests last observed per kind.",
		}, []string{"kind"}),
	}
}

// RecordDecision counts one decision and its latency.
func (r *Recorder) RecordDecision(kind, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.decisions.WithLabelValues(kind, outcome).Inc()
	r.decideDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// RecordGraphLoad counts one dependency-graph store load.
func (r *Recorder) RecordGraphLoad(workflowVersion string) {
	if r == nil {
		return
	}
	r.graphLoads.WithLabelValues(workflowVersion).Inc()
}

// SetQueueDepth records the pending-queue depth of one kind.
func (r *Recorder) SetQueueDepth(kind string, depth int) {
	if r == nil {
		return
	}
	r.queueDepth.WithLabelValues(kind).Set(float64(depth))
}
