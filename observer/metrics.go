package observer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics mirrors the corpus's promauto-registered gauge idiom
// (tomtom215-cartographus's internal/metrics package), scoped to a
// caller-supplied Registerer instead of the default one so an embedding
// process can run more than one HTTPServer without collector collisions.
type Metrics struct {
	processCount   prometheus.Gauge
	totalMessages  prometheus.Gauge
	totalRestarts  prometheus.Gauge
	nodesConnected prometheus.Gauge
}

// NewMetrics registers the observer gauges against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		processCount: f.NewGauge(prometheus.GaugeOpts{
			Name: "actorframe_process_count",
			Help: "Number of live local server processes.",
		}),
		totalMessages: f.NewGauge(prometheus.GaugeOpts{
			Name: "actorframe_total_messages",
			Help: "Sum of mailbox message counts across all live local processes.",
		}),
		totalRestarts: f.NewGauge(prometheus.GaugeOpts{
			Name: "actorframe_total_restarts",
			Help: "Sum of restart counts across all children of registered supervisors.",
		}),
		nodesConnected: f.NewGauge(prometheus.GaugeOpts{
			Name: "actorframe_nodes_connected",
			Help: "Number of peer nodes currently connected.",
		}),
	}
}

// Update sets every gauge from a freshly taken Snapshot.
func (m *Metrics) Update(snap Snapshot) {
	m.processCount.Set(float64(snap.ProcessCount))
	m.totalMessages.Set(float64(snap.TotalMessages))
	m.totalRestarts.Set(float64(snap.TotalRestarts))
	m.nodesConnected.Set(float64(snap.NodesConnected))
}
