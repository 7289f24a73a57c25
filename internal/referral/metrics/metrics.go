package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	NodesRegistered prometheus.Counter
	EdgesInserted   prometheus.Counter
	RebuildRuns     *prometheus.CounterVec
	RebuildDuration prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		NodesRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "upline_referral_nodes_registered_total",
			Help: "Total referral nodes registered into the closure store",
		}),
		EdgesInserted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "upline_referral_closure_edges_inserted_total",
			Help: "Total closure edges written by incremental registration",
		}),
		RebuildRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "upline_referral_rebuild_runs_total",
			Help: "Closure rebuild attempts by outcome",
		}, []string{"outcome"}),
		RebuildDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "upline_referral_rebuild_duration_seconds",
			Help:    "Wall time of full closure rebuilds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}),
	}
}

func (m *Metrics) IncNodesRegistered() {
	m.NodesRegistered.Inc()
}

func (m *Metrics) AddEdgesInserted(n int) {
	m.EdgesInserted.Add(float64(n))
}

func (m *Metrics) ObserveRebuild(outcome string, seconds float64) {
	m.RebuildRuns.WithLabelValues(outcome).Inc()
	m.RebuildDuration.Observe(seconds)
}
