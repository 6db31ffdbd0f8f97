package index

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics are the collectors of one Index. Each index owns its own set so
// two indexes in a process never report into each other's series.
type metrics struct {
	// writes counts accepted and rejected writes by operation
	writes *prometheus.CounterVec

	// applied counts pending entries applied by refresh, by outcome
	applied *prometheus.CounterVec

	// refreshDuration tracks refresh latency
	refreshDuration *prometheus.HistogramVec

	// pending is the number of writes waiting for a refresh
	pending prometheus.Gauge
}

// newMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered; they still count, which tests rely on.
func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		writes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "activerules_index_writes_total",
			Help: "Index writes by operation and result",
		}, []string{"op", "result"}),
		applied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "activerules_index_applied_total",
			Help: "Pending index entries applied by refresh, by outcome",
		}, []string{"outcome"}),
		refreshDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "activerules_index_refresh_duration_seconds",
			Help:    "Refresh duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~1.6s
		}, []string{"result"}),
		pending: f.NewGauge(prometheus.GaugeOpts{
			Name: "activerules_index_pending",
			Help: "Writes accepted but not yet visible",
		}),
	}
}
