package coordinator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/compose-network/reqcoord/metrics"
)

// Metrics holds all coordinator-level metrics.
type Metrics struct {
	registry *metrics.ComponentRegistry

	Executions *prometheus.CounterVec
	DedupJoins prometheus.Counter
	CacheHits  prometheus.Counter
	Running    prometheus.Gauge
	Queued     prometheus.Gauge
	Duration   prometheus.Histogram
}

// NewMetrics creates coordinator metrics.
func NewMetrics() *Metrics {
	reg := metrics.NewComponentRegistry("reqcoord", "coordinator")

	return &Metrics{
		registry: reg,

		Executions: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "executions_total",
			Help: "Settled operations by outcome",
		}, []string{"outcome"}),

		DedupJoins: reg.NewCounter(prometheus.CounterOpts{
			Name: "dedup_joins_total",
			Help: "Calls resolved against an in-flight operation with the same dedup key",
		}),

		CacheHits: reg.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Calls resolved from a fresh cache entry",
		}),

		Running: reg.NewGauge(prometheus.GaugeOpts{
			Name: "running_operations",
			Help: "Operations currently running",
		}),

		Queued: reg.NewGauge(prometheus.GaugeOpts{
			Name: "queued_operations",
			Help: "Operations waiting for a concurrency slot",
		}),

		Duration: reg.NewHistogram(prometheus.HistogramOpts{
			Name:    "operation_duration_seconds",
			Help:    "Wall-clock duration from admission to settlement",
			Buckets: metrics.DurationBuckets,
		}),
	}
}

func (m *Metrics) recordSettled(state State, duration time.Duration) {
	if m == nil {
		return
	}
	m.Executions.WithLabelValues(string(state)).Inc()
	m.Duration.Observe(duration.Seconds())
}

func (m *Metrics) recordDedupJoin() {
	if m == nil {
		return
	}
	m.DedupJoins.Inc()
}

func (m *Metrics) recordCacheHit() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

func (m *Metrics) setRunning(n int) {
	if m == nil {
		return
	}
	m.Running.Set(float64(n))
}

func (m *Metrics) setQueued(n int) {
	if m == nil {
		return
	}
	m.Queued.Set(float64(n))
}
