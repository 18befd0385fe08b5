// Package metrics wraps Prometheus registration with a process-wide registry
// and per-component namespacing.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	registryOnce sync.Once
	registry     *prometheus.Registry
)

// Registry returns the process-wide registry served at /metrics. Go runtime
// and process collectors are attached on first use.
func Registry() *prometheus.Registry {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
	return registry
}

// Histogram buckets shared across components.
var (
	// DurationBuckets covers operation latencies from 1ms to ~2 minutes.
	DurationBuckets = prometheus.ExponentialBuckets(0.001, 2, 17)
	// CountBuckets covers small cardinalities such as batch or queue sizes.
	CountBuckets = prometheus.ExponentialBuckets(1, 2, 12)
)

// ComponentRegistry registers collectors under a namespace/subsystem pair.
// Re-registering an identical collector (for example when a component is
// constructed more than once in tests) returns the existing one instead of
// panicking.
type ComponentRegistry struct {
	namespace string
	subsystem string
	reg       *prometheus.Registry
}

// NewComponentRegistry returns a registry scoped to the given namespace and
// subsystem, backed by the process-wide registry.
func NewComponentRegistry(namespace, subsystem string) *ComponentRegistry {
	return &ComponentRegistry{
		namespace: namespace,
		subsystem: subsystem,
		reg:       Registry(),
	}
}

func (r *ComponentRegistry) register(c prometheus.Collector) prometheus.Collector {
	if err := r.reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
		panic(err)
	}
	return c
}

// NewCounter registers and returns a namespaced counter.
func (r *ComponentRegistry) NewCounter(opts prometheus.CounterOpts) prometheus.Counter {
	opts.Namespace, opts.Subsystem = r.namespace, r.subsystem
	return r.register(prometheus.NewCounter(opts)).(prometheus.Counter)
}

// NewCounterVec registers and returns a namespaced counter vector.
func (r *ComponentRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	opts.Namespace, opts.Subsystem = r.namespace, r.subsystem
	return r.register(prometheus.NewCounterVec(opts, labels)).(*prometheus.CounterVec)
}

// NewGauge registers and returns a namespaced gauge.
func (r *ComponentRegistry) NewGauge(opts prometheus.GaugeOpts) prometheus.Gauge {
	opts.Namespace, opts.Subsystem = r.namespace, r.subsystem
	return r.register(prometheus.NewGauge(opts)).(prometheus.Gauge)
}

// NewGaugeVec registers and returns a namespaced gauge vector.
func (r *ComponentRegistry) NewGaugeVec(opts prometheus.GaugeOpts, labels []string) *prometheus.GaugeVec {
	opts.Namespace, opts.Subsystem = r.namespace, r.subsystem
	return r.register(prometheus.NewGaugeVec(opts, labels)).(*prometheus.GaugeVec)
}

// NewHistogram registers and returns a namespaced histogram.
func (r *ComponentRegistry) NewHistogram(opts prometheus.HistogramOpts) prometheus.Histogram {
	opts.Namespace, opts.Subsystem = r.namespace, r.subsystem
	return r.register(prometheus.NewHistogram(opts)).(prometheus.Histogram)
}
