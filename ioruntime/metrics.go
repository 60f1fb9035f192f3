package ioruntime

import "github.com/prometheus/client_golang/prometheus"

// metrics backs Runtime.Collector(), giving the prometheus dependency
// pulled in by the retrieval pack (runZeroInc-sockstats) a concrete
// home: gauges for active fds and posted-task backlog, and a counter
// for completions delivered. None of this sits on the framing hot
// path; it is instrumentation only.
type metrics struct {
	activeFDs        prometheus.Gauge
	postedTasks      prometheus.Gauge
	completions      prometheus.Counter
	timeoutsFired    prometheus.Counter
}

func newMetrics(namespace string) *metrics {
	return &metrics{
		activeFDs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ioruntime",
			Name:      "active_fds",
			Help:      "Number of file descriptors currently registered with the reactor.",
		}),
		postedTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ioruntime",
			Name:      "posted_tasks",
			Help:      "Number of completions queued for a pool worker but not yet run.",
		}),
		completions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ioruntime",
			Name:      "completions_total",
			Help:      "Total number of async operation completions delivered.",
		}),
		timeoutsFired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ioruntime",
			Name:      "timeouts_total",
			Help:      "Total number of pending operations that missed their deadline.",
		}),
	}
}

// Describe implements prometheus.Collector.
func (m *metrics) Describe(ch chan<- *prometheus.Desc) {
	m.activeFDs.Describe(ch)
	m.postedTasks.Describe(ch)
	m.completions.Describe(ch)
	m.timeoutsFired.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *metrics) Collect(ch chan<- prometheus.Metric) {
	m.activeFDs.Collect(ch)
	m.postedTasks.Collect(ch)
	m.completions.Collect(ch)
	m.timeoutsFired.Collect(ch)
}

// Collector exposes the runtime's prometheus metrics for registration
// with an external registry.
func (rt *Runtime) Collector() prometheus.Collector {
	return rt.metrics
}
