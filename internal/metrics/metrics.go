// Package metrics records per-run capture and reporting counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace prefixes every metric name
	Namespace = "testreport"
)

// Metrics holds the collectors of one run. Each run owns its registry so that
// concurrent runs never share counters.
type Metrics struct {
	registry *prometheus.Registry

	capturedBytes prometheus.Counter
	spills        prometheus.Counter
	suites        *prometheus.CounterVec
	failureLogs   prometheus.Counter
	activeSuites  prometheus.Gauge
}

// New creates the collectors on a fresh registry. runID is attached as a
// constant label when not empty.
func New(runID string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	var labels prometheus.Labels
	if runID != "" {
		labels = prometheus.Labels{"run_id": runID}
	}

	return &Metrics{
		registry: reg,
		capturedBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   Namespace,
			Name:        "captured_bytes_total",
			Help:        "Bytes of test output written to capture buffers",
			ConstLabels: labels,
		}),
		spills: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   Namespace,
			Name:        "spills_total",
			Help:        "Capture buffers moved from memory to a spill file",
			ConstLabels: labels,
		}),
		suites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   Namespace,
			Name:        "suites_total",
			Help:        "Finished suites by result",
			ConstLabels: labels,
		}, []string{"result"}),
		failureLogs: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   Namespace,
			Name:        "failure_logs_total",
			Help:        "Failure logs written to the reports directory",
			ConstLabels: labels,
		}),
		activeSuites: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   Namespace,
			Name:        "active_suites",
			Help:        "Suites with a live capture buffer",
			ConstLabels: labels,
		}),
	}
}

// Registry returns the registry holding the run's collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordCaptured adds n captured bytes.
func (m *Metrics) RecordCaptured(n int) {
	if n > 0 {
		m.capturedBytes.Add(float64(n))
	}
}

// RecordSpill counts one buffer spill.
func (m *Metrics) RecordSpill() {
	m.spills.Inc()
}

// BufferOpened increments the active suite gauge.
func (m *Metrics) BufferOpened() {
	m.activeSuites.Inc()
}

// BufferClosed decrements the active suite gauge.
func (m *Metrics) BufferClosed() {
	m.activeSuites.Dec()
}

// RecordSuite counts a finished suite by result.
func (m *Metrics) RecordSuite(result string) {
	m.suites.WithLabelValues(result).Inc()
}

// RecordFailureLog counts one written failure log.
func (m *Metrics) RecordFailureLog() {
	m.failureLogs.Inc()
}

// WriteTextfile writes the registry in the text exposition format, for the
// node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
