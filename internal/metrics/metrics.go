// Package metrics instruments engine calls, reconciliation outcomes and
// health probes with Prometheus collectors.
//
// A short-lived CLI has nothing to scrape it, so the registry is written to a
// node-exporter textfile on exit instead of being served over HTTP.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "torrentbed"

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	engineOps    *prometheus.HistogramVec
	engineErrors *prometheus.CounterVec
	outcomes     *prometheus.CounterVec
	probes       *prometheus.CounterVec
	running      prometheus.Gauge
	pullBytes    prometheus.Counter
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		engineOps: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "engine_operation_duration_seconds",
				Help:      "Duration of container engine operations",
				Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
			},
			[]string{"operation"},
		),
		engineErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "engine_operation_errors_total",
				Help:      "Container engine operations that returned an error, by error class",
			},
			[]string{"operation", "class"},
		),
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconcile_outcomes_total",
				Help:      "Reconciliation outcomes by kind",
			},
			[]string{"kind"},
		),
		probes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "health_probes_total",
				Help:      "Readiness probes by result (healthy, unhealthy, error)",
			},
			[]string{"result"},
		),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "container_running",
			Help:      "1 while a health-confirmed container is bound",
		}),
		pullBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_pull_bytes_total",
			Help:      "Layer bytes reported by image pull progress streams",
		}),
	}

	m.registry.MustRegister(m.engineOps, m.engineErrors, m.outcomes, m.probes, m.running, m.pullBytes)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveEngineOp records the duration of op and, when err is non-nil,
// counts it under class.
func (m *Metrics) ObserveEngineOp(op string, start time.Time, class string, err error) {
	if m == nil {
		return
	}
	m.engineOps.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		m.engineErrors.WithLabelValues(op, class).Inc()
	}
}

// RecordOutcome counts a reconciliation outcome.
func (m *Metrics) RecordOutcome(kind string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(kind).Inc()
}

// RecordProbe counts a readiness probe result.
func (m *Metrics) RecordProbe(result string) {
	if m == nil {
		return
	}
	m.probes.WithLabelValues(result).Inc()
}

// SetRunning flips the running gauge.
func (m *Metrics) SetRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.running.Set(1)
	} else {
		m.running.Set(0)
	}
}

// AddPullBytes adds the bytes reported by a finished pull.
func (m *Metrics) AddPullBytes(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.pullBytes.Add(float64(n))
}

// WriteTextfile writes the registry in text exposition format to path,
// atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
