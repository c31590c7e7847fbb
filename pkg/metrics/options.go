package metrics

import (
	"maps"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures a Manager before its collectors are registered.
type Option func(*Manager)

// WithNamespace overrides the "fedrec" namespace. Empty values are ignored.
func WithNamespace(ns string) Option {
	return func(m *Manager) { m.namespace = orDefault(ns, m.namespace) }
}

// WithSubsystem overrides the "server" subsystem. Empty values are ignored.
func WithSubsystem(sub string) Option {
	return func(m *Manager) { m.subsystem = orDefault(sub, m.subsystem) }
}

// WithMetricPrefix prepends prefix_ to every metric name.
func WithMetricPrefix(prefix string) Option {
	return func(m *Manager) { m.metricPrefix = orDefault(prefix, m.metricPrefix) }
}

// WithHistogramBuckets replaces the millisecond latency buckets used by
// aggregation, recommend and persistence histograms.
func WithHistogramBuckets(b []float64) Option {
	return func(m *Manager) {
		if len(b) == 0 {
			return
		}
		m.histogramBuckets = append([]float64(nil), b...)
	}
}

// WithMetricsEnabled toggles the Enabled flag read by the gauge updaters in cmd.
func WithMetricsEnabled(on bool) Option {
	return func(m *Manager) { m.enabled = on }
}

// WithRefreshInterval sets how often the service and system gauges are polled.
func WithRefreshInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.refreshInterval = d
		}
	}
}

// WithCustomLabels attaches constant labels (deployment, region) to every collector.
func WithCustomLabels(labels map[string]string) Option {
	return func(m *Manager) {
		if labels == nil {
			return
		}
		m.customLabels = maps.Clone(labels)
	}
}

// WithPrometheusRegistry registers collectors on r instead of the default registerer.
func WithPrometheusRegistry(r prometheus.Registerer) Option {
	return func(m *Manager) {
		if r != nil {
			m.registry = r
		}
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
