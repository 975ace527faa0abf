// Package prom backs the observability MetricFactory with Prometheus
// collectors.
package prom

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/xraph/turnstile/observability"
)

// Factory creates Prometheus-backed counters and histograms.
type Factory struct {
	registerer prometheus.Registerer
}

var _ observability.MetricFactory = (*Factory)(nil)

// New creates a Factory registering collectors with the given
// Registerer. Pass prometheus.DefaultRegisterer for the process-global
// registry.
func New(registerer prometheus.Registerer) *Factory {
	return &Factory{registerer: registerer}
}

// Counter implements observability.MetricFactory.
func (f *Factory) Counter(name string) observability.Counter {
	return promauto.With(f.registerer).NewCounter(prometheus.CounterOpts{
		Name: sanitize(name),
	})
}

// Histogram implements observability.MetricFactory.
func (f *Factory) Histogram(name string) observability.Histogram {
	return promauto.With(f.registerer).NewHistogram(prometheus.HistogramOpts{
		Name:    sanitize(name),
		Buckets: prometheus.DefBuckets,
	})
}

// sanitize maps dotted metric names onto the Prometheus charset.
func sanitize(name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}
