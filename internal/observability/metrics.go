// Package observability exposes the engine's Prometheus metrics. The
// library registers nothing globally; callers pass a registerer and
// scrape it however their process does.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MutationMetrics records mutation outcomes and latency per model and
// operation.
type MutationMetrics struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMutationMetrics registers the mutation metrics with reg. A nil
// registerer yields a metrics object that still records, but is never
// scraped (used in tests).
func NewMutationMetrics(reg prometheus.Registerer) *MutationMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &MutationMetrics{
		total: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "orm_mutations_total",
			Help: "Total mutations by model, operation, and outcome.",
		}, []string{"model", "operation", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "orm_mutation_duration_seconds",
			Help:    "Mutation latency by model and operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"model", "operation"}),
	}
}

// Observe records one finished mutation.
func (m *MutationMetrics) Observe(model, operation string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.total.WithLabelValues(model, operation, outcome).Inc()
	m.duration.WithLabelValues(model, operation).Observe(elapsed.Seconds())
}
