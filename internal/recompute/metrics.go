package recompute

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricRecomputeTotal             = "score_recompute_total"
	MetricRecomputeErrors            = "score_recompute_errors_total"
	MetricRecomputeDuration          = "score_recompute_duration_seconds"
	MetricLastRecomputeTimestamp     = "score_last_recompute_timestamp"
	MetricLastRecomputeEntityCount   = "score_last_recompute_entity_count"
	MetricLastRecomputeFilteredCount = "score_last_recompute_filtered_count"
)

// Metrics contains Prometheus metrics for the aggregate recompute.
// All operations are thread-safe.
type Metrics struct {
	recomputeTotal             prometheus.Counter
	recomputeErrors            prometheus.Counter
	recomputeDuration          prometheus.Histogram
	lastRecomputeTimestamp     prometheus.Gauge
	lastRecomputeEntityCount   prometheus.Gauge
	lastRecomputeFilteredCount prometheus.Gauge
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		recomputeTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRecomputeTotal,
			Help: "Total number of successful aggregate recomputations",
		}),
		recomputeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRecomputeErrors,
			Help: "Total number of aggregate recomputation errors",
		}),
		recomputeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricRecomputeDuration,
			Help:    "Histogram of aggregate recomputation duration in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		lastRecomputeTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricLastRecomputeTimestamp,
			Help: "Unix timestamp of the reference instant of the last recompute",
		}),
		lastRecomputeEntityCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricLastRecomputeEntityCount,
			Help: "Number of places scored in the last recompute",
		}),
		lastRecomputeFilteredCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricLastRecomputeFilteredCount,
			Help: "Number of places dropped by the evidence filter in the last recompute",
		}),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncRecomputeTotal increments the recompute total counter.
func (m *Metrics) IncRecomputeTotal() {
	m.recomputeTotal.Inc()
}

// IncRecomputeErrors increments the recompute errors counter.
func (m *Metrics) IncRecomputeErrors() {
	m.recomputeErrors.Inc()
}

// ObserveRecomputeDuration records a recompute duration sample.
func (m *Metrics) ObserveRecomputeDuration(seconds float64) {
	m.recomputeDuration.Observe(seconds)
}

// SetLastRecomputeTimestamp sets the last recompute timestamp gauge.
func (m *Metrics) SetLastRecomputeTimestamp(timestamp float64) {
	m.lastRecomputeTimestamp.Set(timestamp)
}

// SetLastRecomputeEntityCount sets the scored entity gauge.
func (m *Metrics) SetLastRecomputeEntityCount(count float64) {
	m.lastRecomputeEntityCount.Set(count)
}

// SetLastRecomputeFilteredCount sets the filtered entity gauge.
func (m *Metrics) SetLastRecomputeFilteredCount(count float64) {
	m.lastRecomputeFilteredCount.Set(count)
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.recomputeTotal,
		m.recomputeErrors,
		m.recomputeDuration,
		m.lastRecomputeTimestamp,
		m.lastRecomputeEntityCount,
		m.lastRecomputeFilteredCount,
	}
}
