package limiter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains Prometheus metrics for the limiter package.
type Metrics struct {
	consumeChecks  *prometheus.CounterVec
	storeErrors    *prometheus.CounterVec
	refundFailures *prometheus.CounterVec
	failOpenGrants *prometheus.CounterVec
	waitDuration   *prometheus.HistogramVec
	attempts       *prometheus.HistogramVec
}

// NewMetrics creates a Metrics instance registered against reg. Pass
// prometheus.DefaultRegisterer in applications; tests use a private
// registry so repeated construction does not collide.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		consumeChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "choked_consume_checks_total",
				Help: "Total number of bucket consume attempts",
			},
			[]string{"key", "dimension", "result"},
		),

		storeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "choked_store_errors_total",
				Help: "Total number of bucket store failures",
			},
			[]string{"key"},
		),

		refundFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "choked_refund_failures_total",
				Help: "Total number of failed request-bucket compensations",
			},
			[]string{"key"},
		),

		failOpenGrants: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "choked_fail_open_grants_total",
				Help: "Total number of calls admitted without consuming because the store was unreachable",
			},
			[]string{"key"},
		),

		waitDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "choked_wait_duration_seconds",
				Help:    "Time callers spent waiting for admission",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 16), // 1ms to ~32s
			},
			[]string{"key"},
		),

		attempts: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "choked_admission_attempts",
				Help:    "Number of consume attempts per admitted call",
				Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34},
			},
			[]string{"key"},
		),
	}
}

// RecordCheck records one consume attempt for a dimension.
func (m *Metrics) RecordCheck(key, dimension string, granted bool) {
	if m == nil {
		return
	}
	result := "granted"
	if !granted {
		result = "denied"
	}
	m.consumeChecks.WithLabelValues(key, dimension, result).Inc()
}

// RecordStoreError records a bucket store failure.
func (m *Metrics) RecordStoreError(key string) {
	if m == nil {
		return
	}
	m.storeErrors.WithLabelValues(key).Inc()
}

// RecordRefundFailure records a failed request-bucket compensation.
func (m *Metrics) RecordRefundFailure(key string) {
	if m == nil {
		return
	}
	m.refundFailures.WithLabelValues(key).Inc()
}

// RecordFailOpen records an admission granted without consuming.
func (m *Metrics) RecordFailOpen(key string) {
	if m == nil {
		return
	}
	m.failOpenGrants.WithLabelValues(key).Inc()
}

// RecordAdmission records a completed wait: its total duration and how many
// attempts it took.
func (m *Metrics) RecordAdmission(key string, seconds float64, attempts int) {
	if m == nil {
		return
	}
	m.waitDuration.WithLabelValues(key).Observe(seconds)
	m.attempts.WithLabelValues(key).Observe(float64(attempts))
}
