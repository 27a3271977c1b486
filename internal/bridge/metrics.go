package bridge

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the bridge's Prometheus collectors.
//
// Naming follows Prometheus conventions: lpa_bridge_ prefix, _total suffix
// for counters, _seconds suffix for durations.
type Metrics struct {
	RequestsTotal     *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	LockWait          prometheus.Histogram
	CallbacksTotal    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg when non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lpa_bridge_requests_total",
				Help: "Total number of bridge requests by endpoint and outcome.",
			},
			[]string{"endpoint", "outcome"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lpa_bridge_operation_duration_seconds",
				Help:    "Time handlers spent inside the exclusive section per endpoint, excluding lock wait.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"endpoint"},
		),
		LockWait: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lpa_bridge_lock_wait_seconds",
				Help:    "Time requests waited to enter the exclusive section.",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 30, 60},
			},
		),
		CallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lpa_bridge_callbacks_total",
				Help: "Download progress callbacks by outcome.",
			},
			[]string{"outcome"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.RequestsTotal, m.OperationDuration, m.LockWait, m.CallbacksTotal)
	}
	return m
}

// RecordRequest counts a finished request.
func (m *Metrics) RecordRequest(endpoint, outcome string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(endpoint, outcome).Inc()
}

// RecordDuration records how long a handler ran once it held the exclusive
// section.
func (m *Metrics) RecordDuration(endpoint string, d time.Duration) {
	if m == nil {
		return
	}
	m.OperationDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// RecordLockWait records how long a caller waited for the exclusive section.
func (m *Metrics) RecordLockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.LockWait.Observe(d.Seconds())
}

// RecordCallback records one callback delivery attempt.
func (m *Metrics) RecordCallback(outcome string) {
	if m == nil {
		return
	}
	m.CallbacksTotal.WithLabelValues(outcome).Inc()
}
