// Package metrics contains metrics for rollout attempts.
//
// All methods are safe to be called on nil *Metrics, which records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/opst/rollout/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	// AttemptsTotal counts finished attempts by final state.
	AttemptsTotal *prometheus.CounterVec

	// RetriesTotal counts retried calls by state and error kind.
	RetriesTotal *prometheus.CounterVec

	// AttemptDuration is a histogram of attempt durations.
	AttemptDuration *prometheus.HistogramVec

	// AttemptsInFlight is a gauge of running attempts.
	AttemptsInFlight *prometheus.GaugeVec
}

// New creates metrics and registers them to reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rollout_attempts_total",
				Help: "Total number of finished rollout attempts",
			},
			[]string{"namespace", "workload", "final_state"},
		),
		RetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rollout_retries_total",
				Help: "Total number of retried calls to collaborators",
			},
			[]string{"namespace", "workload", "state", "error_kind"},
		),
		AttemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rollout_attempt_duration_seconds",
				Help:    "Duration of rollout attempts in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200},
			},
			[]string{"namespace", "workload"},
		),
		AttemptsInFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rollout_attempts_in_flight",
				Help: "Number of running rollout attempts",
			},
			[]string{"namespace", "workload"},
		),
	}
	reg.MustRegister(m.AttemptsTotal, m.RetriesTotal, m.AttemptDuration, m.AttemptsInFlight)
	return m
}

// Handler serves metrics gathered by g in the Prometheus exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RecordStart counts a started attempt as in flight.
func (m *Metrics) RecordStart(workload domain.WorkloadKey) {
	if m == nil {
		return
	}
	m.AttemptsInFlight.WithLabelValues(workload.Namespace, workload.Name).Inc()
}

// RecordFinish records a finished attempt.
func (m *Metrics) RecordFinish(workload domain.WorkloadKey, finalState string, d time.Duration) {
	if m == nil {
		return
	}
	m.AttemptsInFlight.WithLabelValues(workload.Namespace, workload.Name).Dec()
	m.AttemptsTotal.WithLabelValues(workload.Namespace, workload.Name, finalState).Inc()
	m.AttemptDuration.WithLabelValues(workload.Namespace, workload.Name).Observe(d.Seconds())
}

// RecordRetry counts a retried call.
func (m *Metrics) RecordRetry(workload domain.WorkloadKey, state string, errorKind string) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(workload.Namespace, workload.Name, state, errorKind).Inc()
}
