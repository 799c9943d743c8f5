// Package metrics defines the prometheus collectors exported by esxigrid.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "esxigrid"
	kindLabel        = "kind"
	operationLabel   = "operation"
	outcomeLabel     = "outcome"
	actionLabel      = "action"
	statusLabel      = "status"
	commandLabel     = "command"
)

// Metrics groups the collectors for one App. Collectors are registered on
// the Registerer passed to New rather than a global registry so tests can
// run side by side.
type Metrics struct {
	providerCalls        *prometheus.CounterVec
	providerCallDuration *prometheus.HistogramVec
	resourceOutcomes     *prometheus.CounterVec
	runDuration          *prometheus.HistogramVec
	lastRunFailures      prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		providerCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "provider_calls_total",
				Help:      "Provider calls by resource kind, operation and outcome."},
			[]string{kindLabel, operationLabel, outcomeLabel},
		),
		providerCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "provider_call_duration_seconds",
				Help:      "Latency of provider calls.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8)},
			[]string{kindLabel, operationLabel},
		),
		resourceOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "resource_outcomes_total",
				Help:      "Per-resource results of reconciliation runs."},
			[]string{actionLabel, statusLabel},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "run_duration_seconds",
				Help:      "Wall-clock duration of reconciliation runs."},
			[]string{commandLabel},
		),
		lastRunFailures: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "last_run_failed_resources",
				Help:      "Number of resources that failed in the most recent run."},
		),
	}
	reg.MustRegister(
		m.providerCalls,
		m.providerCallDuration,
		m.resourceOutcomes,
		m.runDuration,
		m.lastRunFailures,
	)
	return m
}

// ObserveProviderCall records one provider call.
func (m *Metrics) ObserveProviderCall(kind, operation string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.providerCalls.WithLabelValues(kind, operation, outcome).Inc()
	m.providerCallDuration.WithLabelValues(kind, operation).Observe(elapsed.Seconds())
}

// ObserveResource records the result of reconciling one resource.
func (m *Metrics) ObserveResource(action, status string) {
	if m == nil {
		return
	}
	m.resourceOutcomes.WithLabelValues(action, status).Inc()
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(command string, failed int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.WithLabelValues(command).Observe(elapsed.Seconds())
	m.lastRunFailures.Set(float64(failed))
}
