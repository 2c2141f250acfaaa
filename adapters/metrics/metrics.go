// Package metrics provides Prometheus metrics collection for the engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds all Prometheus metrics for SIGMOS.
type Collector struct {
	// Execution metrics
	ExecutionsTotal    *prometheus.CounterVec
	ExecutionDuration  *prometheus.HistogramVec
	ExecutionsInFlight prometheus.Gauge

	// Evaluation metrics
	ComputedEvaluations *prometheus.CounterVec
	ConstraintFailures  *prometheus.CounterVec

	// Plugin metrics
	PluginCalls    *prometheus.CounterVec
	PluginDuration *prometheus.HistogramVec

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
}

// New creates a metrics collector registered on its own registry, returned
// alongside so the HTTP adapter can expose it.
func New() (*Collector, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	c := &Collector{
		ExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sigmos",
				Name:      "executions_total",
				Help:      "Total number of spec executions by terminal status",
			},
			[]string{"spec", "status"},
		),
		ExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "sigmos",
				Name:      "execution_duration_seconds",
				Help:      "Execution duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"spec"},
		),
		ExecutionsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "sigmos",
				Name:      "executions_in_flight",
				Help:      "Number of executions currently running",
			},
		),
		ComputedEvaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sigmos",
				Name:      "computed_evaluations_total",
				Help:      "Total computed-field evaluations",
			},
			[]string{"spec"},
		),
		ConstraintFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sigmos",
				Name:      "constraint_failures_total",
				Help:      "Total constraint violations",
			},
			[]string{"spec", "kind"},
		),
		PluginCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sigmos",
				Name:      "plugin_calls_total",
				Help:      "Total plugin method invocations by outcome",
			},
			[]string{"alias", "method", "outcome"},
		),
		PluginDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "sigmos",
				Name:      "plugin_call_duration_seconds",
				Help:      "Plugin call duration in seconds",
				Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"alias", "method"},
		),
		ConfigReloads: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "sigmos",
				Name:      "config_reloads_total",
				Help:      "Total successful configuration reloads",
			},
		),
		ConfigReloadErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "sigmos",
				Name:      "config_reload_errors_total",
				Help:      "Total failed configuration reloads",
			},
		),
	}
	reg.MustRegister(
		c.ExecutionsTotal, c.ExecutionDuration, c.ExecutionsInFlight,
		c.ComputedEvaluations, c.ConstraintFailures,
		c.PluginCalls, c.PluginDuration,
		c.ConfigReloads, c.ConfigReloadErrors,
	)
	return c, reg
}
