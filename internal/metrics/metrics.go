// Package metrics exports engine and alarm counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricPrefix = "cellrules_"

	resultSuccess = "success"
	resultError   = "error"
)

// Metrics implements engine.Recorder and alarm.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	passes        *prometheus.CounterVec
	passLatency   *prometheus.HistogramVec
	ruleFirings   *prometheus.CounterVec
	ruleFailures  *prometheus.CounterVec
	timerFirings  *prometheus.CounterVec
	alarmsActive  *prometheus.CounterVec
	notifications *prometheus.CounterVec
}

// New creates the metrics and registers them in a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		passes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "dispatch_passes_total",
				Help: "Total dispatch passes by trigger",
			},
			[]string{"trigger"},
		),
		passLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "dispatch_pass_seconds",
				Help:    "Dispatch pass latency in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"trigger"},
		),
		ruleFirings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "rule_firings_total",
				Help: "Total rule firings by rule",
			},
			[]string{"rule"},
		),
		ruleFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "rule_failures_total",
				Help: "Total rule condition and action failures by rule",
			},
			[]string{"rule"},
		),
		timerFirings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "timer_firings_total",
				Help: "Total timer firings by kind",
			},
			[]string{"kind"},
		),
		alarmsActive: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alarm_activations_total",
				Help: "Total alarm activations by alarm",
			},
			[]string{"alarm"},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alarm_notifications_total",
				Help: "Total alarm notifications by alarm and result",
			},
			[]string{"alarm", "result"},
		),
	}

	m.registry.MustRegister(
		m.passes,
		m.passLatency,
		m.ruleFirings,
		m.ruleFailures,
		m.timerFirings,
		m.alarmsActive,
		m.notifications,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry returns the registry holding the metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) PassCompleted(trigger string, d time.Duration) {
	m.passes.WithLabelValues(trigger).Inc()
	m.passLatency.WithLabelValues(trigger).Observe(d.Seconds())
}

func (m *Metrics) RuleFired(rule string) {
	m.ruleFirings.WithLabelValues(rule).Inc()
}

func (m *Metrics) RuleFailed(rule string) {
	m.ruleFailures.WithLabelValues(rule).Inc()
}

func (m *Metrics) TimerFired(named bool) {
	kind := "callback"
	if named {
		kind = "named"
	}
	m.timerFirings.WithLabelValues(kind).Inc()
}

func (m *Metrics) AlarmActivated(alarm string) {
	m.alarmsActive.WithLabelValues(alarm).Inc()
}

func (m *Metrics) AlarmNotified(alarm string, ok bool) {
	result := resultSuccess
	if !ok {
		result = resultError
	}
	m.notifications.WithLabelValues(alarm, result).Inc()
}
