// Package metrics exposes Prometheus collectors for the credential lifecycle.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const metricPrefix = "tokenkeeper_"

// Metrics holds every collector the service records into. A nil *Metrics is
// valid and records nothing, so services can run without instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	keepAliveTouches *prometheus.CounterVec
	keepAliveLastRun prometheus.Gauge
	alertChecks      *prometheus.CounterVec
	alertDeliveries  *prometheus.CounterVec
	credentialsValid *prometheus.GaugeVec
	storeUnavailable prometheus.Counter
}

// New creates a Metrics instance backed by its own registry. Go runtime and
// process collectors are registered alongside the service collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		keepAliveTouches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "keepalive_touches_total",
				Help: "Keep-alive touches by environment and result",
			},
			[]string{"environment", "result"},
		),
		keepAliveLastRun: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "keepalive_last_run_timestamp_seconds",
				Help: "Unix time of the last completed keep-alive iteration",
			},
		),
		alertChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alert_checks_total",
				Help: "Alert trigger checks by trigger and action taken",
			},
			[]string{"trigger", "action"},
		),
		alertDeliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alert_deliveries_total",
				Help: "Alert notification attempts by trigger and result",
			},
			[]string{"trigger", "result"},
		),
		credentialsValid: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "credentials_valid",
				Help: "1 when the environment's current credentials are valid, 0 otherwise",
			},
			[]string{"environment"},
		),
		storeUnavailable: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "store_unavailable_total",
				Help: "Credential store reads that failed because the backend was unavailable",
			},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.keepAliveTouches,
		m.keepAliveLastRun,
		m.alertChecks,
		m.alertDeliveries,
		m.credentialsValid,
		m.storeUnavailable,
	)

	return m
}

// Registry returns the registry used for the /metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// KeepAliveTouch records the outcome of one keep-alive touch.
func (m *Metrics) KeepAliveTouch(environment string, ok bool) {
	if m == nil {
		return
	}
	m.keepAliveTouches.WithLabelValues(environment, resultLabel(ok)).Inc()
}

// KeepAliveRun records the completion time of a keep-alive iteration.
func (m *Metrics) KeepAliveRun(unixSeconds float64) {
	if m == nil {
		return
	}
	m.keepAliveLastRun.Set(unixSeconds)
}

// AlertCheck records the action a trigger check took.
func (m *Metrics) AlertCheck(trigger, action string) {
	if m == nil {
		return
	}
	m.alertChecks.WithLabelValues(trigger, action).Inc()
}

// AlertDelivery records a notification attempt.
func (m *Metrics) AlertDelivery(trigger string, ok bool) {
	if m == nil {
		return
	}
	m.alertDeliveries.WithLabelValues(trigger, resultLabel(ok)).Inc()
}

// CredentialsValid records the latest validity read for an environment.
func (m *Metrics) CredentialsValid(environment string, valid bool) {
	if m == nil {
		return
	}
	v := 0.0
	if valid {
		v = 1
	}
	m.credentialsValid.WithLabelValues(environment).Set(v)
}

// StoreUnavailable counts a failed store read.
func (m *Metrics) StoreUnavailable() {
	if m == nil {
		return
	}
	m.storeUnavailable.Inc()
}

func resultLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
