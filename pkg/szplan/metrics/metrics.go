// Package metrics exposes prometheus collectors for resolution, validation and
// capability probing. A nil *Metrics is valid and records nothing, so library
// callers that do not care about metrics pass nil.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeNoDevice = "no_device"
	OutcomeError    = "error"
)

// Metrics groups the szplan collectors.
type Metrics struct {
	resolutions *prometheus.CounterVec
	validations *prometheus.CounterVec
	probes      *prometheus.CounterVec
	devices     prometheus.Gauge
	probeTime   prometheus.Histogram

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg. Passing a fresh
// prometheus.NewRegistry() keeps tests isolated from the default registry.
func New(reg *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "szplan_resolutions_total",
			Help: "Descriptor resolutions by outcome and failure reason",
		}, []string{"outcome", "reason"}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "szplan_validations_total",
			Help: "Configuration validations against a device by outcome",
		}, []string{"outcome"}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "szplan_probes_total",
			Help: "Capability probes by outcome",
		}, []string{"outcome"}),
		devices: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "szplan_devices",
			Help: "Accelerator devices in the last captured snapshot",
		}),
		probeTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "szplan_probe_duration_seconds",
			Help:    "Wall time of a full host and device probe",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		gatherer: reg,
	}

	for _, c := range []prometheus.Collector{m.resolutions, m.validations, m.probes, m.devices, m.probeTime} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveResolution counts one resolution. reason is empty on success.
func (m *Metrics) ObserveResolution(reason string) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if reason != "" {
		outcome = OutcomeRejected
	}
	m.resolutions.WithLabelValues(outcome, reason).Inc()
}

// ObserveValidation counts one validation.
func (m *Metrics) ObserveValidation(ok bool) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if !ok {
		outcome = OutcomeRejected
	}
	m.validations.WithLabelValues(outcome).Inc()
}

// ObserveProbe counts one probe, records its duration and the device count.
func (m *Metrics) ObserveProbe(outcome string, seconds float64, devices int) {
	if m == nil {
		return
	}
	m.probes.WithLabelValues(outcome).Inc()
	m.probeTime.Observe(seconds)
	m.devices.Set(float64(devices))
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
