package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the attestation module.
// Registers into the default Prometheus registry; construct once in the
// composition root. Services treat a nil *Metrics as "metrics disabled",
// which keeps unit tests free of registry collisions.
type Metrics struct {
	ComponentsRegistered prometheus.Counter
	Verifications        *prometheus.CounterVec
	TamperDetected       prometheus.Counter
	Repairs              *prometheus.CounterVec
	VerifyAllDuration    prometheus.Histogram
}

// New creates a new Metrics instance with all attestation module metrics registered.
func New() *Metrics {
	return &Metrics{
		ComponentsRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attestor_components_registered_total",
			Help: "Total number of components registered",
		}),
		Verifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attestor_verifications_total",
			Help: "Total number of component verifications by result",
		}, []string{"result"}),
		TamperDetected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attestor_tamper_detected_total",
			Help: "Total number of failed signature checks",
		}),
		Repairs: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attestor_repairs_total",
			Help: "Total number of repair attempts by outcome",
		}, []string{"outcome"}),
		VerifyAllDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "attestor_verify_all_duration_seconds",
			Help:    "Duration of full verification sweeps",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncrementComponentsRegistered records a successful registration.
func (m *Metrics) IncrementComponentsRegistered() {
	if m == nil {
		return
	}
	m.ComponentsRegistered.Inc()
}

// ObserveVerification records a verification result ("valid", "invalid",
// or "unknown_component").
func (m *Metrics) ObserveVerification(result string) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(result).Inc()
}

// IncrementTamperDetected records a failed signature check.
func (m *Metrics) IncrementTamperDetected() {
	if m == nil {
		return
	}
	m.TamperDetected.Inc()
}

// ObserveRepair records a repair attempt outcome ("repaired", "failed",
// or "exhausted").
func (m *Metrics) ObserveRepair(outcome string) {
	if m == nil {
		return
	}
	m.Repairs.WithLabelValues(outcome).Inc()
}

// ObserveVerifyAll records the duration of a full sweep.
// Call with time.Now() at the start of the sweep.
func (m *Metrics) ObserveVerifyAll(start time.Time) {
	if m == nil {
		return
	}
	m.VerifyAllDuration.Observe(time.Since(start).Seconds())
}
