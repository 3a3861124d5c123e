package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "orbital_relayer"

// Metrics holds the relayer's Prometheus collectors.
type Metrics struct {
	DispatchOutcomes *prometheus.CounterVec
	StartupAttempts  *prometheus.CounterVec
	SupervisorState  *prometheus.GaugeVec
	StorageBackend   *prometheus.GaugeVec
	LastSequence     *prometheus.GaugeVec
	DispatchDuration *prometheus.HistogramVec
}

// New registers all collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DispatchOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Dispatched attestations by source chain, method and outcome.",
		}, []string{"chain", "method", "outcome"}),
		StartupAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "startup_attempts_total",
			Help:      "Supervisor startup attempts by result.",
		}, []string{"result"}),
		SupervisorState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "supervisor_state",
			Help:      "1 for the current supervisor state, 0 otherwise.",
		}, []string{"state"}),
		StorageBackend: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "storage_backend",
			Help:      "1 for the selected bookkeeping backend, 0 otherwise.",
		}, []string{"backend"}),
		LastSequence: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_sequence",
			Help:      "Last dispatched sequence per source chain.",
		}, []string{"chain"}),
		DispatchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent dispatching one attestation.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"chain"}),
	}
}

// SetState marks state as current and clears every other state in states.
func (m *Metrics) SetState(current string, states []string) {
	for _, s := range states {
		v := 0.0
		if s == current {
			v = 1
		}
		m.SupervisorState.WithLabelValues(s).Set(v)
	}
}

// SetBackend marks backend as selected among backends.
func (m *Metrics) SetBackend(current string, backends []string) {
	for _, b := range backends {
		v := 0.0
		if b == current {
			v = 1
		}
		m.StorageBackend.WithLabelValues(b).Set(v)
	}
}
