package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// EscrowMetrics counts escrow lifecycle transitions.
type EscrowMetrics struct {
	holdsCreated  *prometheus.CounterVec
	releases      *prometheus.CounterVec
	sweepFailures prometheus.Counter
}

// NewEscrowMetrics registers the escrow counters on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewEscrowMetrics(reg prometheus.Registerer) *EscrowMetrics {
	if reg == nil {
		return &EscrowMetrics{}
	}
	holdsCreated := counterVec("escrow", "holds_created_total", "Escrow holds created, by resulting status.", "status")
	releases := counterVec("escrow", "releases_total", "Escrow releases, by source and payout outcome.", "source", "outcome")
	sweepFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "escrow",
		Name:      "sweep_entry_failures_total",
		Help:      "Sweep entries that could not be released or paid.",
	})
	reg.MustRegister(holdsCreated, releases, sweepFailures)
	return &EscrowMetrics{
		holdsCreated:  holdsCreated,
		releases:      releases,
		sweepFailures: sweepFailures,
	}
}

// HoldCreated counts a new hold in the status it ended up in.
func (m *EscrowMetrics) HoldCreated(status string) {
	if m == nil || m.holdsCreated == nil {
		return
	}
	m.holdsCreated.WithLabelValues(normalizeLabel(status)).Inc()
}

// Released counts a completed release.
func (m *EscrowMetrics) Released(source, outcome string) {
	if m == nil || m.releases == nil {
		return
	}
	m.releases.WithLabelValues(normalizeLabel(source), normalizeLabel(outcome)).Inc()
}

// SweepFailure counts a failed sweep entry.
func (m *EscrowMetrics) SweepFailure() {
	if m == nil || m.sweepFailures == nil {
		return
	}
	m.sweepFailures.Inc()
}
