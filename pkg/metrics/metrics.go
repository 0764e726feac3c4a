// Package metrics holds the Prometheus collectors of the escrow binaries.
// Every recorder is nil-safe so callers may run without metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "tixmarket"

func counterVec(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
