package dbt

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InvocationsTotal counts dbt invocations.
	// Labels: command (run, test, docs, ...), exit_code (0, 1, 2)
	InvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dbtflow",
			Subsystem: "dbt",
			Name:      "invocations_total",
			Help:      "Total number of dbt invocations by command and exit code",
		},
		[]string{"command", "exit_code"},
	)

	// InvocationDuration tracks wall time of dbt invocations.
	InvocationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dbtflow",
			Subsystem: "dbt",
			Name:      "invocation_duration_seconds",
			Help:      "Duration of dbt invocations in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"command"},
	)

	// ArtifactsCaptured counts artifacts recorded in memory instead of disk.
	ArtifactsCaptured = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "dbtflow",
			Subsystem: "dbt",
			Name:      "artifacts_captured_total",
			Help:      "Total number of artifacts captured in memory",
		},
	)
)
