package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SnapshotOperations counts snapshot creations by outcome
	// (completed/failed).
	SnapshotOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphvault_snapshots_total",
			Help: "Total number of snapshot creation attempts by outcome",
		},
		[]string{"status"},
	)

	// SnapshotBytes counts the bytes captured into completed snapshots.
	SnapshotBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "graphvault_snapshot_bytes_total",
			Help: "Total bytes captured into completed snapshots",
		},
	)

	// ReplicationAttempts counts replication pushes by outcome
	// (success/failed/unreachable).
	ReplicationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphvault_replication_attempts_total",
			Help: "Total replication attempts by outcome",
		},
		[]string{"status"},
	)

	// ProbeDuration observes target health probe latency by result.
	ProbeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "graphvault_probe_duration_seconds",
			Help:    "Replication target health probe duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	// Failovers counts failover runs by final state (complete/partial).
	Failovers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphvault_failovers_total",
			Help: "Total failover runs by final state",
		},
		[]string{"state"},
	)
)
