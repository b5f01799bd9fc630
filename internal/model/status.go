package model

// Snapshot status constants. A snapshot moves Pending -> InProgress ->
// Completed or Failed exactly once and never regresses.
const (
	SnapshotPending    = "pending"
	SnapshotInProgress = "in_progress"
	SnapshotCompleted  = "completed"
	SnapshotFailed     = "failed"
)

// Replication attempt outcomes.
const (
	AttemptSuccess     = "success"
	AttemptFailed      = "failed"
	AttemptUnreachable = "unreachable"
)

// Target health classifications.
const (
	TargetHealthy     = "healthy"
	TargetDegraded    = "degraded"
	TargetUnreachable = "unreachable"
)

// Component health levels for aggregate reports.
const (
	HealthHealthy  = "healthy"
	HealthDegraded = "degraded"
	HealthCritical = "critical"
)

// Failover states of a recovery point. Empty means no failover attempted.
const (
	FailoverInProgress = "in_progress"
	FailoverComplete   = "complete"
	FailoverPartial    = "partial"
)
