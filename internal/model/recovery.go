package model

import "time"

// RecoveryPoint is a named bundle asserting a consistent recoverable state
// across a set of graphs. It stores no foreign keys into snapshots or
// targets; validation always runs against current live state.
type RecoveryPoint struct {
	CheckpointID  string     `json:"checkpoint_id"`
	GraphIDs      []string   `json:"graph_ids"`
	Description   string     `json:"description"`
	Validated     bool       `json:"validated"`
	ValidatedAt   *time.Time `json:"validated_at,omitempty"`
	FailoverState string     `json:"failover_state,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// ComponentHealth is one component's health finding inside an aggregate
// report.
type ComponentHealth struct {
	Component string    `json:"component"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	LastCheck time.Time `json:"last_check"`
}

// ValidationFinding names a graph that failed (or degraded) a recovery-point
// validation pass and why.
type ValidationFinding struct {
	GraphID string `json:"graph_id"`
	Status  string `json:"status"`
	Reason  string `json:"reason"`
}

// ValidationResult is the outcome of validating one recovery point.
type ValidationResult struct {
	CheckpointID string              `json:"checkpoint_id"`
	Valid        bool                `json:"valid"`
	Findings     []ValidationFinding `json:"findings,omitempty"`
}

// FailoverAction records the handling of one graph during failover.
type FailoverAction struct {
	GraphID  string `json:"graph_id"`
	BackupID string `json:"backup_id,omitempty"`
	Restored bool   `json:"restored"`
	Skipped  bool   `json:"skipped"`
	Error    string `json:"error,omitempty"`
}

// FailoverResult is the per-graph outcome of one failover run.
type FailoverResult struct {
	CheckpointID string           `json:"checkpoint_id"`
	State        string           `json:"state"`
	Actions      []FailoverAction `json:"actions"`
}

// RecoveryStatus is the read-only aggregate view of the recovery subsystem.
type RecoveryStatus struct {
	TotalCheckpoints     int        `json:"total_checkpoints"`
	ValidatedCheckpoints int        `json:"validated_checkpoints"`
	FailoverInProgress   bool       `json:"failover_in_progress"`
	LatestCheckpointID   string     `json:"latest_checkpoint_id,omitempty"`
	LatestCheckpointTime *time.Time `json:"latest_checkpoint_time,omitempty"`
}
