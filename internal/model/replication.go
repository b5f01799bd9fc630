package model

import "time"

// ReplicationTarget is a remote endpoint registered to receive replicated
// snapshot data. Credential is an opaque bearer token and must never be
// logged or serialized into responses.
type ReplicationTarget struct {
	TargetID   string    `json:"target_id"`
	Name       string    `json:"name"`
	BaseURL    string    `json:"base_url"`
	Credential string    `json:"-"`
	Enabled    bool      `json:"enabled"`
	CreatedAt  time.Time `json:"created_at"`
}

// ReplicationAttempt is the append-only record of one push of one snapshot
// to one target. Never mutated after creation.
type ReplicationAttempt struct {
	AttemptID    string    `json:"attempt_id"`
	GraphID      string    `json:"graph_id"`
	TargetID     string    `json:"target_id"`
	BackupID     string    `json:"backup_id"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// TargetHealth is the derived result of a liveness probe. Superseded on
// every probe, never persisted as a primary entity.
type TargetHealth struct {
	TargetID    string        `json:"target_id"`
	Status      string        `json:"status"`
	Latency     time.Duration `json:"latency"`
	LastChecked time.Time     `json:"last_checked"`
	Detail      string        `json:"detail,omitempty"`
}

// TargetStatus pairs a target with its most recent attempt and health
// reading for per-graph status summaries.
type TargetStatus struct {
	Target      ReplicationTarget   `json:"target"`
	LastAttempt *ReplicationAttempt `json:"last_attempt,omitempty"`
	LastHealth  *TargetHealth       `json:"last_health,omitempty"`
}

// ReplicationStatus summarizes replication for one graph.
type ReplicationStatus struct {
	GraphID        string         `json:"graph_id"`
	TotalTargets   int            `json:"total_targets"`
	EnabledTargets int            `json:"enabled_targets"`
	Targets        []TargetStatus `json:"targets"`
}
