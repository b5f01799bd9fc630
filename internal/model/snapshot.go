package model

import "time"

// Snapshot is an immutable, integrity-hashed point-in-time copy of a graph's
// working directory.
type Snapshot struct {
	BackupID       string            `json:"backup_id"`
	GraphID        string            `json:"graph_id"`
	Status         string            `json:"status"`
	StoragePath    string            `json:"storage_path,omitempty"`
	ContentHash    string            `json:"content_hash,omitempty"`
	SizeBytes      int64             `json:"size_bytes"`
	RetentionDays  int               `json:"retention_days"`
	RetentionUntil time.Time         `json:"retention_until"`
	CreatedAt      time.Time         `json:"created_at"`
	Labels         map[string]string `json:"labels,omitempty"`
	ErrorMessage   string            `json:"error_message,omitempty"`
}

// Expired reports whether the snapshot's retention window has passed.
func (s *Snapshot) Expired(now time.Time) bool {
	return now.After(s.RetentionUntil)
}

// Restorable reports whether the snapshot may be restored or replicated.
// Only completed snapshots qualify.
func (s *Snapshot) Restorable() bool {
	return s.Status == SnapshotCompleted
}

// GraphBackupStats summarizes the snapshots held for one graph.
type GraphBackupStats struct {
	GraphID          string     `json:"graph_id"`
	TotalSnapshots   int        `json:"total_snapshots"`
	TotalSizeBytes   int64      `json:"total_size_bytes"`
	ExpiredSnapshots int        `json:"expired_snapshots"`
	OldestSnapshot   *time.Time `json:"oldest_snapshot,omitempty"`
	NewestSnapshot   *time.Time `json:"newest_snapshot,omitempty"`
}

// BackupStats aggregates snapshot statistics across all graphs.
type BackupStats struct {
	TotalGraphs    int                `json:"total_graphs"`
	TotalSnapshots int                `json:"total_snapshots"`
	TotalSizeBytes int64              `json:"total_size_bytes"`
	Graphs         []GraphBackupStats `json:"graphs"`
}
