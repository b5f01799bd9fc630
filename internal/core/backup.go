package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/graphvault/graphvault/internal/metrics"
	"github.com/graphvault/graphvault/internal/model"
	"github.com/graphvault/graphvault/internal/platform"
)

// BackupManager owns one snapshot registry per graph. Registries are
// created lazily and live for the process lifetime; snapshot metadata is
// written through to the backup_snapshots table so registries can be
// rebuilt on startup.
type BackupManager struct {
	db            DB
	logger        zerolog.Logger
	storagePath   string
	retentionDays int
	archive       *ArchiveService

	mu     sync.RWMutex
	graphs map[string]*GraphBackup
}

func NewBackupManager(db DB, logger zerolog.Logger, storagePath string, retentionDays int) *BackupManager {
	return &BackupManager{
		db:            db,
		logger:        logger.With().Str("component", "backup-manager").Logger(),
		storagePath:   storagePath,
		retentionDays: retentionDays,
		graphs:        make(map[string]*GraphBackup),
	}
}

// SetArchive attaches an optional off-site archive. Completed snapshots are
// uploaded best-effort after publication.
func (m *BackupManager) SetArchive(a *ArchiveService) {
	m.archive = a
}

// RegisterGraph returns the snapshot registry for a graph, creating it if
// needed. Idempotent.
func (m *BackupManager) RegisterGraph(graphID string) (*GraphBackup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gb, ok := m.graphs[graphID]; ok {
		return gb, nil
	}

	dir := filepath.Join(m.storagePath, graphID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create backup storage for graph %s: %w", graphID, err)
	}

	gb := &GraphBackup{
		graphID:       graphID,
		storagePath:   dir,
		retentionDays: m.retentionDays,
		db:            m.db,
		archive:       m.archive,
		logger:        m.logger.With().Str("graph_id", graphID).Logger(),
		snapshots:     make(map[string]*model.Snapshot),
		refs:          make(map[string]int),
	}
	m.graphs[graphID] = gb
	m.logger.Info().Str("graph_id", graphID).Msg("registered graph for backup")
	return gb, nil
}

// GraphBackup returns the registry for a graph, or a NotFoundError if the
// graph was never registered.
func (m *BackupManager) GraphBackup(graphID string) (*GraphBackup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	gb, ok := m.graphs[graphID]
	if !ok {
		return nil, &NotFoundError{Resource: "graph", ID: graphID}
	}
	return gb, nil
}

// CleanupExpired deletes expired completed snapshots. With an empty graphID
// it sweeps every registered graph.
func (m *BackupManager) CleanupExpired(ctx context.Context, graphID string) (int, error) {
	if graphID != "" {
		gb, err := m.GraphBackup(graphID)
		if err != nil {
			return 0, err
		}
		return gb.cleanupExpired(ctx), nil
	}

	m.mu.RLock()
	registries := make([]*GraphBackup, 0, len(m.graphs))
	for _, gb := range m.graphs {
		registries = append(registries, gb)
	}
	m.mu.RUnlock()

	total := 0
	for _, gb := range registries {
		total += gb.cleanupExpired(ctx)
	}
	return total, nil
}

// Stats aggregates snapshot counts and bytes globally and per graph.
func (m *BackupManager) Stats() model.BackupStats {
	m.mu.RLock()
	registries := make([]*GraphBackup, 0, len(m.graphs))
	for _, gb := range m.graphs {
		registries = append(registries, gb)
	}
	m.mu.RUnlock()

	stats := model.BackupStats{TotalGraphs: len(registries)}
	for _, gb := range registries {
		gs := gb.Stats()
		stats.Graphs = append(stats.Graphs, gs)
		stats.TotalSnapshots += gs.TotalSnapshots
		stats.TotalSizeBytes += gs.TotalSizeBytes
	}
	sort.Slice(stats.Graphs, func(i, j int) bool {
		return stats.Graphs[i].GraphID < stats.Graphs[j].GraphID
	})
	return stats
}

// LoadState rebuilds the per-graph registries from the backup_snapshots
// table. Called once at startup before the server accepts requests.
func (m *BackupManager) LoadState(ctx context.Context) error {
	rows, err := m.db.Query(ctx,
		`SELECT id, graph_id, status, storage_path, content_hash, size_bytes,
		        retention_days, retention_until, created_at
		 FROM backup_snapshots WHERE status = $1`, model.SnapshotCompleted)
	if err != nil {
		return fmt.Errorf("load snapshots: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var s model.Snapshot
		if err := rows.Scan(&s.BackupID, &s.GraphID, &s.Status, &s.StoragePath,
			&s.ContentHash, &s.SizeBytes, &s.RetentionDays, &s.RetentionUntil,
			&s.CreatedAt); err != nil {
			return fmt.Errorf("scan snapshot: %w", err)
		}
		gb, err := m.RegisterGraph(s.GraphID)
		if err != nil {
			return err
		}
		snap := s
		gb.regMu.Lock()
		gb.snapshots[snap.BackupID] = &snap
		gb.regMu.Unlock()
		count++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate snapshots: %w", err)
	}

	m.logger.Info().Int("snapshots", count).Msg("backup state loaded")
	return nil
}

// GraphBackup manages the snapshot lifecycle for a single graph. Snapshot
// creation and restore are serialized per graph by opMu; different graphs
// proceed fully in parallel.
type GraphBackup struct {
	graphID       string
	storagePath   string
	retentionDays int
	db            DB
	archive       *ArchiveService
	logger        zerolog.Logger

	// opMu serializes snapshot creation and restore for this graph.
	opMu sync.Mutex

	// regMu guards the snapshot registry and reference counts.
	regMu     sync.RWMutex
	snapshots map[string]*model.Snapshot
	refs      map[string]int
}

// CreateSnapshot captures sourceDir into a new snapshot. The copy is staged
// under a hidden directory and only renamed into place once the hash and
// size are recorded, so a failed capture leaves nothing behind. On failure
// the returned snapshot carries status failed and is not registered.
func (g *GraphBackup) CreateSnapshot(ctx context.Context, sourceDir string, labels map[string]string) (*model.Snapshot, error) {
	g.opMu.Lock()
	defer g.opMu.Unlock()

	if _, err := os.Stat(sourceDir); err != nil {
		return nil, fmt.Errorf("source directory %s: %w", sourceDir, err)
	}

	now := time.Now().UTC()
	snap := &model.Snapshot{
		BackupID:      platform.NewName("snap_"),
		GraphID:       g.graphID,
		Status:        model.SnapshotInProgress,
		RetentionDays: g.retentionDays,
		CreatedAt:     now,
		Labels:        labels,
	}

	staging := filepath.Join(g.storagePath, ".staging-"+snap.BackupID)
	final := filepath.Join(g.storagePath, snap.BackupID)

	publish := func() error {
		if err := copyTree(ctx, sourceDir, staging); err != nil {
			return fmt.Errorf("copy working dir: %w", err)
		}
		hash, err := hashTree(staging)
		if err != nil {
			return fmt.Errorf("hash snapshot: %w", err)
		}
		size, err := treeSize(staging)
		if err != nil {
			return fmt.Errorf("size snapshot: %w", err)
		}
		if err := os.Rename(staging, final); err != nil {
			return fmt.Errorf("publish snapshot: %w", err)
		}
		snap.ContentHash = hash
		snap.SizeBytes = size
		return nil
	}

	if err := publish(); err != nil {
		os.RemoveAll(staging)
		snap.Status = model.SnapshotFailed
		snap.ErrorMessage = err.Error()
		metrics.SnapshotOperations.WithLabelValues(model.SnapshotFailed).Inc()
		g.logger.Error().Err(err).Str("backup_id", snap.BackupID).Msg("snapshot creation failed")
		return snap, err
	}

	snap.Status = model.SnapshotCompleted
	snap.StoragePath = final
	snap.RetentionUntil = now.Add(time.Duration(g.retentionDays) * 24 * time.Hour)

	g.regMu.Lock()
	g.snapshots[snap.BackupID] = snap
	g.regMu.Unlock()

	g.persistSnapshot(ctx, snap)

	metrics.SnapshotOperations.WithLabelValues(model.SnapshotCompleted).Inc()
	metrics.SnapshotBytes.Add(float64(snap.SizeBytes))
	g.logger.Info().
		Str("backup_id", snap.BackupID).
		Int64("size_bytes", snap.SizeBytes).
		Msg("snapshot created")

	if g.archive != nil {
		if err := g.archive.ArchiveSnapshot(ctx, snap); err != nil {
			g.logger.Warn().Err(err).Str("backup_id", snap.BackupID).Msg("off-site archive failed")
		}
	}

	return snap, nil
}

// RestoreSnapshot re-verifies the stored copy's content hash and copies it
// into targetDir. An existing targetDir is moved aside first.
func (g *GraphBackup) RestoreSnapshot(ctx context.Context, backupID, targetDir string) error {
	snap, release, err := g.AcquireSnapshot(backupID)
	if err != nil {
		return err
	}
	defer release()

	g.opMu.Lock()
	defer g.opMu.Unlock()

	hash, err := hashTree(snap.StoragePath)
	if err != nil {
		return fmt.Errorf("verify snapshot %s: %w", backupID, err)
	}
	if hash != snap.ContentHash {
		return &IntegrityError{BackupID: backupID, Expected: snap.ContentHash, Actual: hash}
	}

	if _, err := os.Stat(targetDir); err == nil {
		aside := targetDir + ".pre-restore"
		os.RemoveAll(aside)
		if err := os.Rename(targetDir, aside); err != nil {
			return fmt.Errorf("move existing target aside: %w", err)
		}
		g.logger.Info().Str("path", aside).Msg("pre-restore copy saved")
	}

	if err := copyTree(ctx, snap.StoragePath, targetDir); err != nil {
		return fmt.Errorf("restore snapshot %s: %w", backupID, err)
	}

	g.logger.Info().Str("backup_id", backupID).Str("target", targetDir).Msg("snapshot restored")
	return nil
}

// GetSnapshot returns one snapshot by ID.
func (g *GraphBackup) GetSnapshot(backupID string) (*model.Snapshot, error) {
	g.regMu.RLock()
	defer g.regMu.RUnlock()

	snap, ok := g.snapshots[backupID]
	if !ok {
		return nil, &NotFoundError{Resource: "snapshot", ID: backupID}
	}
	cp := *snap
	return &cp, nil
}

// ListSnapshots returns all snapshots for the graph, newest first.
func (g *GraphBackup) ListSnapshots() []model.Snapshot {
	g.regMu.RLock()
	defer g.regMu.RUnlock()

	out := make([]model.Snapshot, 0, len(g.snapshots))
	for _, s := range g.snapshots {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// LatestCompleted returns the most recent completed snapshot.
func (g *GraphBackup) LatestCompleted() (*model.Snapshot, error) {
	for _, s := range g.ListSnapshots() {
		if s.Restorable() {
			cp := s
			return &cp, nil
		}
	}
	return nil, &NotFoundError{Resource: "completed snapshot for graph", ID: g.graphID}
}

// AcquireSnapshot returns a completed snapshot and takes a reference on it,
// blocking deletion until the returned release func is called. Used by
// restore and by replication pushes.
func (g *GraphBackup) AcquireSnapshot(backupID string) (*model.Snapshot, func(), error) {
	g.regMu.Lock()
	defer g.regMu.Unlock()

	snap, ok := g.snapshots[backupID]
	if !ok || !snap.Restorable() {
		return nil, nil, &NotFoundError{Resource: "snapshot", ID: backupID}
	}
	g.refs[backupID]++

	cp := *snap
	var once sync.Once
	release := func() {
		once.Do(func() {
			g.regMu.Lock()
			defer g.regMu.Unlock()
			if g.refs[backupID] > 1 {
				g.refs[backupID]--
			} else {
				delete(g.refs, backupID)
			}
		})
	}
	return &cp, release, nil
}

// DeleteSnapshot removes a snapshot from the registry and from disk. A
// snapshot referenced by an in-flight restore or replication push is
// protected by a ConflictError.
func (g *GraphBackup) DeleteSnapshot(ctx context.Context, backupID string) error {
	g.regMu.Lock()
	snap, ok := g.snapshots[backupID]
	if !ok {
		g.regMu.Unlock()
		return &NotFoundError{Resource: "snapshot", ID: backupID}
	}
	if g.refs[backupID] > 0 {
		g.regMu.Unlock()
		return &ConflictError{Reason: fmt.Sprintf("snapshot %s is in use by an active restore or replication", backupID)}
	}
	delete(g.snapshots, backupID)
	g.regMu.Unlock()

	if snap.StoragePath != "" {
		if err := os.RemoveAll(snap.StoragePath); err != nil {
			g.logger.Error().Err(err).Str("backup_id", backupID).Msg("failed to remove snapshot files")
		}
	}

	if g.archive != nil {
		if err := g.archive.DeleteArchived(ctx, g.graphID, backupID); err != nil {
			g.logger.Warn().Err(err).Str("backup_id", backupID).Msg("failed to delete archived copy")
		}
	}

	if _, err := g.db.Exec(ctx, `DELETE FROM backup_snapshots WHERE id = $1`, backupID); err != nil {
		g.logger.Warn().Err(err).Str("backup_id", backupID).Msg("failed to delete snapshot record")
	}

	g.logger.Info().Str("backup_id", backupID).Msg("snapshot deleted")
	return nil
}

// cleanupExpired deletes every completed snapshot whose retention window has
// passed. Snapshots with retention in the future are never deleted.
func (g *GraphBackup) cleanupExpired(ctx context.Context) int {
	now := time.Now().UTC()

	g.regMu.RLock()
	var expired []string
	for id, s := range g.snapshots {
		if s.Status == model.SnapshotCompleted && s.Expired(now) {
			expired = append(expired, id)
		}
	}
	g.regMu.RUnlock()

	deleted := 0
	for _, id := range expired {
		if err := g.DeleteSnapshot(ctx, id); err != nil {
			g.logger.Warn().Err(err).Str("backup_id", id).Msg("expired snapshot not deleted")
			continue
		}
		deleted++
	}
	if deleted > 0 {
		g.logger.Info().Int("deleted", deleted).Msg("expired snapshots cleaned up")
	}
	return deleted
}

// Stats summarizes the snapshots held for this graph.
func (g *GraphBackup) Stats() model.GraphBackupStats {
	snaps := g.ListSnapshots()
	now := time.Now().UTC()

	stats := model.GraphBackupStats{GraphID: g.graphID, TotalSnapshots: len(snaps)}
	for _, s := range snaps {
		stats.TotalSizeBytes += s.SizeBytes
		if s.Expired(now) {
			stats.ExpiredSnapshots++
		}
	}
	if len(snaps) > 0 {
		newest := snaps[0].CreatedAt
		oldest := snaps[len(snaps)-1].CreatedAt
		stats.NewestSnapshot = &newest
		stats.OldestSnapshot = &oldest
	}
	return stats
}

// persistSnapshot writes snapshot metadata through to the database. The
// snapshot itself already succeeded; a failed write is logged, not fatal.
func (g *GraphBackup) persistSnapshot(ctx context.Context, snap *model.Snapshot) {
	_, err := g.db.Exec(ctx,
		`INSERT INTO backup_snapshots (id, graph_id, status, storage_path, content_hash,
		                               size_bytes, retention_days, retention_until, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		snap.BackupID, snap.GraphID, snap.Status, snap.StoragePath, snap.ContentHash,
		snap.SizeBytes, snap.RetentionDays, snap.RetentionUntil, snap.CreatedAt,
	)
	if err != nil {
		g.logger.Warn().Err(err).Str("backup_id", snap.BackupID).Msg("failed to persist snapshot metadata")
	}
}
