package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphvault/graphvault/internal/model"
)

func newTestBackupManager(t *testing.T) *BackupManager {
	t.Helper()
	return NewBackupManager(newStubDB(), zerolog.Nop(), t.TempDir(), 7)
}

func TestBackupManager_RegisterGraph_Idempotent(t *testing.T) {
	m := newTestBackupManager(t)

	gb1, err := m.RegisterGraph("graph-a")
	require.NoError(t, err)
	gb2, err := m.RegisterGraph("graph-a")
	require.NoError(t, err)

	assert.Same(t, gb1, gb2)
}

func TestBackupManager_GraphBackup_Unknown(t *testing.T) {
	m := newTestBackupManager(t)

	_, err := m.GraphBackup("missing")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
}

// ---------- CreateSnapshot ----------

func TestGraphBackup_CreateSnapshot_Success(t *testing.T) {
	m := newTestBackupManager(t)
	gb, err := m.RegisterGraph("graph-a")
	require.NoError(t, err)

	src := t.TempDir()
	writeTestTree(t, src, map[string]string{
		"entities.json":        `{"nodes": ["paris"]}`,
		"chunks/chunk-001.txt": "paris is the capital of france",
	})

	snap, err := gb.CreateSnapshot(context.Background(), src, map[string]string{"reason": "nightly"})
	require.NoError(t, err)

	assert.Equal(t, model.SnapshotCompleted, snap.Status)
	assert.Equal(t, "graph-a", snap.GraphID)
	assert.Len(t, snap.ContentHash, 64)
	assert.Positive(t, snap.SizeBytes)
	assert.Equal(t, "nightly", snap.Labels["reason"])
	assert.True(t, snap.RetentionUntil.After(snap.CreatedAt))

	// The published copy must hash to the recorded content hash.
	hash, err := hashTree(snap.StoragePath)
	require.NoError(t, err)
	assert.Equal(t, snap.ContentHash, hash)
}

func TestGraphBackup_CreateSnapshot_MissingSource(t *testing.T) {
	m := newTestBackupManager(t)
	gb, err := m.RegisterGraph("graph-a")
	require.NoError(t, err)

	_, err = gb.CreateSnapshot(context.Background(), filepath.Join(t.TempDir(), "nope"), nil)
	require.Error(t, err)
	assert.Empty(t, gb.ListSnapshots())
}

func TestGraphBackup_CreateSnapshot_FailureLeavesNothingBehind(t *testing.T) {
	m := newTestBackupManager(t)
	gb, err := m.RegisterGraph("graph-a")
	require.NoError(t, err)

	src := t.TempDir()
	writeTestTree(t, src, map[string]string{"a.txt": "alpha", "b.txt": "beta"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	snap, err := gb.CreateSnapshot(ctx, src, nil)
	require.Error(t, err)
	assert.Equal(t, model.SnapshotFailed, snap.Status)
	assert.NotEmpty(t, snap.ErrorMessage)

	// Failed snapshots are never registered and leave no staging debris.
	assert.Empty(t, gb.ListSnapshots())
	entries, err := os.ReadDir(gb.storagePath)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// ---------- RestoreSnapshot ----------

func TestGraphBackup_RestoreSnapshot_RoundTrip(t *testing.T) {
	m := newTestBackupManager(t)
	gb, err := m.RegisterGraph("graph-a")
	require.NoError(t, err)

	src := t.TempDir()
	writeTestTree(t, src, map[string]string{"entities.json": `{"nodes": ["v1"]}`})

	snap, err := gb.CreateSnapshot(context.Background(), src, nil)
	require.NoError(t, err)

	// Mutate the working dir after the snapshot was taken.
	require.NoError(t, os.WriteFile(filepath.Join(src, "entities.json"), []byte(`{"nodes": ["v2"]}`), 0o644))

	require.NoError(t, gb.RestoreSnapshot(context.Background(), snap.BackupID, src))

	data, err := os.ReadFile(filepath.Join(src, "entities.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"nodes": ["v1"]}`, string(data))

	// The pre-restore state is preserved alongside the target.
	aside, err := os.ReadFile(filepath.Join(src+".pre-restore", "entities.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"nodes": ["v2"]}`, string(aside))
}

func TestGraphBackup_RestoreSnapshot_CorruptionDetected(t *testing.T) {
	m := newTestBackupManager(t)
	gb, err := m.RegisterGraph("graph-a")
	require.NoError(t, err)

	src := t.TempDir()
	writeTestTree(t, src, map[string]string{"entities.json": `{"nodes": []}`})

	snap, err := gb.CreateSnapshot(context.Background(), src, nil)
	require.NoError(t, err)

	// Corrupt the stored copy in place.
	require.NoError(t, os.WriteFile(filepath.Join(snap.StoragePath, "entities.json"), []byte("garbage"), 0o644))

	err = gb.RestoreSnapshot(context.Background(), snap.BackupID, filepath.Join(t.TempDir(), "restore"))
	var ie *IntegrityError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, snap.BackupID, ie.BackupID)
}

func TestGraphBackup_RestoreSnapshot_Unknown(t *testing.T) {
	m := newTestBackupManager(t)
	gb, err := m.RegisterGraph("graph-a")
	require.NoError(t, err)

	err = gb.RestoreSnapshot(context.Background(), "snap_missing", t.TempDir())
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
}

// ---------- DeleteSnapshot ----------

func TestGraphBackup_DeleteSnapshot(t *testing.T) {
	m := newTestBackupManager(t)
	gb, err := m.RegisterGraph("graph-a")
	require.NoError(t, err)

	src := t.TempDir()
	writeTestTree(t, src, map[string]string{"a.txt": "alpha"})
	snap, err := gb.CreateSnapshot(context.Background(), src, nil)
	require.NoError(t, err)

	require.NoError(t, gb.DeleteSnapshot(context.Background(), snap.BackupID))

	_, err = gb.GetSnapshot(snap.BackupID)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	_, statErr := os.Stat(snap.StoragePath)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestGraphBackup_DeleteSnapshot_BlockedWhileReferenced(t *testing.T) {
	m := newTestBackupManager(t)
	gb, err := m.RegisterGraph("graph-a")
	require.NoError(t, err)

	src := t.TempDir()
	writeTestTree(t, src, map[string]string{"a.txt": "alpha"})
	snap, err := gb.CreateSnapshot(context.Background(), src, nil)
	require.NoError(t, err)

	_, release, err := gb.AcquireSnapshot(snap.BackupID)
	require.NoError(t, err)

	var conflict *ConflictError
	err = gb.DeleteSnapshot(context.Background(), snap.BackupID)
	require.ErrorAs(t, err, &conflict)

	release()
	require.NoError(t, gb.DeleteSnapshot(context.Background(), snap.BackupID))
}

// ---------- Retention ----------

func TestGraphBackup_CleanupExpired(t *testing.T) {
	m := newTestBackupManager(t)
	gb, err := m.RegisterGraph("graph-a")
	require.NoError(t, err)

	src := t.TempDir()
	writeTestTree(t, src, map[string]string{"a.txt": "alpha"})

	expired, err := gb.CreateSnapshot(context.Background(), src, nil)
	require.NoError(t, err)
	kept, err := gb.CreateSnapshot(context.Background(), src, nil)
	require.NoError(t, err)

	// Age the first snapshot past its retention window.
	gb.regMu.Lock()
	gb.snapshots[expired.BackupID].RetentionUntil = time.Now().UTC().Add(-time.Hour)
	gb.regMu.Unlock()

	deleted, err := m.CleanupExpired(context.Background(), "graph-a")
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = gb.GetSnapshot(expired.BackupID)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	_, err = gb.GetSnapshot(kept.BackupID)
	require.NoError(t, err)
}

// ---------- Stats ----------

func TestBackupManager_Stats(t *testing.T) {
	m := newTestBackupManager(t)
	gbA, err := m.RegisterGraph("graph-a")
	require.NoError(t, err)
	_, err = m.RegisterGraph("graph-b")
	require.NoError(t, err)

	src := t.TempDir()
	writeTestTree(t, src, map[string]string{"a.txt": "alpha"})
	_, err = gbA.CreateSnapshot(context.Background(), src, nil)
	require.NoError(t, err)
	_, err = gbA.CreateSnapshot(context.Background(), src, nil)
	require.NoError(t, err)

	stats := m.Stats()
	assert.Equal(t, 2, stats.TotalGraphs)
	assert.Equal(t, 2, stats.TotalSnapshots)
	assert.Positive(t, stats.TotalSizeBytes)

	require.Len(t, stats.Graphs, 2)
	assert.Equal(t, "graph-a", stats.Graphs[0].GraphID)
	assert.Equal(t, 2, stats.Graphs[0].TotalSnapshots)
	assert.NotNil(t, stats.Graphs[0].NewestSnapshot)
	assert.Equal(t, 0, stats.Graphs[1].TotalSnapshots)
}

func TestGraphBackup_LatestCompleted(t *testing.T) {
	m := newTestBackupManager(t)
	gb, err := m.RegisterGraph("graph-a")
	require.NoError(t, err)

	_, err = gb.LatestCompleted()
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)

	src := t.TempDir()
	writeTestTree(t, src, map[string]string{"a.txt": "alpha"})
	_, err = gb.CreateSnapshot(context.Background(), src, nil)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	second, err := gb.CreateSnapshot(context.Background(), src, nil)
	require.NoError(t, err)

	latest, err := gb.LatestCompleted()
	require.NoError(t, err)
	assert.Equal(t, second.BackupID, latest.BackupID)
}
