package e2e

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestSnapshotLifecycle covers the full backup path against a live API:
// register graph -> create snapshot -> verify metadata -> corrupt the
// working dir -> restore -> verify the original content is back -> delete.
func TestSnapshotLifecycle(t *testing.T) {
	graphID, dir := registerTestGraph(t, "e2e-snap-lifecycle")

	// Create a snapshot of the fixture working dir.
	resp, body := httpPost(t, fmt.Sprintf("%s/graphs/%s/snapshots", apiBaseURL, graphID), map[string]interface{}{
		"labels": map[string]string{"trigger": "e2e"},
	})
	require.Equal(t, 201, resp.StatusCode, "create snapshot: %s", body)
	snap := parseJSON(t, body)
	backupID, _ := snap["backup_id"].(string)
	require.NotEmpty(t, backupID)
	require.Equal(t, "completed", snap["status"])
	require.NotEmpty(t, snap["content_hash"])
	require.Greater(t, snap["size_bytes"].(float64), float64(0))
	t.Logf("created snapshot %s hash=%s", backupID, snap["content_hash"])

	// The snapshot shows up in the listing, newest first.
	resp, body = httpGet(t, fmt.Sprintf("%s/graphs/%s/snapshots", apiBaseURL, graphID))
	require.Equal(t, 200, resp.StatusCode, "list snapshots: %s", body)
	items := parseListItems(t, body)
	require.NotEmpty(t, items)
	require.Equal(t, backupID, items[0]["backup_id"])

	// Clobber a storage file, then restore.
	entitiesPath := filepath.Join(dir, "entities.json")
	require.NoError(t, os.WriteFile(entitiesPath, []byte(`{"corrupted":true}`), 0o644))

	resp, body = httpPost(t, fmt.Sprintf("%s/graphs/%s/snapshots/%s/restore", apiBaseURL, graphID, backupID), nil)
	require.Equal(t, 200, resp.StatusCode, "restore snapshot: %s", body)
	restored := parseJSON(t, body)
	require.Equal(t, "restored", restored["status"])

	content, err := os.ReadFile(entitiesPath)
	require.NoError(t, err)
	require.JSONEq(t, `{"alpha":{"degree":3}}`, string(content))
	t.Logf("restore returned original content")

	// Aggregate stats include the graph.
	resp, body = httpGet(t, apiBaseURL+"/backup/stats")
	require.Equal(t, 200, resp.StatusCode, "stats: %s", body)
	stats := parseJSON(t, body)
	require.GreaterOrEqual(t, stats["total_snapshots"].(float64), float64(1))

	// Delete the snapshot; a second delete reports not found.
	resp, body = httpDelete(t, fmt.Sprintf("%s/graphs/%s/snapshots/%s", apiBaseURL, graphID, backupID))
	require.Equal(t, 204, resp.StatusCode, "delete snapshot: %s", body)
	resp, _ = httpDelete(t, fmt.Sprintf("%s/graphs/%s/snapshots/%s", apiBaseURL, graphID, backupID))
	require.Equal(t, 404, resp.StatusCode)
}

// TestSnapshotRestoreUnknownBackup verifies restoring a backup that never
// existed is a clean 404, not a 500.
func TestSnapshotRestoreUnknownBackup(t *testing.T) {
	graphID, _ := registerTestGraph(t, "e2e-snap-missing")

	resp, body := httpPost(t, fmt.Sprintf("%s/graphs/%s/snapshots/snap_0000000000/restore", apiBaseURL, graphID), nil)
	require.Equal(t, 404, resp.StatusCode, "restore missing: %s", body)
}
