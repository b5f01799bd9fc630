package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/graphvault/graphvault/internal/api/request"
	"github.com/graphvault/graphvault/internal/api/response"
	"github.com/graphvault/graphvault/internal/core"
)

type Backup struct {
	backups *core.BackupManager
	graphs  *core.GraphService
}

func NewBackup(backups *core.BackupManager, graphs *core.GraphService) *Backup {
	return &Backup{backups: backups, graphs: graphs}
}

// graphBackup resolves the snapshot registry for a graph that exists in the
// graph registry, creating the backup registry lazily.
func (h *Backup) graphBackup(r *http.Request) (*core.GraphBackup, string, error) {
	graphID, err := request.RequireID(chi.URLParam(r, "graphID"))
	if err != nil {
		return nil, "", err
	}
	if _, err := h.graphs.GetByID(r.Context(), graphID); err != nil {
		return nil, "", err
	}
	gb, err := h.backups.RegisterGraph(graphID)
	if err != nil {
		return nil, "", err
	}
	return gb, graphID, nil
}

func (h *Backup) CreateSnapshot(w http.ResponseWriter, r *http.Request) {
	gb, graphID, err := h.graphBackup(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req request.CreateSnapshot
	if r.ContentLength > 0 {
		if err := request.Decode(r, &req); err != nil {
			response.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	workingDir, err := h.graphs.WorkingDir(r.Context(), graphID)
	if err != nil {
		writeError(w, err)
		return
	}

	snap, err := gb.CreateSnapshot(r.Context(), workingDir, req.Labels)
	if err != nil {
		// The failed snapshot record carries the failure detail.
		response.WriteJSON(w, http.StatusInternalServerError, snap)
		return
	}
	response.WriteJSON(w, http.StatusCreated, snap)
}

func (h *Backup) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	gb, _, err := h.graphBackup(r)
	if err != nil {
		writeError(w, err)
		return
	}

	snaps := gb.ListSnapshots()
	response.WriteList(w, http.StatusOK, snaps, len(snaps))
}

func (h *Backup) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	gb, _, err := h.graphBackup(r)
	if err != nil {
		writeError(w, err)
		return
	}

	snap, err := gb.GetSnapshot(chi.URLParam(r, "backupID"))
	if err != nil {
		writeError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, snap)
}

func (h *Backup) RestoreSnapshot(w http.ResponseWriter, r *http.Request) {
	gb, graphID, err := h.graphBackup(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req request.RestoreSnapshot
	if r.ContentLength > 0 {
		if err := request.Decode(r, &req); err != nil {
			response.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	targetDir := req.TargetDir
	if targetDir == "" {
		targetDir, err = h.graphs.WorkingDir(r.Context(), graphID)
		if err != nil {
			writeError(w, err)
			return
		}
	}

	backupID := chi.URLParam(r, "backupID")
	if err := gb.RestoreSnapshot(r.Context(), backupID, targetDir); err != nil {
		writeError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, map[string]string{
		"backup_id":  backupID,
		"target_dir": targetDir,
		"status":     "restored",
	})
}

func (h *Backup) DeleteSnapshot(w http.ResponseWriter, r *http.Request) {
	gb, _, err := h.graphBackup(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := gb.DeleteSnapshot(r.Context(), chi.URLParam(r, "backupID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Backup) Cleanup(w http.ResponseWriter, r *http.Request) {
	var req request.CleanupBackups
	if r.ContentLength > 0 {
		if err := request.Decode(r, &req); err != nil {
			response.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	deleted, err := h.backups.CleanupExpired(r.Context(), req.GraphID)
	if err != nil {
		writeError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

func (h *Backup) Stats(w http.ResponseWriter, r *http.Request) {
	response.WriteJSON(w, http.StatusOK, h.backups.Stats())
}
