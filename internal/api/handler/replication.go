package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/graphvault/graphvault/internal/api/request"
	"github.com/graphvault/graphvault/internal/api/response"
	"github.com/graphvault/graphvault/internal/core"
)

type Replication struct {
	replication *core.ReplicationManager
	graphs      *core.GraphService
}

func NewReplication(replication *core.ReplicationManager, graphs *core.GraphService) *Replication {
	return &Replication{replication: replication, graphs: graphs}
}

func (h *Replication) RegisterTarget(w http.ResponseWriter, r *http.Request) {
	var req request.RegisterTarget
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	target, err := h.replication.RegisterTarget(r.Context(), req.Name, req.BaseURL, req.Credential)
	if err != nil {
		writeError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, target)
}

func (h *Replication) ListTargets(w http.ResponseWriter, r *http.Request) {
	targets := h.replication.ListTargets()
	response.WriteList(w, http.StatusOK, targets, len(targets))
}

func (h *Replication) UpdateTarget(w http.ResponseWriter, r *http.Request) {
	targetID, err := request.RequireID(chi.URLParam(r, "targetID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.UpdateTarget
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	target, err := h.replication.SetTargetEnabled(r.Context(), targetID, *req.Enabled)
	if err != nil {
		writeError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, target)
}

func (h *Replication) RemoveTarget(w http.ResponseWriter, r *http.Request) {
	targetID, err := request.RequireID(chi.URLParam(r, "targetID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.replication.RemoveTarget(r.Context(), targetID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Replication) ProbeTarget(w http.ResponseWriter, r *http.Request) {
	targetID, err := request.RequireID(chi.URLParam(r, "targetID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	health, err := h.replication.ProbeTarget(r.Context(), targetID)
	if err != nil {
		writeError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, health)
}

// replicator resolves the per-graph replicator for a registered graph.
func (h *Replication) replicator(r *http.Request) (*core.GraphReplicator, error) {
	graphID, err := request.RequireID(chi.URLParam(r, "graphID"))
	if err != nil {
		return nil, err
	}
	if _, err := h.graphs.GetByID(r.Context(), graphID); err != nil {
		return nil, err
	}
	return h.replication.Replicator(graphID), nil
}

func (h *Replication) AttachTarget(w http.ResponseWriter, r *http.Request) {
	rep, err := h.replicator(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := rep.AttachTarget(r.Context(), chi.URLParam(r, "targetID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Replication) DetachTarget(w http.ResponseWriter, r *http.Request) {
	rep, err := h.replicator(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := rep.DetachTarget(r.Context(), chi.URLParam(r, "targetID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Status returns the graph's replication summary. With ?probe=true every
// attached target is probed first so the health readings are fresh.
func (h *Replication) Status(w http.ResponseWriter, r *http.Request) {
	rep, err := h.replicator(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if r.URL.Query().Get("probe") == "true" {
		rep.CheckAllHealth(r.Context())
	}
	response.WriteJSON(w, http.StatusOK, rep.Status())
}

func (h *Replication) Replicate(w http.ResponseWriter, r *http.Request) {
	rep, err := h.replicator(r)
	if err != nil {
		writeError(w, err)
		return
	}

	attempts, err := rep.Replicate(r.Context(), chi.URLParam(r, "backupID"))
	if err != nil {
		writeError(w, err)
		return
	}
	response.WriteList(w, http.StatusOK, attempts, len(attempts))
}

func (h *Replication) RecentAttempts(w http.ResponseWriter, r *http.Request) {
	rep, err := h.replicator(r)
	if err != nil {
		writeError(w, err)
		return
	}

	attempts := rep.RecentAttempts(0)
	response.WriteList(w, http.StatusOK, attempts, len(attempts))
}
