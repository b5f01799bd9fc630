package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/graphvault/graphvault/internal/api/request"
	"github.com/graphvault/graphvault/internal/api/response"
	"github.com/graphvault/graphvault/internal/core"
)

type Recovery struct {
	recovery *core.RecoveryManager
}

func NewRecovery(recovery *core.RecoveryManager) *Recovery {
	return &Recovery{recovery: recovery}
}

func (h *Recovery) CreateCheckpoint(w http.ResponseWriter, r *http.Request) {
	var req request.CreateCheckpoint
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	point, err := h.recovery.CreateRecoveryPoint(r.Context(), req.GraphIDs, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, point)
}

func (h *Recovery) ListCheckpoints(w http.ResponseWriter, r *http.Request) {
	points := h.recovery.ListRecoveryPoints()
	response.WriteList(w, http.StatusOK, points, len(points))
}

func (h *Recovery) GetCheckpoint(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "checkpointID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	point, err := h.recovery.GetRecoveryPoint(id)
	if err != nil {
		writeError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, point)
}

func (h *Recovery) DeleteCheckpoint(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "checkpointID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.recovery.DeleteRecoveryPoint(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Recovery) ValidateCheckpoint(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "checkpointID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.recovery.ValidateRecoveryPoint(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, result)
}

func (h *Recovery) InitiateFailover(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "checkpointID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.recovery.InitiateFailover(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, result)
}

func (h *Recovery) Health(w http.ResponseWriter, r *http.Request) {
	health := h.recovery.HealthCheck(r.Context())
	response.WriteList(w, http.StatusOK, health, len(health))
}

func (h *Recovery) Status(w http.ResponseWriter, r *http.Request) {
	response.WriteJSON(w, http.StatusOK, h.recovery.Status())
}
