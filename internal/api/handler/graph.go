package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/graphvault/graphvault/internal/api/request"
	"github.com/graphvault/graphvault/internal/api/response"
	"github.com/graphvault/graphvault/internal/core"
	"github.com/graphvault/graphvault/internal/model"
)

type Graph struct {
	svc     *core.GraphService
	backups *core.BackupManager
}

func NewGraph(svc *core.GraphService, backups *core.BackupManager) *Graph {
	return &Graph{svc: svc, backups: backups}
}

func (h *Graph) Register(w http.ResponseWriter, r *http.Request) {
	var req request.RegisterGraph
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	graph := &model.Graph{
		ID:         req.ID,
		Name:       req.Name,
		WorkingDir: req.WorkingDir,
		CreatedAt:  time.Now().UTC(),
	}
	if err := h.svc.Create(r.Context(), graph); err != nil {
		writeError(w, err)
		return
	}
	if _, err := h.backups.RegisterGraph(graph.ID); err != nil {
		writeError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusCreated, graph)
}

func (h *Graph) List(w http.ResponseWriter, r *http.Request) {
	graphs, err := h.svc.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	response.WriteList(w, http.StatusOK, graphs, len(graphs))
}

func (h *Graph) Get(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "graphID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	graph, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, graph)
}
