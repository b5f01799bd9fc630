package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphvault/graphvault/internal/model"
)

func newGraphHandler(env *testEnv) *Graph {
	return NewGraph(env.graphs, env.backups)
}

func TestGraphRegister_InvalidJSON(t *testing.T) {
	env := newTestEnv(t)
	h := newGraphHandler(env)

	rec := httptest.NewRecorder()
	r := newRequestRaw(http.MethodPost, "/graphs", "{bad json")

	h.Register(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGraphRegister_MissingRequiredFields(t *testing.T) {
	env := newTestEnv(t)
	h := newGraphHandler(env)

	rec := httptest.NewRecorder()
	r := newRequest(http.MethodPost, "/graphs", map[string]any{})

	h.Register(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeErrorResponse(rec)
	assert.Contains(t, body["error"], "validation error")
}

func TestGraphRegister_Success(t *testing.T) {
	env := newTestEnv(t)
	h := newGraphHandler(env)

	rec := httptest.NewRecorder()
	r := newRequest(http.MethodPost, "/graphs", map[string]any{
		"id":          "graph-a",
		"name":        "Production graph",
		"working_dir": t.TempDir(),
	})

	h.Register(rec, r)

	require.Equal(t, http.StatusCreated, rec.Code)
	var graph model.Graph
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &graph))
	assert.Equal(t, "graph-a", graph.ID)

	// Registration also creates the snapshot registry.
	_, err := env.backups.GraphBackup("graph-a")
	require.NoError(t, err)
}

func TestGraphRegister_Duplicate(t *testing.T) {
	env := newTestEnv(t)
	env.addGraph(t, "graph-a")
	h := newGraphHandler(env)

	rec := httptest.NewRecorder()
	r := newRequest(http.MethodPost, "/graphs", map[string]any{
		"id":          "graph-a",
		"name":        "Duplicate",
		"working_dir": t.TempDir(),
	})

	h.Register(rec, r)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGraphGet_NotFound(t *testing.T) {
	env := newTestEnv(t)
	h := newGraphHandler(env)

	rec := httptest.NewRecorder()
	r := newRequest(http.MethodGet, "/graphs/missing", nil)
	r = withChiURLParams(r, map[string]string{"graphID": "missing"})

	h.Get(rec, r)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
