package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/graphvault/graphvault/internal/core"
	"github.com/graphvault/graphvault/internal/model"
)

// newRequest creates a new HTTP request with an optional JSON body.
func newRequest(method, target string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	r := httptest.NewRequest(method, target, &buf)
	r.Header.Set("Content-Type", "application/json")
	return r
}

// newRequestRaw creates a new HTTP request with a raw string body.
func newRequestRaw(method, target, body string) *http.Request {
	r := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

// withChiURLParams adds chi URL parameters to the request context.
func withChiURLParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// decodeErrorResponse parses the JSON error response body into a map.
func decodeErrorResponse(rec *httptest.ResponseRecorder) map[string]string {
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	return body
}

// stubDB implements core.DB over an in-memory graph registry. Writes are
// accepted and dropped; graph lookups are answered from the map.
type stubDB struct {
	graphs map[string]model.Graph
}

func newStubDB() *stubDB {
	return &stubDB{graphs: make(map[string]model.Graph)}
}

func (s *stubDB) Exec(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (s *stubDB) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	return &stubRows{}, nil
}

func (s *stubDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	if strings.Contains(sql, "FROM graphs") && len(args) == 1 {
		if g, ok := s.graphs[args[0].(string)]; ok {
			return &stubRow{scan: func(dest ...any) error {
				*(dest[0].(*string)) = g.ID
				*(dest[1].(*string)) = g.Name
				*(dest[2].(*string)) = g.WorkingDir
				*(dest[3].(*time.Time)) = g.CreatedAt
				return nil
			}}
		}
	}
	return &stubRow{scan: func(...any) error { return pgx.ErrNoRows }}
}

type stubRow struct {
	scan func(dest ...any) error
}

func (r *stubRow) Scan(dest ...any) error { return r.scan(dest...) }

type stubRows struct{}

func (*stubRows) Next() bool                                     { return false }
func (*stubRows) Scan(...any) error                              { return nil }
func (*stubRows) Err() error                                     { return nil }
func (*stubRows) Close()                                         {}
func (*stubRows) CommandTag() pgconn.CommandTag                  { return pgconn.CommandTag{} }
func (*stubRows) FieldDescriptions() []pgconn.FieldDescription   { return nil }
func (*stubRows) RawValues() [][]byte                            { return nil }
func (*stubRows) Values() ([]any, error)                         { return nil, nil }
func (*stubRows) Conn() *pgx.Conn                                { return nil }

// testEnv wires real managers over a stubDB for handler tests.
type testEnv struct {
	db          *stubDB
	graphs      *core.GraphService
	backups     *core.BackupManager
	replication *core.ReplicationManager
	recovery    *core.RecoveryManager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newStubDB()
	graphs := core.NewGraphService(db)
	backups := core.NewBackupManager(db, zerolog.Nop(), t.TempDir(), 7)
	replication := core.NewReplicationManager(db, zerolog.Nop(), backups,
		2*time.Second, 500*time.Millisecond, 10*time.Second)
	recovery := core.NewRecoveryManager(db, zerolog.Nop(), backups, replication, graphs, "strict")
	return &testEnv{db: db, graphs: graphs, backups: backups, replication: replication, recovery: recovery}
}

// addGraph registers a graph with a populated working directory.
func (e *testEnv) addGraph(t *testing.T, graphID string) *core.GraphBackup {
	t.Helper()
	workingDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workingDir, "entities.json"), []byte(`{"nodes": []}`), 0o644))
	e.db.graphs[graphID] = model.Graph{
		ID:         graphID,
		Name:       graphID,
		WorkingDir: workingDir,
		CreatedAt:  time.Now().UTC(),
	}
	gb, err := e.backups.RegisterGraph(graphID)
	require.NoError(t, err)
	return gb
}
