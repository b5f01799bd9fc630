package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/graphvault/graphvault/internal/api/handler"
	mw "github.com/graphvault/graphvault/internal/api/middleware"
	"github.com/graphvault/graphvault/internal/api/response"
	"github.com/graphvault/graphvault/internal/config"
	"github.com/graphvault/graphvault/internal/core"
)

type Server struct {
	router   chi.Router
	logger   zerolog.Logger
	services *core.Services
	corePool *pgxpool.Pool
	cfg      *config.Config
}

func NewServer(logger zerolog.Logger, services *core.Services, corePool *pgxpool.Pool, cfg *config.Config) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		logger:   logger,
		services: services,
		corePool: corePool,
		cfg:      cfg,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)
}

func (s *Server) setupRoutes() {
	// Prometheus metrics endpoint
	s.router.Handle("/metrics", promhttp.Handler())

	// Health check endpoints
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.Auth(s.corePool))

		// Graph registry
		graph := handler.NewGraph(s.services.Graphs, s.services.Backups)
		r.Post("/graphs", graph.Register)
		r.Get("/graphs", graph.List)
		r.Get("/graphs/{graphID}", graph.Get)

		// Snapshots
		backup := handler.NewBackup(s.services.Backups, s.services.Graphs)
		r.Post("/graphs/{graphID}/snapshots", backup.CreateSnapshot)
		r.Get("/graphs/{graphID}/snapshots", backup.ListSnapshots)
		r.Get("/graphs/{graphID}/snapshots/{backupID}", backup.GetSnapshot)
		r.Post("/graphs/{graphID}/snapshots/{backupID}/restore", backup.RestoreSnapshot)
		r.Delete("/graphs/{graphID}/snapshots/{backupID}", backup.DeleteSnapshot)
		r.Post("/backup/cleanup", backup.Cleanup)
		r.Get("/backup/stats", backup.Stats)

		// Replication
		replication := handler.NewReplication(s.services.Replication, s.services.Graphs)
		r.Post("/replication/targets", replication.RegisterTarget)
		r.Get("/replication/targets", replication.ListTargets)
		r.Put("/replication/targets/{targetID}", replication.UpdateTarget)
		r.Delete("/replication/targets/{targetID}", replication.RemoveTarget)
		r.Get("/replication/targets/{targetID}/health", replication.ProbeTarget)
		r.Post("/graphs/{graphID}/replication/targets/{targetID}", replication.AttachTarget)
		r.Delete("/graphs/{graphID}/replication/targets/{targetID}", replication.DetachTarget)
		r.Get("/graphs/{graphID}/replication/status", replication.Status)
		r.Get("/graphs/{graphID}/replication/attempts", replication.RecentAttempts)
		r.Post("/graphs/{graphID}/snapshots/{backupID}/replicate", replication.Replicate)

		// Recovery
		recovery := handler.NewRecovery(s.services.Recovery)
		r.Post("/recovery/checkpoints", recovery.CreateCheckpoint)
		r.Get("/recovery/checkpoints", recovery.ListCheckpoints)
		r.Get("/recovery/checkpoints/{checkpointID}", recovery.GetCheckpoint)
		r.Delete("/recovery/checkpoints/{checkpointID}", recovery.DeleteCheckpoint)
		r.Post("/recovery/checkpoints/{checkpointID}/validate", recovery.ValidateCheckpoint)
		r.Post("/recovery/checkpoints/{checkpointID}/failover", recovery.InitiateFailover)
		r.Get("/recovery/health", recovery.Health)
		r.Get("/recovery/status", recovery.Status)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	response.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.corePool.Ping(r.Context()); err != nil {
		response.WriteError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
