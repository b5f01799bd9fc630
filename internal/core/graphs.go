package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/graphvault/graphvault/internal/model"
)

// GraphDirectory resolves graph identifiers to on-disk working directories.
// The backup and recovery managers consume it; GraphService is the
// DB-backed implementation.
type GraphDirectory interface {
	GraphExists(ctx context.Context, graphID string) (bool, error)
	WorkingDir(ctx context.Context, graphID string) (string, error)
}

// GraphService manages the graph registry in the core database.
type GraphService struct {
	db DB
}

func NewGraphService(db DB) *GraphService {
	return &GraphService{db: db}
}

func (s *GraphService) Create(ctx context.Context, graph *model.Graph) error {
	exists, err := s.GraphExists(ctx, graph.ID)
	if err != nil {
		return err
	}
	if exists {
		return &ConflictError{Reason: fmt.Sprintf("graph %s already registered", graph.ID)}
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO graphs (id, name, working_dir, created_at)
		 VALUES ($1, $2, $3, $4)`,
		graph.ID, graph.Name, graph.WorkingDir, graph.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert graph: %w", err)
	}
	return nil
}

func (s *GraphService) GetByID(ctx context.Context, id string) (*model.Graph, error) {
	var g model.Graph
	err := s.db.QueryRow(ctx,
		`SELECT id, name, working_dir, created_at FROM graphs WHERE id = $1`, id,
	).Scan(&g.ID, &g.Name, &g.WorkingDir, &g.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Resource: "graph", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get graph %s: %w", id, err)
	}
	return &g, nil
}

func (s *GraphService) List(ctx context.Context) ([]model.Graph, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, working_dir, created_at FROM graphs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list graphs: %w", err)
	}
	defer rows.Close()

	var graphs []model.Graph
	for rows.Next() {
		var g model.Graph
		if err := rows.Scan(&g.ID, &g.Name, &g.WorkingDir, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan graph: %w", err)
		}
		graphs = append(graphs, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate graphs: %w", err)
	}
	return graphs, nil
}

func (s *GraphService) GraphExists(ctx context.Context, graphID string) (bool, error) {
	_, err := s.GetByID(ctx, graphID)
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *GraphService) WorkingDir(ctx context.Context, graphID string) (string, error) {
	g, err := s.GetByID(ctx, graphID)
	if err != nil {
		return "", err
	}
	return g.WorkingDir, nil
}
