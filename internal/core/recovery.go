package core

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/graphvault/graphvault/internal/config"
	"github.com/graphvault/graphvault/internal/metrics"
	"github.com/graphvault/graphvault/internal/model"
	"github.com/graphvault/graphvault/internal/platform"
)

// RecoveryManager tracks recovery points and drives validation and failover.
// Failover runs are serialized process-wide; everything else proceeds
// concurrently.
type RecoveryManager struct {
	db          DB
	logger      zerolog.Logger
	backups     *BackupManager
	replication *ReplicationManager
	graphs      GraphDirectory
	policy      string

	mu     sync.RWMutex
	points map[string]*model.RecoveryPoint

	// failoverMu serializes failover runs across all checkpoints.
	failoverMu       sync.Mutex
	failoverActive   bool
	failoverActiveMu sync.Mutex
}

func NewRecoveryManager(db DB, logger zerolog.Logger, backups *BackupManager, replication *ReplicationManager, graphs GraphDirectory, policy string) *RecoveryManager {
	return &RecoveryManager{
		db:          db,
		logger:      logger.With().Str("component", "recovery-manager").Logger(),
		backups:     backups,
		replication: replication,
		graphs:      graphs,
		policy:      policy,
		points:      make(map[string]*model.RecoveryPoint),
	}
}

// CreateRecoveryPoint records a named checkpoint over a set of graphs. The
// point starts unvalidated; it asserts nothing until a validation pass
// succeeds.
func (m *RecoveryManager) CreateRecoveryPoint(ctx context.Context, graphIDs []string, description string) (*model.RecoveryPoint, error) {
	if len(graphIDs) == 0 {
		return nil, &PreconditionError{Reason: "recovery point requires at least one graph"}
	}
	for _, id := range graphIDs {
		ok, err := m.graphs.GraphExists(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("check graph %s: %w", id, err)
		}
		if !ok {
			return nil, &NotFoundError{Resource: "graph", ID: id}
		}
	}

	point := &model.RecoveryPoint{
		CheckpointID: platform.NewName("cp_"),
		GraphIDs:     append([]string(nil), graphIDs...),
		Description:  description,
		CreatedAt:    time.Now().UTC(),
	}

	m.mu.Lock()
	m.points[point.CheckpointID] = point
	m.mu.Unlock()

	if _, err := m.db.Exec(ctx,
		`INSERT INTO recovery_points (id, graph_ids, description, validated, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		point.CheckpointID, point.GraphIDs, point.Description, point.Validated, point.CreatedAt,
	); err != nil {
		m.logger.Warn().Err(err).Str("checkpoint_id", point.CheckpointID).Msg("failed to persist recovery point")
	}

	m.logger.Info().
		Str("checkpoint_id", point.CheckpointID).
		Strs("graph_ids", graphIDs).
		Msg("recovery point created")
	cp := *point
	return &cp, nil
}

// GetRecoveryPoint returns one recovery point by ID.
func (m *RecoveryManager) GetRecoveryPoint(checkpointID string) (*model.RecoveryPoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	point, ok := m.points[checkpointID]
	if !ok {
		return nil, &NotFoundError{Resource: "recovery point", ID: checkpointID}
	}
	cp := *point
	return &cp, nil
}

// ListRecoveryPoints returns every recovery point, newest first.
func (m *RecoveryManager) ListRecoveryPoints() []model.RecoveryPoint {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.RecoveryPoint, 0, len(m.points))
	for _, p := range m.points {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// DeleteRecoveryPoint removes a checkpoint. Deletion is blocked while a
// failover is running anywhere; the active run may be reading the point.
func (m *RecoveryManager) DeleteRecoveryPoint(ctx context.Context, checkpointID string) error {
	if m.FailoverInProgress() {
		return &ConflictError{Reason: "cannot delete a recovery point while a failover is in progress"}
	}

	m.mu.Lock()
	if _, ok := m.points[checkpointID]; !ok {
		m.mu.Unlock()
		return &NotFoundError{Resource: "recovery point", ID: checkpointID}
	}
	delete(m.points, checkpointID)
	m.mu.Unlock()

	if _, err := m.db.Exec(ctx, `DELETE FROM recovery_points WHERE id = $1`, checkpointID); err != nil {
		m.logger.Warn().Err(err).Str("checkpoint_id", checkpointID).Msg("failed to delete recovery point record")
	}

	m.logger.Info().Str("checkpoint_id", checkpointID).Msg("recovery point deleted")
	return nil
}

// ValidateRecoveryPoint checks every graph in the point against live backup
// and replication state. Graphs are validated concurrently. A point that
// passes is marked validated; the flag is sticky and a later failing pass
// only reports findings, it never revokes it.
func (m *RecoveryManager) ValidateRecoveryPoint(ctx context.Context, checkpointID string) (*model.ValidationResult, error) {
	m.mu.RLock()
	point, ok := m.points[checkpointID]
	m.mu.RUnlock()
	if !ok {
		return nil, &NotFoundError{Resource: "recovery point", ID: checkpointID}
	}

	findings := make([][]model.ValidationFinding, len(point.GraphIDs))
	g, gctx := errgroup.WithContext(ctx)
	for i, graphID := range point.GraphIDs {
		g.Go(func() error {
			findings[i] = m.validateGraph(gctx, graphID)
			return nil
		})
	}
	g.Wait()

	result := &model.ValidationResult{CheckpointID: checkpointID, Valid: true}
	for _, fs := range findings {
		for _, f := range fs {
			result.Findings = append(result.Findings, f)
			if f.Status == model.HealthCritical {
				result.Valid = false
			}
		}
	}

	if result.Valid {
		now := time.Now().UTC()
		m.mu.Lock()
		point.Validated = true
		point.ValidatedAt = &now
		m.mu.Unlock()

		if _, err := m.db.Exec(ctx,
			`UPDATE recovery_points SET validated = TRUE, validated_at = $1 WHERE id = $2`,
			now, checkpointID,
		); err != nil {
			m.logger.Warn().Err(err).Str("checkpoint_id", checkpointID).Msg("failed to persist validation")
		}
	}

	m.logger.Info().
		Str("checkpoint_id", checkpointID).
		Bool("valid", result.Valid).
		Int("findings", len(result.Findings)).
		Msg("recovery point validated")
	return result, nil
}

// validateGraph checks one graph's recoverability: it must hold an intact
// completed snapshot, and its replication targets must not be uniformly
// unreachable. The replication check downgrades to a warning under the warn
// policy.
func (m *RecoveryManager) validateGraph(ctx context.Context, graphID string) []model.ValidationFinding {
	var findings []model.ValidationFinding

	gb, err := m.backups.GraphBackup(graphID)
	if err != nil {
		return append(findings, model.ValidationFinding{
			GraphID: graphID,
			Status:  model.HealthCritical,
			Reason:  "graph has no backup registry",
		})
	}

	snap, err := gb.LatestCompleted()
	if err != nil {
		return append(findings, model.ValidationFinding{
			GraphID: graphID,
			Status:  model.HealthCritical,
			Reason:  "no completed snapshot available",
		})
	}

	hash, err := hashTree(snap.StoragePath)
	if err != nil || hash != snap.ContentHash {
		reason := fmt.Sprintf("snapshot %s failed integrity verification", snap.BackupID)
		if err != nil {
			reason = fmt.Sprintf("snapshot %s unreadable: %v", snap.BackupID, err)
		}
		return append(findings, model.ValidationFinding{
			GraphID: graphID,
			Status:  model.HealthCritical,
			Reason:  reason,
		})
	}

	replicator := m.replication.Replicator(graphID)
	health := replicator.CheckAllHealth(ctx)
	if len(health) == 0 {
		return append(findings, model.ValidationFinding{
			GraphID: graphID,
			Status:  model.HealthDegraded,
			Reason:  "no replication targets attached",
		})
	}

	reachable := 0
	var unreachable []string
	for _, h := range health {
		if h.Status != model.TargetUnreachable {
			reachable++
		} else {
			unreachable = append(unreachable, h.TargetID)
		}
	}
	if reachable == 0 {
		status := model.HealthCritical
		if m.policy == config.ValidationPolicyWarn {
			status = model.HealthDegraded
		}
		sort.Strings(unreachable)
		findings = append(findings, model.ValidationFinding{
			GraphID: graphID,
			Status:  status,
			Reason:  "all replication targets unreachable: " + strings.Join(unreachable, ", "),
		})
	}
	return findings
}

// HealthCheck reports per-graph recoverability for every graph named by any
// recovery point, plus the overall failover state.
func (m *RecoveryManager) HealthCheck(ctx context.Context) []model.ComponentHealth {
	m.mu.RLock()
	graphSet := make(map[string]bool)
	for _, p := range m.points {
		for _, id := range p.GraphIDs {
			graphSet[id] = true
		}
	}
	m.mu.RUnlock()

	graphIDs := make([]string, 0, len(graphSet))
	for id := range graphSet {
		graphIDs = append(graphIDs, id)
	}
	sort.Strings(graphIDs)

	now := time.Now().UTC()
	out := make([]model.ComponentHealth, 0, len(graphIDs)+1)
	for _, graphID := range graphIDs {
		ch := model.ComponentHealth{
			Component: "graph/" + graphID,
			Status:    model.HealthHealthy,
			LastCheck: now,
		}
		for _, f := range m.validateGraph(ctx, graphID) {
			if f.Status == model.HealthCritical {
				ch.Status = model.HealthCritical
				ch.Message = f.Reason
				break
			}
			ch.Status = model.HealthDegraded
			ch.Message = f.Reason
		}
		out = append(out, ch)
	}

	failover := model.ComponentHealth{
		Component: "failover",
		Status:    model.HealthHealthy,
		LastCheck: now,
	}
	if m.FailoverInProgress() {
		failover.Status = model.HealthDegraded
		failover.Message = "failover in progress"
	}
	return append(out, failover)
}

// InitiateFailover restores every unhealthy graph in a validated recovery
// point from its latest completed snapshot. Only one failover may run at a
// time across all checkpoints; a second call while one is active is
// rejected rather than queued.
func (m *RecoveryManager) InitiateFailover(ctx context.Context, checkpointID string) (*model.FailoverResult, error) {
	point, err := m.GetRecoveryPoint(checkpointID)
	if err != nil {
		return nil, err
	}
	if !point.Validated {
		return nil, &PreconditionError{
			Reason: fmt.Sprintf("recovery point %s has not been validated", checkpointID),
		}
	}

	if !m.failoverMu.TryLock() {
		return nil, &ConflictError{Reason: "a failover is already in progress"}
	}
	defer m.failoverMu.Unlock()

	m.setFailoverActive(true)
	defer m.setFailoverActive(false)
	m.setFailoverState(ctx, checkpointID, model.FailoverInProgress)

	m.logger.Info().Str("checkpoint_id", checkpointID).Msg("failover started")

	result := &model.FailoverResult{CheckpointID: checkpointID}
	failed := 0
	for _, graphID := range point.GraphIDs {
		action := m.failoverGraph(ctx, graphID)
		result.Actions = append(result.Actions, action)
		if action.Error != "" {
			failed++
		}
	}

	result.State = model.FailoverComplete
	if failed > 0 {
		result.State = model.FailoverPartial
	}
	m.setFailoverState(ctx, checkpointID, result.State)
	metrics.Failovers.WithLabelValues(result.State).Inc()

	m.logger.Info().
		Str("checkpoint_id", checkpointID).
		Str("state", result.State).
		Int("graphs", len(result.Actions)).
		Int("failed", failed).
		Msg("failover finished")
	return result, nil
}

// failoverGraph restores one graph's working directory from its latest
// completed snapshot. A graph whose working directory is already intact is
// skipped.
func (m *RecoveryManager) failoverGraph(ctx context.Context, graphID string) model.FailoverAction {
	action := model.FailoverAction{GraphID: graphID}

	workingDir, err := m.graphs.WorkingDir(ctx, graphID)
	if err != nil {
		action.Error = fmt.Sprintf("resolve working dir: %v", err)
		return action
	}

	gb, err := m.backups.GraphBackup(graphID)
	if err != nil {
		action.Error = "graph has no backup registry"
		return action
	}
	snap, err := gb.LatestCompleted()
	if err != nil {
		action.Error = "no completed snapshot available"
		return action
	}
	action.BackupID = snap.BackupID

	if hash, err := hashTree(workingDir); err == nil && hash == snap.ContentHash {
		action.Skipped = true
		return action
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		m.logger.Warn().Err(err).Str("graph_id", graphID).Msg("working dir unreadable, restoring")
	}

	if err := gb.RestoreSnapshot(ctx, snap.BackupID, workingDir); err != nil {
		action.Error = err.Error()
		return action
	}
	action.Restored = true
	return action
}

// Status summarizes the recovery subsystem.
func (m *RecoveryManager) Status() model.RecoveryStatus {
	points := m.ListRecoveryPoints()

	status := model.RecoveryStatus{
		TotalCheckpoints:   len(points),
		FailoverInProgress: m.FailoverInProgress(),
	}
	for _, p := range points {
		if p.Validated {
			status.ValidatedCheckpoints++
		}
	}
	if len(points) > 0 {
		status.LatestCheckpointID = points[0].CheckpointID
		t := points[0].CreatedAt
		status.LatestCheckpointTime = &t
	}
	return status
}

// FailoverInProgress reports whether a failover run is currently active.
func (m *RecoveryManager) FailoverInProgress() bool {
	m.failoverActiveMu.Lock()
	defer m.failoverActiveMu.Unlock()
	return m.failoverActive
}

func (m *RecoveryManager) setFailoverActive(active bool) {
	m.failoverActiveMu.Lock()
	m.failoverActive = active
	m.failoverActiveMu.Unlock()
}

func (m *RecoveryManager) setFailoverState(ctx context.Context, checkpointID, state string) {
	m.mu.Lock()
	if p, ok := m.points[checkpointID]; ok {
		p.FailoverState = state
	}
	m.mu.Unlock()

	if _, err := m.db.Exec(ctx,
		`UPDATE recovery_points SET failover_state = $1 WHERE id = $2`, state, checkpointID,
	); err != nil {
		m.logger.Warn().Err(err).Str("checkpoint_id", checkpointID).Msg("failed to persist failover state")
	}
}

// LoadState rebuilds the recovery-point registry from the database.
func (m *RecoveryManager) LoadState(ctx context.Context) error {
	rows, err := m.db.Query(ctx,
		`SELECT id, graph_ids, description, validated, validated_at, failover_state, created_at
		 FROM recovery_points`)
	if err != nil {
		return fmt.Errorf("load recovery points: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var p model.RecoveryPoint
		var failoverState *string
		if err := rows.Scan(&p.CheckpointID, &p.GraphIDs, &p.Description, &p.Validated,
			&p.ValidatedAt, &failoverState, &p.CreatedAt); err != nil {
			return fmt.Errorf("scan recovery point: %w", err)
		}
		if failoverState != nil {
			p.FailoverState = *failoverState
		}
		point := p
		m.mu.Lock()
		m.points[point.CheckpointID] = &point
		m.mu.Unlock()
		count++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate recovery points: %w", err)
	}

	m.logger.Info().Int("recovery_points", count).Msg("recovery state loaded")
	return nil
}
