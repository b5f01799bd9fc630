package core

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/graphvault/graphvault/internal/metrics"
	"github.com/graphvault/graphvault/internal/model"
	"github.com/graphvault/graphvault/internal/platform"
)

// ReplicationManager owns the global target registry and one replicator per
// graph. Target registration is global; graphs opt in by attaching targets
// to their replicator.
type ReplicationManager struct {
	db      DB
	logger  zerolog.Logger
	backups *BackupManager

	httpClient      *http.Client
	healthTimeout   time.Duration
	degradedLatency time.Duration
	transferTimeout time.Duration

	mu          sync.RWMutex
	targets     map[string]*model.ReplicationTarget
	replicators map[string]*GraphReplicator
}

func NewReplicationManager(db DB, logger zerolog.Logger, backups *BackupManager, healthTimeout, degradedLatency, transferTimeout time.Duration) *ReplicationManager {
	return &ReplicationManager{
		db:              db,
		logger:          logger.With().Str("component", "replication-manager").Logger(),
		backups:         backups,
		httpClient:      &http.Client{},
		healthTimeout:   healthTimeout,
		degradedLatency: degradedLatency,
		transferTimeout: transferTimeout,
		targets:         make(map[string]*model.ReplicationTarget),
		replicators:     make(map[string]*GraphReplicator),
	}
}

// RegisterTarget adds a remote endpoint to the global registry. Targets
// start enabled.
func (m *ReplicationManager) RegisterTarget(ctx context.Context, name, baseURL, credential string) (*model.ReplicationTarget, error) {
	target := &model.ReplicationTarget{
		TargetID:   platform.NewName("tgt_"),
		Name:       name,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Credential: credential,
		Enabled:    true,
		CreatedAt:  time.Now().UTC(),
	}

	m.mu.Lock()
	for _, t := range m.targets {
		if t.Name == name {
			m.mu.Unlock()
			return nil, &ConflictError{Reason: fmt.Sprintf("replication target named %q already exists", name)}
		}
	}
	m.targets[target.TargetID] = target
	m.mu.Unlock()

	if _, err := m.db.Exec(ctx,
		`INSERT INTO replication_targets (id, name, base_url, credential, enabled, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		target.TargetID, target.Name, target.BaseURL, target.Credential, target.Enabled, target.CreatedAt,
	); err != nil {
		m.logger.Warn().Err(err).Str("target_id", target.TargetID).Msg("failed to persist replication target")
	}

	m.logger.Info().Str("target_id", target.TargetID).Str("name", name).Msg("replication target registered")
	cp := *target
	return &cp, nil
}

// GetTarget returns one registered target by ID.
func (m *ReplicationManager) GetTarget(targetID string) (*model.ReplicationTarget, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.targets[targetID]
	if !ok {
		return nil, &NotFoundError{Resource: "replication target", ID: targetID}
	}
	cp := *t
	return &cp, nil
}

// ListTargets returns all registered targets sorted by name.
func (m *ReplicationManager) ListTargets() []model.ReplicationTarget {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.ReplicationTarget, 0, len(m.targets))
	for _, t := range m.targets {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SetTargetEnabled toggles a target globally. Disabled targets stay attached
// to graphs but are skipped by replication pushes.
func (m *ReplicationManager) SetTargetEnabled(ctx context.Context, targetID string, enabled bool) (*model.ReplicationTarget, error) {
	m.mu.Lock()
	t, ok := m.targets[targetID]
	if !ok {
		m.mu.Unlock()
		return nil, &NotFoundError{Resource: "replication target", ID: targetID}
	}
	t.Enabled = enabled
	cp := *t
	m.mu.Unlock()

	if _, err := m.db.Exec(ctx,
		`UPDATE replication_targets SET enabled = $1 WHERE id = $2`, enabled, targetID,
	); err != nil {
		m.logger.Warn().Err(err).Str("target_id", targetID).Msg("failed to persist target enablement")
	}

	m.logger.Info().Str("target_id", targetID).Bool("enabled", enabled).Msg("replication target toggled")
	return &cp, nil
}

// RemoveTarget deletes a target from the registry and detaches it from every
// graph that references it.
func (m *ReplicationManager) RemoveTarget(ctx context.Context, targetID string) error {
	m.mu.Lock()
	if _, ok := m.targets[targetID]; !ok {
		m.mu.Unlock()
		return &NotFoundError{Resource: "replication target", ID: targetID}
	}
	delete(m.targets, targetID)
	replicators := make([]*GraphReplicator, 0, len(m.replicators))
	for _, r := range m.replicators {
		replicators = append(replicators, r)
	}
	m.mu.Unlock()

	for _, r := range replicators {
		r.detachLocal(targetID)
	}

	if _, err := m.db.Exec(ctx, `DELETE FROM replication_targets WHERE id = $1`, targetID); err != nil {
		m.logger.Warn().Err(err).Str("target_id", targetID).Msg("failed to delete replication target record")
	}

	m.logger.Info().Str("target_id", targetID).Msg("replication target removed")
	return nil
}

// ProbeTarget runs a liveness probe against a registered target without
// requiring a graph attachment.
func (m *ReplicationManager) ProbeTarget(ctx context.Context, targetID string) (*model.TargetHealth, error) {
	target, err := m.GetTarget(targetID)
	if err != nil {
		return nil, err
	}
	return m.probe(ctx, target), nil
}

// Replicator returns the per-graph replicator, creating it on first use.
func (m *ReplicationManager) Replicator(graphID string) *GraphReplicator {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.replicators[graphID]; ok {
		return r
	}
	r := &GraphReplicator{
		graphID:    graphID,
		mgr:        m,
		logger:     m.logger.With().Str("graph_id", graphID).Logger(),
		attached:   make(map[string]bool),
		lastHealth: make(map[string]*model.TargetHealth),
		recent:     newAttemptRing(recentAttemptCapacity),
	}
	m.replicators[graphID] = r
	return r
}

// LoadState rebuilds the target registry and per-graph attachments from the
// database.
func (m *ReplicationManager) LoadState(ctx context.Context) error {
	rows, err := m.db.Query(ctx,
		`SELECT id, name, base_url, credential, enabled, created_at FROM replication_targets`)
	if err != nil {
		return fmt.Errorf("load replication targets: %w", err)
	}
	for rows.Next() {
		var t model.ReplicationTarget
		if err := rows.Scan(&t.TargetID, &t.Name, &t.BaseURL, &t.Credential, &t.Enabled, &t.CreatedAt); err != nil {
			rows.Close()
			return fmt.Errorf("scan replication target: %w", err)
		}
		target := t
		m.mu.Lock()
		m.targets[target.TargetID] = &target
		m.mu.Unlock()
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate replication targets: %w", err)
	}
	rows.Close()

	rows, err = m.db.Query(ctx, `SELECT graph_id, target_id FROM graph_targets`)
	if err != nil {
		return fmt.Errorf("load graph attachments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var graphID, targetID string
		if err := rows.Scan(&graphID, &targetID); err != nil {
			return fmt.Errorf("scan graph attachment: %w", err)
		}
		r := m.Replicator(graphID)
		r.mu.Lock()
		r.attached[targetID] = true
		r.mu.Unlock()
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate graph attachments: %w", err)
	}

	m.logger.Info().Int("targets", len(m.targets)).Msg("replication state loaded")
	return nil
}

const recentAttemptCapacity = 32

// GraphReplicator pushes one graph's snapshots to its attached targets and
// tracks per-target health and attempt history.
type GraphReplicator struct {
	graphID string
	mgr     *ReplicationManager
	logger  zerolog.Logger

	mu          sync.RWMutex
	attached    map[string]bool
	lastHealth  map[string]*model.TargetHealth
	lastAttempt map[string]*model.ReplicationAttempt
	recent      *attemptRing
}

// AttachTarget subscribes the graph to a globally registered target.
func (r *GraphReplicator) AttachTarget(ctx context.Context, targetID string) error {
	if _, err := r.mgr.GetTarget(targetID); err != nil {
		return err
	}

	r.mu.Lock()
	if r.attached[targetID] {
		r.mu.Unlock()
		return &ConflictError{Reason: fmt.Sprintf("target %s is already attached to graph %s", targetID, r.graphID)}
	}
	r.attached[targetID] = true
	r.mu.Unlock()

	if _, err := r.mgr.db.Exec(ctx,
		`INSERT INTO graph_targets (graph_id, target_id) VALUES ($1, $2)`,
		r.graphID, targetID,
	); err != nil {
		r.logger.Warn().Err(err).Str("target_id", targetID).Msg("failed to persist target attachment")
	}

	r.logger.Info().Str("target_id", targetID).Msg("target attached")
	return nil
}

// DetachTarget unsubscribes the graph from a target. Attempt history is
// retained.
func (r *GraphReplicator) DetachTarget(ctx context.Context, targetID string) error {
	r.mu.Lock()
	if !r.attached[targetID] {
		r.mu.Unlock()
		return &NotFoundError{Resource: "attached target", ID: targetID}
	}
	delete(r.attached, targetID)
	delete(r.lastHealth, targetID)
	r.mu.Unlock()

	if _, err := r.mgr.db.Exec(ctx,
		`DELETE FROM graph_targets WHERE graph_id = $1 AND target_id = $2`,
		r.graphID, targetID,
	); err != nil {
		r.logger.Warn().Err(err).Str("target_id", targetID).Msg("failed to delete target attachment")
	}

	r.logger.Info().Str("target_id", targetID).Msg("target detached")
	return nil
}

func (r *GraphReplicator) detachLocal(targetID string) {
	r.mu.Lock()
	delete(r.attached, targetID)
	delete(r.lastHealth, targetID)
	r.mu.Unlock()
}

// Targets returns the attached targets that still exist in the global
// registry, sorted by name.
func (r *GraphReplicator) Targets() []model.ReplicationTarget {
	r.mu.RLock()
	ids := make([]string, 0, len(r.attached))
	for id := range r.attached {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	out := make([]model.ReplicationTarget, 0, len(ids))
	for _, id := range ids {
		if t, err := r.mgr.GetTarget(id); err == nil {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CheckHealth probes one attached target and records the result.
func (r *GraphReplicator) CheckHealth(ctx context.Context, targetID string) (*model.TargetHealth, error) {
	r.mu.RLock()
	attached := r.attached[targetID]
	r.mu.RUnlock()
	if !attached {
		return nil, &NotFoundError{Resource: "attached target", ID: targetID}
	}

	target, err := r.mgr.GetTarget(targetID)
	if err != nil {
		return nil, err
	}

	health := r.probe(ctx, target)

	r.mu.Lock()
	r.lastHealth[targetID] = health
	r.mu.Unlock()

	cp := *health
	return &cp, nil
}

// CheckAllHealth probes every attached target concurrently. Each probe gets
// its own timeout, so one hanging target cannot delay the others' results.
func (r *GraphReplicator) CheckAllHealth(ctx context.Context) []model.TargetHealth {
	targets := r.Targets()

	results := make([]model.TargetHealth, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range targets {
		g.Go(func() error {
			health := r.probe(gctx, &t)
			results[i] = *health
			r.mu.Lock()
			r.lastHealth[t.TargetID] = health
			r.mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return results
}

func (r *GraphReplicator) probe(ctx context.Context, target *model.ReplicationTarget) *model.TargetHealth {
	return r.mgr.probe(ctx, target)
}

// probe classifies one target: a fast 2xx is healthy, a slow 2xx or any
// non-2xx is degraded, a connection failure is unreachable.
func (m *ReplicationManager) probe(ctx context.Context, target *model.ReplicationTarget) *model.TargetHealth {
	health := &model.TargetHealth{
		TargetID:    target.TargetID,
		LastChecked: time.Now().UTC(),
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, target.BaseURL+"/healthz", nil)
	if err != nil {
		health.Status = model.TargetUnreachable
		health.Detail = err.Error()
		return health
	}
	if target.Credential != "" {
		req.Header.Set("Authorization", "Bearer "+target.Credential)
	}

	start := time.Now()
	resp, err := m.httpClient.Do(req)
	health.Latency = time.Since(start)

	switch {
	case err != nil:
		health.Status = model.TargetUnreachable
		health.Detail = err.Error()
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		health.Status = model.TargetDegraded
		health.Detail = fmt.Sprintf("health endpoint returned %d", resp.StatusCode)
	case health.Latency > m.degradedLatency:
		health.Status = model.TargetDegraded
		health.Detail = fmt.Sprintf("health probe took %s", health.Latency.Round(time.Millisecond))
	default:
		health.Status = model.TargetHealthy
	}
	if resp != nil {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}

	metrics.ProbeDuration.WithLabelValues(health.Status).Observe(health.Latency.Seconds())
	return health
}

// Replicate pushes one completed snapshot to every enabled attached target
// concurrently. Each target yields exactly one attempt record; one target
// failing never aborts the others. The snapshot is reference-held for the
// duration so it cannot be deleted mid-transfer.
func (r *GraphReplicator) Replicate(ctx context.Context, backupID string) ([]model.ReplicationAttempt, error) {
	gb, err := r.mgr.backups.GraphBackup(r.graphID)
	if err != nil {
		return nil, err
	}
	snap, release, err := gb.AcquireSnapshot(backupID)
	if err != nil {
		return nil, err
	}
	defer release()

	var targets []model.ReplicationTarget
	for _, t := range r.Targets() {
		if t.Enabled {
			targets = append(targets, t)
		}
	}
	if len(targets) == 0 {
		return nil, &PreconditionError{Reason: fmt.Sprintf("graph %s has no enabled replication targets", r.graphID)}
	}

	attempts := make([]model.ReplicationAttempt, len(targets))
	var wg sync.WaitGroup
	for i, t := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			attempts[i] = r.pushSnapshot(ctx, &t, snap)
		}()
	}
	wg.Wait()

	for i := range attempts {
		r.recordAttempt(ctx, &attempts[i])
	}
	return attempts, nil
}

// pushSnapshot streams the snapshot directory as a gzipped tarball to one
// target and classifies the outcome.
func (r *GraphReplicator) pushSnapshot(ctx context.Context, target *model.ReplicationTarget, snap *model.Snapshot) model.ReplicationAttempt {
	attempt := model.ReplicationAttempt{
		AttemptID: platform.NewID(),
		GraphID:   r.graphID,
		TargetID:  target.TargetID,
		BackupID:  snap.BackupID,
		Timestamp: time.Now().UTC(),
	}

	pushCtx, cancel := context.WithTimeout(ctx, r.mgr.transferTimeout)
	defer cancel()

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(writeTarGz(pw, snap.StoragePath))
	}()

	req, err := http.NewRequestWithContext(pushCtx, http.MethodPost,
		target.BaseURL+"/api/v1/replication/snapshots", pr)
	if err != nil {
		attempt.Status = model.AttemptFailed
		attempt.ErrorMessage = err.Error()
		return attempt
	}
	req.Header.Set("Content-Type", "application/gzip")
	req.Header.Set("X-Graph-ID", snap.GraphID)
	req.Header.Set("X-Backup-ID", snap.BackupID)
	req.Header.Set("X-Content-Hash", snap.ContentHash)
	if target.Credential != "" {
		req.Header.Set("Authorization", "Bearer "+target.Credential)
	}

	resp, err := r.mgr.httpClient.Do(req)
	if err != nil {
		uerr := &UnreachableError{Target: target.TargetID, Err: err}
		attempt.Status = model.AttemptUnreachable
		attempt.ErrorMessage = uerr.Error()
		return attempt
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		attempt.Status = model.AttemptFailed
		attempt.ErrorMessage = fmt.Sprintf("target %s returned %d", target.TargetID, resp.StatusCode)
		return attempt
	}

	attempt.Status = model.AttemptSuccess
	return attempt
}

// recordAttempt appends an attempt to the in-memory ring and the append-only
// replication_attempts table. Attempt records are never mutated afterwards.
func (r *GraphReplicator) recordAttempt(ctx context.Context, attempt *model.ReplicationAttempt) {
	r.mu.Lock()
	cp := *attempt
	r.recent.add(cp)
	if r.lastAttempt == nil {
		r.lastAttempt = make(map[string]*model.ReplicationAttempt)
	}
	r.lastAttempt[attempt.TargetID] = &cp
	r.mu.Unlock()

	metrics.ReplicationAttempts.WithLabelValues(attempt.Status).Inc()

	logEvent := r.logger.Info()
	if attempt.Status != model.AttemptSuccess {
		logEvent = r.logger.Warn()
	}
	logEvent.
		Str("target_id", attempt.TargetID).
		Str("backup_id", attempt.BackupID).
		Str("status", attempt.Status).
		Msg("replication attempt recorded")

	if _, err := r.mgr.db.Exec(ctx,
		`INSERT INTO replication_attempts (id, graph_id, target_id, backup_id, status, error_message, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		attempt.AttemptID, attempt.GraphID, attempt.TargetID, attempt.BackupID,
		attempt.Status, attempt.ErrorMessage, attempt.Timestamp,
	); err != nil {
		r.logger.Warn().Err(err).Str("attempt_id", attempt.AttemptID).Msg("failed to persist replication attempt")
	}
}

// RecentAttempts returns up to limit of the most recent attempts, newest
// first. A non-positive limit returns everything retained.
func (r *GraphReplicator) RecentAttempts(limit int) []model.ReplicationAttempt {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := r.recent.list()
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Status summarizes the graph's attached targets with their latest health
// and attempt.
func (r *GraphReplicator) Status() model.ReplicationStatus {
	targets := r.Targets()

	status := model.ReplicationStatus{
		GraphID:      r.graphID,
		TotalTargets: len(targets),
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range targets {
		if t.Enabled {
			status.EnabledTargets++
		}
		ts := model.TargetStatus{Target: t}
		if h, ok := r.lastHealth[t.TargetID]; ok {
			cp := *h
			ts.LastHealth = &cp
		}
		if a, ok := r.lastAttempt[t.TargetID]; ok {
			cp := *a
			ts.LastAttempt = &cp
		}
		status.Targets = append(status.Targets, ts)
	}
	return status
}

// attemptRing is a fixed-capacity buffer of the most recent attempts. The
// full history lives in the database; the ring only serves status queries.
type attemptRing struct {
	buf  []model.ReplicationAttempt
	next int
	full bool
}

func newAttemptRing(capacity int) *attemptRing {
	return &attemptRing{buf: make([]model.ReplicationAttempt, capacity)}
}

func (a *attemptRing) add(attempt model.ReplicationAttempt) {
	a.buf[a.next] = attempt
	a.next = (a.next + 1) % len(a.buf)
	if a.next == 0 {
		a.full = true
	}
}

// list returns retained attempts newest first.
func (a *attemptRing) list() []model.ReplicationAttempt {
	size := a.next
	if a.full {
		size = len(a.buf)
	}
	out := make([]model.ReplicationAttempt, 0, size)
	for i := 1; i <= size; i++ {
		out = append(out, a.buf[(a.next-i+len(a.buf))%len(a.buf)])
	}
	return out
}
