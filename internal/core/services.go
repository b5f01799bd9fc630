package core

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/graphvault/graphvault/internal/config"
)

type Services struct {
	APIKeys     *APIKeyService
	Graphs      *GraphService
	Backups     *BackupManager
	Replication *ReplicationManager
	Recovery    *RecoveryManager
	Archive     *ArchiveService
}

func NewServices(db DB, logger zerolog.Logger, cfg *config.Config) *Services {
	graphs := NewGraphService(db)
	backups := NewBackupManager(db, logger, cfg.BackupStoragePath, cfg.BackupRetentionDays)

	var archive *ArchiveService
	if cfg.ArchiveEndpoint != "" {
		archive = NewArchiveService(logger, cfg.ArchiveEndpoint, cfg.ArchiveBucket,
			cfg.ArchiveAccessKey, cfg.ArchiveSecretKey)
		backups.SetArchive(archive)
	}

	replication := NewReplicationManager(db, logger, backups,
		cfg.HealthCheckTimeout, cfg.DegradedLatency, cfg.TransferTimeout)
	recovery := NewRecoveryManager(db, logger, backups, replication, graphs, cfg.ValidationPolicy)

	return &Services{
		APIKeys:     NewAPIKeyService(db),
		Graphs:      graphs,
		Backups:     backups,
		Replication: replication,
		Recovery:    recovery,
		Archive:     archive,
	}
}

// LoadState rebuilds all in-memory registries from the database. Called once
// at startup before the API starts serving.
func (s *Services) LoadState(ctx context.Context) error {
	if err := s.Backups.LoadState(ctx); err != nil {
		return fmt.Errorf("backup state: %w", err)
	}
	if err := s.Replication.LoadState(ctx); err != nil {
		return fmt.Errorf("replication state: %w", err)
	}
	if err := s.Recovery.LoadState(ctx); err != nil {
		return fmt.Errorf("recovery state: %w", err)
	}
	return nil
}
