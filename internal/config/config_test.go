package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EmptyCoreDBURL(t *testing.T) {
	// Config loads successfully even without CORE_DATABASE_URL set.
	os.Unsetenv("CORE_DATABASE_URL")

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "", cfg.CoreDatabaseURL)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CORE_DATABASE_URL", "postgres://localhost/core")

	os.Unsetenv("HTTP_LISTEN_ADDR")
	os.Unsetenv("LOG_LEVEL")
	os.Unsetenv("BACKUP_STORAGE_PATH")
	os.Unsetenv("BACKUP_RETENTION_DAYS")
	os.Unsetenv("HEALTH_CHECK_TIMEOUT")
	os.Unsetenv("VALIDATION_POLICY")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8090", cfg.HTTPListenAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "/var/lib/graphvault/backups", cfg.BackupStoragePath)
	assert.Equal(t, 30, cfg.BackupRetentionDays)
	assert.Equal(t, 5*time.Second, cfg.HealthCheckTimeout)
	assert.Equal(t, 5*time.Minute, cfg.TransferTimeout)
	assert.Equal(t, ValidationPolicyStrict, cfg.ValidationPolicy)
}

func TestLoad_AllEnvVars(t *testing.T) {
	t.Setenv("CORE_DATABASE_URL", "postgres://core:5432/coredb")
	t.Setenv("HTTP_LISTEN_ADDR", ":7071")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("BACKUP_STORAGE_PATH", "/data/backups")
	t.Setenv("BACKUP_RETENTION_DAYS", "7")
	t.Setenv("HEALTH_CHECK_TIMEOUT", "10s")
	t.Setenv("TRANSFER_TIMEOUT", "2m")
	t.Setenv("VALIDATION_POLICY", "warn")

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "postgres://core:5432/coredb", cfg.CoreDatabaseURL)
	assert.Equal(t, ":7071", cfg.HTTPListenAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/data/backups", cfg.BackupStoragePath)
	assert.Equal(t, 7, cfg.BackupRetentionDays)
	assert.Equal(t, 10*time.Second, cfg.HealthCheckTimeout)
	assert.Equal(t, 2*time.Minute, cfg.TransferTimeout)
	assert.Equal(t, ValidationPolicyWarn, cfg.ValidationPolicy)
}

func TestLoad_InvalidIntFallsBack(t *testing.T) {
	t.Setenv("BACKUP_RETENTION_DAYS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.BackupRetentionDays)
}

func TestValidate_API_MissingFields(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate("graphvault-api")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CORE_DATABASE_URL")
	assert.Contains(t, err.Error(), "HTTP_LISTEN_ADDR")
	assert.Contains(t, err.Error(), "BACKUP_STORAGE_PATH")
}

func TestValidate_BadRetention(t *testing.T) {
	cfg := &Config{
		CoreDatabaseURL:     "postgres://localhost/db",
		HTTPListenAddr:      ":8090",
		BackupStoragePath:   "/data",
		BackupRetentionDays: 0,
		ValidationPolicy:    ValidationPolicyStrict,
	}
	err := cfg.Validate("graphvault-api")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BACKUP_RETENTION_DAYS")
}

func TestValidate_BadPolicy(t *testing.T) {
	cfg := &Config{
		CoreDatabaseURL:     "postgres://localhost/db",
		HTTPListenAddr:      ":8090",
		BackupStoragePath:   "/data",
		BackupRetentionDays: 30,
		ValidationPolicy:    "maybe",
	}
	err := cfg.Validate("graphvault-api")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VALIDATION_POLICY")
}

func TestValidate_ArchiveNeedsCredentials(t *testing.T) {
	cfg := &Config{
		CoreDatabaseURL:     "postgres://localhost/db",
		HTTPListenAddr:      ":8090",
		BackupStoragePath:   "/data",
		BackupRetentionDays: 30,
		ValidationPolicy:    ValidationPolicyStrict,
		ArchiveEndpoint:     "http://localhost:7480",
	}
	err := cfg.Validate("graphvault-api")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ARCHIVE_S3_ACCESS_KEY")
}
