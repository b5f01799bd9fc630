package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Validation policies for recovery-point checks. Strict treats a graph whose
// replication targets are all unreachable as a validation failure; warn
// records a degraded finding but passes the graph when its backups verify.
const (
	ValidationPolicyStrict = "strict"
	ValidationPolicyWarn   = "warn"
)

type Config struct {
	CoreDatabaseURL string
	HTTPListenAddr  string
	MetricsAddr     string
	LogLevel        string
	ServiceName     string

	// BackupStoragePath is the root directory for snapshot storage. Each
	// graph gets a subdirectory keyed by its ID.
	BackupStoragePath   string
	BackupRetentionDays int

	HealthCheckTimeout time.Duration
	// DegradedLatency is the probe latency above which a responsive target
	// is classified degraded rather than healthy.
	DegradedLatency time.Duration
	TransferTimeout time.Duration

	ValidationPolicy string

	// Optional off-site archive of completed snapshots to an S3-compatible
	// endpoint. Disabled when ArchiveEndpoint is empty.
	ArchiveEndpoint  string
	ArchiveBucket    string
	ArchiveAccessKey string
	ArchiveSecretKey string
}

func Load() (*Config, error) {
	cfg := &Config{
		CoreDatabaseURL:     getEnv("CORE_DATABASE_URL", ""),
		HTTPListenAddr:      getEnv("HTTP_LISTEN_ADDR", ":8090"),
		MetricsAddr:         getEnv("METRICS_LISTEN_ADDR", ""),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		ServiceName:         getEnv("SERVICE_NAME", "graphvault-api"),
		BackupStoragePath:   getEnv("BACKUP_STORAGE_PATH", "/var/lib/graphvault/backups"),
		BackupRetentionDays: getEnvInt("BACKUP_RETENTION_DAYS", 30),
		HealthCheckTimeout:  getEnvDuration("HEALTH_CHECK_TIMEOUT", 5*time.Second),
		DegradedLatency:     getEnvDuration("DEGRADED_LATENCY", 2*time.Second),
		TransferTimeout:     getEnvDuration("TRANSFER_TIMEOUT", 5*time.Minute),
		ValidationPolicy:    getEnv("VALIDATION_POLICY", ValidationPolicyStrict),
		ArchiveEndpoint:     getEnv("ARCHIVE_S3_ENDPOINT", ""),
		ArchiveBucket:       getEnv("ARCHIVE_S3_BUCKET", "graphvault-archive"),
		ArchiveAccessKey:    getEnv("ARCHIVE_S3_ACCESS_KEY", ""),
		ArchiveSecretKey:    getEnv("ARCHIVE_S3_SECRET_KEY", ""),
	}

	return cfg, nil
}

// Validate checks that every setting the given binary needs is present.
func (c *Config) Validate(binary string) error {
	var missing []string

	switch binary {
	case "graphvault-api":
		if c.CoreDatabaseURL == "" {
			missing = append(missing, "CORE_DATABASE_URL")
		}
		if c.HTTPListenAddr == "" {
			missing = append(missing, "HTTP_LISTEN_ADDR")
		}
		if c.BackupStoragePath == "" {
			missing = append(missing, "BACKUP_STORAGE_PATH")
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if c.BackupRetentionDays <= 0 {
		return fmt.Errorf("BACKUP_RETENTION_DAYS must be positive, got %d", c.BackupRetentionDays)
	}
	if c.ValidationPolicy != ValidationPolicyStrict && c.ValidationPolicy != ValidationPolicyWarn {
		return fmt.Errorf("VALIDATION_POLICY must be %q or %q, got %q",
			ValidationPolicyStrict, ValidationPolicyWarn, c.ValidationPolicy)
	}
	if c.ArchiveEndpoint != "" && (c.ArchiveAccessKey == "" || c.ArchiveSecretKey == "") {
		return fmt.Errorf("ARCHIVE_S3_ACCESS_KEY and ARCHIVE_S3_SECRET_KEY are required when ARCHIVE_S3_ENDPOINT is set")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
