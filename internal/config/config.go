package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	MongoURI       string
	DatabaseName   string
	LogLevel       string
	HTTPListenAddr string

	// Storage monitoring.
	StorageMaxBytes int64
	MonitorInterval time.Duration
	CheckCooldown   time.Duration

	// Backup layout.
	BackupsDir     string
	TempDir        string
	RetentionCount int

	// Export policy file (optional). Overrides the built-in doctor
	// collection allow-list when set.
	ExportPolicyPath string

	// Connection retry.
	ConnectRetries   int
	ConnectBaseDelay time.Duration

	// Offsite archive copy (optional, disabled when bucket is empty).
	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
}

func Load() (*Config, error) {
	cfg := &Config{
		MongoURI:       getEnv("MONGODB_URI", ""),
		DatabaseName:   getEnv("MONGODB_DATABASE", "clinic"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		HTTPListenAddr: getEnv("HTTP_LISTEN_ADDR", ":8090"),

		StorageMaxBytes: getEnvInt64("STORAGE_MAX_BYTES", 512*1024*1024),
		MonitorInterval: getEnvDuration("MONITOR_INTERVAL", 30*time.Minute),
		CheckCooldown:   getEnvDuration("STORAGE_CHECK_COOLDOWN", 5*time.Minute),

		BackupsDir:     getEnv("BACKUPS_DIR", "backups"),
		TempDir:        getEnv("BACKUP_TEMP_DIR", "temp-backup"),
		RetentionCount: getEnvInt("BACKUP_RETENTION_COUNT", 5),

		ExportPolicyPath: getEnv("EXPORT_POLICY_FILE", ""),

		ConnectRetries:   getEnvInt("MONGODB_CONNECT_RETRIES", 3),
		ConnectBaseDelay: getEnvDuration("MONGODB_CONNECT_BASE_DELAY", 500*time.Millisecond),

		S3Endpoint:  getEnv("S3_ENDPOINT", ""),
		S3Region:    getEnv("S3_REGION", "us-east-1"),
		S3Bucket:    getEnv("S3_BUCKET", ""),
		S3AccessKey: getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey: getEnv("S3_SECRET_KEY", ""),
	}

	return cfg, nil
}

// Validate checks that required settings for the service are present.
func (c *Config) Validate() error {
	if c.MongoURI == "" {
		return fmt.Errorf("MONGODB_URI is required")
	}
	if c.StorageMaxBytes <= 0 {
		return fmt.Errorf("STORAGE_MAX_BYTES must be positive")
	}
	if c.RetentionCount < 1 {
		return fmt.Errorf("BACKUP_RETENTION_COUNT must be at least 1")
	}
	if c.S3Bucket != "" && (c.S3AccessKey == "" || c.S3SecretKey == "") {
		return fmt.Errorf("S3_ACCESS_KEY and S3_SECRET_KEY are required when S3_BUCKET is set")
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

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
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
