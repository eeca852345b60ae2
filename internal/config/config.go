// Package config provides configuration loading for the orchestrator service.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the orchestrator service.
type Config struct {
	// Server configuration
	Port          string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	ShutdownGrace time.Duration

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Store configuration
	StoreType           string // "memory" or "redis"
	StoreTTL            time.Duration
	EventMaxLen         int64
	CheckpointRetention int

	// Cache configuration
	CacheType       string // "none", "memory" or "redis"
	CacheMaxEntries int
	CacheTTL        time.Duration

	// Engine configuration
	Parallelism               int
	CancelOnCriticalViolation bool
	CheckpointInterval        time.Duration
	CheckpointEachLevel       bool
	CheckpointEachJob         bool

	// Resource monitor configuration
	MonitorEnabled  bool
	MonitorInterval time.Duration

	// Checkpoint archive (S3/MinIO)
	ArchiveEnabled   bool
	ArchiveEndpoint  string
	ArchiveBucket    string
	ArchiveRegion    string
	ArchiveAccessKey string
	ArchiveSecretKey string
	ArchiveUseSSL    bool
	ArchivePrefix    string

	// Notifications
	WebhookURL     string
	WebhookTimeout time.Duration

	// OIDC configuration
	OIDCIssuer       string
	OIDCClientID     string
	OIDCClientSecret string
	OIDCEnabled      bool

	// CORS configuration
	CORSOrigins []string

	// Rate limiting
	RateLimitRPS   float64
	RateLimitBurst int

	// Tracing
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		// Server
		Port:          getEnv("PORT", "7080"),
		ReadTimeout:   getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:  getDuration("WRITE_TIMEOUT", 30*time.Second),
		ShutdownGrace: getDuration("SHUTDOWN_GRACE", 10*time.Second),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "redis://localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0),

		// Store
		StoreType:           getEnv("ORCH_STORE", "memory"), // "memory" or "redis"
		StoreTTL:            getDuration("STORE_TTL", 7*24*time.Hour),
		EventMaxLen:         getInt64("EVENT_MAX_LEN", 5000),
		CheckpointRetention: getInt("CHECKPOINT_RETENTION", 10),

		// Cache
		CacheType:       getEnv("ORCH_CACHE", "memory"), // "none", "memory" or "redis"
		CacheMaxEntries: getInt("CACHE_MAX_ENTRIES", 1000),
		CacheTTL:        getDuration("CACHE_TTL", 24*time.Hour),

		// Engine
		Parallelism:               getInt("ORCH_PARALLELISM", 4),
		CancelOnCriticalViolation: getBool("ORCH_CANCEL_ON_CRITICAL", false),
		CheckpointInterval:        getDuration("CHECKPOINT_INTERVAL", 0),
		CheckpointEachLevel:       getBool("CHECKPOINT_EACH_LEVEL", false),
		CheckpointEachJob:         getBool("CHECKPOINT_EACH_JOB", false),

		// Resource monitor
		MonitorEnabled:  getBool("MONITOR_ENABLED", true),
		MonitorInterval: getDuration("MONITOR_INTERVAL", time.Second),

		// Checkpoint archive
		ArchiveEnabled:   getBool("ARCHIVE_ENABLED", false),
		ArchiveEndpoint:  getEnv("ARCHIVE_S3_ENDPOINT", ""),
		ArchiveBucket:    getEnv("ARCHIVE_S3_BUCKET", ""),
		ArchiveRegion:    getEnv("ARCHIVE_S3_REGION", ""),
		ArchiveAccessKey: getEnv("ARCHIVE_S3_ACCESS_KEY", ""),
		ArchiveSecretKey: getEnv("ARCHIVE_S3_SECRET_KEY", ""),
		ArchiveUseSSL:    getBool("ARCHIVE_S3_USE_SSL", false),
		ArchivePrefix:    getEnv("ARCHIVE_S3_PREFIX", "checkpoints"),

		// Notifications
		WebhookURL:     getEnv("WEBHOOK_URL", ""),
		WebhookTimeout: getDuration("WEBHOOK_TIMEOUT", 5*time.Second),

		// OIDC
		OIDCIssuer:       getEnv("OIDC_ISSUER", ""),
		OIDCClientID:     getEnv("OIDC_CLIENT_ID", ""),
		OIDCClientSecret: getEnv("OIDC_CLIENT_SECRET", ""),
		OIDCEnabled:      getBool("OIDC_ENABLED", false),

		// CORS
		CORSOrigins: getStringSlice("CORS_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),

		// Rate limiting
		RateLimitRPS:   getFloat("RATE_LIMIT_RPS", 100.0),
		RateLimitBurst: getInt("RATE_LIMIT_BURST", 200),

		// Tracing
		TracingEnabled:    getBool("TRACING_ENABLED", false),
		OTLPEndpoint:      getEnv("OTLP_ENDPOINT", "localhost:4317"),
		TracingSampleRate: getFloat("TRACING_SAMPLE_RATE", 1.0),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}
}

// Helper functions for environment variable parsing

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

func getFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getStringSlice(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		return strings.Split(val, ",")
	}
	return defaultVal
}
