package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds process settings read from the environment
type Config struct {
	Port             string
	AppURL           string // Public base URL used for webhook callbacks
	LogLevel         string
	RepositoryDriver string // "mongo" or "memory"
	MongoURI         string
	MongoDatabase    string
	RedisURL         string // Empty disables per-asset locks
	EncryptionKey    string // Seals shop secrets at rest, 32 bytes raw or base64

	ShopifyAPIVersion string

	SyncPageSize         int
	SyncConcurrency      int
	SyncRateLimitRetries int
	SyncBackoffBase      time.Duration
	SyncBackoffMax       time.Duration
	DAMRequestsPerSecond float64
	DAMTimeout           time.Duration

	WorkerPollInterval time.Duration
	SyncSchedule       string // Cron spec, empty disables scheduled syncs
	MetricRetention    time.Duration

	WebhookSignatureVerification bool

	AlertMaxErrorRate     float64
	AlertMinThroughput    float64
	AlertMaxRateLimitHits int
	AlertWindow           time.Duration
}

// Load reads the configuration from environment variables, applying defaults
func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		AppURL:            strings.TrimRight(getEnv("APP_URL", "http://localhost:8080"), "/"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		RepositoryDriver:  strings.ToLower(getEnv("REPOSITORY_DRIVER", "mongo")),
		MongoURI:          getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase:     getEnv("MONGODB_DATABASE", "dam_sync"),
		RedisURL:          os.Getenv("REDIS_URL"),
		EncryptionKey:     os.Getenv("ENCRYPTION_KEY"),
		ShopifyAPIVersion: getEnv("SHOPIFY_API_VERSION", "2024-10"),
		SyncSchedule:      os.Getenv("SYNC_SCHEDULE"),
	}

	var err error
	if cfg.SyncPageSize, err = getInt("SYNC_PAGE_SIZE", 50); err != nil {
		return nil, err
	}
	if cfg.SyncConcurrency, err = getInt("SYNC_CONCURRENCY", 4); err != nil {
		return nil, err
	}
	if cfg.SyncRateLimitRetries, err = getInt("SYNC_RATE_LIMIT_RETRIES", 5); err != nil {
		return nil, err
	}
	if cfg.SyncBackoffBase, err = getDuration("SYNC_BACKOFF_BASE", time.Second); err != nil {
		return nil, err
	}
	if cfg.SyncBackoffMax, err = getDuration("SYNC_BACKOFF_MAX", time.Minute); err != nil {
		return nil, err
	}
	if cfg.DAMRequestsPerSecond, err = getFloat("DAM_REQUESTS_PER_SECOND", 10); err != nil {
		return nil, err
	}
	if cfg.DAMTimeout, err = getDuration("DAM_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.WorkerPollInterval, err = getDuration("WORKER_POLL_INTERVAL", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.MetricRetention, err = getDuration("METRIC_RETENTION", 720*time.Hour); err != nil {
		return nil, err
	}
	if cfg.WebhookSignatureVerification, err = getBool("WEBHOOK_SIGNATURE_VERIFICATION", true); err != nil {
		return nil, err
	}
	if cfg.AlertMaxErrorRate, err = getFloat("ALERT_MAX_ERROR_RATE", 0.2); err != nil {
		return nil, err
	}
	if cfg.AlertMinThroughput, err = getFloat("ALERT_MIN_THROUGHPUT", 1); err != nil {
		return nil, err
	}
	if cfg.AlertMaxRateLimitHits, err = getInt("ALERT_MAX_RATE_LIMIT_HITS", 10); err != nil {
		return nil, err
	}
	if cfg.AlertWindow, err = getDuration("ALERT_WINDOW", time.Hour); err != nil {
		return nil, err
	}

	if cfg.RepositoryDriver != "mongo" && cfg.RepositoryDriver != "memory" {
		return nil, fmt.Errorf("REPOSITORY_DRIVER must be mongo or memory, got %q", cfg.RepositoryDriver)
	}
	if cfg.SyncPageSize <= 0 {
		return nil, fmt.Errorf("SYNC_PAGE_SIZE must be positive, got %d", cfg.SyncPageSize)
	}
	if cfg.SyncConcurrency <= 0 {
		return nil, fmt.Errorf("SYNC_CONCURRENCY must be positive, got %d", cfg.SyncConcurrency)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
