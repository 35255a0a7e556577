// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir     string // Base directory for all databases (always absolute)
	Port        int
	LogLevel    string
	DevMode     bool
	CORSOrigins string

	// External vendor access
	SECUserAgent  string // SEC EDGAR requires an identifying User-Agent
	FREDAPIKey    string
	MetalsAPIKey  string
	PolygonAPIKey string

	// Scoring
	ScoringWorkers int // bounded worker pool size for batch runs

	// Limits
	MaxPortfolios  int // per-user portfolio cap (403 when exceeded)
	RateLimitRPS   int // inbound requests/sec per client before 429
	RateLimitBurst int

	Backup *BackupConfig
}

// BackupConfig holds offsite backup settings. Backups upload only when all
// four credentials are present.
type BackupConfig struct {
	Endpoint        string
	Region          string // "auto" works for most S3-compatible providers
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	RetentionDays   int // 0 keeps offsite archives forever
}

// Enabled reports whether offsite upload is configured.
func (b *BackupConfig) Enabled() bool {
	return b != nil && b.Endpoint != "" && b.AccessKeyID != "" && b.SecretAccessKey != "" && b.Bucket != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("HEDGE_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:        absDataDir,
		Port:           getEnvAsInt("HEDGE_PORT", 8000),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DevMode:        getEnvAsBool("DEV_MODE", false),
		CORSOrigins:    getEnv("HEDGE_CORS_ORIGINS", "*"),
		SECUserAgent:   getEnv("SEC_USER_AGENT", "HEDGE contact@hedge.finance"),
		FREDAPIKey:     getEnv("FRED_API_KEY", ""),
		MetalsAPIKey:   getEnv("METALS_API_KEY", "demo"),
		PolygonAPIKey:  getEnv("POLYGON_API_KEY", ""),
		ScoringWorkers: getEnvAsInt("HEDGE_SCORING_WORKERS", 16),
		MaxPortfolios:  getEnvAsInt("HEDGE_MAX_PORTFOLIOS", 100),
		RateLimitRPS:   getEnvAsInt("HEDGE_RATE_LIMIT_RPS", 20),
		RateLimitBurst: getEnvAsInt("HEDGE_RATE_LIMIT_BURST", 40),
		Backup: &BackupConfig{
			Endpoint:        getEnv("HEDGE_BACKUP_ENDPOINT", ""),
			Region:          getEnv("HEDGE_BACKUP_REGION", "auto"),
			AccessKeyID:     getEnv("HEDGE_BACKUP_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("HEDGE_BACKUP_SECRET_ACCESS_KEY", ""),
			Bucket:          getEnv("HEDGE_BACKUP_BUCKET", ""),
			RetentionDays:   getEnvAsInt("HEDGE_BACKUP_RETENTION_DAYS", 90),
		},
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.ScoringWorkers < 1 {
		return fmt.Errorf("scoring workers must be at least 1, got %d", c.ScoringWorkers)
	}
	if c.MaxPortfolios < 1 {
		return fmt.Errorf("portfolio cap must be at least 1, got %d", c.MaxPortfolios)
	}
	// SEC EDGAR rejects anonymous clients outright.
	if c.SECUserAgent == "" {
		return fmt.Errorf("SEC_USER_AGENT must not be empty")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
