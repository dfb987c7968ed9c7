package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string
	Environment string
	Database    DatabaseConfig
	Backend     BackendConfig
	Session     SessionConfig
	RateLimit   RateLimitConfig
	LogLevel    string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// BackendConfig points at the remote cart service
type BackendConfig struct {
	BaseURL string
	Timeout time.Duration
}

// SessionConfig controls gateway session issuance. SealKey is the hex-encoded
// 32-byte key used to seal backend credentials at rest.
type SessionConfig struct {
	SealKey string
	TTL     time.Duration
}

// RateLimitConfig bounds cart mutation requests per session
type RateLimitConfig struct {
	QPS   float64
	Burst int
}

func Load() (*Config, error) {
	viper.SetConfigType("env")
	viper.SetConfigName(".env")
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")

	// Set defaults
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("ENVIRONMENT", "development")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("LOG_LEVEL", "info")

	// Read from environment variables
	viper.AutomaticEnv()

	// Try to read .env file (optional)
	if err := viper.ReadInConfig(); err != nil {
		// It's okay if .env doesn't exist, we'll use env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	backendTimeout, err := time.ParseDuration(getEnvOrViper("BACKEND_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid BACKEND_TIMEOUT: %w", err)
	}

	sessionTTL, err := time.ParseDuration(getEnvOrViper("SESSION_TTL", "720h"))
	if err != nil {
		return nil, fmt.Errorf("invalid SESSION_TTL: %w", err)
	}

	cfg := &Config{
		Port:        getEnvOrViper("PORT", "8080"),
		Environment: getEnvOrViper("ENVIRONMENT", "development"),
		Database: DatabaseConfig{
			Host:     getEnvOrViper("DB_HOST", "localhost"),
			Port:     getEnvOrViper("DB_PORT", "5432"),
			User:     getEnvOrViper("DB_USER", "postgres"),
			Password: getEnvOrViper("DB_PASSWORD", "postgres"),
			DBName:   getEnvOrViper("DB_NAME", "cartsync"),
			SSLMode:  getEnvOrViper("DB_SSLMODE", "disable"),
		},
		Backend: BackendConfig{
			BaseURL: getEnvOrViper("BACKEND_BASE_URL", "http://localhost:9090"),
			Timeout: backendTimeout,
		},
		Session: SessionConfig{
			// Development key, change in production
			SealKey: getEnvOrViper("SESSION_SEAL_KEY",
				"6368616e67652d6d652d696e2d70726f64756374696f6e2d3030303030303030"),
			TTL: sessionTTL,
		},
		RateLimit: RateLimitConfig{
			QPS:   viper.GetFloat64("RATE_LIMIT_QPS"),
			Burst: viper.GetInt("RATE_LIMIT_BURST"),
		},
		LogLevel: getEnvOrViper("LOG_LEVEL", "info"),
	}

	if cfg.RateLimit.QPS <= 0 {
		cfg.RateLimit.QPS = 5
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 10
	}

	// Validate required fields
	if cfg.Backend.BaseURL == "" {
		return nil, fmt.Errorf("BACKEND_BASE_URL is required")
	}
	key, err := hex.DecodeString(cfg.Session.SealKey)
	if err != nil || len(key) != 32 {
		return nil, fmt.Errorf("SESSION_SEAL_KEY must be 64 hex characters (32 bytes)")
	}

	return cfg, nil
}

func getEnvOrViper(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	if viper.IsSet(key) {
		return viper.GetString(key)
	}
	return defaultValue
}
