// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Screening policy
	AutoFreezeOnHigh     bool    // freeze immediately when a high-risk assessment flags an account
	StructuringThreshold float64 // statutory reporting threshold (USD)
	StructuringBand      float64 // proximity band below the threshold that triggers the detector
	SmurfingWindow       time.Duration
	SmurfingSmallAmount  float64 // ceiling below which a transaction counts as "small"
	CircularWindow       time.Duration
	CircularMaxDepth     int
	VelocityWindow       time.Duration
	VelocityLimit        int // transactions per window before the detector fires

	// Detector evaluation
	DetectorBudget time.Duration // wall-clock budget for running all detectors

	// External ML scoring collaborator
	ScoringURL     string // empty = rule-only aggregation
	ScoringTimeout time.Duration

	// Background consistency sweep
	ReconcileInterval time.Duration // 0 = sweep disabled

	// Observability
	OTLPEndpoint string // empty = tracing disabled

	// Security
	AdminSecret string // Admin API secret
}

// Defaults match the statutory $10,000 reporting threshold and the
// detection windows the screening rules were calibrated against.
const (
	DefaultPort                 = "8080"
	DefaultEnv                  = "development"
	DefaultLogLevel             = "info"
	DefaultStructuringThreshold = 10000
	DefaultStructuringBand      = 1000
	DefaultSmurfingSmallAmount  = 3000
	DefaultCircularMaxDepth     = 6
	DefaultVelocityLimit        = 10
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", DefaultPort),
		Env:                  getEnv("ENV", DefaultEnv),
		LogLevel:             getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:          os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		AutoFreezeOnHigh:     getEnvBool("AUTO_FREEZE_ON_HIGH", true),
		StructuringThreshold: getEnvFloat("STRUCTURING_THRESHOLD", DefaultStructuringThreshold),
		StructuringBand:      getEnvFloat("STRUCTURING_BAND", DefaultStructuringBand),
		SmurfingWindow:       getEnvDuration("SMURFING_WINDOW", 48*time.Hour),
		SmurfingSmallAmount:  getEnvFloat("SMURFING_SMALL_AMOUNT", DefaultSmurfingSmallAmount),
		CircularWindow:       getEnvDuration("CIRCULAR_WINDOW", time.Hour),
		CircularMaxDepth:     int(getEnvInt64("CIRCULAR_MAX_DEPTH", DefaultCircularMaxDepth)),
		VelocityWindow:       getEnvDuration("VELOCITY_WINDOW", time.Hour),
		VelocityLimit:        int(getEnvInt64("VELOCITY_LIMIT", DefaultVelocityLimit)),
		DetectorBudget:       getEnvDuration("DETECTOR_BUDGET", 2*time.Second),
		ScoringURL:           os.Getenv("SCORING_URL"),
		ScoringTimeout:       getEnvDuration("SCORING_TIMEOUT", 500*time.Millisecond),
		ReconcileInterval:    getEnvDuration("RECONCILE_INTERVAL", 5*time.Minute),
		OTLPEndpoint:         os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		AdminSecret:          os.Getenv("ADMIN_SECRET"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.StructuringThreshold <= 0 {
		return fmt.Errorf("STRUCTURING_THRESHOLD must be positive")
	}
	if c.StructuringBand <= 0 || c.StructuringBand >= c.StructuringThreshold {
		return fmt.Errorf("STRUCTURING_BAND must be positive and below the threshold")
	}
	if c.VelocityLimit <= 0 {
		return fmt.Errorf("VELOCITY_LIMIT must be positive")
	}
	if c.CircularMaxDepth < 3 {
		return fmt.Errorf("CIRCULAR_MAX_DEPTH must be at least 3 (shortest possible cycle)")
	}
	if c.ScoringTimeout <= 0 {
		return fmt.Errorf("SCORING_TIMEOUT must be positive")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
