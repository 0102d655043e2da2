package config

import (
	"os"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "ENV", "LOG_LEVEL", "DATABASE_URL",
		"AUTO_FREEZE_ON_HIGH", "STRUCTURING_THRESHOLD", "STRUCTURING_BAND",
		"SMURFING_WINDOW", "SMURFING_SMALL_AMOUNT", "CIRCULAR_WINDOW",
		"CIRCULAR_MAX_DEPTH", "VELOCITY_WINDOW", "VELOCITY_LIMIT",
		"DETECTOR_BUDGET", "SCORING_URL", "SCORING_TIMEOUT", "ADMIN_SECRET",
	} {
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != DefaultPort {
		t.Errorf("Port = %q, want %q", cfg.Port, DefaultPort)
	}
	if cfg.StructuringThreshold != 10000 {
		t.Errorf("StructuringThreshold = %f, want 10000", cfg.StructuringThreshold)
	}
	if cfg.StructuringBand != 1000 {
		t.Errorf("StructuringBand = %f, want 1000", cfg.StructuringBand)
	}
	if !cfg.AutoFreezeOnHigh {
		t.Error("AutoFreezeOnHigh should default to true")
	}
	if cfg.VelocityLimit != 10 {
		t.Errorf("VelocityLimit = %d, want 10", cfg.VelocityLimit)
	}
	if cfg.ScoringTimeout != 500*time.Millisecond {
		t.Errorf("ScoringTimeout = %v, want 500ms", cfg.ScoringTimeout)
	}
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("AUTO_FREEZE_ON_HIGH", "false")
	t.Setenv("VELOCITY_LIMIT", "25")
	t.Setenv("SMURFING_WINDOW", "24h")
	t.Setenv("SCORING_URL", "http://scorer:9000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.AutoFreezeOnHigh {
		t.Error("AUTO_FREEZE_ON_HIGH=false not honored")
	}
	if cfg.VelocityLimit != 25 {
		t.Errorf("VelocityLimit = %d, want 25", cfg.VelocityLimit)
	}
	if cfg.SmurfingWindow != 24*time.Hour {
		t.Errorf("SmurfingWindow = %v, want 24h", cfg.SmurfingWindow)
	}
	if cfg.ScoringURL != "http://scorer:9000" {
		t.Errorf("ScoringURL = %q", cfg.ScoringURL)
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero threshold", func(c *Config) { c.StructuringThreshold = 0 }},
		{"band above threshold", func(c *Config) { c.StructuringBand = 20000 }},
		{"zero velocity limit", func(c *Config) { c.VelocityLimit = 0 }},
		{"cycle depth too small", func(c *Config) { c.CircularMaxDepth = 2 }},
		{"zero scoring timeout", func(c *Config) { c.ScoringTimeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
