package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("MAX_FILE_SIZE", "")
		t.Setenv("STAGING_MAX_AGE_HOURS", "")
		t.Setenv("CONVERTER_STATUS_TTL_SECONDS", "")

		cfg := Load()
		if cfg.MaxFileSize != 10*1024*1024 {
			t.Errorf("expected 10 MiB default, got %d", cfg.MaxFileSize)
		}
		if cfg.StagingMaxAge != 0 {
			t.Errorf("expected sweeper disabled by default, got %v", cfg.StagingMaxAge)
		}
		if cfg.ToolStatusTTL != 5*time.Minute {
			t.Errorf("expected 5m tool status TTL, got %v", cfg.ToolStatusTTL)
		}
	})

	t.Run("reads overrides", func(t *testing.T) {
		t.Setenv("MAX_FILE_SIZE", "2048")
		t.Setenv("CONVERT_TIMEOUT_SECONDS", "30")
		t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")

		cfg := Load()
		if cfg.MaxFileSize != 2048 {
			t.Errorf("expected 2048, got %d", cfg.MaxFileSize)
		}
		if cfg.ConvertTimeout != 30*time.Second {
			t.Errorf("expected 30s, got %v", cfg.ConvertTimeout)
		}
		if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "http://b.test" {
			t.Errorf("unexpected origins %v", cfg.CORSOrigins)
		}
	})

	t.Run("ignores malformed numbers", func(t *testing.T) {
		t.Setenv("RATE_LIMIT_BURST", "lots")
		if got := Load().RateLimitBurst; got != 10 {
			t.Errorf("expected fallback 10, got %d", got)
		}
	})
}

func TestValidate(t *testing.T) {
	base := t.TempDir()
	valid := func() *Config {
		return &Config{
			MaxFileSize: 1024,
			JWTSecret:   "secret",
			StoragePath: filepath.Join(base, "files"),
			StagingPath: filepath.Join(base, "staging"),
		}
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"same roots", func(c *Config) { c.StagingPath = c.StoragePath }},
		{"staging inside storage", func(c *Config) { c.StagingPath = filepath.Join(c.StoragePath, "tmp") }},
		{"storage inside staging", func(c *Config) { c.StoragePath = filepath.Join(c.StagingPath, "perm") }},
		{"zero size", func(c *Config) { c.MaxFileSize = 0 }},
		{"missing secret", func(c *Config) { c.JWTSecret = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
