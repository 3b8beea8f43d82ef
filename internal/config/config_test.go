// Romshelf - ROM Library Synchronization Engine
// Copyright 2026 J. Halloran (halcyonforge)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/halcyonforge/romshelf

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() with defaults failed: %v", err)
	}

	if cfg.Sync.PageSize != 100 {
		t.Errorf("default page size = %d, want 100", cfg.Sync.PageSize)
	}
	if cfg.Sync.Interval != 6*time.Hour {
		t.Errorf("default sync interval = %v, want 6h", cfg.Sync.Interval)
	}
	if cfg.Filter.RegionMode != RegionInclude {
		t.Errorf("default region mode = %q, want include", cfg.Filter.RegionMode)
	}
	if !cfg.API.Enabled {
		t.Error("API should be enabled by default")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ROMM_URL", "romm.example.org")
	t.Setenv("SYNC_PAGE_SIZE", "50")
	t.Setenv("SYNC_DELETE_ORPHANS", "true")
	t.Setenv("FILTER_REGION_MODE", "exclude")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.URL != "romm.example.org" {
		t.Errorf("server URL = %q", cfg.Server.URL)
	}
	if cfg.Sync.PageSize != 50 {
		t.Errorf("page size = %d, want 50", cfg.Sync.PageSize)
	}
	if !cfg.Sync.DeleteOrphans {
		t.Error("delete_orphans should be true")
	}
	if cfg.Filter.RegionMode != RegionExclude {
		t.Errorf("region mode = %q, want exclude", cfg.Filter.RegionMode)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Logging.Level)
	}
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("server:\n  url: http://10.0.0.5:8080\nsync:\n  page_size: 25\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.URL != "http://10.0.0.5:8080" {
		t.Errorf("server URL = %q", cfg.Server.URL)
	}
	if cfg.Sync.PageSize != 25 {
		t.Errorf("page size = %d, want 25", cfg.Sync.PageSize)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero page size", func(c *Config) { c.Sync.PageSize = 0 }},
		{"oversized page size", func(c *Config) { c.Sync.PageSize = 1000 }},
		{"bad region mode", func(c *Config) { c.Filter.RegionMode = "sometimes" }},
		{"bad api port", func(c *Config) { c.API.Port = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestValidateDefaultsEmptyRegionMode(t *testing.T) {
	cfg := defaultConfig()
	cfg.Filter.RegionMode = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}
	if cfg.Filter.RegionMode != RegionInclude {
		t.Errorf("empty region mode should default to include, got %q", cfg.Filter.RegionMode)
	}
}
