// Romshelf - ROM Library Synchronization Engine
// Copyright 2026 J. Halloran (halcyonforge)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/halcyonforge/romshelf

// Package config loads romshelf configuration via Koanf v2 with layered
// sources: built-in defaults, an optional YAML config file, and environment
// variables (highest priority).
package config

import "time"

// Config is the root configuration for the romshelf daemon.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Sync    SyncConfig    `koanf:"sync"`
	Filter  FilterConfig  `koanf:"filter"`
	Store   StoreConfig   `koanf:"store"`
	API     APIConfig     `koanf:"api"`
	Device  DeviceConfig  `koanf:"device"`
	Logging LoggingConfig `koanf:"logging"`
}

// ServerConfig holds the remote RomM server connection settings.
type ServerConfig struct {
	// URL of the RomM server. A bare host (no scheme) is probed over
	// http/https according to the candidate rules in the connection
	// manager.
	URL      string `koanf:"url"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	// Token is an optional pre-issued bearer token. When present, login
	// is skipped and the token is used directly.
	Token string `koanf:"token"`

	Timeout time.Duration `koanf:"timeout"`
	// RequestsPerSecond caps outbound API calls (0 = unlimited).
	RequestsPerSecond float64 `koanf:"requests_per_second"`
}

// SyncConfig holds catalog synchronization settings.
type SyncConfig struct {
	// Interval between scheduled full-library passes (0 disables the
	// scheduler; manual triggers still work).
	Interval time.Duration `koanf:"interval"`
	// PageSize is the fixed ROM page size for the offset-based fetch loop.
	PageSize int `koanf:"page_size"`
	// DeleteOrphans enables the post-pass orphan sweep.
	DeleteOrphans bool `koanf:"delete_orphans"`
	// FavoritesPollInterval is the cadence of the debounced favorites
	// refresh poller.
	FavoritesPollInterval time.Duration `koanf:"favorites_poll_interval"`
}

// RegionMode selects how the region filter interprets its region list.
type RegionMode string

const (
	// RegionInclude admits only entries matching a selected region.
	RegionInclude RegionMode = "include"
	// RegionExclude rejects entries matching a selected region.
	RegionExclude RegionMode = "exclude"
)

// FilterConfig holds user-configured admission filters evaluated per remote
// catalog entry before it enters the local library.
type FilterConfig struct {
	// Regions is the selected region set; empty means no region filtering.
	Regions []string `koanf:"regions"`
	// RegionMode is "include" or "exclude".
	RegionMode RegionMode `koanf:"region_mode"`

	ExcludeBetas      bool `koanf:"exclude_betas"`
	ExcludePrototypes bool `koanf:"exclude_prototypes"`
	ExcludeDemos      bool `koanf:"exclude_demos"`
	ExcludeHacks      bool `koanf:"exclude_hacks"`
}

// StoreConfig holds the local catalog store settings.
type StoreConfig struct {
	Path string `koanf:"path"`
	// InMemory runs the store without disk persistence (tests only).
	InMemory bool `koanf:"in_memory"`
}

// APIConfig holds the admin HTTP API settings.
type APIConfig struct {
	Enabled bool          `koanf:"enabled"`
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// DeviceConfig identifies this client to the remote server's device API.
type DeviceConfig struct {
	Name string `koanf:"name"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			URL:               "",
			Username:          "",
			Password:          "",
			Token:             "",
			Timeout:           30 * time.Second,
			RequestsPerSecond: 10,
		},
		Sync: SyncConfig{
			Interval:              6 * time.Hour,
			PageSize:              100,
			DeleteOrphans:         false,
			FavoritesPollInterval: 30 * time.Second,
		},
		Filter: FilterConfig{
			Regions:           nil,
			RegionMode:        RegionInclude,
			ExcludeBetas:      false,
			ExcludePrototypes: false,
			ExcludeDemos:      false,
			ExcludeHacks:      false,
		},
		Store: StoreConfig{
			Path:     "/data/romshelf",
			InMemory: false,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8490,
			Timeout: 30 * time.Second,
		},
		Device: DeviceConfig{
			Name: "romshelf",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}
