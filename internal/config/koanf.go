// Romshelf - ROM Library Synchronization Engine
// Copyright 2026 J. Halloran (halcyonforge)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/halcyonforge/romshelf

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/romshelf/config.yaml",
	"/etc/romshelf/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load loads configuration with layered sources (highest priority last):
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML config file (if exists)
//  3. Environment variables: ROMM_URL, SYNC_INTERVAL, ...
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// ROMM_URL -> server.url, SYNC_PAGE_SIZE -> sync.page_size, ...
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Comma-separated env values for slice fields (FILTER_REGIONS=US,EU).
	processSliceFields(k)

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
		return ""
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceFields are config paths whose env representation is a single
// comma-separated string.
var sliceFields = []string{"filter.regions"}

// processSliceFields splits comma-separated string values into slices for
// the paths in sliceFields. File- and default-sourced values are already
// slices and are left untouched.
func processSliceFields(k *koanf.Koanf) {
	for _, path := range sliceFields {
		raw := k.Get(path)
		s, ok := raw.(string)
		if !ok {
			continue
		}

		var parts []string
		for _, p := range strings.Split(s, ",") {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
		// Set never fails for plain values; ignore the error to keep the
		// load path linear.
		_ = k.Set(path, parts)
	}
}

// envMappings maps flat environment variable names to koanf config paths.
var envMappings = map[string]string{
	"romm_url":                 "server.url",
	"romm_username":            "server.username",
	"romm_password":            "server.password",
	"romm_token":               "server.token",
	"romm_timeout":             "server.timeout",
	"romm_requests_per_second": "server.requests_per_second",

	"sync_interval":                "sync.interval",
	"sync_page_size":               "sync.page_size",
	"sync_delete_orphans":          "sync.delete_orphans",
	"sync_favorites_poll_interval": "sync.favorites_poll_interval",

	"filter_regions":            "filter.regions",
	"filter_region_mode":        "filter.region_mode",
	"filter_exclude_betas":      "filter.exclude_betas",
	"filter_exclude_prototypes": "filter.exclude_prototypes",
	"filter_exclude_demos":      "filter.exclude_demos",
	"filter_exclude_hacks":      "filter.exclude_hacks",

	"store_path":      "store.path",
	"store_in_memory": "store.in_memory",

	"api_enabled": "api.enabled",
	"api_host":    "api.host",
	"api_port":    "api.port",
	"api_timeout": "api.timeout",

	"device_name": "device.name",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf config
// paths. Unknown variables are dropped so unrelated environment noise never
// lands in the config tree.
func envTransformFunc(key string) string {
	if path, ok := envMappings[strings.ToLower(key)]; ok {
		return path
	}
	return ""
}
