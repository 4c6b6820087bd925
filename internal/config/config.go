// Package config persists the indexer's on-disk configuration
// (<db_dir>/config.json, §6) and layers an optional user-level preferences
// file underneath it, and guards the data directory against concurrent
// indexer processes.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CPUThrottle is the indexing throttle level.
type CPUThrottle string

const (
	ThrottleLow    CPUThrottle = "low"
	ThrottleMedium CPUThrottle = "medium"
	ThrottleHigh   CPUThrottle = "high"
)

const currentVersion = 1

// Settings holds the tunable knobs under config.json's "settings" key.
type Settings struct {
	CPUThrottle    CPUThrottle `json:"cpuThrottle"`
	ExcludePatterns []string   `json:"excludePatterns"`
}

// Config is the exact shape of <db_dir>/config.json per §6.
type Config struct {
	Version        int      `json:"version"`
	WatchedFolders []string `json:"watchedFolders"`
	Settings       Settings `json:"settings"`
	LastUpdated    string   `json:"lastUpdated"` // ISO8601
}

// Defaults returns the configuration used when no config.json exists yet,
// or to fill in fields missing from a partially-written or older file.
func Defaults() *Config {
	return &Config{
		Version:        currentVersion,
		WatchedFolders: []string{},
		Settings: Settings{
			CPUThrottle:     ThrottleMedium,
			ExcludePatterns: defaultExcludePatterns,
		},
	}
}

var defaultExcludePatterns = []string{
	"node_modules/",
	".git/",
	"vendor/",
	"dist/",
	"build/",
}

const fileName = "config.json"

// Load reads <dbDir>/config.json, falling back to defaults on missing or
// corrupt contents. Any fields absent from the file (or the whole file,
// or an unparseable file) are filled in from Defaults() and the result is
// written back — the migration path described in §6 — before returning.
func Load(dbDir string) (*Config, error) {
	path := filepath.Join(dbDir, fileName)
	defaults := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return writeBack(dbDir, defaults)
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		// Corrupt contents silently fall back to defaults (§6).
		return writeBack(dbDir, defaults)
	}

	migrated := applyDefaults(&cfg, defaults)
	if migrated {
		return writeBack(dbDir, &cfg)
	}
	return &cfg, nil
}

// applyDefaults fills zero-value fields in cfg from defaults, reporting
// whether anything changed (and therefore needs persisting).
func applyDefaults(cfg, defaults *Config) bool {
	changed := false
	if cfg.Version == 0 {
		cfg.Version = defaults.Version
		changed = true
	}
	if cfg.WatchedFolders == nil {
		cfg.WatchedFolders = defaults.WatchedFolders
		changed = true
	}
	if cfg.Settings.CPUThrottle == "" {
		cfg.Settings.CPUThrottle = defaults.Settings.CPUThrottle
		changed = true
	}
	if cfg.Settings.ExcludePatterns == nil {
		cfg.Settings.ExcludePatterns = defaults.Settings.ExcludePatterns
		changed = true
	}
	if cfg.LastUpdated == "" {
		changed = true
	}
	return changed
}

// Save writes cfg to <dbDir>/config.json, bumping LastUpdated.
func Save(dbDir string, cfg *Config) error {
	cfg.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return fmt.Errorf("config: create %s: %w", dbDir, err)
	}
	path := filepath.Join(dbDir, fileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

func writeBack(dbDir string, cfg *Config) (*Config, error) {
	if err := Save(dbDir, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// AddWatchedFolder adds path to cfg if not already present.
func (c *Config) AddWatchedFolder(path string) {
	for _, p := range c.WatchedFolders {
		if p == path {
			return
		}
	}
	c.WatchedFolders = append(c.WatchedFolders, path)
}

// RemoveWatchedFolder removes path from cfg, if present.
func (c *Config) RemoveWatchedFolder(path string) {
	out := c.WatchedFolders[:0]
	for _, p := range c.WatchedFolders {
		if p != path {
			out = append(out, p)
		}
	}
	c.WatchedFolders = out
}
