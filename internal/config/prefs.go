package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Prefs is an optional user-level overlay, read from
// ~/.config/indexer-core/prefs.yaml (or $XDG_CONFIG_HOME/indexer-core/
// prefs.yaml), layered underneath the per-project config.json. It never
// changes config.json's on-disk schema — it only supplies defaults that
// Load's caller may apply, via ApplyTo, to the loaded project config.
type Prefs struct {
	LogLevel        string   `yaml:"log_level"`
	ExcludePatterns []string `yaml:"exclude_patterns"`
	Workers         int      `yaml:"workers"`
}

// PrefsPath returns the path to the user preferences file, honoring
// XDG_CONFIG_HOME when set.
func PrefsPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "indexer-core", "prefs.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "indexer-core", "prefs.yaml")
	}
	return filepath.Join(home, ".config", "indexer-core", "prefs.yaml")
}

// LoadPrefs reads the user preferences file. A missing file is not an
// error — it returns a zero-value Prefs so callers can apply it unconditionally.
func LoadPrefs() (*Prefs, error) {
	path := PrefsPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Prefs{}, nil
		}
		return nil, fmt.Errorf("config: read prefs %s: %w", path, err)
	}

	var p Prefs
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("config: parse prefs %s: %w", path, err)
	}
	return &p, nil
}

// ApplyTo layers p's ExcludePatterns under cfg's project-level settings,
// used as a default only where the project config.json left them unset.
// LogLevel and Workers are not applied: Config has no fields for them.
func (p *Prefs) ApplyTo(cfg *Config) {
	if p == nil {
		return
	}
	if len(p.ExcludePatterns) > 0 && len(cfg.Settings.ExcludePatterns) == 0 {
		cfg.Settings.ExcludePatterns = p.ExcludePatterns
	}
}
