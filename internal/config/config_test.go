package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFile_WritesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, currentVersion, cfg.Version)
	assert.Equal(t, ThrottleMedium, cfg.Settings.CPUThrottle)
	assert.NotEmpty(t, cfg.Settings.ExcludePatterns)
	assert.NotEmpty(t, cfg.LastUpdated)

	_, err = os.Stat(filepath.Join(dir, fileName))
	require.NoError(t, err)
}

func TestLoad_CorruptFile_FallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, fileName), []byte("{not json"), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, ThrottleMedium, cfg.Settings.CPUThrottle)
}

func TestLoad_PartialFile_FillsMissingFieldsFromDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, fileName),
		[]byte(`{"watchedFolders": ["/home/me/docs"]}`), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"/home/me/docs"}, cfg.WatchedFolders)
	assert.Equal(t, ThrottleMedium, cfg.Settings.CPUThrottle)
	assert.NotEmpty(t, cfg.Settings.ExcludePatterns)

	// Migration rewrites the file with the filled-in fields.
	reloaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, cfg.Settings.CPUThrottle, reloaded.Settings.CPUThrottle)
}

func TestLoad_PreservesExplicitValues(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{
		Version:        1,
		WatchedFolders: []string{"/a"},
		Settings: Settings{
			CPUThrottle:     ThrottleLow,
			ExcludePatterns: []string{"*.tmp"},
		},
	}
	require.NoError(t, Save(dir, cfg))

	reloaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, ThrottleLow, reloaded.Settings.CPUThrottle)
	assert.Equal(t, []string{"*.tmp"}, reloaded.Settings.ExcludePatterns)
}

func TestConfig_AddAndRemoveWatchedFolder(t *testing.T) {
	cfg := Defaults()
	cfg.AddWatchedFolder("/a")
	cfg.AddWatchedFolder("/a") // no duplicate
	cfg.AddWatchedFolder("/b")
	assert.Equal(t, []string{"/a", "/b"}, cfg.WatchedFolders)

	cfg.RemoveWatchedFolder("/a")
	assert.Equal(t, []string{"/b"}, cfg.WatchedFolders)
}
