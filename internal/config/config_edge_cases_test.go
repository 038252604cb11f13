package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Edge case tests for scenarios that could cause silent failures or
// unexpected behavior when loading and validating configuration.

func TestLoad_UnreadableConfigFile_ReturnsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".indexsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: valid: yaml: at: all: [["), 0644))

	origXDG := os.Getenv("XDG_CONFIG_HOME")
	os.Setenv("XDG_CONFIG_HOME", t.TempDir())
	defer os.Setenv("XDG_CONFIG_HOME", origXDG)

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestLoad_PrefersYAMLOverYML(t *testing.T) {
	dir := t.TempDir()
	base := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".indexsync.yaml"), []byte("allowed_base_directory: "+base+"\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".indexsync.yml"), []byte("allowed_base_directory: /wrong\n"), 0644))

	origXDG := os.Getenv("XDG_CONFIG_HOME")
	os.Setenv("XDG_CONFIG_HOME", t.TempDir())
	defer os.Setenv("XDG_CONFIG_HOME", origXDG)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, base, cfg.AllowedBaseDirectory)
}

func TestLoad_NoProjectConfig_UsesDefaultsPlusEnv(t *testing.T) {
	dir := t.TempDir()
	base := t.TempDir()

	origXDG := os.Getenv("XDG_CONFIG_HOME")
	os.Setenv("XDG_CONFIG_HOME", t.TempDir())
	defer os.Setenv("XDG_CONFIG_HOME", origXDG)

	os.Setenv("INDEXSYNC_ALLOWED_BASE_DIRECTORY", base)
	defer os.Unsetenv("INDEXSYNC_ALLOWED_BASE_DIRECTORY")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, base, cfg.AllowedBaseDirectory)
	assert.Equal(t, "file", cfg.Table)
}

func TestApplyEnvOverrides_InvalidBoolLeavesPriorValue(t *testing.T) {
	cfg := NewConfig()
	cfg.ReindexAll = false

	os.Setenv("INDEXSYNC_REINDEX_ALL", "not-a-bool")
	defer os.Unsetenv("INDEXSYNC_REINDEX_ALL")

	cfg.applyEnvOverrides()
	assert.False(t, cfg.ReindexAll)
}

func TestApplyEnvOverrides_ValidBoolOverrides(t *testing.T) {
	cfg := NewConfig()
	cfg.ReindexAll = false

	os.Setenv("INDEXSYNC_REINDEX_ALL", "true")
	defer os.Unsetenv("INDEXSYNC_REINDEX_ALL")

	cfg.applyEnvOverrides()
	assert.True(t, cfg.ReindexAll)
}

func TestConfig_JSONRoundTrip(t *testing.T) {
	cfg := NewConfig()
	cfg.AllowedBaseDirectory = "/srv/data"
	cfg.CaseInsensitiveFilesystem = true

	data, err := json.Marshal(cfg)
	require.NoError(t, err)

	var decoded Config
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, cfg.AllowedBaseDirectory, decoded.AllowedBaseDirectory)
	assert.Equal(t, cfg.CaseInsensitiveFilesystem, decoded.CaseInsensitiveFilesystem)
	assert.Equal(t, cfg.Store.Driver, decoded.Store.Driver)
}

func TestConfig_UnmarshalJSON_InvalidJSON_ReturnsError(t *testing.T) {
	var cfg Config
	err := json.Unmarshal([]byte("{not valid"), &cfg)
	assert.Error(t, err)
}

func TestMergeWith_BooleanOverlayReplacesWholesale(t *testing.T) {
	base := NewConfig()
	base.ReindexAll = true

	overlay := NewConfig()
	overlay.ReindexAll = false

	base.mergeWith(overlay)
	assert.False(t, base.ReindexAll)
}

func TestMergeWith_EmptyCacheFieldsLeavesDefault(t *testing.T) {
	base := NewConfig()
	overlay := &Config{}

	base.mergeWith(overlay)
	assert.Equal(t, []string{"sha256"}, base.CacheFields)
}
