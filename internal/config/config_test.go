package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	cfg := NewConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, "file", cfg.Table)
	assert.Equal(t, []string{"sha256"}, cfg.CacheFields)
	assert.Equal(t, "sha256", cfg.HashAlgo)
	assert.True(t, cfg.CaseInsensitiveDatabase)
	assert.False(t, cfg.CaseInsensitiveFilesystem)
	assert.False(t, cfg.ReindexAll)
	assert.False(t, cfg.RemoveNonexistentFromIndex)
	assert.False(t, cfg.ProcessSymlinks)
	assert.False(t, cfg.SortDirectoryEntries)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
}

func TestHashField_UsesFirstCacheField(t *testing.T) {
	cfg := NewConfig()
	cfg.CacheFields = []string{"sha1", "size"}
	assert.Equal(t, "sha1", cfg.HashField())
}

func TestHashField_FallsBackWhenEmpty(t *testing.T) {
	cfg := NewConfig()
	cfg.CacheFields = nil
	assert.Equal(t, "sha256", cfg.HashField())
}

func TestValidate_RequiresAllowedBaseDirectory(t *testing.T) {
	cfg := NewConfig()
	err := cfg.Validate()
	assert.ErrorContains(t, err, "allowed_base_directory is required")
}

func TestValidate_RequiresAbsoluteAllowedBaseDirectory(t *testing.T) {
	cfg := NewConfig()
	cfg.AllowedBaseDirectory = "relative/path"
	err := cfg.Validate()
	assert.ErrorContains(t, err, "must be absolute")
}

func TestValidate_RejectsUnknownLogLevel(t *testing.T) {
	cfg := NewConfig()
	cfg.AllowedBaseDirectory = "/srv/data"
	cfg.LogLevel = "verbose"
	err := cfg.Validate()
	assert.ErrorContains(t, err, "log_level")
}

func TestValidate_RejectsUnknownStoreDriver(t *testing.T) {
	cfg := NewConfig()
	cfg.AllowedBaseDirectory = "/srv/data"
	cfg.Store.Driver = "oracle"
	err := cfg.Validate()
	assert.ErrorContains(t, err, "store.driver")
}

func TestValidate_MySQLRequiresDriverName(t *testing.T) {
	cfg := NewConfig()
	cfg.AllowedBaseDirectory = "/srv/data"
	cfg.Store.Driver = "mysql"
	err := cfg.Validate()
	assert.ErrorContains(t, err, "mysql_driver_name")

	cfg.Store.MySQLDriverName = "mysql"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_AcceptsCompleteConfig(t *testing.T) {
	cfg := NewConfig()
	cfg.AllowedBaseDirectory = "/srv/data"
	assert.NoError(t, cfg.Validate())
}

func TestLoad_AppliesProjectConfigOverDefaults(t *testing.T) {
	dir := t.TempDir()
	base := t.TempDir()
	yamlContent := "allowed_base_directory: " + base + "\ncase_insensitive_filesystem: true\nstore:\n  driver: sqlite\n  dsn: project.db\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".indexsync.yaml"), []byte(yamlContent), 0644))

	origXDG := os.Getenv("XDG_CONFIG_HOME")
	os.Setenv("XDG_CONFIG_HOME", t.TempDir())
	defer os.Setenv("XDG_CONFIG_HOME", origXDG)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, base, cfg.AllowedBaseDirectory)
	assert.True(t, cfg.CaseInsensitiveFilesystem)
	assert.Equal(t, "project.db", cfg.Store.DSN)
}

func TestLoad_EnvOverridesProjectConfig(t *testing.T) {
	dir := t.TempDir()
	base := t.TempDir()
	envBase := t.TempDir()
	yamlContent := "allowed_base_directory: " + base + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".indexsync.yaml"), []byte(yamlContent), 0644))

	origXDG := os.Getenv("XDG_CONFIG_HOME")
	os.Setenv("XDG_CONFIG_HOME", t.TempDir())
	defer os.Setenv("XDG_CONFIG_HOME", origXDG)

	os.Setenv("INDEXSYNC_ALLOWED_BASE_DIRECTORY", envBase)
	defer os.Unsetenv("INDEXSYNC_ALLOWED_BASE_DIRECTORY")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, envBase, cfg.AllowedBaseDirectory)
}

func TestLoad_FailsValidationWithoutAllowedBaseDirectory(t *testing.T) {
	dir := t.TempDir()

	origXDG := os.Getenv("XDG_CONFIG_HOME")
	os.Setenv("XDG_CONFIG_HOME", t.TempDir())
	defer os.Setenv("XDG_CONFIG_HOME", origXDG)

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestGetUserConfigPath_RespectsXDG(t *testing.T) {
	origXDG := os.Getenv("XDG_CONFIG_HOME")
	os.Setenv("XDG_CONFIG_HOME", "/custom/xdg")
	defer os.Setenv("XDG_CONFIG_HOME", origXDG)

	assert.Equal(t, "/custom/xdg/indexsync/config.yaml", GetUserConfigPath())
}
