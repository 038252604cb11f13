package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the immutable configuration bag for a reconciliation run:
// read once at construction time and validated before the engine ever
// touches it.
type Config struct {
	// AllowedBaseDirectory is the root beyond which the engine will
	// never read or write. Required.
	AllowedBaseDirectory string `yaml:"allowed_base_directory" json:"allowed_base_directory"`

	// BaseDirectory resolves relative inputs passed to process_paths.
	// Defaults to the process working directory.
	BaseDirectory string `yaml:"base_directory" json:"base_directory"`

	// Table is the name of the backing SQL table.
	Table string `yaml:"table" json:"table"`

	// CacheFields lists the columns fetched/written besides fid, dir,
	// filename. The first entry is the hash column.
	CacheFields []string `yaml:"cache_fields" json:"cache_fields"`

	// HashAlgo names the algorithm passed to the hash function.
	HashAlgo string `yaml:"hash_algo" json:"hash_algo"`

	CaseInsensitiveDatabase   bool `yaml:"case_insensitive_database" json:"case_insensitive_database"`
	CaseInsensitiveFilesystem bool `yaml:"case_insensitive_filesystem" json:"case_insensitive_filesystem"`
	ReindexAll                bool `yaml:"reindex_all" json:"reindex_all"`
	RemoveNonexistentFromIndex bool `yaml:"remove_nonexistent_from_index" json:"remove_nonexistent_from_index"`
	ProcessSymlinks           bool `yaml:"process_symlinks" json:"process_symlinks"`
	SortDirectoryEntries      bool `yaml:"sort_directory_entries" json:"sort_directory_entries"`

	// LogLevel and the rest below are the ambient additions this
	// implementation layers on top of the core schema.
	LogLevel string `yaml:"log_level" json:"log_level"`

	Store    StoreConfig    `yaml:"store" json:"store"`
	Watch    WatchConfig    `yaml:"watch" json:"watch"`
	Progress bool           `yaml:"progress" json:"progress"`
}

// StoreConfig selects and configures the Record Store backend.
type StoreConfig struct {
	// Driver selects the backend: "sqlite", "postgres", or "mysql".
	Driver string `yaml:"driver" json:"driver"`
	// DSN is the driver-specific connection string. For sqlite this is
	// a file path (or ":memory:").
	DSN string `yaml:"dsn" json:"dsn"`
	// MySQLDriverName names the database/sql driver registered by the
	// caller for the "mysql" backend (this module imports no MySQL
	// driver itself).
	MySQLDriverName string `yaml:"mysql_driver_name" json:"mysql_driver_name"`
}

// WatchConfig configures the optional continuous-reconcile mode.
type WatchConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Debounce string `yaml:"debounce" json:"debounce"`
}

// NewConfig returns a Config populated with the documented defaults.
// AllowedBaseDirectory is left empty; callers must set it (or load it
// from a file/env override) before Validate will pass.
func NewConfig() *Config {
	return &Config{
		Table:                      "file",
		CacheFields:                []string{"sha256"},
		HashAlgo:                   "sha256",
		CaseInsensitiveDatabase:    true,
		CaseInsensitiveFilesystem:  false,
		ReindexAll:                 false,
		RemoveNonexistentFromIndex: false,
		ProcessSymlinks:            false,
		SortDirectoryEntries:       false,
		LogLevel:                   "info",
		Store: StoreConfig{
			Driver: "sqlite",
			DSN:    "indexsync.db",
		},
		Watch: WatchConfig{
			Enabled:  false,
			Debounce: "500ms",
		},
	}
}

// HashField returns the authoritative hash column name: the first
// entry of CacheFields.
func (c *Config) HashField() string {
	if len(c.CacheFields) == 0 {
		return "sha256"
	}
	return c.CacheFields[0]
}

// GetUserConfigPath returns the path to the user/global configuration
// file, following the XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/indexsync/config.yaml (if set)
//   - ~/.config/indexsync/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "indexsync", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "indexsync", "config.yaml")
	}
	return filepath.Join(home, ".config", "indexsync", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists reports whether the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user/global configuration file if present.
// A nil config and nil error both mean "no user config, use defaults".
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return cfg, nil
}

// LoadUserConfig loads the user configuration file, or nil if absent.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}

// Load builds the final configuration for a reconciliation run,
// applying sources in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/indexsync/config.yaml)
//  3. Project config (.indexsync.yaml in dir)
//  4. Environment variables (INDEXSYNC_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load .indexsync.yaml or .indexsync.yml from dir.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".indexsync.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".indexsync.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.AllowedBaseDirectory != "" {
		c.AllowedBaseDirectory = other.AllowedBaseDirectory
	}
	if other.BaseDirectory != "" {
		c.BaseDirectory = other.BaseDirectory
	}
	if other.Table != "" {
		c.Table = other.Table
	}
	if len(other.CacheFields) > 0 {
		c.CacheFields = other.CacheFields
	}
	if other.HashAlgo != "" {
		c.HashAlgo = other.HashAlgo
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}

	// Booleans have no reliable zero-value sentinel once parsed from
	// YAML, so a full overlay document replaces these wholesale; a
	// partial overlay (e.g. project config only setting one field)
	// should be authored as a full section rather than a lone key.
	c.CaseInsensitiveDatabase = other.CaseInsensitiveDatabase
	c.CaseInsensitiveFilesystem = other.CaseInsensitiveFilesystem
	c.ReindexAll = other.ReindexAll
	c.RemoveNonexistentFromIndex = other.RemoveNonexistentFromIndex
	c.ProcessSymlinks = other.ProcessSymlinks
	c.SortDirectoryEntries = other.SortDirectoryEntries

	if other.Store.Driver != "" {
		c.Store.Driver = other.Store.Driver
	}
	if other.Store.DSN != "" {
		c.Store.DSN = other.Store.DSN
	}
	if other.Store.MySQLDriverName != "" {
		c.Store.MySQLDriverName = other.Store.MySQLDriverName
	}
	if other.Watch.Debounce != "" {
		c.Watch.Debounce = other.Watch.Debounce
	}
	c.Watch.Enabled = other.Watch.Enabled
	c.Progress = other.Progress
}

// applyEnvOverrides applies INDEXSYNC_* environment variable overrides,
// the highest-precedence configuration source.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("INDEXSYNC_ALLOWED_BASE_DIRECTORY"); v != "" {
		c.AllowedBaseDirectory = v
	}
	if v := os.Getenv("INDEXSYNC_BASE_DIRECTORY"); v != "" {
		c.BaseDirectory = v
	}
	if v := os.Getenv("INDEXSYNC_TABLE"); v != "" {
		c.Table = v
	}
	if v := os.Getenv("INDEXSYNC_HASH_ALGO"); v != "" {
		c.HashAlgo = v
	}
	if v := os.Getenv("INDEXSYNC_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("INDEXSYNC_CASE_INSENSITIVE_DATABASE"); v != "" {
		c.CaseInsensitiveDatabase = parseBool(v, c.CaseInsensitiveDatabase)
	}
	if v := os.Getenv("INDEXSYNC_CASE_INSENSITIVE_FILESYSTEM"); v != "" {
		c.CaseInsensitiveFilesystem = parseBool(v, c.CaseInsensitiveFilesystem)
	}
	if v := os.Getenv("INDEXSYNC_REINDEX_ALL"); v != "" {
		c.ReindexAll = parseBool(v, c.ReindexAll)
	}
	if v := os.Getenv("INDEXSYNC_REMOVE_NONEXISTENT_FROM_INDEX"); v != "" {
		c.RemoveNonexistentFromIndex = parseBool(v, c.RemoveNonexistentFromIndex)
	}
	if v := os.Getenv("INDEXSYNC_PROCESS_SYMLINKS"); v != "" {
		c.ProcessSymlinks = parseBool(v, c.ProcessSymlinks)
	}
	if v := os.Getenv("INDEXSYNC_SORT_DIRECTORY_ENTRIES"); v != "" {
		c.SortDirectoryEntries = parseBool(v, c.SortDirectoryEntries)
	}
	if v := os.Getenv("INDEXSYNC_STORE_DRIVER"); v != "" {
		c.Store.Driver = v
	}
	if v := os.Getenv("INDEXSYNC_STORE_DSN"); v != "" {
		c.Store.DSN = v
	}
	if v := os.Getenv("INDEXSYNC_WATCH_ENABLED"); v != "" {
		c.Watch.Enabled = parseBool(v, c.Watch.Enabled)
	}
}

func parseBool(v string, fallback bool) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.AllowedBaseDirectory == "" {
		return fmt.Errorf("allowed_base_directory is required")
	}
	if !filepath.IsAbs(c.AllowedBaseDirectory) {
		return fmt.Errorf("allowed_base_directory must be absolute, got %q", c.AllowedBaseDirectory)
	}
	if c.Table == "" {
		return fmt.Errorf("table must not be empty")
	}
	if len(c.CacheFields) == 0 {
		return fmt.Errorf("cache_fields must have at least one entry")
	}
	if c.HashAlgo == "" {
		return fmt.Errorf("hash_algo must not be empty")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.LogLevel)
	}

	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[strings.ToLower(c.Store.Driver)] {
		return fmt.Errorf("store.driver must be 'sqlite', 'postgres', or 'mysql', got %s", c.Store.Driver)
	}
	if strings.ToLower(c.Store.Driver) == "mysql" && c.Store.MySQLDriverName == "" {
		return fmt.Errorf("store.mysql_driver_name is required when store.driver is 'mysql'")
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
