// Package config loads and validates defsearch configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	apperr "github.com/definium/defsearch/internal/errors"
)

// Config represents the complete defsearch configuration.
type Config struct {
	Version int           `yaml:"version" json:"version"`
	Paths   PathsConfig   `yaml:"paths" json:"paths"`
	Search  SearchConfig  `yaml:"search" json:"search"`
	Ingest  IngestConfig  `yaml:"ingest" json:"ingest"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// PathsConfig configures where data lives on disk.
type PathsConfig struct {
	// DataDir holds the SQLite store, the index (fts backend), and the
	// ingest lock file. Default: ~/.defsearch.
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// SearchConfig configures the search engine and query orchestrator.
type SearchConfig struct {
	// Backend selects the index backend: "memory" (default) or "fts".
	Backend string `yaml:"backend" json:"backend"`

	// DefaultLimit is the result limit applied when a query does not set one.
	DefaultLimit int `yaml:"default_limit" json:"default_limit"`

	// MaxLimit is the hard cap on requested result limits.
	MaxLimit int `yaml:"max_limit" json:"max_limit"`

	// MinQueryLength is the minimum significant query length; shorter
	// queries short-circuit to an empty result set.
	MinQueryLength int `yaml:"min_query_length" json:"min_query_length"`

	// DebounceWindow is how long typing must be quiescent before a
	// search fires (e.g. "300ms").
	DebounceWindow string `yaml:"debounce_window" json:"debounce_window"`

	// AdvancedDelimiter splits advanced-mode keyword lists.
	AdvancedDelimiter string `yaml:"advanced_delimiter" json:"advanced_delimiter"`

	// CacheSize is the query-result LRU cache capacity.
	CacheSize int `yaml:"cache_size" json:"cache_size"`

	// StopWords are tokens excluded from the index. Empty by default:
	// SQL keywords are legitimate search terms in this domain.
	StopWords []string `yaml:"stop_words" json:"stop_words"`
}

// IngestConfig configures ingestion behavior.
type IngestConfig struct {
	// WatchDebounce coalesces filesystem events in watch mode.
	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce"`

	// MaxSetSizeMB caps the size of a single decoded document set.
	MaxSetSizeMB int `yaml:"max_set_size_mb" json:"max_set_size_mb"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			DataDir: DefaultDataDir(),
		},
		Search: SearchConfig{
			Backend:           "memory",
			DefaultLimit:      50,
			MaxLimit:          200,
			MinQueryLength:    2,
			DebounceWindow:    "300ms",
			AdvancedDelimiter: ";",
			CacheSize:         256,
		},
		Ingest: IngestConfig{
			WatchDebounce: "500ms",
			MaxSetSizeMB:  64,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// DefaultDataDir returns the default data directory (~/.defsearch).
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".defsearch")
	}
	return filepath.Join(home, ".defsearch")
}

// Load loads configuration with increasing precedence:
//  1. Hardcoded defaults
//  2. Config file (<dataDir>/config.yaml, or DEFSEARCH_CONFIG path)
//  3. Environment variables (DEFSEARCH_*)
func Load() (*Config, error) {
	cfg := NewConfig()

	path := os.Getenv("DEFSEARCH_CONFIG")
	explicit := path != ""
	if path == "" {
		path = filepath.Join(cfg.Paths.DataDir, "config.yaml")
	}
	if _, err := os.Stat(path); err == nil {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	} else if explicit {
		// A missing implicit config falls back to defaults; a missing
		// explicitly requested one is a user error.
		return nil, apperr.New(apperr.ErrCodeConfigNotFound,
			fmt.Sprintf("config file %s does not exist", path), err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
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
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.Paths.DataDir != "" {
		c.Paths.DataDir = other.Paths.DataDir
	}
	if other.Search.Backend != "" {
		c.Search.Backend = other.Search.Backend
	}
	if other.Search.DefaultLimit != 0 {
		c.Search.DefaultLimit = other.Search.DefaultLimit
	}
	if other.Search.MaxLimit != 0 {
		c.Search.MaxLimit = other.Search.MaxLimit
	}
	if other.Search.MinQueryLength != 0 {
		c.Search.MinQueryLength = other.Search.MinQueryLength
	}
	if other.Search.DebounceWindow != "" {
		c.Search.DebounceWindow = other.Search.DebounceWindow
	}
	if other.Search.AdvancedDelimiter != "" {
		c.Search.AdvancedDelimiter = other.Search.AdvancedDelimiter
	}
	if other.Search.CacheSize != 0 {
		c.Search.CacheSize = other.Search.CacheSize
	}
	if len(other.Search.StopWords) > 0 {
		c.Search.StopWords = other.Search.StopWords
	}
	if other.Ingest.WatchDebounce != "" {
		c.Ingest.WatchDebounce = other.Ingest.WatchDebounce
	}
	if other.Ingest.MaxSetSizeMB != 0 {
		c.Ingest.MaxSetSizeMB = other.Ingest.MaxSetSizeMB
	}
	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
	if other.Logging.MaxFiles != 0 {
		c.Logging.MaxFiles = other.Logging.MaxFiles
	}
}

// applyEnvOverrides applies DEFSEARCH_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DEFSEARCH_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
	if v := os.Getenv("DEFSEARCH_BACKEND"); v != "" {
		c.Search.Backend = v
	}
	if v := os.Getenv("DEFSEARCH_DEBOUNCE"); v != "" {
		c.Search.DebounceWindow = v
	}
	if v := os.Getenv("DEFSEARCH_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.DefaultLimit = n
		}
	}
	if v := os.Getenv("DEFSEARCH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	switch c.Search.Backend {
	case "memory", "fts":
	default:
		return fmt.Errorf("search.backend must be \"memory\" or \"fts\", got %q", c.Search.Backend)
	}

	if c.Search.DefaultLimit <= 0 {
		return fmt.Errorf("search.default_limit must be positive, got %d", c.Search.DefaultLimit)
	}
	if c.Search.MaxLimit < c.Search.DefaultLimit {
		return fmt.Errorf("search.max_limit (%d) must be >= search.default_limit (%d)",
			c.Search.MaxLimit, c.Search.DefaultLimit)
	}
	if c.Search.MinQueryLength < 1 {
		return fmt.Errorf("search.min_query_length must be at least 1, got %d", c.Search.MinQueryLength)
	}
	if _, err := time.ParseDuration(c.Search.DebounceWindow); err != nil {
		return fmt.Errorf("search.debounce_window: %w", err)
	}
	if _, err := time.ParseDuration(c.Ingest.WatchDebounce); err != nil {
		return fmt.Errorf("ingest.watch_debounce: %w", err)
	}
	if c.Ingest.MaxSetSizeMB <= 0 {
		return fmt.Errorf("ingest.max_set_size_mb must be positive, got %d", c.Ingest.MaxSetSizeMB)
	}
	if c.Search.CacheSize <= 0 {
		return fmt.Errorf("search.cache_size must be positive, got %d", c.Search.CacheSize)
	}
	return nil
}

// DebounceWindow returns the parsed debounce duration.
// Validate must have succeeded first.
func (c *Config) DebounceWindow() time.Duration {
	d, err := time.ParseDuration(c.Search.DebounceWindow)
	if err != nil {
		return 300 * time.Millisecond
	}
	return d
}

// WatchDebounce returns the parsed watch-mode debounce duration.
func (c *Config) WatchDebounce() time.Duration {
	d, err := time.ParseDuration(c.Ingest.WatchDebounce)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

// MaxSetBytes returns the per-set size cap in bytes.
func (c *Config) MaxSetBytes() int64 {
	return int64(c.Ingest.MaxSetSizeMB) << 20
}

// StorePath returns the SQLite document store path.
func (c *Config) StorePath() string {
	return filepath.Join(c.Paths.DataDir, "definitions.db")
}

// IndexPath returns the FTS index path (fts backend only).
func (c *Config) IndexPath() string {
	return filepath.Join(c.Paths.DataDir, "index.db")
}

// LockPath returns the ingest lock file path.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "ingest.lock")
}

// Save writes the configuration as YAML to the given path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
