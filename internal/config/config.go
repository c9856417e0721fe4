// Package config loads the pipeline configuration file. Every setting has
// a default so the binary runs with no config at all; a YAML file (and CLI
// flags above it) override selectively.
package config

import (
	"bytes"
	"fmt"
	"os"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config holds the settings shared by every pipeline command.
type Config struct {
	// DataDir is the directory holding the five source CSV exports.
	DataDir string `yaml:"data_dir"`

	// WarehouseDir is the directory the warehouse writes run snapshots
	// under. Each run gets its own subdirectory; a `current` symlink
	// points at the live one.
	WarehouseDir string `yaml:"warehouse_dir"`

	// LedgerPath is the SQLite database recording run history.
	LedgerPath string `yaml:"ledger_path"`

	// Policy is an optional CUE policy file. Empty uses the embedded
	// default catalog and thresholds.
	Policy string `yaml:"policy,omitempty"`

	// KeepRuns is how many published snapshots prune retains.
	KeepRuns int `yaml:"keep_runs"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		DataDir:      "data",
		WarehouseDir: "warehouse",
		LedgerPath:   "warehouse/runs.db",
		KeepRuns:     5,
		LogLevel:     "info",
	}
}

// Load reads a YAML config file. An empty path returns the defaults.
// Settings omitted from the file keep their default values; unknown keys
// are rejected so typos surface immediately.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first problem with the configuration. Load runs it
// on every file it parses; callers that override fields afterwards (CLI
// flags) should run it again.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.WarehouseDir == "" {
		return fmt.Errorf("warehouse_dir is required")
	}
	if c.LedgerPath == "" {
		return fmt.Errorf("ledger_path is required")
	}
	if c.KeepRuns < 1 {
		return fmt.Errorf("keep_runs must be at least 1, got %d", c.KeepRuns)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}

// ZapLevel parses LogLevel. Validate catches bad levels first; on a
// hand-constructed Config an unparseable level falls back to info.
func (c *Config) ZapLevel() zapcore.Level {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.InfoLevel
	}
	return level
}
