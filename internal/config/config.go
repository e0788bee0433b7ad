// Package config loads Xylem configuration from file and environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds runtime configuration for the store, server, and the
// reconciliation policy knobs that are tunable rather than hard law.
type Config struct {
	// DataDir is where the SQLite database lives. Defaults to ~/.xylem.
	DataDir string `koanf:"data_dir"`

	// ListenAddr is the HTTP API bind address.
	ListenAddr string `koanf:"listen_addr"`

	// SemanticCap bounds the confidence of semantic facts below exactness.
	SemanticCap float64 `koanf:"semantic_cap"`

	// HistoryLimit bounds the engine's in-memory conflict history.
	HistoryLimit int `koanf:"history_limit"`

	// StrictKeys are additional identity keys where canonical wins
	// unconditionally, on top of the built-in set.
	StrictKeys []string `koanf:"strict_keys"`

	// PreferenceKeys are additional preference keys, on top of the
	// built-in set.
	PreferenceKeys []string `koanf:"preference_keys"`
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:   "127.0.0.1:7737",
		SemanticCap:  0.9,
		HistoryLimit: 100,
	}
}

// DataDir resolves the data directory: XYLEM_DATA_DIR, then ~/.xylem.
func DataDir() (string, error) {
	if dir := os.Getenv("XYLEM_DATA_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home dir: %w", err)
	}
	return filepath.Join(home, ".xylem"), nil
}

// Load reads configuration from defaults, then config.yaml in the data
// directory (if present), then XYLEM_* environment overrides.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	dataDir, err := DataDir()
	if err != nil {
		return nil, err
	}
	cfg.DataDir = dataDir

	k := koanf.New(".")

	path := filepath.Join(dataDir, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	// XYLEM_LISTEN_ADDR -> listen_addr, etc.
	if err := k.Load(env.Provider("XYLEM_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "XYLEM_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration contains usable values.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if c.SemanticCap <= 0 || c.SemanticCap > 1 {
		return fmt.Errorf("semantic_cap must be in (0, 1], got %v", c.SemanticCap)
	}
	if c.HistoryLimit < 0 {
		return fmt.Errorf("history_limit must be non-negative")
	}
	return nil
}
