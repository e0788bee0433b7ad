package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XYLEM_DATA_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, "127.0.0.1:7737", cfg.ListenAddr)
	assert.Equal(t, 0.9, cfg.SemanticCap)
	assert.Equal(t, 100, cfg.HistoryLimit)
	assert.Empty(t, cfg.StrictKeys)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XYLEM_DATA_DIR", dir)

	yaml := `
listen_addr: "127.0.0.1:9999"
semantic_cap: 0.8
strict_keys:
  - employee_id
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0600))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9999", cfg.ListenAddr)
	assert.Equal(t, 0.8, cfg.SemanticCap)
	assert.Equal(t, []string{"employee_id"}, cfg.StrictKeys)
	// Unset fields keep their defaults
	assert.Equal(t, 100, cfg.HistoryLimit)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XYLEM_DATA_DIR", dir)

	yaml := `listen_addr: "127.0.0.1:9999"`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0600))

	t.Setenv("XYLEM_LISTEN_ADDR", "127.0.0.1:7000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", cfg.ListenAddr)
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XYLEM_DATA_DIR", dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("listen_addr: [unclosed"), 0600))

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"missing data dir", func(c *Config) { c.DataDir = "" }, true},
		{"missing listen addr", func(c *Config) { c.ListenAddr = "" }, true},
		{"zero semantic cap", func(c *Config) { c.SemanticCap = 0 }, true},
		{"semantic cap above one", func(c *Config) { c.SemanticCap = 1.1 }, true},
		{"semantic cap of one is fine", func(c *Config) { c.SemanticCap = 1.0 }, false},
		{"negative history limit", func(c *Config) { c.HistoryLimit = -1 }, true},
		{"zero history limit disables history", func(c *Config) { c.HistoryLimit = 0 }, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.DataDir = "/tmp/xylem-test"
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDataDir_EnvWins(t *testing.T) {
	t.Setenv("XYLEM_DATA_DIR", "/custom/path")
	dir, err := DataDir()
	require.NoError(t, err)
	assert.Equal(t, "/custom/path", dir)
}
