package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func writeConfig(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quarry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, "warehouse", cfg.WarehouseDir)
	assert.Equal(t, "warehouse/runs.db", cfg.LedgerPath)
	assert.Equal(t, "", cfg.Policy)
	assert.Equal(t, 5, cfg.KeepRuns)
	assert.Equal(t, zapcore.InfoLevel, cfg.ZapLevel())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
data_dir: /srv/exports
keep_runs: 12
log_level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/exports", cfg.DataDir)
	assert.Equal(t, 12, cfg.KeepRuns)
	assert.Equal(t, zapcore.DebugLevel, cfg.ZapLevel())

	// Omitted keys keep their defaults.
	assert.Equal(t, "warehouse", cfg.WarehouseDir)
	assert.Equal(t, "warehouse/runs.db", cfg.LedgerPath)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
data_dir: data
warehose_dir: oops
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "warehose_dir")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidation(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want string
	}{
		{"empty data_dir", `data_dir: ""`, "data_dir is required"},
		{"zero keep_runs", `keep_runs: 0`, "keep_runs must be at least 1"},
		{"bad log level", `log_level: loud`, "log_level"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
