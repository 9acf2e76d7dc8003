package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingExplicitFileFails(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	require.Nil(t, cfg)
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "/ril_0", cfg.Bus.BasePath)
	require.Equal(t, "info", cfg.Logging.Level)
	require.True(t, cfg.Metrics.Enabled)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connmand.yaml")
	yamlBody := "bus:\n  base_path: /ril_1\nlogging:\n  level: debug\nmetrics:\n  enabled: false\n"
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/ril_1", cfg.Bus.BasePath)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.False(t, cfg.Metrics.Enabled)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	t.Setenv("CONNMAND_BUS_BASE_PATH", "/ril_9")
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "/ril_9", cfg.Bus.BasePath)
}
