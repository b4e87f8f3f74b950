package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults_PassesValidation(t *testing.T) {
	require.NoError(t, Validate(Defaults()))
}

func TestDefaults_FieldValues(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 500*time.Millisecond, cfg.XDMAPollInterval)
	assert.Equal(t, "127.0.0.1:9321", cfg.Metrics.Address)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestValidate_RejectsUnknownLogLevel(t *testing.T) {
	cfg := Defaults()
	cfg.Logging.Level = "VERBOSE"
	assert.Error(t, Validate(cfg))
}

func TestValidate_RejectsUnknownLogFormat(t *testing.T) {
	cfg := Defaults()
	cfg.Logging.Format = "xml"
	assert.Error(t, Validate(cfg))
}

func TestValidate_RejectsNonPositivePollInterval(t *testing.T) {
	cfg := Defaults()
	cfg.XDMAPollInterval = 0
	assert.Error(t, Validate(cfg))
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: DEBUG\n  format: json\nxdma_poll_interval: 2s\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 2*time.Second, cfg.XDMAPollInterval)
	// Untouched sections keep their defaults.
	assert.Equal(t, "127.0.0.1:9321", cfg.Metrics.Address)
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults().Logging, cfg.Logging)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	t.Setenv("DEVICEACCESS_LOGGING_LEVEL", "ERROR")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: DEBUG\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ERROR", cfg.Logging.Level)
}
