package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.WorkerSettings.MaxWorkers)
	assert.Equal(t, 15*time.Second, cfg.AcquisitionSettings.HttpTimeout)
	assert.Equal(t, 45*time.Second, cfg.AcquisitionSettings.BrowserTimeout)
	assert.Equal(t, 90*time.Second, cfg.AcquisitionSettings.ChatbotTimeout)
	assert.Equal(t, 1, cfg.AcquisitionSettings.MinViableFields)
	assert.Equal(t, 1, cfg.AssembleSettings.MaxMissingRequired)
	assert.Equal(t, "networkIdle", cfg.BrowserSettings.SettleEvent)
	eur := 0.0
	for code, rate := range cfg.CurrencySettings.Rates {
		if strings.EqualFold(code, "EUR") {
			eur = rate
		}
	}
	assert.InDelta(t, 1.08, eur, 1e-9)
	assert.False(t, cfg.DbSettings.Enabled)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	body := []byte(`
log_level: debug
worker:
  max_workers: 0
acquisition:
  http_timeout: 3s
  min_viable_fields: 2
browser:
  enabled: false
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), body, 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 1, cfg.WorkerSettings.MaxWorkers, "worker count is clamped to one")
	assert.Equal(t, 3*time.Second, cfg.AcquisitionSettings.HttpTimeout)
	assert.Equal(t, 2, cfg.AcquisitionSettings.MinViableFields)
	assert.False(t, cfg.BrowserSettings.Enabled)
	assert.True(t, cfg.ChatbotSettings.Enabled)
}

func TestLoad_BrokenFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("worker: [\n"), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}
