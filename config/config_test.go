package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "8082", cfg.Server.Port)
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, 8.0, cfg.Scoring.Thresholds.Critical)
	assert.Equal(t, 2, cfg.Gaps.MinCoverageCount)
}

func TestLimitsFallBackToDefaults(t *testing.T) {
	cfg := Default()
	limits := cfg.Limits("never-configured")
	assert.Equal(t, DefaultProviderLimits(), limits)

	cfg.Providers = map[string]ProviderLimits{
		"serp-x": {MonthlyBudget: 100, MaxAttempts: 5},
	}
	limits = cfg.Limits("serp-x")
	assert.Equal(t, 100, limits.MonthlyBudget)
	assert.Equal(t, 5, limits.MaxAttempts)
	// Unset fields are filled in.
	assert.Equal(t, 4, limits.Concurrency)
	assert.Equal(t, 200*time.Millisecond, limits.InitialBackoff)
}

func TestLoadAppliesFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9000"
providers:
  serp-x:
    monthly_budget: 100
    rate_per_second: 1
`), 0644))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "9001")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	// Env beats file, file beats default.
	assert.Equal(t, "9001", cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 100, cfg.Limits("serp-x").MonthlyBudget)
	assert.Equal(t, 1.0, cfg.Limits("serp-x").RatePerSecond)
}

func TestLoadRejectsBadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{not yaml"), 0644))

	t.Setenv("CONFIG_FILE", path)
	_, err := Load()
	assert.Error(t, err)
}
