package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tradeReady fills in the fields Defaults leaves for the operator.
func tradeReady() Config {
	cfg := Defaults()
	cfg.Drift.GatewayURL = "https://gateway.example.com"
	return cfg
}

func TestDefaultsValidateForTradeMode(t *testing.T) {
	cfg := tradeReady()
	assert.NoError(t, cfg.Validate())
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "yolo"
	cfg.LogLevel = "loud"
	cfg.Drift.Market = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown mode "yolo"`)
	assert.Contains(t, err.Error(), `unknown log_level "loud"`)
	assert.Contains(t, err.Error(), "market must not be empty")
}

func TestValidateModeRequirements(t *testing.T) {
	t.Run("trade needs a gateway", func(t *testing.T) {
		cfg := Defaults()
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "gateway_url")
	})

	t.Run("backtest needs postgres", func(t *testing.T) {
		cfg := Defaults()
		cfg.Mode = "backtest"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "postgres must be enabled")
	})

	t.Run("optimize needs a grid", func(t *testing.T) {
		cfg := Defaults()
		cfg.Mode = "optimize"
		cfg.Postgres.Enabled = true
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "grid must not be empty")
	})

	t.Run("monitor needs redis", func(t *testing.T) {
		cfg := Defaults()
		cfg.Mode = "monitor"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "redis must be enabled")
	})
}

func TestValidateAdvisor(t *testing.T) {
	cfg := tradeReady()
	cfg.Advisor.Enabled = true
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key is required")

	cfg.Advisor.ApiKey = "sk-test"
	assert.NoError(t, cfg.Validate())

	cfg.Advisor.Fallback = "panic"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown fallback")
}

func TestLoadFromTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "monitor"
log_level = "debug"

[drift]
market = "BTC-PERP"
poll_interval = "10s"

[redis]
enabled = true
addr = "redis.internal:6379"

[strategy]
name = "funding_fade"

[strategy.params]
funding_extreme = 0.02
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "monitor", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "BTC-PERP", cfg.Drift.Market)
	assert.Equal(t, 10*time.Second, cfg.Drift.PollInterval.Duration)
	assert.Equal(t, "funding_fade", cfg.Strategy.Name)
	assert.Equal(t, 0.02, cfg.Strategy.Params["funding_extreme"])
	// Untouched sections keep their defaults.
	assert.Equal(t, "https://data.api.drift.trade", cfg.Drift.DataURL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DRIFTBOT_MODE", "monitor")
	t.Setenv("DRIFTBOT_DRIFT_MARKET", "ETH-PERP")
	t.Setenv("DRIFTBOT_REDIS_ENABLED", "true")
	t.Setenv("DRIFTBOT_RISK_MIN_CONFIDENCE", "0.65")
	t.Setenv("DRIFTBOT_DRIFT_POLL_INTERVAL", "2s")
	t.Setenv("DRIFTBOT_NOTIFY_EVENTS", "entry, exit")

	cfg := Defaults()
	applyEnvOverrides(&cfg)
	assert.Equal(t, "monitor", cfg.Mode)
	assert.Equal(t, "ETH-PERP", cfg.Drift.Market)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 0.65, cfg.Risk.MinConfidence)
	assert.Equal(t, 2*time.Second, cfg.Drift.PollInterval.Duration)
	assert.Equal(t, []string{"entry", "exit"}, cfg.Notify.Events)
}

func TestEnvOverrideIgnoresMalformedValues(t *testing.T) {
	t.Setenv("DRIFTBOT_RISK_MIN_CONFIDENCE", "very high")

	cfg := Defaults()
	applyEnvOverrides(&cfg)
	assert.Equal(t, Defaults().Risk.MinConfidence, cfg.Risk.MinConfidence)
}

func TestRedacted(t *testing.T) {
	cfg := Defaults()
	cfg.Drift.GatewayToken = "tok-123"
	cfg.Advisor.ApiKey = "sk-live"
	cfg.Postgres.Password = "hunter2"
	cfg.S3.SecretKey = "minio-secret"

	red := cfg.Redacted()
	assert.Equal(t, "[REDACTED]", red.Drift.GatewayToken)
	assert.Equal(t, "[REDACTED]", red.Advisor.ApiKey)
	assert.Equal(t, "[REDACTED]", red.Postgres.Password)
	assert.Equal(t, "[REDACTED]", red.S3.SecretKey)
	assert.Empty(t, red.Redis.Password, "unset credentials stay empty")

	// The original is untouched.
	assert.Equal(t, "tok-123", cfg.Drift.GatewayToken)
}
