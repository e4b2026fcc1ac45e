package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads configuration from a TOML file at path, then applies environment
// variable overrides. If path is empty, defaults plus env overrides are used.
// A .env file in the working directory is loaded first if present.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return cfg, fmt.Errorf("config: stat %s: %w", path, err)
		}
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	// Best effort; absence of a .env file is not an error.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnvOverrides mutates cfg with values from DRIFTBOT_* environment
// variables. Only variables that are set and non-empty take effect.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Mode, "DRIFTBOT_MODE")
	setStr(&cfg.LogLevel, "DRIFTBOT_LOG_LEVEL")

	setStr(&cfg.Drift.DataURL, "DRIFTBOT_DRIFT_DATA_URL")
	setStr(&cfg.Drift.WsURL, "DRIFTBOT_DRIFT_WS_URL")
	setStr(&cfg.Drift.GatewayURL, "DRIFTBOT_DRIFT_GATEWAY_URL")
	setStr(&cfg.Drift.GatewayToken, "DRIFTBOT_DRIFT_GATEWAY_TOKEN")
	setStr(&cfg.Drift.Market, "DRIFTBOT_DRIFT_MARKET")
	setStr(&cfg.Drift.Resolution, "DRIFTBOT_DRIFT_RESOLUTION")
	setDuration(&cfg.Drift.PollInterval, "DRIFTBOT_DRIFT_POLL_INTERVAL")

	setBool(&cfg.Advisor.Enabled, "DRIFTBOT_ADVISOR_ENABLED")
	setStr(&cfg.Advisor.BaseURL, "DRIFTBOT_ADVISOR_BASE_URL")
	setStr(&cfg.Advisor.ApiKey, "DRIFTBOT_ADVISOR_API_KEY")
	setStr(&cfg.Advisor.Model, "DRIFTBOT_ADVISOR_MODEL")
	setDuration(&cfg.Advisor.Timeout, "DRIFTBOT_ADVISOR_TIMEOUT")
	setInt(&cfg.Advisor.MaxRetries, "DRIFTBOT_ADVISOR_MAX_RETRIES")
	setStr(&cfg.Advisor.Fallback, "DRIFTBOT_ADVISOR_FALLBACK")

	setStr(&cfg.Strategy.Name, "DRIFTBOT_STRATEGY_NAME")
	setInt(&cfg.Strategy.EnsembleQuorum, "DRIFTBOT_STRATEGY_ENSEMBLE_QUORUM")

	setFloat64(&cfg.Risk.MaxPositionSize, "DRIFTBOT_RISK_MAX_POSITION_SIZE")
	setFloat64(&cfg.Risk.RiskPerTradePct, "DRIFTBOT_RISK_PER_TRADE_PCT")
	setFloat64(&cfg.Risk.DailyLossCapPct, "DRIFTBOT_RISK_DAILY_LOSS_CAP_PCT")
	setFloat64(&cfg.Risk.MaxDrawdownPct, "DRIFTBOT_RISK_MAX_DRAWDOWN_PCT")
	setInt(&cfg.Risk.MaxConsecutiveLosses, "DRIFTBOT_RISK_MAX_CONSECUTIVE_LOSSES")
	setFloat64(&cfg.Risk.MinConfidence, "DRIFTBOT_RISK_MIN_CONFIDENCE")

	setFloat64(&cfg.Engine.Equity, "DRIFTBOT_ENGINE_EQUITY")
	setInt(&cfg.Engine.FeatureWindow, "DRIFTBOT_ENGINE_FEATURE_WINDOW")
	setFloat64(&cfg.Engine.FeePct, "DRIFTBOT_ENGINE_FEE_PCT")

	setStr(&cfg.Backtest.Market, "DRIFTBOT_BACKTEST_MARKET")
	setStr(&cfg.Backtest.From, "DRIFTBOT_BACKTEST_FROM")
	setStr(&cfg.Backtest.To, "DRIFTBOT_BACKTEST_TO")

	setStr(&cfg.Optimize.RunID, "DRIFTBOT_OPTIMIZE_RUN_ID")
	setInt(&cfg.Optimize.Samples, "DRIFTBOT_OPTIMIZE_SAMPLES")
	setInt64(&cfg.Optimize.Seed, "DRIFTBOT_OPTIMIZE_SEED")
	setInt(&cfg.Optimize.ChunkSize, "DRIFTBOT_OPTIMIZE_CHUNK_SIZE")

	setBool(&cfg.Postgres.Enabled, "DRIFTBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "DRIFTBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "DRIFTBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "DRIFTBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "DRIFTBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "DRIFTBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "DRIFTBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "DRIFTBOT_POSTGRES_SSL_MODE")

	setBool(&cfg.Redis.Enabled, "DRIFTBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "DRIFTBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "DRIFTBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "DRIFTBOT_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "DRIFTBOT_REDIS_TLS_ENABLED")

	setBool(&cfg.S3.Enabled, "DRIFTBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "DRIFTBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "DRIFTBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "DRIFTBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "DRIFTBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "DRIFTBOT_S3_SECRET_KEY")

	setStr(&cfg.Notify.TelegramToken, "DRIFTBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "DRIFTBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "DRIFTBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "DRIFTBOT_NOTIFY_EVENTS")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			*dst = out
		}
	}
}
