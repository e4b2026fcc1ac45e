// Package config defines the top-level configuration for the drift bot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by DRIFTBOT_* environment
// variables.
type Config struct {
	Drift    DriftConfig    `toml:"drift"`
	Advisor  AdvisorConfig  `toml:"advisor"`
	Strategy StrategyConfig `toml:"strategy"`
	Risk     RiskConfig     `toml:"risk"`
	Engine   EngineConfig   `toml:"engine"`
	Backtest BacktestConfig `toml:"backtest"`
	Optimize OptimizeConfig `toml:"optimize"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// DriftConfig holds Drift data API and execution gateway parameters.
type DriftConfig struct {
	DataURL      string   `toml:"data_url"`
	WsURL        string   `toml:"ws_url"`
	GatewayURL   string   `toml:"gateway_url"`
	GatewayToken string   `toml:"gateway_token"`
	Market       string   `toml:"market"`
	Resolution   string   `toml:"resolution"` // candle resolution in minutes
	PollInterval duration `toml:"poll_interval"`
}

// AdvisorConfig holds the LLM confirmation layer parameters.
type AdvisorConfig struct {
	Enabled     bool     `toml:"enabled"`
	BaseURL     string   `toml:"base_url"`
	ApiKey      string   `toml:"api_key"`
	Model       string   `toml:"model"`
	Timeout     duration `toml:"timeout"`
	MaxRetries  int      `toml:"max_retries"`
	BackoffBase duration `toml:"backoff_base"`
	BackoffCap  duration `toml:"backoff_cap"`
	Fallback    string   `toml:"fallback"` // "rule_only" or "flatten"
}

// StrategyConfig selects the rule strategy and its threshold overrides.
type StrategyConfig struct {
	Name string `toml:"name"`
	// Params overrides individual threshold fields by their snake_case
	// name, e.g. body_over_atr = 0.6. Unknown keys are ignored.
	Params map[string]float64 `toml:"params"`
	// EnsembleQuorum is the minimum agreeing members for the ensemble
	// strategy.
	EnsembleQuorum int `toml:"ensemble_quorum"`
}

// RiskConfig holds the pre-trade risk limits.
type RiskConfig struct {
	MaxPositionSize      float64 `toml:"max_position_size"`
	RiskPerTradePct      float64 `toml:"risk_per_trade_pct"`
	DailyLossCapPct      float64 `toml:"daily_loss_cap_pct"`
	MaxDrawdownPct       float64 `toml:"max_drawdown_pct"`
	MaxConsecutiveLosses int     `toml:"max_consecutive_losses"`
	MaxLeveragePct       float64 `toml:"max_leverage_pct"`
	MinConfidence        float64 `toml:"min_confidence"`
	MinNotional          float64 `toml:"min_notional"`
}

// EngineConfig holds live-loop parameters.
type EngineConfig struct {
	Equity        float64 `toml:"equity"`
	FeatureWindow int     `toml:"feature_window"`
	FeePct        float64 `toml:"fee_pct"`
	// ArchiveRetentionDays prunes ledger rows older than this to S3 cold
	// storage; 0 disables the archive job.
	ArchiveRetentionDays int `toml:"archive_retention_days"`
}

// BacktestConfig holds replay parameters for backtest mode.
type BacktestConfig struct {
	Market         string  `toml:"market"`
	From           string  `toml:"from"` // RFC 3339 or YYYY-MM-DD
	To             string  `toml:"to"`
	InitialCapital float64 `toml:"initial_capital"`
	FeePct         float64 `toml:"fee_pct"`
	Sizing         string  `toml:"sizing"` // "percent" or "fixed"
	FixedNotional  float64 `toml:"fixed_notional"`
	FeatureWindow  int     `toml:"feature_window"`
	ArchiveResults bool    `toml:"archive_results"`
}

// OptimizeConfig holds sweep parameters for optimize mode.
type OptimizeConfig struct {
	RunID          string               `toml:"run_id"`
	Grid           map[string][]float64 `toml:"grid"`
	Samples        int                  `toml:"samples"`
	Seed           int64                `toml:"seed"`
	ChunkSize      int                  `toml:"chunk_size"`
	SaveProgress   bool                 `toml:"save_progress"`
	MaxDrawdownPct float64              `toml:"max_drawdown_pct"`
	// CheckpointBackend selects where progress is stored: "file" or
	// "redis".
	CheckpointBackend string `toml:"checkpoint_backend"`
	CheckpointDir     string `toml:"checkpoint_dir"`
	ArchiveResults    bool   `toml:"archive_results"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled      bool   `toml:"enabled"`
	DSN          string `toml:"dsn"`
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	Database     string `toml:"database"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	SSLMode      string `toml:"ssl_mode"`
	PoolMaxConns int    `toml:"pool_max_conns"`
	PoolMinConns int    `toml:"pool_min_conns"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Drift: DriftConfig{
			DataURL:      "https://data.api.drift.trade",
			WsURL:        "wss://dlob.drift.trade/ws",
			Market:       "SOL-PERP",
			Resolution:   "5",
			PollInterval: duration{5 * time.Second},
		},
		Advisor: AdvisorConfig{
			Enabled:     false,
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			Timeout:     duration{30 * time.Second},
			MaxRetries:  3,
			BackoffBase: duration{time.Second},
			BackoffCap:  duration{5 * time.Second},
			Fallback:    "rule_only",
		},
		Strategy: StrategyConfig{
			Name:           "momentum_breakout",
			Params:         map[string]float64{},
			EnsembleQuorum: 2,
		},
		Risk: RiskConfig{
			MaxPositionSize:      1000,
			RiskPerTradePct:      1.0,
			DailyLossCapPct:      3.0,
			MaxDrawdownPct:       9.0,
			MaxConsecutiveLosses: 3,
			MaxLeveragePct:       300,
			MinConfidence:        0.55,
			MinNotional:          5,
		},
		Engine: EngineConfig{
			Equity:               1000,
			FeatureWindow:        30,
			FeePct:               0.05,
			ArchiveRetentionDays: 0,
		},
		Backtest: BacktestConfig{
			InitialCapital: 1000,
			FeePct:         0.05,
			Sizing:         "percent",
			FeatureWindow:  30,
		},
		Optimize: OptimizeConfig{
			Grid:              map[string][]float64{},
			ChunkSize:         10,
			SaveProgress:      true,
			CheckpointBackend: "file",
			CheckpointDir:     "checkpoints",
		},
		Postgres: PostgresConfig{
			Enabled:      false,
			Host:         "localhost",
			Port:         5432,
			Database:     "driftbot",
			User:         "postgres",
			SSLMode:      "disable",
			PoolMaxConns: 10,
			PoolMinConns: 2,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "driftbot-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Notify: NotifyConfig{
			Events: []string{"entry", "exit", "risk_breach"},
		},
		Mode:     "trade",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":    true,
	"backtest": true,
	"optimize": true,
	"monitor":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validFallbacks = map[string]bool{
	"rule_only": true,
	"flatten":   true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, backtest, optimize, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Drift endpoints.
	if c.Drift.DataURL == "" {
		errs = append(errs, "drift: data_url must not be empty")
	}
	if c.Drift.Market == "" {
		errs = append(errs, "drift: market must not be empty")
	}
	if c.Drift.Resolution == "" {
		errs = append(errs, "drift: resolution must not be empty")
	}
	if c.Mode == "trade" && c.Drift.PollInterval.Duration <= 0 {
		errs = append(errs, "drift: poll_interval must be positive for trade mode")
	}

	// Advisor.
	if c.Advisor.Enabled {
		if c.Advisor.ApiKey == "" {
			errs = append(errs, "advisor: api_key is required when enabled")
		}
		if c.Advisor.Model == "" {
			errs = append(errs, "advisor: model must not be empty when enabled")
		}
		if c.Advisor.MaxRetries < 1 {
			errs = append(errs, "advisor: max_retries must be >= 1")
		}
	}
	if !validFallbacks[c.Advisor.Fallback] {
		errs = append(errs, fmt.Sprintf("advisor: unknown fallback %q (valid: rule_only, flatten)", c.Advisor.Fallback))
	}

	// Strategy.
	if c.Strategy.Name == "" {
		errs = append(errs, "strategy: name must not be empty")
	}
	if c.Strategy.EnsembleQuorum < 1 {
		errs = append(errs, "strategy: ensemble_quorum must be >= 1")
	}

	// Risk limits. Bounds detail lives with risk.Params.Validate; here we
	// catch the zero-value-config mistakes early.
	if c.Risk.RiskPerTradePct <= 0 {
		errs = append(errs, "risk: risk_per_trade_pct must be > 0")
	}
	if c.Risk.DailyLossCapPct <= 0 {
		errs = append(errs, "risk: daily_loss_cap_pct must be > 0")
	}
	if c.Risk.MaxConsecutiveLosses < 1 {
		errs = append(errs, "risk: max_consecutive_losses must be >= 1")
	}

	switch c.Mode {
	case "trade":
		if c.Engine.Equity <= 0 {
			errs = append(errs, "engine: equity must be > 0 for trade mode")
		}
		if c.Drift.GatewayURL == "" {
			errs = append(errs, "drift: gateway_url is required for trade mode")
		}
	case "backtest":
		if c.Backtest.InitialCapital <= 0 {
			errs = append(errs, "backtest: initial_capital must be > 0")
		}
		if c.Backtest.Sizing != "percent" && c.Backtest.Sizing != "fixed" {
			errs = append(errs, fmt.Sprintf("backtest: unknown sizing %q (valid: percent, fixed)", c.Backtest.Sizing))
		}
		if !c.Postgres.Enabled {
			errs = append(errs, "backtest: postgres must be enabled (candle store is the data source)")
		}
	case "optimize":
		if len(c.Optimize.Grid) == 0 {
			errs = append(errs, "optimize: grid must not be empty")
		}
		if c.Optimize.ChunkSize < 1 {
			errs = append(errs, "optimize: chunk_size must be >= 1")
		}
		if c.Optimize.CheckpointBackend != "file" && c.Optimize.CheckpointBackend != "redis" {
			errs = append(errs, fmt.Sprintf("optimize: unknown checkpoint_backend %q (valid: file, redis)", c.Optimize.CheckpointBackend))
		}
		if c.Optimize.CheckpointBackend == "redis" && !c.Redis.Enabled {
			errs = append(errs, "optimize: redis must be enabled for checkpoint_backend = redis")
		}
		if !c.Postgres.Enabled {
			errs = append(errs, "optimize: postgres must be enabled (candle store is the data source)")
		}
	case "monitor":
		if !c.Redis.Enabled {
			errs = append(errs, "monitor: redis must be enabled (signal bus is the data source)")
		}
	}

	// Postgres.
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis.
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3.
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
