// Package postgres implements the domain persistence interfaces (candle
// store, trade ledger, signal log) using PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ClientConfig holds connection parameters for the PostgreSQL client.
type ClientConfig struct {
	DSN      string
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
	MaxConns int
	MinConns int
}

// DSN builds a PostgreSQL connection string from the given config.
func DSN(cfg ClientConfig) string {
	if strings.TrimSpace(cfg.DSN) != "" {
		return cfg.DSN
	}

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, port, cfg.Database, sslMode,
	)
}

// Client wraps a pgxpool.Pool and owns schema setup.
type Client struct {
	pool *pgxpool.Pool
}

// New creates a new Client with a connection pool configured from cfg.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	dsn := DSN(cfg)

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns)
	}

	// Prefer IPv4 when possible, but gracefully handle IPv6-only endpoints
	// (for example Supabase hosts that resolve to AAAA records).
	poolCfg.ConnConfig.DialFunc = func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("postgres: split host/port %q: %w", addr, err)
		}

		dialer := &net.Dialer{}

		// If pgx already passed an IP literal, dial with the matching family.
		if ip := net.ParseIP(host); ip != nil {
			if ip.To4() != nil {
				return dialer.DialContext(ctx, "tcp4", net.JoinHostPort(ip.String(), port))
			}
			return dialer.DialContext(ctx, "tcp6", net.JoinHostPort(ip.String(), port))
		}

		// Prefer IPv4 first.
		ipv4s, err4 := net.DefaultResolver.LookupIP(ctx, "ip4", host)
		for _, ip := range ipv4s {
			conn, dialErr := dialer.DialContext(ctx, "tcp4", net.JoinHostPort(ip.String(), port))
			if dialErr == nil {
				return conn, nil
			}
		}

		// Fallback: let the system resolver/dialer handle dual-stack targets.
		conn, err := dialer.DialContext(ctx, network, addr)
		if err == nil {
			return conn, nil
		}

		if err4 != nil {
			return nil, fmt.Errorf("postgres: dial %q failed (ipv4 lookup=%v, fallback=%w)", addr, err4, err)
		}
		return nil, fmt.Errorf("postgres: dial %q failed: %w", addr, errors.Join(err4, err))
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	return &Client{pool: pool}, nil
}

// Pool returns the underlying connection pool.
func (c *Client) Pool() *pgxpool.Pool {
	return c.pool
}

// Close shuts down the connection pool.
func (c *Client) Close() {
	c.pool.Close()
}

// schema holds the idempotent DDL for every table this package owns,
// applied in order by EnsureSchema.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS candles (
		market      TEXT        NOT NULL,
		ts          TIMESTAMPTZ NOT NULL,
		open        DOUBLE PRECISION NOT NULL,
		high        DOUBLE PRECISION NOT NULL,
		low         DOUBLE PRECISION NOT NULL,
		close       DOUBLE PRECISION NOT NULL,
		volume      DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (market, ts)
	)`,
	`CREATE TABLE IF NOT EXISTS trades (
		id          TEXT        PRIMARY KEY,
		market      TEXT        NOT NULL,
		strategy    TEXT        NOT NULL,
		side        TEXT        NOT NULL,
		entry_price DOUBLE PRECISION NOT NULL,
		exit_price  DOUBLE PRECISION NOT NULL,
		size        DOUBLE PRECISION NOT NULL,
		fraction    DOUBLE PRECISION NOT NULL,
		pnl         DOUBLE PRECISION NOT NULL,
		fees        DOUBLE PRECISION NOT NULL,
		reason      TEXT        NOT NULL,
		regime      TEXT        NOT NULL DEFAULT '',
		bars_held   INTEGER     NOT NULL DEFAULT 0,
		opened_at   TIMESTAMPTZ NOT NULL,
		closed_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS trades_market_closed_idx
		ON trades (market, closed_at DESC)`,
	`CREATE TABLE IF NOT EXISTS signals (
		id         TEXT        PRIMARY KEY,
		market     TEXT        NOT NULL,
		strategy   TEXT        NOT NULL,
		direction  TEXT        NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		triggered  BOOLEAN     NOT NULL,
		blocked    TEXT        NOT NULL DEFAULT '',
		reasons    TEXT[]      NOT NULL DEFAULT '{}',
		ts         TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS signals_market_ts_idx
		ON signals (market, ts DESC)`,
}

// EnsureSchema applies the idempotent DDL. It runs at startup before any
// store is used.
func (c *Client) EnsureSchema(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := c.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: ensure schema (statement %d): %w", i, err)
		}
	}
	return nil
}
