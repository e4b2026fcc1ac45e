// Package risk implements the stateful pre-trade gate and position sizing.
// One Manager instance is owned by exactly one engine loop; running several
// strategies or markets concurrently requires an independent Manager each.
package risk

import (
	"fmt"
	"log/slog"
	"math"
	"time"
)

// Params holds the tunable risk limits. Immutable per run; the optimizer
// constructs fresh Params per trial. Percentages are expressed against
// current equity.
type Params struct {
	MaxPositionSize      float64 // hard cap on notional per trade
	RiskPerTradePct      float64 // base risk budget as percent of equity
	DailyLossCapPct      float64 // daily realized loss cap, percent of equity
	MaxDrawdownPct       float64 // running drawdown cap, percent of equity
	MaxConsecutiveLosses int
	MaxLeveragePct       float64 // notional cap as percent of equity (300 = 3x)
	MinConfidence        float64 // decisions below this never trade
	MinNotional          float64 // minimal tradable notional floor
}

// DefaultParams returns the reference limits. The drawdown cap is three times
// the daily loss cap, kept as an explicit value rather than a hardcoded
// multiplier.
func DefaultParams() Params {
	return Params{
		MaxPositionSize:      1_000,
		RiskPerTradePct:      1.0,
		DailyLossCapPct:      3.0,
		MaxDrawdownPct:       9.0,
		MaxConsecutiveLosses: 3,
		MaxLeveragePct:       300,
		MinConfidence:        0.55,
		MinNotional:          5,
	}
}

// Validate checks Params for values that would make every trade impossible
// or unbounded. Called once at startup; invalid limits are fatal.
func (p Params) Validate() error {
	if p.RiskPerTradePct <= 0 {
		return fmt.Errorf("risk: risk_per_trade_pct must be positive, got %v", p.RiskPerTradePct)
	}
	if p.DailyLossCapPct <= 0 {
		return fmt.Errorf("risk: daily_loss_cap_pct must be positive, got %v", p.DailyLossCapPct)
	}
	if p.MaxDrawdownPct < p.DailyLossCapPct {
		return fmt.Errorf("risk: max_drawdown_pct %v below daily_loss_cap_pct %v", p.MaxDrawdownPct, p.DailyLossCapPct)
	}
	if p.MaxConsecutiveLosses <= 0 {
		return fmt.Errorf("risk: max_consecutive_losses must be positive, got %d", p.MaxConsecutiveLosses)
	}
	if p.MaxLeveragePct <= 0 {
		return fmt.Errorf("risk: max_leverage_pct must be positive, got %v", p.MaxLeveragePct)
	}
	if p.MinConfidence < 0 || p.MinConfidence > 1 {
		return fmt.Errorf("risk: min_confidence must be in [0,1], got %v", p.MinConfidence)
	}
	return nil
}

// State is the mutable risk bookkeeping. Created at engine start, reset daily
// (daily fields only), updated after every closed trade, never deleted.
type State struct {
	DailyPnL          float64
	DailyTrades       int
	LastResetDate     string // UTC day, "2006-01-02"
	ConsecutiveLosses int
	CurrentDrawdown   float64 // accumulated loss from the running peak, quote currency
	MaxDrawdown       float64
	TotalTrades       int
	WinningTrades     int
}

// Candidate is the subset of a trading decision the risk gate inspects.
type Candidate struct {
	Trigger    bool
	Long       bool
	Short      bool
	Confidence float64
}

// Manager owns one State and gates candidate decisions against the limits.
// Not safe for concurrent use; the single engine loop is its only caller.
type Manager struct {
	params Params
	state  State
	now    func() time.Time
	logger *slog.Logger
}

// NewManager creates a Manager with a fresh State.
func NewManager(params Params, logger *slog.Logger) *Manager {
	return &Manager{
		params: params,
		now:    time.Now,
		logger: logger.With(slog.String("component", "risk_manager")),
	}
}

// Params returns the configured limits.
func (m *Manager) Params() Params { return m.params }

// State returns a copy of the current risk state.
func (m *Manager) State() State {
	m.maybeReset()
	return m.state
}

// Validate runs the ordered pre-trade checks against the candidate. The
// first failing check wins; its reason names the limit for the audit trail.
// The daily reset always runs before any limit check.
func (m *Manager) Validate(c Candidate, equity float64) (bool, string) {
	m.maybeReset()

	if !c.Trigger || (!c.Long && !c.Short) {
		return false, "no trigger"
	}

	dailyLoss := -math.Min(0, m.state.DailyPnL)
	if cap := equity * m.params.DailyLossCapPct / 100; dailyLoss >= cap {
		return false, fmt.Sprintf("daily loss cap: %.2f >= %.2f", dailyLoss, cap)
	}

	if cap := equity * m.params.MaxDrawdownPct / 100; m.state.CurrentDrawdown >= cap {
		return false, fmt.Sprintf("drawdown cap: %.2f >= %.2f", m.state.CurrentDrawdown, cap)
	}

	if m.state.ConsecutiveLosses >= m.params.MaxConsecutiveLosses {
		return false, fmt.Sprintf("consecutive losses: %d >= %d", m.state.ConsecutiveLosses, m.params.MaxConsecutiveLosses)
	}

	if c.Confidence < m.params.MinConfidence {
		return false, fmt.Sprintf("confidence %.2f below minimum %.2f", c.Confidence, m.params.MinConfidence)
	}

	if size := m.SizePosition(equity, c.Confidence); size < m.params.MinNotional {
		return false, fmt.Sprintf("size %.2f below minimum notional %.2f", size, m.params.MinNotional)
	}

	return true, ""
}

// SizePosition computes the trade notional from equity and decision
// confidence. Confidence scales the base risk budget from 0.5x (confidence 0)
// to 1.5x (confidence 1); the result is capped by the absolute position size
// limit and by leverage.
func (m *Manager) SizePosition(equity, confidence float64) float64 {
	if equity <= 0 {
		return 0
	}
	base := equity * m.params.RiskPerTradePct / 100
	size := base * (0.5 + confidence)
	size = math.Min(size, m.params.MaxPositionSize)
	size = math.Min(size, equity*m.params.MaxLeveragePct/100)
	return size
}

// Update records the realized PnL of one closed trade (or partial close).
// A win shrinks the running drawdown, a loss grows it; an exact-zero trade
// leaves the consecutive-loss counter unchanged.
func (m *Manager) Update(pnl float64) {
	m.maybeReset()

	m.state.DailyPnL += pnl
	m.state.DailyTrades++
	m.state.TotalTrades++

	switch {
	case pnl > 0:
		m.state.WinningTrades++
		m.state.ConsecutiveLosses = 0
		m.state.CurrentDrawdown = math.Max(0, m.state.CurrentDrawdown-pnl)
	case pnl < 0:
		m.state.ConsecutiveLosses++
		m.state.CurrentDrawdown += -pnl
		if m.state.CurrentDrawdown > m.state.MaxDrawdown {
			m.state.MaxDrawdown = m.state.CurrentDrawdown
		}
	}

	m.logger.Debug("risk state updated",
		slog.Float64("pnl", pnl),
		slog.Float64("daily_pnl", m.state.DailyPnL),
		slog.Int("consecutive_losses", m.state.ConsecutiveLosses),
		slog.Float64("current_drawdown", m.state.CurrentDrawdown),
	)
}

// maybeReset zeroes the daily counters when the UTC date has rolled over.
// It runs before every check so a cap breached yesterday clears today.
func (m *Manager) maybeReset() {
	today := m.now().UTC().Format("2006-01-02")
	if m.state.LastResetDate == today {
		return
	}
	if m.state.LastResetDate != "" {
		m.logger.Info("daily risk counters reset",
			slog.String("previous", m.state.LastResetDate),
			slog.String("today", today),
			slog.Float64("daily_pnl", m.state.DailyPnL),
			slog.Int("daily_trades", m.state.DailyTrades),
		)
	}
	m.state.DailyPnL = 0
	m.state.DailyTrades = 0
	m.state.LastResetDate = today
}
