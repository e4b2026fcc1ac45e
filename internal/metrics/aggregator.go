// Package metrics accumulates trades and equity samples and derives the
// performance summary: win rate, profit factor, Sharpe ratio, max drawdown,
// and the per-regime breakdown. Derivation is on demand and never mutates
// the accumulator.
package metrics

import (
	"math"
	"time"

	"github.com/driftlabs/driftbot/internal/domain"
)

// Aggregator collects closed trades and equity curve samples.
type Aggregator struct {
	trades []domain.TradeRecord
	equity []domain.EquityPoint
}

// NewAggregator returns an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// AddTrade records one closed trade (partials included).
func (a *Aggregator) AddTrade(t domain.TradeRecord) {
	a.trades = append(a.trades, t)
}

// MarkEquity appends one equity curve sample.
func (a *Aggregator) MarkEquity(ts time.Time, equity float64) {
	a.equity = append(a.equity, domain.EquityPoint{Timestamp: ts, Equity: equity})
}

// Trades returns the accumulated trade ledger.
func (a *Aggregator) Trades() []domain.TradeRecord { return a.trades }

// EquityCurve returns the accumulated equity samples.
func (a *Aggregator) EquityCurve() []domain.EquityPoint { return a.equity }

// RegimeStats is the per-regime performance slice.
type RegimeStats struct {
	Trades      int
	Wins        int
	WinRate     float64
	PnL         float64
	PnLPerTrade float64 // simplified per-regime Sharpe-like ratio
}

// Result is the derived performance summary. All values are finite and safe
// to serialize: profit factor never reports Infinity.
type Result struct {
	Trades         int
	Wins           int
	Losses         int
	TotalPnL       float64
	WinRate        float64
	ProfitFactor   float64
	Sharpe         float64
	MaxDrawdown    float64 // quote currency, peak to trough
	MaxDrawdownPct float64 // percent of the running peak
	Regimes        map[domain.Regime]RegimeStats
}

// Result derives the summary from the current accumulator contents.
func (a *Aggregator) Result() Result {
	r := Result{Regimes: make(map[domain.Regime]RegimeStats)}

	var grossProfit, grossLoss float64
	for _, t := range a.trades {
		r.Trades++
		r.TotalPnL += t.PnL
		if t.Win() {
			r.Wins++
			grossProfit += t.PnL
		} else if t.PnL < 0 {
			r.Losses++
			grossLoss += -t.PnL
		}

		if t.Regime != "" {
			rs := r.Regimes[t.Regime]
			rs.Trades++
			if t.Win() {
				rs.Wins++
			}
			rs.PnL += t.PnL
			r.Regimes[t.Regime] = rs
		}
	}

	if r.Trades > 0 {
		r.WinRate = float64(r.Wins) / float64(r.Trades)
	}
	r.ProfitFactor = profitFactor(grossProfit, grossLoss)
	r.Sharpe = sharpe(a.equity)
	r.MaxDrawdown, r.MaxDrawdownPct = maxDrawdown(a.equity)

	for regime, rs := range r.Regimes {
		if rs.Trades > 0 {
			rs.WinRate = float64(rs.Wins) / float64(rs.Trades)
			rs.PnLPerTrade = rs.PnL / float64(rs.Trades)
		}
		r.Regimes[regime] = rs
	}
	return r
}

// ToTrialMetrics converts the result into the serializable optimizer form.
func (r Result) ToTrialMetrics() domain.TrialMetrics {
	return domain.TrialMetrics{
		Trades:       r.Trades,
		WinRate:      r.WinRate,
		ProfitFactor: r.ProfitFactor,
		Sharpe:       r.Sharpe,
		MaxDrawdown:  r.MaxDrawdownPct,
		TotalPnL:     r.TotalPnL,
	}
}

// profitFactor is gross profit over gross loss. With zero gross loss the
// gross profit itself is reported (0 when there were no profits either) so
// the value stays finite in serialized output.
func profitFactor(grossProfit, grossLoss float64) float64 {
	if grossLoss == 0 {
		if grossProfit > 0 {
			return grossProfit
		}
		return 0
	}
	return grossProfit / grossLoss
}

// sharpe is mean period return over its standard deviation, 0 when the
// deviation is zero or the curve is too short.
func sharpe(equity []domain.EquityPoint) float64 {
	if len(equity) < 3 {
		return 0
	}
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if prev == 0 {
			continue
		}
		returns = append(returns, (equity[i].Equity-prev)/prev)
	}
	if len(returns) < 2 {
		return 0
	}

	var sum float64
	for _, ret := range returns {
		sum += ret
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, ret := range returns {
		d := ret - mean
		variance += d * d
	}
	variance /= float64(len(returns))
	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std
}

// maxDrawdown tracks the running peak in a single forward pass and returns
// the largest peak-to-trough decline in absolute and percent terms. A
// monotonically increasing curve yields exactly 0.
func maxDrawdown(equity []domain.EquityPoint) (abs, pct float64) {
	var peak float64
	for _, p := range equity {
		if p.Equity > peak {
			peak = p.Equity
		}
		dd := peak - p.Equity
		if dd > abs {
			abs = dd
			if peak > 0 {
				pct = dd / peak * 100
			}
		}
	}
	return abs, pct
}
