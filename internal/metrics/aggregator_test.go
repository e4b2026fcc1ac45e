package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/driftlabs/driftbot/internal/domain"
)

func trade(pnl float64, regime domain.Regime) domain.TradeRecord {
	return domain.TradeRecord{PnL: pnl, Regime: regime}
}

func curve(values ...float64) []domain.EquityPoint {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	out := make([]domain.EquityPoint, len(values))
	for i, v := range values {
		out[i] = domain.EquityPoint{Timestamp: base.Add(time.Duration(i) * time.Minute), Equity: v}
	}
	return out
}

func TestResultBasics(t *testing.T) {
	a := NewAggregator()
	a.AddTrade(trade(10, domain.RegimeBull))
	a.AddTrade(trade(-4, domain.RegimeBull))
	a.AddTrade(trade(6, domain.RegimeChop))

	r := a.Result()
	assert.Equal(t, 3, r.Trades)
	assert.Equal(t, 2, r.Wins)
	assert.Equal(t, 1, r.Losses)
	assert.InDelta(t, 12.0, r.TotalPnL, 1e-9)
	assert.InDelta(t, 2.0/3.0, r.WinRate, 1e-9)
	assert.InDelta(t, 4.0, r.ProfitFactor, 1e-9) // 16 gross profit / 4 gross loss

	bull := r.Regimes[domain.RegimeBull]
	assert.Equal(t, 2, bull.Trades)
	assert.InDelta(t, 0.5, bull.WinRate, 1e-9)
	assert.InDelta(t, 3.0, bull.PnLPerTrade, 1e-9)
}

func TestProfitFactorStaysFinite(t *testing.T) {
	a := NewAggregator()
	a.AddTrade(trade(10, ""))
	a.AddTrade(trade(5, ""))

	r := a.Result()
	// No losses: report gross profit rather than infinity.
	assert.Equal(t, 15.0, r.ProfitFactor)

	empty := NewAggregator().Result()
	assert.Zero(t, empty.ProfitFactor)
	assert.Zero(t, empty.WinRate)
}

func TestMaxDrawdown(t *testing.T) {
	a := NewAggregator()
	for _, p := range curve(1000, 1100, 900, 950, 1200, 1080) {
		a.MarkEquity(p.Timestamp, p.Equity)
	}

	r := a.Result()
	assert.InDelta(t, 200.0, r.MaxDrawdown, 1e-9) // 1100 peak to 900 trough
	assert.InDelta(t, 200.0/1100*100, r.MaxDrawdownPct, 1e-9)
}

func TestMonotonicCurveHasZeroDrawdown(t *testing.T) {
	a := NewAggregator()
	for _, p := range curve(1000, 1010, 1025, 1025, 1040) {
		a.MarkEquity(p.Timestamp, p.Equity)
	}

	r := a.Result()
	assert.Zero(t, r.MaxDrawdown)
	assert.Zero(t, r.MaxDrawdownPct)
	assert.Greater(t, r.Sharpe, 0.0)
}

func TestSharpeDegenerateCurves(t *testing.T) {
	a := NewAggregator()
	a.MarkEquity(time.Now(), 1000)
	a.MarkEquity(time.Now(), 1010)
	assert.Zero(t, a.Result().Sharpe, "too few samples")

	flat := NewAggregator()
	for _, p := range curve(1000, 1000, 1000, 1000) {
		flat.MarkEquity(p.Timestamp, p.Equity)
	}
	assert.Zero(t, flat.Result().Sharpe, "zero variance")
}

func TestToTrialMetrics(t *testing.T) {
	a := NewAggregator()
	a.AddTrade(trade(10, domain.RegimeBull))
	a.AddTrade(trade(-5, domain.RegimeBear))
	for _, p := range curve(1000, 1010, 1005, 1015) {
		a.MarkEquity(p.Timestamp, p.Equity)
	}

	r := a.Result()
	tm := r.ToTrialMetrics()
	assert.Equal(t, r.Trades, tm.Trades)
	assert.Equal(t, r.WinRate, tm.WinRate)
	assert.Equal(t, r.ProfitFactor, tm.ProfitFactor)
	assert.Equal(t, r.Sharpe, tm.Sharpe)
	assert.Equal(t, r.MaxDrawdownPct, tm.MaxDrawdown)
	assert.Equal(t, r.TotalPnL, tm.TotalPnL)
}
