package position

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftlabs/driftbot/internal/domain"
)

func longPosition(entry, size float64) domain.Position {
	return domain.Position{
		Market:     "SOL-PERP",
		Side:       domain.DirectionLong,
		Size:       size,
		EntryPrice: entry,
		OpenedAt:   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func shortPosition(entry, size float64) domain.Position {
	p := longPosition(entry, size)
	p.Side = domain.DirectionShort
	return p
}

func TestEvaluateBracket(t *testing.T) {
	p := BracketParams{TimeStopBars: 10, TimeStopMinR: 0.5}
	pos := longPosition(100, 50)
	st := domain.ExitState{StopDist: 2}

	t.Run("no exit inside the bracket", func(t *testing.T) {
		_, ok := EvaluateBracket(pos, st, 100.5, p)
		assert.False(t, ok)
	})

	t.Run("stop loss at -1R", func(t *testing.T) {
		a, ok := EvaluateBracket(pos, st, 98, p)
		require.True(t, ok)
		assert.Equal(t, domain.ExitReasonStop, a.Reason)
		assert.Equal(t, 1.0, a.Fraction)
	})

	t.Run("tp1 closes half at +1R", func(t *testing.T) {
		a, ok := EvaluateBracket(pos, st, 102, p)
		require.True(t, ok)
		assert.Equal(t, domain.ExitReasonTP1, a.Reason)
		assert.Equal(t, 0.5, a.Fraction)
	})

	t.Run("tp2 requires tp1 first", func(t *testing.T) {
		// +2R without tp1 taken still reports tp1: the ladder never
		// skips a rung.
		a, ok := EvaluateBracket(pos, st, 104, p)
		require.True(t, ok)
		assert.Equal(t, domain.ExitReasonTP1, a.Reason)

		taken := st
		taken.TP1Taken = true
		a, ok = EvaluateBracket(pos, taken, 104, p)
		require.True(t, ok)
		assert.Equal(t, domain.ExitReasonTP2, a.Reason)
		assert.Equal(t, 1.0, a.Fraction)
	})

	t.Run("stop beats take profit", func(t *testing.T) {
		// A short at the same price level: adverse for the short.
		a, ok := EvaluateBracket(shortPosition(100, 50), st, 102, p)
		require.True(t, ok)
		assert.Equal(t, domain.ExitReasonStop, a.Reason)
	})

	t.Run("time stop fires only when stagnant", func(t *testing.T) {
		stale := st
		stale.BarsOpen = 10
		a, ok := EvaluateBracket(pos, stale, 100.5, p) // +0.25R < 0.5R
		require.True(t, ok)
		assert.Equal(t, domain.ExitReasonTimeStop, a.Reason)

		_, ok = EvaluateBracket(pos, stale, 101.5, p) // +0.75R, not stagnant
		assert.False(t, ok)
	})

	t.Run("flat or unarmed state never exits", func(t *testing.T) {
		_, ok := EvaluateBracket(domain.Position{Side: domain.DirectionFlat}, st, 90, p)
		assert.False(t, ok)
		_, ok = EvaluateBracket(pos, domain.ExitState{}, 90, p)
		assert.False(t, ok, "zero stop distance disables the bracket")
	})
}

func TestEvaluateTrailing(t *testing.T) {
	p := TrailingParams{
		ActivationPct:   1.0,
		TrailingStopPct: 0.75,
		TakeProfitPct:   3.0,
		StopLossPct:     1.5,
	}
	pos := longPosition(100, 50)

	t.Run("flat stop loss", func(t *testing.T) {
		a, ok := EvaluateTrailing(pos, domain.ExitState{HighWaterMark: 100}, 98.5, p)
		require.True(t, ok)
		assert.Equal(t, domain.ExitReasonFlatSL, a.Reason)
	})

	t.Run("flat take profit", func(t *testing.T) {
		a, ok := EvaluateTrailing(pos, domain.ExitState{HighWaterMark: 103}, 103, p)
		require.True(t, ok)
		assert.Equal(t, domain.ExitReasonFlatTP, a.Reason)
	})

	t.Run("not armed below activation", func(t *testing.T) {
		_, ok := EvaluateTrailing(pos, domain.ExitState{HighWaterMark: 100.5}, 100.5, p)
		assert.False(t, ok)
	})

	t.Run("armed and retraced", func(t *testing.T) {
		// Peaked at 102, pulled back past 0.75% of the peak but still
		// above the 1% activation from entry.
		st := domain.ExitState{HighWaterMark: 102}
		a, ok := EvaluateTrailing(pos, st, 101.2, p)
		require.True(t, ok)
		assert.Equal(t, domain.ExitReasonTrailing, a.Reason)
		assert.Equal(t, 1.0, a.Fraction)
	})

	t.Run("arming latches at the water mark", func(t *testing.T) {
		// Peaked at 102 then pulled all the way back inside the
		// activation band. The trail stays armed off the peak and the
		// 1.27% retracement closes the position instead of letting it
		// ride down to the flat stop.
		st := domain.ExitState{HighWaterMark: 102}
		a, ok := EvaluateTrailing(pos, st, 100.7, p)
		require.True(t, ok)
		assert.Equal(t, domain.ExitReasonTrailing, a.Reason)
		assert.Equal(t, 1.0, a.Fraction)
	})

	t.Run("short side trails the low water mark", func(t *testing.T) {
		st := domain.ExitState{LowWaterMark: 98}
		a, ok := EvaluateTrailing(shortPosition(100, 50), st, 98.8, p)
		require.True(t, ok)
		assert.Equal(t, domain.ExitReasonTrailing, a.Reason)
	})
}

func TestTrackerLifecycle(t *testing.T) {
	tr := NewTracker()
	assert.False(t, tr.Position().Open())

	entry := domain.Fill{
		OrderID:     "o1",
		Market:      "SOL-PERP",
		Side:        domain.DirectionLong,
		FilledPrice: 100,
		FilledSize:  50,
		Timestamp:   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, tr.Open("SOL-PERP", domain.DirectionLong, entry, 2))
	assert.True(t, tr.Position().Open())

	// Double open is rejected.
	err := tr.Open("SOL-PERP", domain.DirectionLong, entry, 2)
	assert.ErrorIs(t, err, domain.ErrPositionOpen)

	tr.Tick(103)
	tr.Tick(101)
	assert.Equal(t, 2, tr.BarsHeld())
	assert.Equal(t, 103.0, tr.ExitState().HighWaterMark)

	// Partial close: half the position at +2%.
	pnl, closed, err := tr.ApplyExitFill(
		domain.ExitAction{Reason: domain.ExitReasonTP1, Fraction: 0.5, Price: 102},
		domain.Fill{OrderID: "o2", FilledPrice: 102, FilledSize: 25, Fee: 0.1},
	)
	require.NoError(t, err)
	assert.False(t, closed)
	assert.InDelta(t, 25*0.02-0.1, pnl, 1e-9)
	assert.Equal(t, 25.0, tr.Position().Size)
	assert.True(t, tr.ExitState().TP1Taken)

	// Full close of the remainder.
	pnl, closed, err = tr.ApplyExitFill(
		domain.ExitAction{Reason: domain.ExitReasonTP2, Fraction: 1, Price: 104},
		domain.Fill{OrderID: "o3", FilledPrice: 104, FilledSize: 25, Fee: 0.1},
	)
	require.NoError(t, err)
	assert.True(t, closed)
	assert.InDelta(t, 25*0.04-0.1, pnl, 1e-9)
	assert.False(t, tr.Position().Open())
	assert.Zero(t, tr.BarsHeld())

	// Exit on a flat tracker errors.
	_, _, err = tr.ApplyExitFill(domain.ExitAction{Fraction: 1}, domain.Fill{})
	assert.ErrorIs(t, err, domain.ErrNoPosition)
}

func TestTrackerShortPnL(t *testing.T) {
	tr := NewTracker()
	entry := domain.Fill{FilledPrice: 100, FilledSize: 40, Timestamp: time.Now()}
	require.NoError(t, tr.Open("SOL-PERP", domain.DirectionShort, entry, 2))

	pnl, closed, err := tr.ApplyExitFill(
		domain.ExitAction{Reason: domain.ExitReasonStop, Fraction: 1, Price: 103},
		domain.Fill{FilledPrice: 103, FilledSize: 40, Fee: 0.2},
	)
	require.NoError(t, err)
	assert.True(t, closed)
	assert.InDelta(t, -40*0.03-0.2, pnl, 1e-9)
}
