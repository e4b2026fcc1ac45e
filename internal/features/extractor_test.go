package features

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftlabs/driftbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// mkSnapshot builds one snapshot with a calm order book around the close.
func mkSnapshot(market string, ts time.Time, close, volume float64) domain.MarketSnapshot {
	return domain.MarketSnapshot{
		Market: market,
		Candle: domain.Candle{
			Timestamp: ts,
			Open:      close * 0.999,
			High:      close * 1.002,
			Low:       close * 0.998,
			Close:     close,
			Volume:    volume,
		},
		OraclePrice: close,
		BestBid:     close * 0.9995,
		BestAsk:     close * 1.0005,
		BidDepth:    1_000,
		AskDepth:    1_000,
	}
}

func TestExtractorWarmup(t *testing.T) {
	e := NewExtractor(30, testLogger())
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 14; i++ {
		_, ready := e.Update(mkSnapshot("SOL-PERP", base.Add(time.Duration(i)*time.Minute), 150, 1_000))
		assert.False(t, ready, "candle %d should still be warming up", i+1)
	}

	// The 14-period ATR emits its first value here, so readiness and a
	// usable stop distance arrive on the same candle.
	f, ready := e.Update(mkSnapshot("SOL-PERP", base.Add(14*time.Minute), 150, 1_000))
	require.True(t, ready, "15th candle completes the warmup")
	assert.Equal(t, "SOL-PERP", f.Market)
	assert.Equal(t, 150.0, f.Price)
	assert.Greater(t, e.ATR("SOL-PERP"), 0.0)
}

func TestExtractorVolumeSpike(t *testing.T) {
	e := NewExtractor(30, testLogger())
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	var f domain.MarketFeatures
	var ready bool
	for i := 0; i < 20; i++ {
		vol := 1_000.0 + float64(i)*10 // mildly varying baseline
		if i == 19 {
			vol = 10_000 // spike on the last candle
		}
		f, ready = e.Update(mkSnapshot("SOL-PERP", base.Add(time.Duration(i)*time.Minute), 150, vol))
	}
	require.True(t, ready)
	assert.Greater(t, f.VolumeZ, 2.0, "a 10x volume spike should score a high z")
}

func TestExtractorWindowsAreIndependentPerMarket(t *testing.T) {
	e := NewExtractor(30, testLogger())
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 20; i++ {
		e.Update(mkSnapshot("SOL-PERP", base.Add(time.Duration(i)*time.Minute), 150, 1_000))
	}
	_, ready := e.Update(mkSnapshot("BTC-PERP", base, 60_000, 500))
	assert.False(t, ready, "a fresh market starts its own warmup")
	assert.Zero(t, e.ATR("BTC-PERP"))
}

func TestExtractorBookFeatures(t *testing.T) {
	e := NewExtractor(30, testLogger())
	snap := mkSnapshot("SOL-PERP", time.Now().UTC(), 100, 1_000)
	snap.BidDepth = 3_000
	snap.AskDepth = 1_000
	snap.BestBid = 99.95
	snap.BestAsk = 100.05
	snap.OraclePrice = 99.9

	f, _ := e.Update(snap)
	assert.InDelta(t, 0.75, f.OBImbalance, 1e-9)
	assert.InDelta(t, 10.0, f.SpreadBps, 0.01)
	assert.InDelta(t, 0.1001, f.PremiumPct, 0.001)
}

func TestExtractorEmptyBookIsNeutral(t *testing.T) {
	e := NewExtractor(30, testLogger())
	snap := mkSnapshot("SOL-PERP", time.Now().UTC(), 100, 1_000)
	snap.BidDepth = 0
	snap.AskDepth = 0
	snap.BestBid = 0
	snap.BestAsk = 0
	snap.OraclePrice = 0

	f, _ := e.Update(snap)
	assert.Equal(t, 0.5, f.OBImbalance)
	assert.Zero(t, f.SpreadBps)
	assert.Zero(t, f.PremiumPct)
}

func TestClassifyRegime(t *testing.T) {
	th := DefaultRegimeThresholds()

	cases := []struct {
		name string
		f    domain.MarketFeatures
		want domain.Regime
	}{
		{"crash down", domain.MarketFeatures{WindowChangePct: -6}, domain.RegimeCrash},
		{"crash up", domain.MarketFeatures{WindowChangePct: 5.5}, domain.RegimeCrash},
		{"high vol", domain.MarketFeatures{WindowChangePct: 1, RealizedVol: 3.5}, domain.RegimeHighVol},
		{"bull", domain.MarketFeatures{WindowChangePct: 2, FundingRate: 0.002}, domain.RegimeBull},
		{"bear", domain.MarketFeatures{WindowChangePct: -2, FundingRate: -0.002}, domain.RegimeBear},
		{"divergent is chop", domain.MarketFeatures{WindowChangePct: 2, FundingRate: -0.002}, domain.RegimeChop},
		{"flat is chop", domain.MarketFeatures{}, domain.RegimeChop},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyRegime(tc.f, th))
		})
	}
}
