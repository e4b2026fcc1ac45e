// Package features turns raw market snapshots into the fixed-shape feature
// vectors consumed by the strategy layer. All derived values are sanitized at
// this boundary: a non-finite result is coerced to a safe default and the
// substitution is logged, never propagated.
package features

import (
	"log/slog"
	"math"
	"sync"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/volatility"

	"github.com/driftlabs/driftbot/internal/domain"
)

const (
	// defaultWindow is the rolling candle window used for ATR, volume
	// baseline, and realized volatility when none is configured.
	defaultWindow = 30

	// minWarmup is the number of candles required before the extractor
	// reports features as ready. The ATR (period 14) emits its first value
	// on the 15th candle; readiness waits for it.
	minWarmup = 15
)

// Extractor maintains a rolling candle window per market and derives
// MarketFeatures from each incoming snapshot. It is safe for concurrent use,
// though the engine feeds it from a single loop.
type Extractor struct {
	window  int
	history map[string][]domain.Candle
	mu      sync.Mutex
	logger  *slog.Logger
}

// NewExtractor creates an Extractor with the given rolling window size.
// Window sizes below the warmup minimum are raised to the default.
func NewExtractor(window int, logger *slog.Logger) *Extractor {
	if window < minWarmup {
		window = defaultWindow
	}
	return &Extractor{
		window:  window,
		history: make(map[string][]domain.Candle),
		logger:  logger.With(slog.String("component", "feature_extractor")),
	}
}

// Update ingests one snapshot and returns the derived feature vector. The
// second return value is false while the market's window is still warming up;
// the returned features are then partial and must not be traded on.
func (e *Extractor) Update(snap domain.MarketSnapshot) (domain.MarketFeatures, bool) {
	e.mu.Lock()
	hist := append(e.history[snap.Market], snap.Candle)
	if overflow := len(hist) - e.window; overflow > 0 {
		hist = append([]domain.Candle(nil), hist[overflow:]...)
	}
	e.history[snap.Market] = hist
	e.mu.Unlock()

	f := domain.MarketFeatures{
		Market:       snap.Market,
		Price:        snap.Candle.Close,
		Volume:       snap.Candle.Volume,
		FundingRate:  snap.FundingRate,
		OpenInterest: snap.OpenInterest,
		Timestamp:    snap.Candle.Timestamp,
	}

	f.OBImbalance = e.sanitize(snap.Market, "ob_imbalance", imbalance(snap.BidDepth, snap.AskDepth), 0.5)
	f.PremiumPct = e.sanitize(snap.Market, "premium_pct", premiumPct(snap.Candle.Close, snap.OraclePrice), 0)
	f.SpreadBps = e.sanitize(snap.Market, "spread_bps", spreadBps(snap.BestBid, snap.BestAsk), 0)

	if len(hist) < minWarmup {
		return f, false
	}

	atr := e.atr(hist)
	if atr > 0 {
		f.BodyOverATR = e.sanitize(snap.Market, "body_over_atr", snap.Candle.Body()/atr, 0)
	}
	f.VolumeZ = e.sanitize(snap.Market, "volume_z", volumeZ(hist), 0)
	f.RealizedVol = e.sanitize(snap.Market, "realized_vol", realizedVol(hist), 0)
	f.WindowChangePct = e.sanitize(snap.Market, "window_change_pct", windowChangePct(hist), 0)

	return f, true
}

// ATR exposes the current ATR estimate for a market, used by the exit state
// machine to size stop distances. Returns 0 during warmup.
func (e *Extractor) ATR(market string) float64 {
	e.mu.Lock()
	hist := append([]domain.Candle(nil), e.history[market]...)
	e.mu.Unlock()

	if len(hist) < minWarmup {
		return 0
	}
	return e.atr(hist)
}

// atr computes the Average True Range over the window via the indicator
// library and returns the most recent value.
func (e *Extractor) atr(hist []domain.Candle) float64 {
	high := make([]float64, len(hist))
	low := make([]float64, len(hist))
	closing := make([]float64, len(hist))
	for i, c := range hist {
		high[i] = c.High
		low[i] = c.Low
		closing[i] = c.Close
	}

	atrIndicator := volatility.NewAtr[float64]()
	values := helper.ChanToSlice(atrIndicator.Compute(
		helper.SliceToChan(high),
		helper.SliceToChan(low),
		helper.SliceToChan(closing),
	))
	if len(values) == 0 {
		return 0
	}
	v := values[len(values)-1]
	if !finite(v) || v < 0 {
		return 0
	}
	return v
}

// sanitize coerces non-finite values to the fallback and logs the
// substitution. Data errors are never silent.
func (e *Extractor) sanitize(market, field string, v, fallback float64) float64 {
	if finite(v) {
		return v
	}
	e.logger.Warn("non-finite feature coerced to default",
		slog.String("market", market),
		slog.String("feature", field),
		slog.Float64("default", fallback),
	)
	return fallback
}

// imbalance normalizes order-book pressure to 0..1 with 0.5 neutral.
func imbalance(bidDepth, askDepth float64) float64 {
	total := bidDepth + askDepth
	if total <= 0 {
		return 0.5
	}
	return bidDepth / total
}

func premiumPct(mark, oracle float64) float64 {
	if oracle <= 0 {
		return 0
	}
	return (mark - oracle) / oracle * 100
}

func spreadBps(bid, ask float64) float64 {
	if bid <= 0 || ask <= 0 || ask < bid {
		return 0
	}
	mid := (bid + ask) / 2
	if mid == 0 {
		return 0
	}
	return (ask - bid) / mid * 10_000
}

// volumeZ computes the z-score of the latest candle's volume against the
// rest of the window. Returns 0 when the baseline has no variance.
func volumeZ(hist []domain.Candle) float64 {
	n := len(hist) - 1
	if n < 2 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += hist[i].Volume
	}
	mean := sum / float64(n)

	var variance float64
	for i := 0; i < n; i++ {
		d := hist[i].Volume - mean
		variance += d * d
	}
	variance /= float64(n)
	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return (hist[len(hist)-1].Volume - mean) / std
}

// realizedVol computes the standard deviation of close-to-close percent
// returns over the window, expressed in percent per bar.
func realizedVol(hist []domain.Candle) float64 {
	if len(hist) < 3 {
		return 0
	}
	returns := make([]float64, 0, len(hist)-1)
	for i := 1; i < len(hist); i++ {
		prev := hist[i-1].Close
		if prev == 0 {
			continue
		}
		returns = append(returns, (hist[i].Close-prev)/prev*100)
	}
	if len(returns) < 2 {
		return 0
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))
	return math.Sqrt(variance)
}

// windowChangePct is the percent price change from the first to the last
// close in the window.
func windowChangePct(hist []domain.Candle) float64 {
	if len(hist) < 2 {
		return 0
	}
	first := hist[0].Close
	if first == 0 {
		return 0
	}
	return (hist[len(hist)-1].Close - first) / first * 100
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
