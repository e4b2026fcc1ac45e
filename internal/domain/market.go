package domain

import "time"

// Candle is a single OHLCV bar.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Body returns the absolute candle body size.
func (c Candle) Body() float64 {
	d := c.Close - c.Open
	if d < 0 {
		return -d
	}
	return d
}

// MarketSnapshot bundles everything known about a market at one instant: the
// latest candle plus perp-specific context (funding, open interest, oracle
// price, top-of-book). It is the unit of input for both the live engine and
// the backtest runner. Snapshots within one stream are strictly increasing by
// candle timestamp.
type MarketSnapshot struct {
	Market       string // e.g. "SOL-PERP"
	Candle       Candle
	FundingRate  float64 // hourly funding rate, signed
	OpenInterest float64
	OraclePrice  float64 // 0 when no oracle quote is available
	BestBid      float64
	BestAsk      float64
	BidDepth     float64 // total size across the top bid levels
	AskDepth     float64 // total size across the top ask levels
}

// MarketFeatures is the fixed-shape derived feature vector consumed by the
// strategies. All fields are sanitized at the extractor boundary: never NaN
// or Inf.
type MarketFeatures struct {
	Market       string
	Price        float64
	Volume       float64
	BodyOverATR  float64 // candle body / ATR, relative momentum strength
	VolumeZ      float64 // volume z-score against the rolling baseline
	OBImbalance  float64 // order-book imbalance, normalized to 0..1 (0.5 neutral)
	PremiumPct   float64 // (mark - oracle) / oracle * 100
	RealizedVol  float64 // close-to-close volatility, percent per bar
	SpreadBps    float64
	FundingRate  float64
	OpenInterest float64
	// WindowChangePct is the percent price move across the extractor's
	// rolling window, used by the regime classifier.
	WindowChangePct float64
	Timestamp       time.Time
}

// Regime is a coarse market-condition label used for performance attribution.
type Regime string

const (
	RegimeBull    Regime = "bull"
	RegimeBear    Regime = "bear"
	RegimeChop    Regime = "chop"
	RegimeCrash   Regime = "crash"
	RegimeHighVol Regime = "high_vol"
)
