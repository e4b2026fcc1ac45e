package features

import "github.com/driftlabs/driftbot/internal/domain"

// RegimeThresholds configures the rule classifier that labels market
// conditions. Values are percentages.
type RegimeThresholds struct {
	// CrashMovePct is the absolute window price move beyond which the
	// market is labeled a crash regardless of direction agreement.
	CrashMovePct float64
	// HighVolPct is the realized volatility above which the market is
	// labeled high_vol when no crash applies.
	HighVolPct float64
}

// DefaultRegimeThresholds returns the stock classifier thresholds.
func DefaultRegimeThresholds() RegimeThresholds {
	return RegimeThresholds{
		CrashMovePct: 5.0,
		HighVolPct:   3.0,
	}
}

// ClassifyRegime labels the current market condition from the latest feature
// vector. It is deterministic and stateless: re-evaluated every tick from the
// current snapshot only, with no smoothing across ticks.
//
// Rules, first match wins:
//  1. |window move| >= CrashMovePct             -> crash
//  2. realizedVol >= HighVolPct                 -> high_vol
//  3. price up and funding positive             -> bull
//  4. price down and funding negative           -> bear
//  5. otherwise                                 -> chop
func ClassifyRegime(f domain.MarketFeatures, t RegimeThresholds) domain.Regime {
	pctChange := f.WindowChangePct
	abs := pctChange
	if abs < 0 {
		abs = -abs
	}
	if t.CrashMovePct > 0 && abs >= t.CrashMovePct {
		return domain.RegimeCrash
	}
	if t.HighVolPct > 0 && f.RealizedVol >= t.HighVolPct {
		return domain.RegimeHighVol
	}
	if pctChange > 0 && f.FundingRate > 0 {
		return domain.RegimeBull
	}
	if pctChange < 0 && f.FundingRate < 0 {
		return domain.RegimeBear
	}
	return domain.RegimeChop
}
