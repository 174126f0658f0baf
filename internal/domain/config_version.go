package domain

import "time"

// StrategyParams is the full strategy parameter set carried by one
// ConfigVersion. Variants are data, not types: baseline and experimental
// configurations differ only in these values.
type StrategyParams struct {
	OTMTargetPct               float64 // target strike distance from underlying
	DTETarget                  int     // target days to expiration at entry
	ProfitTargetPct            float64 // close when this fraction of premium is captured
	StopLossPct                float64 // close when loss reaches this fraction of premium
	MaxPositionNotional        float64 // per-position notional cap
	MaxConcurrentPositions     int
	DailyLossCircuitBreakerPct float64 // negative; session halts at or below it
	MaxSymbolExposurePct       float64 // symbol concentration cap, fraction of buying power
	ExperimentAllocationPct    float64 // fraction of proposals routed to test arms
	MinSamplesForLearning      int
	SignificanceAlpha          float64
	MinEffectSize              float64 // standardized effect floor for any action
}

// ConfigVersion is an immutable, monotonically numbered strategy parameter
// snapshot. Versions are append-only and never edited in place; every trade
// references the version in effect when it was proposed.
type ConfigVersion struct {
	VersionID int64
	Params    StrategyParams
	CreatedAt time.Time

	// Origin of this version: learning event ID that produced it, empty for
	// the hand-seeded initial version.
	SourceEventID string
}

// Get returns the named parameter value. Recognized names match the
// configuration input surface (otm_target_pct, dte_target, ...).
func (p StrategyParams) Get(name string) (float64, bool) {
	switch name {
	case "otm_target_pct":
		return p.OTMTargetPct, true
	case "dte_target":
		return float64(p.DTETarget), true
	case "profit_target_pct":
		return p.ProfitTargetPct, true
	case "stop_loss_pct":
		return p.StopLossPct, true
	case "max_position_notional":
		return p.MaxPositionNotional, true
	case "max_concurrent_positions":
		return float64(p.MaxConcurrentPositions), true
	case "daily_loss_circuit_breaker_pct":
		return p.DailyLossCircuitBreakerPct, true
	case "max_symbol_exposure_pct":
		return p.MaxSymbolExposurePct, true
	case "experiment_allocation_pct":
		return p.ExperimentAllocationPct, true
	case "min_samples_for_learning":
		return float64(p.MinSamplesForLearning), true
	case "significance_alpha":
		return p.SignificanceAlpha, true
	case "min_effect_size":
		return p.MinEffectSize, true
	}
	return 0, false
}

// WithParam returns a copy of the params with the named parameter replaced.
// Returns false if the name is not recognized.
func (p StrategyParams) WithParam(name string, value float64) (StrategyParams, bool) {
	out := p
	switch name {
	case "otm_target_pct":
		out.OTMTargetPct = value
	case "dte_target":
		out.DTETarget = int(value)
	case "profit_target_pct":
		out.ProfitTargetPct = value
	case "stop_loss_pct":
		out.StopLossPct = value
	case "max_position_notional":
		out.MaxPositionNotional = value
	case "max_concurrent_positions":
		out.MaxConcurrentPositions = int(value)
	case "daily_loss_circuit_breaker_pct":
		out.DailyLossCircuitBreakerPct = value
	case "max_symbol_exposure_pct":
		out.MaxSymbolExposurePct = value
	case "experiment_allocation_pct":
		out.ExperimentAllocationPct = value
	case "min_samples_for_learning":
		out.MinSamplesForLearning = int(value)
	case "significance_alpha":
		out.SignificanceAlpha = value
	case "min_effect_size":
		out.MinEffectSize = value
	default:
		return p, false
	}
	return out, true
}

// DefaultStrategyParams returns the hand-seeded baseline parameter set.
func DefaultStrategyParams() StrategyParams {
	return StrategyParams{
		OTMTargetPct:               0.05,
		DTETarget:                  7,
		ProfitTargetPct:            0.50,
		StopLossPct:                1.00,
		MaxPositionNotional:        25000,
		MaxConcurrentPositions:     5,
		DailyLossCircuitBreakerPct: -0.03,
		MaxSymbolExposurePct:       0.40,
		ExperimentAllocationPct:    0.20,
		MinSamplesForLearning:      30,
		SignificanceAlpha:          0.05,
		MinEffectSize:              0.20,
	}
}
