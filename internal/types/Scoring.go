/*

This file contains the types for scoring pools and the tunable parameters of
the rotation strategy.

*/

package types

import (
	"time"
)

// StrategyParameters holds all tunable coefficients and thresholds used for
// scoring, decision-making, and execution. Loaded from static configuration;
// never mutated at runtime.
type StrategyParameters struct {
	// --- Scoring ---
	RiskPenalty      float64 `json:"risk_penalty"`       // multiplier on trailing APY stddev subtracted from mean APY
	TvlSteepness     float64 `json:"tvl_steepness"`      // k: sharpness of the TVL confidence sigmoid
	TvlMidpointRatio float64 `json:"tvl_midpoint_ratio"` // m: tvl/assetSize ratio at which confidence crosses 0.5

	// --- Trailing statistics ---
	TrailingWindow time.Duration `json:"trailing_window"` // window over which APY mean/stddev are computed

	// --- Decision thresholds ---
	RebalanceMinGap float64 `json:"rebalance_min_gap"` // minimum score (or APY percentage-point) advantage required to reallocate

	// --- Execution buffers ---
	BufferBasisPoints int64 `json:"buffer_basis_points"` // proportional buffer withheld from deposits, in bps of the balance
	MinBufferUnits    int64 `json:"min_buffer_units"`    // absolute buffer floor in native base units

	// --- Settlement wait ---
	SettlementTimeout      time.Duration `json:"settlement_timeout"`       // max wait for withdrawn funds to appear as idle balance
	SettlementPollInterval time.Duration `json:"settlement_poll_interval"` // idle-balance poll cadence during the wait
}

// OpportunityScore is the composite ranking metric for one pool, along with
// the inputs it was computed from. Recomputed on every refresh; persisted
// only as an annotation inside automation records.
type OpportunityScore struct {
	Score                float64 `json:"score"` // never negative
	StabilityAdjustedApy float64 `json:"stability_adjusted_apy"`
	TvlConfidenceFactor  float64 `json:"tvl_confidence_factor"`

	// Inputs, kept for auditability.
	ApyMean   float64 `json:"apy_mean"`
	ApyStd    float64 `json:"apy_std"`
	TvlNative float64 `json:"tvl_native"`
	AssetSize float64 `json:"asset_size"`
}

// RankedPool is one entry of the ranked opportunity list for a cycle. A nil
// Score means insufficient trailing history or missing TVL; such pools sort
// below every scored pool but remain listed for audit.
type RankedPool struct {
	Pool     PoolConfig        `json:"pool"`
	Score    *OpportunityScore `json:"score,omitempty"`
	TotalApy float64           `json:"total_apy"`
	TvlUSD   float64           `json:"tvl_usd"`
}
