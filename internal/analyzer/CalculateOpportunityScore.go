package analyzer

import (
	"errors"
	"math"

	"github.com/meridianyield/rotor/internal/types"
)

// ErrInvalidScoreInput indicates that a scoring input was NaN or infinite.
var ErrInvalidScoreInput = errors.New("scoring input is NaN or infinite")

// CalculateOpportunityScore computes the composite ranking metric for one pool.
//
// The score is a stability-adjusted APY dampened by a TVL confidence factor:
//
//	adjustedApy = mean - riskPenalty * std
//	confidence  = 1 / (1 + exp(-k * (tvl/assetSize - m)))
//	score       = max(0, adjustedApy * confidence)
//
// The mean and std come from the pool's trailing APY window; tvl and assetSize
// are in the same native units so the ratio is dimensionless. A pool with
// non-positive TVL, or an assetSize that is non-positive, gets confidence 0
// and therefore score 0 rather than an error: these are real observations of
// pools we simply must not enter.
func CalculateOpportunityScore(stats types.TrailingStats, tvlNative float64, assetSize float64, params types.StrategyParameters) (types.OpportunityScore, error) {
	// --- Input Validation ---
	for _, v := range []float64{stats.MeanApy, stats.StdApy, tvlNative, assetSize} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return types.OpportunityScore{}, ErrInvalidScoreInput
		}
	}

	adjustedApy := stats.MeanApy - params.RiskPenalty*stats.StdApy

	var confidence float64
	if tvlNative > 0 && assetSize > 0 {
		ratio := tvlNative / assetSize
		confidence = 1.0 / (1.0 + math.Exp(-params.TvlSteepness*(ratio-params.TvlMidpointRatio)))
	}

	score := adjustedApy * confidence
	if score < 0 {
		score = 0
	}

	return types.OpportunityScore{
		Score:                score,
		StabilityAdjustedApy: adjustedApy,
		TvlConfidenceFactor:  confidence,
		ApyMean:              stats.MeanApy,
		ApyStd:               stats.StdApy,
		TvlNative:            tvlNative,
		AssetSize:            assetSize,
	}, nil
}
