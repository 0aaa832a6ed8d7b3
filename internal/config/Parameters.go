/*

This file contains the default strategy parameters for the rotor.

These defaults are calibrated for a single-asset vault rotating between
same-asset lending pools, where the dominant risks are thin pools and
noisy short-term APY readings rather than price exposure.

*/

package config

import (
	"time"

	"github.com/meridianyield/rotor/internal/types"
)

// DefaultStrategyParameters provides the baseline parameters for scoring and
// execution. These values are used unless operators override them at startup.
var DefaultStrategyParameters = types.StrategyParameters{
	// --- Scoring ---
	RiskPenalty: 1.0, // Subtract one full standard deviation from mean APY.
	// Rationale: a pool whose APY swings wildly should need a materially higher
	// mean to beat a steady pool. One sigma is the standard risk-adjusted form.

	TvlSteepness: 20.0, // Sharpness of the TVL confidence sigmoid.
	// Rationale: steep enough that confidence collapses quickly once a pool is
	// small relative to our position, without being a hard cliff.

	TvlMidpointRatio: 0.1, // Confidence crosses 0.5 when pool TVL is 10x our size.
	// Rationale: entering a pool where we would be more than ~10% of TVL moves
	// the market against us on both entry and exit.

	// --- Trailing statistics ---
	TrailingWindow: 24 * time.Hour,
	// Rationale: long enough to smooth hourly APY noise, short enough to react
	// to genuine rate regime changes within a day.

	// --- Decision thresholds ---
	RebalanceMinGap: 0.5,
	// Rationale: reallocating costs gas and forfeits in-flight yield during
	// settlement. The candidate must clear the incumbent by a margin that
	// plausibly pays for the move.

	// --- Execution buffers ---
	BufferBasisPoints: 10, // Withhold 10 bps of the deployable balance.
	MinBufferUnits:    1,  // Never withhold less than 1 base unit.
	// Rationale: a small idle remainder absorbs rounding in share-based pool
	// accounting so deposits never revert on an off-by-one balance.

	// --- Settlement wait ---
	SettlementTimeout:      60 * time.Second,
	SettlementPollInterval: 3 * time.Second,
	// Rationale: withdrawals are confirmed before the wait begins, so the idle
	// balance normally reflects them within a few blocks. The timeout only
	// guards against pools that release funds asynchronously.
}
