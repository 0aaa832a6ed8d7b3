/*

This file contains the decision engine. It is pure: given the ranked pools
and the vault's allocation state it produces a directional Decision, with no
chain or database access. Running it twice on the same inputs produces the
same decision.

*/

package planner

import (
	"math/big"

	"github.com/meridianyield/rotor/internal/types"
)

// Decide maps the current ranking and allocation state to an action.
//
// Three regimes:
//   - nothing allocated and idle above the buffer: deploy the idle balance
//     into the best pool;
//   - already allocated to the best pool: hold;
//   - allocated elsewhere: consolidate into the best pool, but only when its
//     advantage over the best pool we currently hold clears the minimum gap.
//
// A reallocation withdraws from every allocated pool, not just the worst one,
// so the vault converges to a single position instead of fragmenting.
func Decide(ranked []types.RankedPool, alloc *types.AllocationState, params types.StrategyParameters) types.Decision {
	best := topRanked(ranked)
	if best == nil {
		return types.Decision{
			Type:     types.DecisionNoAction,
			GapScale: types.GapScaleNone,
			Reason:   "no eligible pool available",
		}
	}

	if len(alloc.Allocations) == 0 {
		return decideUnallocated(best, alloc, params)
	}
	return decideAllocated(ranked, best, alloc, params)
}

func decideUnallocated(best *types.RankedPool, alloc *types.AllocationState, params types.StrategyParameters) types.Decision {
	idle := alloc.IdleBalance
	if idle == nil || idle.Sign() <= 0 {
		return types.Decision{
			Type:     types.DecisionNoAction,
			GapScale: types.GapScaleNone,
			Reason:   "nothing allocated and no idle balance",
		}
	}

	buffer := ComputeBuffer(idle, params)
	deployable := new(big.Int).Sub(idle, buffer)
	if deployable.Sign() <= 0 {
		return types.Decision{
			Type:     types.DecisionNoAction,
			GapScale: types.GapScaleNone,
			Reason:   "idle balance does not exceed the buffer",
		}
	}

	return types.Decision{
		Type:          types.DecisionDepositIdle,
		TargetPool:    best.Pool.Address,
		DepositAmount: deployable,
		GapScale:      types.GapScaleNone,
		Reason:        "deploying idle balance into the top-ranked pool",
	}
}

func decideAllocated(ranked []types.RankedPool, best *types.RankedPool, alloc *types.AllocationState, params types.StrategyParameters) types.Decision {
	allocated := make(map[string]bool, len(alloc.Allocations))
	for _, a := range alloc.Allocations {
		allocated[a.PoolAddress] = true
	}

	if allocated[best.Pool.Address] {
		return types.Decision{
			Type:     types.DecisionNoAction,
			GapScale: types.GapScaleNone,
			Reason:   "already allocated to the top-ranked pool",
		}
	}

	// Incumbent: the best-ranked pool we currently hold.
	var incumbent *types.RankedPool
	for i := range ranked {
		if allocated[ranked[i].Pool.Address] {
			incumbent = &ranked[i]
			break
		}
	}
	if incumbent == nil {
		// Holding only pools that fell out of the ranking. Without a
		// comparable incumbent there is no defensible gap measurement.
		return types.Decision{
			Type:     types.DecisionNoAction,
			GapScale: types.GapScaleNone,
			Reason:   "allocated pools are unranked, cannot establish a gap",
		}
	}

	gap, scale := measureGap(best, incumbent)
	if gap < params.RebalanceMinGap {
		return types.Decision{
			Type:     types.DecisionNoAction,
			ScoreGap: gap,
			GapScale: scale,
			Reason:   "advantage of the top-ranked pool is below the minimum gap",
		}
	}

	return types.Decision{
		Type:         types.DecisionReallocate,
		TargetPool:   best.Pool.Address,
		WithdrawFrom: alloc.Allocations,
		ScoreGap:     gap,
		GapScale:     scale,
		Reason:       "top-ranked pool clears the minimum gap over the incumbent",
	}
}

// measureGap compares candidate and incumbent on the score scale when both
// are scored, falling back to raw total APY otherwise.
func measureGap(best *types.RankedPool, incumbent *types.RankedPool) (float64, types.GapScale) {
	if best.Score != nil && incumbent.Score != nil {
		return best.Score.Score - incumbent.Score.Score, types.GapScaleScore
	}
	return best.TotalApy - incumbent.TotalApy, types.GapScaleApy
}

// topRanked returns the best candidate pool: the first scored entry, or, when
// no pool carries a score yet (a cold trailing window early in the run), the
// highest raw-APY entry. Nil only for an empty ranking.
func topRanked(ranked []types.RankedPool) *types.RankedPool {
	for i := range ranked {
		if ranked[i].Score != nil {
			return &ranked[i]
		}
	}
	var best *types.RankedPool
	for i := range ranked {
		if best == nil || ranked[i].TotalApy > best.TotalApy {
			best = &ranked[i]
		}
	}
	return best
}
