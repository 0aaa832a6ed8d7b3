package vault

import (
	"context"
	"fmt"
	"math/big"

	"github.com/meridianyield/rotor/internal/logger"
	"github.com/meridianyield/rotor/internal/types"
)

// allocationTolerance is the accepted drift between the component sum and the
// vault-reported totalAssets, in basis points, before an anomaly is flagged.
const allocationToleranceBps = 5

// ReadAllocationState reads the vault's full allocation picture fresh from
// the chain: idle balance, per-pool allocations (zero allocations omitted),
// and the vault-reported total. A mismatch between the component sum and
// totalAssets beyond tolerance is logged as an anomaly but never blocks the
// cycle; the component sum is what decisions run on.
func ReadAllocationState(ctx context.Context, vm VaultManager, pools []types.PoolConfig) (*types.AllocationState, error) {
	idle, err := vm.IdleBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read idle balance: %w", err)
	}

	state := &types.AllocationState{
		IdleBalance: idle,
		Allocations: make([]types.PoolAllocation, 0, len(pools)),
	}

	for _, pool := range pools {
		amount, err := vm.PoolAllocation(ctx, pool.Address)
		if err != nil {
			return nil, fmt.Errorf("failed to read allocation for pool %s: %w", pool.Address, err)
		}
		if amount.Sign() > 0 {
			state.Allocations = append(state.Allocations, types.PoolAllocation{
				PoolAddress: pool.Address,
				Amount:      amount,
			})
		}
	}

	total, err := vm.TotalAssets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read total assets: %w", err)
	}
	state.TotalAssets = total

	checkTotalsAnomaly(state)
	return state, nil
}

func checkTotalsAnomaly(state *types.AllocationState) {
	if state.TotalAssets == nil || state.TotalAssets.Sign() == 0 {
		return
	}

	componentSum := state.ComponentSum()
	diff := new(big.Int).Sub(componentSum, state.TotalAssets)
	diff.Abs(diff)

	tolerance := new(big.Int).Mul(state.TotalAssets, big.NewInt(allocationToleranceBps))
	tolerance.Div(tolerance, big.NewInt(10000))

	if diff.Cmp(tolerance) > 0 {
		log := logger.GetForComponent("vault")
		log.Warn().
			Str("componentSum", componentSum.String()).
			Str("totalAssets", state.TotalAssets.String()).
			Str("diff", diff.String()).
			Msg("Allocation components disagree with vault totalAssets beyond tolerance")
	}
}
