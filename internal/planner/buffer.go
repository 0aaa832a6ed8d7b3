package planner

import (
	"math/big"

	"github.com/meridianyield/rotor/internal/types"
)

// ComputeBuffer returns the amount of the deployable balance withheld from a
// deposit. The buffer is the larger of a proportional slice (BufferBasisPoints
// of the balance) and an absolute floor, with the floor scaled down for
// balances so small that the full floor would swallow a meaningful share of
// them. The returned buffer never exceeds the balance.
func ComputeBuffer(balance *big.Int, params types.StrategyParameters) *big.Int {
	if balance == nil || balance.Sign() <= 0 {
		return big.NewInt(0)
	}

	proportional := new(big.Int).Mul(balance, big.NewInt(params.BufferBasisPoints))
	proportional.Div(proportional, big.NewInt(10000))

	floor := big.NewInt(params.MinBufferUnits)
	floorCutoff := new(big.Int).Mul(floor, big.NewInt(100))
	if balance.Cmp(floorCutoff) < 0 {
		// Balance is under 100x the floor: cap the floor at 1% of balance.
		floor = new(big.Int).Div(balance, big.NewInt(100))
	}

	buffer := proportional
	if floor.Cmp(buffer) > 0 {
		buffer = floor
	}
	if buffer.Cmp(balance) > 0 {
		buffer = new(big.Int).Set(balance)
	}
	return buffer
}
