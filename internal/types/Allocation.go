/*

This file contains the types describing the vault's on-chain allocation state
and the decisions the planner produces from it.

*/

package types

import (
	"math/big"
)

// PoolAllocation is a single non-zero (pool, amount) pair read from the chain.
type PoolAllocation struct {
	PoolAddress string   `json:"pool_address"`
	Amount      *big.Int `json:"amount"` // native base units
}

// AllocationState is the vault's allocation snapshot for one cycle. It is
// re-read from the chain every cycle and never cached across cycles: manual
// withdrawals and interest accrual can change it between reads.
type AllocationState struct {
	IdleBalance *big.Int         `json:"idle_balance"` // asset balance held directly by the vault
	TotalAssets *big.Int         `json:"total_assets"` // vault-reported total, used for the anomaly check only
	Allocations []PoolAllocation `json:"allocations"`  // non-zero allocations only
}

// ComponentSum returns idle balance plus the sum of all pool allocations.
// This is the authoritative total for the decision path; TotalAssets is only
// compared against it to flag anomalies.
func (s *AllocationState) ComponentSum() *big.Int {
	sum := new(big.Int)
	if s.IdleBalance != nil {
		sum.Set(s.IdleBalance)
	}
	for _, a := range s.Allocations {
		if a.Amount != nil {
			sum.Add(sum, a.Amount)
		}
	}
	return sum
}

// DecisionType enumerates the fixed set of actions a cycle can take.
type DecisionType string

const (
	DecisionNoAction    DecisionType = "no_action"
	DecisionDepositIdle DecisionType = "deposit_idle"
	DecisionReallocate  DecisionType = "reallocate_to_better_pool"
	DecisionError       DecisionType = "error"
)

// GapScale records which metric the planner compared when measuring the
// advantage of the candidate pool over the incumbent.
type GapScale string

const (
	GapScaleScore GapScale = "opportunity_score"
	GapScaleApy   GapScale = "total_apy"
	GapScaleNone  GapScale = "none"
)

// Decision is the planner's output for one cycle: a directional instruction
// the executor carries out. Amounts are directional only; the executor
// re-reads balances before every write rather than trusting them exactly.
type Decision struct {
	Type          DecisionType     `json:"type"`
	TargetPool    string           `json:"target_pool,omitempty"` // destination pool address
	WithdrawFrom  []PoolAllocation `json:"withdraw_from,omitempty"`
	DepositAmount *big.Int         `json:"deposit_amount,omitempty"`
	ScoreGap      float64          `json:"score_gap"`
	GapScale      GapScale         `json:"gap_scale"`
	Reason        string           `json:"reason"`
}
