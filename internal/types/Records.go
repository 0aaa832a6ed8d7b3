/*

This file contains the audit-record types persisted at the end of every
automation cycle.

*/

package types

import (
	"time"
)

// PoolReport is the per-pool summary embedded in an automation record for the
// best and current pools.
type PoolReport struct {
	Address     string   `json:"address"`
	Description string   `json:"description"`
	Score       *float64 `json:"score,omitempty"` // nil when the pool was unscored this cycle
	TotalApy    float64  `json:"total_apy"`
	TvlUSD      float64  `json:"tvl_usd"`
}

// AllocationReport mirrors AllocationState with string amounts so it survives
// JSON round-trips through the database without precision loss.
type AllocationReport struct {
	IdleBalance string                 `json:"idle_balance"`
	TotalAssets string                 `json:"total_assets"`
	Allocations []PoolAllocationReport `json:"allocations"`
}

type PoolAllocationReport struct {
	PoolAddress string `json:"pool_address"`
	Amount      string `json:"amount"`
}

// ActionTaken describes the chain writes (if any) performed for a decision.
type ActionTaken struct {
	Type        DecisionType `json:"type"`
	SourcePools []string     `json:"source_pools,omitempty"`
	TargetPool  string       `json:"target_pool,omitempty"`
	Amount      string       `json:"amount,omitempty"` // native base units
	TxHashes    []string     `json:"tx_hashes,omitempty"`
	Success     bool         `json:"success"`
	Error       string       `json:"error,omitempty"`
}

// AutomationRecord is the durable audit record of one automation cycle.
// Exactly one is written per cycle, regardless of outcome; immutable once
// written. Consumed only by the read-only reporting layer.
type AutomationRecord struct {
	RecordID     int64     `json:"record_id,omitempty"` // auto-incremented by DB
	VaultAddress string    `json:"vault_address"`
	CycleNumber  int       `json:"cycle_number"`
	Timestamp    time.Time `json:"timestamp"`

	BestPool    *PoolReport      `json:"best_pool,omitempty"`
	CurrentPool *PoolReport      `json:"current_pool,omitempty"`
	RankedPools []RankedPool     `json:"ranked_pools"`
	Allocation  AllocationReport `json:"allocation"`

	Decision DecisionType `json:"decision"`
	Action   ActionTaken  `json:"action"`
	ScoreGap float64      `json:"score_gap"`
	GapScale GapScale     `json:"gap_scale"`

	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// NewAllocationReport converts an AllocationState to its string-amount form.
func NewAllocationReport(state *AllocationState) AllocationReport {
	report := AllocationReport{
		IdleBalance: "0",
		TotalAssets: "0",
		Allocations: make([]PoolAllocationReport, 0, len(state.Allocations)),
	}
	if state.IdleBalance != nil {
		report.IdleBalance = state.IdleBalance.String()
	}
	if state.TotalAssets != nil {
		report.TotalAssets = state.TotalAssets.String()
	}
	for _, a := range state.Allocations {
		amount := "0"
		if a.Amount != nil {
			amount = a.Amount.String()
		}
		report.Allocations = append(report.Allocations, PoolAllocationReport{
			PoolAddress: a.PoolAddress,
			Amount:      amount,
		})
	}
	return report
}

// TransactionResult contains the outcome of a single confirmed transaction.
type TransactionResult struct {
	TxHash       string `json:"tx_hash"`
	GasUsed      uint64 `json:"gas_used"`
	BlockNumber  uint64 `json:"block_number,omitempty"`
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`
}
