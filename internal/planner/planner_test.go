package planner

import (
	"math/big"
	"reflect"
	"testing"

	"github.com/meridianyield/rotor/internal/types"
)

const (
	poolAlpha = "0x00000000000000000000000000000000000000aa"
	poolBeta  = "0x00000000000000000000000000000000000000bb"
	poolGamma = "0x00000000000000000000000000000000000000cc"
)

func params() types.StrategyParameters {
	return types.StrategyParameters{
		RebalanceMinGap:   0.5,
		BufferBasisPoints: 10,
		MinBufferUnits:    1,
	}
}

func scored(addr string, score float64, apy float64) types.RankedPool {
	return types.RankedPool{
		Pool:     types.PoolConfig{Address: addr},
		Score:    &types.OpportunityScore{Score: score},
		TotalApy: apy,
	}
}

func unscored(addr string, apy float64) types.RankedPool {
	return types.RankedPool{
		Pool:     types.PoolConfig{Address: addr},
		TotalApy: apy,
	}
}

func allocState(idle int64, allocations ...types.PoolAllocation) *types.AllocationState {
	total := big.NewInt(idle)
	for _, a := range allocations {
		total = new(big.Int).Add(total, a.Amount)
	}
	return &types.AllocationState{
		IdleBalance: big.NewInt(idle),
		TotalAssets: total,
		Allocations: allocations,
	}
}

func TestDecideDepositsIdleMinusBuffer(t *testing.T) {
	ranked := []types.RankedPool{scored(poolAlpha, 5.0, 6.0)}
	alloc := allocState(1000)

	d := Decide(ranked, alloc, params())
	if d.Type != types.DecisionDepositIdle {
		t.Fatalf("Type = %s, want deposit_idle", d.Type)
	}
	if d.TargetPool != poolAlpha {
		t.Errorf("TargetPool = %s, want %s", d.TargetPool, poolAlpha)
	}
	// 1000 units, 10 bps proportional = 1, floor = 1: deposit 999.
	if d.DepositAmount.Cmp(big.NewInt(999)) != 0 {
		t.Errorf("DepositAmount = %s, want 999", d.DepositAmount)
	}
}

func TestDecideHoldsWhenAllocatedToBest(t *testing.T) {
	ranked := []types.RankedPool{
		scored(poolAlpha, 5.0, 6.0),
		scored(poolBeta, 3.0, 4.0),
	}
	alloc := allocState(5, types.PoolAllocation{PoolAddress: poolAlpha, Amount: big.NewInt(10_000)})

	d := Decide(ranked, alloc, params())
	if d.Type != types.DecisionNoAction {
		t.Fatalf("Type = %s, want no_action", d.Type)
	}
}

func TestDecideReallocatesWhenGapClears(t *testing.T) {
	ranked := []types.RankedPool{
		scored(poolAlpha, 5.0, 6.0),
		scored(poolBeta, 3.0, 4.0),
	}
	betaAlloc := types.PoolAllocation{PoolAddress: poolBeta, Amount: big.NewInt(10_000)}
	alloc := allocState(5, betaAlloc)

	d := Decide(ranked, alloc, params())
	if d.Type != types.DecisionReallocate {
		t.Fatalf("Type = %s, want reallocate_to_better_pool", d.Type)
	}
	if d.TargetPool != poolAlpha {
		t.Errorf("TargetPool = %s, want %s", d.TargetPool, poolAlpha)
	}
	if d.ScoreGap != 2.0 {
		t.Errorf("ScoreGap = %v, want 2.0", d.ScoreGap)
	}
	if d.GapScale != types.GapScaleScore {
		t.Errorf("GapScale = %s, want %s", d.GapScale, types.GapScaleScore)
	}
}

func TestDecideHoldsBelowMinimumGap(t *testing.T) {
	ranked := []types.RankedPool{
		scored(poolAlpha, 3.4, 6.0),
		scored(poolBeta, 3.0, 4.0),
	}
	alloc := allocState(0, types.PoolAllocation{PoolAddress: poolBeta, Amount: big.NewInt(10_000)})

	d := Decide(ranked, alloc, params())
	if d.Type != types.DecisionNoAction {
		t.Fatalf("Type = %s, want no_action for gap 0.4 < 0.5", d.Type)
	}
	if d.ScoreGap != 0.4 {
		t.Errorf("ScoreGap = %v, want 0.4", d.ScoreGap)
	}
}

func TestDecideWithdrawsFromAllAllocatedPools(t *testing.T) {
	ranked := []types.RankedPool{
		scored(poolAlpha, 5.0, 6.0),
		scored(poolBeta, 3.0, 4.0),
		scored(poolGamma, 1.0, 2.0),
	}
	allocations := []types.PoolAllocation{
		{PoolAddress: poolBeta, Amount: big.NewInt(7_000)},
		{PoolAddress: poolGamma, Amount: big.NewInt(3_000)},
	}
	alloc := allocState(0, allocations...)

	d := Decide(ranked, alloc, params())
	if d.Type != types.DecisionReallocate {
		t.Fatalf("Type = %s, want reallocate_to_better_pool", d.Type)
	}
	if !reflect.DeepEqual(d.WithdrawFrom, allocations) {
		t.Errorf("WithdrawFrom = %+v, want every allocated pool", d.WithdrawFrom)
	}
	// Gap is measured against the best allocated pool, not the worst.
	if d.ScoreGap != 2.0 {
		t.Errorf("ScoreGap = %v, want 2.0 (vs best incumbent)", d.ScoreGap)
	}
}

func TestDecideFallsBackToApyWhenNothingScored(t *testing.T) {
	// Cold trailing window: no pool has a score yet, only live APY. Idle
	// capital still deploys into the highest-APY pool.
	ranked := []types.RankedPool{
		unscored(poolAlpha, 9.0),
		unscored(poolBeta, 4.0),
	}
	alloc := allocState(1000)

	d := Decide(ranked, alloc, params())
	if d.Type != types.DecisionDepositIdle {
		t.Fatalf("Type = %s, want deposit_idle into the top-APY pool", d.Type)
	}
	if d.TargetPool != poolAlpha {
		t.Errorf("TargetPool = %s, want %s", d.TargetPool, poolAlpha)
	}
	if d.DepositAmount.Cmp(big.NewInt(999)) != 0 {
		t.Errorf("DepositAmount = %s, want 999", d.DepositAmount)
	}
}

func TestDecideUnscoredPoolCanBeReallocationTarget(t *testing.T) {
	ranked := []types.RankedPool{
		unscored(poolAlpha, 9.0),
		unscored(poolBeta, 4.0),
	}
	alloc := allocState(0, types.PoolAllocation{PoolAddress: poolBeta, Amount: big.NewInt(10_000)})

	d := Decide(ranked, alloc, params())
	if d.Type != types.DecisionReallocate {
		t.Fatalf("Type = %s, want reallocate_to_better_pool", d.Type)
	}
	if d.TargetPool != poolAlpha {
		t.Errorf("TargetPool = %s, want %s", d.TargetPool, poolAlpha)
	}
	if d.GapScale != types.GapScaleApy {
		t.Errorf("GapScale = %s, want %s", d.GapScale, types.GapScaleApy)
	}
}

func TestDecideEmptyRanking(t *testing.T) {
	d := Decide(nil, allocState(1000), params())
	if d.Type != types.DecisionNoAction {
		t.Fatalf("Type = %s, want no_action for an empty ranking", d.Type)
	}
}

func TestDecideUnrankedIncumbentHolds(t *testing.T) {
	ranked := []types.RankedPool{scored(poolAlpha, 5.0, 6.0)}
	alloc := allocState(0, types.PoolAllocation{PoolAddress: poolGamma, Amount: big.NewInt(10_000)})

	d := Decide(ranked, alloc, params())
	if d.Type != types.DecisionNoAction {
		t.Fatalf("Type = %s, want no_action for unranked incumbent", d.Type)
	}
}

func TestDecideApyGapWhenIncumbentUnscored(t *testing.T) {
	ranked := []types.RankedPool{
		scored(poolAlpha, 5.0, 6.0),
		unscored(poolBeta, 4.0),
	}
	alloc := allocState(0, types.PoolAllocation{PoolAddress: poolBeta, Amount: big.NewInt(10_000)})

	d := Decide(ranked, alloc, params())
	if d.Type != types.DecisionReallocate {
		t.Fatalf("Type = %s, want reallocate on APY scale", d.Type)
	}
	if d.GapScale != types.GapScaleApy {
		t.Errorf("GapScale = %s, want %s", d.GapScale, types.GapScaleApy)
	}
	if d.ScoreGap != 2.0 {
		t.Errorf("ScoreGap = %v, want 2.0 percentage points", d.ScoreGap)
	}
}

func TestDecideIsIdempotent(t *testing.T) {
	ranked := []types.RankedPool{
		scored(poolAlpha, 5.0, 6.0),
		scored(poolBeta, 3.0, 4.0),
	}
	alloc := allocState(5, types.PoolAllocation{PoolAddress: poolBeta, Amount: big.NewInt(10_000)})

	first := Decide(ranked, alloc, params())
	second := Decide(ranked, alloc, params())
	if first.Type != second.Type || first.TargetPool != second.TargetPool || first.ScoreGap != second.ScoreGap {
		t.Errorf("repeated decisions differ: %+v vs %+v", first, second)
	}
}

func TestComputeBuffer(t *testing.T) {
	tests := []struct {
		name    string
		balance int64
		want    int64
	}{
		{"zero balance", 0, 0},
		{"small balance uses scaled floor", 50, 0}, // 50/100 = 0, proportional 0
		{"thousand units", 1000, 1},
		{"proportional grows with balance", 5000, 5},
		{"proportional dominates large balance", 1_000_000, 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeBuffer(big.NewInt(tt.balance), params())
			if got.Cmp(big.NewInt(tt.want)) != 0 {
				t.Errorf("ComputeBuffer(%d) = %s, want %d", tt.balance, got, tt.want)
			}
		})
	}
}

func TestComputeBufferNeverExceedsBalance(t *testing.T) {
	p := params()
	p.MinBufferUnits = 1_000_000
	got := ComputeBuffer(big.NewInt(500), p)
	if got.Cmp(big.NewInt(500)) > 0 {
		t.Errorf("ComputeBuffer = %s, must not exceed balance 500", got)
	}
}
