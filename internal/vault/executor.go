/*

This file contains the executor: it carries a planner decision out on chain
and writes the cycle's audit record. Exactly one record is persisted per
Execute call, whatever happens along the way.

*/

package vault

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/meridianyield/rotor/internal/logger"
	"github.com/meridianyield/rotor/internal/planner"
	"github.com/meridianyield/rotor/internal/state"
	"github.com/meridianyield/rotor/internal/types"
	"github.com/rs/zerolog"
)

// Executor applies decisions to the vault and records the outcome.
type Executor struct {
	vm     VaultManager
	params types.StrategyParameters
	logger zerolog.Logger

	// save persists the audit record; injectable for tests.
	save func(types.AutomationRecord) (int64, error)

	// sleep and now are injectable for the settlement wait in tests.
	sleep func(time.Duration)
	now   func() time.Time
}

func NewExecutor(vm VaultManager, params types.StrategyParameters) *Executor {
	return &Executor{
		vm:     vm,
		params: params,
		logger: logger.GetForComponent("executor"),
		save:   state.SaveAutomationRecord,
		sleep:  time.Sleep,
		now:    time.Now,
	}
}

// Execute carries out the decision and persists the cycle's audit record.
// The returned record is always populated, even when execution aborts early;
// the error reports the first failure encountered.
func (e *Executor) Execute(ctx context.Context, decision types.Decision, alloc *types.AllocationState, ranked []types.RankedPool, cycleNumber int) (types.AutomationRecord, error) {
	record := types.AutomationRecord{
		VaultAddress: e.vm.VaultAddress(),
		CycleNumber:  cycleNumber,
		Timestamp:    e.now().UTC(),
		RankedPools:  ranked,
		Allocation:   types.NewAllocationReport(alloc),
		Decision:     decision.Type,
		ScoreGap:     decision.ScoreGap,
		GapScale:     decision.GapScale,
		Action: types.ActionTaken{
			Type: decision.Type,
		},
	}
	record.BestPool = poolReport(ranked, topRankedAddress(ranked))
	record.CurrentPool = poolReport(ranked, incumbentAddress(ranked, alloc))

	execErr := e.run(ctx, decision, alloc, &record)
	if execErr != nil {
		record.Success = false
		record.Action.Success = false
		record.Action.Error = execErr.Error()
		record.ErrorMessage = execErr.Error()
	} else {
		record.Success = true
		record.Action.Success = true
	}

	// A failed record write loses audit history but the cycle itself is
	// complete; it is logged, not returned.
	if _, saveErr := e.save(record); saveErr != nil {
		e.logger.Error().Err(saveErr).
			Int("cycle", cycleNumber).
			Msg("Failed to persist automation record")
	}

	return record, execErr
}

func (e *Executor) run(ctx context.Context, decision types.Decision, alloc *types.AllocationState, record *types.AutomationRecord) error {
	if decision.Type == types.DecisionNoAction {
		return nil
	}

	// Writes are gated on the signer actually owning the vault. A signer
	// rotation or misconfiguration must fail loudly before any transaction.
	owner, err := e.vm.Owner(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify vault owner: %w", err)
	}
	if owner != e.vm.SignerAddress() {
		return fmt.Errorf("signer %s is not the vault owner %s, refusing to transact", e.vm.SignerAddress(), owner)
	}

	switch decision.Type {
	case types.DecisionDepositIdle:
		return e.runDeposit(ctx, decision, record)
	case types.DecisionReallocate:
		return e.runReallocation(ctx, decision, alloc, record)
	default:
		return fmt.Errorf("unknown decision type %q", decision.Type)
	}
}

func (e *Executor) runDeposit(ctx context.Context, decision types.Decision, record *types.AutomationRecord) error {
	// Re-read the idle balance rather than trusting the planner's figure;
	// deposits or withdrawals may have landed since the state was read.
	idle, err := e.vm.IdleBalance(ctx)
	if err != nil {
		return fmt.Errorf("failed to re-read idle balance: %w", err)
	}

	return e.depositIdle(ctx, decision.TargetPool, idle, record)
}

func (e *Executor) runReallocation(ctx context.Context, decision types.Decision, alloc *types.AllocationState, record *types.AutomationRecord) error {
	priorIdle, err := e.vm.IdleBalance(ctx)
	if err != nil {
		return fmt.Errorf("failed to read idle balance before withdrawals: %w", err)
	}

	// Withdraw sequentially, each transaction confirmed before the next. A
	// failed withdrawal aborts the cycle with whatever already moved sitting
	// safely as idle balance for the next cycle to deploy.
	totalWithdrawn := new(big.Int)
	for _, source := range decision.WithdrawFrom {
		record.Action.SourcePools = append(record.Action.SourcePools, source.PoolAddress)

		result, err := e.vm.WithdrawFromVault(ctx, source.PoolAddress, source.Amount)
		if result != nil && result.TxHash != "" {
			record.Action.TxHashes = append(record.Action.TxHashes, result.TxHash)
		}
		if err != nil {
			return fmt.Errorf("withdrawal from pool %s failed: %w", source.PoolAddress, err)
		}
		totalWithdrawn.Add(totalWithdrawn, source.Amount)

		e.logger.Info().
			Str("pool", source.PoolAddress).
			Str("amount", source.Amount.String()).
			Msg("Withdrawal confirmed")
	}

	idle, err := e.waitForSettlement(ctx, priorIdle, totalWithdrawn)
	if err != nil {
		return err
	}

	return e.depositIdle(ctx, decision.TargetPool, idle, record)
}

// waitForSettlement polls the idle balance until it reflects the withdrawn
// funds or the settlement timeout passes. On timeout the observed balance is
// used as-is: confirmed withdrawals may simply settle late, and the shortfall
// stays in the vault for a later cycle.
func (e *Executor) waitForSettlement(ctx context.Context, priorIdle *big.Int, totalWithdrawn *big.Int) (*big.Int, error) {
	expected := new(big.Int).Add(priorIdle, totalWithdrawn)
	deadline := e.now().Add(e.params.SettlementTimeout)

	for {
		idle, err := e.vm.IdleBalance(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read idle balance during settlement wait: %w", err)
		}
		if idle.Cmp(expected) >= 0 {
			return idle, nil
		}
		if !e.now().Before(deadline) {
			e.logger.Warn().
				Str("expected", expected.String()).
				Str("observed", idle.String()).
				Msg("Settlement wait timed out, proceeding with observed idle balance")
			return idle, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e.sleep(e.params.SettlementPollInterval)
	}
}

func (e *Executor) depositIdle(ctx context.Context, targetPool string, idle *big.Int, record *types.AutomationRecord) error {
	buffer := planner.ComputeBuffer(idle, e.params)
	amount := new(big.Int).Sub(idle, buffer)
	if amount.Sign() <= 0 {
		e.logger.Warn().
			Str("idle", idle.String()).
			Str("buffer", buffer.String()).
			Msg("Nothing to deposit after buffer, skipping deposit")
		return nil
	}

	record.Action.TargetPool = targetPool
	record.Action.Amount = amount.String()

	result, err := e.vm.Reallocate(ctx, targetPool, amount)
	if result != nil && result.TxHash != "" {
		record.Action.TxHashes = append(record.Action.TxHashes, result.TxHash)
	}
	if err != nil {
		return fmt.Errorf("deposit into pool %s failed: %w", targetPool, err)
	}

	e.logger.Info().
		Str("pool", targetPool).
		Str("amount", amount.String()).
		Str("buffer", buffer.String()).
		Msg("Deposit confirmed")
	return nil
}

// topRankedAddress mirrors the planner's candidate choice: first scored pool,
// highest raw APY when nothing is scored yet.
func topRankedAddress(ranked []types.RankedPool) string {
	for i := range ranked {
		if ranked[i].Score != nil {
			return ranked[i].Pool.Address
		}
	}
	best := ""
	bestApy := 0.0
	for i := range ranked {
		if best == "" || ranked[i].TotalApy > bestApy {
			best = ranked[i].Pool.Address
			bestApy = ranked[i].TotalApy
		}
	}
	return best
}

func incumbentAddress(ranked []types.RankedPool, alloc *types.AllocationState) string {
	allocated := make(map[string]bool, len(alloc.Allocations))
	for _, a := range alloc.Allocations {
		allocated[a.PoolAddress] = true
	}
	for i := range ranked {
		if allocated[ranked[i].Pool.Address] {
			return ranked[i].Pool.Address
		}
	}
	return ""
}

func poolReport(ranked []types.RankedPool, address string) *types.PoolReport {
	if address == "" {
		return nil
	}
	for i := range ranked {
		if ranked[i].Pool.Address != address {
			continue
		}
		report := &types.PoolReport{
			Address:     ranked[i].Pool.Address,
			Description: ranked[i].Pool.Description,
			TotalApy:    ranked[i].TotalApy,
			TvlUSD:      ranked[i].TvlUSD,
		}
		if ranked[i].Score != nil {
			s := ranked[i].Score.Score
			report.Score = &s
		}
		return report
	}
	return nil
}
