/*

This file contains the Automator: the scheduler that drives the full
observe-score-decide-execute cycle on a fixed interval.

*/

package automation

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/meridianyield/rotor/internal/analyzer"
	"github.com/meridianyield/rotor/internal/logger"
	"github.com/meridianyield/rotor/internal/planner"
	"github.com/meridianyield/rotor/internal/state"
	"github.com/meridianyield/rotor/internal/types"
	"github.com/meridianyield/rotor/internal/vault"
	"github.com/rs/zerolog"
)

// ErrCycleInProgress is returned when a cycle is requested while another is
// still running.
var ErrCycleInProgress = fmt.Errorf("automation cycle already in progress")

// PoolTracker is the tracker surface the automator drives each cycle.
type PoolTracker interface {
	Pools() []types.PoolConfig
	RefreshAll(ctx context.Context) error
	Latest(poolAddress string) (*types.PoolSnapshot, error)
	TrailingStats(poolAddress string, window time.Duration) (*types.TrailingStats, error)
}

// DecisionExecutor applies a decision and persists the cycle record.
type DecisionExecutor interface {
	Execute(ctx context.Context, decision types.Decision, alloc *types.AllocationState, ranked []types.RankedPool, cycleNumber int) (types.AutomationRecord, error)
}

// Automator runs automation cycles on a schedule and serves the latest
// ranking to the reporting layer.
type Automator struct {
	tracker  PoolTracker
	executor DecisionExecutor
	vm       vault.VaultManager
	params   types.StrategyParameters
	logger   zerolog.Logger

	// running guards against overlapping cycles; a tick that fires while a
	// cycle is still in flight is skipped, never queued.
	running sync.Mutex

	rankedMu   sync.RWMutex
	lastRanked []types.RankedPool

	// Injectable for tests.
	healthCheck func() error
	nextCycle   func() (int, error)
	readState   func(ctx context.Context, vm vault.VaultManager, pools []types.PoolConfig) (*types.AllocationState, error)
	saveRecord  func(types.AutomationRecord) (int64, error)
}

func NewAutomator(tracker PoolTracker, executor DecisionExecutor, vm vault.VaultManager, params types.StrategyParameters) *Automator {
	return &Automator{
		tracker:     tracker,
		executor:    executor,
		vm:          vm,
		params:      params,
		logger:      logger.GetForComponent("automation"),
		healthCheck: state.TestDBConnection,
		nextCycle:   state.IncrementCycleNumber,
		readState:   vault.ReadAllocationState,
		saveRecord:  state.SaveAutomationRecord,
	}
}

// RunLoop starts the automation loop with the specified interval. The first
// cycle runs immediately; the loop exits when the context is cancelled.
func (a *Automator) RunLoop(ctx context.Context, interval time.Duration) {
	a.logger.Info().
		Dur("interval", interval).
		Msg("Starting automation loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.tryRunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			a.logger.Info().Msg("Automation loop stopped due to context cancellation")
			return
		case <-ticker.C:
			a.tryRunCycle(ctx)
		}
	}
}

// RunCycleNow triggers a single cycle out of schedule. Returns
// ErrCycleInProgress when one is already running.
func (a *Automator) RunCycleNow(ctx context.Context) error {
	if !a.running.TryLock() {
		return ErrCycleInProgress
	}
	defer a.running.Unlock()
	return a.runCycle(ctx)
}

// StartCycleAsync begins a cycle in the background. It returns
// ErrCycleInProgress immediately when one is already running, otherwise nil
// once the cycle has been started.
func (a *Automator) StartCycleAsync(ctx context.Context) error {
	if !a.running.TryLock() {
		return ErrCycleInProgress
	}
	go func() {
		defer a.running.Unlock()
		if err := a.runCycle(ctx); err != nil {
			a.logger.Error().Err(err).Msg("Manually triggered cycle failed")
		}
	}()
	return nil
}

// LatestRanked returns the ranking produced by the most recent cycle.
func (a *Automator) LatestRanked() []types.RankedPool {
	a.rankedMu.RLock()
	defer a.rankedMu.RUnlock()
	out := make([]types.RankedPool, len(a.lastRanked))
	copy(out, a.lastRanked)
	return out
}

func (a *Automator) tryRunCycle(ctx context.Context) {
	if !a.running.TryLock() {
		a.logger.Warn().Msg("Previous cycle still running, skipping this tick")
		return
	}
	defer a.running.Unlock()

	if err := a.runCycle(ctx); err != nil {
		a.logger.Error().Err(err).Msg("Automation cycle failed")
	}
}

func (a *Automator) runCycle(ctx context.Context) error {
	cycleID := uuid.New().String()
	cycleLogger := a.logger.With().Str("cycle_id", cycleID).Logger()
	cycleStart := time.Now()

	cycleLogger.Info().Msg("--- Starting automation cycle ---")

	// Refuse to start a cycle that could not be recorded.
	if err := a.healthCheck(); err != nil {
		cycleLogger.Error().Err(err).Msg("Database unhealthy, skipping cycle")
		return fmt.Errorf("database health check failed: %w", err)
	}

	cycleNumber, err := a.nextCycle()
	if err != nil {
		return fmt.Errorf("failed to advance cycle counter: %w", err)
	}

	if err := a.tracker.RefreshAll(ctx); err != nil {
		return a.recordAbortedCycle(cycleNumber, fmt.Errorf("pool refresh aborted: %w", err))
	}

	alloc, err := a.readState(ctx, a.vm, a.tracker.Pools())
	if err != nil {
		return a.recordAbortedCycle(cycleNumber, fmt.Errorf("failed to read allocation state: %w", err))
	}

	ranked := a.rankPools(cycleLogger, alloc)
	a.rankedMu.Lock()
	a.lastRanked = ranked
	a.rankedMu.Unlock()

	decision := planner.Decide(ranked, alloc, a.params)
	cycleLogger.Info().
		Str("decision", string(decision.Type)).
		Str("reason", decision.Reason).
		Float64("gap", decision.ScoreGap).
		Msg("Decision made")

	record, err := a.executor.Execute(ctx, decision, alloc, ranked, cycleNumber)
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Execution failed")
		return err
	}

	cycleLogger.Info().
		Int("cycle", cycleNumber).
		Bool("success", record.Success).
		Dur("elapsed", time.Since(cycleStart)).
		Msg("--- Automation cycle completed ---")
	return nil
}

func (a *Automator) rankPools(cycleLogger zerolog.Logger, alloc *types.AllocationState) []types.RankedPool {
	pools := a.tracker.Pools()
	metrics := make([]analyzer.PoolMetrics, 0, len(pools))
	for _, pool := range pools {
		m := analyzer.PoolMetrics{Pool: pool}

		latest, err := a.tracker.Latest(pool.Address)
		if err != nil {
			cycleLogger.Error().Err(err).Str("pool", pool.Address).Msg("Failed to load latest snapshot")
		} else {
			m.Latest = latest
		}

		stats, err := a.tracker.TrailingStats(pool.Address, a.params.TrailingWindow)
		if err != nil {
			cycleLogger.Error().Err(err).Str("pool", pool.Address).Msg("Failed to compute trailing stats")
		} else {
			m.Stats = stats
		}

		metrics = append(metrics, m)
	}

	assetSize, _ := new(big.Float).SetInt(alloc.ComponentSum()).Float64()
	return analyzer.RankPools(metrics, a.vm.AssetAddress(), assetSize, a.params)
}

// recordAbortedCycle persists an error record for cycles that failed before a
// decision could be made, keeping the one-record-per-cycle audit trail intact.
func (a *Automator) recordAbortedCycle(cycleNumber int, cause error) error {
	record := types.AutomationRecord{
		VaultAddress: a.vm.VaultAddress(),
		CycleNumber:  cycleNumber,
		Timestamp:    time.Now().UTC(),
		Decision:     types.DecisionError,
		GapScale:     types.GapScaleNone,
		Action: types.ActionTaken{
			Type:    types.DecisionError,
			Success: false,
			Error:   cause.Error(),
		},
		Allocation:   types.NewAllocationReport(&types.AllocationState{}),
		Success:      false,
		ErrorMessage: cause.Error(),
	}
	if _, err := a.saveRecord(record); err != nil {
		a.logger.Error().Err(err).
			Int("cycle", cycleNumber).
			Msg("Failed to persist aborted-cycle record")
	}
	return cause
}
