/*

This file contains the pool tracker: it refreshes yield observations for the
whole tracked universe and serves trailing statistics derived from them.

*/

package tracker

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/meridianyield/rotor/internal/datafetcher"
	"github.com/meridianyield/rotor/internal/logger"
	"github.com/meridianyield/rotor/internal/types"
	"github.com/rs/zerolog"
)

// YieldProvider is the subset of the yield API client the tracker needs.
type YieldProvider interface {
	FetchApy(ctx context.Context, chain string, poolAddress string) (*datafetcher.ApyResult, error)
	FetchTvl(ctx context.Context, chain string, poolAddress string) (*datafetcher.TvlResult, error)
}

// SnapshotStore persists and serves pool snapshots.
type SnapshotStore interface {
	Save(snapshot types.PoolSnapshot) (int64, error)
	Since(poolAddress string, since time.Time) ([]types.PoolSnapshot, error)
	Latest(poolAddress string) (*types.PoolSnapshot, error)
}

// Tracker refreshes and serves yield state for the static pool universe.
type Tracker struct {
	pools    []types.PoolConfig
	provider YieldProvider
	store    SnapshotStore
	logger   zerolog.Logger
}

func NewTracker(pools []types.PoolConfig, provider YieldProvider, store SnapshotStore) *Tracker {
	return &Tracker{
		pools:    pools,
		provider: provider,
		store:    store,
		logger:   logger.GetForComponent("tracker"),
	}
}

// Pools returns the tracked universe.
func (t *Tracker) Pools() []types.PoolConfig {
	return t.pools
}

// RefreshAll fetches a fresh snapshot for every tracked pool concurrently.
// A pool whose fetch fails gets a failed snapshot recording the error; other
// pools are unaffected. RefreshAll itself only fails if the context is
// cancelled before the fan-out completes.
func (t *Tracker) RefreshAll(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, pool := range t.pools {
		wg.Add(1)
		go func(pool types.PoolConfig) {
			defer wg.Done()
			t.refreshOne(ctx, pool)
		}(pool)
	}
	wg.Wait()
	return ctx.Err()
}

func (t *Tracker) refreshOne(ctx context.Context, pool types.PoolConfig) {
	snapshot := types.PoolSnapshot{
		PoolAddress: pool.Address,
		Chain:       pool.Chain,
		Timestamp:   time.Now().UTC(),
	}

	apy, err := t.provider.FetchApy(ctx, pool.Chain, pool.Address)
	if err == nil {
		// The provider reports the pool's input token; a mismatch against
		// the configured one means the pool entry is pointing at the wrong
		// contract. The snapshot is still recorded.
		if apy.InputToken != "" && pool.InputToken != "" && !strings.EqualFold(apy.InputToken, pool.InputToken) {
			t.logger.Warn().
				Str("pool", pool.Address).
				Str("configured_input_token", pool.InputToken).
				Str("reported_input_token", apy.InputToken).
				Msg("Provider reports a different input token than configured for pool")
		}
		var tvl *datafetcher.TvlResult
		tvl, err = t.provider.FetchTvl(ctx, pool.Chain, pool.Address)
		if err == nil {
			snapshot.HistoricApy = apy.HistoricApy
			snapshot.RewardsApy = apy.RewardsApy
			snapshot.TotalApy = apy.HistoricApy + apy.RewardsApy
			snapshot.TvlNative = tvl.TvlNative
			snapshot.TvlUSD = tvl.TvlUSD
			snapshot.Success = true
		}
	}
	if err != nil {
		snapshot.Success = false
		snapshot.ErrorDetail = err.Error()
		t.logger.Warn().Err(err).
			Str("pool", pool.Address).
			Msg("Pool refresh failed, recording failed snapshot")
	}

	if _, saveErr := t.store.Save(snapshot); saveErr != nil {
		t.logger.Error().Err(saveErr).
			Str("pool", pool.Address).
			Msg("Failed to persist pool snapshot")
	}
}

// Latest returns the most recent successful snapshot for a pool, or nil.
func (t *Tracker) Latest(poolAddress string) (*types.PoolSnapshot, error) {
	return t.store.Latest(poolAddress)
}

// History returns the successful snapshots for a pool over the trailing
// window, oldest first.
func (t *Tracker) History(poolAddress string, window time.Duration) ([]types.PoolSnapshot, error) {
	return t.store.Since(poolAddress, time.Now().UTC().Add(-window))
}

// TrailingStats computes the mean and population standard deviation of total
// APY over the trailing window. Returns nil when the window holds no
// successful snapshots. A single sample yields a stddev of 0, which makes
// the stability adjustment a no-op rather than an error.
func (t *Tracker) TrailingStats(poolAddress string, window time.Duration) (*types.TrailingStats, error) {
	since := time.Now().UTC().Add(-window)
	snapshots, err := t.store.Since(poolAddress, since)
	if err != nil {
		return nil, err
	}
	if len(snapshots) == 0 {
		return nil, nil
	}

	var sum float64
	for _, s := range snapshots {
		sum += s.TotalApy
	}
	mean := sum / float64(len(snapshots))

	var sumSqDiff float64
	for _, s := range snapshots {
		diff := s.TotalApy - mean
		sumSqDiff += diff * diff
	}
	std := math.Sqrt(sumSqDiff / float64(len(snapshots)))

	return &types.TrailingStats{
		MeanApy: mean,
		StdApy:  std,
		Samples: len(snapshots),
	}, nil
}
