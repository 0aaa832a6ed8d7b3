package analyzer

import (
	"sort"

	"github.com/meridianyield/rotor/internal/types"
	"github.com/rs/zerolog/log"
)

// PoolMetrics bundles the observed state of one pool for ranking. Latest may
// be nil if the pool has never been fetched successfully; Stats may be nil if
// the trailing window holds no successful snapshots.
type PoolMetrics struct {
	Pool   types.PoolConfig
	Latest *types.PoolSnapshot
	Stats  *types.TrailingStats
}

// RankPools scores the eligible pools and returns them best first.
//
// Eligibility requires a matching input token and at least one successful
// snapshot. Pools with trailing history get a full opportunity score; pools
// that are eligible but unscoreable stay in the list with a nil score so the
// audit trail shows them, sorted below every scored pool.
func RankPools(metrics []PoolMetrics, assetAddress string, assetSize float64, params types.StrategyParameters) []types.RankedPool {
	ranked := make([]types.RankedPool, 0, len(metrics))

	for _, m := range metrics {
		if m.Pool.InputToken != assetAddress {
			log.Debug().
				Str("pool", m.Pool.Address).
				Str("inputToken", m.Pool.InputToken).
				Msg("Skipping pool with mismatched input token")
			continue
		}
		if m.Latest == nil {
			log.Warn().
				Str("pool", m.Pool.Address).
				Msg("Skipping pool with no successful snapshot")
			continue
		}

		entry := types.RankedPool{
			Pool:     m.Pool,
			TotalApy: m.Latest.TotalApy,
		}
		if m.Latest.TvlUSD != nil {
			entry.TvlUSD = *m.Latest.TvlUSD
		}

		if m.Stats != nil && m.Stats.Samples > 0 {
			score, err := CalculateOpportunityScore(*m.Stats, m.Latest.TvlNative, assetSize, params)
			if err != nil {
				log.Error().Err(err).
					Str("pool", m.Pool.Address).
					Msg("Failed to score pool, keeping it unscored")
			} else {
				entry.Score = &score
			}
		}

		ranked = append(ranked, entry)
	}

	// Scored pools first, by score descending. Unscored pools trail, ordered
	// by their latest total APY so the report stays readable.
	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := ranked[i].Score, ranked[j].Score
		if si != nil && sj != nil {
			if si.Score != sj.Score {
				return si.Score > sj.Score
			}
			return ranked[i].TotalApy > ranked[j].TotalApy
		}
		if si != nil {
			return true
		}
		if sj != nil {
			return false
		}
		return ranked[i].TotalApy > ranked[j].TotalApy
	})

	return ranked
}
