// ./internal/state/snapshot_store.go
package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/meridianyield/rotor/internal/types"
	"github.com/rs/zerolog/log"
)

// SavePoolSnapshot appends one yield observation for a pool. Snapshots are
// never updated or deleted after insertion.
func SavePoolSnapshot(snapshot types.PoolSnapshot) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO pool_snapshots (
			pool_address, chain, snapshot_timestamp,
			historic_apy, rewards_apy, total_apy,
			tvl_native, tvl_usd,
			success, error_detail
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING snapshot_id;
	`

	var snapshotID int64
	err := DB.QueryRow(
		query,
		snapshot.PoolAddress, snapshot.Chain, snapshot.Timestamp,
		snapshot.HistoricApy, snapshot.RewardsApy, snapshot.TotalApy,
		snapshot.TvlNative, snapshot.TvlUSD,
		snapshot.Success, nullIfEmpty(snapshot.ErrorDetail),
	).Scan(&snapshotID)

	if err != nil {
		return 0, fmt.Errorf("failed to save pool snapshot: %w", err)
	}

	log.Debug().
		Int64("snapshot_id", snapshotID).
		Str("pool", snapshot.PoolAddress).
		Float64("total_apy", snapshot.TotalApy).
		Bool("success", snapshot.Success).
		Msg("Pool snapshot saved to database")

	return snapshotID, nil
}

// SnapshotsSince returns the successful snapshots for a pool newer than the
// given time, oldest first. Failed snapshots are excluded; they record the
// outage but carry no usable yield data.
func SnapshotsSince(poolAddress string, since time.Time) ([]types.PoolSnapshot, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT snapshot_id, pool_address, chain, snapshot_timestamp,
		       historic_apy, rewards_apy, total_apy,
		       tvl_native, tvl_usd, success, COALESCE(error_detail, '')
		FROM pool_snapshots
		WHERE pool_address = $1 AND success = TRUE AND snapshot_timestamp >= $2
		ORDER BY snapshot_timestamp ASC;
	`

	rows, err := DB.Query(query, poolAddress, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query pool snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []types.PoolSnapshot
	for rows.Next() {
		var s types.PoolSnapshot
		if err := rows.Scan(
			&s.SnapshotID, &s.PoolAddress, &s.Chain, &s.Timestamp,
			&s.HistoricApy, &s.RewardsApy, &s.TotalApy,
			&s.TvlNative, &s.TvlUSD, &s.Success, &s.ErrorDetail,
		); err != nil {
			return nil, fmt.Errorf("failed to scan pool snapshot row: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pool snapshot rows: %w", err)
	}

	return snapshots, nil
}

// LatestSuccessfulSnapshot returns the most recent successful snapshot for a
// pool, or nil if the pool has never been observed successfully.
func LatestSuccessfulSnapshot(poolAddress string) (*types.PoolSnapshot, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT snapshot_id, pool_address, chain, snapshot_timestamp,
		       historic_apy, rewards_apy, total_apy,
		       tvl_native, tvl_usd, success, COALESCE(error_detail, '')
		FROM pool_snapshots
		WHERE pool_address = $1 AND success = TRUE
		ORDER BY snapshot_timestamp DESC
		LIMIT 1;
	`

	var s types.PoolSnapshot
	err := DB.QueryRow(query, poolAddress).Scan(
		&s.SnapshotID, &s.PoolAddress, &s.Chain, &s.Timestamp,
		&s.HistoricApy, &s.RewardsApy, &s.TotalApy,
		&s.TvlNative, &s.TvlUSD, &s.Success, &s.ErrorDetail,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query latest snapshot: %w", err)
	}

	return &s, nil
}

// PgSnapshotStore adapts the package-level snapshot functions to the
// tracker's SnapshotStore interface.
type PgSnapshotStore struct{}

func (PgSnapshotStore) Save(snapshot types.PoolSnapshot) (int64, error) {
	return SavePoolSnapshot(snapshot)
}

func (PgSnapshotStore) Since(poolAddress string, since time.Time) ([]types.PoolSnapshot, error) {
	return SnapshotsSince(poolAddress, since)
}

func (PgSnapshotStore) Latest(poolAddress string) (*types.PoolSnapshot, error) {
	return LatestSuccessfulSnapshot(poolAddress)
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
