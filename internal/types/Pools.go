/*

This file contains the types for tracked pools and their observed yield state.

*/

package types

import (
	"time"
)

// PoolConfig is the immutable identity of a tracked pool. It is loaded from
// static configuration at startup and never mutated at runtime.
type PoolConfig struct {
	Address      string `json:"address"`       // canonical lower-case 0x address
	Chain        string `json:"chain"`         // chain identifier, e.g. "base"
	Description  string `json:"description"`   // human-readable pool name
	ReferenceURL string `json:"reference_url"` // external link for reporting
	InputToken   string `json:"input_token"`   // accepted deposit asset, lower-case 0x address
}

// PoolSnapshot is a single observation of a pool's yield and size. Snapshots
// are append-only: written once by the tracker, never updated or deleted.
type PoolSnapshot struct {
	SnapshotID  int64     `json:"snapshot_id,omitempty"` // auto-incremented by DB
	PoolAddress string    `json:"pool_address"`
	Chain       string    `json:"chain"`
	Timestamp   time.Time `json:"timestamp"`
	HistoricApy float64   `json:"historic_apy"` // percent, e.g. 4.2 for 4.2%
	RewardsApy  float64   `json:"rewards_apy"`
	TotalApy    float64   `json:"total_apy"` // always historic + rewards at write time
	TvlNative   float64   `json:"tvl_native"`
	TvlUSD      *float64  `json:"tvl_usd,omitempty"` // absent when the provider has no USD quote
	Success     bool      `json:"success"`
	ErrorDetail string    `json:"error_detail,omitempty"`
}

// TrailingStats summarizes total APY over a trailing window for one pool.
// Derived on demand from successful snapshots; never stored.
type TrailingStats struct {
	MeanApy float64 `json:"mean_apy"`
	StdApy  float64 `json:"std_apy"` // population standard deviation; 0 below 2 samples
	Samples int     `json:"samples"`
}
