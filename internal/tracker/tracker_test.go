package tracker

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/meridianyield/rotor/internal/datafetcher"
	"github.com/meridianyield/rotor/internal/types"
	"github.com/rs/zerolog"
)

type fakeProvider struct {
	apy     map[string]*datafetcher.ApyResult
	tvl     map[string]*datafetcher.TvlResult
	failFor map[string]error
}

func (f *fakeProvider) FetchApy(ctx context.Context, chain string, poolAddress string) (*datafetcher.ApyResult, error) {
	if err, ok := f.failFor[poolAddress]; ok {
		return nil, err
	}
	return f.apy[poolAddress], nil
}

func (f *fakeProvider) FetchTvl(ctx context.Context, chain string, poolAddress string) (*datafetcher.TvlResult, error) {
	if err, ok := f.failFor[poolAddress]; ok {
		return nil, err
	}
	return f.tvl[poolAddress], nil
}

type memStore struct {
	mu        sync.Mutex
	snapshots map[string][]types.PoolSnapshot
	nextID    int64
}

func newMemStore() *memStore {
	return &memStore{snapshots: make(map[string][]types.PoolSnapshot)}
}

func (m *memStore) Save(snapshot types.PoolSnapshot) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	snapshot.SnapshotID = m.nextID
	m.snapshots[snapshot.PoolAddress] = append(m.snapshots[snapshot.PoolAddress], snapshot)
	return snapshot.SnapshotID, nil
}

func (m *memStore) Since(poolAddress string, since time.Time) ([]types.PoolSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.PoolSnapshot
	for _, s := range m.snapshots[poolAddress] {
		if s.Success && !s.Timestamp.Before(since) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) Latest(poolAddress string) (*types.PoolSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.snapshots[poolAddress]
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].Success {
			s := list[i]
			return &s, nil
		}
	}
	return nil, nil
}

const (
	poolA = "0x000000000000000000000000000000000000000a"
	poolB = "0x000000000000000000000000000000000000000b"
)

func testPools() []types.PoolConfig {
	return []types.PoolConfig{
		{Address: poolA, Chain: "base"},
		{Address: poolB, Chain: "base"},
	}
}

func TestRefreshAllRecordsSnapshots(t *testing.T) {
	usd := 500.0
	provider := &fakeProvider{
		apy: map[string]*datafetcher.ApyResult{
			poolA: {HistoricApy: 3.0, RewardsApy: 1.5},
			poolB: {HistoricApy: 7.0, RewardsApy: 0.0},
		},
		tvl: map[string]*datafetcher.TvlResult{
			poolA: {TvlNative: 100_000, TvlUSD: &usd},
			poolB: {TvlNative: 50_000},
		},
	}
	store := newMemStore()
	tr := NewTracker(testPools(), provider, store)

	if err := tr.RefreshAll(context.Background()); err != nil {
		t.Fatalf("RefreshAll() error = %v", err)
	}

	latest, err := tr.Latest(poolA)
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if latest == nil {
		t.Fatal("Latest() = nil, want snapshot")
	}
	if latest.TotalApy != 4.5 {
		t.Errorf("TotalApy = %v, want 4.5 (historic + rewards)", latest.TotalApy)
	}
	if latest.TvlUSD == nil || *latest.TvlUSD != 500.0 {
		t.Errorf("TvlUSD = %v, want 500", latest.TvlUSD)
	}
}

func TestRefreshAllIsolatesPoolFailures(t *testing.T) {
	provider := &fakeProvider{
		apy: map[string]*datafetcher.ApyResult{
			poolB: {HistoricApy: 7.0},
		},
		tvl: map[string]*datafetcher.TvlResult{
			poolB: {TvlNative: 50_000},
		},
		failFor: map[string]error{
			poolA: errors.New("provider timeout"),
		},
	}
	store := newMemStore()
	tr := NewTracker(testPools(), provider, store)

	if err := tr.RefreshAll(context.Background()); err != nil {
		t.Fatalf("RefreshAll() error = %v", err)
	}

	// The failing pool gets a failed snapshot, not silence.
	store.mu.Lock()
	aSnaps := store.snapshots[poolA]
	store.mu.Unlock()
	if len(aSnaps) != 1 {
		t.Fatalf("failed pool snapshots = %d, want 1", len(aSnaps))
	}
	if aSnaps[0].Success {
		t.Error("failed pool snapshot marked successful")
	}
	if aSnaps[0].ErrorDetail == "" {
		t.Error("failed pool snapshot missing error detail")
	}

	// The healthy pool is unaffected.
	latest, _ := tr.Latest(poolB)
	if latest == nil || latest.TotalApy != 7.0 {
		t.Errorf("healthy pool latest = %+v, want TotalApy 7.0", latest)
	}
}

func TestRefreshAllWarnsOnInputTokenMismatch(t *testing.T) {
	configured := "0x00000000000000000000000000000000000000dd"
	reported := "0x00000000000000000000000000000000000000ee"
	provider := &fakeProvider{
		apy: map[string]*datafetcher.ApyResult{
			poolA: {HistoricApy: 3.0, InputToken: reported},
		},
		tvl: map[string]*datafetcher.TvlResult{
			poolA: {TvlNative: 100_000},
		},
	}
	store := newMemStore()
	pools := []types.PoolConfig{{Address: poolA, Chain: "base", InputToken: configured}}
	tr := NewTracker(pools, provider, store)

	var logBuf bytes.Buffer
	tr.logger = zerolog.New(&logBuf)

	if err := tr.RefreshAll(context.Background()); err != nil {
		t.Fatalf("RefreshAll() error = %v", err)
	}

	if !strings.Contains(logBuf.String(), "different input token") {
		t.Errorf("expected an input-token mismatch warning, log output: %s", logBuf.String())
	}
	// The mismatch is a configuration warning, not a fetch failure.
	latest, _ := tr.Latest(poolA)
	if latest == nil || !latest.Success {
		t.Errorf("latest = %+v, want a successful snapshot despite the mismatch", latest)
	}
}

func TestTrailingStatsPopulationStdDev(t *testing.T) {
	store := newMemStore()
	now := time.Now().UTC()
	for i, apy := range []float64{4.0, 6.0, 5.0, 5.0} {
		store.Save(types.PoolSnapshot{
			PoolAddress: poolA,
			Timestamp:   now.Add(-time.Duration(i) * time.Hour),
			TotalApy:    apy,
			Success:     true,
		})
	}
	tr := NewTracker(testPools(), &fakeProvider{}, store)

	stats, err := tr.TrailingStats(poolA, 24*time.Hour)
	if err != nil {
		t.Fatalf("TrailingStats() error = %v", err)
	}
	if stats == nil {
		t.Fatal("TrailingStats() = nil, want stats")
	}
	if stats.Samples != 4 {
		t.Errorf("Samples = %d, want 4", stats.Samples)
	}
	if stats.MeanApy != 5.0 {
		t.Errorf("MeanApy = %v, want 5.0", stats.MeanApy)
	}
	wantStd := math.Sqrt(0.5) // population stddev of {4,6,5,5}
	if math.Abs(stats.StdApy-wantStd) > 1e-9 {
		t.Errorf("StdApy = %v, want %v", stats.StdApy, wantStd)
	}
}

func TestTrailingStatsNilWithoutData(t *testing.T) {
	tr := NewTracker(testPools(), &fakeProvider{}, newMemStore())

	stats, err := tr.TrailingStats(poolA, 24*time.Hour)
	if err != nil {
		t.Fatalf("TrailingStats() error = %v", err)
	}
	if stats != nil {
		t.Errorf("TrailingStats() = %+v, want nil for empty window", stats)
	}
}

func TestTrailingStatsSingleSampleZeroStd(t *testing.T) {
	store := newMemStore()
	store.Save(types.PoolSnapshot{
		PoolAddress: poolA,
		Timestamp:   time.Now().UTC(),
		TotalApy:    5.5,
		Success:     true,
	})
	tr := NewTracker(testPools(), &fakeProvider{}, store)

	stats, err := tr.TrailingStats(poolA, 24*time.Hour)
	if err != nil {
		t.Fatalf("TrailingStats() error = %v", err)
	}
	if stats == nil || stats.Samples != 1 {
		t.Fatalf("stats = %+v, want 1 sample", stats)
	}
	if stats.StdApy != 0 {
		t.Errorf("StdApy = %v, want 0 for a single sample", stats.StdApy)
	}
}
