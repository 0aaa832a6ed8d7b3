package datafetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/meridianyield/rotor/internal/logger"
)

func init() {
	logger.Initialize("error")
}

const testPool = "0x0000000000000000000000000000000000000001"

func TestFetchApyRetriesOnRateLimit(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"historic_apy": 4.2, "rewards_apy": 1.3, "input_token": "0xabc"}`))
	}))
	defer server.Close()

	client := NewYieldClient(server.URL, "test-key")
	result, err := client.FetchApy(context.Background(), "base", testPool)
	if err != nil {
		t.Fatalf("FetchApy() error = %v, want success after retries", err)
	}
	if result.HistoricApy != 4.2 || result.RewardsApy != 1.3 {
		t.Errorf("FetchApy() = %+v, want historic 4.2 rewards 1.3", result)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("calls = %d, want 3 (two 429s then success)", calls)
	}
}

func TestFetchApyDoesNotRetryNotFound(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewYieldClient(server.URL, "")
	_, err := client.FetchApy(context.Background(), "base", testPool)
	if err == nil {
		t.Fatal("FetchApy() expected error for 404")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("calls = %d, want 1 (404 must not be retried)", calls)
	}
}

func TestFetchApyRejectsNonFiniteValues(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		// JSON has no NaN literal, so a provider bug would surface as a
		// decode failure rather than a poisoned float.
		w.Write([]byte(`{"historic_apy": NaN, "rewards_apy": 0}`))
	}))
	defer server.Close()

	client := NewYieldClient(server.URL, "")
	_, err := client.FetchApy(context.Background(), "base", testPool)
	if err == nil {
		t.Fatal("FetchApy() expected error for malformed body")
	}
}

func TestFetchTvlParsesOptionalUSD(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"tvl_native": 250000.5}`))
	}))
	defer server.Close()

	client := NewYieldClient(server.URL, "")
	result, err := client.FetchTvl(context.Background(), "base", testPool)
	if err != nil {
		t.Fatalf("FetchTvl() error = %v", err)
	}
	if result.TvlNative != 250000.5 {
		t.Errorf("TvlNative = %v, want 250000.5", result.TvlNative)
	}
	if result.TvlUSD != nil {
		t.Errorf("TvlUSD = %v, want nil when absent", *result.TvlUSD)
	}
}

func TestFetchTvlRejectsNegative(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"tvl_native": -1}`))
	}))
	defer server.Close()

	client := NewYieldClient(server.URL, "")
	_, err := client.FetchTvl(context.Background(), "base", testPool)
	if err == nil {
		t.Fatal("FetchTvl() expected error for negative TVL")
	}
}

func TestAuthorizationHeaderSent(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"tvl_native": 1}`))
	}))
	defer server.Close()

	client := NewYieldClient(server.URL, "secret")
	if _, err := client.FetchTvl(context.Background(), "base", testPool); err != nil {
		t.Fatalf("FetchTvl() error = %v", err)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer secret")
	}
}
