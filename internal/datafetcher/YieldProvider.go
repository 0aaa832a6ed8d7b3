/*
This file fetches per-pool yield and TVL data from the external yield API.

Every refresh hits two endpoints per pool: one for APY components and one for
TVL. Responses are validated strictly before they are allowed anywhere near
the scoring pipeline.
*/

package datafetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/meridianyield/rotor/internal/logger"
)

var yieldLogger = logger.GetForComponent("yield_provider")

var ErrInvalidYieldData = errors.New("invalid yield data received")
var ErrProviderStatus = errors.New("yield provider returned non-OK status")

const (
	MAX_RETRIES     = 2
	TIMEOUT_SECONDS = 15
)

// ApyResult holds the APY components reported for one pool.
type ApyResult struct {
	HistoricApy float64 `json:"historic_apy"`
	RewardsApy  float64 `json:"rewards_apy"`
	InputToken  string  `json:"input_token"`
}

// TvlResult holds the pool size reported for one pool. TvlUSD is nil when the
// provider has no USD quote for the asset.
type TvlResult struct {
	TvlNative float64  `json:"tvl_native"`
	TvlUSD    *float64 `json:"tvl_usd,omitempty"`
}

// YieldClient talks to the yield data API over HTTP with automatic retries on
// transient failures (network errors, 429, 5xx). Non-transient client errors
// such as 404 fail immediately.
type YieldClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewYieldClient builds a client for the given API base URL.
func NewYieldClient(baseURL string, apiKey string) *YieldClient {
	rc := retryablehttp.NewClient()
	rc.RetryMax = MAX_RETRIES
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.HTTPClient.Timeout = TIMEOUT_SECONDS * time.Second
	rc.Logger = nil

	return &YieldClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    rc.StandardClient(),
	}
}

// FetchApy retrieves the current APY components for one pool.
func (c *YieldClient) FetchApy(ctx context.Context, chain string, poolAddress string) (*ApyResult, error) {
	url := fmt.Sprintf("%s/v1/pools/%s/%s/apy", c.baseURL, chain, poolAddress)

	var result ApyResult
	if err := c.getJSON(ctx, url, &result); err != nil {
		return nil, err
	}

	for _, v := range []float64{result.HistoricApy, result.RewardsApy} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: non-finite APY for pool %s", ErrInvalidYieldData, poolAddress)
		}
	}

	return &result, nil
}

// FetchTvl retrieves the current pool size for one pool.
func (c *YieldClient) FetchTvl(ctx context.Context, chain string, poolAddress string) (*TvlResult, error) {
	url := fmt.Sprintf("%s/v1/pools/%s/%s/tvl", c.baseURL, chain, poolAddress)

	var result TvlResult
	if err := c.getJSON(ctx, url, &result); err != nil {
		return nil, err
	}

	if math.IsNaN(result.TvlNative) || math.IsInf(result.TvlNative, 0) || result.TvlNative < 0 {
		return nil, fmt.Errorf("%w: invalid native TVL %f for pool %s", ErrInvalidYieldData, result.TvlNative, poolAddress)
	}
	if result.TvlUSD != nil {
		if math.IsNaN(*result.TvlUSD) || math.IsInf(*result.TvlUSD, 0) || *result.TvlUSD < 0 {
			return nil, fmt.Errorf("%w: invalid USD TVL for pool %s", ErrInvalidYieldData, poolAddress)
		}
	}

	return &result, nil
}

func (c *YieldClient) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		yieldLogger.Warn().
			Int("status", resp.StatusCode).
			Str("url", url).
			Msg("Yield provider returned non-OK status")
		return fmt.Errorf("%w: %d from %s: %s", ErrProviderStatus, resp.StatusCode, url, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode response from %s: %v", ErrInvalidYieldData, url, err)
	}

	return nil
}
