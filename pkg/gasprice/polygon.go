package gasprice

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"
)

const (
	polygonGasStationURL = "https://gasstation.polygon.technology/v2"
	mumbaiGasStationURL  = "https://gasstation-testnet.polygon.technology/v2"
)

// gasStationSpeed is one of the v2 response's named speed tiers. Only the
// fields the manager uses are modeled; values arrive in gwei as floats.
type gasStationSpeed struct {
	MaxFeePerGas         float64 `json:"maxFee"`
	MaxPriorityFeePerGas float64 `json:"maxPriorityFee"`
}

type gasStationResponse struct {
	Fast gasStationSpeed `json:"fast"`
}

// gasStationURL picks the gas-station endpoint for chain, or "" if chain
// doesn't use the gas station.
func gasStationURL(c Chain) string {
	switch c {
	case ChainPolygon:
		return polygonGasStationURL
	case ChainPolygonMumbai:
		return mumbaiGasStationURL
	default:
		return ""
	}
}

// fetchGasStation queries the Polygon v2 gas-station JSON and returns the
// "fast" tier's fee pair converted from gwei to wei. Any HTTP or parse
// failure is returned so the caller can fall through to on-chain estimation
// per §4.2's precedence rule.
func fetchGasStation(ctx context.Context, httpClient *http.Client, url string) (maxFee, maxPriority *big.Int, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("gasstation: building request: %w", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("gasstation: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("gasstation: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, nil, fmt.Errorf("gasstation: reading body: %w", err)
	}

	var parsed gasStationResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, nil, fmt.Errorf("gasstation: decoding body: %w", err)
	}

	return gweiFloatToWei(parsed.Fast.MaxFeePerGas), gweiFloatToWei(parsed.Fast.MaxPriorityFeePerGas), nil
}

func gweiFloatToWei(v float64) *big.Int {
	wei := new(big.Float).Mul(big.NewFloat(v), new(big.Float).SetInt(gwei))
	out, _ := wei.Int(nil)
	return out
}

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 5 * time.Second}
}
