// Package gasprice tracks sliding-window histories of baseFee,
// maxFeePerGas, and maxPriorityFeePerGas and derives EIP-1559/legacy fee
// parameters across heterogeneous EVM chains.
package gasprice

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/dando385/erc4337-bundler-core/pkg/chainclient"
)

const (
	feeSliceMS        = 1_000
	feeHistoryBlocks  = 10
	rewardPercentile  = 20.0
	priorityFloorDiv  = 200 // maxPriorityFeePerGas falls back to maxFeePerGas/200 when it resolves to zero
)

// GasQuote is a maxFeePerGas / maxPriorityFeePerGas pair.
type GasQuote struct {
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// GasPriceManager is the public contract described in spec §4.2.
type GasPriceManager struct {
	client     chainclient.Client
	httpClient *http.Client
	logger     logr.Logger

	chain              Chain
	legacyTransactions bool
	bumpPercent        int
	refreshInterval    time.Duration

	mu                    sync.Mutex
	baseFeeHistory        *history
	maxFeeHistory         *history
	maxPriorityFeeHistory *history
	lastQuote             *GasQuote

	arbitrum *ArbitrumManager

	stopOnce sync.Once
	cancel   context.CancelFunc
}

// Option configures a GasPriceManager at construction time.
type Option func(*GasPriceManager)

// WithLogger overrides the manager's logger.
func WithLogger(l logr.Logger) Option {
	return func(m *GasPriceManager) { m.logger = l }
}

// WithHTTPClient overrides the HTTP client used for the Polygon gas station.
func WithHTTPClient(c *http.Client) Option {
	return func(m *GasPriceManager) { m.httpClient = c }
}

// New builds a GasPriceManager. expiry is the max FIFO length (gasPriceExpiry);
// refreshInterval of zero disables caching (GetGasPrice always recomputes).
func New(client chainclient.Client, chain Chain, bumpPercent, expiry int, refreshInterval time.Duration, legacyTransactions bool, opts ...Option) *GasPriceManager {
	m := &GasPriceManager{
		client:                client,
		httpClient:            defaultHTTPClient(),
		logger:                logr.Discard(),
		chain:                 chain,
		legacyTransactions:    legacyTransactions,
		bumpPercent:           bumpPercent,
		refreshInterval:       refreshInterval,
		baseFeeHistory:        newHistory(expiry, feeSliceMS, true),
		maxFeeHistory:         newHistory(expiry, feeSliceMS, true),
		maxPriorityFeeHistory: newHistory(expiry, feeSliceMS, true),
	}
	if chain == ChainArbitrum {
		m.arbitrum = NewArbitrumManager(expiry)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Arbitrum returns the Arbitrum sub-manager, or nil if this manager isn't
// tracking an Arbitrum chain.
func (m *GasPriceManager) Arbitrum() *ArbitrumManager {
	return m.arbitrum
}

// Start launches the periodic refresh loop if gasPriceRefreshInterval > 0.
// It is a no-op otherwise. The loop stops when ctx is canceled or Stop is
// called; unlike the system this core generalizes from, the loop is
// explicitly cancellable rather than "running forever" (see SPEC_FULL.md §4.2).
func (m *GasPriceManager) Start(ctx context.Context) {
	if m.refreshInterval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	go func() {
		ticker := time.NewTicker(m.refreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.refresh(ctx); err != nil {
					m.logger.Error(err, "gas price refresh failed")
				}
			}
		}
	}()
}

// Stop cancels the refresh loop started by Start. Safe to call multiple
// times or when Start was never called.
func (m *GasPriceManager) Stop() {
	m.stopOnce.Do(func() {
		if m.cancel != nil {
			m.cancel()
		}
	})
}

// GetGasPrice returns the current fee quote. If gasPriceRefreshInterval is
// zero, it recomputes synchronously; otherwise it returns the most recently
// cached quote, refreshing once if none exists yet.
func (m *GasPriceManager) GetGasPrice(ctx context.Context) (*GasQuote, error) {
	if m.refreshInterval == 0 {
		if err := m.refresh(ctx); err != nil {
			return nil, err
		}
	}
	m.mu.Lock()
	cached := m.lastQuote
	m.mu.Unlock()
	if cached != nil {
		return cached, nil
	}
	if err := m.refresh(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastQuote, nil
}

// GetBaseFee returns the most recent base fee. Like GetGasPrice, it
// refreshes first when gasPriceRefreshInterval is zero; otherwise it
// refreshes only if the window is empty. It fails with ErrBaseFeeUnavailable
// on a legacy-only chain.
func (m *GasPriceManager) GetBaseFee(ctx context.Context) (*big.Int, error) {
	if m.legacyTransactions {
		return nil, ErrBaseFeeUnavailable
	}
	if m.refreshInterval == 0 || m.baseFeeHistory.len() == 0 {
		if err := m.refresh(ctx); err != nil {
			return nil, err
		}
	}
	if v := m.baseFeeHistory.latest(); v != nil {
		return v, nil
	}
	return nil, ErrBaseFeeUnavailable
}

// GetMaxBaseFeePerGas returns the largest base fee observed in the current
// window, refreshing first if empty.
func (m *GasPriceManager) GetMaxBaseFeePerGas(ctx context.Context) (*big.Int, error) {
	return m.windowAggregate(ctx, m.baseFeeHistory, (*history).max)
}

// GetMinMaxFeePerGas returns the smallest maxFeePerGas observed in the
// current window, refreshing first if empty.
func (m *GasPriceManager) GetMinMaxFeePerGas(ctx context.Context) (*big.Int, error) {
	return m.windowAggregate(ctx, m.maxFeeHistory, (*history).min)
}

// GetMinMaxPriorityFeePerGas returns the smallest maxPriorityFeePerGas
// observed in the current window, refreshing first if empty.
func (m *GasPriceManager) GetMinMaxPriorityFeePerGas(ctx context.Context) (*big.Int, error) {
	return m.windowAggregate(ctx, m.maxPriorityFeeHistory, (*history).min)
}

func (m *GasPriceManager) windowAggregate(ctx context.Context, h *history, agg func(*history) *big.Int) (*big.Int, error) {
	if h.len() == 0 {
		if err := m.refresh(ctx); err != nil {
			return nil, err
		}
	}
	if v := agg(h); v != nil {
		return v, nil
	}
	return nil, fmt.Errorf("gasprice: window still empty after refresh")
}

// ValidateGasPrice rejects a caller-proposed fee pair that falls below the
// tracked window minimum. On Hedera, window minima are divided by 10^9
// before comparison (the relay reports fees in a coarser unit).
func (m *GasPriceManager) ValidateGasPrice(proposed *GasQuote) error {
	minMaxFee := m.maxFeeHistory.min()
	minPriority := m.maxPriorityFeeHistory.min()
	if minMaxFee == nil || minPriority == nil {
		// Nothing observed yet; nothing to validate against.
		return nil
	}
	if m.chain == ChainHedera {
		minMaxFee = new(big.Int).Div(minMaxFee, hederaScale)
		minPriority = new(big.Int).Div(minPriority, hederaScale)
	}
	if proposed.MaxFeePerGas.Cmp(minMaxFee) < 0 {
		return &GasPriceTooLowError{Field: "maxFeePerGas", Proposed: proposed.MaxFeePerGas, Minimum: minMaxFee}
	}
	if proposed.MaxPriorityFeePerGas.Cmp(minPriority) < 0 {
		return &GasPriceTooLowError{Field: "maxPriorityFeePerGas", Proposed: proposed.MaxPriorityFeePerGas, Minimum: minPriority}
	}
	return nil
}

// refresh performs one fee-source-selection pass (§4.2 precedence) and
// records the result into the histories and the cached quote.
func (m *GasPriceManager) refresh(ctx context.Context) error {
	quote, err := m.computeQuote(ctx)
	if err != nil {
		return err
	}

	now := nowMS()
	m.maxFeeHistory.save(quote.MaxFeePerGas, now)
	m.maxPriorityFeeHistory.save(quote.MaxPriorityFeePerGas, now)

	if !m.legacyTransactions {
		if block, err := m.client.LatestBlock(ctx); err != nil {
			m.logger.Error(err, "fetching latest block for base fee tracking")
		} else if block.BaseFeePerGas != nil {
			m.baseFeeHistory.save(block.BaseFeePerGas, now)
		}
	}

	m.mu.Lock()
	m.lastQuote = quote
	m.mu.Unlock()
	return nil
}

// computeQuote implements the §4.2 fee-source precedence: gas station (on
// Polygon chains), then legacy estimator, then EIP-1559 estimator, each
// followed by the bump step.
func (m *GasPriceManager) computeQuote(ctx context.Context) (*GasQuote, error) {
	if usesGasStation(m.chain) {
		if q, err := m.fromGasStation(ctx); err == nil {
			return m.bump(q), nil
		} else {
			m.logger.Error(err, "polygon gas station failed, falling back")
		}
	}

	if m.legacyTransactions {
		q, err := m.fromLegacy(ctx)
		if err != nil {
			return nil, err
		}
		return m.bump(q), nil
	}

	q, err := m.fromEIP1559(ctx)
	if err != nil {
		return nil, err
	}
	return m.bump(q), nil
}

func (m *GasPriceManager) fromGasStation(ctx context.Context) (*GasQuote, error) {
	url := gasStationURL(m.chain)
	maxFee, maxPriority, err := fetchGasStation(ctx, m.httpClient, url)
	if err != nil {
		return nil, err
	}
	return &GasQuote{MaxFeePerGas: maxFee, MaxPriorityFeePerGas: maxPriority}, nil
}

func (m *GasPriceManager) fromLegacy(ctx context.Context) (*GasQuote, error) {
	fees, err := m.client.EstimateFeesPerGas(ctx, true)
	var price *big.Int
	if err == nil && fees != nil && fees.GasPrice != nil {
		price = fees.GasPrice
	} else {
		price, err = m.client.GasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("gasprice: legacy estimation failed: %w", err)
		}
	}
	return &GasQuote{MaxFeePerGas: price, MaxPriorityFeePerGas: new(big.Int).Set(price)}, nil
}

func (m *GasPriceManager) fromEIP1559(ctx context.Context) (*GasQuote, error) {
	fees, err := m.client.EstimateFeesPerGas(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("gasprice: 1559 estimation failed: %w", err)
	}

	maxPriority := fees.MaxPriorityFeePerGas
	maxFee := fees.MaxFeePerGas

	if maxFee == nil && maxPriority != nil {
		nextBase, err := m.fallbackNextBaseFee(ctx)
		if err != nil {
			return nil, err
		}
		maxFee = new(big.Int).Add(nextBase, maxPriority)
	}

	if maxPriority == nil {
		maxPriority, err = m.feeHistoryPriorityFallback(ctx, maxFee)
		if err != nil {
			return nil, err
		}
	}

	if maxFee == nil {
		nextBase, err := m.fallbackNextBaseFee(ctx)
		if err != nil {
			return nil, fmt.Errorf("gasprice: 1559 estimator returned no maxFeePerGas and no base fee to derive one: %w", err)
		}
		maxFee = new(big.Int).Add(nextBase, maxPriority)
	}

	if maxPriority.Sign() == 0 {
		maxPriority = new(big.Int).Div(maxFee, big.NewInt(priorityFloorDiv))
	}

	return &GasQuote{MaxFeePerGas: maxFee, MaxPriorityFeePerGas: maxPriority}, nil
}

// fallbackNextBaseFee computes the next-block base fee from the latest
// block per the formula in §4.2.
func (m *GasPriceManager) fallbackNextBaseFee(ctx context.Context) (*big.Int, error) {
	block, err := m.client.LatestBlock(ctx)
	if err != nil {
		return nil, fmt.Errorf("gasprice: fetching latest block: %w", err)
	}
	if block.BaseFeePerGas == nil {
		return nil, ErrBaseFeeUnavailable
	}
	return nextBaseFee(block.BaseFeePerGas, block.GasUsed, block.GasLimit), nil
}

// nextBaseFee implements the EIP-1559 base-fee-delta formula: target is half
// the gas limit; base fee moves by up to 1/8 of itself toward the gap
// between actual and target usage.
func nextBaseFee(b *big.Int, gasUsed, gasLimit uint64) *big.Int {
	target := gasLimit / 2
	switch {
	case gasUsed == target:
		return new(big.Int).Set(b)
	case gasUsed > target:
		delta := new(big.Int).Mul(b, big.NewInt(int64(gasUsed-target)))
		delta.Div(delta, big.NewInt(int64(target)))
		delta.Div(delta, big.NewInt(8))
		if delta.Sign() == 0 {
			delta = big.NewInt(1)
		}
		return new(big.Int).Add(b, delta)
	default:
		delta := new(big.Int).Mul(b, big.NewInt(int64(target-gasUsed)))
		delta.Div(delta, big.NewInt(int64(target)))
		delta.Div(delta, big.NewInt(8))
		return new(big.Int).Sub(b, delta)
	}
}

// feeHistoryPriorityFallback derives maxPriorityFeePerGas from the last 10
// blocks' 20th-percentile reward, averaged, and capped at maxFee.
func (m *GasPriceManager) feeHistoryPriorityFallback(ctx context.Context, maxFee *big.Int) (*big.Int, error) {
	hist, err := m.client.FeeHistory(ctx, feeHistoryBlocks, []float64{rewardPercentile})
	if err != nil {
		return nil, fmt.Errorf("gasprice: fee history fallback failed: %w", err)
	}
	if len(hist.Reward) == 0 {
		return big.NewInt(0), nil
	}

	sum := new(big.Int)
	count := 0
	for _, block := range hist.Reward {
		if len(block) == 0 {
			continue
		}
		sum.Add(sum, block[0])
		count++
	}
	if count == 0 {
		return big.NewInt(0), nil
	}
	avg := sum.Div(sum, big.NewInt(int64(count)))
	if maxFee != nil && avg.Cmp(maxFee) > 0 {
		return new(big.Int).Set(maxFee), nil
	}
	return avg, nil
}

// bump multiplies both fees by bumpPercent/100 and applies the chain floor
// and override rules from §4.2.
func (m *GasPriceManager) bump(q *GasQuote) *GasQuote {
	maxFee := scalePercent(q.MaxFeePerGas, m.bumpPercent)
	maxPriority := scalePercent(q.MaxPriorityFeePerGas, m.bumpPercent)

	if floor := priorityFeeFloor(m.chain); floor != nil && maxPriority.Cmp(floor) < 0 {
		maxPriority = floor
	}
	if maxFee.Cmp(maxPriority) < 0 {
		maxFee = new(big.Int).Set(maxPriority)
	}

	if flattenToMax(m.chain) {
		flat := maxFee
		if maxPriority.Cmp(flat) > 0 {
			flat = maxPriority
		}
		maxFee = new(big.Int).Set(flat)
		maxPriority = new(big.Int).Set(flat)
	}

	if floor := postBumpFloor(m.chain); floor != nil {
		if maxFee.Cmp(floor) < 0 {
			maxFee = new(big.Int).Set(floor)
		}
		if maxPriority.Cmp(floor) < 0 {
			maxPriority = new(big.Int).Set(floor)
		}
	}

	return &GasQuote{MaxFeePerGas: maxFee, MaxPriorityFeePerGas: maxPriority}
}

func scalePercent(v *big.Int, percent int) *big.Int {
	scaled := new(big.Int).Mul(v, big.NewInt(int64(percent)))
	return scaled.Div(scaled, big.NewInt(100))
}
