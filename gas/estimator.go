// Package gas supplies gas-price and USD-conversion data to the evaluation
// pipeline. The live estimator tracks EIP-1559 base fee and tip through a
// narrow client interface; the static oracle backs SIM runs and tests.
package gas

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"go.uber.org/zap"
)

// EthClient is the slice of an RPC client the estimator needs.
type EthClient interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
}

// Estimator tracks current gas prices for one chain.
type Estimator struct {
	client   EthClient
	logger   *zap.Logger
	interval time.Duration

	mu           sync.RWMutex
	baseGasPrice *big.Int
	priorityFee  *big.Int
}

// NewEstimator creates a gas estimator polling every interval.
func NewEstimator(client EthClient, interval time.Duration, logger *zap.Logger) *Estimator {
	if interval <= 0 {
		interval = time.Second
	}
	return &Estimator{
		client:   client,
		logger:   logger,
		interval: interval,
	}
}

// Run polls gas prices until ctx is cancelled.
func (e *Estimator) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.update(ctx); err != nil {
				e.logger.Error("Failed to update gas prices", zap.Error(err))
			}
		}
	}
}

func (e *Estimator) update(ctx context.Context) error {
	header, err := e.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to get latest header: %w", err)
	}
	if header.BaseFee == nil {
		return fmt.Errorf("chain does not report a base fee")
	}

	priorityFee, err := e.client.SuggestGasTipCap(ctx)
	if err != nil {
		return fmt.Errorf("failed to get priority fee: %w", err)
	}

	e.mu.Lock()
	e.baseGasPrice = header.BaseFee
	e.priorityFee = priorityFee
	e.mu.Unlock()
	return nil
}

// CurrentGasPrice returns base fee plus tip in wei, or nil before the first
// successful update.
func (e *Estimator) CurrentGasPrice() *big.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.baseGasPrice == nil || e.priorityFee == nil {
		return nil
	}
	return new(big.Int).Add(e.baseGasPrice, e.priorityFee)
}

// GasPriceGwei returns the current total gas price in gwei. Before the
// first update it reports an error so callers fail closed.
func (e *Estimator) GasPriceGwei() (float64, error) {
	price := e.CurrentGasPrice()
	if price == nil {
		return 0, fmt.Errorf("gas price not yet observed")
	}
	gwei := new(big.Float).Quo(
		new(big.Float).SetInt(price),
		new(big.Float).SetInt(big.NewInt(params.GWei)),
	)
	out, _ := gwei.Float64()
	return out, nil
}
