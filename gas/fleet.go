package gas

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/apexlabs/apexbot/types"
)

// Fleet runs one Estimator per chain and layers USD conversion on top, so a
// single value can serve both execution gating and profit estimation in a
// live deployment. Prices load once at startup from the pool registry.
type Fleet struct {
	estimators map[types.Chain]*Estimator

	mu        sync.RWMutex
	nativeUsd map[types.Chain]decimal.Decimal
	tokenUsd  map[tokenKey]decimal.Decimal
}

// NewFleet creates a Fleet over per-chain estimators.
func NewFleet(estimators map[types.Chain]*Estimator) *Fleet {
	return &Fleet{
		estimators: estimators,
		nativeUsd:  make(map[types.Chain]decimal.Decimal),
		tokenUsd:   make(map[tokenKey]decimal.Decimal),
	}
}

// Run starts every estimator's poll loop and blocks until ctx ends.
func (f *Fleet) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, est := range f.estimators {
		wg.Add(1)
		go func(est *Estimator) {
			defer wg.Done()
			est.Run(ctx)
		}(est)
	}
	wg.Wait()
}

// SetNativeUsd sets the USD price of one whole native token for a chain.
func (f *Fleet) SetNativeUsd(chain types.Chain, usd decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nativeUsd[chain] = usd
}

// SetTokenUsd sets the USD value of one base unit of token on chain.
func (f *Fleet) SetTokenUsd(chain types.Chain, token common.Address, usd decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenUsd[tokenKey{chain, token}] = usd
}

// GasPriceGwei reports the chain's live gas price. Errors until the chain's
// estimator has observed a block, so gating fails closed.
func (f *Fleet) GasPriceGwei(chain types.Chain) (float64, error) {
	est, ok := f.estimators[chain]
	if !ok {
		return 0, fmt.Errorf("no gas estimator for chain %s", chain)
	}
	return est.GasPriceGwei()
}

// GasCostUsd converts a gas limit to USD at the chain's live gas price.
func (f *Fleet) GasCostUsd(chain types.Chain, gasLimit uint64) (decimal.Decimal, error) {
	gwei, err := f.GasPriceGwei(chain)
	if err != nil {
		return decimal.Zero, err
	}
	f.mu.RLock()
	nativeUsd, ok := f.nativeUsd[chain]
	f.mu.RUnlock()
	if !ok {
		return decimal.Zero, fmt.Errorf("no native token price for chain %s", chain)
	}
	weiCost := decimal.NewFromFloat(gwei).
		Mul(decimal.NewFromInt(int64(gasLimit))).
		Shift(9)
	return weiCost.Shift(-18).Mul(nativeUsd), nil
}

// TokenUsd returns the USD value of one base unit of token on chain.
func (f *Fleet) TokenUsd(chain types.Chain, token common.Address) (decimal.Decimal, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	usd, ok := f.tokenUsd[tokenKey{chain, token}]
	if !ok {
		return decimal.Zero, fmt.Errorf("no USD price for token %s on chain %s", token.Hex(), chain)
	}
	return usd, nil
}
