package gas

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/apexlabs/apexbot/types"
)

// Static is a manually fed oracle. SIM and DEV runs, and tests, load it with
// fixed prices; a live deployment feeds it from the external price
// collaborator. All methods are safe for concurrent use.
type Static struct {
	mu           sync.RWMutex
	gasPriceGwei map[types.Chain]float64
	nativeUsd    map[types.Chain]decimal.Decimal
	tokenUsd     map[tokenKey]decimal.Decimal
}

type tokenKey struct {
	chain types.Chain
	token common.Address
}

// NewStatic creates an empty static oracle.
func NewStatic() *Static {
	return &Static{
		gasPriceGwei: make(map[types.Chain]float64),
		nativeUsd:    make(map[types.Chain]decimal.Decimal),
		tokenUsd:     make(map[tokenKey]decimal.Decimal),
	}
}

// SetGasPriceGwei sets the current gas price for a chain.
func (s *Static) SetGasPriceGwei(chain types.Chain, gwei float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gasPriceGwei[chain] = gwei
}

// SetNativeUsd sets the USD price of one whole native token (1e18 wei).
func (s *Static) SetNativeUsd(chain types.Chain, usd decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nativeUsd[chain] = usd
}

// SetTokenUsd sets the USD value of one base unit of token on chain.
func (s *Static) SetTokenUsd(chain types.Chain, token common.Address, usd decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenUsd[tokenKey{chain, token}] = usd
}

// GasPriceGwei returns the current gas price for chain. Unknown chains are
// an error so gating fails closed.
func (s *Static) GasPriceGwei(chain types.Chain) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	gwei, ok := s.gasPriceGwei[chain]
	if !ok {
		return 0, fmt.Errorf("no gas price observed for chain %s", chain)
	}
	return gwei, nil
}

// GasCostUsd converts a gas limit to USD at the chain's current gas price.
func (s *Static) GasCostUsd(chain types.Chain, gasLimit uint64) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	gwei, ok := s.gasPriceGwei[chain]
	if !ok {
		return decimal.Zero, fmt.Errorf("no gas price observed for chain %s", chain)
	}
	nativeUsd, ok := s.nativeUsd[chain]
	if !ok {
		return decimal.Zero, fmt.Errorf("no native token price for chain %s", chain)
	}
	// gasLimit * gwei * 1e9 wei, then wei -> whole tokens at 1e18.
	weiCost := decimal.NewFromFloat(gwei).
		Mul(decimal.NewFromInt(int64(gasLimit))).
		Shift(9)
	return weiCost.Shift(-18).Mul(nativeUsd), nil
}

// TokenUsd returns the USD value of one base unit of token on chain.
func (s *Static) TokenUsd(chain types.Chain, token common.Address) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	usd, ok := s.tokenUsd[tokenKey{chain, token}]
	if !ok {
		return decimal.Zero, fmt.Errorf("no USD price for token %s on chain %s", token.Hex(), chain)
	}
	return usd, nil
}
