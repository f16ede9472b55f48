// Package flashloan selects a capital source for a requested loan from a
// static per-chain provider table.
package flashloan

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/apexlabs/apexbot/types"
)

// ErrNoProviderAvailable means no configured provider can cover the
// requested amount. The opportunity must be discarded, never down-sized.
var ErrNoProviderAvailable = errors.New("no flashloan provider available")

// Selector picks providers deterministically: a zero-fee provider whose
// limit covers the amount wins; failing that, the lowest-fee provider that
// covers it. Selection is a pure function of (chain, token, amount) and the
// table, so repeated calls with identical inputs always agree.
type Selector struct {
	table Table
}

// NewSelector builds a selector over a static provider table.
func NewSelector(table Table) *Selector {
	return &Selector{table: table}
}

// Select returns the provider to borrow amount of token on chain from.
func (s *Selector) Select(chain types.Chain, token common.Address, amount *big.Int) (*Provider, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrNoProviderAvailable
	}

	var best *Provider
	for _, p := range s.table[chain] {
		if !p.Covers(amount) {
			continue
		}
		if p.FeeBps == 0 {
			return p, nil
		}
		if best == nil || p.FeeBps < best.FeeBps {
			best = p
		}
	}
	if best == nil {
		return nil, ErrNoProviderAvailable
	}
	return best, nil
}

// Providers returns the configured providers for a chain.
func (s *Selector) Providers(chain types.Chain) []*Provider {
	return s.table[chain]
}
