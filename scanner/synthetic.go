package scanner

import (
	"context"
	"fmt"
	"math/big"
	"math/rand"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/apexlabs/apexbot/types"
)

// SyntheticSource fabricates snapshot batches for paper trading. Each chain
// gets a fixed three-token universe with several pools per pair; reserves
// drift a little every cycle so price gaps open and close.
type SyntheticSource struct {
	mu    sync.Mutex
	rng   *rand.Rand
	pools map[types.Chain][]*types.PoolSnapshot
}

// NewSyntheticSource seeds a deterministic universe.
func NewSyntheticSource(seed int64, chains []types.Chain) *SyntheticSource {
	s := &SyntheticSource{
		rng:   rand.New(rand.NewSource(seed)),
		pools: make(map[types.Chain][]*types.PoolSnapshot),
	}
	for _, chain := range chains {
		s.pools[chain] = s.seedChain(chain)
	}
	return s
}

func (s *SyntheticSource) seedChain(chain types.Chain) []*types.PoolSnapshot {
	tokens := []common.Address{
		SyntheticToken(chain, 1),
		SyntheticToken(chain, 2),
		SyntheticToken(chain, 3),
	}
	dexes := []string{"quickswap", "sushiswap", "uniswap-v2"}

	var pools []*types.PoolSnapshot
	for i := 0; i < len(tokens); i++ {
		for j := i + 1; j < len(tokens); j++ {
			for _, dex := range dexes {
				base := int64(1_000_000 + s.rng.Intn(9_000_000))
				skew := 1.0 + (s.rng.Float64()-0.5)*0.04
				pools = append(pools, &types.PoolSnapshot{
					PoolID:       fmt.Sprintf("%s-%s-%d-%d", chain, dex, i, j),
					Chain:        chain,
					DEX:          dex,
					TokenA:       tokens[i],
					TokenB:       tokens[j],
					ReserveA:     big.NewInt(base),
					ReserveB:     big.NewInt(int64(float64(base) * skew)),
					FeeBps:       30,
					TVLUsd:       decimal.NewFromInt(base * 2),
					Volume24hUsd: decimal.NewFromInt(base / 2),
					CapturedAt:   time.Now().UTC(),
				})
			}
		}
	}
	return pools
}

// Snapshots implements SnapshotSource. Returned snapshots are fresh copies;
// callers may hold them across cycles.
func (s *SyntheticSource) Snapshots(_ context.Context, chain types.Chain) ([]*types.PoolSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pools, ok := s.pools[chain]
	if !ok {
		return nil, fmt.Errorf("no synthetic universe for chain %s", chain)
	}

	out := make([]*types.PoolSnapshot, 0, len(pools))
	now := time.Now().UTC()
	for _, p := range pools {
		s.drift(p.ReserveA)
		s.drift(p.ReserveB)
		cp := *p
		cp.ReserveA = new(big.Int).Set(p.ReserveA)
		cp.ReserveB = new(big.Int).Set(p.ReserveB)
		cp.CapturedAt = now
		out = append(out, &cp)
	}
	return out, nil
}

// drift nudges a reserve by up to ±0.5%, floored at 1.
func (s *SyntheticSource) drift(reserve *big.Int) {
	delta := new(big.Int).Div(reserve, big.NewInt(200))
	if delta.Sign() == 0 {
		delta = big.NewInt(1)
	}
	delta.Mul(delta, big.NewInt(int64(s.rng.Intn(201)-100)))
	delta.Div(delta, big.NewInt(100))
	reserve.Add(reserve, delta)
	if reserve.Sign() <= 0 {
		reserve.SetInt64(1)
	}
}

// SyntheticToken returns the nth token address of a chain's synthetic
// universe, so callers can seed matching oracle prices.
func SyntheticToken(chain types.Chain, n byte) common.Address {
	var addr common.Address
	copy(addr[:], chain)
	addr[common.AddressLength-1] = n
	return addr
}
