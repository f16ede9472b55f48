package scanner

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/apexlabs/apexbot/types"
)

// getReserves() selector on UniswapV2-style pairs.
var getReservesSelector = []byte{0x09, 0x02, 0xf1, 0xac}

// ContractCaller is the slice of ethclient.Client the live source needs.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// RegisteredPool is one statically known pool. Reserves are fetched live;
// everything else comes from the registry file. USD figures are strings in
// the YAML and parsed to decimals at load time.
type RegisteredPool struct {
	PoolID       string `yaml:"pool_id"`
	DEX          string `yaml:"dex"`
	Address      string `yaml:"address"`
	TokenA       string `yaml:"token_a"`
	TokenB       string `yaml:"token_b"`
	FeeBps       uint32 `yaml:"fee_bps"`
	TVLUsdRaw    string `yaml:"tvl_usd"`
	Volume24hRaw string `yaml:"volume_24h_usd"`

	TVLUsd       decimal.Decimal `yaml:"-"`
	Volume24hUsd decimal.Decimal `yaml:"-"`
}

// ChainPrices carries the USD conversion data for one chain.
type ChainPrices struct {
	NativeUsdRaw string            `yaml:"native_usd"`
	TokensRaw    map[string]string `yaml:"tokens"`

	NativeUsd decimal.Decimal            `yaml:"-"`
	Tokens    map[string]decimal.Decimal `yaml:"-"`
}

// PoolRegistry is the static half of the scanner's world: which pools exist
// and what their tokens are worth.
type PoolRegistry struct {
	Pools  map[string][]RegisteredPool `yaml:"pools"`
	Prices map[string]ChainPrices      `yaml:"prices"`
}

// LoadPoolRegistry reads the pool registry YAML.
func LoadPoolRegistry(path string) (*PoolRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pool registry: %w", err)
	}
	var reg PoolRegistry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("failed to parse pool registry: %w", err)
	}
	if len(reg.Pools) == 0 {
		return nil, fmt.Errorf("pool registry %s defines no pools", path)
	}

	for chain, pools := range reg.Pools {
		for i := range pools {
			p := &pools[i]
			if !common.IsHexAddress(p.Address) {
				return nil, fmt.Errorf("pool %s on %s: invalid address %q", p.PoolID, chain, p.Address)
			}
			if p.TVLUsd, err = parseUsd(p.TVLUsdRaw); err != nil {
				return nil, fmt.Errorf("pool %s on %s: tvl_usd: %w", p.PoolID, chain, err)
			}
			if p.Volume24hUsd, err = parseUsd(p.Volume24hRaw); err != nil {
				return nil, fmt.Errorf("pool %s on %s: volume_24h_usd: %w", p.PoolID, chain, err)
			}
		}
	}
	for chain, prices := range reg.Prices {
		if prices.NativeUsd, err = parseUsd(prices.NativeUsdRaw); err != nil {
			return nil, fmt.Errorf("prices for %s: native_usd: %w", chain, err)
		}
		prices.Tokens = make(map[string]decimal.Decimal, len(prices.TokensRaw))
		for token, raw := range prices.TokensRaw {
			if prices.Tokens[token], err = parseUsd(raw); err != nil {
				return nil, fmt.Errorf("prices for %s: token %s: %w", chain, token, err)
			}
		}
		reg.Prices[chain] = prices
	}
	return &reg, nil
}

func parseUsd(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

// LiveSource reads reserves from chain for every registered pool. Pools
// whose reserve call fails are skipped for the cycle, not fatal.
type LiveSource struct {
	callers  map[types.Chain]ContractCaller
	registry *PoolRegistry
	timeout  time.Duration
	logger   *zap.Logger
}

// NewLiveSource wires one caller per chain over a shared registry.
func NewLiveSource(callers map[types.Chain]ContractCaller, registry *PoolRegistry, logger *zap.Logger) *LiveSource {
	return &LiveSource{
		callers:  callers,
		registry: registry,
		timeout:  10 * time.Second,
		logger:   logger,
	}
}

// Snapshots implements SnapshotSource.
func (ls *LiveSource) Snapshots(ctx context.Context, chain types.Chain) ([]*types.PoolSnapshot, error) {
	caller, ok := ls.callers[chain]
	if !ok {
		return nil, fmt.Errorf("no client for chain %s", chain)
	}

	ctx, cancel := context.WithTimeout(ctx, ls.timeout)
	defer cancel()

	pools := ls.registry.Pools[string(chain)]
	snapshots := make([]*types.PoolSnapshot, 0, len(pools))
	for _, pool := range pools {
		snap, err := ls.fetch(ctx, caller, chain, pool)
		if err != nil {
			if ctx.Err() != nil {
				return snapshots, ctx.Err()
			}
			ls.logger.Warn("Failed to fetch pool reserves",
				zap.String("pool", pool.PoolID), zap.Error(err))
			continue
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

func (ls *LiveSource) fetch(ctx context.Context, caller ContractCaller, chain types.Chain, pool RegisteredPool) (*types.PoolSnapshot, error) {
	pair := common.HexToAddress(pool.Address)
	out, err := caller.CallContract(ctx, ethereum.CallMsg{
		To:   &pair,
		Data: getReservesSelector,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("getReserves call failed: %w", err)
	}
	reserveA, reserveB, err := decodeReserves(out)
	if err != nil {
		return nil, err
	}

	return &types.PoolSnapshot{
		PoolID:       pool.PoolID,
		Chain:        chain,
		DEX:          pool.DEX,
		TokenA:       common.HexToAddress(pool.TokenA),
		TokenB:       common.HexToAddress(pool.TokenB),
		ReserveA:     reserveA,
		ReserveB:     reserveB,
		FeeBps:       pool.FeeBps,
		TVLUsd:       pool.TVLUsd,
		Volume24hUsd: pool.Volume24hUsd,
		CapturedAt:   time.Now().UTC(),
	}, nil
}

// decodeReserves unpacks the (uint112, uint112, uint32) return of
// getReserves. Both reserves come from the same call, so the snapshot is
// internally consistent.
func decodeReserves(out []byte) (*big.Int, *big.Int, error) {
	if len(out) < 64 {
		return nil, nil, fmt.Errorf("short getReserves return: %d bytes", len(out))
	}
	reserveA := new(big.Int).SetBytes(out[:32])
	reserveB := new(big.Int).SetBytes(out[32:64])
	return reserveA, reserveB, nil
}
