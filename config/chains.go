package config

import (
	"fmt"
	"strings"

	"github.com/apexlabs/apexbot/types"
)

// ChainInfo describes one supported chain.
type ChainInfo struct {
	Chain        types.Chain
	ChainID      uint64
	NativeSymbol string
	// RPCEnvVar names the environment variable holding the chain's RPC
	// endpoint. Endpoints never live in config files.
	RPCEnvVar  string
	DefaultRPC string
}

var chainRegistry = map[types.Chain]ChainInfo{
	types.ChainPolygon: {
		Chain:        types.ChainPolygon,
		ChainID:      137,
		NativeSymbol: "MATIC",
		RPCEnvVar:    "POLYGON_RPC_URL",
		DefaultRPC:   "https://polygon-rpc.com",
	},
	types.ChainEthereum: {
		Chain:        types.ChainEthereum,
		ChainID:      1,
		NativeSymbol: "ETH",
		RPCEnvVar:    "ETHEREUM_RPC_URL",
		DefaultRPC:   "https://eth.llamarpc.com",
	},
	types.ChainArbitrum: {
		Chain:        types.ChainArbitrum,
		ChainID:      42161,
		NativeSymbol: "ETH",
		RPCEnvVar:    "ARBITRUM_RPC_URL",
		DefaultRPC:   "https://arb1.arbitrum.io/rpc",
	},
	types.ChainOptimism: {
		Chain:        types.ChainOptimism,
		ChainID:      10,
		NativeSymbol: "ETH",
		RPCEnvVar:    "OPTIMISM_RPC_URL",
		DefaultRPC:   "https://mainnet.optimism.io",
	},
	types.ChainBase: {
		Chain:        types.ChainBase,
		ChainID:      8453,
		NativeSymbol: "ETH",
		RPCEnvVar:    "BASE_RPC_URL",
		DefaultRPC:   "https://mainnet.base.org",
	},
	types.ChainBSC: {
		Chain:        types.ChainBSC,
		ChainID:      56,
		NativeSymbol: "BNB",
		RPCEnvVar:    "BSC_RPC_URL",
		DefaultRPC:   "https://bsc-dataseed.binance.org",
	},
}

// ChainByName resolves a chain name from configuration, case-insensitively.
func ChainByName(name string) (ChainInfo, error) {
	info, ok := chainRegistry[types.Chain(strings.ToLower(name))]
	if !ok {
		return ChainInfo{}, fmt.Errorf("unknown chain %q", name)
	}
	return info, nil
}

// RPCEndpoint returns the chain's RPC endpoint, preferring the environment.
func (ci ChainInfo) RPCEndpoint() string {
	return GetEnvWithDefault(ci.RPCEnvVar, ci.DefaultRPC)
}
