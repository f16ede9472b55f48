package flashloan

import (
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v2"

	"github.com/apexlabs/apexbot/types"
)

type providerYAML struct {
	Name            string `yaml:"name"`
	Kind            string `yaml:"kind"`
	FeeBps          uint32 `yaml:"fee_bps"`
	MaxLoanAmount   string `yaml:"max_loan_amount"`
	ContractAddress string `yaml:"contract_address"`
}

type tableYAML struct {
	Providers map[string][]providerYAML `yaml:"providers"`
}

// LoadTable reads the per-chain provider table from a YAML file. Called once
// at startup; a table that fails to parse is a fatal configuration error.
func LoadTable(path string) (Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read provider table: %w", err)
	}
	var doc tableYAML
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse provider table: %w", err)
	}

	table := make(Table, len(doc.Providers))
	for chain, entries := range doc.Providers {
		for _, e := range entries {
			kind, err := ParseKind(e.Kind)
			if err != nil {
				return nil, fmt.Errorf("provider %s on %s: %w", e.Name, chain, err)
			}
			maxLoan, ok := new(big.Int).SetString(e.MaxLoanAmount, 10)
			if !ok || maxLoan.Sign() <= 0 {
				return nil, fmt.Errorf("provider %s on %s: invalid max_loan_amount %q", e.Name, chain, e.MaxLoanAmount)
			}
			if !common.IsHexAddress(e.ContractAddress) {
				return nil, fmt.Errorf("provider %s on %s: invalid contract_address %q", e.Name, chain, e.ContractAddress)
			}
			table[types.Chain(chain)] = append(table[types.Chain(chain)], &Provider{
				Name:            e.Name,
				Kind:            kind,
				Chain:           types.Chain(chain),
				FeeBps:          e.FeeBps,
				MaxLoanAmount:   maxLoan,
				ContractAddress: common.HexToAddress(e.ContractAddress),
			})
		}
	}
	if len(table) == 0 {
		return nil, fmt.Errorf("provider table %s defines no providers", path)
	}
	return table, nil
}

// DefaultTable returns the providers the original deployment shipped with:
// fee-free Balancer vaults everywhere they exist, Aave V3 as the paid
// fallback, dYdX on mainnet only.
func DefaultTable() Table {
	mustBig := func(s string) *big.Int {
		v, _ := new(big.Int).SetString(s, 10)
		return v
	}
	balancerVault := common.HexToAddress("0xBA12222222228d8Ba445958a75a0704d566BF2C8")
	aaveV3Pool := common.HexToAddress("0x794a61358D6845594F94dc1DB02A252b5b4814aD")

	table := Table{}
	for _, chain := range []types.Chain{
		types.ChainPolygon, types.ChainEthereum, types.ChainArbitrum,
		types.ChainOptimism, types.ChainBase,
	} {
		table[chain] = append(table[chain], &Provider{
			Name:            "balancer",
			Kind:            KindBalancer,
			Chain:           chain,
			FeeBps:          0,
			MaxLoanAmount:   mustBig("10000000000000000000000000"),
			ContractAddress: balancerVault,
		})
		table[chain] = append(table[chain], &Provider{
			Name:            "aave-v3",
			Kind:            KindAave,
			Chain:           chain,
			FeeBps:          9, // 0.09%
			MaxLoanAmount:   mustBig("50000000000000000000000000"),
			ContractAddress: aaveV3Pool,
		})
	}
	table[types.ChainEthereum] = append(table[types.ChainEthereum], &Provider{
		Name:            "dydx",
		Kind:            KindDyDx,
		Chain:           types.ChainEthereum,
		FeeBps:          0,
		MaxLoanAmount:   mustBig("1000000000000000000000000"),
		ContractAddress: common.HexToAddress("0x1E0447b19BB6EcFdAe1e4AE1694b0C3659614e4e"),
	})
	table[types.ChainBSC] = append(table[types.ChainBSC], &Provider{
		Name:            "pancake-v3",
		Kind:            KindUniswapV3,
		Chain:           types.ChainBSC,
		FeeBps:          1,
		MaxLoanAmount:   mustBig("5000000000000000000000000"),
		ContractAddress: common.HexToAddress("0x556B9306565093C855AEA9AE92A594704c2Cd59e"),
	})
	return table
}
