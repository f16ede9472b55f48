package flashloan

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/apexlabs/apexbot/types"
)

// Kind is the closed set of supported capital sources.
type Kind int

const (
	KindBalancer Kind = iota
	KindAave
	KindDyDx
	KindUniswapV3
)

func (k Kind) String() string {
	switch k {
	case KindBalancer:
		return "balancer"
	case KindAave:
		return "aave"
	case KindDyDx:
		return "dydx"
	case KindUniswapV3:
		return "uniswapv3"
	default:
		return "unknown"
	}
}

// ParseKind parses a provider kind from configuration.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "balancer":
		return KindBalancer, nil
	case "aave":
		return KindAave, nil
	case "dydx":
		return KindDyDx, nil
	case "uniswapv3":
		return KindUniswapV3, nil
	default:
		return 0, fmt.Errorf("unknown flashloan provider kind %q", s)
	}
}

// Provider is the static configuration of one capital source on one chain.
// Loaded once at startup and never mutated, so concurrent reads need no
// synchronization.
type Provider struct {
	Name            string
	Kind            Kind
	Chain           types.Chain
	FeeBps          uint32
	MaxLoanAmount   *big.Int
	ContractAddress common.Address
}

// Fee returns the flash loan fee for borrowing amount.
func (p *Provider) Fee(amount *big.Int) *big.Int {
	fee := new(big.Int).Mul(amount, big.NewInt(int64(p.FeeBps)))
	return fee.Div(fee, big.NewInt(10000))
}

// Covers reports whether the provider's loan ceiling covers amount.
func (p *Provider) Covers(amount *big.Int) bool {
	return p.MaxLoanAmount != nil && p.MaxLoanAmount.Cmp(amount) >= 0
}

// Table maps each chain to its configured providers.
type Table map[types.Chain][]*Provider

// Request is handed to the capital-source collaborator once the controller
// commits to an execution.
type Request struct {
	Provider *Provider
	Token    common.Address
	Amount   *big.Int
	// EncodedRoute is the calldata the receiving contract unwinds; building
	// and submitting the transaction belongs to the collaborator.
	EncodedRoute []byte
}
