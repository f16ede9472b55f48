// Package evaluator turns closed-loop route candidates into profit/cost
// estimates. Trial sizes come from a small logarithmic grid rather than an
// unbounded search so evaluation cost stays flat under heavy candidate
// volume.
package evaluator

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/apexlabs/apexbot/amm"
	"github.com/apexlabs/apexbot/flashloan"
	"github.com/apexlabs/apexbot/types"
)

// Oracle supplies gas cost and token/USD conversion. Implemented by the gas
// package; the external price collaborator feeds it.
type Oracle interface {
	GasCostUsd(chain types.Chain, gasLimit uint64) (decimal.Decimal, error)
	TokenUsd(chain types.Chain, token common.Address) (decimal.Decimal, error)
}

// ErrUnprofitable rejects a route that made money at no sampled input size.
var ErrUnprofitable = errors.New("route not profitable at any sampled size")

// Estimate is a route sized at its best sampled input amount.
type Estimate struct {
	Route        *types.RouteCandidate
	Provider     *flashloan.Provider
	AmountIn     *big.Int
	ExpectedOut  *big.Int
	GrossProfit  *big.Int
	FlashloanFee *big.Int
	GasEstimate  uint64
	GasCostUsd   decimal.Decimal
	NetProfitUsd decimal.Decimal
	SlippagePct  decimal.Decimal

	// SizeRatio is amountIn over the smallest input reserve, carried for
	// the scorer's slippage-risk factor.
	SizeRatio float64
}

// Params bounds the evaluation grid.
type Params struct {
	// GridBps are trial sizes in basis points of the route's smallest
	// input reserve.
	GridBps []int64

	// MinSizePercent/MaxSizePercent bound trial sizes as a percentage of
	// the smallest input reserve. Grid entries outside the bounds are
	// clamped onto them.
	MinSizePercent float64
	MaxSizePercent float64

	MaxImpactBps   int64
	GasLimitPerHop uint64
}

// Evaluator estimates route profitability. Stateless apart from its wiring,
// so safe for concurrent use from the scan workers.
type Evaluator struct {
	selector *flashloan.Selector
	oracle   Oracle
	params   Params
	logger   *zap.Logger
}

// New creates an Evaluator.
func New(selector *flashloan.Selector, oracle Oracle, params Params, logger *zap.Logger) *Evaluator {
	if len(params.GridBps) == 0 {
		params.GridBps = []int64{10, 100, 500, 1500, 3000}
	}
	if params.MaxSizePercent > 0 {
		params.GridBps = clampGrid(params.GridBps,
			int64(params.MinSizePercent*100), int64(params.MaxSizePercent*100))
	}
	if params.MaxImpactBps <= 0 {
		params.MaxImpactBps = amm.DefaultMaxImpactBps
	}
	if params.GasLimitPerHop == 0 {
		params.GasLimitPerHop = 150_000
	}
	return &Evaluator{selector: selector, oracle: oracle, params: params, logger: logger}
}

// clampGrid pulls trial sizes onto [minBps, maxBps], dropping duplicates
// that clamping produces.
func clampGrid(grid []int64, minBps, maxBps int64) []int64 {
	if minBps < 1 {
		minBps = 1
	}
	out := make([]int64, 0, len(grid))
	seen := make(map[int64]bool, len(grid))
	for _, bps := range grid {
		if bps < minBps {
			bps = minBps
		}
		if bps > maxBps {
			bps = maxBps
		}
		if seen[bps] {
			continue
		}
		seen[bps] = true
		out = append(out, bps)
	}
	return out
}

// Evaluate sizes the route at each grid amount and keeps the most
// profitable. Routes with no positive net outcome return ErrUnprofitable;
// routes no provider can fund return flashloan.ErrNoProviderAvailable.
func (e *Evaluator) Evaluate(route *types.RouteCandidate) (*Estimate, error) {
	chain := route.Chain()
	loanToken := route.StartToken()
	minReserve := route.MinReserveIn()

	tokenUsd, err := e.oracle.TokenUsd(chain, loanToken)
	if err != nil {
		return nil, fmt.Errorf("no price for loan token: %w", err)
	}
	gasEstimate := uint64(len(route.Hops)) * e.params.GasLimitPerHop
	gasCostUsd, err := e.oracle.GasCostUsd(chain, gasEstimate)
	if err != nil {
		return nil, fmt.Errorf("no gas cost for chain %s: %w", chain, err)
	}

	var (
		best     *Estimate
		sampled  int
		provided int
	)
	for _, bps := range e.params.GridBps {
		amountIn := new(big.Int).Mul(minReserve, big.NewInt(bps))
		amountIn.Div(amountIn, big.NewInt(10000))
		if amountIn.Sign() <= 0 {
			continue
		}

		result, err := amm.MultiHopOutput(route, amountIn, e.params.MaxImpactBps)
		if err != nil {
			if errors.Is(err, amm.ErrExcessiveImpact) {
				continue
			}
			return nil, err
		}

		sampled++
		provider, err := e.selector.Select(chain, loanToken, amountIn)
		if err != nil {
			continue
		}
		provided++

		fee := provider.Fee(amountIn)
		gross := new(big.Int).Sub(result.AmountOut, amountIn)
		tokenNet := new(big.Int).Sub(gross, fee)
		netUsd := decimal.NewFromBigInt(tokenNet, 0).Mul(tokenUsd).Sub(gasCostUsd)

		if best != nil && !netUsd.GreaterThan(best.NetProfitUsd) {
			continue
		}

		ratio, _ := new(big.Float).Quo(
			new(big.Float).SetInt(amountIn),
			new(big.Float).SetInt(minReserve),
		).Float64()

		best = &Estimate{
			Route:        route,
			Provider:     provider,
			AmountIn:     amountIn,
			ExpectedOut:  result.AmountOut,
			GrossProfit:  gross,
			FlashloanFee: fee,
			GasEstimate:  gasEstimate,
			GasCostUsd:   gasCostUsd,
			NetProfitUsd: netUsd,
			SlippagePct:  result.CumulativeSlippagePct,
			SizeRatio:    ratio,
		}
	}

	if best == nil {
		if sampled > 0 && provided == 0 {
			return nil, flashloan.ErrNoProviderAvailable
		}
		return nil, ErrUnprofitable
	}
	if !best.NetProfitUsd.IsPositive() {
		e.logger.Debug("Route rejected as unprofitable",
			zap.String("route", route.String()),
			zap.String("best_net_usd", best.NetProfitUsd.StringFixed(4)))
		return nil, ErrUnprofitable
	}
	return best, nil
}
