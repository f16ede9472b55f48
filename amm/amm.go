// Package amm implements constant-product pool math. All amount arithmetic
// is integer big.Int so rounding never drifts across hops; percentages are
// reported as decimals derived from integer basis points.
package amm

import (
	"errors"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/apexlabs/apexbot/types"
)

// DefaultMaxImpactBps caps trade size at 30% of the input reserve. Larger
// trades move the pool too far for the estimate to be trusted.
const DefaultMaxImpactBps = 3000

const bpsDenom = 10000

var (
	ErrZeroReserves      = errors.New("pool reserves must be positive")
	ErrNonPositiveAmount = errors.New("amount in must be positive")
	ErrExcessiveImpact   = errors.New("amount in exceeds max impact fraction of reserve")
)

var bpsDenomBig = big.NewInt(bpsDenom)

// SwapOutput computes the constant-product output of a single swap:
//
//	out = (in * (1-fee) * reserveOut) / (reserveIn + in * (1-fee))
//
// with the fee expressed in basis points. The result is strictly less than
// reserveOut for any positive input, so a swap can never drain a pool.
func SwapOutput(reserveIn, reserveOut, amountIn *big.Int, feeBps uint32) (*big.Int, error) {
	if reserveIn == nil || reserveOut == nil || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, ErrZeroReserves
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrNonPositiveAmount
	}
	if feeBps >= bpsDenom {
		return nil, errors.New("fee must be below 100%")
	}

	inWithFee := new(big.Int).Mul(amountIn, big.NewInt(int64(bpsDenom-feeBps)))
	num := new(big.Int).Mul(inWithFee, reserveOut)
	den := new(big.Int).Mul(reserveIn, bpsDenomBig)
	den.Add(den, inWithFee)
	if den.Sign() == 0 {
		return nil, ErrZeroReserves
	}
	return num.Div(num, den), nil
}

// PriceImpact returns the percentage drop of the pool's marginal price
// caused by swapping amountIn, computed from the pre- and post-swap
// reserve ratios. Fees are excluded; this measures depth, not cost.
func PriceImpact(reserveIn, reserveOut, amountIn *big.Int) (decimal.Decimal, error) {
	if reserveIn == nil || reserveOut == nil || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return decimal.Zero, ErrZeroReserves
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return decimal.Zero, ErrNonPositiveAmount
	}

	out, err := SwapOutput(reserveIn, reserveOut, amountIn, 0)
	if err != nil {
		return decimal.Zero, err
	}

	// post/pre = ((reserveOut-out) * reserveIn) / ((reserveIn+amountIn) * reserveOut),
	// scaled to basis points so the division stays integral.
	num := new(big.Int).Sub(reserveOut, out)
	num.Mul(num, reserveIn)
	num.Mul(num, bpsDenomBig)
	den := new(big.Int).Add(reserveIn, amountIn)
	den.Mul(den, reserveOut)

	postBps := new(big.Int).Div(num, den)
	impactBps := new(big.Int).Sub(bpsDenomBig, postBps)
	// basis points -> percent
	return decimal.NewFromBigInt(impactBps, -2), nil
}

// MultiHopResult carries the folded output of a route.
type MultiHopResult struct {
	AmountOut *big.Int
	// CumulativeSlippagePct is the sum of per-hop price impacts. It is a
	// reporting figure; the amount calculation above is already
	// multiplicative by construction.
	CumulativeSlippagePct decimal.Decimal
}

// MultiHopOutput folds SwapOutput across the route's hops, feeding each
// hop's output into the next. maxImpactBps bounds every hop's input against
// its reserve; pass 0 to use DefaultMaxImpactBps.
func MultiHopOutput(route *types.RouteCandidate, amountIn *big.Int, maxImpactBps int64) (*MultiHopResult, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrNonPositiveAmount
	}
	if maxImpactBps <= 0 {
		maxImpactBps = DefaultMaxImpactBps
	}

	current := new(big.Int).Set(amountIn)
	slippage := decimal.Zero
	for _, hop := range route.Hops {
		reserveIn, reserveOut, err := hop.Reserves()
		if err != nil {
			return nil, err
		}

		// current > reserveIn * maxImpactBps / 10000 means the hop would
		// move the pool past the impact ceiling.
		limit := new(big.Int).Mul(reserveIn, big.NewInt(maxImpactBps))
		limit.Div(limit, bpsDenomBig)
		if current.Cmp(limit) > 0 {
			return nil, ErrExcessiveImpact
		}

		impact, err := PriceImpact(reserveIn, reserveOut, current)
		if err != nil {
			return nil, err
		}
		slippage = slippage.Add(impact)

		current, err = SwapOutput(reserveIn, reserveOut, current, hop.Pool.FeeBps)
		if err != nil {
			return nil, err
		}
		if current.Sign() <= 0 {
			return nil, ErrNonPositiveAmount
		}
	}

	return &MultiHopResult{AmountOut: current, CumulativeSlippagePct: slippage}, nil
}
