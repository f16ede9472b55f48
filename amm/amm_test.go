package amm

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apexlabs/apexbot/types"
)

var (
	tokenX = common.HexToAddress("0x1111111111111111111111111111111111111111")
	tokenY = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func pool(id string, reserveA, reserveB int64, feeBps uint32) *types.PoolSnapshot {
	return &types.PoolSnapshot{
		PoolID:   id,
		Chain:    types.ChainPolygon,
		DEX:      "quickswap",
		TokenA:   tokenX,
		TokenB:   tokenY,
		ReserveA: big.NewInt(reserveA),
		ReserveB: big.NewInt(reserveB),
		FeeBps:   feeBps,
	}
}

func TestSwapOutput(t *testing.T) {
	// 1M/1M pool, 0.3% fee, 2000 in: out = 1994*1e6/(1e6+1994) = 1990.
	out, err := SwapOutput(big.NewInt(1_000_000), big.NewInt(1_000_000), big.NewInt(2000), 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1990), out.Int64())
}

func TestSwapOutputNeverDrainsPool(t *testing.T) {
	reserveOut := big.NewInt(1_000_000)
	// Even an absurdly large input cannot take the full output reserve.
	out, err := SwapOutput(big.NewInt(1000), reserveOut, big.NewInt(1_000_000_000), 30)
	require.NoError(t, err)
	assert.Equal(t, -1, out.Cmp(reserveOut))
}

func TestSwapOutputMonotonic(t *testing.T) {
	prev := big.NewInt(0)
	for _, in := range []int64{100, 1000, 10_000, 100_000} {
		out, err := SwapOutput(big.NewInt(1_000_000), big.NewInt(1_000_000), big.NewInt(in), 30)
		require.NoError(t, err)
		assert.Equal(t, 1, out.Cmp(prev), "output must grow with input")
		prev = out
	}
}

func TestSwapOutputRejectsBadInputs(t *testing.T) {
	_, err := SwapOutput(big.NewInt(0), big.NewInt(1000), big.NewInt(10), 30)
	assert.ErrorIs(t, err, ErrZeroReserves)

	_, err = SwapOutput(big.NewInt(1000), big.NewInt(1000), big.NewInt(0), 30)
	assert.ErrorIs(t, err, ErrNonPositiveAmount)

	_, err = SwapOutput(big.NewInt(1000), big.NewInt(1000), nil, 30)
	assert.ErrorIs(t, err, ErrNonPositiveAmount)
}

func TestPriceImpactGrowsWithSize(t *testing.T) {
	small, err := PriceImpact(big.NewInt(1_000_000), big.NewInt(1_000_000), big.NewInt(1000))
	require.NoError(t, err)
	large, err := PriceImpact(big.NewInt(1_000_000), big.NewInt(1_000_000), big.NewInt(100_000))
	require.NoError(t, err)

	assert.True(t, small.IsPositive())
	assert.True(t, large.GreaterThan(small))
}

func TestMultiHopOutputProfitableLoop(t *testing.T) {
	// Balanced pool out, imbalanced pool back: X is 2% cheaper against Y in
	// pool-b, a gap larger than two 0.3% fees, so the loop returns more
	// than it borrowed. 2000 -> 1990 -> 2019.
	out := pool("pool-a", 1_000_000, 1_000_000, 30)
	back := pool("pool-b", 1_020_000, 1_000_000, 30)
	route, err := types.NewRouteCandidate([]types.Hop{
		{Pool: out, TokenIn: tokenX, TokenOut: tokenY},
		{Pool: back, TokenIn: tokenY, TokenOut: tokenX},
	})
	require.NoError(t, err)

	amountIn := big.NewInt(2000)
	result, err := MultiHopOutput(route, amountIn, 0)
	require.NoError(t, err)

	assert.Equal(t, int64(2019), result.AmountOut.Int64())
	assert.Equal(t, 1, result.AmountOut.Cmp(amountIn), "loop should end above its input")
	assert.True(t, result.CumulativeSlippagePct.IsPositive())
}

func TestMultiHopOutputExcessiveImpact(t *testing.T) {
	out := pool("pool-a", 10_000, 10_000, 30)
	back := pool("pool-b", 10_000, 10_000, 30)
	route, err := types.NewRouteCandidate([]types.Hop{
		{Pool: out, TokenIn: tokenX, TokenOut: tokenY},
		{Pool: back, TokenIn: tokenY, TokenOut: tokenX},
	})
	require.NoError(t, err)

	// 40% of the reserve is past the 30% ceiling.
	_, err = MultiHopOutput(route, big.NewInt(4000), 0)
	assert.ErrorIs(t, err, ErrExcessiveImpact)

	// Exactly at the ceiling passes.
	_, err = MultiHopOutput(route, big.NewInt(3000), 0)
	assert.NoError(t, err)
}

func TestMultiHopOutputLossyLoop(t *testing.T) {
	// Identical balanced pools: fees guarantee a loss, but the math itself
	// must still fold cleanly.
	out := pool("pool-a", 1_000_000, 1_000_000, 30)
	back := pool("pool-b", 1_000_000, 1_000_000, 30)
	route, err := types.NewRouteCandidate([]types.Hop{
		{Pool: out, TokenIn: tokenX, TokenOut: tokenY},
		{Pool: back, TokenIn: tokenY, TokenOut: tokenX},
	})
	require.NoError(t, err)

	amountIn := big.NewInt(10_000)
	result, err := MultiHopOutput(route, amountIn, 0)
	require.NoError(t, err)
	assert.Equal(t, -1, result.AmountOut.Cmp(amountIn))
}
