package evaluator

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/apexlabs/apexbot/flashloan"
	"github.com/apexlabs/apexbot/gas"
	"github.com/apexlabs/apexbot/types"
)

var (
	tokenX = common.HexToAddress("0x1111111111111111111111111111111111111111")
	tokenY = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func pool(id string, reserveX, reserveY int64) *types.PoolSnapshot {
	return &types.PoolSnapshot{
		PoolID:       id,
		Chain:        types.ChainPolygon,
		DEX:          "quickswap",
		TokenA:       tokenX,
		TokenB:       tokenY,
		ReserveA:     big.NewInt(reserveX),
		ReserveB:     big.NewInt(reserveY),
		FeeBps:       30,
		TVLUsd:       decimal.NewFromInt(2_000_000),
		Volume24hUsd: decimal.NewFromInt(500_000),
	}
}

func twoHopRoute(t *testing.T, out, back *types.PoolSnapshot) *types.RouteCandidate {
	t.Helper()
	route, err := types.NewRouteCandidate([]types.Hop{
		{Pool: out, TokenIn: tokenX, TokenOut: tokenY},
		{Pool: back, TokenIn: tokenY, TokenOut: tokenX},
	})
	require.NoError(t, err)
	return route
}

func zeroFeeSelector() *flashloan.Selector {
	return flashloan.NewSelector(flashloan.Table{
		types.ChainPolygon: {{
			Name:          "balancer",
			Kind:          flashloan.KindBalancer,
			Chain:         types.ChainPolygon,
			FeeBps:        0,
			MaxLoanAmount: big.NewInt(100_000_000),
		}},
	})
}

// cheapGasOracle prices gas low enough that a token-profitable route stays
// USD-profitable: 30 gwei on a $0.50 native token.
func cheapGasOracle() *gas.Static {
	oracle := gas.NewStatic()
	oracle.SetGasPriceGwei(types.ChainPolygon, 30)
	oracle.SetNativeUsd(types.ChainPolygon, decimal.NewFromFloat(0.5))
	oracle.SetTokenUsd(types.ChainPolygon, tokenX, decimal.NewFromInt(1))
	return oracle
}

func TestEvaluateProfitableRoute(t *testing.T) {
	// Balanced pool out, 2% imbalanced pool back. At the smallest grid size
	// (10 bps of 1M = 1000) the loop nets 11 tokens; larger sizes eat the
	// gap through slippage.
	route := twoHopRoute(t, pool("pool-a", 1_000_000, 1_000_000), pool("pool-b", 1_020_000, 1_000_000))

	eval := New(zeroFeeSelector(), cheapGasOracle(), Params{}, zaptest.NewLogger(t))
	est, err := eval.Evaluate(route)
	require.NoError(t, err)

	assert.Equal(t, int64(1000), est.AmountIn.Int64())
	assert.Equal(t, int64(1011), est.ExpectedOut.Int64())
	assert.Equal(t, int64(11), est.GrossProfit.Int64())
	assert.Equal(t, int64(0), est.FlashloanFee.Int64())
	assert.Equal(t, "balancer", est.Provider.Name)
	assert.Equal(t, uint64(300_000), est.GasEstimate)
	assert.True(t, est.NetProfitUsd.GreaterThan(decimal.NewFromInt(10)))
	assert.True(t, est.NetProfitUsd.LessThan(decimal.NewFromInt(11)))
	assert.InDelta(t, 0.001, est.SizeRatio, 1e-9)
}

func TestEvaluateBalancedPoolsUnprofitable(t *testing.T) {
	// Identical pools: fees guarantee every size loses.
	route := twoHopRoute(t, pool("pool-a", 1_000_000, 1_000_000), pool("pool-b", 1_000_000, 1_000_000))

	eval := New(zeroFeeSelector(), cheapGasOracle(), Params{}, zaptest.NewLogger(t))
	_, err := eval.Evaluate(route)
	assert.ErrorIs(t, err, ErrUnprofitable)
}

func TestEvaluateGasSwampsProfit(t *testing.T) {
	route := twoHopRoute(t, pool("pool-a", 1_000_000, 1_000_000), pool("pool-b", 1_020_000, 1_000_000))

	// Mainnet-style gas: 30 gwei on a $2000 native token makes the 2 hops
	// cost ~$18 against an $11 gross.
	oracle := gas.NewStatic()
	oracle.SetGasPriceGwei(types.ChainPolygon, 30)
	oracle.SetNativeUsd(types.ChainPolygon, decimal.NewFromInt(2000))
	oracle.SetTokenUsd(types.ChainPolygon, tokenX, decimal.NewFromInt(1))

	eval := New(zeroFeeSelector(), oracle, Params{}, zaptest.NewLogger(t))
	_, err := eval.Evaluate(route)
	assert.ErrorIs(t, err, ErrUnprofitable)
}

func TestEvaluateNoProvider(t *testing.T) {
	route := twoHopRoute(t, pool("pool-a", 1_000_000, 1_000_000), pool("pool-b", 1_020_000, 1_000_000))

	// Provider table is empty for the chain.
	eval := New(flashloan.NewSelector(flashloan.Table{}), cheapGasOracle(), Params{}, zaptest.NewLogger(t))
	_, err := eval.Evaluate(route)
	assert.ErrorIs(t, err, flashloan.ErrNoProviderAvailable)
}

func TestEvaluateProviderFeeReducesNet(t *testing.T) {
	route := twoHopRoute(t, pool("pool-a", 1_000_000, 1_000_000), pool("pool-b", 1_020_000, 1_000_000))

	// 1% so the fee survives integer truncation at the 1000-token size.
	paid := flashloan.NewSelector(flashloan.Table{
		types.ChainPolygon: {{
			Name:          "pricey",
			Kind:          flashloan.KindAave,
			Chain:         types.ChainPolygon,
			FeeBps:        100,
			MaxLoanAmount: big.NewInt(100_000_000),
		}},
	})

	evalPaid := New(paid, cheapGasOracle(), Params{}, zaptest.NewLogger(t))
	estPaid, err := evalPaid.Evaluate(route)
	require.NoError(t, err)

	evalFree := New(zeroFeeSelector(), cheapGasOracle(), Params{}, zaptest.NewLogger(t))
	estFree, err := evalFree.Evaluate(route)
	require.NoError(t, err)

	assert.True(t, estPaid.NetProfitUsd.LessThan(estFree.NetProfitUsd))
}

func TestEvaluateMissingTokenPrice(t *testing.T) {
	route := twoHopRoute(t, pool("pool-a", 1_000_000, 1_000_000), pool("pool-b", 1_020_000, 1_000_000))

	oracle := gas.NewStatic()
	oracle.SetGasPriceGwei(types.ChainPolygon, 30)
	oracle.SetNativeUsd(types.ChainPolygon, decimal.NewFromFloat(0.5))
	// No token price registered.

	eval := New(zeroFeeSelector(), oracle, Params{}, zaptest.NewLogger(t))
	_, err := eval.Evaluate(route)
	assert.Error(t, err)
}

func TestSizeBoundsClampGrid(t *testing.T) {
	e := New(zeroFeeSelector(), gas.NewStatic(), Params{
		MinSizePercent: 0.1,
		MaxSizePercent: 5,
	}, zaptest.NewLogger(t))

	// The default grid reaches 30% of the smallest reserve; a 5% ceiling
	// pulls the oversized entries onto the bound.
	assert.Equal(t, []int64{10, 100, 500}, e.params.GridBps)
}

func TestSizeBoundsClampExplicitGrid(t *testing.T) {
	e := New(zeroFeeSelector(), gas.NewStatic(), Params{
		GridBps:        []int64{1, 50, 2000, 3000},
		MinSizePercent: 0.1,
		MaxSizePercent: 10,
	}, zaptest.NewLogger(t))

	// 1 bps rises to the 10 bps floor; 2000 and 3000 collapse onto the
	// 1000 bps ceiling.
	assert.Equal(t, []int64{10, 50, 1000}, e.params.GridBps)
}
