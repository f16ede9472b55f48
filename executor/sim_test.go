package executor

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/apexlabs/apexbot/types"
)

func TestSimulatorOutcomeShape(t *testing.T) {
	sim := NewSimulator(types.ModeDev, 1)
	op := testOpportunity(t, 90)

	successes := 0
	for i := 0; i < 500; i++ {
		outcome := sim.Dispatch(context.Background(), nil, op)
		assert.Equal(t, op.Route.ID(), outcome.RouteID)

		if outcome.Success {
			successes++
			// Realized profit is shaved below the estimate, never above.
			assert.True(t, outcome.ProfitUsd.LessThan(op.NetProfitUsd))
			assert.True(t, outcome.ProfitUsd.IsPositive())
			assert.True(t, outcome.GasLossUsd.IsZero())
		} else {
			assert.True(t, outcome.ProfitUsd.IsZero())
			assert.True(t, outcome.GasLossUsd.Equal(op.GasCostUsd))
			assert.Error(t, outcome.Err)
		}
	}

	// ~95% fill rate with generous slack for the fixed seed.
	assert.InDelta(t, 475, successes, 30)
}

func TestSimulatorDeterministicPerSeed(t *testing.T) {
	op := testOpportunity(t, 90)

	run := func(seed int64) []bool {
		sim := NewSimulator(types.ModeSim, seed)
		out := make([]bool, 50)
		for i := range out {
			out[i] = sim.Dispatch(context.Background(), nil, op).Success
		}
		return out
	}

	assert.Equal(t, run(7), run(7))
}

func TestSimulatorHaircut(t *testing.T) {
	sim := NewSimulator(types.ModeSim, 1)
	op := testOpportunity(t, 90)
	op.NetProfitUsd = decimal.NewFromInt(100)

	for i := 0; i < 50; i++ {
		outcome := sim.Dispatch(context.Background(), nil, op)
		if outcome.Success {
			assert.True(t, outcome.ProfitUsd.Equal(decimal.NewFromInt(95)))
			return
		}
	}
	t.Fatal("no successful simulated fill in 50 tries")
}
