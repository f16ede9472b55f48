package executor

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/apexlabs/apexbot/flashloan"
	"github.com/apexlabs/apexbot/types"
)

// Simulator fabricates execution outcomes for DEV and SIM runs: no capital
// moves and no provider is called, but the result stream looks like real
// trading so the tracker and route history stay exercised.
type Simulator struct {
	mu  sync.Mutex
	rng *rand.Rand

	// successRate models how often a would-be execution lands; real fills
	// slip behind the estimate, so realized profit is shaved.
	successRate   float64
	profitHaircut float64
}

// NewSimulator creates a simulator. A DEV run models ~95% fills; SIM
// backtests assume slightly cleaner conditions.
func NewSimulator(mode types.ExecutionMode, seed int64) *Simulator {
	successRate := 0.95
	if mode == types.ModeSim {
		successRate = 0.98
	}
	return &Simulator{
		rng:           rand.New(rand.NewSource(seed)),
		successRate:   successRate,
		profitHaircut: 0.95,
	}
}

// Dispatch fabricates an outcome. The req is nil on the simulation path and
// ignored here.
func (s *Simulator) Dispatch(_ context.Context, _ *flashloan.Request, op *types.Opportunity) *types.ExecutionOutcome {
	start := time.Now()

	s.mu.Lock()
	success := s.rng.Float64() < s.successRate
	s.mu.Unlock()

	outcome := &types.ExecutionOutcome{
		OpportunityID: op.OpportunityID(),
		RouteID:       op.Route.ID(),
		Success:       success,
		Duration:      time.Since(start) + 20*time.Millisecond,
	}
	if success {
		outcome.ProfitUsd = op.NetProfitUsd.Mul(decimal.NewFromFloat(s.profitHaircut))
	} else {
		outcome.ProfitUsd = decimal.Zero
		outcome.GasLossUsd = op.GasCostUsd
		outcome.Err = errSimulatedSlippage
	}
	return outcome
}

var errSimulatedSlippage = simError("price moved before fill")

type simError string

func (e simError) Error() string { return string(e) }
