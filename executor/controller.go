// Package executor is the mode-aware execution controller: it gates scored
// opportunities through the safety state machine and dispatches passing ones
// for execution or simulation.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/apexlabs/apexbot/config"
	"github.com/apexlabs/apexbot/flashloan"
	"github.com/apexlabs/apexbot/tracker"
	"github.com/apexlabs/apexbot/types"
)

// GasSource reports the current gas price per chain. A source error makes
// the gas gate fail closed.
type GasSource interface {
	GasPriceGwei(chain types.Chain) (float64, error)
}

// Dispatcher is the capital-source collaborator: it builds and submits the
// transaction for a committed opportunity and reports the outcome. The live
// implementation lives outside this module; SIM and DEV use Simulator.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *flashloan.Request, op *types.Opportunity) *types.ExecutionOutcome
}

// Controller applies the decision state machine. The mode is fixed at
// construction; Override exists only as a logged administrative escape
// hatch.
type Controller struct {
	safetyCfg config.SafetyConfig
	threshold float64

	selector   *flashloan.Selector
	gas        GasSource
	dispatcher Dispatcher
	tracker    *tracker.Tracker
	logger     *zap.Logger

	// mu guards mode and makes gate-check plus trade reservation atomic.
	mu   sync.Mutex
	mode types.ExecutionMode

	safety *SafetyState

	execCh    chan *types.Opportunity
	decisions chan types.ExecutionDecision
	wg        sync.WaitGroup
}

// Collectors register once on the default registry so controllers
// constructed later (and in tests) share them.
var metrics = struct {
	decisions        *prometheus.CounterVec
	dispatchLatency  prometheus.Histogram
	droppedDecisions prometheus.Counter
	droppedDispatch  prometheus.Counter
}{
	decisions: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apexbot_decisions_total",
		Help: "Execution decisions by action and reason class",
	}, []string{"action", "reason_class"}),
	dispatchLatency: promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "apexbot_dispatch_latency_seconds",
		Help:    "Latency of execution dispatch",
		Buckets: prometheus.DefBuckets,
	}),
	droppedDecisions: promauto.NewCounter(prometheus.CounterOpts{
		Name: "apexbot_decisions_dropped_total",
		Help: "Decisions dropped because the stream consumer lagged",
	}),
	droppedDispatch: promauto.NewCounter(prometheus.CounterOpts{
		Name: "apexbot_dispatch_dropped_total",
		Help: "Queued executions dropped by the emergency stop",
	}),
}

// New creates a Controller in the given mode.
func New(
	mode types.ExecutionMode,
	safetyCfg config.SafetyConfig,
	executionThreshold float64,
	selector *flashloan.Selector,
	gas GasSource,
	dispatcher Dispatcher,
	trk *tracker.Tracker,
	logger *zap.Logger,
) *Controller {
	return &Controller{
		safetyCfg:  safetyCfg,
		threshold:  executionThreshold,
		selector:   selector,
		gas:        gas,
		dispatcher: dispatcher,
		tracker:    trk,
		logger:     logger,
		mode:       mode,
		safety:     NewSafetyState(),
		execCh:     make(chan *types.Opportunity, 64),
		decisions:  make(chan types.ExecutionDecision, 256),
	}
}

// Start launches the dispatch worker. Dispatch runs on its own goroutine,
// never on the scanning workers, so a slow confirmation cannot stall
// scoring. In-flight dispatches are not cancelled; ctx only stops intake.
func (c *Controller) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case op := <-c.execCh:
				c.dispatch(ctx, op)
			}
		}
	}()
}

// Wait blocks until the dispatch worker exits.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Decisions exposes the decision stream for telemetry and dashboards.
func (c *Controller) Decisions() <-chan types.ExecutionDecision {
	return c.decisions
}

// Mode returns the current execution mode.
func (c *Controller) Mode() types.ExecutionMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Override switches the execution mode at runtime. Administrative use only;
// always logged at warn level.
func (c *Controller) Override(mode types.ExecutionMode) {
	c.mu.Lock()
	old := c.mode
	c.mode = mode
	c.mu.Unlock()
	c.logger.Warn("Execution mode overridden",
		zap.String("from", old.String()),
		zap.String("to", mode.String()))
}

// EmergencyStop forces all subsequent decisions to SKIP and surfaces a
// safety alert. Pending queued executions are dropped before dispatch;
// in-flight ones run to completion.
func (c *Controller) EmergencyStop(reason string) {
	c.safety.EmergencyStop()
	c.tracker.RaiseSafetyAlert("emergency stop engaged: " + reason)
	c.logger.Warn("Emergency stop engaged", zap.String("reason", reason))
}

// Resume clears the emergency stop.
func (c *Controller) Resume() {
	c.safety.Resume()
	c.logger.Warn("Emergency stop cleared")
}

// Process runs the decision table for one opportunity and, for EXECUTE and
// SIMULATE, hands it onward. The returned decision is terminal.
func (c *Controller) Process(ctx context.Context, op *types.Opportunity) types.ExecutionDecision {
	decision, reasonClass, release := c.decide(op)
	metrics.decisions.WithLabelValues(decision.Action.String(), reasonClass).Inc()
	c.publish(decision)

	switch decision.Action {
	case types.ActionExecute:
		select {
		case c.execCh <- op:
		case <-ctx.Done():
			// Never enqueued, so give back the spacing slot.
			release()
		}
	case types.ActionSimulate:
		c.simulate(ctx, op)
	default:
		c.logger.Debug("Opportunity skipped",
			zap.String("opportunity", decision.OpportunityID),
			zap.String("reason", decision.Reason))
	}
	return decision
}

// decide is the transition table. The whole check runs inside one critical
// section and an EXECUTE decision reserves its trade slot before release,
// keeping check-then-act atomic across concurrent callers. The returned
// release func (non-nil only for EXECUTE) rolls the reservation back when
// the opportunity never reaches the dispatch queue.
func (c *Controller) decide(op *types.Opportunity) (types.ExecutionDecision, string, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	mode := c.mode
	snap := c.safety.Snapshot()
	now := time.Now()

	mk := func(action types.Action, reason string) types.ExecutionDecision {
		return types.ExecutionDecision{
			OpportunityID: op.OpportunityID(),
			Action:        action,
			Reason:        reason,
			Timestamp:     now,
		}
	}

	if snap.EmergencyStopped {
		return mk(types.ActionSkip, "emergency stop active"), "safety", nil
	}

	if op.Score < c.threshold {
		return mk(types.ActionSkip, fmt.Sprintf(
			"score %.1f below execution threshold %.1f", op.Score, c.threshold)), "threshold", nil
	}

	gwei, err := c.gas.GasPriceGwei(op.Chain)
	if err != nil {
		// Unknown gas price biases toward not trading.
		return mk(types.ActionSkip, fmt.Sprintf("gas price unavailable: %v", err)), "gas", nil
	}
	if gwei > c.safetyCfg.MaxGasPriceGwei {
		return mk(types.ActionSkip, fmt.Sprintf(
			"gas price %.1f gwei above ceiling %.1f", gwei, c.safetyCfg.MaxGasPriceGwei)), "gas", nil
	}

	if mode != types.ModeLive {
		return mk(types.ActionSimulate, fmt.Sprintf("%s mode simulation", mode)), "mode", nil
	}

	maxLoss := decimal.NewFromFloat(c.safetyCfg.MaxDailyLossUsd)
	if snap.DailyLossUsd.GreaterThanOrEqual(maxLoss) {
		return mk(types.ActionSkip, fmt.Sprintf(
			"daily loss %s USD at or above limit %s", snap.DailyLossUsd.StringFixed(2), maxLoss.StringFixed(2))), "safety", nil
	}

	if snap.ConsecutiveFailures >= c.safetyCfg.MaxConsecutiveFailures {
		return mk(types.ActionSkip, fmt.Sprintf(
			"%d consecutive failures at or above limit %d",
			snap.ConsecutiveFailures, c.safetyCfg.MaxConsecutiveFailures)), "safety", nil
	}

	if !snap.LastTrade.IsZero() && now.Sub(snap.LastTrade) < c.safetyCfg.MinTimeBetweenTrades {
		return mk(types.ActionSkip, fmt.Sprintf(
			"only %s since last trade, minimum spacing %s",
			now.Sub(snap.LastTrade).Round(time.Millisecond), c.safetyCfg.MinTimeBetweenTrades)), "pacing", nil
	}

	marked, prev := c.safety.MarkTrade()
	return mk(types.ActionExecute, fmt.Sprintf(
		"score %.1f, net %s USD via %s", op.Score, op.NetProfitUsd.StringFixed(2), op.ProviderName)),
		"pass", func() { c.safety.RollbackTrade(marked, prev) }
}

// dispatch runs one committed execution through the capital-source
// collaborator and applies the outcome to the safety counters.
func (c *Controller) dispatch(ctx context.Context, op *types.Opportunity) {
	// Last look: the emergency stop can still cancel anything not yet
	// dispatched.
	if c.safety.Stopped() {
		metrics.droppedDispatch.Inc()
		c.logger.Warn("Dropped queued execution due to emergency stop",
			zap.String("opportunity", op.OpportunityID()))
		return
	}

	provider, err := c.selector.Select(op.Chain, op.Route.StartToken(), op.InputAmount)
	if err != nil {
		c.logger.Error("Provider vanished between scoring and dispatch",
			zap.String("opportunity", op.OpportunityID()), zap.Error(err))
		return
	}

	req := &flashloan.Request{
		Provider:     provider,
		Token:        op.Route.StartToken(),
		Amount:       op.InputAmount,
		EncodedRoute: encodeRoute(op.Route),
	}

	start := time.Now()
	outcome := c.dispatcher.Dispatch(ctx, req, op)
	metrics.dispatchLatency.Observe(time.Since(start).Seconds())

	c.applyOutcome(outcome)
}

// applyOutcome updates safety counters and feeds the tracker. Crossing a
// safety limit raises a distinct alert but never crashes the process; the
// counters simply force SKIP until their window resets.
func (c *Controller) applyOutcome(outcome *types.ExecutionOutcome) {
	if outcome.Success {
		c.safety.RecordSuccess()
		c.logger.Info("Execution succeeded",
			zap.String("opportunity", outcome.OpportunityID),
			zap.String("profit_usd", outcome.ProfitUsd.StringFixed(2)),
			zap.Duration("duration", outcome.Duration),
			zap.String("tx", outcome.TxHash))
	} else {
		snap := c.safety.RecordFailure(outcome.GasLossUsd)
		c.logger.Warn("Execution failed",
			zap.String("opportunity", outcome.OpportunityID),
			zap.Int("consecutive_failures", snap.ConsecutiveFailures),
			zap.String("daily_loss_usd", snap.DailyLossUsd.StringFixed(2)),
			zap.Error(outcome.Err))

		if snap.ConsecutiveFailures == c.safetyCfg.MaxConsecutiveFailures {
			c.tracker.RaiseSafetyAlert(fmt.Sprintf(
				"consecutive failure limit %d reached; executions halted until a success",
				c.safetyCfg.MaxConsecutiveFailures))
		}
		maxLoss := decimal.NewFromFloat(c.safetyCfg.MaxDailyLossUsd)
		if snap.DailyLossUsd.GreaterThanOrEqual(maxLoss) {
			c.tracker.RaiseSafetyAlert(fmt.Sprintf(
				"daily loss limit %s USD reached; executions halted until the next day",
				maxLoss.StringFixed(2)))
		}
	}

	c.tracker.Record(*outcome)
}

// simulate runs the identical profitability path with no capital moved and
// no provider call. Simulated outcomes feed the tracker so DEV and SIM runs
// build route history, but they never touch the safety counters.
func (c *Controller) simulate(ctx context.Context, op *types.Opportunity) {
	outcome := c.dispatcher.Dispatch(ctx, nil, op)
	c.tracker.Record(*outcome)
	c.logger.Debug("Simulated execution",
		zap.String("opportunity", outcome.OpportunityID),
		zap.Bool("success", outcome.Success),
		zap.String("profit_usd", outcome.ProfitUsd.StringFixed(2)))
}

func (c *Controller) publish(decision types.ExecutionDecision) {
	select {
	case c.decisions <- decision:
	default:
		// Telemetry must never block gating.
		metrics.droppedDecisions.Inc()
	}
}

// encodeRoute packs the hop path for the receiving contract: for each hop
// the pool id length-prefixed, then the in/out token addresses.
func encodeRoute(route *types.RouteCandidate) []byte {
	var out []byte
	for _, hop := range route.Hops {
		out = append(out, byte(len(hop.Pool.PoolID)))
		out = append(out, hop.Pool.PoolID...)
		out = append(out, hop.TokenIn.Bytes()...)
		out = append(out, hop.TokenOut.Bytes()...)
	}
	return out
}
