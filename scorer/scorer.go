// Package scorer folds profit, risk, liquidity and historical-success
// signals into a single 0-100 score and classification per opportunity.
package scorer

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/apexlabs/apexbot/config"
	"github.com/apexlabs/apexbot/evaluator"
	"github.com/apexlabs/apexbot/types"
)

// HistorySource exposes per-route rolling success rates. Implemented by the
// performance tracker; the data flow is strictly tracker -> scorer.
type HistorySource interface {
	RouteSuccessRate(routeID uint64) (rate float64, samples int)
}

// Scorer is stateless apart from its wiring and safe for concurrent use.
// Scoring the same estimate twice against unchanged history yields an
// identical score.
type Scorer struct {
	cfg     config.ScoringConfig
	history HistorySource
	logger  *zap.Logger
}

// New validates the weight configuration and builds a Scorer. history may
// be nil, in which case every route is treated as unseen.
func New(cfg config.ScoringConfig, history HistorySource, logger *zap.Logger) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{cfg: cfg, history: history, logger: logger}, nil
}

// Score annotates an estimate into a scored Opportunity. confidenceHint is
// an optional external predictor signal in [0,1]; when present it
// contributes a capped share of the final confidence, and its absence
// changes nothing else.
func (s *Scorer) Score(est *evaluator.Estimate, confidenceHint *float64) *types.Opportunity {
	profit := s.profitScore(est)
	risk := s.riskScore(est)
	liquidity := s.liquidityScore(est.Route)
	history := s.historyScore(est.Route.ID())

	score := s.cfg.ProfitWeight*profit +
		s.cfg.RiskWeight*risk +
		s.cfg.LiquidityWeight*liquidity +
		s.cfg.HistoryWeight*history
	score = clamp(score, 0, 100)

	confidence := confidenceFromSpread([4]float64{profit, risk, liquidity, history})
	if confidenceHint != nil {
		confidence = clamp(0.8*confidence+0.2*clamp(*confidenceHint, 0, 1), 0, 1)
	}

	op := &types.Opportunity{
		Route:          est.Route,
		Chain:          est.Route.Chain(),
		InputAmount:    est.AmountIn,
		ExpectedOutput: est.ExpectedOut,
		GrossProfit:    est.GrossProfit,
		FlashloanFee:   est.FlashloanFee,
		ProviderName:   est.Provider.Name,
		GasEstimate:    est.GasEstimate,
		GasCostUsd:     est.GasCostUsd,
		NetProfitUsd:   est.NetProfitUsd,
		SlippagePct:    est.SlippagePct,
		Score:          score,
		Classification: s.classify(score),
		Confidence:     confidence,
		CreatedAt:      time.Now(),
	}

	s.logger.Debug("Scored opportunity",
		zap.String("route", est.Route.String()),
		zap.Float64("score", score),
		zap.String("class", op.Classification.String()),
		zap.Float64("profit_sub", profit),
		zap.Float64("risk_sub", risk),
		zap.Float64("liquidity_sub", liquidity),
		zap.Float64("history_sub", history))
	return op
}

// profitScore compresses the net-profit-to-gas ratio logarithmically. Zero
// or negative net profit maps to 0.
func (s *Scorer) profitScore(est *evaluator.Estimate) float64 {
	if !est.NetProfitUsd.IsPositive() {
		return 0
	}
	net, _ := est.NetProfitUsd.Float64()
	gas, _ := est.GasCostUsd.Float64()
	var ratio float64
	if gas > 0 {
		ratio = net / gas
	} else {
		// Free gas never happens on a real chain; fall back to treating
		// each net dollar as one gas dollar rather than scoring infinity.
		ratio = net
	}
	return clamp(25*math.Log2(1+ratio), 0, 100)
}

// riskScore starts at 100 and deducts a blend of slippage exposure, route
// complexity and MEV attractiveness. Missing inputs deduct the maximum.
func (s *Scorer) riskScore(est *evaluator.Estimate) float64 {
	slippage := 100.0
	if est.SizeRatio > 0 {
		// Full marks against the 30% impact ceiling.
		slippage = clamp(est.SizeRatio/0.30*100, 0, 100)
	}

	complexity := float64(len(est.Route.Hops)-2) * 12

	// Fat profits get copied; exposure grows with the prize.
	mev := 0.0
	if est.NetProfitUsd.IsPositive() {
		net, _ := est.NetProfitUsd.Float64()
		mev = clamp(net, 0, 100)
	}

	deduction := 0.45*slippage + 0.35*mev + complexity
	return clamp(100-deduction, 0, 100)
}

// liquidityScore rewards deep pools with healthy turnover. A zero-TVL pool
// anywhere on the route scores 0.
func (s *Scorer) liquidityScore(route *types.RouteCandidate) float64 {
	minTVL := route.MinTVLUsd()
	if !minTVL.IsPositive() {
		return 0
	}
	tvl, _ := minTVL.Float64()
	depth := clamp(100*math.Log10(1+tvl)/6, 0, 100) // saturates near $1M TVL

	turnover := math.MaxFloat64
	for _, hop := range route.Hops {
		if !hop.Pool.TVLUsd.IsPositive() {
			return 0
		}
		r, _ := hop.Pool.Volume24hUsd.Div(hop.Pool.TVLUsd).Float64()
		if r < turnover {
			turnover = r
		}
	}
	activity := clamp(turnover*100, 0, 100)

	return clamp(0.7*depth+0.3*activity, 0, 100)
}

// historyScore looks up the route's rolling success rate. Routes with no
// history get a penalized fraction of the neutral default instead of a free
// pass.
func (s *Scorer) historyScore(routeID uint64) float64 {
	if s.history == nil {
		return s.cfg.HistoryPenaltyFactor * s.cfg.NeutralHistoryScore
	}
	rate, samples := s.history.RouteSuccessRate(routeID)
	if samples == 0 {
		return s.cfg.HistoryPenaltyFactor * s.cfg.NeutralHistoryScore
	}
	return clamp(rate*100, 0, 100)
}

func (s *Scorer) classify(score float64) types.Classification {
	switch {
	case score >= s.cfg.ExcellentThreshold:
		return types.ClassExcellent
	case score >= s.cfg.GoodThreshold:
		return types.ClassGood
	case score >= s.cfg.ModerateThreshold:
		return types.ClassModerate
	case score >= s.cfg.PoorThreshold:
		return types.ClassPoor
	default:
		return types.ClassSkip
	}
}

// confidenceFromSpread maps sub-score disagreement to confidence: aligned
// sub-scores are a clear call, scattered ones a borderline one.
func confidenceFromSpread(subs [4]float64) float64 {
	mean := (subs[0] + subs[1] + subs[2] + subs[3]) / 4
	var variance float64
	for _, v := range subs {
		variance += (v - mean) * (v - mean)
	}
	variance /= 4
	return clamp(1-math.Sqrt(variance)/50, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
