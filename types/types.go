package types

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Chain identifies a supported network.
type Chain string

const (
	ChainPolygon  Chain = "polygon"
	ChainEthereum Chain = "ethereum"
	ChainArbitrum Chain = "arbitrum"
	ChainOptimism Chain = "optimism"
	ChainBase     Chain = "base"
	ChainBSC      Chain = "bsc"
)

// ErrInvalidSnapshot is returned for pool snapshots with non-positive
// reserves. Such snapshots are dropped at ingestion and never reach scoring.
var ErrInvalidSnapshot = errors.New("invalid pool snapshot")

// PoolSnapshot is an immutable point-in-time view of one liquidity pool.
// Both reserves come from the same observation.
type PoolSnapshot struct {
	PoolID       string
	Chain        Chain
	DEX          string
	TokenA       common.Address
	TokenB       common.Address
	ReserveA     *big.Int
	ReserveB     *big.Int
	FeeBps       uint32
	TVLUsd       decimal.Decimal
	Volume24hUsd decimal.Decimal
	CapturedAt   time.Time
}

// Validate rejects snapshots that cannot safely enter route evaluation.
func (s *PoolSnapshot) Validate() error {
	if s.PoolID == "" {
		return fmt.Errorf("%w: missing pool id", ErrInvalidSnapshot)
	}
	if s.ReserveA == nil || s.ReserveA.Sign() <= 0 {
		return fmt.Errorf("%w: pool %s reserveA non-positive", ErrInvalidSnapshot, s.PoolID)
	}
	if s.ReserveB == nil || s.ReserveB.Sign() <= 0 {
		return fmt.Errorf("%w: pool %s reserveB non-positive", ErrInvalidSnapshot, s.PoolID)
	}
	if s.TokenA == s.TokenB {
		return fmt.Errorf("%w: pool %s has identical tokens", ErrInvalidSnapshot, s.PoolID)
	}
	return nil
}

// Hop is a single directed swap through a pool.
type Hop struct {
	Pool     *PoolSnapshot
	TokenIn  common.Address
	TokenOut common.Address
}

// Reserves returns the pool reserves oriented for this hop's direction.
func (h Hop) Reserves() (reserveIn, reserveOut *big.Int, err error) {
	switch {
	case h.TokenIn == h.Pool.TokenA && h.TokenOut == h.Pool.TokenB:
		return h.Pool.ReserveA, h.Pool.ReserveB, nil
	case h.TokenIn == h.Pool.TokenB && h.TokenOut == h.Pool.TokenA:
		return h.Pool.ReserveB, h.Pool.ReserveA, nil
	default:
		return nil, nil, fmt.Errorf("hop tokens do not match pool %s", h.Pool.PoolID)
	}
}

// Route construction errors.
var (
	ErrRouteLength   = errors.New("route must have between 2 and 4 hops")
	ErrRouteBroken   = errors.New("route hops are not connected")
	ErrRouteNotLoop  = errors.New("route does not close back to its start token")
	ErrRouteChainMix = errors.New("route crosses chains")
)

// RouteCandidate is an ordered closed loop of 2-4 hops. The final hop's
// output token equals the first hop's input token so a flash loan taken in
// the start token can always be repaid. Candidates are built fresh each scan
// cycle and never mutated after construction.
type RouteCandidate struct {
	Hops []Hop

	id uint64
}

// NewRouteCandidate validates hop adjacency and loop closure and computes
// the route fingerprint.
func NewRouteCandidate(hops []Hop) (*RouteCandidate, error) {
	if len(hops) < 2 || len(hops) > 4 {
		return nil, ErrRouteLength
	}
	chain := hops[0].Pool.Chain
	for i, h := range hops {
		if _, _, err := h.Reserves(); err != nil {
			return nil, err
		}
		if h.Pool.Chain != chain {
			return nil, ErrRouteChainMix
		}
		if i > 0 && hops[i-1].TokenOut != h.TokenIn {
			return nil, ErrRouteBroken
		}
	}
	if hops[len(hops)-1].TokenOut != hops[0].TokenIn {
		return nil, ErrRouteNotLoop
	}

	h := xxhash.New()
	for _, hop := range hops {
		h.WriteString(hop.Pool.PoolID)
		h.Write(hop.TokenIn.Bytes())
		h.Write(hop.TokenOut.Bytes())
	}
	return &RouteCandidate{Hops: hops, id: h.Sum64()}, nil
}

// ID is a stable fingerprint of the route's pools and directions. Two
// candidates over the same pools in the same directions share an ID across
// scan cycles, which keys the per-route history.
func (r *RouteCandidate) ID() uint64 { return r.id }

// Chain returns the chain all hops run on.
func (r *RouteCandidate) Chain() Chain { return r.Hops[0].Pool.Chain }

// StartToken is the loan token the route borrows and repays.
func (r *RouteCandidate) StartToken() common.Address { return r.Hops[0].TokenIn }

// MinReserveIn returns the smallest input-side reserve across hops, the
// binding constraint when sizing the trade.
func (r *RouteCandidate) MinReserveIn() *big.Int {
	var min *big.Int
	for _, h := range r.Hops {
		in, _, _ := h.Reserves()
		if min == nil || in.Cmp(min) < 0 {
			min = in
		}
	}
	return new(big.Int).Set(min)
}

// MinTVLUsd returns the shallowest pool's TVL across hops.
func (r *RouteCandidate) MinTVLUsd() decimal.Decimal {
	min := r.Hops[0].Pool.TVLUsd
	for _, h := range r.Hops[1:] {
		if h.Pool.TVLUsd.LessThan(min) {
			min = h.Pool.TVLUsd
		}
	}
	return min
}

// String renders the route as a token path for logs.
func (r *RouteCandidate) String() string {
	s := r.Hops[0].TokenIn.Hex()[:10]
	for _, h := range r.Hops {
		s += "->" + h.TokenOut.Hex()[:10]
	}
	return fmt.Sprintf("%s (%d hops, %s)", s, len(r.Hops), r.Chain())
}

// Classification buckets a scored opportunity.
type Classification int

const (
	ClassSkip Classification = iota
	ClassPoor
	ClassModerate
	ClassGood
	ClassExcellent
)

func (c Classification) String() string {
	switch c {
	case ClassExcellent:
		return "EXCELLENT"
	case ClassGood:
		return "GOOD"
	case ClassModerate:
		return "MODERATE"
	case ClassPoor:
		return "POOR"
	default:
		return "SKIP"
	}
}

// Opportunity is a route candidate annotated with a sized trade, cost
// estimates and a score. Immutable once scored.
type Opportunity struct {
	Route          *RouteCandidate
	Chain          Chain
	InputAmount    *big.Int
	ExpectedOutput *big.Int
	GrossProfit    *big.Int
	FlashloanFee   *big.Int
	ProviderName   string
	GasEstimate    uint64
	GasCostUsd     decimal.Decimal
	NetProfitUsd   decimal.Decimal
	SlippagePct    decimal.Decimal
	Score          float64
	Classification Classification
	Confidence     float64
	CreatedAt      time.Time
}

// OpportunityID identifies one scored opportunity instance.
func (o *Opportunity) OpportunityID() string {
	return fmt.Sprintf("%016x-%d", o.Route.ID(), o.CreatedAt.UnixNano())
}

// Action is the terminal decision taken for an opportunity.
type Action int

const (
	ActionSkip Action = iota
	ActionSimulate
	ActionExecute
)

func (a Action) String() string {
	switch a {
	case ActionExecute:
		return "EXECUTE"
	case ActionSimulate:
		return "SIMULATE"
	default:
		return "SKIP"
	}
}

// ExecutionDecision is produced exactly once per opportunity and never
// revised. SKIP decisions always carry a human-readable reason.
type ExecutionDecision struct {
	OpportunityID string
	Action        Action
	Reason        string
	Timestamp     time.Time
}

// ExecutionMode selects how the controller treats passing opportunities.
type ExecutionMode int

const (
	ModeSim ExecutionMode = iota
	ModeDev
	ModeLive
)

func (m ExecutionMode) String() string {
	switch m {
	case ModeLive:
		return "LIVE"
	case ModeDev:
		return "DEV"
	default:
		return "SIM"
	}
}

// ParseExecutionMode parses a mode name from configuration.
func ParseExecutionMode(s string) (ExecutionMode, error) {
	switch s {
	case "LIVE", "live":
		return ModeLive, nil
	case "DEV", "dev":
		return ModeDev, nil
	case "SIM", "sim":
		return ModeSim, nil
	default:
		return ModeSim, fmt.Errorf("unknown execution mode %q", s)
	}
}

// ExecutionOutcome is reported back by the capital-source collaborator (or
// fabricated by the simulator) after a dispatch completes.
type ExecutionOutcome struct {
	OpportunityID string
	RouteID       uint64
	Success       bool
	ProfitUsd     decimal.Decimal
	GasLossUsd    decimal.Decimal
	Duration      time.Duration
	TxHash        string
	Err           error
}
