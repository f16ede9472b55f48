// Package scanner drives the scan cycle: pool snapshots in, scored
// opportunities out to the execution controller. Chains scan in parallel
// and each chain's candidates are evaluated on a bounded worker pool.
package scanner

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/apexlabs/apexbot/evaluator"
	"github.com/apexlabs/apexbot/executor"
	"github.com/apexlabs/apexbot/flashloan"
	"github.com/apexlabs/apexbot/scorer"
	"github.com/apexlabs/apexbot/types"
)

// SnapshotSource supplies pool snapshots per chain. The data-fetching
// collaborator implements it; the scanner only assumes each snapshot is
// internally consistent.
type SnapshotSource interface {
	Snapshots(ctx context.Context, chain types.Chain) ([]*types.PoolSnapshot, error)
}

// ConfidenceSource optionally supplies an external predictor's confidence
// for a route. May be nil; scoring works without it.
type ConfidenceSource interface {
	Confidence(routeID uint64) (float64, bool)
}

// Scanner runs scan cycles until stopped.
type Scanner struct {
	chains     []types.Chain
	source     SnapshotSource
	confidence ConfidenceSource
	eval       *evaluator.Evaluator
	scorer     *scorer.Scorer
	controller *executor.Controller

	interval     time.Duration
	limiter      *rate.Limiter
	workers      int
	minProfitUsd decimal.Decimal
	logger       *zap.Logger
}

// Collectors register once on the default registry so scanners constructed
// later (and in tests) share them.
var metrics = struct {
	cycles           prometheus.Counter
	snapshotsDropped prometheus.Counter
	candidates       prometheus.Counter
	opportunities    prometheus.Counter
	rejectedRoutes   *prometheus.CounterVec
	sourceErrors     prometheus.Counter
	cycleDuration    prometheus.Histogram
}{
	cycles: promauto.NewCounter(prometheus.CounterOpts{
		Name: "apexbot_scan_cycles_total",
		Help: "Completed scan cycles",
	}),
	snapshotsDropped: promauto.NewCounter(prometheus.CounterOpts{
		Name: "apexbot_snapshots_dropped_total",
		Help: "Pool snapshots rejected at ingestion",
	}),
	candidates: promauto.NewCounter(prometheus.CounterOpts{
		Name: "apexbot_route_candidates_total",
		Help: "Route candidates enumerated",
	}),
	opportunities: promauto.NewCounter(prometheus.CounterOpts{
		Name: "apexbot_opportunities_total",
		Help: "Opportunities scored and handed to the controller",
	}),
	rejectedRoutes: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apexbot_routes_rejected_total",
		Help: "Routes rejected during evaluation by cause",
	}, []string{"cause"}),
	sourceErrors: promauto.NewCounter(prometheus.CounterOpts{
		Name: "apexbot_snapshot_source_errors_total",
		Help: "Snapshot source fetch failures",
	}),
	cycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "apexbot_scan_cycle_seconds",
		Help:    "Wall time per scan cycle",
		Buckets: prometheus.DefBuckets,
	}),
}

// Options wires a Scanner.
type Options struct {
	Chains       []types.Chain
	Source       SnapshotSource
	Confidence   ConfidenceSource
	Evaluator    *evaluator.Evaluator
	Scorer       *scorer.Scorer
	Controller   *executor.Controller
	Interval     time.Duration
	Limiter      *rate.Limiter
	Workers      int
	MinProfitUsd float64
	Logger       *zap.Logger
}

// New creates a Scanner. Workers defaults to the CPU count.
func New(opts Options) *Scanner {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Scanner{
		chains:       opts.Chains,
		source:       opts.Source,
		confidence:   opts.Confidence,
		eval:         opts.Evaluator,
		scorer:       opts.Scorer,
		controller:   opts.Controller,
		interval:     opts.Interval,
		limiter:      limiter,
		workers:      workers,
		minProfitUsd: decimal.NewFromFloat(opts.MinProfitUsd),
		logger:       opts.Logger,
	}
}

// Run executes scan cycles on the configured interval until ctx ends.
func (s *Scanner) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		s.ScanOnce(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ScanOnce runs one full cycle across all chains in parallel.
func (s *Scanner) ScanOnce(ctx context.Context) {
	start := time.Now()
	var wg sync.WaitGroup
	for _, chain := range s.chains {
		wg.Add(1)
		go func(chain types.Chain) {
			defer wg.Done()
			s.scanChain(ctx, chain)
		}(chain)
	}
	wg.Wait()
	metrics.cycles.Inc()
	metrics.cycleDuration.Observe(time.Since(start).Seconds())
}

func (s *Scanner) scanChain(ctx context.Context, chain types.Chain) {
	snapshots, err := s.source.Snapshots(ctx, chain)
	if err != nil {
		metrics.sourceErrors.Inc()
		s.logger.Error("Failed to fetch pool snapshots",
			zap.String("chain", string(chain)), zap.Error(err))
		return
	}

	pools := s.ingest(snapshots)
	if len(pools) == 0 {
		return
	}

	candidates := EnumerateRoutes(pools)
	metrics.candidates.Add(float64(len(candidates)))
	if len(candidates) == 0 {
		return
	}

	jobs := make(chan *types.RouteCandidate)
	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for route := range jobs {
				s.process(ctx, route)
			}
		}()
	}

	for _, route := range candidates {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		case jobs <- route:
		}
	}
	close(jobs)
	wg.Wait()
}

// ingest validates snapshots, dropping invalid ones with a log line. An
// invalid snapshot never propagates into routing or scoring.
func (s *Scanner) ingest(snapshots []*types.PoolSnapshot) []*types.PoolSnapshot {
	pools := snapshots[:0:0]
	for _, snap := range snapshots {
		if err := snap.Validate(); err != nil {
			metrics.snapshotsDropped.Inc()
			s.logger.Warn("Dropped invalid pool snapshot", zap.Error(err))
			continue
		}
		pools = append(pools, snap)
	}
	return pools
}

// process evaluates and scores a single candidate. All per-route errors are
// local: log, count, move on.
func (s *Scanner) process(ctx context.Context, route *types.RouteCandidate) {
	est, err := s.eval.Evaluate(route)
	if err != nil {
		switch {
		case errors.Is(err, evaluator.ErrUnprofitable):
			metrics.rejectedRoutes.WithLabelValues("unprofitable").Inc()
		case errors.Is(err, flashloan.ErrNoProviderAvailable):
			metrics.rejectedRoutes.WithLabelValues("no_provider").Inc()
		default:
			metrics.rejectedRoutes.WithLabelValues("error").Inc()
			s.logger.Debug("Route evaluation failed",
				zap.String("route", route.String()), zap.Error(err))
		}
		return
	}

	if est.NetProfitUsd.LessThan(s.minProfitUsd) {
		metrics.rejectedRoutes.WithLabelValues("below_min_profit").Inc()
		return
	}

	var hint *float64
	if s.confidence != nil {
		if v, ok := s.confidence.Confidence(route.ID()); ok {
			hint = &v
		}
	}

	op := s.scorer.Score(est, hint)
	metrics.opportunities.Inc()
	s.controller.Process(ctx, op)
}
