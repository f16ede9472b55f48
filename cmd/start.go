package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/apexlabs/apexbot/config"
	"github.com/apexlabs/apexbot/evaluator"
	"github.com/apexlabs/apexbot/executor"
	"github.com/apexlabs/apexbot/flashloan"
	"github.com/apexlabs/apexbot/gas"
	"github.com/apexlabs/apexbot/scanner"
	"github.com/apexlabs/apexbot/scorer"
	"github.com/apexlabs/apexbot/tracker"
	"github.com/apexlabs/apexbot/types"
	"github.com/apexlabs/apexbot/utils"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Scan live pools and gate opportunities in DEV or SIM mode",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := utils.GetLogger()
		defer utils.CleanupLogger()

		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		mode, err := types.ParseExecutionMode(cfg.Mode)
		if err != nil {
			return err
		}
		if mode == types.ModeLive {
			// Transaction signing and broadcast live outside this binary.
			// LIVE gating needs a real dispatcher wired in by the embedding
			// service.
			return fmt.Errorf("LIVE mode requires an external execution dispatcher; run DEV or SIM")
		}
		if cfg.PoolsFile == "" {
			return fmt.Errorf("start requires a pools_file in the config")
		}

		table, err := loadProviderTable(cfg)
		if err != nil {
			return err
		}
		registry, err := scanner.LoadPoolRegistry(cfg.PoolsFile)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		chains := cfg.EnabledChains()

		callers := make(map[types.Chain]scanner.ContractCaller, len(chains))
		estimators := make(map[types.Chain]*gas.Estimator, len(chains))
		for _, chain := range chains {
			info, err := config.ChainByName(string(chain))
			if err != nil {
				return err
			}
			client, err := ethclient.DialContext(ctx, info.RPCEndpoint())
			if err != nil {
				return fmt.Errorf("failed to connect to %s: %w", chain, err)
			}
			defer client.Close()
			callers[chain] = client
			estimators[chain] = gas.NewEstimator(client, 15*time.Second, log.Named("gas"))
		}

		fleet := gas.NewFleet(estimators)
		seedFleetPrices(fleet, registry)
		go fleet.Run(ctx)

		if cfg.MetricsAddr != "" {
			go serveMetrics(ctx, cfg.MetricsAddr, log)
		}

		selector := flashloan.NewSelector(table)
		trk, err := tracker.New(cfg.Tracker, log.Named("tracker"))
		if err != nil {
			return err
		}
		sc, err := scorer.New(cfg.Scoring, trk, log.Named("scorer"))
		if err != nil {
			return err
		}
		eval := evaluator.New(selector, fleet, evaluator.Params{
			GridBps:        cfg.Execution.GridBps,
			MinSizePercent: cfg.Execution.MinFlashloanPercent,
			MaxSizePercent: cfg.Execution.MaxFlashloanPercent,
			MaxImpactBps:   cfg.Execution.MaxImpactBps,
			GasLimitPerHop: cfg.Execution.GasLimitPerHop,
		}, log.Named("evaluator"))

		dispatcher := executor.NewSimulator(mode, time.Now().UnixNano())
		controller := executor.New(mode, cfg.Safety, cfg.Execution.ExecutionThreshold,
			selector, fleet, dispatcher, trk, log.Named("executor"))
		controller.Start(ctx)
		go logDecisions(ctx, controller, log)

		scn := scanner.New(scanner.Options{
			Chains:       chains,
			Source:       scanner.NewLiveSource(callers, registry, log.Named("scanner")),
			Evaluator:    eval,
			Scorer:       sc,
			Controller:   controller,
			Interval:     cfg.ScanInterval,
			Limiter:      rate.NewLimiter(rate.Limit(cfg.RateLimit.ScansPerSecond), cfg.RateLimit.BurstSize),
			Workers:      cfg.Execution.Workers,
			MinProfitUsd: cfg.Safety.MinProfitUsd,
			Logger:       log.Named("scanner"),
		})

		log.Info("Starting scan loop",
			zap.String("mode", mode.String()),
			zap.Int("chains", len(chains)),
			zap.Duration("interval", cfg.ScanInterval))

		err = scn.Run(ctx)
		controller.Wait()
		logSummary(trk, log)
		if err != nil && ctx.Err() != nil {
			return nil
		}
		return err
	},
}

func loadProviderTable(cfg *config.Config) (flashloan.Table, error) {
	if cfg.ProvidersFile == "" {
		return flashloan.DefaultTable(), nil
	}
	return flashloan.LoadTable(cfg.ProvidersFile)
}

func seedFleetPrices(fleet *gas.Fleet, registry *scanner.PoolRegistry) {
	for chainName, prices := range registry.Prices {
		chain := types.Chain(chainName)
		fleet.SetNativeUsd(chain, prices.NativeUsd)
		for token, usd := range prices.Tokens {
			fleet.SetTokenUsd(chain, common.HexToAddress(token), usd)
		}
	}
}

func serveMetrics(ctx context.Context, addr string, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info("Serving metrics", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("Metrics server failed", zap.Error(err))
	}
}

func logDecisions(ctx context.Context, controller *executor.Controller, log *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-controller.Decisions():
			log.Debug("Decision",
				zap.String("opportunity", d.OpportunityID),
				zap.String("action", d.Action.String()),
				zap.String("reason", d.Reason))
		}
	}
}

func logSummary(trk *tracker.Tracker, log *zap.Logger) {
	s := trk.Snapshot()
	log.Info("Run summary",
		zap.Int("executions", s.TotalExecutions),
		zap.Int("successes", s.TotalSuccesses),
		zap.Float64("window_success_rate", s.CurrentSuccessRate),
		zap.Float64("overall_success_rate", s.OverallSuccessRate),
		zap.String("total_profit_usd", s.TotalProfitUsd.StringFixed(2)))
}

func init() {
	rootCmd.AddCommand(startCmd)
}
