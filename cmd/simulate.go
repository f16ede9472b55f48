package cmd

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

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

var (
	simCycles int
	simSeed   int64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the full pipeline over a synthetic pool universe",
	Long: `Runs a fixed number of scan cycles against a deterministic synthetic
universe with no network access. Useful for validating configuration and
scoring behavior before pointing the scanner at real chains.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := utils.GetLogger()
		defer utils.CleanupLogger()

		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg.Mode = "SIM"

		chains := cfg.EnabledChains()
		source := scanner.NewSyntheticSource(simSeed, chains)

		oracle := gas.NewStatic()
		for _, chain := range chains {
			oracle.SetGasPriceGwei(chain, 30)
			oracle.SetNativeUsd(chain, decimal.NewFromInt(2000))
			for n := byte(1); n <= 3; n++ {
				oracle.SetTokenUsd(chain, scanner.SyntheticToken(chain, n), decimal.NewFromFloat(0.001))
			}
		}

		selector := flashloan.NewSelector(flashloan.DefaultTable())
		trk, err := tracker.New(cfg.Tracker, log.Named("tracker"))
		if err != nil {
			return err
		}
		sc, err := scorer.New(cfg.Scoring, trk, log.Named("scorer"))
		if err != nil {
			return err
		}
		eval := evaluator.New(selector, oracle, evaluator.Params{
			GridBps:        cfg.Execution.GridBps,
			MinSizePercent: cfg.Execution.MinFlashloanPercent,
			MaxSizePercent: cfg.Execution.MaxFlashloanPercent,
			MaxImpactBps:   cfg.Execution.MaxImpactBps,
			GasLimitPerHop: cfg.Execution.GasLimitPerHop,
		}, log.Named("evaluator"))

		dispatcher := executor.NewSimulator(types.ModeSim, simSeed)
		controller := executor.New(types.ModeSim, cfg.Safety, cfg.Execution.ExecutionThreshold,
			selector, oracle, dispatcher, trk, log.Named("executor"))

		ctx := cmd.Context()
		controller.Start(ctx)
		go logDecisions(ctx, controller, log)

		scn := scanner.New(scanner.Options{
			Chains:       chains,
			Source:       source,
			Evaluator:    eval,
			Scorer:       sc,
			Controller:   controller,
			Interval:     cfg.ScanInterval,
			Workers:      cfg.Execution.Workers,
			MinProfitUsd: cfg.Safety.MinProfitUsd,
			Logger:       log.Named("scanner"),
		})

		log.Info("Starting simulation",
			zap.Int("cycles", simCycles),
			zap.Int64("seed", simSeed),
			zap.Int("chains", len(chains)))

		for i := 0; i < simCycles; i++ {
			if ctx.Err() != nil {
				break
			}
			scn.ScanOnce(ctx)
		}
		logSummary(trk, log)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().IntVar(&simCycles, "cycles", 10, "number of scan cycles to run")
	simulateCmd.Flags().Int64Var(&simSeed, "seed", 1, "seed for the synthetic universe")
}
