package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/apexlabs/apexbot/config"
	"github.com/apexlabs/apexbot/utils"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "apexbot",
	Short: "A flash-loan arbitrage scanner and execution gate for EVM chains",
	Long: `apexbot scans constant-product pools across chains for closed-loop
arbitrage routes, sizes and scores each opportunity, and gates execution
behind a mode-aware safety state machine.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initRun)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is built-in defaults)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func initRun() {
	log := utils.InitLogger(debug)
	if err := config.LoadEnv(); err != nil {
		log.Warn("Failed to load .env file", zap.Error(err))
	}
}
