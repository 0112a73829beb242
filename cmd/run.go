package cmd

import (
	"fmt"

	"github.com/dexpulse/dexpulse/internal/app"
	"github.com/dexpulse/dexpulse/pkg/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the detection engine",
	Long: `Starts the detection engine, which will:
1. Connect to the highest-priority RPC websocket endpoint
2. Subscribe to reserve and swap events for the monitored pools
3. Aggregate events into a filtered, prioritized stream
4. Flag opportunities whose net profit clears the configured thresholds

Use --single-pool to monitor only one pool for debugging.`,
	RunE: runEngine,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringP("single-pool", "s", "", "Monitor only a single pool by hex address (for debugging)")
}

func runEngine(cmd *cobra.Command, args []string) error {
	// Load .env if present; real deployments use the environment directly
	_ = godotenv.Load()

	// Load config
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Create logger
	logger, err := config.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	// Get flags
	singlePool, _ := cmd.Flags().GetString("single-pool")

	// Create app with options
	opts := &app.Options{
		SinglePool: singlePool,
	}

	application, err := app.New(cfg, logger, opts)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	// Run app
	err = application.Run()
	if err != nil {
		return fmt.Errorf("run app: %w", err)
	}

	return nil
}
