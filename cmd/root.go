package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "dexpulse",
	Short: "On-chain arbitrage detection engine",
	Long: `dexpulse subscribes to DEX pool events over RPC websockets, aggregates
them into a filtered, prioritized stream, and flags price dislocations
that clear the profitability thresholds after gas.

Detections are published on an internal channel and persisted; execution
is left to downstream consumers.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	// Flags can be added here if needed
}
