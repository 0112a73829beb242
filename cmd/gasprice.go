package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/dexpulse/dexpulse/internal/gas"
	"github.com/dexpulse/dexpulse/pkg/config"
	"github.com/dexpulse/dexpulse/pkg/types"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var gaspriceCmd = &cobra.Command{
	Use:   "gasprice",
	Short: "Fetch current gas prices",
	Long: `Fetches the current gas price from the configured sources and prints
the recommendation for every tier, plus a short-horizon prediction.

Useful for verifying source configuration before starting the engine.`,
	RunE: runGasPrice,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(gaspriceCmd)
	gaspriceCmd.Flags().IntP("blocks-ahead", "b", 5, "Blocks ahead for the price prediction")
}

func runGasPrice(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := config.NewConsoleLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var sources []gas.Source
	if cfg.GasNodeRPCURL != "" {
		nodeSource, err := gas.NewNodeSource(ctx, cfg.GasNodeRPCURL)
		if err != nil {
			return fmt.Errorf("create node gas source: %w", err)
		}
		sources = append(sources, nodeSource)
	}
	if cfg.GasFeeAPIURL != "" {
		sources = append(sources, gas.NewFeeAPISource(cfg.GasFeeAPIURL))
	}
	if len(sources) == 0 {
		return fmt.Errorf("no gas price sources configured, set GAS_NODE_RPC_URL or GAS_FEE_API_URL")
	}

	oracle := gas.New(gas.Config{
		Sources:         sources,
		RefreshInterval: cfg.GasRefreshInterval,
		SampleSize:      cfg.GasSampleSize,
		Tiers: gas.TierMultipliers{
			Instant: cfg.GasInstantMultiplier,
			Fast:    cfg.GasFastMultiplier,
			Normal:  cfg.GasNormalMultiplier,
			Slow:    cfg.GasSlowMultiplier,
		},
		Logger: logger,
	})
	defer oracle.Close()

	oracle.FetchAndCache(ctx)

	status := oracle.Status()
	if status.LastUpdate.IsZero() {
		return fmt.Errorf("all gas price sources failed")
	}

	fmt.Printf("Source: %s (updated %s)\n\n", status.LastSource, status.LastUpdate.Format(time.RFC3339))

	tiers := []types.GasTier{types.TierInstant, types.TierFast, types.TierNormal, types.TierSlow}
	for _, tier := range tiers {
		price, err := oracle.CurrentPrice(ctx, tier)
		if err != nil {
			return fmt.Errorf("get %s price: %w", tier, err)
		}
		fmt.Printf("%-8s %10.2f gwei\n", tier, gas.WeiToGwei(price.GasPrice))
	}

	blocksAhead, _ := cmd.Flags().GetInt("blocks-ahead")
	predicted, err := oracle.Predict(blocksAhead)
	if err == nil {
		fmt.Printf("\nPredicted (+%d blocks): %.2f gwei\n", blocksAhead, predicted)
	}

	return nil
}
