package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dexpulse/dexpulse/internal/trigger"
)

// ConsoleStorage implements Storage by pretty-printing to console.
// Useful in development when no database is around.
type ConsoleStorage struct {
	logger *zap.Logger
}

// NewConsoleStorage creates a new console storage.
func NewConsoleStorage(logger *zap.Logger) *ConsoleStorage {
	logger.Info("console-storage-initialized")
	return &ConsoleStorage{
		logger: logger,
	}
}

// StoreOpportunity pretty-prints an opportunity detection to console.
func (c *ConsoleStorage) StoreOpportunity(ctx context.Context, opp *trigger.OpportunityDetection) error {
	fmt.Println("\n" + "────────────────────────────────────────────────────────────")
	fmt.Printf("OPPORTUNITY DETECTED\n")
	fmt.Println("────────────────────────────────────────────────────────────")
	fmt.Printf("ID:        %s\n", opp.ID[:8])
	fmt.Printf("Pool:      %s\n", opp.Event.PoolAddress.Hex())
	fmt.Printf("DEX:       %s (%s)\n", opp.Event.DexName, opp.Event.Kind)
	fmt.Printf("Block:     %d / log %d\n", opp.Event.BlockNumber, opp.Event.LogIndex)
	fmt.Printf("Time:      %s\n", opp.TriggeredAt.Format("2006-01-02 15:04:05.000"))
	fmt.Println("────────────────────────────────────────────────────────────")
	fmt.Printf("Price:        %.8f\n", opp.Event.Price)
	fmt.Printf("Price delta:  %.4f%%\n", opp.Event.PriceDelta*100)
	fmt.Printf("Priority:     %s\n", opp.Event.Priority)
	fmt.Println("────────────────────────────────────────────────────────────")
	fmt.Printf("Gross profit: %.6f\n", opp.EstimatedProfit)
	fmt.Printf("Gas cost:     %.6f", opp.GasCostEstimate)
	if opp.GasPriceStale {
		fmt.Printf(" (STALE gas price)")
	}
	fmt.Println()
	fmt.Printf("Net profit:   %.6f\n", opp.NetProfit)
	fmt.Println("────────────────────────────────────────────────────────────")

	return nil
}

// Close is a no-op for console storage.
func (c *ConsoleStorage) Close() error {
	c.logger.Info("closing-console-storage")
	return nil
}
