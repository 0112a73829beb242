package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/dexpulse/dexpulse/internal/trigger"
)

// PostgresStorage implements Storage using PostgreSQL.
type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

// PostgresConfig holds PostgreSQL configuration.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
	Logger   *zap.Logger
}

// NewPostgresStorage creates a new PostgreSQL storage.
func NewPostgresStorage(cfg *PostgresConfig) (*PostgresStorage, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.Ping()
	if err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	cfg.Logger.Info("postgres-storage-connected",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database))

	return &PostgresStorage{
		db:     db,
		logger: cfg.Logger,
	}, nil
}

// StoreOpportunity stores one detection. Reserves go in as strings so
// values past float precision survive round trips.
func (p *PostgresStorage) StoreOpportunity(ctx context.Context, opp *trigger.OpportunityDetection) error {
	query := `
		INSERT INTO opportunity_detections (
			id, pool_address, dex_name, event_kind, block_number, log_index,
			reserve0, reserve1, price, price_delta, price_impact, priority,
			estimated_profit, gas_cost_estimate, net_profit, gas_price_stale,
			triggered_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
		)
	`

	reserve0, reserve1 := "", ""
	if opp.Event.Reserve0 != nil {
		reserve0 = opp.Event.Reserve0.String()
	}
	if opp.Event.Reserve1 != nil {
		reserve1 = opp.Event.Reserve1.String()
	}

	_, err := p.db.ExecContext(ctx, query,
		opp.ID,
		opp.Event.PoolAddress.Hex(),
		opp.Event.DexName,
		string(opp.Event.Kind),
		opp.Event.BlockNumber,
		opp.Event.LogIndex,
		reserve0,
		reserve1,
		opp.Event.Price,
		opp.Event.PriceDelta,
		opp.Event.PriceImpact,
		opp.Event.Priority.String(),
		opp.EstimatedProfit,
		opp.GasCostEstimate,
		opp.NetProfit,
		opp.GasPriceStale,
		opp.TriggeredAt,
	)

	if err != nil {
		return fmt.Errorf("insert opportunity: %w", err)
	}

	p.logger.Debug("opportunity-stored",
		zap.String("opportunity-id", opp.ID),
		zap.String("pool", opp.Event.PoolAddress.Hex()))

	return nil
}

// Close closes the database connection.
func (p *PostgresStorage) Close() error {
	p.logger.Info("closing-postgres-storage")
	return p.db.Close()
}
