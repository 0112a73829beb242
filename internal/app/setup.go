package app

import (
	"context"
	"fmt"

	"github.com/dexpulse/dexpulse/internal/gas"
	"github.com/dexpulse/dexpulse/internal/pipeline"
	"github.com/dexpulse/dexpulse/internal/poolstate"
	"github.com/dexpulse/dexpulse/internal/storage"
	"github.com/dexpulse/dexpulse/internal/stream"
	"github.com/dexpulse/dexpulse/internal/trigger"
	"github.com/dexpulse/dexpulse/pkg/config"
	"github.com/dexpulse/dexpulse/pkg/healthprobe"
	"github.com/dexpulse/dexpulse/pkg/httpserver"
	"github.com/dexpulse/dexpulse/pkg/types"
	"go.uber.org/zap"
)

// New creates a new application instance.
func New(cfg *config.Config, logger *zap.Logger, opts *Options) (*App, error) {
	if opts == nil {
		opts = &Options{}
	}
	if opts.SinglePool != "" {
		cfg.Pools = []string{opts.SinglePool}
	}

	ctx, cancel := context.WithCancel(context.Background())

	healthChecker := setupHealthChecker()

	poolStore, err := setupPoolStore(cfg, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup pool store: %w", err)
	}

	streamManager := setupStreamManager(cfg, logger)

	eventPipeline, err := setupPipeline(cfg, logger, poolStore)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup pipeline: %w", err)
	}

	gasOracle, err := setupGasOracle(ctx, cfg, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup gas oracle: %w", err)
	}

	oppStorage, err := setupStorage(cfg, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup storage: %w", err)
	}

	oppTrigger := setupTrigger(cfg, logger, gasOracle, oppStorage, eventPipeline)

	httpServer := setupHTTPServer(cfg, logger, healthChecker, streamManager, eventPipeline, gasOracle, oppTrigger)

	return &App{
		cfg:           cfg,
		logger:        logger,
		healthChecker: healthChecker,
		httpServer:    httpServer,
		poolStore:     poolStore,
		streamManager: streamManager,
		eventPipeline: eventPipeline,
		gasOracle:     gasOracle,
		oppTrigger:    oppTrigger,
		storage:       oppStorage,
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

func setupHealthChecker() *healthprobe.HealthChecker {
	return healthprobe.New()
}

func setupHTTPServer(
	cfg *config.Config,
	logger *zap.Logger,
	healthChecker *healthprobe.HealthChecker,
	streamManager *stream.Manager,
	eventPipeline *pipeline.Pipeline,
	gasOracle *gas.Oracle,
	oppTrigger *trigger.Trigger,
) *httpserver.Server {
	return httpserver.New(&httpserver.Config{
		Port:          cfg.HTTPPort,
		Logger:        logger,
		HealthChecker: healthChecker,
		Stream:        streamManager,
		Pipeline:      eventPipeline,
		GasOracle:     gasOracle,
		Trigger:       oppTrigger,
	})
}

func setupPoolStore(cfg *config.Config, logger *zap.Logger) (*poolstate.Store, error) {
	store, err := poolstate.New(&poolstate.Config{
		MaxEntries: cfg.PoolCacheMaxEntries,
		TTL:        cfg.PoolCacheTTL,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	if cfg.PoolCacheSeedPath != "" {
		seeded, err := poolstate.LoadSeed(cfg.PoolCacheSeedPath, store, logger)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("load pool seed: %w", err)
		}
		logger.Info("pool-state-seeded",
			zap.String("path", cfg.PoolCacheSeedPath),
			zap.Int("pools", seeded))
	}

	return store, nil
}

func setupStreamManager(cfg *config.Config, logger *zap.Logger) *stream.Manager {
	return stream.New(stream.Config{
		Endpoints:         cfg.Endpoints,
		DexName:           cfg.DexName,
		DialTimeout:       cfg.StreamDialTimeout,
		PingInterval:      cfg.StreamPingInterval,
		ReadTimeout:       cfg.StreamReadTimeout,
		MessageBufferSize: cfg.StreamMessageBufferSize,
		Backoff: stream.BackoffConfig{
			BaseDelay:     cfg.ReconnectBaseDelay,
			MaxDelay:      cfg.ReconnectMaxDelay,
			Multiplier:    cfg.ReconnectMultiplier,
			MaxAttempts:   cfg.ReconnectMaxAttempts,
			JitterPercent: cfg.ReconnectJitter,
		},
		Logger: logger,
	})
}

func setupPipeline(cfg *config.Config, logger *zap.Logger, store *poolstate.Store) (*pipeline.Pipeline, error) {
	policy, err := pipeline.ParseDropPolicy(cfg.QueueDropPolicy)
	if err != nil {
		return nil, err
	}

	return pipeline.New(pipeline.Config{
		Filter: pipeline.FilterConfig{
			MinLiquidity:   cfg.FilterMinLiquidity,
			MaxPriceImpact: cfg.FilterMaxPriceImpact,
			MinPriceDelta:  cfg.FilterMinPriceDelta,
			Window:         cfg.FilterWindow,
		},
		QueueSize: cfg.QueueMaxSize,
		Policy:    policy,
		Store:     store,
		Logger:    logger,
	})
}

func setupGasOracle(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*gas.Oracle, error) {
	var raw []gas.Source

	if cfg.GasNodeRPCURL != "" {
		nodeSource, err := gas.NewNodeSource(ctx, cfg.GasNodeRPCURL)
		if err != nil {
			return nil, fmt.Errorf("create node gas source: %w", err)
		}
		raw = append(raw, nodeSource)
	}

	if cfg.GasFeeAPIURL != "" {
		raw = append(raw, gas.NewFeeAPISource(cfg.GasFeeAPIURL))
	}

	if len(raw) == 0 {
		return nil, fmt.Errorf("no gas price sources configured")
	}

	// Each source gets its own breaker so one dead upstream fails fast
	// instead of eating a timeout on every refresh.
	sources := make([]gas.Source, 0, len(raw))
	for _, source := range raw {
		wrapped, err := gas.NewBreakerSource(gas.BreakerConfig{
			FailureThreshold: cfg.GasBreakerFailures,
			Cooldown:         cfg.GasBreakerCooldown,
			Logger:           logger,
		}, source)
		if err != nil {
			return nil, fmt.Errorf("wrap gas source %s: %w", source.Name(), err)
		}
		sources = append(sources, wrapped)
	}

	return gas.New(gas.Config{
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
	}), nil
}

func setupStorage(cfg *config.Config, logger *zap.Logger) (storage.Storage, error) {
	if cfg.StorageMode == "postgres" {
		pgStorage, err := storage.NewPostgresStorage(&storage.PostgresConfig{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPass,
			Database: cfg.PostgresDB,
			SSLMode:  cfg.PostgresSSL,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create postgres storage: %w", err)
		}
		return pgStorage, nil
	}

	return storage.NewConsoleStorage(logger), nil
}

func setupTrigger(
	cfg *config.Config,
	logger *zap.Logger,
	gasOracle *gas.Oracle,
	oppStorage storage.Storage,
	eventPipeline *pipeline.Pipeline,
) *trigger.Trigger {
	return trigger.New(
		trigger.Config{
			Profitability: trigger.ProfitabilityConfig{
				MinProfitPercent:   cfg.MinProfitPercent,
				MaxSlippagePercent: cfg.MaxSlippagePercent,
				MinProfitAbsolute:  cfg.MinProfitAbsolute,
			},
			DebounceWindow: cfg.DebounceWindow,
			GasTier:        types.GasTier(cfg.TriggerGasTier),
			GasLimit:       cfg.TriggerGasLimit,
			Logger:         logger,
		},
		gasOracle,
		trigger.NewImbalanceEstimator(),
		oppStorage,
		eventPipeline.Out(),
	)
}
