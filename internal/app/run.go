package app

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Run starts the application and blocks until shutdown.
func (a *App) Run() error {
	a.logger.Info("application-starting",
		zap.Int("endpoints", len(a.cfg.Endpoints)),
		zap.Int("monitored-pools", len(a.cfg.Pools)),
		zap.String("log-level", a.cfg.LogLevel))

	// Start all components
	err := a.startComponents()
	if err != nil {
		return err
	}

	// Mark as ready
	a.healthChecker.SetConnected(a.streamManager.Status().Connected)
	a.healthChecker.SetReady(true)

	a.logger.Info("application-ready",
		zap.String("http-addr", ":"+a.cfg.HTTPPort),
		zap.String("primary-endpoint", a.cfg.Endpoints[0].URL))

	// Wait for shutdown signal
	return a.waitForShutdown()
}

func (a *App) startComponents() error {
	// Start HTTP server
	a.wg.Add(1)
	go a.runHTTPServer()

	// Give HTTP server a moment to start
	time.Sleep(100 * time.Millisecond)

	// Connect the event stream and register pool subscriptions
	err := a.startStream()
	if err != nil {
		return fmt.Errorf("start stream: %w", err)
	}

	// Start the aggregation pipeline and feed it from the stream
	a.eventPipeline.Start(a.ctx)
	a.wg.Add(1)
	go a.runEventProducer()

	// Prime the gas oracle and keep it refreshed
	a.gasOracle.FetchAndCache(a.ctx)
	a.wg.Add(1)
	go a.runGasRefresh()

	// Start the opportunity trigger and its consumer
	a.oppTrigger.Start(a.ctx)
	a.wg.Add(1)
	go a.runOpportunityConsumer()

	// Reflect stream connectivity in readiness
	a.wg.Add(1)
	go a.runConnectivityMonitor()

	// Watch for unrecoverable stream failures
	a.wg.Add(1)
	go a.watchStreamFatal()

	return nil
}

func (a *App) runHTTPServer() {
	defer a.wg.Done()
	err := a.httpServer.Start()
	if err != nil {
		a.logger.Error("http-server-error", zap.Error(err))
	}
}

func (a *App) startStream() error {
	err := a.streamManager.Connect()
	if err != nil {
		return err
	}

	for _, pool := range a.cfg.Pools {
		if !common.IsHexAddress(pool) {
			a.logger.Warn("skipping-invalid-pool-address", zap.String("pool", pool))
			continue
		}
		err = a.streamManager.SubscribePool(a.ctx, common.HexToAddress(pool))
		if err != nil {
			return fmt.Errorf("subscribe pool %s: %w", pool, err)
		}
	}

	return nil
}

// runEventProducer moves raw events from the stream into the pipeline.
// It exits when the stream's event channel is closed.
func (a *App) runEventProducer() {
	defer a.wg.Done()

	for event := range a.streamManager.Events() {
		err := a.eventPipeline.ProcessEvent(event)
		if err != nil {
			a.logger.Warn("event-dropped",
				zap.String("pool", event.PoolAddress.Hex()),
				zap.Error(err))
		}
	}
}

func (a *App) runGasRefresh() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.cfg.GasRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.gasOracle.FetchAndCache(a.ctx)
		}
	}
}

// runOpportunityConsumer drains accepted detections. Persistence happens
// inside the trigger; this consumer exists so the at-least-once channel
// never blocks the evaluation loop.
func (a *App) runOpportunityConsumer() {
	defer a.wg.Done()

	for opp := range a.oppTrigger.Out() {
		a.logger.Info("opportunity-ready",
			zap.String("opportunity-id", opp.ID),
			zap.String("pool", opp.Event.PoolAddress.Hex()),
			zap.Float64("net-profit", opp.NetProfit))
	}
}

func (a *App) runConnectivityMonitor() {
	defer a.wg.Done()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.healthChecker.SetConnected(a.streamManager.Status().Connected)
		}
	}
}

func (a *App) watchStreamFatal() {
	defer a.wg.Done()

	select {
	case <-a.ctx.Done():
	case err, ok := <-a.streamManager.Fatal():
		if !ok {
			return
		}
		a.logger.Error("stream-unrecoverable", zap.Error(err))
		a.cancel()
	}
}

func (a *App) waitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		a.logger.Info("shutdown-signal-received", zap.String("signal", sig.String()))
	case <-a.ctx.Done():
		a.logger.Info("context-cancelled")
	}

	return a.Shutdown()
}
