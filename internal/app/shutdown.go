package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown() error {
	a.logger.Info("application-shutting-down")

	a.healthChecker.SetReady(false)

	// Cancel context to signal all components
	a.cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Shutdown HTTP server
	err := a.httpServer.Shutdown(shutdownCtx)
	if err != nil {
		a.logger.Error("http-server-shutdown-error", zap.Error(err))
	}

	// Close the stream first so the event producer drains and exits
	err = a.streamManager.Close()
	if err != nil {
		a.logger.Error("stream-manager-close-error", zap.Error(err))
	}

	// Then the pipeline and trigger, downstream order
	err = a.eventPipeline.Close()
	if err != nil {
		a.logger.Error("pipeline-close-error", zap.Error(err))
	}

	err = a.oppTrigger.Close()
	if err != nil {
		a.logger.Error("opportunity-trigger-close-error", zap.Error(err))
	}

	a.gasOracle.Close()

	err = a.storage.Close()
	if err != nil {
		a.logger.Error("storage-close-error", zap.Error(err))
	}

	a.poolStore.Close()

	// Wait for all goroutines
	a.wg.Wait()

	a.logger.Info("application-shutdown-complete")

	return nil
}
