package app

import (
	"context"
	"sync"

	"github.com/dexpulse/dexpulse/internal/gas"
	"github.com/dexpulse/dexpulse/internal/pipeline"
	"github.com/dexpulse/dexpulse/internal/poolstate"
	"github.com/dexpulse/dexpulse/internal/storage"
	"github.com/dexpulse/dexpulse/internal/stream"
	"github.com/dexpulse/dexpulse/internal/trigger"
	"github.com/dexpulse/dexpulse/pkg/config"
	"github.com/dexpulse/dexpulse/pkg/healthprobe"
	"github.com/dexpulse/dexpulse/pkg/httpserver"
	"go.uber.org/zap"
)

// App is the main application orchestrator.
type App struct {
	cfg           *config.Config
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
	httpServer    *httpserver.Server
	poolStore     *poolstate.Store
	streamManager *stream.Manager
	eventPipeline *pipeline.Pipeline
	gasOracle     *gas.Oracle
	oppTrigger    *trigger.Trigger
	storage       storage.Storage
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// Options holds application options.
type Options struct {
	SinglePool string // For debugging: hex address of single pool to monitor
}
