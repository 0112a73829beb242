package httpserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dexpulse/dexpulse/internal/gas"
	"github.com/dexpulse/dexpulse/internal/pipeline"
	"github.com/dexpulse/dexpulse/internal/stream"
	"github.com/dexpulse/dexpulse/internal/trigger"
	"go.uber.org/zap"
)

// StatusHandler handles HTTP requests for the aggregated runtime status
// of the detection components.
type StatusHandler struct {
	stream   *stream.Manager
	pipeline *pipeline.Pipeline
	oracle   *gas.Oracle
	trigger  *trigger.Trigger
	logger   *zap.Logger
}

// NewStatusHandler creates a new status handler. Any component may be
// nil; its section is omitted from the response.
func NewStatusHandler(sm *stream.Manager, pl *pipeline.Pipeline, or *gas.Oracle, tr *trigger.Trigger, logger *zap.Logger) *StatusHandler {
	return &StatusHandler{
		stream:   sm,
		pipeline: pl,
		oracle:   or,
		trigger:  tr,
		logger:   logger,
	}
}

// StatusResponse represents the HTTP response for the status endpoint.
type StatusResponse struct {
	Timestamp time.Time        `json:"timestamp"`
	Stream    *stream.Status   `json:"stream,omitempty"`
	Pipeline  *pipeline.Status `json:"pipeline,omitempty"`
	Gas       *gas.Status      `json:"gas,omitempty"`
	Trigger   *trigger.Status  `json:"trigger,omitempty"`
}

// ErrorResponse represents an HTTP error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HandleStatus handles GET /api/status requests.
func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := StatusResponse{Timestamp: time.Now().UTC()}

	if h.stream != nil {
		s := h.stream.Status()
		response.Stream = &s
	}
	if h.pipeline != nil {
		s := h.pipeline.Status()
		response.Pipeline = &s
	}
	if h.oracle != nil {
		s := h.oracle.Status()
		response.Gas = &s
	}
	if h.trigger != nil {
		s := h.trigger.Status()
		response.Trigger = &s
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	err := json.NewEncoder(w).Encode(response)
	if err != nil {
		h.logger.Error("failed-to-encode-response", zap.Error(err))
	}
}

// writeError writes a JSON error response.
func (h *StatusHandler) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{Error: message}
	err := json.NewEncoder(w).Encode(response)
	if err != nil {
		h.logger.Error("failed-to-encode-error-response", zap.Error(err))
	}
}
