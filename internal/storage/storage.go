package storage

import (
	"context"

	"github.com/dexpulse/dexpulse/internal/trigger"
)

// Storage is the interface for persisting opportunity detections.
type Storage interface {
	// StoreOpportunity stores one detection.
	StoreOpportunity(ctx context.Context, opp *trigger.OpportunityDetection) error

	// Close closes the storage connection.
	Close() error
}
