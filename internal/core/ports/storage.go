package ports

import (
	"context"

	"github.com/tjfontaine/polyglot-chat-core/internal/core/domain"
)

// CapabilityStore persists learned provider capabilities.
// Implementations: SQLite (default), in-memory.
type CapabilityStore interface {
	// LoadCapabilities returns every persisted record.
	LoadCapabilities(ctx context.Context) ([]domain.CapabilityRecord, error)

	// SaveCapability upserts one record keyed by (provider, submodel).
	SaveCapability(ctx context.Context, rec domain.CapabilityRecord) error

	// ResetCapabilities deletes all records.
	ResetCapabilities(ctx context.Context) error

	Close() error
}
