package ports

import (
	"context"

	"github.com/tjfontaine/polyglot-chat-core/internal/pkg/config"
)

// ConfigProvider loads configuration and reports changes.
// Implementations: file (fsnotify hot-reload).
type ConfigProvider interface {
	// Load reads the current configuration.
	Load(ctx context.Context) (*config.Config, error)

	// Watch calls onChange for every valid new configuration until ctx is
	// done. It returns once watching has started.
	Watch(ctx context.Context, onChange func(*config.Config)) error

	Close() error
}
