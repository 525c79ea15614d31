package runtime

import (
	"fmt"
	"log/slog"

	"github.com/tjfontaine/polyglot-chat-core/internal/adapters/config/file"
	"github.com/tjfontaine/polyglot-chat-core/internal/adapters/storage/memory"
	"github.com/tjfontaine/polyglot-chat-core/internal/adapters/storage/sqlite"
	"github.com/tjfontaine/polyglot-chat-core/internal/core/ports"
)

// Option is a functional option for configuring a Runtime.
type Option func(*Runtime) error

// WithFileConfig uses a YAML config file with hot-reload. Set WithLogger
// first for the watcher to use it.
func WithFileConfig(path string) Option {
	return func(r *Runtime) error {
		provider, err := file.NewProvider(path, file.WithLogger(r.logger))
		if err != nil {
			return fmt.Errorf("create file config provider: %w", err)
		}
		r.config = provider
		return nil
	}
}

// WithSQLite persists learned capabilities in a SQLite database,
// overriding storage.type.
func WithSQLite(path string) Option {
	return func(r *Runtime) error {
		store, err := sqlite.New(path)
		if err != nil {
			return fmt.Errorf("create sqlite storage: %w", err)
		}
		r.store = store
		return nil
	}
}

// WithMemoryStorage keeps learned capabilities in memory only.
func WithMemoryStorage() Option {
	return func(r *Runtime) error {
		r.store = memory.New()
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) error {
		r.logger = logger
		return nil
	}
}

// WithConfigProvider sets a custom config provider.
func WithConfigProvider(provider ports.ConfigProvider) Option {
	return func(r *Runtime) error {
		r.config = provider
		return nil
	}
}

// WithStorageProvider sets a custom capability store.
func WithStorageProvider(store ports.CapabilityStore) Option {
	return func(r *Runtime) error {
		r.store = store
		return nil
	}
}
