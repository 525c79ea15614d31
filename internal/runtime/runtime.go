// Package runtime wires configuration, capability storage, LLM clients,
// the coordinator and the HTTP surface into one process lifecycle.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tjfontaine/polyglot-chat-core/internal/adapters/llm/replay"
	"github.com/tjfontaine/polyglot-chat-core/internal/adapters/storage/memory"
	"github.com/tjfontaine/polyglot-chat-core/internal/adapters/storage/sqlite"
	"github.com/tjfontaine/polyglot-chat-core/internal/capability"
	"github.com/tjfontaine/polyglot-chat-core/internal/coordinator"
	"github.com/tjfontaine/polyglot-chat-core/internal/core/ports"
	convmemory "github.com/tjfontaine/polyglot-chat-core/internal/memory"
	"github.com/tjfontaine/polyglot-chat-core/internal/pkg/config"
	"github.com/tjfontaine/polyglot-chat-core/internal/server"
)

// ShutdownTimeout bounds graceful shutdown in Run.
const ShutdownTimeout = 10 * time.Second

// Runtime owns every long-lived component of a chat core process.
type Runtime struct {
	config ports.ConfigProvider
	store  ports.CapabilityStore
	logger *slog.Logger

	clients *clientSet
	coord   *coordinator.Coordinator
	server  *server.Server

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
}

// New creates a Runtime. A config provider is required; without an
// explicit storage option the store is chosen from storage.type.
func New(opts ...Option) (*Runtime, error) {
	r := &Runtime{
		logger:  slog.Default(),
		clients: &clientSet{},
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}
	if r.config == nil {
		return nil, errors.New("config provider required (use WithFileConfig or WithConfigProvider)")
	}
	return r, nil
}

// Start loads configuration, opens storage, warms the capability cache,
// builds the coordinator and starts watching for config changes. It does
// not serve HTTP; see Run.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ctx, r.cancel = context.WithCancel(ctx)

	cfg, err := r.config.Load(r.ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if r.store == nil {
		store, err := openStore(cfg.Storage)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		r.store = store
	}

	clients, err := replay.Clients(cfg.Providers, r.logger)
	if err != nil {
		return fmt.Errorf("init clients: %w", err)
	}
	r.clients.swap(clients)

	caps := capability.New(
		capability.WithStore(r.store),
		capability.WithLogger(r.logger))
	caps.Load(r.ctx)

	r.coord = coordinator.New(r.clients, coordinator.SettingsFromConfig(cfg),
		coordinator.WithLogger(r.logger),
		coordinator.WithCapabilities(caps),
		coordinator.WithMemory(convmemory.New(convmemory.WithLogger(r.logger))))
	r.server = server.New(cfg.Server.Port, r.coord, r.logger)

	if err := r.config.Watch(r.ctx, r.reload); err != nil {
		r.logger.Warn("config hot-reload disabled", slog.String("error", err.Error()))
	}

	r.logger.Info("chat core started",
		slog.Int("providers", len(cfg.Providers)),
		slog.Int("clients", len(clients)),
		slog.String("storage", cfg.Storage.Type),
		slog.String("policy", cfg.Concurrency.Policy))
	return nil
}

// Run starts the runtime and serves HTTP until ctx is done or the server
// fails, then shuts everything down.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(r.server.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return r.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Coordinator returns the coordinator built by Start.
func (r *Runtime) Coordinator() *coordinator.Coordinator {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.coord
}

// Server returns the HTTP server built by Start.
func (r *Runtime) Server() *server.Server {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.server
}

// Shutdown stops the HTTP server, cancels in-flight requests and closes
// storage and the config watcher.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.Info("shutting down chat core")
	if r.cancel != nil {
		r.cancel()
	}

	var errs []error
	if r.server != nil {
		if err := r.server.Shutdown(ctx); err != nil {
			r.logger.Error("failed to shutdown server", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if r.coord != nil {
		r.coord.Close()
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.Error("failed to close storage", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if err := r.config.Close(); err != nil {
		r.logger.Error("failed to close config", slog.String("error", err.Error()))
	}

	r.logger.Info("chat core shutdown complete")
	return errors.Join(errs...)
}

// reload applies a changed configuration. Clients are rebuilt first so
// the new settings never name a provider without one. Storage and the
// listen port are fixed for the life of the process.
func (r *Runtime) reload(cfg *config.Config) {
	clients, err := replay.Clients(cfg.Providers, r.logger)
	if err != nil {
		r.logger.Error("failed to reload clients, keeping previous config",
			slog.String("error", err.Error()))
		return
	}
	r.clients.swap(clients)

	coord := r.Coordinator()
	if coord == nil {
		return
	}
	coord.UpdateSettings(coordinator.SettingsFromConfig(cfg))

	r.logger.Info("reload complete",
		slog.Int("providers", len(cfg.Providers)),
		slog.String("policy", cfg.Concurrency.Policy))
}

func openStore(cfg config.StorageConfig) (ports.CapabilityStore, error) {
	switch cfg.Type {
	case "memory":
		return memory.New(), nil
	case "sqlite", "":
		return sqlite.New(cfg.SQLite.Path)
	}
	return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
}
