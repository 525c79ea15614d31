package replay

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/tjfontaine/polyglot-chat-core/internal/core/ports"
	"github.com/tjfontaine/polyglot-chat-core/internal/pkg/config"
)

// ProviderType is the config type served by this package.
const ProviderType = "replay"

// Clients builds a resolver from configured providers. Providers of any
// other type get no client, which the coordinator reports to the user as a
// configuration problem.
func Clients(providers []config.ProviderConfig, logger *slog.Logger) (ports.StaticClients, error) {
	if logger == nil {
		logger = slog.Default()
	}
	clients := make(ports.StaticClients)
	for _, p := range providers {
		if !strings.EqualFold(p.Type, ProviderType) {
			logger.Info("provider has no client in this build",
				slog.String("provider", p.Name),
				slog.String("type", p.Type))
			continue
		}

		var script Script
		if p.Script != "" {
			s, err := LoadScript(p.Script)
			if err != nil {
				return nil, fmt.Errorf("provider %s: %w", p.Name, err)
			}
			script = s
		}
		clients[p.Name] = New(script, WithLogger(logger.With(slog.String("provider", p.Name))))
	}
	return clients, nil
}
