package runtime

import (
	"sync/atomic"

	"github.com/tjfontaine/polyglot-chat-core/internal/core/ports"
)

// clientSet is a ClientResolver whose backing map is replaced on reload.
// Requests already running keep the client they resolved.
type clientSet struct {
	clients atomic.Pointer[ports.StaticClients]
}

func (c *clientSet) swap(clients ports.StaticClients) {
	c.clients.Store(&clients)
}

func (c *clientSet) Client(providerID string) (ports.Client, bool) {
	m := c.clients.Load()
	if m == nil {
		return nil, false
	}
	return m.Client(providerID)
}
