package server

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/tjfontaine/polyglot-chat-core/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat-core/internal/core/ports"
)

// subscriberBuffer is how many events a slow SSE client may lag behind
// before it starts losing events.
const subscriberBuffer = 256

// Event is one listener callback as sent to SSE clients.
type Event struct {
	Type     string `json:"type"` // prepare, next, complete, error
	Chunk    string `json:"chunk,omitempty"`
	Error    string `json:"error,omitempty"`
	Canceled bool   `json:"canceled,omitempty"`
}

// hub fans coordinator callbacks out to SSE subscribers.
type hub struct {
	mu     sync.Mutex
	subs   map[chan Event]struct{}
	closed bool
	logger *slog.Logger
}

var _ ports.Listener = (*hub)(nil)

func newHub(logger *slog.Logger) *hub {
	return &hub{
		subs:   make(map[chan Event]struct{}),
		logger: logger,
	}
}

// subscribe returns a channel of events and a function that releases it.
// The channel is closed when the hub closes.
func (h *hub) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}
}

func (h *hub) subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}

func (h *hub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.logger.Warn("sse subscriber lagging, event dropped", slog.String("type", ev.Type))
		}
	}
}

func (h *hub) OnAIPrepare()          { h.publish(Event{Type: "prepare"}) }
func (h *hub) OnAINext(chunk string) { h.publish(Event{Type: "next", Chunk: chunk}) }
func (h *hub) OnAIComplete()         { h.publish(Event{Type: "complete"}) }

func (h *hub) OnAIError(err error) {
	h.publish(Event{
		Type:     "error",
		Error:    err.Error(),
		Canceled: errors.Is(err, domain.ErrCanceled),
	})
}
