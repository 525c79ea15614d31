// Package ports defines the core interfaces of the chat client core.
// This file contains the LLM client contract consumed by the stream consumer.
package ports

import (
	"context"

	"github.com/tjfontaine/polyglot-chat-core/internal/core/domain"
)

// Client submits one call to a language model backend.
//
// Stream returns a push-style channel: any number of content deltas followed
// by at most one terminal event (done or error), then the channel is closed.
// A channel closed without a terminal event counts as done. Cancelling ctx is
// the cancel handle; implementations stop producing and close the channel,
// but server-side generation is not guaranteed to stop.
//
// An error returned directly from Stream is treated the same as an error
// event emitted before any content.
type Client interface {
	Stream(ctx context.Context, req *domain.CallRequest) (<-chan domain.StreamEvent, error)
}

// ClientResolver looks up the client that serves a provider ID.
type ClientResolver interface {
	Client(providerID string) (Client, bool)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, req *domain.CallRequest) (<-chan domain.StreamEvent, error)

// Stream calls f.
func (f ClientFunc) Stream(ctx context.Context, req *domain.CallRequest) (<-chan domain.StreamEvent, error) {
	return f(ctx, req)
}

// StaticClients resolves providers from a fixed map.
type StaticClients map[string]Client

// Client implements ClientResolver.
func (s StaticClients) Client(providerID string) (Client, bool) {
	c, ok := s[providerID]
	return c, ok && c != nil
}
