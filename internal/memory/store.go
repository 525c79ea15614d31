// Package memory keeps a bounded history of completed conversation turns,
// partitioned by scope (provider and role).
package memory

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/tjfontaine/polyglot-chat-core/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat-core/internal/tokens"
)

// MaxTurns bounds the ring buffer.
const MaxTurns = 20

// MaxLevel bounds how many turns a prompt may include.
const MaxLevel = 10

// ScopeKey builds the "providerId|roleId" scope key.
func ScopeKey(providerID, roleID string) string {
	return providerID + "|" + roleID
}

// Store is a ring buffer of turns for the current scope. A scope change
// clears the buffer; turns are never merged across scopes.
type Store struct {
	mu      sync.Mutex
	scope   string
	turns   []domain.ConversationTurn
	counter tokens.Counter
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithCounter sets the token counter used to trim summary bullets.
func WithCounter(c tokens.Counter) Option {
	return func(s *Store) {
		s.counter = c
	}
}

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		counter: tokens.NewEstimator(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureScope switches to scope, clearing the buffer if it differs from the
// current one. It reports whether a switch happened.
func (s *Store) EnsureScope(scope string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scope == scope {
		return false
	}
	if s.scope != "" {
		s.logger.Info("memory scope changed, clearing history",
			slog.String("from", s.scope),
			slog.String("to", scope),
			slog.Int("dropped_turns", len(s.turns)))
	}
	s.scope = scope
	s.turns = nil
	return true
}

// Scope returns the current scope key.
func (s *Store) Scope() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scope
}

// Append records a turn in scope, evicting the oldest beyond MaxTurns.
// Blank turns are ignored.
func (s *Store) Append(scope string, turn domain.ConversationTurn) {
	if strings.TrimSpace(turn.User) == "" || strings.TrimSpace(turn.Assistant) == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scope != scope {
		s.scope = scope
		s.turns = nil
	}
	s.turns = append(s.turns, turn)
	if over := len(s.turns) - MaxTurns; over > 0 {
		s.turns = append([]domain.ConversationTurn(nil), s.turns[over:]...)
	}
}

// GetRecentTurns returns up to k most recent turns, oldest first.
func (s *Store) GetRecentTurns(k int) []domain.ConversationTurn {
	if k <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := len(s.turns) - k
	if start < 0 {
		start = 0
	}
	out := make([]domain.ConversationTurn, len(s.turns)-start)
	copy(out, s.turns[start:])
	return out
}

// Len returns the number of stored turns.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// SetCounter replaces the token counter used to trim summary bullets.
func (s *Store) SetCounter(c tokens.Counter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter = c
}

// Counter returns the current token counter.
func (s *Store) Counter() tokens.Counter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counter
}

// Clear drops every turn but keeps the scope.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
}
