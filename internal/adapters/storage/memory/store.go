// Package memory provides an in-memory CapabilityStore for tests and for
// running without a database.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/tjfontaine/polyglot-chat-core/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat-core/internal/core/ports"
)

// Store keeps capability records in a map.
type Store struct {
	mu      sync.RWMutex
	records map[string]domain.CapabilityRecord
}

var _ ports.CapabilityStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{records: make(map[string]domain.CapabilityRecord)}
}

func (s *Store) LoadCapabilities(ctx context.Context) ([]domain.CapabilityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.CapabilityRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].Submodel < out[j].Submodel
	})
	return out, nil
}

func (s *Store) SaveCapability(ctx context.Context, rec domain.CapabilityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Provider+"|"+rec.Submodel] = rec
	return nil
}

func (s *Store) ResetCapabilities(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]domain.CapabilityRecord)
	return nil
}

func (s *Store) Close() error { return nil }
