// Package capability learns what each (provider, submodel) pair accepts:
// sampling parameters, reasoning parameters and a safe max-output-tokens
// value. Knowledge is tri-state so "not learned yet" stays distinct from
// "learned unsupported".
package capability

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/tjfontaine/polyglot-chat-core/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat-core/internal/core/ports"
)

// Entry is the learned knowledge for one key.
type Entry struct {
	SupportsTemperature domain.TriState
	SupportsReasoning   domain.TriState
	SafeMaxTokens       int // 0 = unknown
	UpdatedAt           time.Time
}

// Cache is safe for concurrent use. Each read-modify-write holds the lock
// for O(1) work only; persistence happens after the lock is released.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]Entry
	store   ports.CapabilityStore
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithStore persists learned values to store.
func WithStore(store ports.CapabilityStore) Option {
	return func(c *Cache) {
		c.store = store
	}
}

// WithLogger sets the logger for the cache.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[Key]Entry),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load warms the cache from the store. A failing store leaves the cache
// empty, which every caller treats as "unknown".
func (c *Cache) Load(ctx context.Context) {
	if c.store == nil {
		return
	}
	records, err := c.store.LoadCapabilities(ctx)
	if err != nil {
		c.logger.Warn("failed to load capabilities, assuming unknown",
			slog.String("error", err.Error()))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, rec := range records {
		entry := Entry{
			SupportsTemperature: rec.SupportsTemperature,
			SupportsReasoning:   rec.SupportsReasoning,
			UpdatedAt:           rec.UpdatedAt,
		}
		if ValidSafeMaxTokens(rec.SafeMaxTokens) {
			entry.SafeMaxTokens = rec.SafeMaxTokens
		}
		c.entries[NewKey(rec.Provider, rec.Submodel)] = entry
	}
	c.logger.Debug("capabilities loaded", slog.Int("count", len(records)))
}

// SupportsTemperature returns the learned sampling support.
func (c *Cache) SupportsTemperature(provider, submodel string) domain.TriState {
	return c.get(provider, submodel).SupportsTemperature
}

// SupportsReasoning returns the learned reasoning/thinking support.
func (c *Cache) SupportsReasoning(provider, submodel string) domain.TriState {
	return c.get(provider, submodel).SupportsReasoning
}

// SafeMaxTokens returns a cached safe value. It never returns a
// non-positive value or one that looks like an HTTP status code.
func (c *Cache) SafeMaxTokens(provider, submodel string) (int, bool) {
	n := c.get(provider, submodel).SafeMaxTokens
	if !ValidSafeMaxTokens(n) {
		return 0, false
	}
	return n, true
}

// SamplingAllowed decides whether sampling fields may be sent: the learned
// value when known, otherwise the name heuristic, otherwise yes.
func (c *Cache) SamplingAllowed(provider, submodel string) bool {
	if v := c.SupportsTemperature(provider, submodel); v.Known() {
		return v.Or(true)
	}
	return InferSampling(submodel).Or(true)
}

// ReasoningAllowed is SamplingAllowed for reasoning fields.
func (c *Cache) ReasoningAllowed(provider, submodel string) bool {
	if v := c.SupportsReasoning(provider, submodel); v.Known() {
		return v.Or(true)
	}
	return InferReasoning(submodel).Or(true)
}

// SetSupportsTemperature records learned sampling support.
func (c *Cache) SetSupportsTemperature(ctx context.Context, provider, submodel string, supported bool) {
	c.update(ctx, provider, submodel, func(e *Entry) {
		e.SupportsTemperature = domain.TriStateOf(supported)
	})
}

// SetSupportsReasoning records learned reasoning support.
func (c *Cache) SetSupportsReasoning(ctx context.Context, provider, submodel string, supported bool) {
	c.update(ctx, provider, submodel, func(e *Entry) {
		e.SupportsReasoning = domain.TriStateOf(supported)
	})
}

// SetSafeMaxTokens records a safe max-output-tokens value. Invalid values
// are rejected and reported as false.
func (c *Cache) SetSafeMaxTokens(ctx context.Context, provider, submodel string, n int) bool {
	if !ValidSafeMaxTokens(n) {
		c.logger.Warn("refusing to cache invalid safe max tokens",
			slog.String("provider", provider),
			slog.String("submodel", submodel),
			slog.Int("value", n))
		return false
	}
	c.update(ctx, provider, submodel, func(e *Entry) {
		e.SafeMaxTokens = n
	})
	return true
}

// Snapshot returns a copy of every entry ordered by key.
func (c *Cache) Snapshot() []domain.CapabilityRecord {
	c.mu.Lock()
	out := make([]domain.CapabilityRecord, 0, len(c.entries))
	for k, e := range c.entries {
		out = append(out, toRecord(k, e))
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].Submodel < out[j].Submodel
	})
	return out
}

// Reset forgets everything, in memory and in the store.
func (c *Cache) Reset(ctx context.Context) {
	c.mu.Lock()
	c.entries = make(map[Key]Entry)
	c.mu.Unlock()

	if c.store == nil {
		return
	}
	if err := c.store.ResetCapabilities(ctx); err != nil {
		c.logger.Warn("failed to reset persisted capabilities",
			slog.String("error", err.Error()))
	}
}

func (c *Cache) get(provider, submodel string) Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[NewKey(provider, submodel)]
}

func (c *Cache) update(ctx context.Context, provider, submodel string, mutate func(*Entry)) {
	key := NewKey(provider, submodel)

	c.mu.Lock()
	entry := c.entries[key]
	mutate(&entry)
	entry.UpdatedAt = c.now()
	c.entries[key] = entry
	c.mu.Unlock()

	if c.store == nil {
		return
	}
	if err := c.store.SaveCapability(ctx, toRecord(key, entry)); err != nil {
		c.logger.Warn("failed to persist capability",
			slog.String("key", key.String()),
			slog.String("error", err.Error()))
	}
}

func toRecord(k Key, e Entry) domain.CapabilityRecord {
	return domain.CapabilityRecord{
		Provider:            k.Provider,
		Submodel:            k.Submodel,
		SupportsTemperature: e.SupportsTemperature,
		SupportsReasoning:   e.SupportsReasoning,
		SafeMaxTokens:       e.SafeMaxTokens,
		UpdatedAt:           e.UpdatedAt,
	}
}

// ValidSafeMaxTokens reports whether n may be stored as a safe value: it
// must be positive and must not be an HTTP status code that leaked out of
// an error message near the word "tokens".
func ValidSafeMaxTokens(n int) bool {
	if n <= 0 {
		return false
	}
	if n >= 500 && n <= 599 {
		return false
	}
	switch n {
	case 400, 401, 403, 404, 408, 413, 414, 422, 429:
		return false
	}
	return true
}
