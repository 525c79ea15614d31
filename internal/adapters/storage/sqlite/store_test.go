package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/tjfontaine/polyglot-chat-core/internal/capability"
	"github.com/tjfontaine/polyglot-chat-core/internal/core/domain"
)

func TestNew_InvalidPath(t *testing.T) {
	if _, err := New("/invalid/path/that/does/not/exist/test.db"); err == nil {
		t.Error("Expected error for invalid path")
	}
}

func TestStore_SaveLoadReset(t *testing.T) {
	ctx := context.Background()
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer store.Close()

	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := domain.CapabilityRecord{
		Provider:            "openai",
		Submodel:            "gpt-5",
		SupportsTemperature: domain.False,
		SafeMaxTokens:       4096,
		UpdatedAt:           now,
	}
	if err := store.SaveCapability(ctx, rec); err != nil {
		t.Fatalf("SaveCapability failed: %v", err)
	}

	// Upsert replaces the row.
	rec.SupportsReasoning = domain.True
	if err := store.SaveCapability(ctx, rec); err != nil {
		t.Fatalf("SaveCapability (update) failed: %v", err)
	}

	records, err := store.LoadCapabilities(ctx)
	if err != nil {
		t.Fatalf("LoadCapabilities failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	got := records[0]
	if got.SupportsTemperature != domain.False || got.SupportsReasoning != domain.True || got.SafeMaxTokens != 4096 {
		t.Errorf("record = %+v", got)
	}
	if !got.UpdatedAt.Equal(now) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, now)
	}

	if err := store.ResetCapabilities(ctx); err != nil {
		t.Fatalf("ResetCapabilities failed: %v", err)
	}
	records, _ = store.LoadCapabilities(ctx)
	if len(records) != 0 {
		t.Errorf("got %d records after reset", len(records))
	}
}

func TestStore_WarmsCapabilityCacheAcrossRestarts(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "caps.db")

	store, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	cache := capability.New(capability.WithStore(store))
	cache.SetSafeMaxTokens(ctx, "openai", "gpt-4o", 8192)
	cache.SetSupportsTemperature(ctx, "openai", "o3-mini", false)
	store.Close()

	reopened, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	warm := capability.New(capability.WithStore(reopened))
	warm.Load(ctx)
	if n, ok := warm.SafeMaxTokens("openai", "gpt-4o"); !ok || n != 8192 {
		t.Errorf("SafeMaxTokens = %d, %v", n, ok)
	}
	if got := warm.SupportsTemperature("openai", "o3-mini"); got != domain.False {
		t.Errorf("SupportsTemperature = %v", got)
	}
}
