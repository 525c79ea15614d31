package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tjfontaine/polyglot-chat-core/internal/pkg/config"
)

func TestNewProvider_EmptyPath(t *testing.T) {
	if _, err := NewProvider(""); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestProvider_LoadAndWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("concurrency:\n  policy: cancel_previous\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	p, err := NewProvider(path)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := p.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Concurrency.Policy != "cancel_previous" {
		t.Fatalf("Policy = %q", cfg.Concurrency.Policy)
	}

	changes := make(chan *config.Config, 8)
	if err := p.Watch(ctx, func(c *config.Config) { changes <- c }); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	// An invalid file keeps the old configuration.
	if err := os.WriteFile(path, []byte("concurrency:\n  policy: nonsense\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("concurrency:\n  policy: queue_latest\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-changes:
			if c.Concurrency.Policy == "nonsense" {
				t.Fatal("invalid config was delivered")
			}
			if c.Concurrency.Policy == "queue_latest" {
				if p.Current().Concurrency.Policy != "queue_latest" {
					t.Error("Current() not updated")
				}
				return
			}
		case <-deadline:
			t.Fatal("no reload observed")
		}
	}
}
