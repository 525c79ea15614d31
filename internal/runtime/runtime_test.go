package runtime

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tjfontaine/polyglot-chat-core/internal/coordinator"
	"github.com/tjfontaine/polyglot-chat-core/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat-core/internal/core/ports"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

const baseConfig = `
server:
  port: 0
storage:
  type: memory
providers:
  - name: scripted
    type: replay
    script: %SCRIPT%
    model: scripted-1
    api_key: test-key
primary_provider: scripted
concurrency:
  policy: %POLICY%
`

func setup(t *testing.T, policy string) (configPath string) {
	t.Helper()
	dir := t.TempDir()
	script := filepath.Join(dir, "script.yaml")
	writeFile(t, script, "reply: \"hi from replay\"\nchunk_size: 4\n")

	configPath = filepath.Join(dir, "config.yaml")
	cfg := strings.NewReplacer("%SCRIPT%", script, "%POLICY%", policy).Replace(baseConfig)
	writeFile(t, configPath, cfg)
	return configPath
}

type collector struct {
	mu     sync.Mutex
	text   strings.Builder
	done   chan struct{}
	result error
}

func newCollector() *collector {
	return &collector{done: make(chan struct{})}
}

func (c *collector) listener() ports.Listener {
	return ports.ListenerFuncs{
		Next: func(chunk string) {
			c.mu.Lock()
			c.text.WriteString(chunk)
			c.mu.Unlock()
		},
		Complete: func() { close(c.done) },
		Error: func(err error) {
			c.result = err
			close(c.done)
		},
	}
}

func TestNew_RequiresConfig(t *testing.T) {
	if _, err := New(); err == nil {
		t.Error("expected error without config provider")
	}
}

func TestRuntime_StartGenerateShutdown(t *testing.T) {
	path := setup(t, "cancel_previous")

	rt, err := New(WithLogger(quietLogger()), WithFileConfig(path))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := rt.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer rt.Shutdown(context.Background())

	c := newCollector()
	rt.Coordinator().AddListener(c.listener())
	if _, ok := rt.Coordinator().GenerateResponse("hello", coordinator.GenerateOptions{}); !ok {
		t.Fatal("request not admitted")
	}

	select {
	case <-c.done:
	case <-time.After(5 * time.Second):
		t.Fatal("request did not finish")
	}
	if c.result != nil {
		t.Fatalf("request failed: %v", c.result)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if got := c.text.String(); got != "hi from replay" {
		t.Errorf("response = %q", got)
	}
}

func TestRuntime_UnknownProviderTypeReportsConfiguration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, `
storage:
  type: memory
providers:
  - name: openai
    type: openai
    model: gpt-4o
    api_key: sk-test
`)

	rt, err := New(WithLogger(quietLogger()), WithFileConfig(path))
	if err != nil {
		t.Fatal(err)
	}
	if err := rt.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer rt.Shutdown(context.Background())

	c := newCollector()
	rt.Coordinator().AddListener(c.listener())
	rt.Coordinator().GenerateResponse("hello", coordinator.GenerateOptions{})

	select {
	case <-c.done:
	case <-time.After(5 * time.Second):
		t.Fatal("request did not finish")
	}
	if c.result != nil {
		t.Fatalf("configuration problems complete normally, got %v", c.result)
	}
	if c.text.Len() == 0 {
		t.Error("expected a configuration message")
	}
}

func TestRuntime_HotReloadSwapsSettings(t *testing.T) {
	path := setup(t, "cancel_previous")

	rt, err := New(WithLogger(quietLogger()), WithFileConfig(path), WithMemoryStorage())
	if err != nil {
		t.Fatal(err)
	}
	if err := rt.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer rt.Shutdown(context.Background())

	data, _ := os.ReadFile(path)
	writeFile(t, path, strings.Replace(string(data), "cancel_previous", "queue_latest", 1))

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if rt.Coordinator().Settings().Policy == domain.PolicyQueueLatest {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Errorf("policy = %q after reload", rt.Coordinator().Settings().Policy)
}

func TestRuntime_RunStopsOnCancel(t *testing.T) {
	path := setup(t, "ignore_new")

	rt, err := New(WithLogger(quietLogger()), WithFileConfig(path),
		WithSQLite(filepath.Join(t.TempDir(), "caps.db")))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- rt.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for rt.Coordinator() == nil && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(ShutdownTimeout + time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
