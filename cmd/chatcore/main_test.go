package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	script := filepath.Join(dir, "script.yaml")
	if err := os.WriteFile(script, []byte("reply: \"pong\"\nchunk_size: 2\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg := `
log:
  level: error
storage:
  type: sqlite
  sqlite:
    path: ` + filepath.Join(dir, "caps.db") + `
providers:
  - name: scripted
    type: replay
    script: ` + script + `
    model: scripted-1
    api_key: test-key
`
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestAsk(t *testing.T) {
	path := writeConfig(t)

	out, err := execute(t, "ask", "--config", path, "--no-memory", "ping")
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	if strings.TrimSpace(out) != "pong" {
		t.Errorf("output = %q, want pong", out)
	}
}

func TestCapsListAndReset(t *testing.T) {
	path := writeConfig(t)

	out, err := execute(t, "caps", "list", "--config", path)
	if err != nil {
		t.Fatalf("caps list failed: %v", err)
	}
	if !strings.Contains(out, "PROVIDER") {
		t.Errorf("missing table header:\n%s", out)
	}

	out, err = execute(t, "caps", "reset", "--config", path)
	if err != nil {
		t.Fatalf("caps reset failed: %v", err)
	}
	if !strings.Contains(out, "cleared") {
		t.Errorf("reset output = %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]string{
		"debug":   "DEBUG",
		"WARN":    "WARN",
		"error":   "ERROR",
		"":        "INFO",
		"verbose": "INFO",
	}
	for in, want := range tests {
		if got := parseLevel(in).String(); got != want {
			t.Errorf("parseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
