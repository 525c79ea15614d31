package coordinator

import (
	"testing"

	"github.com/tjfontaine/polyglot-chat-core/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat-core/internal/pacing"
	"github.com/tjfontaine/polyglot-chat-core/internal/pkg/config"
)

func TestSettingsFromConfig(t *testing.T) {
	temp := 0.3
	cfg := &config.Config{
		Providers: []config.ProviderConfig{
			{Name: "local", Model: "llama3", APIKey: "k", MaxTokens: 2048, Temperature: &temp},
			{Name: "backup", Model: "claude", StreamMode: "typewriter"},
		},
		Fallback:    config.FallbackConfig{Typewriter: true, BackupProvider: true, BackupProviderID: "backup"},
		Concurrency: config.ConcurrencyConfig{Policy: "queue_latest"},
		Memory:      config.MemoryConfig{Level: 42},
		Roles: config.RolesConfig{
			Active: "poet",
			Items:  []config.RoleConfig{{ID: "poet", Prompt: "Answer in verse."}},
		},
		Pacing: config.PacingConfig{Enabled: true, Model: "sine"},
	}

	s := SettingsFromConfig(cfg)

	if s.PrimaryProvider != "local" {
		t.Errorf("PrimaryProvider = %q, want first provider", s.PrimaryProvider)
	}
	if s.MemoryLevel != 10 {
		t.Errorf("MemoryLevel = %d, want clamped to 10", s.MemoryLevel)
	}
	if s.Policy != domain.PolicyQueueLatest {
		t.Errorf("Policy = %q", s.Policy)
	}
	if s.Role("").Prompt != "Answer in verse." {
		t.Errorf("active role = %+v", s.Role(""))
	}
	if s.Role("missing").ID != "poet" {
		t.Error("unknown override should fall back to the active role")
	}
	if !s.PacingEnabled || s.Pacing.Model != pacing.ModelSine {
		t.Errorf("pacing = %v %s", s.PacingEnabled, s.Pacing.Model)
	}

	p, ok := s.Primary()
	if !ok || p.MaxTokens != 2048 || p.Temperature == nil || *p.Temperature != 0.3 {
		t.Errorf("primary = %+v", p)
	}
	*p.Temperature = 1
	if temp != 0.3 {
		t.Error("settings alias the config temperature")
	}
	if b, ok := s.Profile("BACKUP"); !ok || b.StreamMode != domain.StreamModeTypewriter {
		t.Errorf("backup profile = %+v, %v", b, ok)
	}
	if s.Scope() != "local|poet" {
		t.Errorf("Scope() = %q", s.Scope())
	}
}

func TestSettingsNormalize(t *testing.T) {
	s := Settings{Policy: "bogus", MemoryLevel: -3}.Normalize()
	if s.Policy != domain.PolicyCancelPrevious || s.MemoryLevel != 0 || s.ActiveRole != domain.DefaultRoleID {
		t.Errorf("Normalize() = %+v", s)
	}
	if s.Role("").ID != domain.DefaultRoleID {
		t.Error("empty role list should resolve to the default role")
	}
}
