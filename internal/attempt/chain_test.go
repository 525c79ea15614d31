package attempt

import (
	"testing"

	"github.com/tjfontaine/polyglot-chat-core/internal/core/domain"
)

func TestBuild(t *testing.T) {
	openai := domain.ProviderProfile{ID: "openai", Model: "gpt-4o", BaseURL: "https://api.openai.com/v1", StreamMode: domain.StreamModeStream}
	anthropic := domain.ProviderProfile{ID: "anthropic", Model: "claude-sonnet-4"}
	profiles := ProfileMap{"openai": openai, "anthropic": anthropic}

	tests := []struct {
		name    string
		primary domain.ProviderProfile
		policy  Policy
		want    []domain.AttemptKind
	}{
		{
			name:    "primary only",
			primary: openai,
			want:    []domain.AttemptKind{domain.AttemptPrimary},
		},
		{
			name:    "full chain in order",
			primary: openai,
			policy: Policy{
				Typewriter:       true,
				BackupURL:        true,
				BackupBaseURL:    "https://backup.example.com/v1",
				BackupProvider:   true,
				BackupProviderID: "anthropic",
			},
			want: []domain.AttemptKind{
				domain.AttemptPrimary,
				domain.AttemptTypewriter,
				domain.AttemptBackupURL,
				domain.AttemptBackupProvider,
			},
		},
		{
			name: "typewriter skipped when already typewriter",
			primary: domain.ProviderProfile{
				ID: "openai", StreamMode: domain.StreamModeTypewriter,
			},
			policy: Policy{Typewriter: true},
			want:   []domain.AttemptKind{domain.AttemptPrimary},
		},
		{
			name:    "backup url flag without url",
			primary: openai,
			policy:  Policy{BackupURL: true, BackupBaseURL: "  "},
			want:    []domain.AttemptKind{domain.AttemptPrimary},
		},
		{
			name:    "backup url present but flag off",
			primary: openai,
			policy:  Policy{BackupBaseURL: "https://backup.example.com"},
			want:    []domain.AttemptKind{domain.AttemptPrimary},
		},
		{
			name:    "backup provider same as primary",
			primary: openai,
			policy:  Policy{BackupProvider: true, BackupProviderID: "OpenAI"},
			want:    []domain.AttemptKind{domain.AttemptPrimary},
		},
		{
			name:    "backup provider not configured",
			primary: openai,
			policy:  Policy{BackupProvider: true, BackupProviderID: "gemini"},
			want:    []domain.AttemptKind{domain.AttemptPrimary},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := Build(tt.primary, tt.policy, profiles)
			if len(chain) != len(tt.want) {
				t.Fatalf("Build() = %s, want %v", Describe(chain), tt.want)
			}
			for i, a := range chain {
				if a.Kind != tt.want[i] {
					t.Errorf("attempt %d kind = %s, want %s", i, a.Kind, tt.want[i])
				}
				if a.Index != i {
					t.Errorf("attempt %d index = %d", i, a.Index)
				}
			}
		})
	}
}

func TestBuild_AttemptOverrides(t *testing.T) {
	temp := 0.4
	primary := domain.ProviderProfile{ID: "openai", Model: "gpt-4o", BaseURL: "https://primary", Temperature: &temp}
	backup := domain.ProviderProfile{ID: "anthropic", Model: "claude", BaseURL: "https://anthropic", StreamMode: domain.StreamModeTypewriter}

	chain := Build(primary, Policy{
		Typewriter:       true,
		BackupURL:        true,
		BackupBaseURL:    "https://backup",
		BackupProvider:   true,
		BackupProviderID: "anthropic",
	}, ProfileMap{"anthropic": backup})

	if chain[0].StreamMode() != domain.StreamModeStream || chain[0].BaseURL() != "https://primary" {
		t.Errorf("primary resolved to %s %s", chain[0].StreamMode(), chain[0].BaseURL())
	}
	if chain[1].StreamMode() != domain.StreamModeTypewriter || chain[1].Provider.ID != "openai" {
		t.Errorf("typewriter attempt = %+v", chain[1])
	}
	if chain[2].BaseURL() != "https://backup" || chain[2].StreamMode() != domain.StreamModeStream {
		t.Errorf("backup url attempt resolved to %s %s", chain[2].StreamMode(), chain[2].BaseURL())
	}
	if chain[3].Provider.Model != "claude" || chain[3].StreamMode() != domain.StreamModeTypewriter {
		t.Errorf("backup provider should use its own stored fields: %+v", chain[3])
	}

	// Attempts do not alias the caller's profile.
	*chain[0].Provider.Temperature = 1.9
	if temp != 0.4 {
		t.Error("attempt aliased primary temperature")
	}
}

func TestDescribe(t *testing.T) {
	chain := Build(domain.ProviderProfile{ID: "openai"}, Policy{Typewriter: true}, nil)
	if got := Describe(chain); got != "primary(openai) > typewriter(openai)" {
		t.Errorf("Describe() = %q", got)
	}
}
