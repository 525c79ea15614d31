package coordinator

import (
	"strings"

	"github.com/tjfontaine/polyglot-chat-core/internal/attempt"
	"github.com/tjfontaine/polyglot-chat-core/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat-core/internal/memory"
	"github.com/tjfontaine/polyglot-chat-core/internal/pacing"
	"github.com/tjfontaine/polyglot-chat-core/internal/pkg/config"
)

// Settings is the user policy the coordinator runs with. A snapshot is
// taken at the start of each request; UpdateSettings swaps it atomically.
type Settings struct {
	Providers       []domain.ProviderProfile
	PrimaryProvider string
	Fallback        attempt.Policy
	Policy          domain.ConcurrencyPolicy

	MemoryLevel   int
	AutoSummarize bool

	Roles      []domain.Role
	ActiveRole string

	PacingEnabled bool
	Pacing        pacing.Params
}

// DefaultSettings returns the out-of-the-box policy.
func DefaultSettings() Settings {
	return Settings{
		Policy:        domain.PolicyCancelPrevious,
		MemoryLevel:   4,
		AutoSummarize: true,
		ActiveRole:    domain.DefaultRoleID,
		Pacing:        pacing.DefaultParams(pacing.ModelConstant),
	}
}

// Normalize fills defaults and clamps ranges.
func (s Settings) Normalize() Settings {
	if !s.Policy.Valid() {
		s.Policy = domain.PolicyCancelPrevious
	}
	s.MemoryLevel = min(max(s.MemoryLevel, 0), memory.MaxLevel)
	if s.ActiveRole == "" {
		s.ActiveRole = domain.DefaultRoleID
	}
	if s.PrimaryProvider == "" && len(s.Providers) > 0 {
		s.PrimaryProvider = s.Providers[0].ID
	}
	s.Pacing = s.Pacing.Normalize()
	return s
}

// Profile implements attempt.Profiles.
func (s *Settings) Profile(id string) (domain.ProviderProfile, bool) {
	for _, p := range s.Providers {
		if strings.EqualFold(p.ID, id) {
			return p, true
		}
	}
	return domain.ProviderProfile{}, false
}

// Primary returns the primary provider's profile.
func (s *Settings) Primary() (domain.ProviderProfile, bool) {
	return s.Profile(s.PrimaryProvider)
}

// Role resolves override, then the active role, then the built-in default.
func (s *Settings) Role(override string) domain.Role {
	for _, id := range []string{override, s.ActiveRole} {
		if id == "" {
			continue
		}
		for _, r := range s.Roles {
			if strings.EqualFold(r.ID, id) {
				return r
			}
		}
	}
	return DefaultRole
}

// Scope is the memory scope key for requests that use the active role.
func (s *Settings) Scope() string {
	return memory.ScopeKey(s.PrimaryProvider, s.Role("").ID)
}

// SettingsFromConfig maps loaded configuration onto coordinator settings.
func SettingsFromConfig(cfg *config.Config) Settings {
	s := DefaultSettings()

	for _, p := range cfg.Providers {
		s.Providers = append(s.Providers, domain.ProviderProfile{
			ID:              p.Name,
			Model:           p.Model,
			APIKey:          p.APIKey,
			BaseURL:         p.BaseURL,
			StreamMode:      domain.StreamMode(p.StreamMode),
			MaxTokens:       p.MaxTokens,
			Temperature:     p.Temperature,
			TopP:            p.TopP,
			ReasoningEffort: p.ReasoningEffort,
		}.Clone())
	}
	s.PrimaryProvider = cfg.PrimaryProvider
	s.Fallback = attempt.Policy{
		Typewriter:       cfg.Fallback.Typewriter,
		BackupURL:        cfg.Fallback.BackupURL,
		BackupBaseURL:    cfg.Fallback.BackupBaseURL,
		BackupProvider:   cfg.Fallback.BackupProvider,
		BackupProviderID: cfg.Fallback.BackupProviderID,
	}
	s.Policy = domain.ConcurrencyPolicy(cfg.Concurrency.Policy)
	s.MemoryLevel = cfg.Memory.Level
	s.AutoSummarize = cfg.Memory.AutoSummarize

	for _, r := range cfg.Roles.Items {
		s.Roles = append(s.Roles, domain.Role{ID: r.ID, Name: r.Name, Prompt: r.Prompt})
	}
	s.ActiveRole = cfg.Roles.Active

	s.PacingEnabled = cfg.Pacing.Enabled
	s.Pacing = cfg.PacingParams()
	return s.Normalize()
}
