// Package attempt builds the ordered fallback chain tried for a request.
// Attempts run from least to most disruptive: the primary configuration,
// a non-streaming typewriter render, the primary provider on a backup
// base URL, and finally a different backup provider.
package attempt

import (
	"fmt"
	"strings"

	"github.com/tjfontaine/polyglot-chat-core/internal/core/domain"
)

// Policy holds the user's fallback flags.
type Policy struct {
	// Typewriter retries the primary provider in typewriter mode.
	Typewriter bool

	// BackupURL retries the primary provider against BackupBaseURL.
	BackupURL     bool
	BackupBaseURL string

	// BackupProvider falls back to the provider named BackupProviderID.
	BackupProvider   bool
	BackupProviderID string
}

// Profiles resolves a stored provider profile by ID.
type Profiles interface {
	Profile(id string) (domain.ProviderProfile, bool)
}

// ProfileMap is a Profiles backed by a map.
type ProfileMap map[string]domain.ProviderProfile

// Profile implements Profiles.
func (m ProfileMap) Profile(id string) (domain.ProviderProfile, bool) {
	p, ok := m[id]
	return p, ok
}

// Build returns the attempts for one request. The primary attempt is
// always first; every profile is cloned so attempts never alias settings.
func Build(primary domain.ProviderProfile, policy Policy, profiles Profiles) []domain.Attempt {
	chain := []domain.Attempt{{
		Kind:     domain.AttemptPrimary,
		Provider: primary.Clone(),
	}}

	if policy.Typewriter && primary.StreamMode != domain.StreamModeTypewriter {
		chain = append(chain, domain.Attempt{
			Kind:               domain.AttemptTypewriter,
			Provider:           primary.Clone(),
			StreamModeOverride: domain.StreamModeTypewriter,
		})
	}

	if backupURL := strings.TrimSpace(policy.BackupBaseURL); policy.BackupURL && backupURL != "" {
		chain = append(chain, domain.Attempt{
			Kind:            domain.AttemptBackupURL,
			Provider:        primary.Clone(),
			BaseURLOverride: backupURL,
		})
	}

	if policy.BackupProvider && profiles != nil {
		id := strings.TrimSpace(policy.BackupProviderID)
		if id != "" && !strings.EqualFold(id, primary.ID) {
			if backup, ok := profiles.Profile(id); ok {
				chain = append(chain, domain.Attempt{
					Kind:     domain.AttemptBackupProvider,
					Provider: backup.Clone(),
				})
			}
		}
	}

	for i := range chain {
		chain[i].Index = i
	}
	return chain
}

// Describe renders the chain for logs, e.g. "primary(openai) > typewriter(openai)".
func Describe(chain []domain.Attempt) string {
	parts := make([]string, len(chain))
	for i, a := range chain {
		parts[i] = fmt.Sprintf("%s(%s)", a.Kind, a.Provider.ID)
	}
	return strings.Join(parts, " > ")
}
