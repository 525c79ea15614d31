// Package config loads chat core configuration from a YAML file and
// CHATCORE_ environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/tjfontaine/polyglot-chat-core/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat-core/internal/pacing"
)

// EnvPrefix prefixes environment overrides. A double underscore separates
// nested keys: CHATCORE_SERVER__PORT sets server.port.
const EnvPrefix = "CHATCORE_"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

type Config struct {
	Server          ServerConfig      `koanf:"server"`
	Storage         StorageConfig     `koanf:"storage"`
	Log             LogConfig         `koanf:"log"`
	Providers       []ProviderConfig  `koanf:"providers"`
	PrimaryProvider string            `koanf:"primary_provider"`
	Fallback        FallbackConfig    `koanf:"fallback"`
	Concurrency     ConcurrencyConfig `koanf:"concurrency"`
	Memory          MemoryConfig      `koanf:"memory"`
	Roles           RolesConfig       `koanf:"roles"`
	Pacing          PacingConfig      `koanf:"pacing"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // sqlite, memory
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type LogConfig struct {
	Level string `koanf:"level"` // debug, info, warn, error
}

type ProviderConfig struct {
	Name            string   `koanf:"name"`
	Type            string   `koanf:"type"`   // replay; other types have no transport in this build
	Script          string   `koanf:"script"` // replay script path
	Model           string   `koanf:"model"`
	APIKey          string   `koanf:"api_key"`
	BaseURL         string   `koanf:"base_url"`
	StreamMode      string   `koanf:"stream_mode"` // stream, typewriter
	MaxTokens       int      `koanf:"max_tokens"`
	Temperature     *float64 `koanf:"temperature"`
	TopP            *float64 `koanf:"top_p"`
	ReasoningEffort string   `koanf:"reasoning_effort"`
}

type FallbackConfig struct {
	Typewriter       bool   `koanf:"typewriter"`
	BackupURL        bool   `koanf:"backup_url"`
	BackupBaseURL    string `koanf:"backup_base_url"`
	BackupProvider   bool   `koanf:"backup_provider"`
	BackupProviderID string `koanf:"backup_provider_id"`
}

type ConcurrencyConfig struct {
	Policy string `koanf:"policy"` // cancel_previous, ignore_new, queue_latest
}

type MemoryConfig struct {
	Level         int  `koanf:"level"` // 0-10 turns
	AutoSummarize bool `koanf:"auto_summarize"`
}

type RolesConfig struct {
	Active string       `koanf:"active"`
	Items  []RoleConfig `koanf:"items"`
}

type RoleConfig struct {
	ID     string `koanf:"id"`
	Name   string `koanf:"name"`
	Prompt string `koanf:"prompt"`
}

type PacingConfig struct {
	Enabled  bool                 `koanf:"enabled"`
	Model    string               `koanf:"model"`
	Params   PacingParamsConfig   `koanf:"params"`
	Prefetch PacingPrefetchConfig `koanf:"prefetch"`
}

// PacingParamsConfig overrides the model's tuned defaults. Unset fields
// keep the default.
type PacingParamsConfig struct {
	BaseMs           *float64 `koanf:"base_ms"`
	MinMs            *float64 `koanf:"min_ms"`
	MaxMs            *float64 `koanf:"max_ms"`
	Lambda           *float64 `koanf:"lambda"`
	Amplitude        *float64 `koanf:"amplitude"`
	Period           *float64 `koanf:"period"`
	Phase            *float64 `koanf:"phase"`
	Omega            *float64 `koanf:"omega"`
	Damping          *float64 `koanf:"damping"`
	Rho              *float64 `koanf:"rho"`
	Sigma            *float64 `koanf:"sigma"`
	ThinkProb        *float64 `koanf:"think_prob"`
	PunctuationPause *float64 `koanf:"punctuation_pause"`
	JitterSigma      *float64 `koanf:"jitter_sigma"`
	FloorMs          *float64 `koanf:"floor_ms"`
	CeilingMs        *float64 `koanf:"ceiling_ms"`
}

type PacingPrefetchConfig struct {
	Enabled      *bool `koanf:"enabled"`
	StartChars   *int  `koanf:"start_chars"`
	LowWatermark *int  `koanf:"low_watermark"`
	TopUpTarget  *int  `koanf:"top_up_target"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

var defaults = map[string]any{
	"server.port":           8080,
	"storage.type":          "sqlite",
	"storage.sqlite.path":   "chatcore.db",
	"log.level":             "info",
	"concurrency.policy":    string(domain.PolicyCancelPrevious),
	"memory.level":          4,
	"memory.auto_summarize": true,
	"roles.active":          domain.DefaultRoleID,
	"pacing.model":          string(pacing.ModelConstant),
}

// Load reads path (optional; a missing file is fine), applies CHATCORE_
// environment overrides and defaults, then validates.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("load %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	for key, v := range defaults {
		if !k.Exists(key) {
			if err := k.Set(key, v); err != nil {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	for i := range cfg.Providers {
		cfg.Providers[i].APIKey = substituteEnvVars(cfg.Providers[i].APIKey)
		cfg.Providers[i].BaseURL = substituteEnvVars(cfg.Providers[i].BaseURL)
	}
	cfg.Fallback.BackupBaseURL = substituteEnvVars(cfg.Fallback.BackupBaseURL)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the core cannot run with. Numeric
// ranges are clamped later, when settings are built.
func (c *Config) Validate() error {
	var errs []error

	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		name := strings.ToLower(strings.TrimSpace(p.Name))
		if name == "" {
			errs = append(errs, fmt.Errorf("providers[%d]: name is required", i))
			continue
		}
		if seen[name] {
			errs = append(errs, fmt.Errorf("providers[%d]: duplicate name %q", i, p.Name))
		}
		seen[name] = true

		switch domain.StreamMode(p.StreamMode) {
		case "", domain.StreamModeStream, domain.StreamModeTypewriter:
		default:
			errs = append(errs, fmt.Errorf("providers[%d]: unknown stream_mode %q", i, p.StreamMode))
		}
		if p.Type == "replay" && p.Script == "" {
			errs = append(errs, fmt.Errorf("providers[%d]: replay provider needs a script", i))
		}
	}

	if c.PrimaryProvider != "" && !seen[strings.ToLower(c.PrimaryProvider)] {
		errs = append(errs, fmt.Errorf("primary_provider %q is not configured", c.PrimaryProvider))
	}
	if c.Fallback.BackupProvider && c.Fallback.BackupProviderID != "" && !seen[strings.ToLower(c.Fallback.BackupProviderID)] {
		errs = append(errs, fmt.Errorf("fallback.backup_provider_id %q is not configured", c.Fallback.BackupProviderID))
	}
	if !domain.ConcurrencyPolicy(c.Concurrency.Policy).Valid() {
		errs = append(errs, fmt.Errorf("concurrency.policy %q is unknown", c.Concurrency.Policy))
	}
	if !pacing.Model(c.Pacing.Model).Valid() {
		errs = append(errs, fmt.Errorf("pacing.model %q is unknown", c.Pacing.Model))
	}
	switch c.Storage.Type {
	case "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("storage.type %q is unknown", c.Storage.Type))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// PacingParams overlays configured coefficients on the model's defaults.
func (c *Config) PacingParams() pacing.Params {
	p := pacing.DefaultParams(pacing.Model(c.Pacing.Model))
	o := c.Pacing.Params
	for _, f := range []struct {
		src *float64
		dst *float64
	}{
		{o.BaseMs, &p.BaseMs}, {o.MinMs, &p.MinMs}, {o.MaxMs, &p.MaxMs},
		{o.Lambda, &p.Lambda}, {o.Amplitude, &p.Amplitude}, {o.Period, &p.Period},
		{o.Phase, &p.Phase}, {o.Omega, &p.Omega}, {o.Damping, &p.Damping},
		{o.Rho, &p.Rho}, {o.Sigma, &p.Sigma}, {o.ThinkProb, &p.ThinkProb},
		{o.PunctuationPause, &p.PunctuationPause}, {o.JitterSigma, &p.JitterSigma},
		{o.FloorMs, &p.FloorMs}, {o.CeilingMs, &p.CeilingMs},
	} {
		if f.src != nil {
			*f.dst = *f.src
		}
	}

	pf := c.Pacing.Prefetch
	if pf.Enabled != nil {
		p.Prefetch.Enabled = *pf.Enabled
	}
	if pf.StartChars != nil {
		p.Prefetch.StartChars = *pf.StartChars
	}
	if pf.LowWatermark != nil {
		p.Prefetch.LowWatermark = *pf.LowWatermark
	}
	if pf.TopUpTarget != nil {
		p.Prefetch.TopUpTarget = *pf.TopUpTarget
	}
	return p.Normalize()
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
