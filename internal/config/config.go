// Package config holds the deployment-level knobs the dispatch core is
// constructed with: the tool policy profile, capability flags, run-settings
// base, memory store location, model transport, and logging.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"lingoloop/internal/autotune"
	"lingoloop/internal/policy"
)

// Config is the full deployment configuration.
type Config struct {
	Name string `yaml:"name"`

	LLM         LLMConfig         `yaml:"llm"`
	Memory      MemoryConfig      `yaml:"memory"`
	Policy      PolicyConfig      `yaml:"policy"`
	RunSettings RunSettingsConfig `yaml:"run_settings"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// LLMConfig configures the model transport.
type LLMConfig struct {
	APIKey        string   `yaml:"api_key"`
	Model         string   `yaml:"model"`
	AllowedModels []string `yaml:"allowed_models"`
}

// MemoryConfig configures the translation-memory store.
type MemoryConfig struct {
	// DatabasePath is the SQLite file; empty disables memory.
	DatabasePath string `yaml:"database_path"`
}

// PolicyConfig feeds the effective policy resolver.
type PolicyConfig struct {
	// ProfileDefaults is the per-deployment tool baseline (on/off/auto).
	ProfileDefaults map[string]string `yaml:"profile_defaults"`

	// UserOverrides are explicit end-user tool choices.
	UserOverrides map[string]string `yaml:"user_overrides"`

	// Capabilities flags what the hosting surface supports
	// (e.g. "streaming", "classifier", "category_selector").
	Capabilities map[string]bool `yaml:"capabilities"`
}

// RunSettingsConfig seeds a job's layered run settings.
type RunSettingsConfig struct {
	Base          map[string]any `yaml:"base"`
	UserOverrides map[string]any `yaml:"user_overrides"`

	// AutoTuneMode is "auto" or "ask_user".
	AutoTuneMode string `yaml:"autotune_mode"`
}

// LoggingConfig configures the zap loggers.
type LoggingConfig struct {
	Level       string          `yaml:"level"`
	Development bool            `yaml:"development"`
	Disabled    map[string]bool `yaml:"disabled"`
}

// Default returns a config suitable for local development.
func Default() *Config {
	return &Config{
		Name: "lingoloop",
		LLM: LLMConfig{
			Model:         "gemini-2.0-flash",
			AllowedModels: []string{"gemini-2.0-flash", "gemini-2.5-pro"},
		},
		Memory: MemoryConfig{DatabasePath: ".lingoloop/memory.db"},
		Policy: PolicyConfig{
			ProfileDefaults: map[string]string{},
			UserOverrides:   map[string]string{},
			Capabilities: map[string]bool{
				"streaming":         true,
				"classifier":        true,
				"category_selector": true,
			},
		},
		RunSettings: RunSettingsConfig{
			Base: map[string]any{
				"model":               "gemini-2.0-flash",
				"temperature":         0.3,
				"batchSize":           4,
				"maxParallelRequests": 1,
				"contextWindowBlocks": 2,
				"qcEnabled":           false,
				"streaming":           true,
			},
			UserOverrides: map[string]any{},
			AutoTuneMode:  "auto",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads a YAML config file, layering it over the defaults.
// LINGOLOOP_API_KEY (then GEMINI_API_KEY) overrides the file's API key so
// secrets stay out of checked-in config.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if key := os.Getenv("LINGOLOOP_API_KEY"); key != "" {
		cfg.LLM.APIKey = key
	} else if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		cfg.LLM.APIKey = key
	}
	return cfg, nil
}

// ProfileModes converts the profile defaults into resolver modes,
// dropping invalid values.
func (c *Config) ProfileModes() map[string]policy.Mode {
	return toModes(c.Policy.ProfileDefaults)
}

// UserModes converts the user overrides into resolver modes.
func (c *Config) UserModes() map[string]policy.Mode {
	return toModes(c.Policy.UserOverrides)
}

// NewRunSettings builds a job's layered run settings from the config.
func (c *Config) NewRunSettings() *autotune.RunSettings {
	rs := autotune.NewRunSettings(
		autotune.Settings(c.RunSettings.Base),
		autotune.Settings(c.RunSettings.UserOverrides),
	)
	if c.RunSettings.AutoTuneMode != "" {
		rs.AutoTune.Mode = c.RunSettings.AutoTuneMode
	}
	return rs
}

func toModes(raw map[string]string) map[string]policy.Mode {
	out := make(map[string]policy.Mode, len(raw))
	for k, v := range raw {
		m := policy.Mode(v)
		if m.Valid() {
			out[k] = m
		}
	}
	return out
}
