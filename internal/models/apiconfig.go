package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Supported OCR provider types.
const (
	ProviderOpenAICompatible = "OpenAI-Compatible"
	ProviderMistral          = "Mistral API"
)

// Save modes for OCR output.
const (
	SaveModePerPage = "per_page"
	SaveModeMerged  = "merged"
)

// ValidationResult is the outcome of validating an APIConfig.
type ValidationResult struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// TestResult is the outcome of an API connection test.
type TestResult struct {
	Success      bool           `json:"success"`
	Message      string         `json:"message"`
	ResponseTime float64        `json:"response_time,omitempty"` // seconds
	Details      map[string]any `json:"details,omitempty"`
}

// APIConfig is a single named OCR provider configuration.
type APIConfig struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Provider    string         `json:"provider"`
	APIKey      string         `json:"api_key"`
	APIBaseURL  string         `json:"api_base_url"`
	ModelName   string         `json:"model_name"`
	Temperature float64        `json:"temperature"`
	Prompt      string         `json:"prompt"`
	SaveMode    string         `json:"save_mode"`
	IsDefault   bool           `json:"is_default"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	ExtraParams map[string]any `json:"extra_params,omitempty"`
}

// NewAPIConfig creates a config with generated ID and timestamps.
func NewAPIConfig(name, provider string) *APIConfig {
	now := time.Now()
	if name == "" {
		name = fmt.Sprintf("%s config", provider)
	}
	return &APIConfig{
		ID:          uuid.New().String(),
		Name:        name,
		Provider:    provider,
		Temperature: 1.0,
		SaveMode:    SaveModePerPage,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Touch updates the modification timestamp.
func (c *APIConfig) Touch() {
	c.UpdatedAt = time.Now()
}

// Validate checks the config and returns errors (blocking) and warnings (advisory).
func (c *APIConfig) Validate() ValidationResult {
	var errs, warnings []string

	if strings.TrimSpace(c.Name) == "" {
		errs = append(errs, "config name must not be empty")
	}

	if strings.TrimSpace(c.Provider) == "" {
		errs = append(errs, "provider must not be empty")
	} else if c.Provider != ProviderOpenAICompatible && c.Provider != ProviderMistral {
		warnings = append(warnings, fmt.Sprintf("unknown provider: %s", c.Provider))
	}

	if strings.TrimSpace(c.APIKey) == "" {
		errs = append(errs, "API key must not be empty")
	}

	if c.Provider == ProviderOpenAICompatible && strings.TrimSpace(c.APIBaseURL) == "" {
		errs = append(errs, "OpenAI-compatible APIs require a base URL")
	}

	if strings.TrimSpace(c.ModelName) == "" {
		errs = append(errs, "model name must not be empty")
	}

	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		warnings = append(warnings, "temperature should be within 0.0-2.0")
	}

	if c.SaveMode != SaveModePerPage && c.SaveMode != SaveModeMerged {
		warnings = append(warnings, "save mode should be 'per_page' or 'merged'")
	}

	if c.Provider == ProviderOpenAICompatible && c.APIKey != "" && !strings.HasPrefix(c.APIKey, "sk-") {
		warnings = append(warnings, "OpenAI API keys usually start with 'sk-'")
	}
	if c.Provider == ProviderMistral && c.APIKey != "" && len(c.APIKey) < 20 {
		warnings = append(warnings, "Mistral API key looks too short")
	}

	return ValidationResult{
		IsValid:  len(errs) == 0,
		Errors:   errs,
		Warnings: warnings,
	}
}

// ConfigProfile is the collection of API configs plus active/default references.
//
// Invariants: at most one config is default; while configs is non-empty a
// default exists; the first config added becomes both active and default.
type ConfigProfile struct {
	Configs         []*APIConfig `json:"configs"`
	ActiveConfigID  string       `json:"active_config_id,omitempty"`
	DefaultConfigID string       `json:"default_config_id,omitempty"`
	Version         string       `json:"version"`
}

// NewConfigProfile returns an empty profile.
func NewConfigProfile() *ConfigProfile {
	return &ConfigProfile{Version: "1.0"}
}

// Add appends a config. Duplicate names are rejected.
func (p *ConfigProfile) Add(config *APIConfig) bool {
	for _, c := range p.Configs {
		if c.Name == config.Name {
			return false
		}
	}

	if config.IsDefault {
		for _, c := range p.Configs {
			c.IsDefault = false
		}
		p.DefaultConfigID = config.ID
	}

	if len(p.Configs) == 0 {
		config.IsDefault = true
		p.ActiveConfigID = config.ID
		p.DefaultConfigID = config.ID
	}

	p.Configs = append(p.Configs, config)
	return true
}

// Remove deletes a config by ID, repairing the active/default references.
func (p *ConfigProfile) Remove(configID string) bool {
	idx := -1
	for i, c := range p.Configs {
		if c.ID == configID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	p.Configs = append(p.Configs[:idx], p.Configs[idx+1:]...)

	if p.ActiveConfigID == configID {
		switch {
		case p.DefaultConfigID != configID && p.Get(p.DefaultConfigID) != nil:
			p.ActiveConfigID = p.DefaultConfigID
		case len(p.Configs) > 0:
			p.ActiveConfigID = p.Configs[0].ID
		default:
			p.ActiveConfigID = ""
		}
	}

	if p.DefaultConfigID == configID {
		if len(p.Configs) > 0 {
			p.Configs[0].IsDefault = true
			p.DefaultConfigID = p.Configs[0].ID
		} else {
			p.DefaultConfigID = ""
		}
	}

	return true
}

// Update replaces the config with the given ID, keeping the ID stable.
func (p *ConfigProfile) Update(configID string, config *APIConfig) bool {
	idx := -1
	for i, c := range p.Configs {
		if c.ID == configID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	config.ID = configID
	config.Touch()

	if config.IsDefault {
		for _, c := range p.Configs {
			c.IsDefault = false
		}
		p.DefaultConfigID = configID
	}

	p.Configs[idx] = config
	return true
}

// Get returns the config with the given ID, or nil.
func (p *ConfigProfile) Get(configID string) *APIConfig {
	for _, c := range p.Configs {
		if c.ID == configID {
			return c
		}
	}
	return nil
}

// Active returns the currently active config, or nil.
func (p *ConfigProfile) Active() *APIConfig {
	if p.ActiveConfigID == "" {
		return nil
	}
	return p.Get(p.ActiveConfigID)
}

// SetActive marks an existing config as active.
func (p *ConfigProfile) SetActive(configID string) bool {
	if p.Get(configID) == nil {
		return false
	}
	p.ActiveConfigID = configID
	return true
}

// Default returns the default config, or nil.
func (p *ConfigProfile) Default() *APIConfig {
	if p.DefaultConfigID == "" {
		return nil
	}
	return p.Get(p.DefaultConfigID)
}

// SetDefault marks an existing config as the sole default.
func (p *ConfigProfile) SetDefault(configID string) bool {
	config := p.Get(configID)
	if config == nil {
		return false
	}
	for _, c := range p.Configs {
		c.IsDefault = false
	}
	config.IsDefault = true
	p.DefaultConfigID = configID
	return true
}

// ByProvider returns all configs for a provider type.
func (p *ConfigProfile) ByProvider(provider string) []*APIConfig {
	var out []*APIConfig
	for _, c := range p.Configs {
		if c.Provider == provider {
			out = append(out, c)
		}
	}
	return out
}
