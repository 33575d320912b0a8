// Package config provides configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultFile is the configuration file looked up in the working directory.
const DefaultFile = "agent.toml"

// Config represents the orchestrator configuration.
type Config struct {
	Agent        AgentConfig        `toml:"agent"`
	LLM          LLMConfig          `toml:"llm"`      // Worker loop model
	Profiles     map[string]Profile `toml:"profiles"` // Per-specialist model overrides
	Retry        RetryConfig        `toml:"retry"`    // Completion request retries
	Sandbox      SandboxConfig      `toml:"sandbox"`
	Browser      BrowserConfig      `toml:"browser"`
	Search       SearchConfig       `toml:"search"`
	Orchestrator OrchestratorConfig `toml:"orchestrator"`
	Storage      StorageConfig      `toml:"storage"`
	Telemetry    TelemetryConfig    `toml:"telemetry"`
	Events       EventsConfig       `toml:"events"` // NATS event publication
}

// AgentConfig contains worker loop settings.
type AgentConfig struct {
	ID            string `toml:"id"`
	Workspace     string `toml:"workspace"`
	MaxIterations int    `toml:"max_iterations"`
	Plan          bool   `toml:"plan"` // Ask the planner before executing
}

// LLMConfig contains LLM provider settings.
type LLMConfig struct {
	Provider  string  `toml:"provider"`
	Model     string  `toml:"model"`
	APIKeyEnv string  `toml:"api_key_env"`
	MaxTokens int     `toml:"max_tokens"`
	BaseURL   string  `toml:"base_url"`   // Custom API endpoint (OpenRouter, LiteLLM, Ollama, LMStudio)
	Thinking  string  `toml:"thinking"`   // Thinking level: auto|off|low|medium|high
	RateLimit float64 `toml:"rate_limit"` // Requests per second across all tasks, 0 = unlimited
	RateBurst int     `toml:"rate_burst"`
}

// Profile overrides the LLM settings for one specialist.
type Profile struct {
	Provider  string `toml:"provider"`
	Model     string `toml:"model"`
	APIKeyEnv string `toml:"api_key_env"`
	MaxTokens int    `toml:"max_tokens"`
	BaseURL   string `toml:"base_url"`
	Thinking  string `toml:"thinking"`
}

// RetryConfig bounds completion retries. Durations use Go syntax ("1s").
type RetryConfig struct {
	MaxAttempts    int     `toml:"max_attempts"`
	InitialBackoff string  `toml:"initial_backoff"`
	MaxBackoff     string  `toml:"max_backoff"`
	Multiplier     float64 `toml:"multiplier"`
}

// SandboxConfig controls EXECUTE and VERIFY.
type SandboxConfig struct {
	Enabled   bool   `toml:"enabled"`
	Timeout   string `toml:"timeout"`
	MaxOutput int    `toml:"max_output"` // bytes kept per stream
}

// BrowserConfig controls the BROWSER effector.
type BrowserConfig struct {
	Enabled    bool   `toml:"enabled"`
	ControlURL string `toml:"control_url"` // Connect to a running Chrome
	Bin        string `toml:"bin"`
	Headless   bool   `toml:"headless"`
	Timeout    string `toml:"timeout"`
	SearchURL  string `toml:"search_url"`
}

// SearchConfig controls SEARCH_WEB.
type SearchConfig struct {
	Enabled  bool   `toml:"enabled"`
	Endpoint string `toml:"endpoint"`
	Timeout  string `toml:"timeout"`
}

// OrchestratorConfig tunes the delegation scheduler.
type OrchestratorConfig struct {
	Concurrency  int      `toml:"concurrency"`
	TaskTimeout  string   `toml:"task_timeout"`
	MinAgreement float64  `toml:"min_agreement"`
	Specialists  []string `toml:"specialists"` // Specialist workers to register, empty = all
}

// StorageConfig contains persistent storage settings.
type StorageConfig struct {
	Path string `toml:"path"` // Base directory for session logs
}

// TelemetryConfig contains telemetry settings.
type TelemetryConfig struct {
	Enabled  bool              `toml:"enabled"`
	Endpoint string            `toml:"endpoint"` // OTLP endpoint (e.g., localhost:4317)
	Protocol string            `toml:"protocol"` // grpc (default) or http
	Insecure bool              `toml:"insecure"` // Disable TLS (default false)
	Headers  map[string]string `toml:"headers"`  // Auth headers (e.g., DD-API-KEY, x-honeycomb-team)
}

// EventsConfig publishes task events and delegations to NATS.
type EventsConfig struct {
	Enabled bool   `toml:"enabled"`
	URL     string `toml:"url"`
	Subject string `toml:"subject"` // Prefix; events go to <subject>.<task>.<type>
}

// New creates a new config with defaults.
func New() *Config {
	return &Config{
		Agent: AgentConfig{
			Workspace:     ".",
			MaxIterations: 20,
			Plan:          true,
		},
		LLM: LLMConfig{
			MaxTokens: 4096,
		},
		Retry: RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: "1s",
			MaxBackoff:     "30s",
			Multiplier:     2,
		},
		Sandbox: SandboxConfig{
			Enabled:   true,
			Timeout:   "30s",
			MaxOutput: 10000,
		},
		Browser: BrowserConfig{
			Headless: true,
			Timeout:  "30s",
		},
		Search: SearchConfig{
			Enabled: true,
			Timeout: "30s",
		},
		Orchestrator: OrchestratorConfig{
			MinAgreement: 0.6,
		},
		Storage: StorageConfig{
			Path: "~/.local/taskforce",
		},
		Telemetry: TelemetryConfig{
			Protocol: "noop",
		},
		Events: EventsConfig{
			URL:     "nats://127.0.0.1:4222",
			Subject: "taskforce",
		},
	}
}

// Default returns a default configuration.
func Default() *Config {
	return New()
}

// LoadFile loads configuration from a TOML file.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDefault loads agent.toml from the current directory. A missing file
// yields the defaults.
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}
	path := filepath.Join(cwd, DefaultFile)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return New(), nil
	}
	return LoadFile(path)
}

// Validate checks values the decoder cannot.
func (c *Config) Validate() error {
	durations := map[string]string{
		"retry.initial_backoff":     c.Retry.InitialBackoff,
		"retry.max_backoff":         c.Retry.MaxBackoff,
		"sandbox.timeout":           c.Sandbox.Timeout,
		"browser.timeout":           c.Browser.Timeout,
		"search.timeout":            c.Search.Timeout,
		"orchestrator.task_timeout": c.Orchestrator.TaskTimeout,
	}
	for key, v := range durations {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	if a := c.Orchestrator.MinAgreement; a < 0 || a > 1 {
		return fmt.Errorf("orchestrator.min_agreement must be between 0 and 1, got %v", a)
	}
	if c.Agent.MaxIterations < 0 {
		return fmt.Errorf("agent.max_iterations must not be negative")
	}
	return nil
}

// Duration parses a validated duration string. Empty or invalid values
// yield zero.
func Duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// StoragePath returns Storage.Path with a leading ~ expanded.
func (c *Config) StoragePath() string {
	p := c.Storage.Path
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

// SessionsDir is where session logs are written.
func (c *Config) SessionsDir() string {
	return filepath.Join(c.StoragePath(), "sessions")
}

// GetAPIKey returns the API key from the configured environment variable.
// If api_key_env is not set, uses the default env var for the provider.
func (c *Config) GetAPIKey() string {
	envVar := c.LLM.APIKeyEnv
	if envVar == "" {
		envVar = DefaultAPIKeyEnv(c.LLM.Provider)
	}
	if envVar == "" {
		return ""
	}
	return os.Getenv(envVar)
}

// DefaultAPIKeyEnv returns the default environment variable name for a provider.
func DefaultAPIKeyEnv(provider string) string {
	switch provider {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	case "google":
		return "GOOGLE_API_KEY"
	case "mistral":
		return "MISTRAL_API_KEY"
	case "groq":
		return "GROQ_API_KEY"
	default:
		return ""
	}
}

// GetProfile returns the LLM config for a specialist profile.
// Falls back to default LLM config if profile not found.
func (c *Config) GetProfile(name string) LLMConfig {
	if name == "" {
		return c.LLM
	}
	profile, ok := c.Profiles[name]
	if !ok {
		return c.LLM
	}
	// Fill in defaults from main LLM config
	result := LLMConfig{
		Provider:  profile.Provider,
		Model:     profile.Model,
		APIKeyEnv: profile.APIKeyEnv,
		MaxTokens: profile.MaxTokens,
		BaseURL:   profile.BaseURL,
		Thinking:  profile.Thinking,
	}
	if result.Provider == "" {
		result.Provider = c.LLM.Provider
	}
	if result.Model == "" {
		result.Model = c.LLM.Model
	}
	if result.APIKeyEnv == "" {
		result.APIKeyEnv = c.LLM.APIKeyEnv
	}
	if result.MaxTokens == 0 {
		result.MaxTokens = c.LLM.MaxTokens
	}
	if result.BaseURL == "" && result.Provider == c.LLM.Provider {
		result.BaseURL = c.LLM.BaseURL
	}
	return result
}
