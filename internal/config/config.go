// Package config loads quill's JSON configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds the full quill configuration.
type Config struct {
	// DefaultProvider names the entry in Providers used when --provider
	// is not given.
	DefaultProvider string `json:"default_provider"`

	// Providers maps a name to its connection settings.
	Providers map[string]ProviderConfig `json:"providers"`

	Agent AgentConfig `json:"agent"`
	Tools ToolsConfig `json:"tools"`

	// SessionDB is the path of the SQLite session database.
	SessionDB string `json:"session_db,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty"`
}

// ProviderConfig holds settings for a single LLM provider.
type ProviderConfig struct {
	Kind        string  `json:"kind"`               // "anthropic" or "openai"
	Model       string  `json:"model"`              // e.g., "claude-sonnet-4-5"
	APIKey      string  `json:"api_key"`            // can use env var reference: "$ANTHROPIC_API_KEY"
	BaseURL     string  `json:"base_url,omitempty"` // optional compatible-endpoint override
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	// MaxRetries above 1 enables backoff on transient failures.
	MaxRetries int `json:"max_retries,omitempty"`
}

// AgentConfig holds loop settings.
type AgentConfig struct {
	SystemPrompt  string `json:"system_prompt,omitempty"`
	MaxIterations int    `json:"max_iterations,omitempty"`
	WorkDir       string `json:"work_dir,omitempty"`
}

// ToolsConfig controls which built-in tools are registered.
type ToolsConfig struct {
	DisableShell  bool `json:"disable_shell,omitempty"`
	DisableFiles  bool `json:"disable_files,omitempty"`
	DisableSearch bool `json:"disable_search,omitempty"`
}

// DefaultPath returns ~/.quill/config.json.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.json"
	}
	return filepath.Join(home, ".quill", "config.json")
}

// Load reads config from path. An empty path falls back to DefaultPath;
// a missing file at the default path yields environment-driven defaults
// instead of an error.
func Load(path string) (*Config, error) {
	usingDefault := path == ""
	if usingDefault {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if usingDefault && os.IsNotExist(err) {
			return defaultConfig(), nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	// Resolve env var references in all $-prefixed values
	for name, p := range cfg.Providers {
		p.APIKey = resolveEnv(p.APIKey)
		p.BaseURL = resolveEnv(p.BaseURL)
		cfg.Providers[name] = p
	}
	cfg.SessionDB = resolveEnv(cfg.SessionDB)

	cfg.applyDefaults()
	return &cfg, nil
}

// Provider returns the named provider config, or the default when name
// is empty.
func (c *Config) Provider(name string) (ProviderConfig, error) {
	if name == "" {
		name = c.DefaultProvider
	}
	p, ok := c.Providers[name]
	if !ok {
		return ProviderConfig{}, fmt.Errorf("unknown provider %q", name)
	}
	return p, nil
}

func (c *Config) applyDefaults() {
	if c.Agent.MaxIterations <= 0 {
		c.Agent.MaxIterations = 10
	}
	if c.SessionDB == "" {
		c.SessionDB = defaultSessionDB()
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.DefaultProvider == "" && len(c.Providers) == 1 {
		for name := range c.Providers {
			c.DefaultProvider = name
		}
	}
}

// resolveEnv replaces $ENV_VAR references with actual values.
func resolveEnv(s string) string {
	if len(s) > 1 && s[0] == '$' {
		if v := os.Getenv(s[1:]); v != "" {
			return v
		}
	}
	return s
}

// defaultConfig builds a config from environment variables for running
// without a config file.
func defaultConfig() *Config {
	cfg := &Config{
		DefaultProvider: "anthropic",
		Providers: map[string]ProviderConfig{
			"anthropic": {
				Kind:        "anthropic",
				Model:       envOr("QUILL_MODEL", "claude-sonnet-4-5"),
				APIKey:      os.Getenv("ANTHROPIC_API_KEY"),
				MaxTokens:   8192,
				Temperature: 0.7,
			},
			"openai": {
				Kind:        "openai",
				Model:       envOr("QUILL_OPENAI_MODEL", "gpt-4o"),
				APIKey:      os.Getenv("OPENAI_API_KEY"),
				MaxTokens:   8192,
				Temperature: 0.7,
			},
		},
		Agent: AgentConfig{
			MaxIterations: 10,
		},
		SessionDB: defaultSessionDB(),
		LogLevel:  envOr("QUILL_LOG_LEVEL", "info"),
	}
	return cfg
}

func defaultSessionDB() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "quill-sessions.db"
	}
	return filepath.Join(home, ".quill", "sessions.db")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
