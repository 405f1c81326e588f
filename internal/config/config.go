// Package config handles Kestrel configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/kestrel/config.yaml, /etc/kestrel/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "kestrel", "config.yaml"))
	}

	paths = append(paths, "/etc/kestrel/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Kestrel configuration.
type Config struct {
	Listen     ListenConfig     `yaml:"listen"`
	LLM        LLMConfig        `yaml:"llm"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Agent      AgentConfig      `yaml:"agent"`
	Browser    BrowserConfig    `yaml:"browser"`
	Search     SearchConfig     `yaml:"search"`
	Email      EmailConfig      `yaml:"email"`
	DataDir    string           `yaml:"data_dir"`
	LogLevel   string           `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// LLMConfig defines the chat model endpoint settings. The endpoint speaks
// the OpenAI chat-completions wire format.
type LLMConfig struct {
	BaseURL         string  `yaml:"base_url"`
	APIKey          string  `yaml:"api_key"`
	Model           string  `yaml:"model"`
	ExtractionModel string  `yaml:"extraction_model"` // small/fast model for memory distillation
	Temperature     float64 `yaml:"temperature"`
}

// EmbeddingsConfig defines embedding generation settings.
//
// Dimension is the authoritative vector size for the whole process: the
// memory and knowledge stores reject vectors of any other length rather
// than storing rows that would degrade similarity search silently.
type EmbeddingsConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
}

// AgentConfig tunes the agent loop.
type AgentConfig struct {
	// MaxTurns bounds reasoning/tool-dispatch cycles per run. Exceeding
	// it aborts the run with an error rather than truncating silently.
	MaxTurns int `yaml:"max_turns"`
	// HistoryWindow is how many persisted messages are fed back to the
	// model when a session resumes. Zero means the default (50).
	HistoryWindow int `yaml:"history_window"`
}

// BrowserConfig defines the session browser settings.
type BrowserConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Headless    bool   `yaml:"headless"`
	UserAgent   string `yaml:"user_agent"`    // empty = browser default
	UserDataDir string `yaml:"user_data_dir"` // persistent profile (cookies, logins)
}

// SearchConfig selects the web search provider.
type SearchConfig struct {
	Provider string      `yaml:"provider"` // "duckduckgo" (default) or "brave"
	Brave    BraveConfig `yaml:"brave"`
}

// BraveConfig holds the Brave Search API key.
type BraveConfig struct {
	APIKey string `yaml:"api_key"`
}

// EmailConfig defines the outbound email settings. Email tools are only
// registered when Enabled is true and SMTP is configured.
type EmailConfig struct {
	Enabled bool       `yaml:"enabled"`
	From    string     `yaml:"from"` // sender, e.g. "Kestrel <agent@example.com>"
	SMTP    SMTPConfig `yaml:"smtp"`
}

// SMTPConfig defines the SMTP connection.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	StartTLS bool   `yaml:"starttls"` // true for port 587, false for implicit TLS on 465
}

// Load reads configuration from a YAML file. Environment variable
// references in the file ($VAR or ${VAR}) are expanded before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		LLM: LLMConfig{
			BaseURL:     "https://integrate.api.nvidia.com/v1",
			Model:       "meta/llama-3.1-8b-instruct",
			Temperature: 0.2,
		},
		Embeddings: EmbeddingsConfig{
			BaseURL:   "https://integrate.api.nvidia.com/v1",
			Model:     "nvidia/nv-embedqa-e5-v5",
			Dimension: 1024,
		},
		Agent: AgentConfig{
			MaxTurns:      12,
			HistoryWindow: 50,
		},
		Browser: BrowserConfig{
			Enabled:  true,
			Headless: true,
		},
		Search:  SearchConfig{Provider: "duckduckgo"},
		DataDir: "data",
	}
}

// Validate checks invariants that must hold before startup proceeds.
func (c *Config) Validate() error {
	if c.Embeddings.Dimension <= 0 {
		return fmt.Errorf("embeddings.dimension must be positive, got %d", c.Embeddings.Dimension)
	}
	if c.Agent.MaxTurns <= 0 {
		return fmt.Errorf("agent.max_turns must be positive, got %d", c.Agent.MaxTurns)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if c.Email.Enabled && c.Email.SMTP.Host == "" {
		return fmt.Errorf("email.enabled requires email.smtp.host")
	}
	return nil
}
