package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/JamesWemyss/psyclone/llm"
	"gopkg.in/yaml.v3"
)

// AnthropicConfig represents configuration for Anthropic LLM provider.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key,omitempty"`
	Model  string `yaml:"model,omitempty"`
}

// GeminiConfig represents configuration for the Gemini LLM provider.
type GeminiConfig struct {
	APIKey string `yaml:"api_key,omitempty"`
	Model  string `yaml:"model,omitempty"`
}

// OllamaConfig represents configuration for Ollama LLM provider.
type OllamaConfig struct {
	Host  string `yaml:"host,omitempty"`  // Ollama host (default: "http://localhost:11434")
	Model string `yaml:"model,omitempty"` // Default model name
}

// OpenAIConfig represents configuration for OpenAI LLM provider.
type OpenAIConfig struct {
	APIKey       string `yaml:"api_key,omitempty"`
	BaseURL      string `yaml:"base_url,omitempty"` // Custom base URL (default: official API)
	Model        string `yaml:"model,omitempty"`
	Organization string `yaml:"organization,omitempty"`
}

// AssistantConfig tunes classification and the tool-call loop.
type AssistantConfig struct {
	Timezone       string  `yaml:"timezone,omitempty"`
	MaxIterations  int     `yaml:"max_iterations,omitempty"`
	TimeoutSeconds int     `yaml:"timeout_seconds,omitempty"`
	PollIntervalMS int     `yaml:"poll_interval_ms,omitempty"`
	MaxTokens      int64   `yaml:"max_tokens,omitempty"`
	Temperature    float64 `yaml:"temperature,omitempty"`
	// Transport selects how model turns are fetched: "sync" or "poll".
	Transport string `yaml:"transport,omitempty"`
}

// RemindersConfig drives the key-date reminder job.
type RemindersConfig struct {
	Enabled       bool   `yaml:"enabled,omitempty"`
	Schedule      string `yaml:"schedule,omitempty"` // cron spec, seconds optional
	LookaheadDays int    `yaml:"lookahead_days,omitempty"`
}

// ServerConfig is the full configuration for the psyclone daemon.
type ServerConfig struct {
	Server struct {
		HTTPAddr    string   `yaml:"http_addr,omitempty"`
		GRPCAddr    string   `yaml:"grpc_addr,omitempty"` // TCP address or Unix socket path
		CORSOrigins []string `yaml:"cors_origins,omitempty"`
	} `yaml:"server,omitempty"`

	Database struct {
		Path string `yaml:"path,omitempty"`
	} `yaml:"database,omitempty"`

	// Ordered provider preference; the first configured one wins.
	LLMProviders []string        `yaml:"llm_providers,omitempty"`
	Anthropic    AnthropicConfig `yaml:"anthropic,omitempty"`
	Gemini       GeminiConfig    `yaml:"gemini,omitempty"`
	Ollama       OllamaConfig    `yaml:"ollama,omitempty"`
	OpenAI       OpenAIConfig    `yaml:"openai,omitempty"`

	Assistant AssistantConfig `yaml:"assistant,omitempty"`
	Reminders RemindersConfig `yaml:"reminders,omitempty"`
}

// Defaults returns the built-in configuration.
func Defaults() ServerConfig {
	cfg := ServerConfig{
		LLMProviders: []string{llm.ProviderOpenAI, llm.ProviderAnthropic, llm.ProviderGemini},
		Ollama: OllamaConfig{
			Host: "http://localhost:11434",
		},
		OpenAI: OpenAIConfig{
			Model: llm.DefaultOpenAIModel,
		},
		Assistant: AssistantConfig{
			Timezone:       "Europe/London",
			MaxIterations:  6,
			TimeoutSeconds: 45,
			PollIntervalMS: 750,
			MaxTokens:      1024,
			Temperature:    0.2,
			Transport:      "sync",
		},
		Reminders: RemindersConfig{
			Enabled:       false,
			Schedule:      "0 0 8 * * *",
			LookaheadDays: 7,
		},
	}
	cfg.Server.HTTPAddr = "localhost:8080"
	cfg.Server.GRPCAddr = "localhost:50051"
	cfg.Server.CORSOrigins = []string{"http://localhost:3000"}
	cfg.Database.Path = "~/.psyclone/psyclone.db"
	return cfg
}

// GetServerConfigPath returns the default config file path.
// Can be overridden via PSYCLONE_CONFIG_PATH environment variable.
func GetServerConfigPath() string {
	if envPath := os.Getenv("PSYCLONE_CONFIG_PATH"); envPath != "" {
		return expandPath(envPath)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./.psyclone/config.yaml"
	}
	return filepath.Join(homeDir, ".psyclone", "config.yaml")
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// LoadServerConfig loads defaults, merges the YAML file at path if it exists,
// then applies environment overrides.
func LoadServerConfig(path string) (*ServerConfig, error) {
	cfg := Defaults()

	expandedPath := expandPath(path)
	if _, err := os.Stat(expandedPath); err == nil {
		data, err := os.ReadFile(expandedPath) //#nosec G304 -- intentional file read for config
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", expandedPath, err)
		}

		var fileCfg ServerConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}

		if err := mergo.Merge(&cfg, fileCfg, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	cfg.Database.Path = expandPath(cfg.Database.Path)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *ServerConfig) {
	if v := os.Getenv("PSYCLONE_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("PSYCLONE_HTTP_ADDR"); v != "" {
		cfg.Server.HTTPAddr = v
	}
	if v := os.Getenv("PSYCLONE_GRPC_ADDR"); v != "" {
		cfg.Server.GRPCAddr = v
	}
	if v := os.Getenv("PSYCLONE_TIMEZONE"); v != "" {
		cfg.Assistant.Timezone = v
	}
	if v := os.Getenv("PSYCLONE_LLM_PROVIDERS"); v != "" {
		cfg.LLMProviders = strings.Split(v, ",")
	}
	if v := os.Getenv("PSYCLONE_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Assistant.MaxIterations = n
		}
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		cfg.OpenAI.Model = v
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		cfg.Ollama.Host = v
	}
	if v := os.Getenv("OLLAMA_MODEL"); v != "" {
		cfg.Ollama.Model = v
	}
}

// Validate checks values that would otherwise fail late.
func (c *ServerConfig) Validate() error {
	if _, err := time.LoadLocation(c.Assistant.Timezone); err != nil {
		return fmt.Errorf("invalid assistant.timezone %q: %w", c.Assistant.Timezone, err)
	}
	if c.Assistant.MaxIterations < 1 {
		return fmt.Errorf("assistant.max_iterations must be at least 1")
	}
	if c.Assistant.TimeoutSeconds < 1 {
		return fmt.Errorf("assistant.timeout_seconds must be at least 1")
	}
	switch c.Assistant.Transport {
	case "sync", "poll":
	default:
		return fmt.Errorf("assistant.transport must be sync or poll, got %q", c.Assistant.Transport)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	return nil
}

// Location returns the configured time zone. Validate guarantees it loads.
func (c *ServerConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Assistant.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Timeout returns the wall-clock bound for one orchestrator turn.
func (c *ServerConfig) Timeout() time.Duration {
	return time.Duration(c.Assistant.TimeoutSeconds) * time.Second
}

// PollInterval returns the delay between polls of a pending model turn.
func (c *ServerConfig) PollInterval() time.Duration {
	return time.Duration(c.Assistant.PollIntervalMS) * time.Millisecond
}

// ProviderConfig maps the provider sections onto llm.ProviderConfig.
func (c *ServerConfig) ProviderConfig() *llm.ProviderConfig {
	return &llm.ProviderConfig{
		AnthropicAPIKey: c.Anthropic.APIKey,
		AnthropicModel:  c.Anthropic.Model,
		GeminiAPIKey:    c.Gemini.APIKey,
		GeminiModel:     c.Gemini.Model,
		OllamaHost:      c.Ollama.Host,
		OllamaModel:     c.Ollama.Model,
		OpenAIAPIKey:    c.OpenAI.APIKey,
		OpenAIBaseURL:   c.OpenAI.BaseURL,
		OpenAIModel:     c.OpenAI.Model,
		OpenAIOrg:       c.OpenAI.Organization,
	}
}

// SaveServerConfig saves the configuration to the specified path.
func SaveServerConfig(cfg *ServerConfig, path string) error {
	expandedPath := expandPath(path)

	dir := filepath.Dir(expandedPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(expandedPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
