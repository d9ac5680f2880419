package llm

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
)

// Default models used when configuration leaves the model empty.
const (
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultAnthropicModel = "claude-haiku-4-5"
	DefaultGeminiModel    = "gemini-2.5-flash"
)

// ClientKey uniquely identifies an LLM client configuration.
type ClientKey struct {
	Provider     string
	Model        string
	APIKey       string // For credential-based providers
	Host         string // For Ollama
	BaseURL      string // For OpenAI
	Organization string // For OpenAI
}

// String renders the key for cache lookups. The API key is not included.
func (k ClientKey) String() string {
	return strings.Join([]string{k.Provider, k.Model, k.Host, k.BaseURL, k.Organization}, ":")
}

// ProviderConfig holds the configuration needed for provider resolution.
// It lives here rather than in config to avoid an import cycle.
type ProviderConfig struct {
	AnthropicAPIKey string
	AnthropicModel  string
	GeminiAPIKey    string
	GeminiModel     string
	OllamaHost      string
	OllamaModel     string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIModel     string
	OpenAIOrg       string
}

// ProviderRegistry picks the first usable provider from an ordered
// preference list. Client construction is left to the caller.
type ProviderRegistry struct {
	preferences []string
	mu          sync.RWMutex
	config      *ProviderConfig
}

// NewProviderRegistry creates a registry that tries providers in the given order.
func NewProviderRegistry(providerConfig *ProviderConfig, preferences []string) *ProviderRegistry {
	if providerConfig == nil {
		providerConfig = &ProviderConfig{}
	}
	return &ProviderRegistry{
		preferences: append([]string(nil), preferences...),
		config:      providerConfig,
	}
}

// IsProviderEnabled checks if a provider is in the preference list.
func (r *ProviderRegistry) IsProviderEnabled(provider string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.preferences {
		if p == provider {
			return true
		}
	}
	return false
}

// IsProviderConfigured checks if a provider has the credentials or host it needs.
func (r *ProviderRegistry) IsProviderConfigured(provider string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isProviderConfiguredUnlocked(provider)
}

// Resolve returns a ClientKey for the first enabled and configured provider.
// A non-empty modelOverride replaces the provider default.
func (r *ProviderRegistry) Resolve(modelOverride string) (*ClientKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.preferences) == 0 {
		return nil, fmt.Errorf("no providers enabled")
	}

	var attempted []string
	for _, provider := range r.preferences {
		attempted = append(attempted, provider)
		if !r.isProviderConfiguredUnlocked(provider) {
			continue
		}
		key, err := r.resolveProviderConfig(provider, modelOverride)
		if err != nil {
			continue
		}
		return key, nil
	}
	return nil, fmt.Errorf("no available provider from preferences %v", attempted)
}

// isProviderConfiguredUnlocked must be called with r.mu held.
func (r *ProviderRegistry) isProviderConfiguredUnlocked(provider string) bool {
	switch provider {
	case ProviderAnthropic:
		return firstNonEmpty(r.config.AnthropicAPIKey, os.Getenv("ANTHROPIC_API_KEY")) != ""
	case ProviderGemini:
		return firstNonEmpty(r.config.GeminiAPIKey, os.Getenv("GEMINI_API_KEY")) != ""
	case ProviderOllama:
		// Ollama needs no key; the host has a default.
		return true
	case ProviderOpenAI:
		return firstNonEmpty(r.config.OpenAIAPIKey, os.Getenv("OPENAI_API_KEY")) != ""
	default:
		return false
	}
}

func (r *ProviderRegistry) resolveProviderConfig(provider, modelOverride string) (*ClientKey, error) {
	key := &ClientKey{
		Provider: provider,
		Model:    modelOverride,
	}

	switch provider {
	case ProviderAnthropic:
		key.APIKey = firstNonEmpty(r.config.AnthropicAPIKey, os.Getenv("ANTHROPIC_API_KEY"))
		if key.APIKey == "" {
			return nil, fmt.Errorf("anthropic API key not configured")
		}
		if key.Model == "" {
			key.Model = firstNonEmpty(r.config.AnthropicModel, DefaultAnthropicModel)
		}

	case ProviderGemini:
		key.APIKey = firstNonEmpty(r.config.GeminiAPIKey, os.Getenv("GEMINI_API_KEY"))
		if key.APIKey == "" {
			return nil, fmt.Errorf("gemini API key not configured")
		}
		if key.Model == "" {
			key.Model = firstNonEmpty(r.config.GeminiModel, DefaultGeminiModel)
		}

	case ProviderOllama:
		key.Host = firstNonEmpty(r.config.OllamaHost, os.Getenv("OLLAMA_HOST"), "http://localhost:11434")
		if key.Model == "" {
			key.Model = firstNonEmpty(r.config.OllamaModel, os.Getenv("OLLAMA_MODEL"))
		}
		if key.Model == "" {
			return nil, fmt.Errorf("ollama model not specified and no default configured")
		}

	case ProviderOpenAI:
		key.APIKey = firstNonEmpty(r.config.OpenAIAPIKey, os.Getenv("OPENAI_API_KEY"))
		if key.APIKey == "" {
			return nil, fmt.Errorf("openai API key not configured")
		}
		key.BaseURL = firstNonEmpty(r.config.OpenAIBaseURL, os.Getenv("OPENAI_BASE_URL"))
		key.Organization = firstNonEmpty(r.config.OpenAIOrg, os.Getenv("OPENAI_ORG_ID"))
		if key.Model == "" {
			key.Model = firstNonEmpty(r.config.OpenAIModel, os.Getenv("OPENAI_MODEL"), DefaultOpenAIModel)
		}

	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}

	return key, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
