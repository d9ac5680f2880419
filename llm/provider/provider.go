// Package provider builds concrete llm.Client values from a resolved ClientKey.
package provider

import (
	"context"
	"fmt"

	"github.com/JamesWemyss/psyclone/llm"
	llmanthropic "github.com/JamesWemyss/psyclone/llm/anthropic"
	llmgemini "github.com/JamesWemyss/psyclone/llm/gemini"
	llmollama "github.com/JamesWemyss/psyclone/llm/ollama"
	llmopenai "github.com/JamesWemyss/psyclone/llm/openai"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// New creates the provider client named by key and guards it with a
// circuit breaker.
func New(ctx context.Context, key *llm.ClientKey, logger zerolog.Logger) (llm.Client, error) {
	if key == nil {
		return nil, fmt.Errorf("client key is required")
	}

	var base llm.Client
	var err error

	switch key.Provider {
	case llm.ProviderAnthropic:
		base, err = llmanthropic.NewAnthropicClient(key.APIKey, key.Model, logger)
	case llm.ProviderGemini:
		base, err = llmgemini.NewGeminiClient(ctx, key.APIKey, key.Model)
	case llm.ProviderOllama:
		base, err = llmollama.NewOllamaClient(key.Host, key.Model)
	case llm.ProviderOpenAI:
		base, err = llmopenai.NewOpenAIClient(key.APIKey, key.BaseURL, key.Model, key.Organization)
	default:
		return nil, fmt.Errorf("unknown provider: %s", key.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", key.Provider, err)
	}

	settings := llm.DefaultBreakerSettings()
	settings.OnStateChange = func(name string, from, to gobreaker.State) {
		logger.Warn().
			Str("breaker", name).
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("Model circuit breaker changed state")
	}
	logger.Info().Str("provider", key.Provider).Str("model", key.Model).Msg("Model client ready")
	return llm.WithCircuitBreaker(base, key.Provider, settings), nil
}
