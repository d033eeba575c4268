package services

import (
	"context"
	"fmt"

	"diet-chat/config"
)

// NewModel builds the backend selected by cfg.LLM.Provider. A missing key
// is reported as ErrMissingCredential.
func NewModel(ctx context.Context, cfg *config.Config) (Model, error) {
	switch cfg.LLM.Provider {
	case config.ProviderGemini:
		return NewGeminiService(ctx, cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model)
	case config.ProviderOpenAI:
		return NewVLLMService(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model)
	case config.ProviderAnthropic:
		return NewAnthropicService(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}
