package llm

import "fmt"

const defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

const defaultOpenRouterEmbeddingModel = "openai/text-embedding-3-small"

// NewOpenRouterProvider creates a provider targeting the OpenRouter API.
// OpenRouter exposes an OpenAI-compatible API, so the OpenAI adapter is
// reused under the "openrouter" name. Model IDs are passed through as-is.
func NewOpenRouterProvider(cfg OpenRouterConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openrouter API key is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenRouterBaseURL
	}

	p := newOpenAICompatible(ProviderOpenRouter, cfg.APIKey, baseURL)
	p.model = cfg.Model
	p.embedModel = cfg.EmbeddingModel
	if p.embedModel == "" {
		p.embedModel = defaultOpenRouterEmbeddingModel
	}
	return p, nil
}
