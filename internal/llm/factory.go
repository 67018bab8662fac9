package llm

import (
	"context"
	"fmt"

	"github.com/gioe/aiq/internal/store"
)

// NewProvider creates the named base Provider from configuration.
func NewProvider(ctx context.Context, name string, cfg Config) (Provider, error) {
	var (
		p   Provider
		err error
	)

	switch name {
	case ProviderAnthropic:
		p, err = NewAnthropicProvider(cfg.Anthropic)
	case ProviderOpenAI:
		p, err = NewOpenAIProvider(cfg.OpenAI)
	case ProviderGemini:
		p, err = NewGeminiProvider(ctx, cfg.Gemini)
	case ProviderOpenRouter:
		p, err = NewOpenRouterProvider(cfg.OpenRouter)
	case ProviderMock:
		m := NewMockProvider(ProviderMock)
		m.GenerateFunc = cfg.Mock
		m.EmbedFunc = cfg.MockEmbed
		p = m
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", name)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", name, err)
	}
	return p, nil
}

// NewProviders builds every enabled provider in configured order. When
// eventRepo is non-nil each provider is wrapped with event logging.
func NewProviders(ctx context.Context, cfg Config, eventRepo store.EventRepo) ([]Provider, error) {
	providers := make([]Provider, 0, len(cfg.Providers))
	for _, name := range cfg.Providers {
		p, err := NewProvider(ctx, name, cfg)
		if err != nil {
			return nil, err
		}
		if eventRepo != nil {
			p = WithLogging(p, eventRepo)
		}
		providers = append(providers, p)
	}
	return providers, nil
}
