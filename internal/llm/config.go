package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// Provider names.
const (
	ProviderAnthropic  = "anthropic"
	ProviderOpenAI     = "openai"
	ProviderGemini     = "gemini"
	ProviderOpenRouter = "openrouter"
	ProviderMock       = "mock"
)

// Config holds all LLM provider configuration.
type Config struct {
	// Providers lists the enabled providers in round-robin order.
	// Values: "anthropic", "openai", "gemini", "openrouter", "mock".
	Providers []string `yaml:"providers"`

	Anthropic  AnthropicConfig  `yaml:"anthropic"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	Gemini     GeminiConfig     `yaml:"gemini"`
	OpenRouter OpenRouterConfig `yaml:"openrouter"`
	Retry      RetryConfig      `yaml:"retry"`

	// Timeout bounds a single provider call. Default: 60s.
	Timeout time.Duration `yaml:"timeout"`

	// Mock answers requests for the "mock" provider.
	Mock MockFunc `yaml:"-"`

	// MockEmbed answers embedding requests for the "mock" provider.
	MockEmbed func(ctx context.Context, text string) ([]float32, error) `yaml:"-"`
}

// AnthropicConfig holds Anthropic-specific configuration.
type AnthropicConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"` // Default: "claude-sonnet"
	BaseURL string `yaml:"base_url"`
}

// OpenAIConfig holds OpenAI-specific configuration.
type OpenAIConfig struct {
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"` // Default: "gpt-4o"
	EmbeddingModel string `yaml:"embedding_model"`
	BaseURL        string `yaml:"base_url"`
}

// GeminiConfig holds Gemini-specific configuration.
type GeminiConfig struct {
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"` // Default: "gemini-flash"
	EmbeddingModel string `yaml:"embedding_model"`
	BaseURL        string `yaml:"base_url"`
}

// OpenRouterConfig holds OpenRouter-specific configuration.
type OpenRouterConfig struct {
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"` // Default: "meta-llama/llama-3.3-70b-instruct"
	EmbeddingModel string `yaml:"embedding_model"`
	BaseURL        string `yaml:"base_url"` // Default: "https://openrouter.ai/api/v1"
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Anthropic: AnthropicConfig{
			Model: "claude-sonnet",
		},
		OpenAI: OpenAIConfig{
			Model: "gpt-4o",
		},
		Gemini: GeminiConfig{
			Model: "gemini-flash",
		},
		OpenRouter: OpenRouterConfig{
			Model: "meta-llama/llama-3.3-70b-instruct",
		},
		Retry: RetryConfig{
			MaxRetries:  2,
			InitialWait: 1 * time.Second,
			MaxWait:     30 * time.Second,
			Multiplier:  2.0,
		},
		Timeout: 60 * time.Second,
	}
}

// ApplyEnv overlays AIQ_* environment variables onto cfg. Vendor keys
// (OPENAI_API_KEY and friends) fill any key still unset, and when no
// provider list is configured every provider with a key is enabled.
func (c *Config) ApplyEnv() {
	if p := os.Getenv("AIQ_LLM_PROVIDERS"); p != "" {
		c.Providers = splitList(p)
	}

	setFromEnv(&c.Anthropic.APIKey, "AIQ_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	setFromEnv(&c.Anthropic.Model, "AIQ_ANTHROPIC_MODEL")
	setFromEnv(&c.OpenAI.APIKey, "AIQ_OPENAI_API_KEY", "OPENAI_API_KEY")
	setFromEnv(&c.OpenAI.Model, "AIQ_OPENAI_MODEL")
	setFromEnv(&c.OpenAI.BaseURL, "AIQ_OPENAI_BASE_URL")
	setFromEnv(&c.Gemini.APIKey, "AIQ_GEMINI_API_KEY", "GEMINI_API_KEY")
	setFromEnv(&c.Gemini.Model, "AIQ_GEMINI_MODEL")
	setFromEnv(&c.OpenRouter.APIKey, "AIQ_OPENROUTER_API_KEY", "OPENROUTER_API_KEY")
	setFromEnv(&c.OpenRouter.Model, "AIQ_OPENROUTER_MODEL")

	if len(c.Providers) == 0 {
		c.Providers = c.discover()
	}
}

// discover returns every vendor whose API key is set, in priority order.
func (c Config) discover() []string {
	var found []string
	if c.OpenAI.APIKey != "" {
		found = append(found, ProviderOpenAI)
	}
	if c.Anthropic.APIKey != "" {
		found = append(found, ProviderAnthropic)
	}
	if c.Gemini.APIKey != "" {
		found = append(found, ProviderGemini)
	}
	if c.OpenRouter.APIKey != "" {
		found = append(found, ProviderOpenRouter)
	}
	return found
}

// Validate checks that at least one provider is enabled and that every
// enabled provider has its API key set.
func (c Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("no LLM providers enabled: set llm.providers or a vendor API key")
	}
	seen := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if seen[p] {
			return fmt.Errorf("LLM provider %q listed twice", p)
		}
		seen[p] = true

		switch p {
		case ProviderAnthropic:
			if c.Anthropic.APIKey == "" {
				return fmt.Errorf("AIQ_ANTHROPIC_API_KEY is required for the anthropic provider")
			}
		case ProviderOpenAI:
			if c.OpenAI.APIKey == "" {
				return fmt.Errorf("AIQ_OPENAI_API_KEY is required for the openai provider")
			}
		case ProviderGemini:
			if c.Gemini.APIKey == "" {
				return fmt.Errorf("AIQ_GEMINI_API_KEY is required for the gemini provider")
			}
		case ProviderOpenRouter:
			if c.OpenRouter.APIKey == "" {
				return fmt.Errorf("AIQ_OPENROUTER_API_KEY is required for the openrouter provider")
			}
		case ProviderMock:
			// No API key needed.
		default:
			return fmt.Errorf("unknown LLM provider: %q", p)
		}
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be >= 0")
	}
	return nil
}

// setFromEnv sets *dst from the first non-empty variable in keys. AIQ_*
// variables always win; vendor fallbacks only fill an empty value.
func setFromEnv(dst *string, keys ...string) {
	for i, k := range keys {
		v := os.Getenv(k)
		if v == "" {
			continue
		}
		if i > 0 && *dst != "" {
			return
		}
		*dst = v
		return
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
