package llm

import (
	"context"
	"encoding/json"
)

// Provider is the capability contract every LLM vendor adapter exposes.
// A Provider holds no per-call mutable state: the model for each call is
// carried by the request itself, so one instance can be shared by any number
// of concurrent callers.
type Provider interface {
	// Name returns the provider identifier used for routing, circuit
	// breaking and metrics, e.g. "openai" or "anthropic".
	Name() string

	// Generate sends a prompt to the LLM and returns a structured response.
	// When req.Schema is set the response Content is JSON validated against
	// that schema. Failures are returned as *ProviderError.
	Generate(ctx context.Context, req Request) (*Response, error)

	// Embed returns the embedding vector for req.Text. Failures are
	// returned as *ProviderError.
	Embed(ctx context.Context, req EmbedRequest) (*Embedding, error)
}

// Request describes what to send to the LLM.
type Request struct {
	// Model is the model to use for this call. Empty selects the provider's
	// configured default.
	Model string

	// System is the system prompt. Sets the LLM's role and constraints.
	System string

	// Messages is the conversation history. Generation and judging both
	// send a single user message.
	Messages []Message

	// Schema is the JSON Schema the response must conform to.
	// When set, the provider uses its native structured output mechanism.
	Schema *Schema

	// MaxTokens is the maximum number of tokens in the response.
	MaxTokens int

	// Temperature controls randomness. Range: 0.0 - 1.0.
	Temperature float64
}

// Message represents a single message in the conversation.
type Message struct {
	Role    Role
	Content string
}

// Role is the message sender role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Schema defines the JSON structure expected from the LLM.
type Schema struct {
	// Name identifies this schema (schema name for OpenAI, cache key for
	// validation). Kebab-case, e.g. "cognitive-question".
	Name string

	// Description is a human-readable description of what this schema
	// represents.
	Description string

	// Definition is the JSON Schema definition as a map.
	Definition map[string]any
}

// Response holds the LLM's output.
type Response struct {
	// Content is the generated output. When a Schema was provided in the
	// request, this is the validated JSON object.
	Content json.RawMessage

	// Usage reports token consumption for this request.
	Usage Usage

	// Model is the actual model that served the request.
	Model string

	// StopReason is normalized to "end" or "max_tokens".
	StopReason string
}

// Usage tracks token consumption for a single request.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// EmbedRequest asks a provider for the embedding of a single text.
type EmbedRequest struct {
	// Model is the embedding model. Empty selects the provider default.
	Model string
	Text  string
}

// Embedding is a dense vector representation of a text.
type Embedding struct {
	Vector []float32
	Model  string
	Usage  Usage
}
