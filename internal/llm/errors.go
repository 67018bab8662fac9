package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidResponse marks output that is not valid JSON or does not
	// conform to the requested schema.
	ErrInvalidResponse = errors.New("invalid LLM response")

	// ErrMaxTokensExceeded marks a response truncated by the MaxTokens limit.
	ErrMaxTokensExceeded = errors.New("LLM response truncated: max tokens exceeded")

	// ErrEmbeddingsUnsupported is returned by providers with no embedding API.
	ErrEmbeddingsUnsupported = errors.New("provider does not support embeddings")
)

// ProviderError is the single failure type returned by Provider calls. It
// covers non-2xx responses (StatusCode set), transport failures (StatusCode
// zero, Err set) and malformed responses (Err wraps ErrInvalidResponse).
type ProviderError struct {
	Provider   string
	StatusCode int

	// Message is the raw error message or response body returned by the
	// vendor. Classification falls back to pattern matching on it.
	Message string

	// RetryAfter is the server-requested wait before retrying, if any.
	RetryAfter time.Duration

	// Content holds the offending payload for invalid responses.
	Content json.RawMessage

	Err error
}

func (e *ProviderError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	}
}

func (e *ProviderError) Unwrap() error { return e.Err }

// invalidResponse wraps a parse or schema failure for provider.
func invalidResponse(provider string, content json.RawMessage, cause error) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Message:  cause.Error(),
		Content:  content,
		Err:      fmt.Errorf("%w: %w", ErrInvalidResponse, cause),
	}
}

// unsupportedEmbeddings is returned by providers without an embedding API.
func unsupportedEmbeddings(provider string) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Message:  ErrEmbeddingsUnsupported.Error(),
		Err:      ErrEmbeddingsUnsupported,
	}
}
