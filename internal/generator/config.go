package generator

import (
	"time"

	"github.com/gioe/aiq/internal/llm"
)

// Config controls the behavior of the Generator.
type Config struct {
	// Default is the provider every item starts on when items are not
	// distributed. Empty means the first member.
	Default string

	// Retry controls retries on the same provider for retryable failures.
	Retry llm.RetryConfig

	// CallTimeout bounds every provider call.
	CallTimeout time.Duration

	// Validators is the ordered list of validators to run on every
	// generated question. The first failure stops the chain.
	Validators []Validator

	// MaxTokens is the token budget for the LLM response.
	MaxTokens int

	// Temperature controls LLM output randomness (0.0-1.0).
	Temperature float64

	// MaxAvoid is the maximum number of existing questions listed in the
	// prompt as examples not to repeat.
	MaxAvoid int
}

// DefaultConfig returns a Config with the standard validator chain
// and recommended defaults.
func DefaultConfig() Config {
	return Config{
		Retry: llm.RetryConfig{
			MaxRetries:  2,
			InitialWait: time.Second,
			MaxWait:     30 * time.Second,
			Multiplier:  2,
		},
		CallTimeout: 60 * time.Second,
		Validators: []Validator{
			&StructuralValidator{},
			&AnswerOptionsValidator{},
			&StimulusValidator{},
		},
		MaxTokens:   1024,
		Temperature: 0.8,
		MaxAvoid:    8,
	}
}
