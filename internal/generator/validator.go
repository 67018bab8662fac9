package generator

import (
	"fmt"

	"github.com/gioe/aiq/internal/question"
)

// Validator checks a generated question before it leaves the generator.
// Implementations should be stateless and safe for concurrent use.
type Validator interface {
	// Name returns a short identifier for this validator (for error messages
	// and logging), e.g. "structural" or "answer-options".
	Name() string

	// Validate returns nil if the question passes.
	Validate(q *question.GeneratedQuestion) *ValidationError
}

// ValidationError describes why a question failed validation.
type ValidationError struct {
	Validator string // Name of the validator that failed
	Message   string // Human-readable description of the failure
	Retryable bool   // Whether regeneration is likely to fix this
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validator %q: %s", e.Validator, e.Message)
}
