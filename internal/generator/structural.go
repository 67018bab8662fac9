package generator

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gioe/aiq/internal/question"
)

const (
	maxTextLen        = 1000
	maxExplanationLen = 1500
	maxOptions        = 6
)

// StructuralValidator checks that required fields are present, within
// length limits, and have valid enum values.
type StructuralValidator struct{}

func (v *StructuralValidator) Name() string { return "structural" }

func (v *StructuralValidator) Validate(q *question.GeneratedQuestion) *ValidationError {
	if err := q.CheckFields(); err != nil {
		if errors.Is(err, question.ErrUnknownType) || errors.Is(err, question.ErrUnknownDifficulty) {
			return &ValidationError{Validator: v.Name(), Message: err.Error()}
		}
		return v.fail(err.Error())
	}
	if utf8.RuneCountInString(q.Text) > maxTextLen {
		return v.fail(fmt.Sprintf("question_text exceeds %d characters", maxTextLen))
	}
	if strings.TrimSpace(q.Explanation) == "" {
		return v.fail("explanation is empty")
	}
	if utf8.RuneCountInString(q.Explanation) > maxExplanationLen {
		return v.fail(fmt.Sprintf("explanation exceeds %d characters", maxExplanationLen))
	}
	return nil
}

func (v *StructuralValidator) fail(msg string) *ValidationError {
	return &ValidationError{Validator: v.Name(), Message: msg, Retryable: true}
}

// AnswerOptionsValidator checks multiple choice constraints: at least two
// distinct non-empty options, one of which is the correct answer. A correct
// answer that differs from its option only in case or spacing is rewritten
// to the option text.
type AnswerOptionsValidator struct{}

func (v *AnswerOptionsValidator) Name() string { return "answer-options" }

func (v *AnswerOptionsValidator) Validate(q *question.GeneratedQuestion) *ValidationError {
	if len(q.AnswerOptions) > maxOptions {
		return v.fail(fmt.Sprintf("at most %d answer options allowed, got %d", maxOptions, len(q.AnswerOptions)))
	}
	if !q.ResolveAnswer() {
		return v.fail(fmt.Sprintf("correct answer %q not found in answer options", q.CorrectAnswer))
	}
	if err := q.CheckOptions(); err != nil {
		return v.fail(err.Error())
	}
	return nil
}

func (v *AnswerOptionsValidator) fail(msg string) *ValidationError {
	return &ValidationError{Validator: v.Name(), Message: msg, Retryable: true}
}

// StimulusValidator requires memory questions to carry the material to be
// memorised, and that material must not already contain the question.
type StimulusValidator struct{}

func (v *StimulusValidator) Name() string { return "memory-stimulus" }

func (v *StimulusValidator) Validate(q *question.GeneratedQuestion) *ValidationError {
	if q.Type != question.TypeMemory {
		return nil
	}
	stimulus := strings.TrimSpace(q.Stimulus)
	if stimulus == "" {
		return &ValidationError{Validator: v.Name(), Message: "memory question has no stimulus", Retryable: true}
	}
	if question.Normalize(stimulus) == question.Normalize(q.Text) {
		return &ValidationError{Validator: v.Name(), Message: "stimulus repeats the question text", Retryable: true}
	}
	return nil
}
