package question

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ApprovalThreshold is the minimum judge score for a question to be approved.
// It applies to every question type.
const ApprovalThreshold = 0.70

// Validation errors for generated questions.
var (
	ErrEmptyText         = errors.New("question text is empty")
	ErrTooFewOptions     = errors.New("answer options must contain at least 2 entries")
	ErrDuplicateOption   = errors.New("answer options must be distinct")
	ErrEmptyOption       = errors.New("answer option is empty")
	ErrAnswerNotInOpts   = errors.New("correct answer is not one of the answer options")
	ErrMissingAnswer     = errors.New("correct answer is empty")
	ErrMissingStimulus   = errors.New("memory question has no stimulus")
	ErrUnknownType       = errors.New("unknown question type")
	ErrUnknownDifficulty = errors.New("unknown difficulty")
)

// GeneratedQuestion is a candidate item produced by a generation provider.
type GeneratedQuestion struct {
	// ID identifies the candidate for the lifetime of a run. It becomes the
	// stored question's UUID when the question is persisted.
	ID uuid.UUID

	Text       string
	Type       QuestionType
	Difficulty Difficulty

	// AnswerOptions is nil for open-response questions.
	AnswerOptions []string
	CorrectAnswer string
	Explanation   string

	// Stimulus is the material a memory question asks the test-taker to
	// memorise before the question is shown. Empty for other types.
	Stimulus string

	SourceProvider string
	SourceModel    string
	CreatedAt      time.Time

	// CostUSD is the estimated spend for producing this candidate.
	CostUSD float64
	Tokens  int
}

// Validate checks the structural invariants of a generated question.
func (q *GeneratedQuestion) Validate() error {
	if err := q.CheckFields(); err != nil {
		return err
	}
	if q.Type == TypeMemory && strings.TrimSpace(q.Stimulus) == "" {
		return ErrMissingStimulus
	}
	return q.CheckOptions()
}

// CheckFields checks the text, keyed answer, type and difficulty.
func (q *GeneratedQuestion) CheckFields() error {
	if strings.TrimSpace(q.Text) == "" {
		return ErrEmptyText
	}
	if !q.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownType, q.Type)
	}
	if !q.Difficulty.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownDifficulty, q.Difficulty)
	}
	if strings.TrimSpace(q.CorrectAnswer) == "" {
		return ErrMissingAnswer
	}
	return nil
}

// CheckOptions checks multiple choice options: at least two, none empty,
// distinct after normalization, and CorrectAnswer equal to one of them.
// Open-response questions pass.
func (q *GeneratedQuestion) CheckOptions() error {
	if len(q.AnswerOptions) == 0 {
		return nil
	}
	if len(q.AnswerOptions) < 2 {
		return ErrTooFewOptions
	}
	seen := make(map[string]bool, len(q.AnswerOptions))
	for i, o := range q.AnswerOptions {
		key := Normalize(o)
		if key == "" {
			return fmt.Errorf("%w: option %d", ErrEmptyOption, i+1)
		}
		if seen[key] {
			return fmt.Errorf("%w: %q", ErrDuplicateOption, o)
		}
		seen[key] = true
	}
	for _, o := range q.AnswerOptions {
		if o == q.CorrectAnswer {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrAnswerNotInOpts, q.CorrectAnswer)
}

// ResolveAnswer replaces CorrectAnswer with the option it matches after
// normalization, so the stored key is always an exact option. It reports
// whether a match was found; open-response questions are left unchanged.
func (q *GeneratedQuestion) ResolveAnswer() bool {
	if len(q.AnswerOptions) == 0 {
		return true
	}
	key := Normalize(q.CorrectAnswer)
	for _, o := range q.AnswerOptions {
		if Normalize(o) == key {
			q.CorrectAnswer = o
			return true
		}
	}
	return false
}

// Stratum returns the inventory bucket this question belongs to.
func (q *GeneratedQuestion) Stratum() Stratum {
	return Stratum{Type: q.Type, Difficulty: q.Difficulty}
}

// EvaluatedQuestion is a GeneratedQuestion with a judge verdict attached.
type EvaluatedQuestion struct {
	GeneratedQuestion

	Score         float64
	Approved      bool
	JudgeProvider string
	JudgeModel    string
	Rationale     string
	EvaluatedAt   time.Time
	JudgeCostUSD  float64
}

// Verdict carries the judge's output for a single question.
type Verdict struct {
	Score     float64
	Rationale string
	Provider  string
	Model     string
	CostUSD   float64
}

// Evaluate builds the EvaluatedQuestion for q. Approval is derived from the
// score alone; scores outside [0,1] are clamped first.
func Evaluate(q GeneratedQuestion, v Verdict, now time.Time) EvaluatedQuestion {
	score := v.Score
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return EvaluatedQuestion{
		GeneratedQuestion: q,
		Score:             score,
		Approved:          IsApproved(score),
		JudgeProvider:     v.Provider,
		JudgeModel:        v.Model,
		Rationale:         v.Rationale,
		EvaluatedAt:       now,
		JudgeCostUSD:      v.CostUSD,
	}
}

// IsApproved reports whether score clears ApprovalThreshold.
func IsApproved(score float64) bool {
	return score >= ApprovalThreshold
}
