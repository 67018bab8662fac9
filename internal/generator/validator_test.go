package generator

import (
	"slices"
	"strings"
	"testing"

	"github.com/gioe/aiq/internal/question"
)

func validQuestion() *question.GeneratedQuestion {
	return &question.GeneratedQuestion{
		Text:          "Which number comes next: 2, 4, 6, 8?",
		Type:          question.TypePattern,
		Difficulty:    question.DifficultyEasy,
		AnswerOptions: []string{"9", "10", "12", "16"},
		CorrectAnswer: "10",
		Explanation:   "The sequence adds 2 each step.",
	}
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{
		Validator: "test-validator",
		Message:   "something went wrong",
		Retryable: true,
	}
	expected := `validator "test-validator": something went wrong`
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestDefaultConfig_ValidatorChain(t *testing.T) {
	cfg := DefaultConfig()
	if len(cfg.Validators) != 3 {
		t.Fatalf("expected 3 validators, got %d", len(cfg.Validators))
	}
	names := []string{"structural", "answer-options", "memory-stimulus"}
	for i, v := range cfg.Validators {
		if v.Name() != names[i] {
			t.Errorf("validator %d: expected %q, got %q", i, names[i], v.Name())
		}
	}
}

func TestValidators_ValidQuestion(t *testing.T) {
	for _, v := range DefaultConfig().Validators {
		if err := v.Validate(validQuestion()); err != nil {
			t.Errorf("%s: expected nil, got %v", v.Name(), err)
		}
	}
}

func TestStructural(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(q *question.GeneratedQuestion)
		retryable bool
	}{
		{"empty text", func(q *question.GeneratedQuestion) { q.Text = " " }, true},
		{"long text", func(q *question.GeneratedQuestion) { q.Text = strings.Repeat("a", maxTextLen+1) }, true},
		{"empty answer", func(q *question.GeneratedQuestion) { q.CorrectAnswer = "" }, true},
		{"empty explanation", func(q *question.GeneratedQuestion) { q.Explanation = "" }, true},
		{"long explanation", func(q *question.GeneratedQuestion) { q.Explanation = strings.Repeat("b", maxExplanationLen+1) }, true},
		{"bad type", func(q *question.GeneratedQuestion) { q.Type = "trivia" }, false},
		{"bad difficulty", func(q *question.GeneratedQuestion) { q.Difficulty = "expert" }, false},
	}

	v := &StructuralValidator{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := validQuestion()
			tt.mutate(q)
			err := v.Validate(q)
			if err == nil {
				t.Fatal("expected error")
			}
			if err.Validator != "structural" {
				t.Errorf("expected validator %q, got %q", "structural", err.Validator)
			}
			if err.Retryable != tt.retryable {
				t.Errorf("retryable = %v, want %v", err.Retryable, tt.retryable)
			}
		})
	}
}

func TestAnswerOptions(t *testing.T) {
	tests := []struct {
		name    string
		options []string
		answer  string
		wantErr bool
	}{
		{"open response", nil, "10", false},
		{"valid", []string{"a", "b"}, "b", false},
		{"answer case and spacing", []string{"Red", "Blue"}, " blue ", false},
		{"single option", []string{"a"}, "a", true},
		{"too many", []string{"1", "2", "3", "4", "5", "6", "7"}, "1", true},
		{"empty option", []string{"a", " "}, "a", true},
		{"duplicate", []string{"a", "A", "b"}, "a", true},
		{"answer missing", []string{"a", "b"}, "c", true},
	}

	v := &AnswerOptionsValidator{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := validQuestion()
			q.AnswerOptions = tt.options
			q.CorrectAnswer = tt.answer
			err := v.Validate(q)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && len(tt.options) > 0 && !slices.Contains(tt.options, q.CorrectAnswer) {
				t.Errorf("correct answer %q is not one of %q", q.CorrectAnswer, tt.options)
			}
		})
	}
}

func TestAnswerOptions_StoresExactOption(t *testing.T) {
	q := validQuestion()
	q.AnswerOptions = []string{"Cat", "Dog"}
	q.CorrectAnswer = "  dog "

	if err := (&AnswerOptionsValidator{}).Validate(q); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if q.CorrectAnswer != "Dog" {
		t.Errorf("CorrectAnswer = %q, want %q", q.CorrectAnswer, "Dog")
	}
	if err := q.Validate(); err != nil {
		t.Errorf("question invariant after validation: %v", err)
	}
}

func TestStimulus(t *testing.T) {
	v := &StimulusValidator{}

	q := validQuestion()
	if err := v.Validate(q); err != nil {
		t.Fatalf("non-memory question: %v", err)
	}

	q.Type = question.TypeMemory
	if err := v.Validate(q); err == nil {
		t.Fatal("expected error for memory question without stimulus")
	}

	q.Stimulus = q.Text
	if err := v.Validate(q); err == nil {
		t.Fatal("expected error when stimulus repeats the question")
	}

	q.Stimulus = "7 3 9 1 4"
	if err := v.Validate(q); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTypeGuidance_Complete(t *testing.T) {
	for _, qt := range question.AllTypes() {
		if typeGuidance[qt] == "" {
			t.Errorf("no guidance for %s", qt)
		}
	}
	for _, d := range question.AllDifficulties() {
		if difficultyGuidance[d] == "" {
			t.Errorf("no guidance for %s", d)
		}
	}
}
