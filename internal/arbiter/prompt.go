package arbiter

import (
	"fmt"
	"strings"

	"github.com/gioe/aiq/internal/llm"
	"github.com/gioe/aiq/internal/question"
)

// JudgeSchema defines the JSON schema for judge responses.
var JudgeSchema = &llm.Schema{
	Name:        "question-verdict",
	Description: "Quality score for a cognitive test question",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"score": map[string]any{
				"type":        "number",
				"minimum":     0,
				"maximum":     1,
				"description": "Overall quality from 0 (unusable) to 1 (excellent)",
			},
			"rationale": map[string]any{
				"type":        "string",
				"description": "One or two sentences justifying the score",
			},
		},
		"required":             []any{"score", "rationale"},
		"additionalProperties": false,
	},
}

const judgeSystemPrompt = `You are an expert reviewer of cognitive ability test items.

Score the item from 0 to 1 against these criteria:
- Correctness: the keyed answer is right and is the only defensible answer.
- Clarity: the wording is unambiguous and self-contained.
- Validity: the item measures the stated ability rather than trivia or reading tricks.
- Difficulty: the item matches its stated difficulty band.
- Distractors: wrong options are plausible but clearly wrong on reflection.

An item with a wrong or ambiguous key scores below 0.3 regardless of other qualities.
Return the score and a short rationale.`

var rubric = map[question.QuestionType]string{
	question.TypePattern: "The sequence must follow exactly one rule; reject items where several rules fit the given terms.",
	question.TypeLogic:   "Every premise needed for the conclusion must be stated; the answer must follow strictly.",
	question.TypeSpatial: "The verbal description must determine the figure uniquely.",
	question.TypeMath:    "Check the arithmetic yourself; units and rounding must be unambiguous.",
	question.TypeVerbal:  "Vocabulary should be common; the relationship in an analogy must be specific.",
	question.TypeMemory:  "The question must be answerable from the stimulus alone and not from the question text.",
}

// buildUserMessage renders the item for the judge.
func buildUserMessage(q *question.GeneratedQuestion) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Type: %s\n", q.Type)
	fmt.Fprintf(&b, "Difficulty: %s\n", q.Difficulty)
	if r := rubric[q.Type]; r != "" {
		fmt.Fprintf(&b, "Type-specific check: %s\n", r)
	}
	if q.Stimulus != "" {
		fmt.Fprintf(&b, "\nStimulus:\n%s\n", q.Stimulus)
	}
	fmt.Fprintf(&b, "\nQuestion:\n%s\n", q.Text)
	if len(q.AnswerOptions) > 0 {
		b.WriteString("\nOptions:\n")
		for i, o := range q.AnswerOptions {
			fmt.Fprintf(&b, "%c. %s\n", 'A'+i, o)
		}
	}
	fmt.Fprintf(&b, "\nKeyed answer: %s\n", q.CorrectAnswer)
	fmt.Fprintf(&b, "Explanation: %s", q.Explanation)

	return b.String()
}
