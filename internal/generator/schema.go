package generator

import "github.com/gioe/aiq/internal/llm"

// QuestionSchema defines the JSON schema for question generation responses.
var QuestionSchema = &llm.Schema{
	Name:        "cognitive-question",
	Description: "A single cognitive test question with its answer and explanation",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"question_text": map[string]any{
				"type":        "string",
				"description": "The question shown to the test-taker, self-contained",
			},
			"answer_options": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "string",
				},
				"description": "2 to 6 distinct options, one of them correct. Empty array for open response.",
			},
			"correct_answer": map[string]any{
				"type":        "string",
				"description": "The correct answer. For multiple choice: the exact text of the correct option.",
			},
			"explanation": map[string]any{
				"type":        "string",
				"description": "Why the correct answer is correct, in a few sentences",
			},
			"stimulus": map[string]any{
				"type":        "string",
				"description": "Memory questions only: the material to memorise before the question is shown. Empty otherwise.",
			},
		},
		"required":             []any{"question_text", "answer_options", "correct_answer", "explanation", "stimulus"},
		"additionalProperties": false,
	},
}
