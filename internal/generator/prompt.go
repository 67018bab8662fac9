package generator

import (
	"fmt"
	"strings"

	"github.com/gioe/aiq/internal/question"
)

const systemPrompt = `You are a psychometrician writing items for an adult cognitive ability test.

Rules:
- Write a single question of the requested type and difficulty.
- The question must be self-contained: everything needed to answer it is in the question text (and the stimulus for memory items).
- There must be exactly one defensible correct answer. Avoid trick wording and cultural or specialist knowledge.
- Prefer multiple choice with 4 options. Distractors should reflect plausible reasoning errors, not random values.
- The correct answer must match one option exactly.
- The explanation states the rule or reasoning that leads to the answer.
- Use plain text. No images, no markdown, no LaTeX.
- Do not repeat or lightly rephrase any question from the "existing questions" list.`

var typeGuidance = map[question.QuestionType]string{
	question.TypePattern: "Pattern recognition: a number, letter or symbol sequence (or a described grid) governed by one consistent rule. Ask for the next or missing element.",
	question.TypeLogic:   "Logical reasoning: deduction from stated premises, syllogisms, ordering or seating puzzles, truth-teller problems. All premises must be given.",
	question.TypeSpatial: "Spatial reasoning described in words: mental rotation, paper folding, cube nets, directions and relative positions.",
	question.TypeMath:    "Quantitative reasoning: arithmetic word problems, ratios, rates, percentages. Numbers should keep mental arithmetic feasible.",
	question.TypeVerbal:  "Verbal reasoning: analogies, odd one out, word relationships, sentence completion with common vocabulary.",
	question.TypeMemory:  "Working memory: put a short list, sequence or set of facts in the stimulus field. The question asks about the stimulus without restating it.",
}

var difficultyGuidance = map[question.Difficulty]string{
	question.DifficultyEasy:   "Most adults answer correctly within 30 seconds. One reasoning step.",
	question.DifficultyMedium: "About half of adults answer correctly. Two or three reasoning steps.",
	question.DifficultyHard:   "Fewer than a quarter of adults answer correctly. Several steps or a non-obvious rule.",
}

// buildUserMessage constructs the user message for an item.
func buildUserMessage(spec ItemSpec, cfg Config) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Type: %s\n", spec.Type)
	fmt.Fprintf(&b, "Guidance: %s\n", typeGuidance[spec.Type])
	fmt.Fprintf(&b, "Difficulty: %s\n", spec.Difficulty)
	fmt.Fprintf(&b, "Difficulty guidance: %s\n", difficultyGuidance[spec.Difficulty])

	b.WriteString("\nExisting questions:\n")
	b.WriteString(buildAvoid(spec.Avoid, cfg.MaxAvoid))

	return b.String()
}

// buildAvoid formats existing questions for the prompt, respecting the max
// limit. Returns "None" if there are none.
func buildAvoid(existing []string, max int) string {
	if len(existing) == 0 {
		return "None"
	}

	// Keep only the most recent N questions.
	if max > 0 && len(existing) > max {
		existing = existing[len(existing)-max:]
	}

	var b strings.Builder
	for i, q := range existing {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q)
	}
	return strings.TrimRight(b.String(), "\n")
}
