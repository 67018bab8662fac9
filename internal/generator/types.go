package generator

import (
	"github.com/gioe/aiq/internal/llm"
	"github.com/gioe/aiq/internal/question"
)

// Member is one enabled generation provider and the model it is called with.
type Member struct {
	Provider llm.Provider

	// Model is passed on every request. Empty uses the provider default.
	Model string
}

// Name returns the provider name.
func (m Member) Name() string { return m.Provider.Name() }

// ItemSpec describes one question to generate.
type ItemSpec struct {
	// Slot is the item's position in the run. With Distribute it selects the
	// starting provider round-robin.
	Slot int

	Type       question.QuestionType
	Difficulty question.Difficulty

	// Distribute spreads items across providers instead of starting every
	// item on the default provider.
	Distribute bool

	// Avoid lists existing question texts the model should not repeat.
	Avoid []string
}

// BatchRequest asks for Count questions.
type BatchRequest struct {
	Count int

	// Types are assigned round-robin. Empty means every type.
	Types []question.QuestionType

	// Difficulty pins every item to one difficulty. Nil rotates through all
	// difficulties.
	Difficulty *question.Difficulty

	Distribute bool
}

// Plan expands a batch request into item specs. Types rotate fastest, then
// difficulties, so consecutive items cover every stratum.
func Plan(req BatchRequest) []ItemSpec {
	types := req.Types
	if len(types) == 0 {
		types = question.AllTypes()
	}
	diffs := question.AllDifficulties()
	if req.Difficulty != nil {
		diffs = []question.Difficulty{*req.Difficulty}
	}

	specs := make([]ItemSpec, 0, max(req.Count, 0))
	for i := 0; i < req.Count; i++ {
		specs = append(specs, ItemSpec{
			Slot:       i,
			Type:       types[i%len(types)],
			Difficulty: diffs[(i/len(types))%len(diffs)],
			Distribute: req.Distribute,
		})
	}
	return specs
}
