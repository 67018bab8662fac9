package question

import (
	"fmt"
	"strings"
)

// QuestionType is the cognitive domain a question tests. The set is closed.
type QuestionType string

const (
	TypePattern QuestionType = "pattern"
	TypeLogic   QuestionType = "logic"
	TypeSpatial QuestionType = "spatial"
	TypeMath    QuestionType = "math"
	TypeVerbal  QuestionType = "verbal"
	TypeMemory  QuestionType = "memory"
)

var allTypes = []QuestionType{TypePattern, TypeLogic, TypeSpatial, TypeMath, TypeVerbal, TypeMemory}

// AllTypes returns every question type in canonical order.
func AllTypes() []QuestionType {
	out := make([]QuestionType, len(allTypes))
	copy(out, allTypes)
	return out
}

// Valid reports whether t is one of the known question types.
func (t QuestionType) Valid() bool {
	for _, k := range allTypes {
		if k == t {
			return true
		}
	}
	return false
}

// ParseType converts a user-supplied string into a QuestionType.
func ParseType(s string) (QuestionType, error) {
	t := QuestionType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown question type %q", s)
	}
	return t, nil
}

// ParseTypes parses a list of type names. An empty list yields all types.
func ParseTypes(names []string) ([]QuestionType, error) {
	if len(names) == 0 {
		return AllTypes(), nil
	}
	seen := make(map[QuestionType]bool, len(names))
	out := make([]QuestionType, 0, len(names))
	for _, n := range names {
		t, err := ParseType(n)
		if err != nil {
			return nil, err
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out, nil
}

// Difficulty is the intended difficulty band of a question.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// AllDifficulties returns every difficulty in ascending order.
func AllDifficulties() []Difficulty {
	return []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}
}

// Valid reports whether d is a known difficulty.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// ParseDifficulty converts a user-supplied string into a Difficulty.
func ParseDifficulty(s string) (Difficulty, error) {
	d := Difficulty(strings.ToLower(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", fmt.Errorf("unknown difficulty %q", s)
	}
	return d, nil
}

// Stratum is a (type, difficulty) bucket used to track inventory balance.
type Stratum struct {
	Type       QuestionType
	Difficulty Difficulty
}

func (s Stratum) String() string {
	return string(s.Type) + "/" + string(s.Difficulty)
}
