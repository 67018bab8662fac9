package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/gioe/aiq/internal/llm"
	"github.com/gioe/aiq/internal/question"
)

// demoResponder answers the mock provider so a full run works offline.
// Generation returns simple templated questions; the judge scores at random
// so some items are rejected.
func demoResponder() llm.MockFunc {
	var seq atomic.Int64
	return func(ctx context.Context, req llm.Request) (*llm.Response, error) {
		var body any
		if llm.PurposeFrom(ctx) == llm.PurposeJudge {
			body = map[string]any{
				"score":     0.55 + rand.Float64()*0.45,
				"rationale": "demo judge",
			}
		} else {
			body = demoQuestion(promptType(req), int(seq.Add(1)))
		}
		content, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		in := 0
		for _, m := range req.Messages {
			in += len(m.Content) / 4
		}
		return &llm.Response{
			Content:    content,
			Usage:      llm.Usage{InputTokens: in, OutputTokens: len(content) / 4, TotalTokens: in + len(content)/4},
			Model:      "mock",
			StopReason: "end",
		}, nil
	}
}

func promptType(req llm.Request) question.QuestionType {
	for _, m := range req.Messages {
		for line := range strings.Lines(m.Content) {
			if v, ok := strings.CutPrefix(line, "Type: "); ok {
				return question.QuestionType(strings.TrimSpace(v))
			}
		}
	}
	return question.TypePattern
}

var (
	demoHeadings = []string{"north", "east", "south", "west"}
	demoSynonyms = [][2]string{
		{"rapid", "quick"}, {"vast", "huge"}, {"brief", "short"},
		{"timid", "shy"}, {"ancient", "old"}, {"gentle", "mild"},
	}
)

func demoQuestion(t question.QuestionType, n int) map[string]any {
	q := map[string]any{}
	switch t {
	case question.TypeMath:
		a, b := n+3, n%7+4
		ans := a * b
		q["question_text"] = fmt.Sprintf("A crate holds %d boxes of %d pens each. How many pens are in the crate?", a, b)
		q["answer_options"] = []string{fmt.Sprint(ans), fmt.Sprint(ans + a), fmt.Sprint(ans - b), fmt.Sprint(ans + 1)}
		q["correct_answer"] = fmt.Sprint(ans)
		q["explanation"] = fmt.Sprintf("%d times %d is %d.", a, b, ans)
	case question.TypeLogic:
		q["question_text"] = fmt.Sprintf("All members of club %d are chess players. Dana is a member of club %d. Is Dana a chess player?", n, n)
		q["answer_options"] = []string{"Yes", "No", "Cannot be determined"}
		q["correct_answer"] = "Yes"
		q["explanation"] = "Every member is a chess player and Dana is a member."
	case question.TypeSpatial:
		ans := demoHeadings[n%4]
		q["question_text"] = fmt.Sprintf("You face north and turn 90 degrees clockwise %d times. Which way do you face?", n)
		q["answer_options"] = demoHeadings
		q["correct_answer"] = ans
		q["explanation"] = fmt.Sprintf("Every four turns return you to north, so %d turns leave you facing %s.", n, ans)
	case question.TypeVerbal:
		pair := demoSynonyms[n%len(demoSynonyms)]
		q["question_text"] = fmt.Sprintf("Which word is closest in meaning to %q?", pair[0])
		q["answer_options"] = []string{pair[1], "slow", "bright", "heavy"}
		q["correct_answer"] = pair[1]
		q["explanation"] = fmt.Sprintf("%q and %q are synonyms.", pair[0], pair[1])
	case question.TypeMemory:
		digits := make([]string, 6)
		for i := range digits {
			digits[i] = fmt.Sprint((n*7 + i*3) % 10)
		}
		q["stimulus"] = strings.Join(digits, " ")
		q["question_text"] = fmt.Sprintf("In digit list %d, which digit came fourth?", n)
		q["answer_options"] = []string{}
		q["correct_answer"] = digits[3]
		q["explanation"] = "Recall the fourth position of the list."
	default:
		start, step := n, n%5+2
		seq := []int{start, start + step, start + 2*step, start + 3*step}
		ans := start + 4*step
		q["question_text"] = fmt.Sprintf("Which number comes next: %d, %d, %d, %d?", seq[0], seq[1], seq[2], seq[3])
		q["answer_options"] = []string{fmt.Sprint(ans), fmt.Sprint(ans + 1), fmt.Sprint(ans - step), fmt.Sprint(ans + step)}
		q["correct_answer"] = fmt.Sprint(ans)
		q["explanation"] = fmt.Sprintf("Each term adds %d.", step)
	}
	return q
}

const demoDims = 64

// demoEmbed hashes words into a fixed-size bag-of-words vector. Numbers
// weigh more so templated questions with different values stay apart.
func demoEmbed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, demoDims)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,?!:;\"'")
		weight := float32(1)
		if _, err := strconv.Atoi(w); err == nil {
			weight = 4
		}
		h := fnv.New32a()
		h.Write([]byte(w))
		vec[h.Sum32()%demoDims] += weight
	}
	return vec, nil
}
