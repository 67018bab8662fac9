package arbiter

import (
	"fmt"
	"slices"

	"github.com/gioe/aiq/internal/question"
)

// Route names the judge provider and model for a question type.
type Route struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

func (r Route) String() string {
	if r.Model == "" {
		return r.Provider
	}
	return r.Provider + "/" + r.Model
}

// RoutingTable maps question types to judges. Types without an entry use
// Default.
type RoutingTable struct {
	Default Route                           `yaml:"default"`
	ByType  map[question.QuestionType]Route `yaml:"by_type"`
}

// For returns the route for t.
func (rt RoutingTable) For(t question.QuestionType) Route {
	if r, ok := rt.ByType[t]; ok && r.Provider != "" {
		return r
	}
	return rt.Default
}

// Providers lists the distinct providers the table routes to.
func (rt RoutingTable) Providers() []string {
	seen := map[string]bool{}
	var out []string
	add := func(r Route) {
		if r.Provider != "" && !seen[r.Provider] {
			seen[r.Provider] = true
			out = append(out, r.Provider)
		}
	}
	add(rt.Default)
	for _, t := range question.AllTypes() {
		add(rt.ByType[t])
	}
	return out
}

// Restrict returns a copy of rt without routes to providers outside
// enabled. A dropped default is left empty for the caller to fill.
func (rt RoutingTable) Restrict(enabled []string) RoutingTable {
	keep := func(r Route) bool { return slices.Contains(enabled, r.Provider) }
	out := RoutingTable{ByType: make(map[question.QuestionType]Route, len(rt.ByType))}
	if keep(rt.Default) {
		out.Default = rt.Default
	}
	for t, r := range rt.ByType {
		if keep(r) {
			out.ByType[t] = r
		}
	}
	return out
}

// Validate checks that every type resolves to a judge.
func (rt RoutingTable) Validate() error {
	for t := range rt.ByType {
		if !t.Valid() {
			return fmt.Errorf("judge route for unknown question type %q", t)
		}
	}
	for _, t := range question.AllTypes() {
		if rt.For(t).Provider == "" {
			return fmt.Errorf("no judge route for %s and no default", t)
		}
	}
	return nil
}
