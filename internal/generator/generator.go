// Package generator produces candidate questions from a pool of LLM
// providers, spreading items round-robin and failing over between providers
// when one misbehaves.
package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gioe/aiq/internal/breaker"
	"github.com/gioe/aiq/internal/errclass"
	"github.com/gioe/aiq/internal/llm"
	"github.com/gioe/aiq/internal/question"
)

var (
	// ErrNoProviderAvailable is wrapped by *ItemError when no provider could
	// produce an item.
	ErrNoProviderAvailable = errors.New("no provider could generate the item")

	// ErrAllProvidersUnavailable is returned by GenerateBatch when every
	// enabled provider's circuit is open.
	ErrAllProvidersUnavailable = errors.New("all generation providers are unavailable")

	// ErrNoMembers is returned by New without any provider.
	ErrNoMembers = errors.New("generator needs at least one provider")
)

// ItemError reports an item no provider could produce. It matches
// ErrNoProviderAvailable and unwraps to the last provider failure.
type ItemError struct {
	Spec ItemSpec

	// Err is the last classified failure, or nil when every provider was
	// skipped because its circuit was open.
	Err error
}

func (e *ItemError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("item %d (%s/%s): every provider circuit is open", e.Spec.Slot, e.Spec.Type, e.Spec.Difficulty)
	}
	return fmt.Sprintf("item %d (%s/%s): %v", e.Spec.Slot, e.Spec.Type, e.Spec.Difficulty, e.Err)
}

func (e *ItemError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrNoProviderAvailable}
	}
	return []error{ErrNoProviderAvailable, e.Err}
}

// Option configures a Generator.
type Option func(*Generator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

// WithClock replaces time.Now for CreatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// Generator turns item specs into validated GeneratedQuestions. It is safe
// for concurrent use; all shared state lives in the breaker set.
type Generator struct {
	members    []Member
	def        int
	breakers   *breaker.Set
	classifier *errclass.Classifier
	cfg        Config
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a Generator over members in failover order.
func New(members []Member, breakers *breaker.Set, classifier *errclass.Classifier, cfg Config, opts ...Option) (*Generator, error) {
	if len(members) == 0 {
		return nil, ErrNoMembers
	}
	def := 0
	if cfg.Default != "" {
		def = -1
		for i, m := range members {
			if m.Name() == cfg.Default {
				def = i
				break
			}
		}
		if def < 0 {
			return nil, fmt.Errorf("default provider %q is not enabled", cfg.Default)
		}
	}
	if breakers == nil {
		breakers = breaker.NewSet(breaker.DefaultConfig())
	}
	if classifier == nil {
		classifier = errclass.NewClassifier()
	}
	g := &Generator{
		members:    members,
		def:        def,
		breakers:   breakers,
		classifier: classifier,
		cfg:        cfg,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Members returns the enabled providers in failover order.
func (g *Generator) Members() []Member {
	out := make([]Member, len(g.members))
	copy(out, g.members)
	return out
}

// GenerateBatch generates req.Count questions one after another. Items that
// no provider can produce are logged and skipped; the batch only fails with
// ErrAllProvidersUnavailable once every provider's circuit is open. Result
// order is not guaranteed to match request order.
func (g *Generator) GenerateBatch(ctx context.Context, req BatchRequest) ([]question.GeneratedQuestion, error) {
	specs := Plan(req)
	out := make([]question.GeneratedQuestion, 0, len(specs))
	for _, spec := range specs {
		q, err := g.GenerateOne(ctx, spec)
		if err == nil {
			out = append(out, *q)
			continue
		}
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		g.logger.Warn("item generation failed", "item", spec.Slot, "type", spec.Type, "error", err)
		if g.AllOpen() {
			return out, fmt.Errorf("%w after %d of %d items", ErrAllProvidersUnavailable, len(out), len(specs))
		}
	}
	return out, nil
}

// AllOpen reports whether every enabled provider's circuit is open.
func (g *Generator) AllOpen() bool {
	for _, m := range g.members {
		if g.breakers.Get(m.Name()).State() != breaker.Open {
			return false
		}
	}
	return true
}

// GenerateOne produces a single question. Starting from the item's provider,
// it walks the members in order: providers whose circuit is open are skipped
// without counting a failure; a failing provider is retried while its error
// is retryable and then abandoned for the next one. A cancelled ctx returns
// ctx.Err() and is never counted against a provider.
func (g *Generator) GenerateOne(ctx context.Context, spec ItemSpec) (*question.GeneratedQuestion, error) {
	n := len(g.members)
	start := g.def
	if spec.Distribute {
		start = spec.Slot % n
	}

	var lastErr error
	for k := 0; k < n; k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m := g.members[(start+k)%n]
		q, err := g.tryMember(ctx, m, spec)
		if err == nil {
			return q, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, breaker.ErrCircuitOpen) {
			g.logger.Debug("provider skipped, circuit open", "provider", m.Name(), "item", spec.Slot)
			continue
		}
		lastErr = err
		if k < n-1 {
			g.logger.Info("failing over to next provider", "provider", m.Name(), "item", spec.Slot, "error", err)
		}
	}
	return nil, &ItemError{Spec: spec, Err: lastErr}
}

// tryMember runs one provider's retry loop under its breaker. Failures come
// back as *errclass.ClassifiedError.
func (g *Generator) tryMember(ctx context.Context, m Member, spec ItemSpec) (*question.GeneratedQuestion, error) {
	b := g.breakers.Get(m.Name())
	if !b.Allow() {
		return nil, b.OpenError()
	}

	for attempt := 0; ; attempt++ {
		q, err := g.call(ctx, m, spec)
		if err == nil {
			b.RecordResult(true)
			return q, nil
		}
		if ctx.Err() != nil {
			b.Release()
			return nil, ctx.Err()
		}

		ce := g.classifier.Classify(m.Name(), err)
		g.logger.Warn("generation call failed",
			"provider", m.Name(),
			"item", spec.Slot,
			"attempt", attempt+1,
			"category", ce.Category,
			"severity", ce.Severity,
			"error", err,
		)

		if ce.Critical() {
			b.Trip()
			return nil, ce
		}
		if !ce.Retryable || attempt >= g.retryLimit(err) {
			b.RecordResult(false)
			return nil, ce
		}
		if err := llm.Sleep(ctx, llm.Backoff(attempt, g.cfg.Retry, err)); err != nil {
			b.Release()
			return nil, err
		}
	}
}

// retryLimit caps retries for err. A malformed or invalid response is
// retried once; other retryable failures use the configured budget.
func (g *Generator) retryLimit(err error) int {
	if errors.Is(err, llm.ErrInvalidResponse) {
		return min(1, g.cfg.Retry.MaxRetries)
	}
	return g.cfg.Retry.MaxRetries
}

// questionOutput is the raw LLM response before validation.
type questionOutput struct {
	QuestionText  string   `json:"question_text"`
	AnswerOptions []string `json:"answer_options"`
	CorrectAnswer string   `json:"correct_answer"`
	Explanation   string   `json:"explanation"`
	Stimulus      string   `json:"stimulus"`
}

// call makes one provider request and turns the response into a validated
// question.
func (g *Generator) call(ctx context.Context, m Member, spec ItemSpec) (*question.GeneratedQuestion, error) {
	callCtx := llm.WithPurpose(ctx, llm.PurposeGenerate)
	if g.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, g.cfg.CallTimeout)
		defer cancel()
	}

	req := llm.Request{
		Model:  m.Model,
		System: systemPrompt,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: buildUserMessage(spec, g.cfg)},
		},
		Schema:      QuestionSchema,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
	}

	resp, err := m.Provider.Generate(callCtx, req)
	if err != nil {
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s: call timed out after %s: %w", m.Name(), g.cfg.CallTimeout, context.DeadlineExceeded)
		}
		return nil, err
	}

	var raw questionOutput
	if err := json.Unmarshal(resp.Content, &raw); err != nil {
		return nil, invalidOutput(m.Name(), resp.Content, err)
	}

	model := resp.Model
	if model == "" {
		model = m.Model
	}
	q := &question.GeneratedQuestion{
		ID:             uuid.New(),
		Text:           raw.QuestionText,
		Type:           spec.Type,
		Difficulty:     spec.Difficulty,
		AnswerOptions:  raw.AnswerOptions,
		CorrectAnswer:  raw.CorrectAnswer,
		Explanation:    raw.Explanation,
		SourceProvider: m.Name(),
		SourceModel:    model,
		CreatedAt:      g.now().UTC(),
		CostUSD:        llm.EstimateCost(model, resp.Usage),
		Tokens:         resp.Usage.TotalTokens,
	}
	if len(q.AnswerOptions) == 0 {
		q.AnswerOptions = nil
	}
	if spec.Type == question.TypeMemory {
		q.Stimulus = raw.Stimulus
	}

	// Run validators in order.
	for _, v := range g.cfg.Validators {
		if verr := v.Validate(q); verr != nil {
			if !verr.Retryable {
				return nil, errclass.New(m.Name(), errclass.CategoryInvalidRequest, verr)
			}
			return nil, invalidOutput(m.Name(), resp.Content, verr)
		}
	}
	return q, nil
}

// invalidOutput marks output that parsed badly or failed validation as an
// invalid response from provider.
func invalidOutput(provider string, content json.RawMessage, cause error) *llm.ProviderError {
	return &llm.ProviderError{
		Provider: provider,
		Message:  cause.Error(),
		Content:  content,
		Err:      fmt.Errorf("%w: %w", llm.ErrInvalidResponse, cause),
	}
}
