// Package arbiter scores generated questions with a judge model chosen by
// question type and turns the score into an approval decision.
package arbiter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gioe/aiq/internal/breaker"
	"github.com/gioe/aiq/internal/errclass"
	"github.com/gioe/aiq/internal/llm"
	"github.com/gioe/aiq/internal/question"
)

// FailurePrefix starts the rationale of a question whose evaluation failed.
const FailurePrefix = "evaluation failed: "

// maxAttempts is the first judge call plus one retry.
const maxAttempts = 2

// Config controls the judge calls.
type Config struct {
	Routes RoutingTable

	// Retry supplies the backoff between the first call and its retry.
	Retry llm.RetryConfig

	// CallTimeout bounds every judge call.
	CallTimeout time.Duration

	MaxTokens   int
	Temperature float64
}

// DefaultConfig returns judge defaults. Routes must still be supplied.
func DefaultConfig() Config {
	return Config{
		Retry: llm.RetryConfig{
			InitialWait: time.Second,
			MaxWait:     30 * time.Second,
			Multiplier:  2,
		},
		CallTimeout: 60 * time.Second,
		MaxTokens:   512,
		Temperature: 0,
	}
}

// Option configures an Arbiter.
type Option func(*Arbiter)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Arbiter) { a.logger = l }
}

// WithClock replaces time.Now for EvaluatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(a *Arbiter) { a.now = now }
}

// Arbiter evaluates questions. It is safe for concurrent use.
type Arbiter struct {
	providers  map[string]llm.Provider
	breakers   *breaker.Set
	classifier *errclass.Classifier
	cfg        Config
	logger     *slog.Logger
	now        func() time.Time
}

// New creates an Arbiter. Every provider named in cfg.Routes must be in
// providers.
func New(providers []llm.Provider, breakers *breaker.Set, classifier *errclass.Classifier, cfg Config, opts ...Option) (*Arbiter, error) {
	if err := cfg.Routes.Validate(); err != nil {
		return nil, err
	}
	byName := make(map[string]llm.Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	for _, name := range cfg.Routes.Providers() {
		if _, ok := byName[name]; !ok {
			return nil, fmt.Errorf("judge provider %q is not configured", name)
		}
	}
	if breakers == nil {
		breakers = breaker.NewSet(breaker.DefaultConfig())
	}
	if classifier == nil {
		classifier = errclass.NewClassifier()
	}

	a := &Arbiter{
		providers:  byName,
		breakers:   breakers,
		classifier: classifier,
		cfg:        cfg,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Route returns the judge used for t.
func (a *Arbiter) Route(t question.QuestionType) Route {
	return a.cfg.Routes.For(t)
}

// Evaluate scores q and always returns a terminal EvaluatedQuestion. When the
// judge cannot be reached the question is rejected with a rationale starting
// with FailurePrefix, and the cause is returned as the error: a
// *errclass.ClassifiedError for call failures, ErrCircuitOpen when the
// judge's circuit is open, or ctx.Err() on cancellation.
func (a *Arbiter) Evaluate(ctx context.Context, q question.GeneratedQuestion) (question.EvaluatedQuestion, error) {
	route := a.Route(q.Type)
	p := a.providers[route.Provider]
	b := a.breakers.Get(route.Provider)

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		var v question.Verdict
		err := breaker.Guard(ctx, b, func(ctx context.Context) error {
			var err error
			v, err = a.judge(ctx, p, route, &q)
			return err
		})
		if err == nil {
			return question.Evaluate(q, v, a.now().UTC()), nil
		}
		if ctx.Err() != nil {
			return a.failed(q, route, "cancelled"), ctx.Err()
		}
		if errors.Is(err, breaker.ErrCircuitOpen) {
			lastErr = err
			break
		}

		ce := a.classifier.Classify(route.Provider, err)
		lastErr = ce
		a.logger.Warn("judge call failed",
			"provider", route.Provider,
			"model", route.Model,
			"question", q.ID,
			"attempt", attempt+1,
			"category", ce.Category,
			"error", err,
		)
		if ce.Critical() {
			b.Trip()
			break
		}
		if !ce.Retryable || attempt == maxAttempts-1 {
			break
		}
		if err := llm.Sleep(ctx, llm.Backoff(attempt, a.cfg.Retry, err)); err != nil {
			return a.failed(q, route, "cancelled"), err
		}
	}
	return a.failed(q, route, failureReason(lastErr)), lastErr
}

func failureReason(err error) string {
	var ce *errclass.ClassifiedError
	if errors.As(err, &ce) {
		return fmt.Sprintf("%s: %v", ce.Category, ce.Err)
	}
	return err.Error()
}

// failed builds the rejected terminal state for q.
func (a *Arbiter) failed(q question.GeneratedQuestion, route Route, reason string) question.EvaluatedQuestion {
	return question.Evaluate(q, question.Verdict{
		Score:     0,
		Rationale: FailurePrefix + reason,
		Provider:  route.Provider,
		Model:     route.Model,
	}, a.now().UTC())
}

// verdictOutput is the raw judge response.
type verdictOutput struct {
	Score     *float64 `json:"score"`
	Rationale string   `json:"rationale"`
}

// judge makes a single judge call.
func (a *Arbiter) judge(ctx context.Context, p llm.Provider, route Route, q *question.GeneratedQuestion) (question.Verdict, error) {
	ctx = llm.WithPurpose(ctx, llm.PurposeJudge)
	callCtx := ctx
	if a.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.cfg.CallTimeout)
		defer cancel()
	}

	resp, err := p.Generate(callCtx, llm.Request{
		Model:  route.Model,
		System: judgeSystemPrompt,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: buildUserMessage(q)},
		},
		Schema:      JudgeSchema,
		MaxTokens:   a.cfg.MaxTokens,
		Temperature: a.cfg.Temperature,
	})
	if err != nil {
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return question.Verdict{}, fmt.Errorf("%s: judge call timed out after %s: %w", route.Provider, a.cfg.CallTimeout, context.DeadlineExceeded)
		}
		return question.Verdict{}, err
	}

	var out verdictOutput
	if err := json.Unmarshal(resp.Content, &out); err != nil {
		return question.Verdict{}, invalidVerdict(route.Provider, resp.Content, err)
	}
	if out.Score == nil || *out.Score < 0 || *out.Score > 1 {
		return question.Verdict{}, invalidVerdict(route.Provider, resp.Content, errors.New("score missing or outside [0,1]"))
	}

	model := resp.Model
	if model == "" {
		model = route.Model
	}
	return question.Verdict{
		Score:     *out.Score,
		Rationale: out.Rationale,
		Provider:  route.Provider,
		Model:     model,
		CostUSD:   llm.EstimateCost(model, resp.Usage),
	}, nil
}

func invalidVerdict(provider string, content json.RawMessage, cause error) *llm.ProviderError {
	return &llm.ProviderError{
		Provider: provider,
		Message:  cause.Error(),
		Content:  content,
		Err:      fmt.Errorf("%w: %w", llm.ErrInvalidResponse, cause),
	}
}
